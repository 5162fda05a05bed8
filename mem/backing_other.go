//go:build !unix

package mem

// MmapBacking falls back to the Go heap on platforms without anonymous mmap.
type MmapBacking struct{}

func (MmapBacking) Map(size int) ([]byte, func([]byte) error, error) {
	return HeapBacking{}.Map(size)
}
