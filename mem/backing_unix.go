//go:build unix

package mem

import (
	"golang.org/x/sys/unix"
)

// MmapBacking maps superblocks as anonymous private memory outside of the Go heap.
type MmapBacking struct{}

func (MmapBacking) Map(size int) ([]byte, func([]byte) error, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, err
	}

	return data, unix.Munmap, nil
}
