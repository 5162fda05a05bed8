package mem

// Backing supplies the raw memory of superblocks.
//
// Map returns a zeroed, 8-byte aligned buffer of exactly size bytes together with the
// function that gives it back.
type Backing interface {
	Map(size int) ([]byte, func([]byte) error, error)
}

// HeapBacking allocates superblocks on the Go heap.
type HeapBacking struct{}

func (HeapBacking) Map(size int) ([]byte, func([]byte) error, error) {
	return make([]byte, size), nil, nil
}
