package radix

import (
	"encoding/binary"

	"github.com/aglyzov/go-radix/mem"
)

// store resolves node memory and the pointer-prefix registry. The tree reads committed
// state directly, a transaction overlays its staged writes.
type store interface {
	bytes(ref mem.Ref, n int) []byte
	prefixNode(owner mem.Ref) mem.Ref
}

func (t *Tree) bytes(ref mem.Ref, n int) []byte {
	return t.space.Bytes(ref, n)
}

func (t *Tree) prefixNode(owner mem.Ref) mem.Ref {
	return t.ppn[owner]
}

func join(hi, lo uint32) uint64 {
	return uint64(hi)<<32 | uint64(lo)
}

func getLo(buf []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(buf[off:])
}

func putLo(buf []byte, off int, v uint64) {
	binary.LittleEndian.PutUint32(buf[off:], uint32(v))
}

func getRef(buf []byte, off int) mem.Ref {
	return mem.Ref(binary.LittleEndian.Uint64(buf[off:]))
}

func putRef(buf []byte, off int, ref mem.Ref) {
	binary.LittleEndian.PutUint64(buf[off:], uint64(ref))
}
