package radix

import (
	"github.com/aglyzov/go-radix/mem"
	"github.com/aglyzov/go-radix/nodepool"
)

// A pointer-prefix node keeps the high halves of the references (and of the value) of a
// node that differ from the high half of the node's own address:
//
//	[0]               count << 1
//	[1:1+n]           positions, ascending
//	[align4(1+n):]    n x uint32 high halves
//
// Positions are child indexes of a scan node, slots (0..7) and local entries (8..18) of a
// mask node, and valuePos for the value slot of either.
const (
	valuePos      = 0xFF
	localPos      = 8
	maxExceptions = MaxScanBranches + 1
)

type exception struct {
	pos byte
	hi  uint32
}

type exceptions struct {
	n int
	e [maxExceptions]exception
}

func (x *exceptions) reset() {
	x.n = 0
}

// add records the high half of v at pos unless it matches hi.
func (x *exceptions) add(pos byte, v uint64, hi uint32) {
	if h := uint32(v >> 32); h != hi {
		x.e[x.n] = exception{pos, h}
		x.n++
	}
}

// hi returns the high half stored for pos, or def.
func (x *exceptions) hi(pos byte, def uint32) uint32 {
	for i := 0; i < x.n; i++ {
		if x.e[i].pos == pos {
			return x.e[i].hi
		}
		if x.e[i].pos > pos {
			break
		}
	}
	return def
}

func (x *exceptions) has(pos byte) bool {
	for i := 0; i < x.n; i++ {
		if x.e[i].pos == pos {
			return true
		}
	}
	return false
}

// readExceptions loads the pointer-prefix node attached to owner.
func readExceptions(s store, owner mem.Ref, x *exceptions) {
	x.reset()

	ppn := s.prefixNode(owner)
	if ppn == mem.Nil {
		return
	}

	n := int(s.bytes(ppn, 1)[0] >> 1)
	buf := s.bytes(ppn, sizePrefixNode(n))
	off := align4(1 + n)

	for i := 0; i < n; i++ {
		x.e[i] = exception{buf[1+i], getLo(buf, off+refSize*i)}
	}

	x.n = n
}

func encodeExceptions(buf []byte, x *exceptions) {
	clear(buf)

	buf[0] = byte(x.n << 1)
	off := align4(1 + x.n)

	for i := 0; i < x.n; i++ {
		buf[1+i] = x.e[i].pos
		putLo(buf, off+refSize*i, uint64(x.e[i].hi))
	}
}

func prefixNodeClass(n int) int {
	return nodepool.ClassOf(sizePrefixNode(n))
}
