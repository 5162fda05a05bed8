package buddy

import (
	"sync/atomic"

	"github.com/aglyzov/go-radix/mem"
)

const (
	stackRefBits = 40
	stackRefMask = 1<<stackRefBits - 1

	// maxCAS bounds every lock-free loop.
	maxCAS = 64
)

// stack is a Treiber stack of free blocks of one class. The head packs a 40-bit
// reference with a 24-bit tag against ABA; the link lives in the first word of a block.
type stack struct {
	head atomic.Uint64
}

func (s *stack) push(space *mem.Space, ref mem.Ref) bool {
	word := space.Word(ref)

	for i := 0; i < maxCAS; i++ {
		old := s.head.Load()
		atomic.StoreUint64(word, old&stackRefMask)

		if s.head.CompareAndSwap(old, pack(ref, old)) {
			return true
		}
	}

	return false
}

func (s *stack) pop(space *mem.Space) mem.Ref {
	for i := 0; i < maxCAS; i++ {
		old := s.head.Load()

		ref := mem.Ref(old & stackRefMask)
		if ref == mem.Nil {
			return mem.Nil
		}

		next := mem.Ref(atomic.LoadUint64(space.Word(ref)))

		if s.head.CompareAndSwap(old, pack(next, old)) {
			return ref
		}
	}

	return mem.Nil
}

func (s *stack) empty() bool {
	return s.head.Load()&stackRefMask == 0
}

// pack combines ref with the tag of old incremented by one.
func pack(ref mem.Ref, old uint64) uint64 {
	tag := (old >> stackRefBits) + 1
	return tag<<stackRefBits | uint64(ref)&stackRefMask
}
