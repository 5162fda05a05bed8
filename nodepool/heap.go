package nodepool

import (
	"github.com/aglyzov/go-radix/buddy"
	"github.com/aglyzov/go-radix/mem"
)

// Heap allocates every node as an individual buddy block of at least buddy.MinSize bytes.
// Nodes are spread over the whole address space, so they rarely share the high bits of
// their references.
type Heap struct {
	alloc *buddy.Allocator
	live  [NumClasses]int64
}

var _ Allocator = (*Heap)(nil)

func NewHeap(a *buddy.Allocator) *Heap {
	if a == nil {
		a = buddy.Default()
	}

	return &Heap{alloc: a}
}

func (h *Heap) Space() *mem.Space {
	return h.alloc.Space()
}

func (h *Heap) Alloc(class int) (mem.Ref, error) {
	checkClass(class)

	ref, err := h.alloc.Alloc(SizeOf(class))
	if err != nil {
		return mem.Nil, err
	}

	h.live[class]++

	return ref, nil
}

func (h *Heap) Free(ref mem.Ref, class int) {
	checkClass(class)

	if ref == mem.Nil {
		return
	}

	h.live[class]--
	h.alloc.Free(ref, SizeOf(class))
}

// Reset only drops the counters: the owner frees heap nodes one by one.
func (h *Heap) Reset() {
	h.live = [NumClasses]int64{}
}

func (h *Heap) Release() {}

func (h *Heap) Stats() Stats {
	return Stats{Live: h.live}
}
