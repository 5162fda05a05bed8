// Package nodepool supplies the fixed node size classes of the radix tree
// (8, 16, 32, 64 and 128 bytes) on top of a buddy allocator.
//
// Three strategies are available:
//
//   - Pooled - nodes are bump-allocated from 64KB slabs that grow on demand, so nodes
//     allocated together share the high bits of their references;
//   - Static - the slabs are reserved up front and never grow;
//   - Heap   - every node is an individual buddy block.
//
// All strategies return size-aligned blocks. None of them is safe for concurrent use.
package nodepool

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/aglyzov/go-radix/buddy"
	"github.com/aglyzov/go-radix/mem"
)

const (
	MinShift   = 3 // 8B
	MaxShift   = 7 // 128B
	NumClasses = MaxShift - MinShift + 1

	SlabShift = 16
	SlabSize  = 1 << SlabShift // 64KB
)

var (
	// ErrOutOfMemory is returned when a node cannot be allocated.
	ErrOutOfMemory = buddy.ErrOutOfMemory
)

// Allocator hands out nodes of a size class.
type Allocator interface {
	// Alloc returns a block of SizeOf(class) bytes aligned to its size.
	Alloc(class int) (mem.Ref, error)
	// Free returns a block obtained from Alloc with the same class.
	Free(ref mem.Ref, class int)
	// Space resolves references returned by Alloc.
	Space() *mem.Space
	// Reset forgets every allocated node. Previously returned references become invalid.
	Reset()
	// Release returns all memory to the buddy allocator. The allocator remains usable.
	Release()
	Stats() Stats
}

// Stats describes the state of an Allocator.
type Stats struct {
	Live  [NumClasses]int64 // allocated nodes per class
	Free  [NumClasses]int64 // pooled free nodes per class
	Slabs int
}

// LiveBytes returns the number of bytes held by allocated nodes.
func (s Stats) LiveBytes() int64 {
	var n int64
	for c, live := range s.Live {
		n += live * int64(SizeOf(c))
	}
	return n
}

// ClassOf returns the smallest class holding size bytes.
func ClassOf(size int) int {
	if size > 1<<MaxShift {
		panic(fmt.Sprintf("nodepool: node of %d bytes exceeds the maximum node size %d", size, 1<<MaxShift))
	}

	if size <= 1<<MinShift {
		return 0
	}

	return bits.Len(uint(size-1)) - MinShift
}

// SizeOf returns the size of the blocks of class.
func SizeOf(class int) int {
	return 1 << (class + MinShift)
}

func checkClass(class int) {
	if class < 0 || class >= NumClasses {
		panic(fmt.Sprintf("nodepool: invalid size class %d", class))
	}
}

// IsOutOfMemory reports whether err is an allocation failure.
func IsOutOfMemory(err error) bool {
	return errors.Is(err, ErrOutOfMemory)
}
