package nodepool

import (
	"encoding/binary"
	"fmt"

	"github.com/aglyzov/go-radix/buddy"
	"github.com/aglyzov/go-radix/mem"
)

// Pool bump-allocates nodes from slabs. Freed nodes are kept in per-class free lists
// linked through their first word.
type Pool struct {
	alloc *buddy.Allocator
	grow  bool

	slabs    []mem.Ref
	next     int // static pools: index of the next unused slab
	cur, end mem.Ref

	free  [NumClasses]mem.Ref
	nfree [NumClasses]int64
	live  [NumClasses]int64
}

var _ Allocator = (*Pool)(nil)

// NewPooled returns a pool growing by one slab at a time.
func NewPooled(a *buddy.Allocator) *Pool {
	if a == nil {
		a = buddy.Default()
	}

	return &Pool{alloc: a, grow: true}
}

// NewStatic returns a pool holding at least size bytes reserved up front. Allocations
// beyond that fail with ErrOutOfMemory.
func NewStatic(a *buddy.Allocator, size int) (*Pool, error) {
	if a == nil {
		a = buddy.Default()
	}

	p := &Pool{alloc: a}

	for n := max(1, (size+SlabSize-1)/SlabSize); n > 0; n-- {
		ref, err := a.Alloc(SlabSize)
		if err != nil {
			p.Release()
			return nil, fmt.Errorf("nodepool: reserving static pool of %d bytes: %w", size, err)
		}

		p.slabs = append(p.slabs, ref)
	}

	return p, nil
}

func (p *Pool) Space() *mem.Space {
	return p.alloc.Space()
}

func (p *Pool) Alloc(class int) (mem.Ref, error) {
	checkClass(class)

	if ref := p.pop(class); ref != mem.Nil {
		p.live[class]++
		return ref, nil
	}

	size := mem.Ref(SizeOf(class))

	for {
		if p.cur != mem.Nil {
			at := (p.cur + size - 1) &^ (size - 1)
			if at+size <= p.end {
				p.scatter(p.cur, at)
				p.cur = at + size
				p.live[class]++

				return at, nil
			}
		}

		// split a larger free node before touching a new slab
		if ref := p.splitFree(class); ref != mem.Nil {
			p.live[class]++
			return ref, nil
		}

		if err := p.nextSlab(); err != nil {
			return mem.Nil, err
		}
	}
}

func (p *Pool) Free(ref mem.Ref, class int) {
	checkClass(class)

	if ref == mem.Nil {
		return
	}

	p.live[class]--
	p.push(ref, class)
}

// Reset forgets every node. A pooled allocator returns its slabs, a static one rewinds.
func (p *Pool) Reset() {
	p.free = [NumClasses]mem.Ref{}
	p.nfree = [NumClasses]int64{}
	p.live = [NumClasses]int64{}
	p.cur, p.end = mem.Nil, mem.Nil
	p.next = 0

	if p.grow {
		p.Release()
	}
}

func (p *Pool) Release() {
	for _, ref := range p.slabs {
		p.alloc.Free(ref, SlabSize)
	}

	p.slabs = nil
	p.next = 0
	p.cur, p.end = mem.Nil, mem.Nil
	p.free = [NumClasses]mem.Ref{}
	p.nfree = [NumClasses]int64{}
	p.live = [NumClasses]int64{}
}

func (p *Pool) Stats() Stats {
	return Stats{Live: p.live, Free: p.nfree, Slabs: len(p.slabs)}
}

func (p *Pool) nextSlab() error {
	var ref mem.Ref

	switch {
	case p.next < len(p.slabs):
		ref = p.slabs[p.next]
	case !p.grow:
		return fmt.Errorf("nodepool: static pool of %d slabs is full: %w", len(p.slabs), ErrOutOfMemory)
	default:
		var err error

		if ref, err = p.alloc.Alloc(SlabSize); err != nil {
			return err
		}

		p.slabs = append(p.slabs, ref)
	}

	p.next++

	// keep the tail of the current slab
	if p.cur != mem.Nil {
		p.scatter(p.cur, p.end)
	}

	p.cur, p.end = ref, ref+SlabSize

	return nil
}

// scatter puts the range [from, to) into the free lists as aligned blocks.
func (p *Pool) scatter(from, to mem.Ref) {
	for from < to {
		class := NumClasses - 1
		for class > 0 && (from&mem.Ref(SizeOf(class)-1) != 0 || from+mem.Ref(SizeOf(class)) > to) {
			class--
		}

		p.push(from, class)
		from += mem.Ref(SizeOf(class))
	}
}

func (p *Pool) splitFree(class int) mem.Ref {
	for c := class + 1; c < NumClasses; c++ {
		if ref := p.pop(c); ref != mem.Nil {
			size := mem.Ref(SizeOf(class))
			p.scatter(ref+size, ref+mem.Ref(SizeOf(c)))

			return ref
		}
	}

	return mem.Nil
}

func (p *Pool) push(ref mem.Ref, class int) {
	binary.LittleEndian.PutUint64(p.alloc.Bytes(ref, 8), uint64(p.free[class]))
	p.free[class] = ref
	p.nfree[class]++
}

func (p *Pool) pop(class int) mem.Ref {
	ref := p.free[class]
	if ref == mem.Nil {
		return mem.Nil
	}

	p.free[class] = mem.Ref(binary.LittleEndian.Uint64(p.alloc.Bytes(ref, 8)))
	p.nfree[class]--

	return ref
}
