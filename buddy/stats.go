package buddy

// Stats is a snapshot of the allocator state.
type Stats struct {
	Superblocks int             // superblocks handed out and not fully merged back
	Reserved    int             // superblocks reserved from the address space, spare included
	Spare       bool            // a spare superblock is cached
	Deferred    int             // frees waiting in the lock-free stacks
	InUse       int64           // bytes handed out by Alloc and not freed yet
	FreeBlocks  [NumClasses]int // blocks in the locked free lists, by class
}

// FreeBytes returns the total size of the blocks in the locked free lists.
func (s Stats) FreeBytes() int64 {
	var total int64

	for i, n := range s.FreeBlocks {
		total += int64(n) << (i + MinShift)
	}

	return total
}

// Stats returns a snapshot of the allocator counters. Counters are read individually, so
// the snapshot is only consistent when no other goroutine uses the allocator.
func (a *Allocator) Stats() Stats {
	st := Stats{
		Superblocks: int(a.outstanding.Load()),
		Reserved:    a.space.Reserved(),
		Spare:       a.spare.Load() != 0,
		Deferred:    int(a.deferred.Load()),
		InUse:       a.inUse.Load(),
	}

	for i := range a.free {
		st.FreeBlocks[i] = int(a.free[i].Load())
	}

	return st
}
