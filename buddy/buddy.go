// Package buddy implements a power-of-two buddy allocator on top of a mem.Space.
//
// Blocks range from MinSize (32B) to MaxSize (4MB, one superblock) and are aligned to
// their size. Blocks carry no header: the allocator keeps free-state out of band in a
// per-superblock granule table, and links free blocks through their first two words.
//
// Concurrency:
//
//   - a single test-and-set lock guards the doubly-linked free lists and the granule tables;
//   - when the lock is busy Alloc/Free fall back to per-class lock-free stacks (no merging);
//   - the next lock holder drains those stacks and merges their blocks.
//
// No operation waits for the lock except Drain and Stats.
package buddy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/aglyzov/go-radix/mem"
)

const (
	MinShift = 5
	MaxShift = mem.SuperblockShift

	MinSize = 1 << MinShift // 32B
	MaxSize = 1 << MaxShift // 4MB

	NumClasses = MaxShift - MinShift + 1

	granuleShift = MinShift
)

var (
	// ErrOutOfMemory is returned (or panicked with) when no superblock can be obtained.
	ErrOutOfMemory = errors.New("buddy: out of memory")
)

// Allocator is a buddy allocator. It is safe for concurrent use.
type Allocator struct {
	space *mem.Space
	log   *slog.Logger
	abort bool

	locked atomic.Bool

	// guarded by locked
	heads  [NumClasses]mem.Ref
	states [][]uint8 // per superblock id: granule -> free class+1

	stacks   [NumClasses]stack
	deferred atomic.Int64

	spare       atomic.Uint64 // cached spare superblock, also the lock-free hand-off slot
	outstanding atomic.Int64
	free        [NumClasses]atomic.Int64
	inUse       atomic.Int64
}

var (
	defaultOnce      sync.Once
	defaultAllocator *Allocator
)

// Default returns the process-wide allocator.
func Default() *Allocator {
	defaultOnce.Do(func() {
		defaultAllocator = New()
	})

	return defaultAllocator
}

// New creates an allocator over its own address space unless WithSpace is given.
func New(opts ...Option) *Allocator {
	o := options{
		logger: slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(&o)
	}

	if o.space == nil {
		o.space = mem.NewSpace(o.spaceOpts...)
	}

	return &Allocator{
		space: o.space,
		log:   o.logger,
		abort: o.abort,
	}
}

// Space returns the address space the allocator carves blocks from.
func (a *Allocator) Space() *mem.Space {
	return a.space
}

// Bytes returns the memory of a block.
func (a *Allocator) Bytes(ref mem.Ref, size int) []byte {
	return a.space.Bytes(ref, size)
}

// Alloc returns a block of at least size bytes aligned to its power-of-two size.
// A zero size returns a nil reference without an error.
func (a *Allocator) Alloc(size int) (mem.Ref, error) {
	if size <= 0 {
		return mem.Nil, nil
	}

	shift := classOf(size)
	if shift == MaxShift {
		ref, err := a.acquire()
		return a.settle(ref, shift, err)
	}

	if a.tryLock() {
		ref, err := a.allocLocked(shift)
		a.unlock()

		return a.settle(ref, shift, err)
	}

	// contention: serve from the lock-free stack of the class
	if ref := a.stacks[shift-MinShift].pop(a.space); ref != mem.Nil {
		a.deferred.Add(-1)
		return a.settle(ref, shift, nil)
	}

	// the lock is likely free by now
	if a.tryLock() {
		ref, err := a.allocLocked(shift)
		a.unlock()

		return a.settle(ref, shift, err)
	}

	// split a whole superblock through the lock-free stacks
	sb, err := a.acquire()
	if err != nil {
		return mem.Nil, err
	}

	for s := MaxShift - 1; s >= shift; s-- {
		a.push(sb+mem.Ref(1)<<s, s)
	}

	return a.settle(sb, shift, nil)
}

// Free returns a block obtained from Alloc with the same size.
func (a *Allocator) Free(ref mem.Ref, size int) {
	if ref == mem.Nil || size <= 0 {
		return
	}

	shift := classOf(size)
	a.inUse.Add(-int64(1) << shift)

	if shift == MaxShift {
		a.releaseSuperblock(ref)
		return
	}

	if a.tryLock() {
		a.freeLocked(ref, shift)
		a.unlock()

		return
	}

	a.push(ref, shift)
}

// FreeBuffers releases the cached spare superblock.
func (a *Allocator) FreeBuffers() {
	if ref := mem.Ref(a.spare.Swap(0)); ref != mem.Nil {
		a.releaseToSpace(ref)
	}
}

// Drain waits for the lock and merges every deferred free.
func (a *Allocator) Drain() {
	a.lock()
	a.drainLocked()
	a.unlock()
}

func (a *Allocator) settle(ref mem.Ref, shift int, err error) (mem.Ref, error) {
	if err != nil {
		return mem.Nil, err
	}

	a.inUse.Add(int64(1) << shift)

	return ref, nil
}

func (a *Allocator) allocLocked(shift int) (mem.Ref, error) {
	a.drainLocked()

	for s := shift; s < MaxShift; s++ {
		if ref := a.heads[s-MinShift]; ref != mem.Nil {
			a.unlink(ref, s)
			a.split(ref, s, shift)

			return ref, nil
		}
	}

	sb, err := a.acquire()
	if err != nil {
		return mem.Nil, err
	}

	a.split(sb, MaxShift, shift)

	return sb, nil
}

// split cuts the block at ref of class from down to class to, linking the upper halves.
func (a *Allocator) split(ref mem.Ref, from, to int) {
	for s := from - 1; s >= to; s-- {
		a.link(ref+mem.Ref(1)<<s, s)
	}
}

func (a *Allocator) freeLocked(ref mem.Ref, shift int) {
	a.drainLocked()
	a.merge(ref, shift)
}

func (a *Allocator) merge(ref mem.Ref, shift int) {
	for shift < MaxShift {
		buddy := ref ^ mem.Ref(1)<<shift

		if a.stateOf(buddy) != uint8(shift-MinShift+1) {
			break
		}

		a.unlink(buddy, shift)

		ref &^= mem.Ref(1) << shift
		shift++
	}

	if shift == MaxShift {
		a.releaseSuperblock(ref)
		return
	}

	a.link(ref, shift)
}

func (a *Allocator) drainLocked() {
	if a.deferred.Load() == 0 {
		return
	}

	for i := range a.stacks {
		for {
			ref := a.stacks[i].pop(a.space)
			if ref == mem.Nil {
				break
			}

			a.deferred.Add(-1)
			a.merge(ref, i+MinShift)
		}
	}
}

// acquire returns a whole superblock, preferring the cached spare.
func (a *Allocator) acquire() (mem.Ref, error) {
	if ref := mem.Ref(a.spare.Swap(0)); ref != mem.Nil {
		a.outstanding.Add(1)
		return ref, nil
	}

	ref, err := a.space.Reserve()
	if err != nil {
		return mem.Nil, a.exhausted(err)
	}

	a.outstanding.Add(1)
	a.log.Debug("superblock reserved", "ref", fmt.Sprintf("%#x", uint64(ref)), "reserved", a.space.Reserved())

	return ref, nil
}

// releaseSuperblock caches a superblock as the spare, releasing the previous spare.
func (a *Allocator) releaseSuperblock(ref mem.Ref) {
	a.outstanding.Add(-1)

	if old := mem.Ref(a.spare.Swap(uint64(ref))); old != mem.Nil {
		a.releaseToSpace(old)
	}
}

func (a *Allocator) releaseToSpace(ref mem.Ref) {
	if err := a.space.Release(ref); err != nil {
		a.log.Error("superblock release failed", "ref", fmt.Sprintf("%#x", uint64(ref)), "err", err)
		return
	}

	a.log.Debug("superblock released", "ref", fmt.Sprintf("%#x", uint64(ref)), "reserved", a.space.Reserved())
}

func (a *Allocator) exhausted(err error) error {
	err = fmt.Errorf("%w: %v", ErrOutOfMemory, err)

	if a.abort {
		a.log.Error("allocator exhausted", "err", err, "reserved", a.space.Reserved())
		panic(err)
	}

	return err
}

// -- doubly-linked free lists (lock held) --

func (a *Allocator) link(ref mem.Ref, shift int) {
	idx := shift - MinShift
	head := a.heads[idx]

	buf := a.space.Bytes(ref, 16)
	binary.LittleEndian.PutUint64(buf[0:], uint64(head))
	binary.LittleEndian.PutUint64(buf[8:], 0)

	if head != mem.Nil {
		binary.LittleEndian.PutUint64(a.space.Bytes(head+8, 8), uint64(ref))
	}

	a.heads[idx] = ref
	a.setState(ref, uint8(idx+1))
	a.free[idx].Add(1)
}

func (a *Allocator) unlink(ref mem.Ref, shift int) {
	idx := shift - MinShift

	buf := a.space.Bytes(ref, 16)
	next := mem.Ref(binary.LittleEndian.Uint64(buf[0:]))
	prev := mem.Ref(binary.LittleEndian.Uint64(buf[8:]))

	if prev != mem.Nil {
		binary.LittleEndian.PutUint64(a.space.Bytes(prev, 8), uint64(next))
	} else {
		a.heads[idx] = next
	}

	if next != mem.Nil {
		binary.LittleEndian.PutUint64(a.space.Bytes(next+8, 8), uint64(prev))
	}

	a.setState(ref, 0)
	a.free[idx].Add(-1)
}

func (a *Allocator) stateOf(ref mem.Ref) uint8 {
	sb, id := a.space.Superblock(ref)
	if id >= len(a.states) || a.states[id] == nil {
		return 0
	}

	return a.states[id][(ref-sb)>>granuleShift]
}

func (a *Allocator) setState(ref mem.Ref, state uint8) {
	sb, id := a.space.Superblock(ref)

	for id >= len(a.states) {
		a.states = append(a.states, nil)
	}

	if a.states[id] == nil {
		if state == 0 {
			return
		}
		a.states[id] = make([]uint8, MaxSize>>granuleShift)
	}

	a.states[id][(ref-sb)>>granuleShift] = state
}

// -- lock --

func (a *Allocator) tryLock() bool {
	return a.locked.CompareAndSwap(false, true)
}

func (a *Allocator) lock() {
	for !a.tryLock() {
		runtime.Gosched()
	}
}

func (a *Allocator) unlock() {
	a.locked.Store(false)
}

// push defers a free through the lock-free stack of the class. When the stack stays
// contended the block is merged under the lock instead.
func (a *Allocator) push(ref mem.Ref, shift int) {
	a.deferred.Add(1)

	if a.stacks[shift-MinShift].push(a.space, ref) {
		return
	}

	a.deferred.Add(-1)
	a.lock()
	a.freeLocked(ref, shift)
	a.unlock()
}

// classOf returns the shift of the smallest class holding size bytes.
// It panics when size exceeds MaxSize.
func classOf(size int) int {
	if size > MaxSize {
		panic(fmt.Sprintf("buddy: allocation of %d bytes exceeds the maximum block size %d", size, MaxSize))
	}

	if size <= MinSize {
		return MinShift
	}

	return bits.Len(uint(size - 1))
}

// SizeOf returns the block size actually reserved for a request of size bytes.
func SizeOf(size int) int {
	if size <= 0 {
		return 0
	}

	return 1 << classOf(size)
}
