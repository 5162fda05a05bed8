// Package mem defines the address space shared by the allocators and the radix tree.
//
// Memory is handed out in superblocks of SuperblockSize bytes. Every byte of a superblock
// has a Ref - a 64-bit address that is stable for the lifetime of the superblock:
//
//	Ref = base + (id+1) << SuperblockShift + offset
//
// A zero Ref is nil. Superblocks are aligned to their size inside the address space, so
// power-of-two blocks carved out of them stay size aligned and buddies can be found by
// flipping a single address bit.
package mem

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

const (
	SuperblockShift = 22
	SuperblockSize  = 1 << SuperblockShift // 4MB

	// MaxSuperblocks bounds the registry (64GB of addressable memory).
	MaxSuperblocks = 1 << 14

	refLimit = 1 << 40 // references must fit into 40 bits (see buddy lock-free stacks)
)

var (
	// ErrSpaceExhausted is returned when no more superblocks can be reserved.
	ErrSpaceExhausted = errors.New("mem: address space exhausted")
)

// Ref is an address inside a Space.
type Ref uint64

// Nil is the zero reference.
const Nil Ref = 0

// Hi returns the high 32 bits of the reference.
func (r Ref) Hi() uint32 { return uint32(r >> 32) }

// Lo returns the low 32 bits of the reference.
func (r Ref) Lo() uint32 { return uint32(r) }

type superblock struct {
	data    []byte
	release func([]byte) error
}

// Space is a registry of superblocks. Reserve and Release are safe for concurrent use,
// and so is resolving references of live superblocks.
type Space struct {
	base    uint64
	limit   int
	backing Backing

	blocks [MaxSuperblocks]atomic.Pointer[superblock]

	mu      sync.Mutex // guards ids
	freeIDs []uint32
	nextID  uint32

	reserved atomic.Int64
}

// Option configures a Space.
type Option func(*Space)

// WithBase moves the address space so that the first superblock starts at base+SuperblockSize.
// The base is rounded down to a multiple of SuperblockSize.
func WithBase(base uint64) Option {
	return func(s *Space) {
		s.base = base &^ (SuperblockSize - 1)
	}
}

// WithLimit caps the number of simultaneously reserved superblocks.
func WithLimit(n int) Option {
	return func(s *Space) {
		if n > 0 && n < MaxSuperblocks {
			s.limit = n
		}
	}
}

// WithBacking selects where superblock memory comes from.
func WithBacking(b Backing) Option {
	return func(s *Space) {
		if b != nil {
			s.backing = b
		}
	}
}

// NewSpace returns an empty address space.
func NewSpace(opts ...Option) *Space {
	s := &Space{
		limit:   MaxSuperblocks,
		backing: HeapBacking{},
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.base+uint64(MaxSuperblocks+1)<<SuperblockShift > refLimit {
		panic(fmt.Sprintf("mem: base %#x leaves no room for %d superblocks", s.base, MaxSuperblocks))
	}

	return s
}

// Reserve obtains a fresh superblock and returns the reference of its first byte.
func (s *Space) Reserve() (Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(s.reserved.Load()) >= s.limit {
		return Nil, ErrSpaceExhausted
	}

	var id uint32

	if n := len(s.freeIDs); n > 0 {
		id = s.freeIDs[n-1]
		s.freeIDs = s.freeIDs[:n-1]
	} else {
		if s.nextID >= MaxSuperblocks {
			return Nil, ErrSpaceExhausted
		}
		id = s.nextID
		s.nextID++
	}

	data, release, err := s.backing.Map(SuperblockSize)
	if err != nil {
		s.freeIDs = append(s.freeIDs, id)
		return Nil, fmt.Errorf("%w: %v", ErrSpaceExhausted, err)
	}

	s.blocks[id].Store(&superblock{data: data, release: release})
	s.reserved.Add(1)

	return s.refOf(id, 0), nil
}

// Release returns a superblock to the backing memory. ref must be the first byte of a
// reserved superblock.
func (s *Space) Release(ref Ref) error {
	id, off := s.locate(ref)
	if off != 0 {
		panic(fmt.Sprintf("mem: release of %#x which is not a superblock start", uint64(ref)))
	}

	sb := s.blocks[id].Swap(nil)
	if sb == nil {
		panic(fmt.Sprintf("mem: release of unknown superblock %#x", uint64(ref)))
	}

	s.mu.Lock()
	s.freeIDs = append(s.freeIDs, id)
	s.mu.Unlock()

	s.reserved.Add(-1)

	if sb.release != nil {
		return sb.release(sb.data)
	}

	return nil
}

// Reserved returns the number of superblocks currently reserved.
func (s *Space) Reserved() int {
	return int(s.reserved.Load())
}

// Contains reports whether ref points into a reserved superblock.
func (s *Space) Contains(ref Ref) bool {
	if uint64(ref) < s.base+SuperblockSize {
		return false
	}

	id, _ := s.locate(ref)

	return id < MaxSuperblocks && s.blocks[id].Load() != nil
}

// Superblock returns the reference of the superblock containing ref and its registry id.
func (s *Space) Superblock(ref Ref) (Ref, int) {
	id, _ := s.locate(ref)
	return s.refOf(id, 0), int(id)
}

// Bytes returns n bytes of memory starting at ref.
func (s *Space) Bytes(ref Ref, n int) []byte {
	id, off := s.locate(ref)
	sb := s.blocks[id].Load()

	return sb.data[off : off+uint32(n) : off+uint32(n)]
}

// Word returns the 8-byte aligned word at ref for atomic access. A reference into a
// released superblock resolves to a scratch word.
func (s *Space) Word(ref Ref) *uint64 {
	id, off := s.locate(ref)

	if id >= MaxSuperblocks {
		return new(uint64)
	}

	sb := s.blocks[id].Load()
	if sb == nil {
		return new(uint64)
	}

	return (*uint64)(unsafe.Pointer(&sb.data[off&^7]))
}

func (s *Space) locate(ref Ref) (uint32, uint32) {
	rel := uint64(ref) - s.base
	return uint32(rel>>SuperblockShift) - 1, uint32(rel & (SuperblockSize - 1))
}

func (s *Space) refOf(id, off uint32) Ref {
	return Ref(s.base + uint64(id+1)<<SuperblockShift + uint64(off))
}
