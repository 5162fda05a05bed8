// Package scan provides the byte scanning primitives of the radix tree:
//
//   - Mismatch - the first offset where two byte ranges differ;
//   - Search   - the match or insertion position of a byte in a sorted byte array.
//
// Every primitive has a generic (byte by byte) and a SWAR (eight bytes per step)
// implementation. The active table is selected once, on first use, from the capabilities
// of the CPU and can be replaced with Reset. All implementations return identical results.
package scan

import (
	"sync"
	"sync/atomic"
)

// ISA names a family of implementations.
type ISA uint8

const (
	// Generic is the portable byte-at-a-time implementation.
	Generic ISA = iota
	// SWAR processes eight bytes per step inside a 64-bit register.
	SWAR
)

func (i ISA) String() string {
	switch i {
	case Generic:
		return "generic"
	case SWAR:
		return "swar"
	default:
		return "unknown"
	}
}

// Impl is a dispatch table.
type Impl struct {
	ISA      ISA
	Mismatch func(a, b []byte) int
	Search   func(sorted []byte, c byte) (int, bool)
}

var tables = [...]Impl{
	Generic: {Generic, mismatchGeneric, searchGeneric},
	SWAR:    {SWAR, mismatchSWAR, searchSWAR},
}

var (
	once   sync.Once
	active atomic.Pointer[Impl]
)

func load() *Impl {
	once.Do(func() {
		active.CompareAndSwap(nil, &tables[detect()])
	})

	return active.Load()
}

// Active returns the ISA in use.
func Active() ISA {
	return load().ISA
}

// Available reports whether isa can run on this CPU.
func Available(isa ISA) bool {
	switch isa {
	case Generic:
		return true
	case SWAR:
		return hasWideWords
	default:
		return false
	}
}

// Reset selects isa explicitly. It returns false (keeping the current table) when the
// ISA is not available. Reset must not race with scanning calls.
func Reset(isa ISA) bool {
	load()

	if !Available(isa) {
		return false
	}

	active.Store(&tables[isa])

	return true
}

// Funcs returns the implementation of isa regardless of the active selection.
func Funcs(isa ISA) Impl {
	return tables[isa]
}

// Mismatch returns the first offset at which a and b differ, or the length of the
// shorter one when it is a prefix of the other.
func Mismatch(a, b []byte) int {
	return load().Mismatch(a, b)
}

// Search returns the position of c in the strictly ascending array sorted and whether it
// is present. When it is absent the position is where c would be inserted.
func Search(sorted []byte, c byte) (int, bool) {
	return load().Search(sorted, c)
}
