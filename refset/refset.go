// Package refset is a set of mem.Ref values kept as a 256-ary trie over the bytes of the
// reference. Each trie node holds a 256-bit occupancy bitmap and a dense child array
// indexed by the popcount rank of the bit.
package refset

import (
	"github.com/hideo55/go-popcount"

	"github.com/aglyzov/go-radix/mem"
)

const levels = 8

type Set struct {
	root node
	size int
}

type node struct {
	bitmap   [4]uint64 // 256 bits representing 2**8 entries
	children []*node
}

func New() *Set {
	return &Set{}
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return s.size
}

func (s *Set) Has(ref mem.Ref) bool {
	if s == nil {
		return false
	}

	n := &s.root

	for i := 0; ; i++ {
		c := byte(ref >> (8 * (levels - 1 - i)))

		if !n.has(c) {
			return false
		}
		if i == levels-1 {
			return true // leaf
		}

		n = n.children[n.rank(c)]
	}
}

// Add inserts ref and reports whether it was absent.
func (s *Set) Add(ref mem.Ref) bool {
	n := &s.root

	for i := 0; ; i++ {
		c := byte(ref >> (8 * (levels - 1 - i)))
		add := !n.has(c)

		if add {
			n.bitmap[c>>6] |= 1 << (c & 0x3F)
		}

		if i == levels-1 {
			if add {
				s.size++
			}
			return add
		}

		idx := n.rank(c)

		if add {
			n.children = append(n.children, nil)
			copy(n.children[idx+1:], n.children[idx:])
			n.children[idx] = &node{}
		}

		n = n.children[idx]
	}
}

// Reset removes every element.
func (s *Set) Reset() {
	s.root = node{}
	s.size = 0
}

func (n *node) has(c byte) bool {
	return n.bitmap[c>>6]>>(c&0x3F)&1 != 0
}

// rank returns the number of set bits below c.
func (n *node) rank(c byte) int {
	ofs := c >> 6
	cnt := popcount.Count(n.bitmap[ofs] & (1<<(c&0x3F) - 1))

	for j := byte(0); j < ofs; j++ {
		cnt += popcount.Count(n.bitmap[j])
	}

	return int(cnt)
}
