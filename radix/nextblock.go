package radix

import (
	"github.com/aglyzov/go-radix/mem"
	"github.com/aglyzov/go-radix/nodepool"
)

// A next-block chain holds the full child references of one mask segment. Up to
// chainCap references fit a single block of the minimal class; longer segments use a
// 128B block of chainStep references followed by a link to the rest.

func readChain(s store, head mem.Ref, n int, out []mem.Ref) []mem.Ref {
	for n > chainCap {
		buf := s.bytes(head, maxNodeSize)
		for i := 0; i < chainStep; i++ {
			out = append(out, getRef(buf, 8*i))
		}

		head = getRef(buf, 8*chainStep)
		n -= chainStep
	}

	buf := s.bytes(head, 8*n)
	for i := 0; i < n; i++ {
		out = append(out, getRef(buf, 8*i))
	}

	return out
}

// chainSlot locates entry idx of a chain of n references: the block, its class and the
// offset of the entry.
func chainSlot(s store, head mem.Ref, n, idx int) (mem.Ref, int, int) {
	for n > chainCap && idx >= chainStep {
		head = getRef(s.bytes(head, maxNodeSize), 8*chainStep)
		n -= chainStep
		idx -= chainStep
	}

	return head, chainClass(n), 8 * idx
}

func chainAt(s store, head mem.Ref, n, idx int) mem.Ref {
	block, _, off := chainSlot(s, head, n, idx)
	return getRef(s.bytes(block, off+8), off)
}

func writeChain(tx *txn, refs []mem.Ref) (mem.Ref, error) {
	n := len(refs)
	if n == 0 {
		return mem.Nil, nil
	}

	var link mem.Ref

	if n > chainCap {
		var err error

		if link, err = writeChain(tx, refs[chainStep:]); err != nil {
			return mem.Nil, err
		}

		refs = refs[:chainStep]
	}

	class := chainClass(n)

	head, err := tx.alloc(class)
	if err != nil {
		return mem.Nil, err
	}

	buf := tx.fresh(head, nodepool.SizeOf(class))
	for i, ref := range refs {
		putRef(buf, 8*i, ref)
	}

	if link != mem.Nil {
		putRef(buf, 8*chainStep, link)
	}

	return head, nil
}

func retireChain(tx *txn, head mem.Ref, n int) {
	for n > 0 {
		class := chainClass(n)
		tx.retire(head, class)

		if n <= chainCap {
			return
		}

		head = getRef(tx.bytes(head, maxNodeSize), 8*chainStep)
		n -= chainStep
	}
}

// chainBlocks calls fn for every block of a chain.
func chainBlocks(s store, head mem.Ref, n int, fn func(ref mem.Ref, class int)) {
	for n > 0 {
		fn(head, chainClass(n))

		if n <= chainCap {
			return
		}

		head = getRef(s.bytes(head, maxNodeSize), 8*chainStep)
		n -= chainStep
	}
}
