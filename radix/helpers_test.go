package radix

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aglyzov/go-radix/buddy"
	"github.com/aglyzov/go-radix/mem"
)

func newTree(t testing.TB, capacity int, opts ...Option) *Tree {
	t.Helper()

	opts = append([]Option{WithAllocator(buddy.New())}, opts...)

	tr, err := New(capacity, opts...)
	require.NoError(t, err)

	return tr
}

func verify(t testing.TB, tr *Tree) {
	t.Helper()
	require.NoError(t, tr.Verify())
}

type shape struct {
	Scan int
	Mask int
	Long int
}

// shapeOf counts the nodes of a tree by kind.
func shapeOf(tr *Tree) shape {
	var (
		res   shape
		stack []mem.Ref
		sn    scanNode
		mn    maskNode
	)

	if tr.root != mem.Nil {
		stack = append(stack, tr.root)
	}

	for len(stack) > 0 {
		ref := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		h := readHeader(tr.bytes(ref, 2))
		if h.isLong() {
			res.Long++
		}

		if h.isMask() {
			res.Mask++

			decodeMask(tr, ref, &mn)
			for seg := range mn.bitmap {
				stack = mn.segment(tr, seg, stack)
			}

			continue
		}

		res.Scan++

		decodeScan(tr, ref, &sn)
		stack = append(stack, sn.children...)
	}

	return res
}

type kv struct {
	Key string
	Val uint64
}

func collect(tr *Tree) []kv {
	var res []kv

	for key, val := range tr.All() {
		res = append(res, kv{string(key), val})
	}

	return res
}
