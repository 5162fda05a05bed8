package radix

import (
	"fmt"
	"log/slog"

	"github.com/aglyzov/go-radix/buddy"
	"github.com/aglyzov/go-radix/mem"
	"github.com/aglyzov/go-radix/nodepool"
)

// staticBytesPerKey sizes the node memory of a Static tree from its capacity.
const staticBytesPerKey = 64

// Tree is a radix tree mapping byte strings to 64-bit values.
//
// A Tree is not safe for concurrent use: mutations need exclusive access, and reads may
// run concurrently only while no mutation does.
type Tree struct {
	root   mem.Ref
	count  int
	cap    int
	maxKey int

	space    *mem.Space
	nodes    nodepool.Allocator
	owned    bool
	strategy Strategy
	ppn      map[mem.Ref]mem.Ref // owner -> pointer-prefix node

	tune Tuning
	log  *slog.Logger

	path []step
	tx   txn
}

// step is an edge of the traversal path: the node left and the branch taken.
type step struct {
	ref mem.Ref
	c   byte
}

// New creates a tree holding up to capacity keys. A capacity <= 0 means no limit.
func New(capacity int, opts ...Option) (*Tree, error) {
	o := options{
		strategy: Pooled,
		tuning:   DefaultTuning(),
		logger:   slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(&o)
	}

	t := &Tree{
		cap:      max(capacity, 0),
		strategy: o.strategy,
		ppn:      make(map[mem.Ref]mem.Ref),
		tune:     o.tuning.normalized(),
		log:      o.logger,
	}

	if o.nodes != nil {
		t.nodes = o.nodes
	} else {
		if o.alloc == nil {
			o.alloc = buddy.Default()
		}

		switch o.strategy {
		case Pooled:
			t.nodes = nodepool.NewPooled(o.alloc)
		case Static:
			size := o.staticSize
			if size <= 0 {
				size = max(capacity*staticBytesPerKey, nodepool.SlabSize)
			}

			pool, err := nodepool.NewStatic(o.alloc, size)
			if err != nil {
				return nil, fmt.Errorf("radix: %w", err)
			}

			t.nodes = pool
		case Heap:
			t.nodes = nodepool.NewHeap(o.alloc)
		default:
			return nil, fmt.Errorf("radix: unknown strategy %d", o.strategy)
		}

		t.owned = true
	}

	t.space = t.nodes.Space()

	return t, nil
}

// Len returns the number of keys.
func (t *Tree) Len() int {
	return t.count
}

// Cap returns the capacity, zero when unlimited.
func (t *Tree) Cap() int {
	return t.cap
}

func (t *Tree) Empty() bool {
	return t.root == mem.Nil
}

// MaxKeyLen returns the length of the longest key inserted since the tree was created
// or cleared.
func (t *Tree) MaxKeyLen() int {
	return t.maxKey
}

// Clear removes all keys.
func (t *Tree) Clear() {
	if t.root != mem.Nil && (!t.owned || t.strategy == Heap) {
		t.freeAll()
	}

	if t.owned {
		t.nodes.Reset()
	}

	t.root = mem.Nil
	t.count = 0
	t.maxKey = 0
	clear(t.ppn)
}

// Close removes all keys and returns the node memory of the tree. The tree must not be
// used afterwards.
func (t *Tree) Close() error {
	t.Clear()

	if t.owned {
		t.nodes.Release()
	}

	return nil
}

// freeAll returns every node to the node allocator.
func (t *Tree) freeAll() {
	var (
		stack = []mem.Ref{t.root}
		sn    scanNode
		mn    maskNode
		segs  []mem.Ref
	)

	free := func(ref mem.Ref, class int) {
		t.nodes.Free(ref, class)
	}

	for len(stack) > 0 {
		ref := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		h := readHeader(t.bytes(ref, 2))

		if h.isMask() {
			decodeMask(t, ref, &mn)

			for seg := range mn.bitmap {
				segs = mn.segment(t, seg, segs[:0])
				stack = append(stack, segs...)

				if n := segCount(mn.bitmap[seg]); n > 0 && !mn.inLocal(seg) {
					chainBlocks(t, mn.slots[seg], n, free)
				}
			}
		} else {
			decodeScan(t, ref, &sn)
			stack = append(stack, sn.children...)
		}

		if ppn := t.ppn[ref]; ppn != mem.Nil {
			free(ppn, prefixNodeClass(int(t.bytes(ppn, 1)[0]>>1)))
		}

		free(ref, h.class())
	}
}

// begin starts a mutation.
func (t *Tree) begin() *txn {
	t.tx.begin(t)
	return &t.tx
}

// finish commits or aborts a mutation.
func (t *Tree) finish(tx *txn, err error) error {
	if err != nil {
		tx.abort()
		return err
	}

	tx.commit()
	t.checkIntegrity()

	return nil
}

// relink points the edge leading to a node at ref. An empty path means the root.
func (t *Tree) relink(tx *txn, path []step, ref mem.Ref) error {
	if len(path) == 0 {
		tx.setRoot(ref)
		return nil
	}

	parent := path[len(path)-1]

	return t.setLink(tx, parent.ref, parent.c, ref)
}
