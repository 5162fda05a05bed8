package radix

import (
	"fmt"

	"github.com/aglyzov/go-radix/mem"
	"github.com/aglyzov/go-radix/nodepool"
	"github.com/aglyzov/go-radix/refset"
)

// Verify walks the whole tree and checks the node invariants: sorted unique branches,
// minimal size classes, no empty nodes, consistent mask bitmaps and counters, pointer-
// prefix nodes attached exactly to the nodes with mismatching high halves, a single
// path to every node, the element count and that every allocated node is reachable.
func (t *Tree) Verify() error {
	v := verifier{
		t:    t,
		seen: refset.New(),
	}

	if t.root != mem.Nil {
		if err := v.node(t.root, 0); err != nil {
			return err
		}
	}

	if v.values != t.count {
		return v.fail(t.root, "tree holds %d values, count is %d", v.values, t.count)
	}

	if v.long != len(t.ppn) {
		return v.fail(t.root, "%d long nodes, %d registered prefix nodes", v.long, len(t.ppn))
	}

	// a shared node allocator also counts the nodes of other trees
	if t.owned {
		var live int64
		for _, n := range t.nodes.Stats().Live {
			live += n
		}

		if live != int64(v.seen.Len()) {
			return v.fail(t.root, "%d nodes allocated, %d reachable", live, v.seen.Len())
		}
	}

	return nil
}

type verifier struct {
	t      *Tree
	seen   *refset.Set // nodes and their blocks
	values int
	long   int
}

func (v *verifier) fail(ref mem.Ref, format string, args ...any) error {
	return fmt.Errorf("%w: node %#x: %s", ErrCorrupt, uint64(ref), fmt.Sprintf(format, args...))
}

func (v *verifier) node(ref mem.Ref, depth int) error {
	t := v.t

	if !t.space.Contains(ref) {
		return v.fail(ref, "reference outside the address space")
	}

	if !v.seen.Add(ref) {
		return v.fail(ref, "node reachable twice")
	}

	h := readHeader(t.bytes(ref, 2))

	if h&hdrReserved != 0 {
		return v.fail(ref, "reserved header bit set")
	}

	if uint64(ref)%uint64(h.size()) != 0 {
		return v.fail(ref, "misaligned %d byte node", h.size())
	}

	if h.hasValue() {
		v.values++
	}

	if err := v.prefixNode(ref, h); err != nil {
		return err
	}

	if h.isMask() {
		return v.mask(ref, h, depth)
	}

	return v.scan(ref, h, depth)
}

func (v *verifier) scan(ref mem.Ref, h header, depth int) error {
	var n scanNode

	decodeScan(v.t, ref, &n)

	p, b := len(n.prefix), len(n.branches)

	if b > MaxScanBranches || !fitsScan(p, b, n.hasValue) {
		return v.fail(ref, "%v does not fit a scan node", h)
	}

	if class := scanClass(p, b, n.hasValue); class != h.class() {
		return v.fail(ref, "%v is not of the minimal size %d", h, nodepool.SizeOf(class))
	}

	if b == 0 && !n.hasValue {
		return v.fail(ref, "node without branches and value")
	}

	if depth += p; depth > v.t.maxKey {
		return v.fail(ref, "key length %d exceeds the maximum %d", depth, v.t.maxKey)
	}

	for i := 1; i < b; i++ {
		if n.branches[i-1] >= n.branches[i] {
			return v.fail(ref, "branches %x not strictly ascending", n.branches)
		}
	}

	for _, child := range n.children {
		if err := v.node(child, depth+1); err != nil {
			return err
		}
	}

	return nil
}

func (v *verifier) mask(ref mem.Ref, h header, depth int) error {
	var (
		m     maskNode
		total int
		segs  []mem.Ref
	)

	decodeMask(v.t, ref, &m)

	if h.class() != maskClass {
		return v.fail(ref, "mask node of %d bytes", h.size())
	}

	for _, bm := range m.bitmap {
		total += segCount(bm)
	}

	if total != m.count {
		return v.fail(ref, "mask counter %d, bitmap holds %d", m.count, total)
	}

	if m.count < v.t.tune.MaskToScan {
		return v.fail(ref, "mask node with %d branches", m.count)
	}

	if m.localUsed {
		if n := segCount(m.bitmap[m.localSeg]); n == 0 || n > localCap {
			return v.fail(ref, "local array serves segment %d of %d branches", m.localSeg, n)
		}
	}

	for seg := range m.bitmap {
		segs = m.segment(v.t, seg, segs[:0])

		if n := segCount(m.bitmap[seg]); n > 0 && !m.inLocal(seg) {
			var err error

			chainBlocks(v.t, m.slots[seg], n, func(block mem.Ref, class int) {
				switch {
				case err != nil:
				case uint64(block)%uint64(nodepool.SizeOf(class)) != 0:
					err = v.fail(ref, "misaligned next block %#x in segment %d", uint64(block), seg)
				case !v.seen.Add(block):
					err = v.fail(ref, "next block %#x in segment %d is shared", uint64(block), seg)
				}
			})

			if err != nil {
				return err
			}
		}

		for _, child := range segs {
			if err := v.node(child, depth+1); err != nil {
				return err
			}
		}
	}

	return nil
}

// prefixNode checks that the long flag, the registry and the stored high halves agree.
func (v *verifier) prefixNode(ref mem.Ref, h header) error {
	ppn, registered := v.t.ppn[ref]

	if h.isLong() != registered {
		return v.fail(ref, "long flag %v, prefix node registered %v", h.isLong(), registered)
	}

	if !registered {
		return nil
	}

	v.long++

	if !v.seen.Add(ppn) {
		return v.fail(ref, "prefix node %#x is shared", uint64(ppn))
	}

	var x exceptions
	readExceptions(v.t, ref, &x)

	if x.n == 0 {
		return v.fail(ref, "empty prefix node %#x", uint64(ppn))
	}

	for i := 0; i < x.n; i++ {
		if x.e[i].hi == ref.Hi() {
			return v.fail(ref, "prefix node entry %d repeats the node high half", x.e[i].pos)
		}

		if i > 0 && x.e[i-1].pos >= x.e[i].pos {
			return v.fail(ref, "prefix node positions not ascending")
		}
	}

	return nil
}
