package radix

import (
	"github.com/aglyzov/go-radix/mem"
	"github.com/aglyzov/go-radix/scan"
)

// Erase removes key and returns its value. An absent key is not an error. A failing
// node allocation (nodes shrink by moving to a smaller class) leaves the tree unchanged.
func (t *Tree) Erase(key []byte) (uint64, bool, error) {
	tx := t.begin()

	val, ok, err := t.erase(tx, key)
	if !ok && err == nil {
		tx.abort()
		return 0, false, nil
	}

	if err = t.finish(tx, err); err != nil {
		return 0, false, err
	}

	t.count--

	if t.count == 0 {
		t.maxKey = 0
	}

	return val, true, nil
}

func (t *Tree) erase(tx *txn, key []byte) (uint64, bool, error) {
	t.path = t.path[:0]

	var (
		ref = t.root
		d   int
		n   scanNode
		m   maskNode
	)

	for ref != mem.Nil {
		h := readHeader(tx.bytes(ref, 2))

		if h.isMask() {
			buf := tx.bytes(ref, maxNodeSize)

			if d == len(key) {
				if !h.hasValue() {
					return 0, false, nil
				}

				decodeMask(tx, ref, &m)

				val := m.value
				m.hasValue, m.value = false, 0

				return val, true, encodeMask(tx, ref, &m)
			}

			child, found := maskChild(tx, ref, buf, h, key[d])
			if !found {
				return 0, false, nil
			}

			t.path = append(t.path, step{ref, key[d]})
			ref = child
			d++

			continue
		}

		decodeScan(tx, ref, &n)

		p := len(n.prefix)
		if len(key)-d < p || scan.Mismatch(n.prefix, key[d:d+p]) != p {
			return 0, false, nil
		}

		d += p

		if d == len(key) {
			if !n.hasValue {
				return 0, false, nil
			}

			val := n.value
			n.hasValue, n.value = false, 0

			return val, true, t.collapse(tx, ref, &n)
		}

		pos, found := n.search(key[d])
		if !found {
			return 0, false, nil
		}

		t.path = append(t.path, step{ref, key[d]})
		ref = n.children[pos]
		d++
	}

	return 0, false, nil
}

// collapse stores the scan node n at ref after it lost its value or a branch. Nodes left
// without branches and value are deleted upwards.
func (t *Tree) collapse(tx *txn, ref mem.Ref, n *scanNode) error {
	path := t.path

	for len(n.branches) == 0 && !n.hasValue {
		tx.retireNode(ref)

		if len(path) == 0 {
			tx.setRoot(mem.Nil)
			return nil
		}

		parent := path[len(path)-1]
		path = path[:len(path)-1]

		if readHeader(tx.bytes(parent.ref, 2)).isMask() {
			return t.maskRemove(tx, parent.ref, parent.c, path)
		}

		decodeScan(tx, parent.ref, n)

		pos, _ := n.search(parent.c)
		n.removeBranch(pos)

		ref = parent.ref
	}

	return t.settle(tx, path, ref, n)
}

// maskRemove deletes branch c from the mask node at ref, reverting it to a scan node
// once the branch count drops below the tuning threshold.
func (t *Tree) maskRemove(tx *txn, ref mem.Ref, c byte, path []step) error {
	var (
		m   maskNode
		buf [maxChain]mem.Ref
	)

	decodeMask(tx, ref, &m)

	seg, idx := m.rank(c)
	oldN := segCount(m.bitmap[seg])

	refs := m.segment(tx, seg, buf[:0])
	refs = append(refs[:idx], refs[idx+1:]...)

	_, bit := segOf(c)
	m.bitmap[seg] &^= bit
	m.count--

	if err := t.storeSegment(tx, &m, seg, oldN, refs); err != nil {
		return err
	}

	if m.count >= t.tune.MaskToScan || !fitsScan(0, m.count, m.hasValue) {
		return encodeMask(tx, ref, &m)
	}

	var n scanNode

	t.toScan(tx, &m, &n)

	return t.settle(tx, path, ref, &n)
}

// settle stores the non-empty scan node n replacing the node at ref, merging it with its
// single child or its single-branch parent when the joined node fits.
func (t *Tree) settle(tx *txn, path []step, ref mem.Ref, n *scanNode) error {
	var (
		top    = mem.Nil
		merged bool
		err    error
	)

	if !n.hasValue && len(n.branches) == 1 && t.isScan(tx, n.children[0]) {
		var child scanNode

		childRef := n.children[0]
		decodeScan(tx, childRef, &child)

		if top, merged, err = t.merge(tx, ref, n, childRef, &child); err != nil {
			return err
		}

		if merged {
			*n = scanNode{}
			decodeScan(tx, top, n)
		}
	}

	if !merged {
		if top, err = t.storeScan(tx, ref, n); err != nil {
			return err
		}
	}

	if len(path) > 0 {
		parentRef := path[len(path)-1].ref

		if t.isScan(tx, parentRef) {
			var parent scanNode

			decodeScan(tx, parentRef, &parent)

			if !parent.hasValue && len(parent.branches) == 1 {
				joined, ok, err := t.merge(tx, parentRef, &parent, top, n)
				if err != nil {
					return err
				}

				if ok {
					return t.relink(tx, path[:len(path)-1], joined)
				}
			}
		}
	}

	if top == ref {
		return nil
	}

	return t.relink(tx, path, top)
}
