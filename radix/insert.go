package radix

import (
	"github.com/aglyzov/go-radix/mem"
	"github.com/aglyzov/go-radix/scan"
)

// Insert stores val under key. It returns the previous value when the key was present.
// A new key beyond the capacity fails with ErrCapacity, an allocation failure with
// ErrOutOfMemory; in both cases the tree is unchanged.
func (t *Tree) Insert(key []byte, val uint64) (prev uint64, replaced bool, err error) {
	tx := t.begin()

	prev, replaced, err = t.insert(tx, key, val)
	if err = t.finish(tx, err); err != nil {
		return 0, false, err
	}

	if !replaced {
		t.count++
		t.maxKey = max(t.maxKey, len(key))
	}

	return prev, replaced, nil
}

func (t *Tree) full() bool {
	return t.cap > 0 && t.count >= t.cap
}

func (t *Tree) insert(tx *txn, key []byte, val uint64) (uint64, bool, error) {
	t.path = t.path[:0]

	if t.root == mem.Nil {
		if t.full() {
			return 0, false, ErrCapacity
		}

		leaf, err := t.newLeaf(tx, key, val)
		if err != nil {
			return 0, false, err
		}

		tx.setRoot(leaf)

		return 0, false, nil
	}

	var (
		ref = t.root
		d   int
		n   scanNode
		m   maskNode
	)

	for {
		h := readHeader(tx.bytes(ref, 2))

		if h.isMask() {
			decodeMask(tx, ref, &m)

			if d == len(key) {
				prev, replaced := m.value, m.hasValue
				if !replaced && t.full() {
					return 0, false, ErrCapacity
				}

				m.hasValue, m.value = true, val

				if !replaced {
					prev = 0
				}

				return prev, replaced, encodeMask(tx, ref, &m)
			}

			c := key[d]

			if m.has(c) {
				child, _ := maskChild(tx, ref, tx.bytes(ref, maxNodeSize), h, c)
				t.path = append(t.path, step{ref, c})
				ref = child
				d++

				continue
			}

			if t.full() {
				return 0, false, ErrCapacity
			}

			leaf, err := t.newLeaf(tx, key[d+1:], val)
			if err != nil {
				return 0, false, err
			}

			return 0, false, t.maskAdd(tx, ref, &m, c, leaf)
		}

		decodeScan(tx, ref, &n)

		p := len(n.prefix)

		if mm := scan.Mismatch(n.prefix, key[d:]); mm < p {
			if t.full() {
				return 0, false, ErrCapacity
			}

			return 0, false, t.split(tx, ref, &n, key, d, mm, val)
		}

		d += p

		if d == len(key) {
			if n.hasValue {
				prev := n.value

				if fastLink(tx, ref, h, valuePos, mem.Ref(val)) {
					putLo(tx.edit(ref, h.size()), scanChildOff(p, len(n.branches))+refSize*len(n.branches), val)
					return prev, true, nil
				}

				n.value = val

				return prev, true, encodeScan(tx, ref, &n)
			}

			if t.full() {
				return 0, false, ErrCapacity
			}

			n.hasValue, n.value = true, val

			return 0, false, t.grow(tx, ref, &n)
		}

		c := key[d]

		pos, found := n.search(c)
		if found {
			t.path = append(t.path, step{ref, c})
			ref = n.children[pos]
			d++

			continue
		}

		if t.full() {
			return 0, false, ErrCapacity
		}

		leaf, err := t.newLeaf(tx, key[d+1:], val)
		if err != nil {
			return 0, false, err
		}

		n.insertBranch(pos, c, leaf)

		return 0, false, t.grow(tx, ref, &n)
	}
}

// newLeaf builds the nodes holding the key suffix and its value. A suffix longer than
// MaxPrefix is split over a chain of single-branch nodes with full prefixes.
func (t *Tree) newLeaf(tx *txn, suffix []byte, val uint64) (mem.Ref, error) {
	const stride = MaxPrefix + 1

	var (
		n     scanNode
		links int
	)

	if len(suffix) > MaxPrefix {
		links = (len(suffix) - MaxPrefix + stride - 1) / stride
	}

	n.reset()
	n.setPrefix(suffix[stride*links:])
	n.hasValue, n.value = true, val

	ref, err := t.storeScan(tx, mem.Nil, &n)
	if err != nil {
		return mem.Nil, err
	}

	for i := links - 1; i >= 0; i-- {
		chunk := suffix[stride*i : stride*(i+1)]

		n.reset()
		n.setPrefix(chunk[:MaxPrefix])
		n.insertBranch(0, chunk[MaxPrefix], ref)

		if ref, err = t.storeScan(tx, mem.Nil, &n); err != nil {
			return mem.Nil, err
		}
	}

	return ref, nil
}

// split breaks the prefix of the node at ref where it diverges from key[d:] (at offset
// mm) and links a new parent holding the common part.
func (t *Tree) split(tx *txn, ref mem.Ref, n *scanNode, key []byte, d, mm int, val uint64) error {
	var parent scanNode

	parent.reset()
	parent.setPrefix(n.prefix[:mm])

	c := n.prefix[mm]
	n.setPrefix(n.prefix[mm+1:])

	child, err := t.storeScan(tx, ref, n)
	if err != nil {
		return err
	}

	if rest := key[d+mm:]; len(rest) == 0 {
		parent.hasValue, parent.value = true, val
		parent.insertBranch(0, c, child)
	} else {
		leaf, err := t.newLeaf(tx, rest[1:], val)
		if err != nil {
			return err
		}

		parent.insertBranch(0, c, child)

		pos, _ := parent.search(rest[0])
		parent.insertBranch(pos, rest[0], leaf)
	}

	top, err := t.storeScan(tx, mem.Nil, &parent)
	if err != nil {
		return err
	}

	return t.relink(tx, t.path, top)
}

// grow stores a scan node that gained a value or a branch. A node outgrowing the scan
// format becomes a mask when it has no prefix; otherwise the least number of prefix
// bytes moves into a new single-branch parent.
func (t *Tree) grow(tx *txn, ref mem.Ref, n *scanNode) error {
	if n.fits() || len(n.prefix) == 0 {
		top, err := t.place(tx, ref, n)
		if err != nil {
			return err
		}

		if top == ref {
			return nil
		}

		return t.relink(tx, t.path, top)
	}

	var (
		p  = len(n.prefix)
		nb = len(n.branches)
		k  = 1
	)

	for k < p && !fitsScan(p-k, nb, n.hasValue) {
		k++
	}

	var parent scanNode

	parent.reset()
	parent.setPrefix(n.prefix[:k-1])

	c := n.prefix[k-1]
	n.setPrefix(n.prefix[k:])

	child, err := t.place(tx, ref, n)
	if err != nil {
		return err
	}

	parent.insertBranch(0, c, child)

	top, err := t.storeScan(tx, mem.Nil, &parent)
	if err != nil {
		return err
	}

	return t.relink(tx, t.path, top)
}

// maskAdd inserts branch c leading to child into the mask node at ref.
func (t *Tree) maskAdd(tx *txn, ref mem.Ref, m *maskNode, c byte, child mem.Ref) error {
	var buf [maxChain]mem.Ref

	seg, idx := m.rank(c)
	oldN := segCount(m.bitmap[seg])

	refs := m.segment(tx, seg, buf[:0])
	refs = append(refs, mem.Nil)
	copy(refs[idx+1:], refs[idx:])
	refs[idx] = child

	_, bit := segOf(c)
	m.bitmap[seg] |= bit
	m.count++

	if err := t.storeSegment(tx, m, seg, oldN, refs); err != nil {
		return err
	}

	return encodeMask(tx, ref, m)
}
