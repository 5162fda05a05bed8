package radix

import (
	"fmt"

	"github.com/aglyzov/go-radix/mem"
	"github.com/aglyzov/go-radix/nodepool"
	"github.com/aglyzov/go-radix/scan"
)

// setLink replaces the child under branch c of the node at owner. A short slot whose
// high half matches the owner is written directly, anything else re-encodes the owner
// in place to update its pointer-prefix node.
func (t *Tree) setLink(tx *txn, owner mem.Ref, c byte, child mem.Ref) error {
	h := readHeader(tx.bytes(owner, 2))

	if h.isMask() {
		return t.setMaskLink(tx, owner, c, child)
	}

	var (
		buf  = tx.bytes(owner, h.size())
		p, b = h.prefixLen(), h.branches()
	)

	pos, found := scan.Search(buf[2+p:2+p+b], c)
	if !found {
		panic(fmt.Sprintf("radix: no branch %#x at %#x", c, uint64(owner)))
	}

	if fastLink(tx, owner, h, byte(pos), child) {
		putLo(tx.edit(owner, h.size()), scanChildOff(p, b)+refSize*pos, uint64(child))
		return nil
	}

	var n scanNode

	decodeScan(tx, owner, &n)
	n.children[pos] = child

	return encodeScan(tx, owner, &n)
}

func (t *Tree) setMaskLink(tx *txn, owner mem.Ref, c byte, child mem.Ref) error {
	var m maskNode

	decodeMask(tx, owner, &m)

	if !m.has(c) {
		panic(fmt.Sprintf("radix: no branch %#x at mask %#x", c, uint64(owner)))
	}

	seg, idx := m.rank(c)

	if !m.inLocal(seg) {
		// chains keep full references
		block, class, off := chainSlot(tx, m.slots[seg], segCount(m.bitmap[seg]), idx)
		putRef(tx.edit(block, nodepool.SizeOf(class)), off, child)

		return nil
	}

	if fastLink(tx, owner, readHeader(tx.bytes(owner, 2)), byte(localPos+idx), child) {
		putLo(tx.edit(owner, maxNodeSize), maskLocalOff+refSize*idx, uint64(child))
		return nil
	}

	m.local[idx] = child

	return encodeMask(tx, owner, &m)
}

// fastLink reports whether ref can be stored at pos of owner as a bare short slot.
func fastLink(s store, owner mem.Ref, h header, pos byte, ref mem.Ref) bool {
	if ref.Hi() != owner.Hi() {
		return false
	}

	if !h.isLong() {
		return true
	}

	var x exceptions
	readExceptions(s, owner, &x)

	return !x.has(pos)
}
