package radix

import (
	"context"
	"log/slog"

	"github.com/aglyzov/go-radix/mem"
	"github.com/aglyzov/go-radix/nodepool"
)

// storeScan writes n over the node at old when the size class allows it, otherwise into
// a new node, retiring old. It returns the reference of the written node.
func (t *Tree) storeScan(tx *txn, old mem.Ref, n *scanNode) (mem.Ref, error) {
	class := n.class()

	if old != mem.Nil && readHeader(tx.bytes(old, 2)).class() == class {
		return old, encodeScan(tx, old, n)
	}

	ref, err := tx.alloc(class)
	if err != nil {
		return mem.Nil, err
	}

	tx.fresh(ref, nodepool.SizeOf(class))

	if err := encodeScan(tx, ref, n); err != nil {
		return mem.Nil, err
	}

	if old != mem.Nil {
		tx.retireNode(old)
	}

	return ref, nil
}

func (t *Tree) storeMask(tx *txn, old mem.Ref, m *maskNode) (mem.Ref, error) {
	if old != mem.Nil && readHeader(tx.bytes(old, 2)).class() == maskClass {
		return old, encodeMask(tx, old, m)
	}

	ref, err := tx.alloc(maskClass)
	if err != nil {
		return mem.Nil, err
	}

	tx.fresh(ref, maxNodeSize)

	if err := encodeMask(tx, ref, m); err != nil {
		return mem.Nil, err
	}

	if old != mem.Nil {
		tx.retireNode(old)
	}

	return ref, nil
}

// place stores a scan node that may have outgrown the scan format. Only a prefix-free
// node may overflow.
func (t *Tree) place(tx *txn, old mem.Ref, n *scanNode) (mem.Ref, error) {
	if n.fits() {
		return t.storeScan(tx, old, n)
	}

	return t.toMask(tx, old, n)
}

// toMask converts a prefix-free scan node into a mask node.
func (t *Tree) toMask(tx *txn, old mem.Ref, n *scanNode) (mem.Ref, error) {
	m := maskNode{
		count:    len(n.branches),
		hasValue: n.hasValue,
		value:    n.value,
	}

	for i := 0; i < len(n.branches); {
		seg, _ := segOf(n.branches[i])

		j := i
		for j < len(n.branches) && int(n.branches[j]>>5) == seg {
			_, bit := segOf(n.branches[j])
			m.bitmap[seg] |= bit
			j++
		}

		if err := t.storeSegment(tx, &m, seg, 0, n.children[i:j]); err != nil {
			return mem.Nil, err
		}

		i = j
	}

	if t.log.Enabled(context.Background(), slog.LevelDebug) {
		t.log.Debug("scan node converted to mask", "branches", m.count, "value", m.hasValue)
	}

	return t.storeMask(tx, old, &m)
}

// toScan collects the children of a mask node into n and retires its chains.
func (t *Tree) toScan(tx *txn, m *maskNode, n *scanNode) {
	n.reset()
	n.hasValue = m.hasValue
	n.value = m.value

	for seg := range m.bitmap {
		cnt := segCount(m.bitmap[seg])
		if cnt == 0 {
			continue
		}

		n.children = m.segment(tx, seg, n.children)

		if !m.inLocal(seg) {
			retireChain(tx, m.slots[seg], cnt)
		}
	}

	m.each(func(c byte) {
		n.branches = append(n.branches, c)
	})

	if t.log.Enabled(context.Background(), slog.LevelDebug) {
		t.log.Debug("mask node converted to scan", "branches", len(n.branches), "value", n.hasValue)
	}
}

// storeSegment replaces the children of segment seg, which held oldN children, with refs.
// The bitmap must already describe refs.
func (t *Tree) storeSegment(tx *txn, m *maskNode, seg, oldN int, refs []mem.Ref) error {
	inLocal := m.inLocal(seg)

	if !inLocal && oldN > 0 {
		retireChain(tx, m.slots[seg], oldN)
	}

	m.slots[seg] = mem.Nil
	n := len(refs)

	switch {
	case n == 0:
		if inLocal {
			m.localUsed, m.localSeg = false, 0
		}
	case inLocal && n <= localCap,
		!m.localUsed && n <= t.tune.LocalPromote:
		m.localUsed, m.localSeg = true, seg
		copy(m.local[:], refs)
	default:
		if inLocal {
			m.localUsed, m.localSeg = false, 0
		}

		head, err := writeChain(tx, refs)
		if err != nil {
			return err
		}

		m.slots[seg] = head
	}

	return nil
}

// merge folds the single child lower of the valueless single-branch node upper into one
// node when the joined prefix fits. On success lower holds the merged node, stored over
// lowerRef when possible, and upperRef is retired.
func (t *Tree) merge(tx *txn, upperRef mem.Ref, upper *scanNode, lowerRef mem.Ref, lower *scanNode) (mem.Ref, bool, error) {
	plen := len(upper.prefix) + 1 + len(lower.prefix)

	if plen > MaxPrefix || !fitsScan(plen, len(lower.branches), lower.hasValue) {
		return mem.Nil, false, nil
	}

	var buf [MaxPrefix]byte

	joined := append(buf[:0], upper.prefix...)
	joined = append(joined, upper.branches[0])
	joined = append(joined, lower.prefix...)

	lower.setPrefix(joined)

	ref, err := t.storeScan(tx, lowerRef, lower)
	if err != nil {
		return mem.Nil, false, err
	}

	tx.retireNode(upperRef)

	return ref, true, nil
}

func (t *Tree) isScan(s store, ref mem.Ref) bool {
	return !readHeader(s.bytes(ref, 2)).isMask()
}
