package radix

import (
	"github.com/aglyzov/go-radix/mem"
	"github.com/aglyzov/go-radix/nodepool"
)

type block struct {
	ref   mem.Ref
	class int
}

// txn stages a mutation: new nodes, writes to existing nodes, pointer-prefix registry
// changes and nodes to free. Nothing reachable from the tree changes before commit, so
// a failed allocation is undone by freeing the new nodes.
type txn struct {
	t *Tree

	allocs  []block
	retired []block
	dead    map[mem.Ref]struct{}

	shadow map[mem.Ref][]byte
	order  []mem.Ref
	spare  [][]byte

	ppn map[mem.Ref]mem.Ref // owner -> prefix node, Nil detaches

	root    mem.Ref
	rootSet bool
}

func (tx *txn) begin(t *Tree) {
	tx.t = t

	if tx.shadow == nil {
		tx.shadow = make(map[mem.Ref][]byte)
		tx.ppn = make(map[mem.Ref]mem.Ref)
		tx.dead = make(map[mem.Ref]struct{})
	}
}

func (tx *txn) bytes(ref mem.Ref, n int) []byte {
	if buf, ok := tx.shadow[ref]; ok {
		return buf[:n]
	}
	return tx.t.space.Bytes(ref, n)
}

func (tx *txn) prefixNode(owner mem.Ref) mem.Ref {
	if ref, ok := tx.ppn[owner]; ok {
		return ref
	}
	return tx.t.ppn[owner]
}

// edit returns a staged copy of size bytes at ref.
func (tx *txn) edit(ref mem.Ref, size int) []byte {
	if buf, ok := tx.shadow[ref]; ok {
		return buf[:size]
	}

	// the staged length is the size committed back
	var buf []byte

	if n := len(tx.spare); n > 0 {
		buf = tx.spare[n-1][:maxNodeSize]
		tx.spare = tx.spare[:n-1]
	} else {
		buf = make([]byte, maxNodeSize)
	}

	buf = buf[:size]
	copy(buf, tx.t.space.Bytes(ref, size))

	tx.shadow[ref] = buf
	tx.order = append(tx.order, ref)

	return buf
}

// fresh returns a zeroed staged buffer for a node allocated by the transaction.
func (tx *txn) fresh(ref mem.Ref, size int) []byte {
	buf := tx.edit(ref, size)
	clear(buf)

	return buf
}

func (tx *txn) alloc(class int) (mem.Ref, error) {
	ref, err := tx.t.nodes.Alloc(class)
	if err != nil {
		return mem.Nil, err
	}

	tx.allocs = append(tx.allocs, block{ref, class})

	return ref, nil
}

func (tx *txn) retire(ref mem.Ref, class int) {
	tx.retired = append(tx.retired, block{ref, class})
	tx.dead[ref] = struct{}{}
}

// retireNode frees a tree node on commit together with its pointer-prefix node.
func (tx *txn) retireNode(ref mem.Ref) {
	h := readHeader(tx.bytes(ref, 2))

	tx.retire(ref, h.class())

	if h.isLong() {
		tx.detach(ref)
	}
}

func (tx *txn) detach(owner mem.Ref) {
	ppn := tx.prefixNode(owner)
	if ppn == mem.Nil {
		return
	}

	n := int(tx.bytes(ppn, 1)[0] >> 1)

	tx.retire(ppn, prefixNodeClass(n))
	tx.ppn[owner] = mem.Nil
}

// setExceptions attaches, updates or detaches the pointer-prefix node of owner and
// reports whether owner is a long-pointer node.
func (tx *txn) setExceptions(owner mem.Ref, x *exceptions) (bool, error) {
	old := tx.prefixNode(owner)

	if x.n == 0 {
		tx.detach(owner)
		return false, nil
	}

	class := prefixNodeClass(x.n)

	if old != mem.Nil && prefixNodeClass(int(tx.bytes(old, 1)[0]>>1)) == class {
		encodeExceptions(tx.edit(old, nodepool.SizeOf(class)), x)
		return true, nil
	}

	ref, err := tx.alloc(class)
	if err != nil {
		return false, err
	}

	tx.detach(owner)

	encodeExceptions(tx.fresh(ref, nodepool.SizeOf(class)), x)
	tx.ppn[owner] = ref

	return true, nil
}

func (tx *txn) setRoot(ref mem.Ref) {
	tx.root = ref
	tx.rootSet = true
}

func (tx *txn) commit() {
	t := tx.t

	for _, ref := range tx.order {
		if _, ok := tx.dead[ref]; ok {
			continue
		}

		buf := tx.shadow[ref]
		copy(t.space.Bytes(ref, len(buf)), buf)
	}

	for owner, ppn := range tx.ppn {
		if ppn == mem.Nil {
			delete(t.ppn, owner)
		} else {
			t.ppn[owner] = ppn
		}
	}

	if tx.rootSet {
		t.root = tx.root
	}

	for _, b := range tx.retired {
		t.nodes.Free(b.ref, b.class)
	}

	tx.reset()
}

func (tx *txn) abort() {
	for _, b := range tx.allocs {
		tx.t.nodes.Free(b.ref, b.class)
	}

	tx.reset()
}

func (tx *txn) reset() {
	for _, ref := range tx.order {
		tx.spare = append(tx.spare, tx.shadow[ref][:0])
	}

	clear(tx.shadow)
	clear(tx.ppn)
	clear(tx.dead)

	tx.order = tx.order[:0]
	tx.allocs = tx.allocs[:0]
	tx.retired = tx.retired[:0]
	tx.root, tx.rootSet = mem.Nil, false
}
