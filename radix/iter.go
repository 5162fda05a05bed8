package radix

import (
	"iter"
	"math/bits"

	"github.com/aglyzov/go-radix/mem"
	"github.com/aglyzov/go-radix/scan"
)

// Iterator walks a tree in lexicographic key order. Nodes keep no parent links, so the
// iterator holds the path from the root explicitly.
//
// An iterator is invalidated by any mutation of its tree.
type Iterator struct {
	t       *Tree
	key     []byte
	frames  []frame
	val     uint64
	started bool
}

type frame struct {
	ref  mem.Ref
	next int // next branch byte to visit, -1 before the node value
	base int // key length including the node prefix
}

// IterSize returns the depth of the deepest possible iteration path. Iterators reused
// through IterInto grow to it once.
func (t *Tree) IterSize() int {
	return t.maxKey + 1
}

// Iter returns an iterator positioned before the first key.
func (t *Tree) Iter() *Iterator {
	return t.IterInto(&Iterator{})
}

// IterInto resets it to iterate over t, reusing its buffers.
func (t *Tree) IterInto(it *Iterator) *Iterator {
	it.t = t

	if n := t.IterSize(); cap(it.frames) < n {
		it.frames = make([]frame, 0, n)
		it.key = make([]byte, 0, n)
	}

	it.Reset()

	return it
}

// Reset restarts the iteration from the root.
func (it *Iterator) Reset() {
	it.frames = it.frames[:0]
	it.key = it.key[:0]
	it.val = 0
	it.started = false
}

// Key returns the current key. The slice is valid until the next call to Next.
func (it *Iterator) Key() []byte {
	return it.key
}

// Value returns the current value.
func (it *Iterator) Value() uint64 {
	return it.val
}

// Next advances to the next key and reports whether there is one.
func (it *Iterator) Next() bool {
	t := it.t

	if !it.started {
		it.started = true

		if t.root != mem.Nil {
			it.push(t.root)
		}
	}

	for len(it.frames) > 0 {
		f := &it.frames[len(it.frames)-1]
		h := readHeader(t.bytes(f.ref, 2))
		buf := t.bytes(f.ref, h.size())

		if f.next < 0 {
			f.next = 0

			if h.hasValue() {
				it.key = it.key[:f.base]

				if h.isMask() {
					it.val = maskValue(t, f.ref, buf, h)
				} else {
					it.val = resolve(t, f.ref, h, valuePos, scanView{h, buf}.slot(h.branches()))
				}

				return true
			}
		}

		c, child, ok := nextChild(t, f, h, buf)
		if !ok {
			it.frames = it.frames[:len(it.frames)-1]
			continue
		}

		f.next = int(c) + 1
		it.key = append(it.key[:f.base], c)
		it.push(child)
	}

	return false
}

func (it *Iterator) push(ref mem.Ref) {
	h := readHeader(it.t.bytes(ref, 2))

	if !h.isMask() {
		it.key = append(it.key, scanView{h, it.t.bytes(ref, h.size())}.prefix()...)
	}

	it.frames = append(it.frames, frame{ref: ref, next: -1, base: len(it.key)})
}

// nextChild returns the first branch of the frame node at or after f.next.
func nextChild(s store, f *frame, h header, buf []byte) (byte, mem.Ref, bool) {
	if f.next > 0xFF {
		return 0, mem.Nil, false
	}

	if !h.isMask() {
		v := scanView{h, buf}
		branches := v.branches()

		pos, _ := scan.Search(branches, byte(f.next))
		if pos == len(branches) {
			return 0, mem.Nil, false
		}

		return branches[pos], mem.Ref(resolve(s, f.ref, h, byte(pos), v.slot(pos))), true
	}

	for seg := f.next >> 5; seg < segments; seg++ {
		bm := getLo(buf, maskBitmapOff+4*seg)
		if seg == f.next>>5 {
			bm &= ^uint32(0) << (f.next & 31)
		}

		if bm == 0 {
			continue
		}

		c := byte(seg<<5 | bits.TrailingZeros32(bm))
		child, _ := maskChild(s, f.ref, buf, h, c)

		return c, child, true
	}

	return 0, mem.Nil, false
}

// All returns the keys and values in order. The key slices are reused between iterations.
func (t *Tree) All() iter.Seq2[[]byte, uint64] {
	return func(yield func([]byte, uint64) bool) {
		it := t.Iter()

		for it.Next() {
			if !yield(it.Key(), it.Value()) {
				return
			}
		}
	}
}
