package radix

import (
	"github.com/aglyzov/go-radix/mem"
	"github.com/aglyzov/go-radix/scan"
)

// Find returns the value stored under key.
func (t *Tree) Find(key []byte) (uint64, bool) {
	val, matched, ok := t.lookup(key, false)
	return val, ok && matched == len(key)
}

// FindNearest returns the value of the longest stored key that is a prefix of key and
// the length of that key.
func (t *Tree) FindNearest(key []byte) (uint64, int, bool) {
	return t.lookup(key, true)
}

// lookup descends along key. Unless nearest is set only an exact match is reported.
func (t *Tree) lookup(key []byte, nearest bool) (val uint64, matched int, ok bool) {
	var (
		ref = t.root
		d   int
	)

	for ref != mem.Nil {
		h := readHeader(t.space.Bytes(ref, 2))

		if h.isMask() {
			buf := t.space.Bytes(ref, maxNodeSize)

			if h.hasValue() && (nearest || d == len(key)) {
				val, matched, ok = maskValue(t, ref, buf, h), d, true
			}

			if d == len(key) {
				return
			}

			child, found := maskChild(t, ref, buf, h, key[d])
			if !found {
				return
			}

			ref = child
			d++

			continue
		}

		var (
			v = scanView{h, t.space.Bytes(ref, h.size())}
			p = h.prefixLen()
		)

		if len(key)-d < p || scan.Mismatch(v.prefix(), key[d:d+p]) != p {
			return
		}

		d += p

		if h.hasValue() && (nearest || d == len(key)) {
			val, matched, ok = resolve(t, ref, h, valuePos, v.slot(h.branches())), d, true
		}

		if d == len(key) {
			return
		}

		pos, found := scan.Search(v.branches(), key[d])
		if !found {
			return
		}

		ref = mem.Ref(resolve(t, ref, h, byte(pos), v.slot(pos)))
		d++
	}

	return
}
