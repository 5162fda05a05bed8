package radix

import (
	"bytes"
	"encoding/binary"
	"iter"
	"unsafe"
)

func stringKey(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// CString returns b up to its first NUL byte.
func CString(b []byte) []byte {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return b[:i]
	}
	return b
}

// InsertString is Insert with a string key.
func (t *Tree) InsertString(key string, val uint64) (uint64, bool, error) {
	return t.Insert(stringKey(key), val)
}

// FindString is Find with a string key.
func (t *Tree) FindString(key string) (uint64, bool) {
	return t.Find(stringKey(key))
}

// FindNearestString is FindNearest with a string key.
func (t *Tree) FindNearestString(key string) (uint64, int, bool) {
	return t.FindNearest(stringKey(key))
}

// EraseString is Erase with a string key.
func (t *Tree) EraseString(key string) (uint64, bool, error) {
	return t.Erase(stringKey(key))
}

// Integer is the key type of an IntTree.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// IntTree is a radix tree with fixed-width integer keys. Keys are stored in native
// (little-endian) byte order unless the tree is created WithNormalizedKeys, in which case
// iteration follows numeric order.
type IntTree[K Integer] struct {
	*Tree

	normalize bool
}

// NewInt creates an integer keyed tree.
func NewInt[K Integer](capacity int, opts ...Option) (*IntTree[K], error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	t, err := New(capacity, opts...)
	if err != nil {
		return nil, err
	}

	return &IntTree[K]{Tree: t, normalize: o.normalize}, nil
}

func (t *IntTree[K]) width() int {
	var k K
	return int(unsafe.Sizeof(k))
}

func (t *IntTree[K]) signBit() uint64 {
	var k K
	if ^k < 0 {
		return 1 << (8*t.width() - 1)
	}
	return 0
}

// encode writes the key into buf, which holds 8 bytes.
func (t *IntTree[K]) encode(k K, buf *[8]byte) []byte {
	w := t.width()
	v := uint64(k)

	if t.normalize {
		binary.BigEndian.PutUint64(buf[:], (v^t.signBit())<<(64-8*w))
	} else {
		binary.LittleEndian.PutUint64(buf[:], v)
	}

	return buf[:w]
}

func (t *IntTree[K]) decode(key []byte) K {
	var buf [8]byte

	if t.normalize {
		copy(buf[:], key)
		v := binary.BigEndian.Uint64(buf[:]) >> (64 - 8*len(key))

		return K(v ^ t.signBit())
	}

	copy(buf[:], key)

	return K(binary.LittleEndian.Uint64(buf[:]))
}

func (t *IntTree[K]) Insert(k K, val uint64) (uint64, bool, error) {
	var buf [8]byte
	return t.Tree.Insert(t.encode(k, &buf), val)
}

func (t *IntTree[K]) Find(k K) (uint64, bool) {
	var buf [8]byte
	return t.Tree.Find(t.encode(k, &buf))
}

func (t *IntTree[K]) Erase(k K) (uint64, bool, error) {
	var buf [8]byte
	return t.Tree.Erase(t.encode(k, &buf))
}

// All returns the keys and values in key byte order.
func (t *IntTree[K]) All() iter.Seq2[K, uint64] {
	return func(yield func(K, uint64) bool) {
		for key, val := range t.Tree.All() {
			if !yield(t.decode(key), val) {
				return
			}
		}
	}
}

// Key decodes the current key of an iterator over the tree.
func (t *IntTree[K]) Key(it *Iterator) K {
	return t.decode(it.Key())
}
