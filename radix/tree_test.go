package radix

import (
	"bytes"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"sort"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aglyzov/go-radix/buddy"
	"github.com/aglyzov/go-radix/nodepool"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tr := newTree(t, 10)

	assert.True(t, tr.Empty())
	assert.Zero(t, tr.Len())
	assert.Equal(t, 10, tr.Cap())
	assert.Equal(t, 1, tr.IterSize())

	_, ok := tr.Find(nil)
	assert.False(t, ok)

	verify(t, tr)
}

func TestInsert_Scenario1(t *testing.T) {
	t.Parallel()

	tr := newTree(t, 3)

	for i, key := range []string{"a", "ab", "abc"} {
		_, replaced, err := tr.InsertString(key, uint64(i+1))
		require.NoError(t, err)
		assert.False(t, replaced)
	}

	verify(t, tr)

	val, ok := tr.FindString("ab")
	assert.True(t, ok)
	assert.Equal(t, uint64(2), val)

	assert.Equal(t, []kv{{"a", 1}, {"ab", 2}, {"abc", 3}}, collect(tr))
	assert.Equal(t, shape{Scan: 3}, shapeOf(tr))
}

func TestInsert_Scenario2(t *testing.T) {
	t.Parallel()

	var (
		tr   = newTree(t, 0)
		ref  = map[string]uint64{}
		keys []string
	)

	for i := 0; i < 30; i++ {
		key := fmt.Sprintf("k%cz", 'A'+i)
		keys = append(keys, key)

		_, _, err := tr.InsertString(key, uint64(i))
		require.NoError(t, err)

		ref[key] = uint64(i)
		verify(t, tr)
	}

	assert.Equal(t, 1, shapeOf(tr).Mask)

	for _, key := range keys[:20] {
		val, ok, err := tr.EraseString(key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, ref[key], val)

		delete(ref, key)
		verify(t, tr)
	}

	// back to a single scan node with ten leaves
	assert.Equal(t, shape{Scan: 11}, shapeOf(tr))
	assert.Equal(t, len(ref), tr.Len())

	for _, key := range keys {
		exp, expOK := ref[key]
		val, ok := tr.FindString(key)

		assert.Equal(t, expOK, ok, key)
		assert.Equal(t, exp, val, key)
	}
}

func TestInsert_Replace(t *testing.T) {
	t.Parallel()

	tr := newTree(t, 0)

	for _, tcase := range []*struct {
		Key         string
		Val         uint64
		ExpPrev     uint64
		ExpReplaced bool
	}{
		{"", 1, 0, false},
		{"abc", 2, 0, false},
		{"abc", 3, 2, true},
		{"", 4, 1, true},
		{"ab", 5, 0, false},
		{"ab", 1 << 40, 5, true},
		{"ab", 6, 1 << 40, true},
	} {
		prev, replaced, err := tr.InsertString(tcase.Key, tcase.Val)
		require.NoError(t, err)

		assert.Equal(t, tcase.ExpPrev, prev, tcase.Key)
		assert.Equal(t, tcase.ExpReplaced, replaced, tcase.Key)

		val, ok := tr.FindString(tcase.Key)
		assert.True(t, ok)
		assert.Equal(t, tcase.Val, val)

		verify(t, tr)
	}

	assert.Equal(t, 3, tr.Len())
}

func TestInsert_Capacity(t *testing.T) {
	t.Parallel()

	tr := newTree(t, 3)

	for _, key := range []string{"x", "y", "z"} {
		_, _, err := tr.InsertString(key, 1)
		require.NoError(t, err)
	}

	before := collect(tr)

	for _, key := range []string{"w", "xx", "", "zz"} {
		_, _, err := tr.InsertString(key, 2)
		assert.ErrorIs(t, err, ErrCapacity, key)
	}

	assert.Equal(t, before, collect(tr))
	verify(t, tr)

	// replacing is not limited
	prev, replaced, err := tr.InsertString("y", 7)
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, uint64(1), prev)

	_, ok, err := tr.EraseString("x")
	require.NoError(t, err)
	require.True(t, ok)

	_, _, err = tr.InsertString("w", 8)
	require.NoError(t, err)
	assert.Equal(t, 3, tr.Len())
}

func TestFindNearest(t *testing.T) {
	t.Parallel()

	tr := newTree(t, 0)

	for key, val := range map[string]uint64{"a": 1, "abc": 3, "abcdefgh": 8, "b": 2} {
		_, _, err := tr.InsertString(key, val)
		require.NoError(t, err)
	}

	for _, tcase := range []*struct {
		Key        string
		ExpVal     uint64
		ExpMatched int
		ExpOK      bool
	}{
		{"", 0, 0, false},
		{"a", 1, 1, true},
		{"ab", 1, 1, true},
		{"abc", 3, 3, true},
		{"abcd", 3, 3, true},
		{"abcdefg", 3, 3, true},
		{"abcdefgh", 8, 8, true},
		{"abcdefghij", 8, 8, true},
		{"abx", 1, 1, true},
		{"bcd", 2, 1, true},
		{"c", 0, 0, false},
	} {
		tcase := tcase

		t.Run(fmt.Sprintf("%q", tcase.Key), func(t *testing.T) {
			val, matched, ok := tr.FindNearestString(tcase.Key)

			assert.Equal(t, tcase.ExpVal, val)
			assert.Equal(t, tcase.ExpMatched, matched)
			assert.Equal(t, tcase.ExpOK, ok)
		})
	}
}

func TestFindNearest_Mask(t *testing.T) {
	t.Parallel()

	tr := newTree(t, 0)

	_, _, err := tr.InsertString("p", 100)
	require.NoError(t, err)

	for c := 0; c < 64; c++ {
		_, _, err := tr.Insert([]byte{'p', byte(c), 'q'}, uint64(c))
		require.NoError(t, err)
	}

	require.Equal(t, 1, shapeOf(tr).Mask)

	val, matched, ok := tr.FindNearest([]byte{'p', 10, 'q', 'r'})
	assert.True(t, ok)
	assert.Equal(t, uint64(10), val)
	assert.Equal(t, 3, matched)

	val, matched, ok = tr.FindNearest([]byte{'p', 200})
	assert.True(t, ok)
	assert.Equal(t, uint64(100), val)
	assert.Equal(t, 1, matched)
}

func TestErase(t *testing.T) {
	t.Parallel()

	tr := newTree(t, 0)

	for i, key := range []string{"", "a", "ab", "abc", "abd", "b"} {
		_, _, err := tr.InsertString(key, uint64(i))
		require.NoError(t, err)
	}

	for _, tcase := range []*struct {
		Key    string
		ExpVal uint64
		ExpOK  bool
	}{
		{"x", 0, false},
		{"abcd", 0, false},
		{"ab", 2, true},
		{"ab", 0, false},
		{"abc", 3, true},
		{"", 0, true},
		{"", 0, false},
		{"abd", 4, true},
		{"a", 1, true},
		{"b", 5, true},
		{"b", 0, false},
	} {
		val, ok, err := tr.EraseString(tcase.Key)
		require.NoError(t, err)

		assert.Equal(t, tcase.ExpOK, ok, tcase.Key)
		assert.Equal(t, tcase.ExpVal, val, tcase.Key)

		_, found := tr.FindString(tcase.Key)
		assert.False(t, found, tcase.Key)

		verify(t, tr)
	}

	assert.True(t, tr.Empty())
	assert.Zero(t, tr.Len())
	assert.Zero(t, tr.nodes.Stats().LiveBytes())
}

func TestErase_MergesChains(t *testing.T) {
	t.Parallel()

	tr := newTree(t, 0)

	_, _, err := tr.InsertString("abcdef", 1)
	require.NoError(t, err)
	_, _, err = tr.InsertString("abcxyz", 2)
	require.NoError(t, err)

	assert.Equal(t, shape{Scan: 3}, shapeOf(tr))

	_, ok, err := tr.EraseString("abcxyz")
	require.NoError(t, err)
	require.True(t, ok)

	// the parent "abc" merges with the remaining leaf "ef"
	assert.Equal(t, shape{Scan: 1}, shapeOf(tr))
	verify(t, tr)

	val, ok := tr.FindString("abcdef")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), val)
}

func TestLongKeys(t *testing.T) {
	t.Parallel()

	var (
		tr   = newTree(t, 0)
		rnd  = rand.New(rand.NewSource(7))
		base = bytes.Repeat([]byte("0123456789"), 20)
		ref  = map[string]uint64{}
	)

	for i := 0; i < 500; i++ {
		key := slices.Clone(base[:rnd.Intn(len(base))])
		if len(key) > 0 && rnd.Intn(2) == 0 {
			key[rnd.Intn(len(key))] = byte('a' + rnd.Intn(26))
		}

		_, _, err := tr.Insert(key, uint64(i))
		require.NoError(t, err)

		ref[string(key)] = uint64(i)
	}

	verify(t, tr)
	assert.Equal(t, len(ref), tr.Len())
	assertMatches(t, tr, ref)

	for key := range ref {
		_, ok, err := tr.EraseString(key)
		require.NoError(t, err)
		require.True(t, ok)
	}

	verify(t, tr)
	assert.True(t, tr.Empty())
}

func TestMask_FullFanout(t *testing.T) {
	t.Parallel()

	tr := newTree(t, 0)

	for c := 0; c < 256; c++ {
		_, _, err := tr.Insert([]byte{byte(c)}, uint64(c))
		require.NoError(t, err)
	}

	verify(t, tr)
	assert.Equal(t, shape{Scan: 256, Mask: 1}, shapeOf(tr))

	for i, kv := range collect(tr) {
		assert.Equal(t, string([]byte{byte(i)}), kv.Key)
		assert.Equal(t, uint64(i), kv.Val)
	}

	rnd := rand.New(rand.NewSource(99))

	for i, c := range rnd.Perm(256) {
		val, ok, err := tr.Erase([]byte{byte(c)})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, uint64(c), val)

		verify(t, tr)

		if left := 255 - i; left >= DefaultTuning().MaskToScan {
			assert.Equal(t, 1, shapeOf(tr).Mask, "left %d", left)
		} else {
			assert.Zero(t, shapeOf(tr).Mask, "left %d", left)
		}
	}

	assert.True(t, tr.Empty())
}

func TestMask_Value(t *testing.T) {
	t.Parallel()

	tr := newTree(t, 0)

	for c := 0; c < 40; c++ {
		_, _, err := tr.Insert([]byte{'m', byte(c)}, uint64(c))
		require.NoError(t, err)
	}

	_, _, err := tr.InsertString("m", 1<<50)
	require.NoError(t, err)
	verify(t, tr)

	val, ok := tr.FindString("m")
	assert.True(t, ok)
	assert.Equal(t, uint64(1<<50), val)

	kvs := collect(tr)
	assert.Equal(t, kv{"m", 1 << 50}, kvs[0])
	assert.Len(t, kvs, 41)

	val, ok, err = tr.EraseString("m")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(1<<50), val)

	verify(t, tr)
	assert.Zero(t, shapeOf(tr).Long)
}

func TestTuning(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultTuning(), Tuning{}.normalized())
	assert.Equal(t, Tuning{MaskToScan: 25, LocalPromote: 11}, Tuning{MaskToScan: 25, LocalPromote: 11}.normalized())
	assert.Equal(t, DefaultTuning(), Tuning{MaskToScan: 26, LocalPromote: 12}.normalized())

	tr := newTree(t, 0, WithTuning(Tuning{MaskToScan: 10, LocalPromote: 1}))

	for c := 0; c < 30; c++ {
		_, _, err := tr.Insert([]byte{byte(c)}, uint64(c))
		require.NoError(t, err)
	}

	for c := 0; c < 20; c++ {
		_, _, err := tr.Erase([]byte{byte(c)})
		require.NoError(t, err)
		verify(t, tr)
	}

	// ten branches left, still at the threshold
	assert.Equal(t, 1, shapeOf(tr).Mask)

	_, _, err := tr.Erase([]byte{20})
	require.NoError(t, err)
	verify(t, tr)

	assert.Zero(t, shapeOf(tr).Mask)
}

func TestLogger(t *testing.T) {
	t.Parallel()

	var (
		buf bytes.Buffer
		log = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		tr  = newTree(t, 0, WithLogger(log))
	)

	for c := 0; c < 30; c++ {
		_, _, err := tr.Insert([]byte{byte(c)}, uint64(c))
		require.NoError(t, err)
	}

	assert.Contains(t, buf.String(), "scan node converted to mask")

	for c := 0; c < 30; c++ {
		_, _, err := tr.Erase([]byte{byte(c)})
		require.NoError(t, err)
	}

	assert.Contains(t, buf.String(), "mask node converted to scan")
}

func TestStrategies_Random(t *testing.T) {
	t.Parallel()

	for _, strategy := range []Strategy{Pooled, Static, Heap} {
		strategy := strategy

		t.Run(strategy.String(), func(t *testing.T) {
			t.Parallel()

			var (
				tr  = newTree(t, 0, WithStrategy(strategy), WithStaticSize(16<<20))
				rnd = rand.New(rand.NewSource(int64(strategy) + 1))
				ref = map[string]uint64{}
			)

			for i := 0; i < 20000; i++ {
				key := make([]byte, rnd.Intn(6))
				for j := range key {
					key[j] = byte(rnd.Intn(256)) & byte(0xC0|rnd.Intn(256))
				}

				val := rnd.Uint64()

				if rnd.Intn(3) == 0 {
					exp, expOK := ref[string(key)]

					got, ok, err := tr.Erase(key)
					require.NoError(t, err)
					require.Equal(t, expOK, ok)
					require.Equal(t, exp, got)

					delete(ref, string(key))
				} else {
					exp, expOK := ref[string(key)]

					prev, replaced, err := tr.Insert(key, val)
					require.NoError(t, err)
					require.Equal(t, expOK, replaced)
					require.Equal(t, exp, prev)

					ref[string(key)] = val
				}

				require.Equal(t, len(ref), tr.Len())

				if i%1000 == 0 {
					verify(t, tr)
				}
			}

			verify(t, tr)
			assertMatches(t, tr, ref)

			require.NoError(t, tr.Close())
		})
	}
}

func TestFakeKeys(t *testing.T) {
	t.Parallel()

	const (
		total = 20000
		seed  = 1234567890
	)

	var (
		tr   = newTree(t, 0)
		fake = gofakeit.New(seed)
		ref  = map[string]uint64{}
	)

	for i := 0; i < total; i++ {
		var key string

		switch i % 4 {
		case 0:
			key = fake.URL()
		case 1:
			key = fake.Email()
		case 2:
			key = fake.HipsterSentence(3)
		default:
			key = fake.IPv4Address()
		}

		val := fake.Uint64()

		_, _, err := tr.InsertString(key, val)
		require.NoError(t, err)

		ref[key] = val
	}

	verify(t, tr)
	assertMatches(t, tr, ref)

	for key, val := range ref {
		got, ok := tr.FindString(key)
		require.True(t, ok, key)
		require.Equal(t, val, got, key)
	}

	tr.Clear()

	assert.True(t, tr.Empty())
	assert.Zero(t, tr.MaxKeyLen())
	verify(t, tr)
}

func TestOutOfMemory_Unchanged(t *testing.T) {
	t.Parallel()

	var (
		tr  = newTree(t, 0, WithStrategy(Static), WithStaticSize(nodepool.SlabSize))
		rnd = rand.New(rand.NewSource(5))
		ref = map[string]uint64{}
		err error
	)

	for err == nil {
		key := make([]byte, 1+rnd.Intn(40))
		rnd.Read(key)

		if _, _, err = tr.Insert(key, rnd.Uint64()); err == nil {
			ref[string(key)] = 0
		} else {
			assert.ErrorIs(t, err, ErrOutOfMemory)

			_, ok := tr.Find(key)
			assert.False(t, ok)
		}
	}

	verify(t, tr)
	assert.Equal(t, len(ref), tr.Len())

	for key := range ref {
		_, ok := tr.FindString(key)
		require.True(t, ok)
	}

	// erasing may need smaller nodes and fail the same way
	n := 0
	for key := range ref {
		if _, _, err := tr.EraseString(key); err != nil {
			require.ErrorIs(t, err, ErrOutOfMemory)
			continue
		}

		delete(ref, key)

		if n++; n == 100 {
			break
		}
	}

	verify(t, tr)
	assert.Equal(t, len(ref), tr.Len())

	tr.Clear()

	_, _, err = tr.InsertString("fits again", 1)
	require.NoError(t, err)
	verify(t, tr)
}

func TestClearClose(t *testing.T) {
	t.Parallel()

	for _, strategy := range []Strategy{Pooled, Static, Heap} {
		strategy := strategy

		t.Run(strategy.String(), func(t *testing.T) {
			t.Parallel()

			a := buddy.New()

			tr, err := New(0, WithAllocator(a), WithStrategy(strategy))
			require.NoError(t, err)

			for i := 0; i < 1000; i++ {
				_, _, err := tr.InsertString(fmt.Sprintf("key-%d", i*7919), uint64(i))
				require.NoError(t, err)
			}

			tr.Clear()

			assert.True(t, tr.Empty())
			assert.Zero(t, tr.nodes.Stats().LiveBytes())

			_, _, err = tr.InsertString("again", 1)
			require.NoError(t, err)

			require.NoError(t, tr.Close())
			assert.Zero(t, a.Stats().InUse)
		})
	}
}

func TestSharedNodeAllocator(t *testing.T) {
	t.Parallel()

	pool := nodepool.NewPooled(buddy.New())

	t1, err := New(0, WithNodeAllocator(pool))
	require.NoError(t, err)
	t2, err := New(0, WithNodeAllocator(pool))
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("%03d", i)

		_, _, err := t1.InsertString(key, uint64(i))
		require.NoError(t, err)
		_, _, err = t2.InsertString(key, uint64(i*2))
		require.NoError(t, err)
	}

	t1.Clear()
	verify(t, t2)

	for i := 0; i < 100; i++ {
		val, ok := t2.FindString(fmt.Sprintf("%03d", i))
		require.True(t, ok)
		assert.Equal(t, uint64(i*2), val)
	}

	require.NoError(t, t2.Close())
	assert.Zero(t, pool.Stats().LiveBytes())
}

func TestCString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []byte("abc"), CString([]byte("abc\x00def")))
	assert.Equal(t, []byte("abc"), CString([]byte("abc")))
	assert.Empty(t, CString([]byte("\x00")))

	tr := newTree(t, 0)

	_, _, err := tr.Insert(CString([]byte("name\x00garbage")), 1)
	require.NoError(t, err)

	val, ok := tr.FindString("name")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), val)
}

// assertMatches compares the tree contents with a reference map in key order.
func assertMatches(t *testing.T, tr *Tree, ref map[string]uint64) {
	t.Helper()

	keys := make([]string, 0, len(ref))
	for key := range ref {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	var (
		it = tr.Iter()
		i  int
	)

	for it.Next() {
		require.Less(t, i, len(keys))
		require.Equal(t, keys[i], string(it.Key()))
		require.Equal(t, ref[keys[i]], it.Value())
		i++
	}

	require.Equal(t, len(keys), i)
}
