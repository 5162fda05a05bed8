package scan

import (
	"bytes"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func naiveMismatch(a, b []byte) int {
	i := 0
	for i < len(a) && i < len(b) && a[i] == b[i] {
		i++
	}
	return i
}

func naiveSearch(sorted []byte, c byte) (int, bool) {
	i := sort.Search(len(sorted), func(i int) bool { return sorted[i] >= c })
	return i, i < len(sorted) && sorted[i] == c
}

func isas() []ISA {
	var res []ISA
	for _, isa := range []ISA{Generic, SWAR} {
		if Available(isa) {
			res = append(res, isa)
		}
	}
	return res
}

func TestMismatch(t *testing.T) {
	t.Parallel()

	for _, isa := range isas() {
		impl := Funcs(isa)

		for _, tcase := range []*struct {
			A   string
			B   string
			Exp int
		}{
			{"", "", 0},
			{"", "abc", 0},
			{"abc", "", 0},
			{"abc", "abc", 3},
			{"abc", "abd", 2},
			{"abc", "abcdef", 3},
			{"xbc", "abc", 0},
			{"0123456789abcdef", "0123456789abcdef", 16},
			{"0123456789abcdef", "0123456789abcdeF", 15},
			{"0123456789abcdef", "01234567_9abcdef", 8},
			{"01234567", "0123456_", 7},
			{"0123456789", "0123456789abc", 10},
		} {
			tcase := tcase

			t.Run(fmt.Sprintf("%v/%q/%q", isa, tcase.A, tcase.B), func(t *testing.T) {
				assert.Equal(t, tcase.Exp, impl.Mismatch([]byte(tcase.A), []byte(tcase.B)))
			})
		}
	}
}

func TestSearch(t *testing.T) {
	t.Parallel()

	for _, isa := range isas() {
		impl := Funcs(isa)

		for _, tcase := range []*struct {
			Sorted string
			C      byte
			Pos    int
			Found  bool
		}{
			{"", 'a', 0, false},
			{"a", 'a', 0, true},
			{"b", 'a', 0, false},
			{"a", 'b', 1, false},
			{"aceg", 'd', 2, false},
			{"aceg", 'g', 3, true},
			{"aceg", 'z', 4, false},
			{"\x00\x7f\x80\xff", 0x80, 2, true},
			{"\x00\x7f\x80\xff", 0x81, 3, false},
			{"\x00\x7f\x80\xff", 0xff, 3, true},
			{"\x00\x7f\x80\xfe", 0xff, 4, false},
			{"abcdefghijklmnopqrstuvwxy", 'y', 24, true},
			{"abcdefghijklmnopqrstuvwxy", 'i', 8, true},
			{"abcdefghijklmnopqrstuvwxy", 'z', 25, false},
			{"abcdefghjklmnopqrstuvwxyz", 'i', 8, false},
		} {
			tcase := tcase

			t.Run(fmt.Sprintf("%v/%q/%q", isa, tcase.Sorted, tcase.C), func(t *testing.T) {
				pos, found := impl.Search([]byte(tcase.Sorted), tcase.C)

				assert.Equal(t, tcase.Pos, pos)
				assert.Equal(t, tcase.Found, found)
			})
		}
	}
}

func TestImplementations_AgreeWithNaive(t *testing.T) {
	t.Parallel()

	rnd := rand.New(rand.NewSource(20240901))

	for _, isa := range isas() {
		impl := Funcs(isa)

		for i := 0; i < 5000; i++ {
			// random sorted unique set
			var set [256]bool
			for n := rnd.Intn(40); n > 0; n-- {
				set[rnd.Intn(256)] = true
			}

			var sorted []byte
			for c, ok := range set {
				if ok {
					sorted = append(sorted, byte(c))
				}
			}

			c := byte(rnd.Intn(256))
			pos, found := impl.Search(sorted, c)
			expPos, expFound := naiveSearch(sorted, c)

			require.Equal(t, expPos, pos, "%v search %x in %x", isa, c, sorted)
			require.Equal(t, expFound, found, "%v search %x in %x", isa, c, sorted)

			a := make([]byte, rnd.Intn(40))
			rnd.Read(a)

			b := bytes.Clone(a[:rnd.Intn(len(a)+1)])
			if len(b) > 0 && rnd.Intn(2) == 0 {
				b[rnd.Intn(len(b))] ^= byte(1 + rnd.Intn(255))
			}

			require.Equal(t, naiveMismatch(a, b), impl.Mismatch(a, b), "%v mismatch %x %x", isa, a, b)
			require.Equal(t, naiveMismatch(b, a), impl.Mismatch(b, a), "%v mismatch %x %x", isa, b, a)
		}
	}
}

func TestReset(t *testing.T) {
	// not parallel: switches the process-wide table
	prev := Active()
	defer Reset(prev)

	require.True(t, Reset(Generic))
	assert.Equal(t, Generic, Active())
	assert.Equal(t, 2, Mismatch([]byte("abc"), []byte("abd")))

	assert.False(t, Reset(ISA(42)))
	assert.Equal(t, Generic, Active())

	if Available(SWAR) {
		require.True(t, Reset(SWAR))
		assert.Equal(t, SWAR, Active())

		pos, found := Search([]byte("bdf"), 'd')
		assert.Equal(t, 1, pos)
		assert.True(t, found)
	}

	assert.Equal(t, "generic", Generic.String())
	assert.Equal(t, "swar", SWAR.String())
	assert.Equal(t, "unknown", ISA(42).String())
}

func BenchmarkSearch(b *testing.B) {
	sorted := []byte("abcdefghijklmnopqrstuvwxy")

	for _, isa := range isas() {
		impl := Funcs(isa)

		b.Run(isa.String(), func(b *testing.B) {
			var pos int

			for i := 0; i < b.N; i++ {
				pos, _ = impl.Search(sorted, byte('a'+i%26))
			}

			_ = pos
		})
	}
}

func BenchmarkMismatch(b *testing.B) {
	x := []byte("0123456789abcdef0123456789abcde")
	y := []byte("0123456789abcdef0123456789abcdE")

	for _, isa := range isas() {
		impl := Funcs(isa)

		b.Run(isa.String(), func(b *testing.B) {
			var n int

			for i := 0; i < b.N; i++ {
				n = impl.Mismatch(x, y)
			}

			_ = n
		})
	}
}
