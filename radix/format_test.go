package radix

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aglyzov/go-radix/mem"
	"github.com/aglyzov/go-radix/nodepool"
)

func TestSizeScan(t *testing.T) {
	t.Parallel()

	for _, tcase := range []*struct {
		Prefix   int
		Branches int
		Value    bool
		ExpSize  int
		ExpFits  bool
	}{
		{0, 0, true, 16, true},
		{1, 1, false, 16, true},
		{3, 2, true, 20, true},
		{31, 0, true, 40, true},
		{31, 1, false, 40, true},
		{31, 1, true, 44, true},
		{0, 24, true, 128, true},
		{0, 25, false, 128, true},
		{0, 25, true, 132, false},
		{0, 26, false, 132, false},
		{1, 25, false, 128, true},
		{2, 25, false, 132, false},
		{31, 19, false, 128, true},
		{31, 20, false, 136, false},
		{32, 0, true, 40, false},
	} {
		tcase := tcase
		name := fmt.Sprintf("p%d/b%d/v%v", tcase.Prefix, tcase.Branches, tcase.Value)

		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tcase.ExpSize, sizeScan(tcase.Prefix, tcase.Branches, tcase.Value))
			assert.Equal(t, tcase.ExpFits, fitsScan(tcase.Prefix, tcase.Branches, tcase.Value))

			if tcase.ExpFits {
				size := nodepool.SizeOf(scanClass(tcase.Prefix, tcase.Branches, tcase.Value))
				assert.GreaterOrEqual(t, size, tcase.ExpSize)
				assert.Less(t, size/2, tcase.ExpSize)
			}
		})
	}
}

func TestChainClass(t *testing.T) {
	t.Parallel()

	for _, tcase := range []struct {
		N     int
		Class int
	}{
		{1, 0},
		{2, 1},
		{3, 2},
		{4, 2},
		{8, 3},
		{9, 4},
		{16, 4},
		{17, maskClass},
		{32, maskClass},
	} {
		assert.Equal(t, tcase.Class, chainClass(tcase.N), "n=%d", tcase.N)
	}

	assert.Equal(t, 8, sizePrefixNode(1))
	assert.Equal(t, 128, sizePrefixNode(25))
	assert.LessOrEqual(t, sizePrefixNode(segments+localCap+1), maxNodeSize)
}

func TestHeader(t *testing.T) {
	t.Parallel()

	h := scanHeader(3, 31, 25, true)

	assert.Equal(t, 3, h.class())
	assert.Equal(t, 64, h.size())
	assert.Equal(t, 31, h.prefixLen())
	assert.Equal(t, 25, h.branches())
	assert.True(t, h.hasValue())
	assert.False(t, h.isMask())
	assert.False(t, h.isLong())
	assert.Zero(t, h&hdrReserved)

	m := maskHeader(false, true, 7) | hdrLong

	assert.Equal(t, maskClass, m.class())
	assert.True(t, m.isMask())
	assert.True(t, m.isLong())
	assert.True(t, m.localUsed())
	assert.Equal(t, 7, m.localSeg())
	assert.False(t, m.hasValue())

	var buf [2]byte
	m.put(buf[:])
	assert.Equal(t, m, readHeader(buf[:]))
}

func TestExceptions(t *testing.T) {
	t.Parallel()

	const hi = 7

	var x exceptions

	x.add(0, join(hi, 1), hi)
	x.add(3, join(9, 2), hi)
	x.add(valuePos, join(0, 3), hi)

	assert.Equal(t, 2, x.n)
	assert.False(t, x.has(0))
	assert.True(t, x.has(3))
	assert.True(t, x.has(valuePos))
	assert.Equal(t, uint32(9), x.hi(3, hi))
	assert.Equal(t, uint32(0), x.hi(valuePos, hi))
	assert.Equal(t, uint32(hi), x.hi(1, hi))

	buf := make([]byte, sizePrefixNode(x.n))
	encodeExceptions(buf, &x)

	assert.Equal(t, byte(2<<1), buf[0])
	assert.Equal(t, []byte{3, valuePos}, buf[1:3])
	assert.Equal(t, uint32(9), getLo(buf, 4))
	assert.Equal(t, uint32(0), getLo(buf, 8))
}

func TestMaskRank(t *testing.T) {
	t.Parallel()

	var m maskNode

	for _, c := range []byte{1, 5, 31, 32, 33, 200, 255} {
		seg, bit := segOf(c)
		m.bitmap[seg] |= bit
	}

	for _, tcase := range []struct {
		C   byte
		Seg int
		Idx int
		Has bool
	}{
		{1, 0, 0, true},
		{5, 0, 1, true},
		{6, 0, 2, false},
		{31, 0, 2, true},
		{32, 1, 0, true},
		{33, 1, 1, true},
		{200, 6, 0, true},
		{255, 7, 0, true},
		{254, 7, 0, false},
	} {
		seg, idx := m.rank(tcase.C)

		assert.Equal(t, tcase.Seg, seg, "c=%d", tcase.C)
		assert.Equal(t, tcase.Idx, idx, "c=%d", tcase.C)
		assert.Equal(t, tcase.Has, m.has(tcase.C), "c=%d", tcase.C)
	}

	var order []byte
	m.each(func(c byte) { order = append(order, c) })

	assert.Equal(t, []byte{1, 5, 31, 32, 33, 200, 255}, order)
}

func TestJoin(t *testing.T) {
	t.Parallel()

	ref := mem.Ref(join(3, 0xDEADBEEF))

	assert.Equal(t, uint32(3), ref.Hi())
	assert.Equal(t, uint32(0xDEADBEEF), ref.Lo())
}
