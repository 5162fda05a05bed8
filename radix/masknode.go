package radix

import (
	"encoding/binary"
	"math/bits"

	"github.com/hideo55/go-popcount"

	"github.com/aglyzov/go-radix/mem"
	"github.com/aglyzov/go-radix/nodepool"
)

// A mask node is always 128 bytes and never has a prefix:
//
//	[0:2]      header
//	[2:4]      branch count
//	[4:36]     8 x uint32 occupancy bitmap, one segment per 32 branch bytes
//	[36:68]    8 x uint32 short references to next-block chains
//	[68:112]   local array, 11 x uint32 short child references of one segment
//	[112:116]  uint32 short value
const (
	maskCountOff  = 2
	maskBitmapOff = 4
	maskSlotOff   = 36
	maskLocalOff  = 68
	maskValueOff  = 112

	segments = 8
)

type maskNode struct {
	count  int
	bitmap [segments]uint32
	slots  [segments]mem.Ref // chain heads

	local     [localCap]mem.Ref
	localUsed bool
	localSeg  int

	hasValue bool
	value    uint64
}

func segOf(c byte) (int, uint32) {
	return int(c >> 5), uint32(1) << (c & 31)
}

func segCount(bitmap uint32) int {
	return int(popcount.Count(uint64(bitmap)))
}

func (m *maskNode) has(c byte) bool {
	seg, bit := segOf(c)
	return m.bitmap[seg]&bit != 0
}

// rank returns the segment of c and the index of c within it.
func (m *maskNode) rank(c byte) (int, int) {
	seg, bit := segOf(c)
	return seg, segCount(m.bitmap[seg] & (bit - 1))
}

func (m *maskNode) inLocal(seg int) bool {
	return m.localUsed && m.localSeg == seg
}

// segment appends the children of seg to out.
func (m *maskNode) segment(s store, seg int, out []mem.Ref) []mem.Ref {
	n := segCount(m.bitmap[seg])

	switch {
	case n == 0:
		return out
	case m.inLocal(seg):
		return append(out, m.local[:n]...)
	default:
		return readChain(s, m.slots[seg], n, out)
	}
}

// each calls fn for every branch byte of the bitmap in ascending order.
func (m *maskNode) each(fn func(c byte)) {
	for seg, bm := range m.bitmap {
		for bm != 0 {
			fn(byte(seg<<5 | bits.TrailingZeros32(bm)))
			bm &= bm - 1
		}
	}
}

func decodeMask(s store, ref mem.Ref, m *maskNode) {
	buf := s.bytes(ref, maxNodeSize)
	h := readHeader(buf)

	var (
		x  exceptions
		hi = ref.Hi()
	)

	if h.isLong() {
		readExceptions(s, ref, &x)
	}

	*m = maskNode{
		count:     int(binary.LittleEndian.Uint16(buf[maskCountOff:])),
		localUsed: h.localUsed(),
		localSeg:  h.localSeg(),
		hasValue:  h.hasValue(),
	}

	for seg := range m.bitmap {
		m.bitmap[seg] = getLo(buf, maskBitmapOff+4*seg)

		if segCount(m.bitmap[seg]) > 0 && !m.inLocal(seg) {
			m.slots[seg] = mem.Ref(join(x.hi(byte(seg), hi), getLo(buf, maskSlotOff+refSize*seg)))
		}
	}

	if m.localUsed {
		for i := 0; i < segCount(m.bitmap[m.localSeg]); i++ {
			m.local[i] = mem.Ref(join(x.hi(byte(localPos+i), hi), getLo(buf, maskLocalOff+refSize*i)))
		}
	}

	if m.hasValue {
		m.value = join(x.hi(valuePos, hi), getLo(buf, maskValueOff))
	}
}

func encodeMask(tx *txn, ref mem.Ref, m *maskNode) error {
	var (
		buf = tx.edit(ref, nodepool.SizeOf(maskClass))
		hi  = ref.Hi()
		x   exceptions
	)

	clear(buf)
	binary.LittleEndian.PutUint16(buf[maskCountOff:], uint16(m.count))

	for seg, bm := range m.bitmap {
		putLo(buf, maskBitmapOff+4*seg, uint64(bm))

		if bm != 0 && !m.inLocal(seg) {
			putLo(buf, maskSlotOff+refSize*seg, uint64(m.slots[seg]))
			x.add(byte(seg), uint64(m.slots[seg]), hi)
		}
	}

	if m.localUsed {
		for i := 0; i < segCount(m.bitmap[m.localSeg]); i++ {
			putLo(buf, maskLocalOff+refSize*i, uint64(m.local[i]))
			x.add(byte(localPos+i), uint64(m.local[i]), hi)
		}
	}

	if m.hasValue {
		putLo(buf, maskValueOff, m.value)
		x.add(valuePos, m.value, hi)
	}

	long, err := tx.setExceptions(ref, &x)
	if err != nil {
		return err
	}

	h := maskHeader(m.hasValue, m.localUsed, m.localSeg)
	if long {
		h |= hdrLong
	}

	h.put(buf)

	return nil
}

// maskChild returns the child of a committed mask node under branch c.
func maskChild(s store, ref mem.Ref, buf []byte, h header, c byte) (mem.Ref, bool) {
	seg, bit := segOf(c)

	bm := getLo(buf, maskBitmapOff+4*seg)
	if bm&bit == 0 {
		return mem.Nil, false
	}

	idx := segCount(bm & (bit - 1))

	if h.localUsed() && h.localSeg() == seg {
		return mem.Ref(resolve(s, ref, h, byte(localPos+idx), getLo(buf, maskLocalOff+refSize*idx))), true
	}

	head := mem.Ref(resolve(s, ref, h, byte(seg), getLo(buf, maskSlotOff+refSize*seg)))

	return chainAt(s, head, segCount(bm), idx), true
}

// maskValue returns the value of a committed mask node.
func maskValue(s store, ref mem.Ref, buf []byte, h header) uint64 {
	return resolve(s, ref, h, valuePos, getLo(buf, maskValueOff))
}
