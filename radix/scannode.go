package radix

import (
	"github.com/aglyzov/go-radix/mem"
	"github.com/aglyzov/go-radix/nodepool"
	"github.com/aglyzov/go-radix/scan"
)

// A scan node:
//
//	[0:2]                header
//	[2:2+p]              prefix
//	[2+p:2+p+b]          sorted branch bytes
//	[align4(2+p+b):]     b x uint32 short child references
//	[... + 4b]           uint32 short value (when present)
//
// scanNode is its decoded form with full references.
type scanNode struct {
	prefix   []byte
	branches []byte
	children []mem.Ref
	hasValue bool
	value    uint64

	pbuf [MaxPrefix + 1]byte
	bbuf [MaxScanBranches + 1]byte
	cbuf [MaxScanBranches + 1]mem.Ref
}

func (n *scanNode) reset() {
	n.prefix = n.pbuf[:0]
	n.branches = n.bbuf[:0]
	n.children = n.cbuf[:0]
	n.hasValue = false
	n.value = 0
}

func (n *scanNode) class() int {
	return scanClass(len(n.prefix), len(n.branches), n.hasValue)
}

func (n *scanNode) fits() bool {
	return fitsScan(len(n.prefix), len(n.branches), n.hasValue)
}

func (n *scanNode) search(c byte) (int, bool) {
	return scan.Search(n.branches, c)
}

func (n *scanNode) insertBranch(pos int, c byte, child mem.Ref) {
	n.branches = append(n.branches, 0)
	copy(n.branches[pos+1:], n.branches[pos:])
	n.branches[pos] = c

	n.children = append(n.children, mem.Nil)
	copy(n.children[pos+1:], n.children[pos:])
	n.children[pos] = child
}

func (n *scanNode) removeBranch(pos int) {
	n.branches = append(n.branches[:pos], n.branches[pos+1:]...)
	n.children = append(n.children[:pos], n.children[pos+1:]...)
}

func (n *scanNode) setPrefix(parts ...[]byte) {
	n.prefix = n.pbuf[:0]
	for _, p := range parts {
		n.prefix = append(n.prefix, p...)
	}
}

func decodeScan(s store, ref mem.Ref, n *scanNode) {
	h := readHeader(s.bytes(ref, 2))
	buf := s.bytes(ref, h.size())

	p, b := h.prefixLen(), h.branches()

	n.reset()
	n.prefix = append(n.prefix, buf[2:2+p]...)
	n.branches = append(n.branches, buf[2+p:2+p+b]...)
	n.children = n.cbuf[:b]

	var (
		x   exceptions
		hi  = ref.Hi()
		off = scanChildOff(p, b)
	)

	if h.isLong() {
		readExceptions(s, ref, &x)
	}

	for i := 0; i < b; i++ {
		n.children[i] = mem.Ref(join(x.hi(byte(i), hi), getLo(buf, off+refSize*i)))
	}

	if h.hasValue() {
		n.hasValue = true
		n.value = join(x.hi(valuePos, hi), getLo(buf, off+refSize*b))
	}
}

// encodeScan writes n into the staged node at ref, which must be of n's class.
func encodeScan(tx *txn, ref mem.Ref, n *scanNode) error {
	var (
		class = n.class()
		buf   = tx.edit(ref, nodepool.SizeOf(class))
		p, b  = len(n.prefix), len(n.branches)
		off   = scanChildOff(p, b)
		hi    = ref.Hi()
		x     exceptions
	)

	clear(buf)
	copy(buf[2:], n.prefix)
	copy(buf[2+p:], n.branches)

	for i, child := range n.children {
		putLo(buf, off+refSize*i, uint64(child))
		x.add(byte(i), uint64(child), hi)
	}

	if n.hasValue {
		putLo(buf, off+refSize*b, n.value)
		x.add(valuePos, n.value, hi)
	}

	long, err := tx.setExceptions(ref, &x)
	if err != nil {
		return err
	}

	h := scanHeader(class, p, b, n.hasValue)
	if long {
		h |= hdrLong
	}

	h.put(buf)

	return nil
}

// scanView reads a committed scan node in place.
type scanView struct {
	h   header
	buf []byte
}

func (v scanView) prefix() []byte {
	return v.buf[2 : 2+v.h.prefixLen()]
}

func (v scanView) branches() []byte {
	p := v.h.prefixLen()
	return v.buf[2+p : 2+p+v.h.branches()]
}

// slot returns the short reference at child index i; i == branches is the value.
func (v scanView) slot(i int) uint32 {
	return getLo(v.buf, scanChildOff(v.h.prefixLen(), v.h.branches())+refSize*i)
}

// resolve restores the full reference at pos of the node at ref.
func resolve(s store, ref mem.Ref, h header, pos byte, lo uint32) uint64 {
	hi := ref.Hi()

	if h.isLong() {
		var x exceptions
		readExceptions(s, ref, &x)
		hi = x.hi(pos, hi)
	}

	return join(hi, lo)
}
