package radix

import (
	"encoding/binary"
	"fmt"

	"github.com/aglyzov/go-radix/nodepool"
)

// header is the first 16 bits of every node:
//
//	bit  0      reserved, always 0
//	bits 1..2   size class - 1 (16, 32, 64 or 128 bytes)
//	bit  3      has value
//	bit  4      mask node
//	bit  5      long pointer (a pointer-prefix node is attached)
//
//	scan:  bits 6..10 branch count, bits 11..15 prefix length
//	mask:  bit 6 local block used,  bits 7..9   segment owning the local block
type header uint16

const (
	hdrReserved header = 1 << 0
	hdrValue    header = 1 << 3
	hdrMask     header = 1 << 4
	hdrLong     header = 1 << 5
	hdrLocal    header = 1 << 6

	hdrClassShift    = 1
	hdrBranchShift   = 6
	hdrPrefixShift   = 11
	hdrLocalSegShift = 7
)

func scanHeader(class, prefix, branches int, value bool) header {
	h := header(class-1)<<hdrClassShift | header(branches)<<hdrBranchShift | header(prefix)<<hdrPrefixShift
	if value {
		h |= hdrValue
	}
	return h
}

func maskHeader(value, local bool, seg int) header {
	h := header(maskClass-1)<<hdrClassShift | hdrMask
	if value {
		h |= hdrValue
	}
	if local {
		h |= hdrLocal | header(seg)<<hdrLocalSegShift
	}
	return h
}

func readHeader(buf []byte) header {
	return header(binary.LittleEndian.Uint16(buf))
}

func (h header) put(buf []byte) {
	binary.LittleEndian.PutUint16(buf, uint16(h))
}

// class returns the nodepool size class of the node.
func (h header) class() int     { return int(h>>hdrClassShift&3) + 1 }
func (h header) size() int      { return nodepool.SizeOf(h.class()) }
func (h header) hasValue() bool { return h&hdrValue != 0 }
func (h header) isMask() bool   { return h&hdrMask != 0 }
func (h header) isLong() bool   { return h&hdrLong != 0 }

func (h header) branches() int  { return int(h >> hdrBranchShift & 0x1F) }
func (h header) prefixLen() int { return int(h >> hdrPrefixShift & 0x1F) }

func (h header) localUsed() bool { return h&hdrLocal != 0 }
func (h header) localSeg() int   { return int(h >> hdrLocalSegShift & 7) }

func (h header) String() string {
	var kind string

	switch {
	case h.isMask():
		kind = fmt.Sprintf("mask(local=%v/%d)", h.localUsed(), h.localSeg())
	default:
		kind = fmt.Sprintf("scan(p=%d b=%d)", h.prefixLen(), h.branches())
	}

	return fmt.Sprintf("%s size=%d value=%v long=%v", kind, h.size(), h.hasValue(), h.isLong())
}
