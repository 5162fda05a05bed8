package scan

import (
	"encoding/binary"
	"math/bits"

	"github.com/hideo55/go-popcount"
)

const (
	lsb = 0x0101010101010101
	msb = 0x8080808080808080
)

func mismatchSWAR(a, b []byte) int {
	n := min(len(a), len(b))
	i := 0

	for ; i+8 <= n; i += 8 {
		x := binary.LittleEndian.Uint64(a[i:]) ^ binary.LittleEndian.Uint64(b[i:])
		if x != 0 {
			return i + bits.TrailingZeros64(x)>>3
		}
	}

	for ; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}

	return n
}

// lessMask sets the high bit of every byte of x that is (unsigned) less than the
// corresponding byte of y.
func lessMask(x, y uint64) uint64 {
	d := (x | msb) - (y &^ msb) // high bit: low 7 bits of x >= low 7 bits of y
	return ((^x & y) | (^(x ^ y) & ^d)) & msb
}

func searchSWAR(sorted []byte, c byte) (int, bool) {
	var (
		n    = len(sorted)
		pat  = uint64(c) * lsb
		pos  int
		i    int
		full = true
	)

	for ; i+8 <= n && full; i += 8 {
		lt := lessMask(binary.LittleEndian.Uint64(sorted[i:]), pat)
		pos += int(popcount.Count(lt))
		full = lt == msb
	}

	if full && i < n {
		// pad the tail with 0xFF which is never less than c
		var tail [8]byte
		copy(tail[copy(tail[:], sorted[i:]):], "\xff\xff\xff\xff\xff\xff\xff\xff")
		pos += int(popcount.Count(lessMask(binary.LittleEndian.Uint64(tail[:]), pat)))
	}

	return pos, pos < n && sorted[pos] == c
}
