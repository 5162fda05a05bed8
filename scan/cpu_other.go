//go:build !amd64 && !arm64

package scan

import (
	"math/bits"

	"golang.org/x/sys/cpu"
)

const hasWideWords = bits.UintSize == 64

func detect() ISA {
	if hasWideWords && !cpu.IsBigEndian {
		return SWAR
	}

	return Generic
}
