package scan

import "golang.org/x/sys/cpu"

const hasWideWords = true

func detect() ISA {
	if cpu.X86.HasPOPCNT {
		return SWAR
	}

	return Generic
}
