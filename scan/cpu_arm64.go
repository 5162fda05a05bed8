package scan

import "golang.org/x/sys/cpu"

const hasWideWords = true

func detect() ISA {
	if cpu.ARM64.HasASIMD {
		return SWAR
	}

	return Generic
}
