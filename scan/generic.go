package scan

func mismatchGeneric(a, b []byte) int {
	n := min(len(a), len(b))

	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}

	return n
}

func searchGeneric(sorted []byte, c byte) (int, bool) {
	for i, b := range sorted {
		if b >= c {
			return i, b == c
		}
	}

	return len(sorted), false
}
