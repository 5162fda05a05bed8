package radix

import "github.com/aglyzov/go-radix/nodepool"

const (
	maxNodeSize = 1 << nodepool.MaxShift // 128B
	maskClass   = nodepool.NumClasses - 1

	// MaxPrefix is the longest prefix a single scan node stores.
	MaxPrefix = 31
	// MaxScanBranches is the branch capacity of a prefix-free scan node without a value.
	MaxScanBranches = 25

	refSize   = 4 // short reference
	chainCap  = 16
	chainStep = 15 // refs in a 128B chain block that links further
	maxChain  = 32

	localCap = 11
)

func align4(n int) int {
	return (n + 3) &^ 3
}

// scanChildOff returns the offset of the child array of a scan node.
func scanChildOff(prefix, branches int) int {
	return align4(2 + prefix + branches)
}

// sizeScan returns the number of bytes a scan node occupies.
func sizeScan(prefix, branches int, value bool) int {
	n := scanChildOff(prefix, branches) + refSize*branches
	if value {
		n += refSize
	}
	return max(n, 16)
}

// fitsScan reports whether a scan node of the shape fits into the largest size class.
func fitsScan(prefix, branches int, value bool) bool {
	return prefix <= MaxPrefix && branches <= MaxScanBranches && sizeScan(prefix, branches, value) <= maxNodeSize
}

// scanClass returns the minimal size class of a scan node.
func scanClass(prefix, branches int, value bool) int {
	return nodepool.ClassOf(sizeScan(prefix, branches, value))
}

// sizePrefixNode returns the size of a pointer-prefix node with n exceptions.
func sizePrefixNode(n int) int {
	return align4(1+n) + refSize*n
}

// chainClass returns the class of the first block of a next-block chain of n references.
func chainClass(n int) int {
	if n > chainCap {
		return maskClass
	}
	return nodepool.ClassOf(8 * n)
}
