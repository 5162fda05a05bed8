//go:build radixcheck

package radix

// checkIntegrity verifies the tree after every mutation.
func (t *Tree) checkIntegrity() {
	if err := t.Verify(); err != nil {
		t.log.Error("integrity check failed", "err", err)
		panic(err)
	}
}
