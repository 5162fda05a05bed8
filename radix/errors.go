package radix

import (
	"errors"

	"github.com/aglyzov/go-radix/buddy"
)

var (
	// ErrCapacity is returned by Insert when a new key would exceed the tree capacity.
	// The tree is left unchanged.
	ErrCapacity = errors.New("radix: capacity exhausted")

	// ErrOutOfMemory is returned when the node allocator fails. The tree is left unchanged.
	ErrOutOfMemory = buddy.ErrOutOfMemory

	// ErrCorrupt is returned by Verify.
	ErrCorrupt = errors.New("radix: corrupt tree")
)
