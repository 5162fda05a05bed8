package radix

import (
	"log/slog"

	"github.com/aglyzov/go-radix/buddy"
	"github.com/aglyzov/go-radix/nodepool"
)

// Strategy selects how tree nodes are allocated.
type Strategy uint8

const (
	// Pooled bump-allocates nodes from slabs growing on demand (the default).
	Pooled Strategy = iota
	// Static reserves all node memory when the tree is created.
	Static
	// Heap allocates every node as a separate buddy block.
	Heap
)

func (s Strategy) String() string {
	switch s {
	case Pooled:
		return "pooled"
	case Static:
		return "static"
	case Heap:
		return "heap"
	default:
		return "unknown"
	}
}

// Tuning holds the thresholds of node reshaping. They affect memory use and speed, never
// the contents of the tree.
type Tuning struct {
	// MaskToScan is the branch count below which a mask node reverts to a scan node
	// on erase. Masks are created only once a node outgrows the scan capacity, the gap
	// keeps a node from flipping back and forth. Valid range: 1..MaxScanBranches.
	MaskToScan int

	// LocalPromote is the segment size at or below which a mask segment moves into
	// the local array of its node when the array is free. Valid range: 1..11.
	LocalPromote int
}

// DefaultTuning returns the default thresholds.
func DefaultTuning() Tuning {
	return Tuning{
		MaskToScan:   22,
		LocalPromote: 8,
	}
}

func (t Tuning) normalized() Tuning {
	def := DefaultTuning()

	if t.MaskToScan < 1 || t.MaskToScan > MaxScanBranches {
		t.MaskToScan = def.MaskToScan
	}

	if t.LocalPromote < 1 || t.LocalPromote > localCap {
		t.LocalPromote = def.LocalPromote
	}

	return t
}

type options struct {
	alloc      *buddy.Allocator
	nodes      nodepool.Allocator
	strategy   Strategy
	staticSize int
	tuning     Tuning
	logger     *slog.Logger
	normalize  bool
}

// Option configures a tree.
type Option func(*options)

// WithAllocator sets the buddy allocator backing the nodes.
// If nil is passed, buddy.Default() is used.
func WithAllocator(a *buddy.Allocator) Option {
	return func(o *options) {
		o.alloc = a
	}
}

// WithStrategy selects the node allocation strategy.
func WithStrategy(s Strategy) Option {
	return func(o *options) {
		o.strategy = s
	}
}

// WithStaticSize sets the node memory reserved by the Static strategy.
// The default is derived from the tree capacity.
func WithStaticSize(bytes int) Option {
	return func(o *options) {
		o.staticSize = bytes
	}
}

// WithNodeAllocator makes the tree allocate its nodes from a. The allocator may be
// shared by several trees; it is not reset or released by the tree.
func WithNodeAllocator(a nodepool.Allocator) Option {
	return func(o *options) {
		o.nodes = a
	}
}

// WithTuning overrides the reshaping thresholds. Out of range fields take defaults.
func WithTuning(t Tuning) Option {
	return func(o *options) {
		o.tuning = t
	}
}

// WithLogger sets the logger. If nil is passed, logging is disabled.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l == nil {
			l = slog.New(slog.DiscardHandler)
		}
		o.logger = l
	}
}

// WithNormalizedKeys makes an IntTree store its keys big-endian with the sign bit
// flipped, so that iteration follows numeric order.
func WithNormalizedKeys() Option {
	return func(o *options) {
		o.normalize = true
	}
}
