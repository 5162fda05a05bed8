package buddy

import (
	"log/slog"

	"github.com/aglyzov/go-radix/mem"
)

type options struct {
	space     *mem.Space
	spaceOpts []mem.Option
	logger    *slog.Logger
	abort     bool
}

// Option configures an Allocator.
type Option func(*options)

// WithSpace makes the allocator carve blocks from an existing address space.
func WithSpace(s *mem.Space) Option {
	return func(o *options) {
		o.space = s
	}
}

// WithSpaceOptions configures the address space created by New.
func WithSpaceOptions(opts ...mem.Option) Option {
	return func(o *options) {
		o.spaceOpts = append(o.spaceOpts, opts...)
	}
}

// WithMaxSuperblocks limits the number of superblocks the allocator may reserve.
func WithMaxSuperblocks(n int) Option {
	return WithSpaceOptions(mem.WithLimit(n))
}

// WithLogger sets the logger. A nil logger keeps the default (discarding) one.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithAbortOnExhaustion makes the allocator panic instead of returning ErrOutOfMemory.
func WithAbortOnExhaustion(abort bool) Option {
	return func(o *options) {
		o.abort = abort
	}
}
