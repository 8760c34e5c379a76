package runtime

import (
	"go.uber.org/zap"

	"github.com/wippyai/xcall/cdts"
	"github.com/wippyai/xcall/handle"
)

type options struct {
	arena  cdts.Arena
	logger *zap.Logger
	policy handle.Policy
}

// Option configures a Bridge, Host or Caller.
type Option func(*options)

// WithArena sets the arena transfer blocks are allocated from.
func WithArena(a cdts.Arena) Option {
	return func(o *options) { o.arena = a }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPolicy sets the handle policy applied to Handle arguments.
func WithPolicy(p handle.Policy) Option {
	return func(o *options) { o.policy = p }
}

func buildOptions(opts []Option) options {
	o := options{
		arena:  cdts.DefaultArena,
		policy: handle.PolicyTrust,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = Logger()
	}
	return o
}
