package runtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/wippyai/xcall/cdts"
	"github.com/wippyai/xcall/errors"
	"github.com/wippyai/xcall/handle"
	"github.com/wippyai/xcall/plugin"
	"github.com/wippyai/xcall/types"
)

// shapeCounter records which dispatch entry points ran.
type shapeCounter struct {
	counts [4]atomic.Int32
}

func (s *shapeCounter) get(shape Shape) int { return int(s.counts[shape].Load()) }

// recordingContext wraps a function and counts entry points.
type recordingContext struct {
	fn      func(ctx context.Context, b *cdts.Block) error
	counter *shapeCounter
}

func (r *recordingContext) CallParamsRet(ctx context.Context, b *cdts.Block) error {
	r.counter.counts[ShapeParamsRet].Add(1)
	return r.fn(ctx, b)
}

func (r *recordingContext) CallParamsNoRet(ctx context.Context, b *cdts.Block) error {
	r.counter.counts[ShapeParamsNoRet].Add(1)
	return r.fn(ctx, b)
}

func (r *recordingContext) CallNoParamsRet(ctx context.Context, b *cdts.Block) error {
	r.counter.counts[ShapeNoParamsRet].Add(1)
	return r.fn(ctx, b)
}

func (r *recordingContext) CallNoParamsNoRet(ctx context.Context) error {
	r.counter.counts[ShapeNoParamsNoRet].Add(1)
	return r.fn(ctx, nil)
}

// testPlugin is a small in-memory runtime. Module "lib" exposes:
//
//	callable=echo           returns its parameters unchanged
//	callable=add            int64 + int64
//	callable=fail           raises a foreign error
//	callable=noop           does nothing
//	callable=wrong_return   answers with a string whatever was declared
//	callable=silent         leaves its return slots unset
//	callable=new_object     mints a plugin-owned handle
//	callable=release,instance_required
//	callable=apply          invokes a host callable with one int64
type testPlugin struct {
	env      plugin.Env
	objects  *handle.Table
	counter  *shapeCounter
	resolves atomic.Int32
	mu       sync.Mutex
	unloaded bool
}

func newTestPlugin(counter *shapeCounter) plugin.Factory {
	return func(env plugin.Env) (plugin.Plugin, error) {
		return &testPlugin{env: env, objects: handle.NewTable(env.RuntimeID), counter: counter}, nil
	}
}

func (p *testPlugin) Load(context.Context) error { return nil }

func (p *testPlugin) Unload(context.Context) error {
	p.mu.Lock()
	p.unloaded = true
	p.mu.Unlock()
	return p.objects.Close()
}

func (p *testPlugin) Resolve(_ context.Context, req plugin.ResolveRequest) (plugin.Context, error) {
	p.resolves.Add(1)
	if req.ModulePath != "lib" {
		return nil, errors.BindingNotFound(req.ModulePath, req.Entity.String())
	}

	var fn func(ctx context.Context, b *cdts.Block) error
	switch req.Entity.Name {
	case "echo":
		if len(req.Params) != len(req.Returns) {
			return nil, errors.SignatureMismatch(errors.PhaseResolve, req.Entity.String(), "echo returns its parameters")
		}
		fn = func(_ context.Context, b *cdts.Block) error {
			if b == nil {
				return nil
			}
			copy(b.Returns, b.Params)
			return nil
		}

	case "add":
		if len(req.Params) != 2 || len(req.Returns) != 1 {
			return nil, errors.SignatureMismatch(errors.PhaseResolve, req.Entity.String(), "add takes two values")
		}
		for _, d := range req.Params {
			if d.Kind == types.KindString8 {
				return nil, errors.TypeUnsupported(errors.PhaseResolve, d.String(), "add only adds numbers")
			}
		}
		fn = func(_ context.Context, b *cdts.Block) error {
			x, _ := cdts.Get(b.Params[0])
			y, _ := cdts.Get(b.Params[1])
			return cdts.Set(&b.Returns[0], x.(int64)+y.(int64), types.Int64)
		}

	case "fail":
		fn = func(context.Context, *cdts.Block) error {
			return fmt.Errorf("java.lang.ArithmeticException: / by zero")
		}

	case "noop":
		fn = func(context.Context, *cdts.Block) error { return nil }

	case "wrong_return":
		fn = func(_ context.Context, b *cdts.Block) error {
			b.Returns[0] = cdts.Scalar(types.String8, "oops")
			return nil
		}

	case "silent":
		fn = func(context.Context, *cdts.Block) error { return nil }

	case "new_object":
		fn = func(_ context.Context, b *cdts.Block) error {
			h := p.objects.Insert(map[string]int{})
			b.Returns[0] = cdts.Scalar(types.Handle, h)
			return nil
		}

	case "release":
		fn = func(_ context.Context, b *cdts.Block) error {
			h, _ := b.Params[0].Data.(handle.Handle)
			if _, ok := p.objects.Release(h); !ok {
				return fmt.Errorf("unknown object %s", h)
			}
			return nil
		}

	case "apply":
		fn = func(ctx context.Context, b *cdts.Block) error {
			cb, _ := b.Params[0].Data.(handle.Handle)
			sig, ok := p.env.Host.Signature(cb)
			if !ok {
				return fmt.Errorf("not a callable: %s", cb)
			}
			inner := &cdts.Block{Params: make([]cdts.Value, len(sig.Params)), Returns: make([]cdts.Value, len(sig.Returns))}
			inner.Params[0] = b.Params[1]
			if err := p.env.Host.InvokeCallable(ctx, cb, inner); err != nil {
				return err
			}
			b.Returns[0] = inner.Returns[0]
			return nil
		}

	default:
		return nil, errors.BindingNotFound(req.ModulePath, req.Entity.String())
	}
	return &recordingContext{fn: fn, counter: p.counter}, nil
}

// countingArena counts allocations and releases.
type countingArena struct {
	allocs, releases atomic.Int32
}

func (c *countingArena) Allocate(params, returns int) *cdts.Block {
	c.allocs.Add(1)
	return &cdts.Block{Params: make([]cdts.Value, params), Returns: make([]cdts.Value, returns)}
}

func (c *countingArena) Release(*cdts.Block) { c.releases.Add(1) }
