package gohost

import (
	"context"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/wippyai/xcall/cdts"
	"github.com/wippyai/xcall/entity"
	"github.com/wippyai/xcall/errors"
	"github.com/wippyai/xcall/handle"
	"github.com/wippyai/xcall/plugin"
	"github.com/wippyai/xcall/types"
)

// releaseName is the builtin callable that drops an object handle.
const releaseName = "release"

// Plugin is one loaded instance of a gohost runtime. Objects created by its
// callables live in its own handle table and are released on unload.
type Plugin struct {
	reg     *Registry
	env     plugin.Env
	objects *handle.Table
	logger  *zap.Logger
}

var _ plugin.Plugin = (*Plugin)(nil)

// New creates a plugin instance over reg.
func New(reg *Registry, env plugin.Env) *Plugin {
	l := env.Logger
	if l == nil {
		l = Logger()
	}
	return &Plugin{
		reg:     reg,
		env:     env,
		objects: handle.NewTable(env.RuntimeID),
		logger:  l.With(zap.String("plugin", env.Name)),
	}
}

// Objects returns the table of objects owned by this instance.
func (p *Plugin) Objects() *handle.Table { return p.objects }

// Load implements plugin.Plugin.
func (p *Plugin) Load(context.Context) error {
	p.logger.Debug("gohost loaded", zap.Int("modules", p.reg.Modules()))
	return nil
}

// Unload implements plugin.Plugin.
func (p *Plugin) Unload(context.Context) error {
	n := p.objects.Len()
	if err := p.objects.Close(); err != nil {
		return err
	}
	p.logger.Debug("gohost unloaded", zap.Int("released_objects", n))
	return nil
}

// call is a binding body working on drained arguments.
type call func(ctx context.Context, args []any) ([]any, error)

// Resolve implements plugin.Plugin.
func (p *Plugin) Resolve(_ context.Context, req plugin.ResolveRequest) (plugin.Context, error) {
	mod, ok := p.reg.lookup(req.ModulePath)
	if !ok {
		return nil, errors.BindingNotFound(req.ModulePath, req.Entity.String())
	}
	path := req.Entity

	var (
		fn  call
		err error
	)
	switch {
	case path.Category == entity.CategoryCallable && path.Has(entity.InstanceRequired):
		if path.Name == releaseName {
			return p.releaseBinding(req)
		}
		fn, err = p.methodBinding(req)

	case path.Category == entity.CategoryCallable:
		rv, found := p.reg.function(mod, path.Name)
		if !found {
			return nil, errors.BindingNotFound(req.ModulePath, path.String())
		}
		var gf *goFunc
		if gf, err = bindFunc(rv.Type(), path, req.Params, req.Returns); err == nil {
			fn = func(ctx context.Context, args []any) ([]any, error) {
				return p.invoke(ctx, rv, gf, args)
			}
		}

	case path.Has(entity.InstanceRequired):
		fn, err = p.memberBinding(req)

	default:
		fn, err = p.globalBinding(mod, req)
	}
	if err != nil {
		return nil, err
	}

	p.logger.Debug("binding resolved", zap.String("module", req.ModulePath), zap.Stringer("entity", path))
	return p.context(req, fn), nil
}

// context adapts fn to the transfer block. Panics in Go code are reported as
// failures of the call.
func (p *Plugin) context(req plugin.ResolveRequest, fn call) plugin.Context {
	m := cdts.Marshaler{Objects: p.objects}
	return plugin.ContextFunc(func(ctx context.Context, b *cdts.Block) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in %s: %v", req.Entity.Name, r)
			}
		}()

		var args []any
		if len(req.Params) > 0 {
			if args, err = m.DrainParams(b, req.Params); err != nil {
				return err
			}
		}
		out, err := fn(ctx, args)
		if err != nil {
			return err
		}
		if len(req.Returns) == 0 {
			return nil
		}
		return m.FillReturns(b, out, req.Returns)
	})
}

// releaseBinding binds the builtin release. The handle is read from the slot
// directly because draining would replace it with its object.
func (p *Plugin) releaseBinding(req plugin.ResolveRequest) (plugin.Context, error) {
	if len(req.Params) != 1 || len(req.Returns) != 0 || req.Params[0] != types.Handle {
		return nil, errors.SignatureMismatch(errors.PhaseResolve, req.Entity.String(), "release takes one handle and returns nothing")
	}
	return plugin.ContextFunc(func(_ context.Context, b *cdts.Block) error {
		h, ok := b.Params[0].Data.(handle.Handle)
		if !ok {
			return fmt.Errorf("release: slot does not hold a handle")
		}
		if _, ok := p.objects.Release(h); !ok {
			return fmt.Errorf("release: unknown object %s", h)
		}
		return nil
	}), nil
}

// methodBinding binds a method looked up on the instance at call time.
func (p *Plugin) methodBinding(req plugin.ResolveRequest) (call, error) {
	path := req.Entity
	_, member := path.Split()
	if member == "" {
		return nil, errors.MalformedSpec(path.String(), "method name is empty")
	}
	return func(ctx context.Context, args []any) ([]any, error) {
		obj, err := p.object(args[0])
		if err != nil {
			return nil, err
		}
		rv := reflect.ValueOf(obj).MethodByName(member)
		if !rv.IsValid() {
			return nil, fmt.Errorf("%T has no method %s", obj, member)
		}
		gf, err := bindFunc(rv.Type(), path, req.Params[1:], req.Returns)
		if err != nil {
			return nil, err
		}
		return p.invoke(ctx, rv, gf, args[1:])
	}, nil
}

// object returns the Go value behind v. Objects owned by this instance have
// already been resolved by draining; host objects are read through the host
// when it allows it.
func (p *Plugin) object(v any) (any, error) {
	h, ok := v.(handle.Handle)
	if !ok {
		if v == nil {
			return nil, fmt.Errorf("instance is null")
		}
		return v, nil
	}
	if obj, ok := p.objects.Get(h); ok {
		return obj, nil
	}
	if src, ok := p.env.Host.(plugin.ObjectSource); ok {
		if obj, ok := src.Object(h); ok {
			return obj, nil
		}
	}
	return nil, fmt.Errorf("unknown object %s", h)
}
