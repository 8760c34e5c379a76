package runtime

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/xcall/entity"
	"github.com/wippyai/xcall/errors"
	"github.com/wippyai/xcall/handle"
	"github.com/wippyai/xcall/plugin"
	"github.com/wippyai/xcall/types"
)

// Resolver turns entity paths into CallContexts and caches them per plugin
// instance, module, entity and signature.
type Resolver struct {
	registry *plugin.Registry
	cache    map[cacheKey]*CallContext
	logger   *zap.Logger
	mu       sync.RWMutex
}

type cacheKey struct {
	plugin  string
	module  string
	entity  string
	params  string
	returns string
	target  handle.RuntimeID
}

// NewResolver creates a resolver over reg. Cached bindings of a plugin are
// dropped when the registry tears it down.
func NewResolver(reg *plugin.Registry, l *zap.Logger) *Resolver {
	if l == nil {
		l = Logger()
	}
	r := &Resolver{
		registry: reg,
		cache:    make(map[cacheKey]*CallContext),
		logger:   l,
	}
	reg.OnUnload(r.Forget)
	return r
}

// Resolve binds entitySpec in module of the named plugin. The plugin must
// be loaded. Resolution makes one round trip into the plugin; repeated
// requests for the same binding are served from the cache.
func (r *Resolver) Resolve(ctx context.Context, pluginName, module, entitySpec string, params, returns []types.Descriptor) (*CallContext, error) {
	p, target, err := r.registry.Get(pluginName)
	if err != nil {
		return nil, err
	}

	path, err := entity.Parse(entitySpec)
	if err != nil {
		return nil, err
	}
	for _, d := range slices.Concat(params, returns) {
		if !d.Valid() {
			return nil, errors.MalformedSpec(d.String(), "invalid type descriptor")
		}
	}
	if err := path.CheckShape(len(params), len(returns)); err != nil {
		return nil, err
	}

	key := cacheKey{
		plugin:  pluginName,
		module:  module,
		entity:  path.String(),
		params:  types.Join(params),
		returns: types.Join(returns),
		target:  target,
	}
	r.mu.RLock()
	cc, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		r.logger.Debug("binding cache hit", zap.Stringer("binding", cc))
		return cc, nil
	}

	native, err := p.Resolve(ctx, plugin.ResolveRequest{
		ModulePath: module,
		Entity:     path,
		Params:     slices.Clone(params),
		Returns:    slices.Clone(returns),
	})
	if err != nil {
		return nil, resolveError(err, module, path)
	}
	if native == nil {
		return nil, errors.BindingNotFound(module, path.String())
	}

	cc = &CallContext{
		native:  native,
		plugin:  pluginName,
		module:  module,
		entity:  path,
		params:  slices.Clone(params),
		returns: slices.Clone(returns),
		target:  target,
	}

	r.mu.Lock()
	if cached, ok := r.cache[key]; ok {
		cc = cached
	} else {
		r.cache[key] = cc
	}
	r.mu.Unlock()

	r.logger.Debug("binding resolved", zap.Stringer("binding", cc))
	return cc, nil
}

// resolveError keeps typed plugin errors and reports untyped ones as a
// missing binding.
func resolveError(err error, module string, path entity.Path) error {
	if errors.KindOf(err) != "" {
		return errors.WithPhase(err, errors.PhaseResolve)
	}
	e := errors.BindingNotFound(module, path.String())
	e.Cause = err
	return e
}

// Forget drops every cached binding of pluginName.
func (r *Resolver) Forget(pluginName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k := range r.cache {
		if k.plugin == pluginName {
			delete(r.cache, k)
			n++
		}
	}
	if n > 0 {
		r.logger.Debug("bindings forgotten", zap.String("plugin", pluginName), zap.Int("count", n))
	}
}

// Len returns the number of cached bindings.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
