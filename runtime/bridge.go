package runtime

import (
	"context"
	stderrors "errors"

	"github.com/wippyai/xcall/plugin"
	"github.com/wippyai/xcall/types"
)

// Bridge wires a host, a plugin registry and a resolver together. It is an
// explicit object; nothing in the bridge is process-global.
type Bridge struct {
	host     *Host
	registry *plugin.Registry
	resolver *Resolver
	opts     []Option
}

// NewBridge creates a bridge with a fresh host and an empty registry.
func NewBridge(opts ...Option) *Bridge {
	o := buildOptions(opts)
	host := NewHost(opts...)
	reg := plugin.NewRegistry(plugin.WithHost(host), plugin.WithLogger(o.logger))
	return &Bridge{
		host:     host,
		registry: reg,
		resolver: NewResolver(reg, o.logger),
		opts:     opts,
	}
}

// Host returns the host runtime.
func (b *Bridge) Host() *Host { return b.host }

// Registry returns the plugin registry.
func (b *Bridge) Registry() *plugin.Registry { return b.registry }

// Resolver returns the binding resolver.
func (b *Bridge) Resolver() *Resolver { return b.resolver }

// Resolve resolves a binding and wraps it in a Caller.
func (b *Bridge) Resolve(ctx context.Context, pluginName, module, entitySpec string, params, returns []types.Descriptor) (*Caller, error) {
	cc, err := b.resolver.Resolve(ctx, pluginName, module, entitySpec, params, returns)
	if err != nil {
		return nil, err
	}
	return NewCaller(cc, b.host, b.opts...), nil
}

// Runtime returns a front-end for the named plugin. Front-ends are cheap;
// any number of them may reference the same plugin.
func (b *Bridge) Runtime(pluginName string) *Runtime {
	return &Runtime{bridge: b, name: pluginName}
}

// Close unloads every plugin and releases every host object.
func (b *Bridge) Close(ctx context.Context) error {
	return stderrors.Join(b.registry.Close(ctx), b.host.Close())
}

// Runtime is a front-end bound to one plugin name.
type Runtime struct {
	bridge *Bridge
	name   string
}

// Name returns the plugin name.
func (r *Runtime) Name() string { return r.name }

// LoadRuntimePlugin takes a reference on the plugin, loading it if needed.
func (r *Runtime) LoadRuntimePlugin(ctx context.Context) error {
	return r.bridge.registry.Load(ctx, r.name)
}

// ReleaseRuntimePlugin drops a reference on the plugin.
func (r *Runtime) ReleaseRuntimePlugin(ctx context.Context) error {
	return r.bridge.registry.Release(ctx, r.name)
}

// LoadModule returns a handle on a module of the plugin. The module is not
// contacted until an entity is loaded from it.
func (r *Runtime) LoadModule(path string) *Module {
	return &Module{runtime: r, path: path}
}

// Module is a module path within a plugin.
type Module struct {
	runtime *Runtime
	path    string
}

// Path returns the module path.
func (m *Module) Path() string { return m.path }

// Load resolves entitySpec with the given signature and returns a Caller.
func (m *Module) Load(ctx context.Context, entitySpec string, params, returns []types.Descriptor) (*Caller, error) {
	return m.runtime.bridge.Resolve(ctx, m.runtime.name, m.path, entitySpec, params, returns)
}
