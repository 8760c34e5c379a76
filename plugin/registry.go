package plugin

import (
	"context"
	stderrors "errors"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/xcall/errors"
	"github.com/wippyai/xcall/handle"
)

// Registry is the reference-counted table of runtime plugins, keyed by name.
// Load and Release are serialized per name; distinct names never block
// each other while a plugin initializes or tears down.
type Registry struct {
	entries  map[string]*entry
	host     Host
	logger   *zap.Logger
	onUnload []func(name string)
	mu       sync.RWMutex
}

type entry struct {
	factory Factory
	plugin  Plugin
	name    string
	id      handle.RuntimeID
	refs    int
	mu      sync.Mutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithHost sets the host handed to every plugin in its Env.
func WithHost(h Host) Option {
	return func(r *Registry) { r.host = h }
}

// WithLogger sets the logger handed to plugins and used by the registry.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{entries: make(map[string]*entry)}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = Logger()
	}
	return r
}

// Register adds a factory under name. A name can be registered again only
// while it is not loaded.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return errors.InvalidInput(errors.PhaseLoad, "plugin name and factory are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[name]; ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.refs > 0 {
			return errors.InvalidInput(errors.PhaseLoad, "plugin "+name+" is loaded and cannot be replaced")
		}
		e.factory = f
		return nil
	}
	r.entries[name] = &entry{name: name, factory: f}
	return nil
}

// OnUnload registers fn to run after a plugin is torn down.
func (r *Registry) OnUnload(fn func(name string)) {
	r.mu.Lock()
	r.onUnload = append(r.onUnload, fn)
	r.mu.Unlock()
}

func (r *Registry) lookup(name string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.PluginUnknown(name)
	}
	return e, nil
}

// Load increments the reference count of name, creating and loading the
// plugin on the 0 to 1 transition. A failed initialization leaves the count
// at zero.
func (r *Registry) Load(ctx context.Context, name string) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.refs > 0 {
		e.refs++
		r.logger.Debug("plugin referenced", zap.String("plugin", name), zap.Int("refs", e.refs))
		return nil
	}

	id := handle.NewRuntimeID()
	p, err := e.factory(Env{
		Name:      name,
		RuntimeID: id,
		Host:      r.host,
		Logger:    r.logger.Named(name),
	})
	if err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "create plugin "+name)
	}
	if err := p.Load(ctx); err != nil {
		return loadError(err)
	}

	e.plugin, e.id, e.refs = p, id, 1
	r.logger.Info("plugin loaded", zap.String("plugin", name), zap.Uint64("runtime_id", uint64(id)))
	return nil
}

// Release decrements the reference count of name and unloads the plugin on
// the 1 to 0 transition. Releasing a name that is not loaded fails with
// PluginNotLoaded.
func (r *Registry) Release(ctx context.Context, name string) error {
	e, err := r.lookup(name)
	if err != nil {
		return errors.PluginNotLoaded(errors.PhaseLoad, name)
	}

	e.mu.Lock()
	if e.refs == 0 {
		e.mu.Unlock()
		return errors.PluginNotLoaded(errors.PhaseLoad, name)
	}
	if e.refs > 1 {
		e.refs--
		r.logger.Debug("plugin dereferenced", zap.String("plugin", name), zap.Int("refs", e.refs))
		e.mu.Unlock()
		return nil
	}
	err = r.teardown(ctx, e)
	e.mu.Unlock()

	r.notifyUnload(name)
	return err
}

// teardown unloads e. The caller holds e.mu.
func (r *Registry) teardown(ctx context.Context, e *entry) error {
	p := e.plugin
	e.plugin, e.id, e.refs = nil, 0, 0

	if err := p.Unload(ctx); err != nil {
		r.logger.Warn("plugin unload failed", zap.String("plugin", e.name), zap.Error(err))
		return loadError(err)
	}
	r.logger.Info("plugin unloaded", zap.String("plugin", e.name))
	return nil
}

// loadError tags a plugin's own load or unload failure. Untyped errors come
// from the foreign runtime and keep their text verbatim.
func loadError(err error) error {
	if errors.KindOf(err) != "" {
		return errors.WithPhase(err, errors.PhaseLoad)
	}
	return errors.Wrap(errors.PhaseLoad, errors.KindForeignCallFailed, err, err.Error())
}

func (r *Registry) notifyUnload(name string) {
	r.mu.RLock()
	hooks := slices.Clone(r.onUnload)
	r.mu.RUnlock()
	for _, fn := range hooks {
		fn(name)
	}
}

// Get returns the loaded plugin registered under name and the runtime id it
// was loaded with.
func (r *Registry) Get(name string) (Plugin, handle.RuntimeID, error) {
	e, err := r.lookup(name)
	if err != nil {
		return nil, 0, errors.PluginNotLoaded(errors.PhaseResolve, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.refs == 0 {
		return nil, 0, errors.PluginNotLoaded(errors.PhaseResolve, name)
	}
	return e.plugin, e.id, nil
}

// RefCount returns the current reference count of name.
func (r *Registry) RefCount(name string) int {
	e, err := r.lookup(name)
	if err != nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refs
}

// Names returns every registered name in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Close unloads every loaded plugin regardless of its reference count.
func (r *Registry) Close(ctx context.Context) error {
	var errs []error
	for _, name := range r.Names() {
		e, err := r.lookup(name)
		if err != nil {
			continue
		}
		e.mu.Lock()
		loaded := e.refs > 0
		if loaded {
			if err := r.teardown(ctx, e); err != nil {
				errs = append(errs, err)
			}
		}
		e.mu.Unlock()
		if loaded {
			r.notifyUnload(name)
		}
	}
	return stderrors.Join(errs...)
}
