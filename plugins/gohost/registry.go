package gohost

import (
	"reflect"
	"sync"

	"github.com/wippyai/xcall/errors"
	"github.com/wippyai/xcall/plugin"
)

// Registry holds the Go modules a gohost plugin exposes. One registry may
// back any number of plugin instances; registration after load is visible to
// bindings resolved afterwards.
type Registry struct {
	modules map[string]*module
	mu      sync.RWMutex
}

type module struct {
	funcs   map[string]reflect.Value
	globals map[string]reflect.Value
	// guards the values behind globals
	mu sync.RWMutex
}

// ExplicitRegistrar lets a host value name its callables instead of having
// every exported method registered under its Go name.
type ExplicitRegistrar interface {
	Register() map[string]any
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]*module)}
}

func (r *Registry) module(path string) *module {
	m := r.modules[path]
	if m == nil {
		m = &module{
			funcs:   make(map[string]reflect.Value),
			globals: make(map[string]reflect.Value),
		}
		r.modules[path] = m
	}
	return m
}

func (r *Registry) lookup(path string) (*module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[path]
	return m, ok
}

func (r *Registry) function(m *module, name string) (reflect.Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := m.funcs[name]
	return fn, ok
}

func (r *Registry) global(m *module, name string) (reflect.Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ptr, ok := m.globals[name]
	return ptr, ok
}

// RegisterFunc exposes fn as callable name of modulePath. Constructors are
// registered as "<init>" or "<Type>.<init>".
func (r *Registry) RegisterFunc(modulePath, name string, fn any) error {
	if modulePath == "" {
		return errors.InvalidInput(errors.PhaseConfig, "module path cannot be empty")
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseConfig, "function name cannot be empty")
	}
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			GoType(typeName(fn)).
			Detail("handler must be a function").
			Build()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.module(modulePath).funcs[name] = rv
	return nil
}

// RegisterHost exposes the exported methods of h as callables of
// modulePath, named after the methods. Hosts implementing ExplicitRegistrar
// choose their own names.
func (r *Registry) RegisterHost(modulePath string, h any) error {
	if modulePath == "" {
		return errors.InvalidInput(errors.PhaseConfig, "module path cannot be empty")
	}
	if h == nil {
		return errors.InvalidInput(errors.PhaseConfig, "host cannot be nil")
	}

	if er, ok := h.(ExplicitRegistrar); ok {
		for name, fn := range er.Register() {
			if err := r.RegisterFunc(modulePath, name, fn); err != nil {
				return err
			}
		}
		return nil
	}

	rv := reflect.ValueOf(h)
	rt := rv.Type()

	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.module(modulePath)
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() {
			continue
		}
		m.funcs[method.Name] = rv.Method(i)
	}
	return nil
}

// RegisterGlobal exposes the variable ptr points to as global name of
// modulePath. Static fields and attributes resolve against globals too.
func (r *Registry) RegisterGlobal(modulePath, name string, ptr any) error {
	if modulePath == "" || name == "" {
		return errors.InvalidInput(errors.PhaseConfig, "module path and global name cannot be empty")
	}
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			GoType(typeName(ptr)).
			Detail("global must be a non-nil pointer").
			Build()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.module(modulePath).globals[name] = rv
	return nil
}

// Modules returns the number of registered modules.
func (r *Registry) Modules() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules)
}

// Factory returns a plugin factory serving this registry.
func (r *Registry) Factory() plugin.Factory {
	return func(env plugin.Env) (plugin.Plugin, error) {
		return New(r, env), nil
	}
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}
