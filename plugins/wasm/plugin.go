package wasm

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/xcall/cdts"
	"github.com/wippyai/xcall/entity"
	"github.com/wippyai/xcall/errors"
	"github.com/wippyai/xcall/plugin"
	"github.com/wippyai/xcall/types"
)

// Config holds configuration for a wasm plugin.
type Config struct {
	// Modules maps module paths to .wasm files.
	Modules map[string]string

	// Sources maps module paths to module bytes. Sources win over Modules.
	Sources map[string][]byte

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32
}

// Factory returns a plugin factory for cfg.
func Factory(cfg Config) plugin.Factory {
	return func(env plugin.Env) (plugin.Plugin, error) {
		return New(cfg, env), nil
	}
}

// Constructor builds wasm plugins from configuration files.
func Constructor(_ string, pc plugin.PluginConfig) (plugin.Factory, error) {
	return Factory(Config{Modules: pc.Modules, MemoryLimitPages: pc.MemoryLimitPages}), nil
}

// Plugin runs WebAssembly modules with wazero. Each module path is compiled
// and instantiated once, on first resolve.
type Plugin struct {
	cfg     Config
	logger  *zap.Logger
	runtime wazero.Runtime
	modules map[string]*instance
	mu      sync.Mutex
}

var (
	_ plugin.Plugin = (*Plugin)(nil)
	_ plugin.Lister = (*Plugin)(nil)
)

// instance is one instantiated module. Calls into it are serialized.
type instance struct {
	mod api.Module
	mu  sync.Mutex
}

// New creates a wasm plugin. The wazero runtime is created on Load.
func New(cfg Config, env plugin.Env) *Plugin {
	l := env.Logger
	if l == nil {
		l = Logger()
	}
	return &Plugin{
		cfg:     cfg,
		logger:  l.With(zap.String("plugin", env.Name)),
		modules: make(map[string]*instance),
	}
}

// Load implements plugin.Plugin.
func (p *Plugin) Load(ctx context.Context) error {
	rc := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if p.cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(p.cfg.MemoryLimitPages)
	}
	p.runtime = wazero.NewRuntimeWithConfig(ctx, rc)
	p.logger.Debug("wasm runtime created", zap.Uint32("memory_limit_pages", p.cfg.MemoryLimitPages))
	return nil
}

// Unload implements plugin.Plugin. Closing the runtime closes every module.
func (p *Plugin) Unload(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modules = make(map[string]*instance)
	if p.runtime == nil {
		return nil
	}
	rt := p.runtime
	p.runtime = nil
	return rt.Close(ctx)
}

// Resolve implements plugin.Plugin.
func (p *Plugin) Resolve(ctx context.Context, req plugin.ResolveRequest) (plugin.Context, error) {
	for _, d := range append(append([]types.Descriptor{}, req.Params...), req.Returns...) {
		if _, ok := valueType(d); !ok {
			return nil, errors.TypeUnsupported(errors.PhaseResolve, d.String(), "wasm values are numeric scalars")
		}
	}

	inst, err := p.instance(ctx, req.ModulePath)
	if err != nil {
		return nil, err
	}

	path := req.Entity
	switch path.Category {
	case entity.CategoryCallable:
		return p.function(inst, req)
	case entity.CategoryGlobal:
		return p.global(inst, req)
	}
	return nil, errors.BindingNotFound(req.ModulePath, path.String())
}

// Exports implements plugin.Lister. Function exports are described with the
// canonical descriptors of their value types; exports that use reference
// types are left out.
func (p *Plugin) Exports(ctx context.Context, modulePath string) ([]plugin.Export, error) {
	inst, err := p.instance(ctx, modulePath)
	if err != nil {
		return nil, err
	}

	var out []plugin.Export
	for name, def := range inst.mod.ExportedFunctionDefinitions() {
		params, ok := descriptorsOf(def.ParamTypes())
		if !ok {
			continue
		}
		returns, ok := descriptorsOf(def.ResultTypes())
		if !ok {
			continue
		}
		out = append(out, plugin.Export{Name: name, Signature: plugin.Signature{Params: params, Returns: returns}})
	}
	slices.SortFunc(out, func(a, b plugin.Export) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (p *Plugin) instance(ctx context.Context, modulePath string) (*instance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.runtime == nil {
		return nil, errors.Closed(errors.PhaseResolve, "wasm runtime")
	}
	if inst, ok := p.modules[modulePath]; ok {
		return inst, nil
	}

	code, ok := p.cfg.Sources[modulePath]
	if !ok {
		file, found := p.cfg.Modules[modulePath]
		if !found {
			return nil, errors.BindingNotFound(modulePath, "")
		}
		var err error
		if code, err = os.ReadFile(file); err != nil {
			return nil, errors.Wrap(errors.PhaseResolve, errors.KindBindingNotFound, err, "cannot read "+file)
		}
	}

	compiled, err := p.runtime.CompileModule(ctx, code)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseResolve, errors.KindBindingNotFound, err, fmt.Sprintf("module %s does not compile", modulePath))
	}
	// anonymous so the same bytes may back several module paths
	mod, err := p.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseResolve, errors.KindBindingNotFound, err, fmt.Sprintf("module %s does not instantiate", modulePath))
	}

	inst := &instance{mod: mod}
	p.modules[modulePath] = inst
	p.logger.Debug("module instantiated", zap.String("module", modulePath), zap.Int("size", len(code)))
	return inst, nil
}

func (p *Plugin) function(inst *instance, req plugin.ResolveRequest) (plugin.Context, error) {
	path := req.Entity
	spec := path.String()
	if path.Modifiers != 0 {
		return nil, errors.SignatureMismatch(errors.PhaseResolve, spec, "wasm exports take no instance or collection parameters")
	}

	fn := inst.mod.ExportedFunction(path.Name)
	if fn == nil {
		return nil, errors.BindingNotFound(req.ModulePath, spec)
	}
	def := fn.Definition()
	if err := matchTypes(spec, "parameter", def.ParamTypes(), req.Params); err != nil {
		return nil, err
	}
	if err := matchTypes(spec, "result", def.ResultTypes(), req.Returns); err != nil {
		return nil, err
	}

	params, returns := req.Params, req.Returns
	stack := make([]uint64, max(len(params), len(returns)))
	return plugin.ContextFunc(func(ctx context.Context, b *cdts.Block) error {
		inst.mu.Lock()
		defer inst.mu.Unlock()

		for i, d := range params {
			u, err := encode(b.Params[i], d)
			if err != nil {
				return err
			}
			stack[i] = u
		}
		if err := fn.CallWithStack(ctx, stack); err != nil {
			return err
		}
		for i, d := range returns {
			if err := cdts.Set(&b.Returns[i], decode(stack[i], d), d); err != nil {
				return err
			}
		}
		return nil
	}), nil
}

func (p *Plugin) global(inst *instance, req plugin.ResolveRequest) (plugin.Context, error) {
	path := req.Entity
	spec := path.String()

	g := inst.mod.ExportedGlobal(path.Name)
	if g == nil {
		return nil, errors.BindingNotFound(req.ModulePath, spec)
	}

	if path.Has(entity.Getter) {
		d := req.Returns[0]
		if err := matchTypes(spec, "global", []api.ValueType{g.Type()}, req.Returns); err != nil {
			return nil, err
		}
		return plugin.ContextFunc(func(_ context.Context, b *cdts.Block) error {
			inst.mu.Lock()
			u := g.Get()
			inst.mu.Unlock()
			return cdts.Set(&b.Returns[0], decode(u, d), d)
		}), nil
	}

	mg, ok := g.(api.MutableGlobal)
	if !ok {
		return nil, errors.SignatureMismatch(errors.PhaseResolve, spec, "global is immutable")
	}
	d := req.Params[0]
	if err := matchTypes(spec, "global", []api.ValueType{g.Type()}, req.Params); err != nil {
		return nil, err
	}
	return plugin.ContextFunc(func(_ context.Context, b *cdts.Block) error {
		u, err := encode(b.Params[0], d)
		if err != nil {
			return err
		}
		inst.mu.Lock()
		mg.Set(u)
		inst.mu.Unlock()
		return nil
	}), nil
}

func matchTypes(spec, what string, want []api.ValueType, declared []types.Descriptor) error {
	if len(want) != len(declared) {
		return errors.SignatureMismatch(errors.PhaseResolve, spec,
			fmt.Sprintf("export has %d %s values, declared %d", len(want), what, len(declared)))
	}
	for i, vt := range want {
		got, _ := valueType(declared[i])
		if got != vt {
			return errors.SignatureMismatch(errors.PhaseResolve, spec,
				fmt.Sprintf("%s %d is %s, declared %s", what, i, api.ValueTypeName(vt), declared[i]))
		}
	}
	return nil
}
