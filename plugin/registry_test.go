package plugin

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/xcall/cdts"
	"github.com/wippyai/xcall/errors"
)

type fakePlugin struct {
	loads, unloads *atomic.Int32
	loadErr        error
}

func (p *fakePlugin) Load(context.Context) error {
	if p.loadErr != nil {
		return p.loadErr
	}
	p.loads.Add(1)
	return nil
}

func (p *fakePlugin) Unload(context.Context) error {
	p.unloads.Add(1)
	return nil
}

func (p *fakePlugin) Resolve(context.Context, ResolveRequest) (Context, error) {
	return nil, errors.BindingNotFound("", "")
}

type counters struct {
	created, loads, unloads atomic.Int32
}

func (c *counters) factory(loadErr error) Factory {
	return func(env Env) (Plugin, error) {
		c.created.Add(1)
		return &fakePlugin{loads: &c.loads, unloads: &c.unloads, loadErr: loadErr}, nil
	}
}

func TestRegistry_RefCounting(t *testing.T) {
	ctx := context.Background()
	var c counters
	reg := NewRegistry()
	if err := reg.Register("jvm", c.factory(nil)); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := reg.Load(ctx, "jvm"); err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
	}
	if c.loads.Load() != 1 || reg.RefCount("jvm") != 2 {
		t.Fatalf("loads=%d refs=%d, want 1 and 2", c.loads.Load(), reg.RefCount("jvm"))
	}

	if err := reg.Release(ctx, "jvm"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := reg.Get("jvm"); err != nil {
		t.Fatalf("plugin should stay loaded with one reference: %v", err)
	}
	if c.unloads.Load() != 0 {
		t.Fatal("unloaded too early")
	}

	if err := reg.Release(ctx, "jvm"); err != nil {
		t.Fatal(err)
	}
	if c.unloads.Load() != 1 {
		t.Fatalf("unloads = %d, want 1", c.unloads.Load())
	}

	err := reg.Release(ctx, "jvm")
	if !stderrors.Is(err, errors.ErrPluginNotLoaded) {
		t.Fatalf("release at zero: got %v, want plugin_not_loaded", err)
	}
	if _, _, err := reg.Get("jvm"); !stderrors.Is(err, errors.ErrPluginNotLoaded) {
		t.Fatalf("Get after unload: %v", err)
	}
}

func TestRegistry_ReloadGetsNewRuntimeID(t *testing.T) {
	ctx := context.Background()
	var c counters
	reg := NewRegistry()
	reg.Register("py", c.factory(nil))

	reg.Load(ctx, "py")
	_, first, _ := reg.Get("py")
	reg.Release(ctx, "py")
	reg.Load(ctx, "py")
	_, second, _ := reg.Get("py")

	if first == 0 || first == second {
		t.Errorf("runtime ids %d and %d; each load must mint a fresh one", first, second)
	}
	if c.created.Load() != 2 {
		t.Errorf("factory called %d times, want 2", c.created.Load())
	}
}

func TestRegistry_Errors(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()

	if err := reg.Load(ctx, "missing"); !stderrors.Is(err, errors.ErrPluginUnknown) {
		t.Errorf("Load unknown: %v", err)
	}
	if err := reg.Release(ctx, "missing"); !stderrors.Is(err, errors.ErrPluginNotLoaded) {
		t.Errorf("Release unknown: %v", err)
	}
	if err := reg.Register("", nil); !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Register empty: %v", err)
	}

	var c counters
	reg.Register("broken", c.factory(fmt.Errorf("libjvm.so: cannot open shared object file")))
	err := reg.Load(ctx, "broken")
	if msg, ok := errors.ForeignMessage(err); !ok || msg != "libjvm.so: cannot open shared object file" {
		t.Errorf("load failure = %v", err)
	}
	if reg.RefCount("broken") != 0 {
		t.Error("failed load must leave the count at zero")
	}

	reg.Register("busy", c.factory(nil))
	reg.Load(ctx, "busy")
	if err := reg.Register("busy", c.factory(nil)); !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("replacing a loaded plugin: %v", err)
	}
}

func TestRegistry_IsolatedInstances(t *testing.T) {
	ctx := context.Background()
	var c counters
	a, b := NewRegistry(), NewRegistry()
	a.Register("go", c.factory(nil))
	b.Register("go", c.factory(nil))

	a.Load(ctx, "go")
	if b.RefCount("go") != 0 {
		t.Error("registries share state")
	}
}

func TestRegistry_ConcurrentLoadRelease(t *testing.T) {
	ctx := context.Background()
	var c counters
	reg := NewRegistry()
	reg.Register("wasm", c.factory(nil))

	var g errgroup.Group
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			if err := reg.Load(ctx, "wasm"); err != nil {
				return err
			}
			return reg.Release(ctx, "wasm")
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if reg.RefCount("wasm") != 0 {
		t.Errorf("refs = %d after balanced calls", reg.RefCount("wasm"))
	}
	if c.loads.Load() != c.unloads.Load() {
		t.Errorf("loads=%d unloads=%d", c.loads.Load(), c.unloads.Load())
	}
}

func TestRegistry_CloseAndHooks(t *testing.T) {
	ctx := context.Background()
	var c counters
	reg := NewRegistry()
	reg.Register("a", c.factory(nil))
	reg.Register("b", c.factory(nil))
	reg.Register("c", c.factory(nil))

	var mu sync.Mutex
	var unloaded []string
	reg.OnUnload(func(name string) {
		mu.Lock()
		unloaded = append(unloaded, name)
		mu.Unlock()
	})

	reg.Load(ctx, "a")
	reg.Load(ctx, "a")
	reg.Load(ctx, "c")

	if err := reg.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a", "c"}, unloaded); diff != "" {
		t.Errorf("unloaded (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, reg.Names()); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
	if reg.RefCount("a") != 0 {
		t.Error("Close must drop every reference")
	}
}

func TestContextFunc(t *testing.T) {
	calls := 0
	var ctxFn Context = ContextFunc(func(_ context.Context, _ *cdts.Block) error {
		calls++
		return nil
	})
	ctx := context.Background()
	ctxFn.CallParamsRet(ctx, nil)
	ctxFn.CallParamsNoRet(ctx, nil)
	ctxFn.CallNoParamsRet(ctx, nil)
	ctxFn.CallNoParamsNoRet(ctx)
	if calls != 4 {
		t.Errorf("calls = %d", calls)
	}
}
