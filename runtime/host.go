package runtime

import (
	"context"
	"reflect"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/xcall/cdts"
	"github.com/wippyai/xcall/errors"
	"github.com/wippyai/xcall/handle"
	"github.com/wippyai/xcall/plugin"
	"github.com/wippyai/xcall/types"
)

// HostFunc is a host function as seen by the bridge. args are drained
// parameters in declared order; the returned values are filled into the
// return slots in declared order.
type HostFunc func(ctx context.Context, args []any) ([]any, error)

// Callable is an exported host function. It marshals as a Handle owned by
// the host wherever it is passed; a callable handle coming back from a
// foreign runtime drains to a *Callable.
type Callable struct {
	Signature plugin.Signature
	Handle    handle.Handle
}

// ForeignHandle implements handle.Holder.
func (c Callable) ForeignHandle() handle.Handle { return c.Handle }

type export struct {
	fn       HostFunc
	native   plugin.Context
	callable Callable
}

// Host is the host runtime: it owns the table of host objects and exported
// callables and is the re-entry point for foreign code calling back.
type Host struct {
	objects *handle.Table
	exports map[handle.Handle]*export
	logger  *zap.Logger
	mu      sync.RWMutex
	policy  handle.Policy
}

var (
	_ plugin.Host         = (*Host)(nil)
	_ plugin.ObjectSource = (*Host)(nil)
)

// NewHost creates a host runtime with a fresh runtime id.
func NewHost(opts ...Option) *Host {
	o := buildOptions(opts)
	h := &Host{
		objects: handle.NewTable(handle.NewRuntimeID()),
		exports: make(map[handle.Handle]*export),
		logger:  o.logger,
		policy:  o.policy,
	}
	h.objects.Subscribe(h)
	return h
}

// OnHandleEvent drops the export behind a released callable handle.
func (h *Host) OnHandleEvent(ev handle.Event) {
	if ev.Type != handle.EventReleased {
		return
	}
	if _, ok := ev.Value.(*Callable); !ok {
		return
	}
	h.mu.Lock()
	delete(h.exports, ev.Handle)
	h.mu.Unlock()
}

// RuntimeID returns the owner id stamped on host handles.
func (h *Host) RuntimeID() handle.RuntimeID { return h.objects.Owner() }

// Objects returns the host object table.
func (h *Host) Objects() *handle.Table { return h.objects }

// Policy returns the handle policy applied by callers bound to this host.
func (h *Host) Policy() handle.Policy { return h.policy }

// Marshaler returns a marshaler that passes host objects as host handles.
func (h *Host) Marshaler() cdts.Marshaler { return cdts.Marshaler{Objects: h.objects} }

// Export registers fn as a callable with an explicit signature.
func (h *Host) Export(fn HostFunc, sig plugin.Signature) (Callable, error) {
	if fn == nil {
		return Callable{}, errors.InvalidInput(errors.PhaseExport, "host function is nil")
	}
	for _, d := range append(append([]types.Descriptor{}, sig.Params...), sig.Returns...) {
		if !d.Valid() {
			return Callable{}, errors.MalformedSpec(d.String(), "invalid type descriptor")
		}
	}

	c := &Callable{
		Signature: plugin.Signature{
			Params:  append([]types.Descriptor(nil), sig.Params...),
			Returns: append([]types.Descriptor(nil), sig.Returns...),
		},
	}
	e := &export{fn: fn}
	e.native = plugin.ContextFunc(func(ctx context.Context, b *cdts.Block) error {
		return h.run(ctx, e, b)
	})

	h.mu.Lock()
	hnd := h.objects.Insert(c)
	if hnd.IsZero() {
		h.mu.Unlock()
		return Callable{}, errors.Closed(errors.PhaseExport, "host")
	}
	c.Handle = hnd
	e.callable = *c
	h.exports[hnd] = e
	h.mu.Unlock()

	h.logger.Debug("callable exported",
		zap.Stringer("handle", hnd),
		zap.String("params", types.Join(sig.Params)),
		zap.String("returns", types.Join(sig.Returns)))
	return e.callable, nil
}

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// ExportFunc exports a Go function, deriving its signature from the
// function type. A leading context.Context parameter receives the call's
// context and a trailing error result is reported as a failure of the call.
// Variadic functions are not supported.
func (h *Host) ExportFunc(fn any) (Callable, error) {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return Callable{}, errors.New(errors.PhaseExport, errors.KindInvalidInput).
			GoType(typeName(fn)).
			Detail("handler must be a function").
			Build()
	}
	ft := rv.Type()
	if ft.IsVariadic() {
		return Callable{}, errors.New(errors.PhaseExport, errors.KindTypeUnsupported).
			GoType(ft.String()).
			Detail("variadic functions cannot be exported").
			Build()
	}

	in := make([]reflect.Type, 0, ft.NumIn())
	withCtx := ft.NumIn() > 0 && ft.In(0) == contextType
	for i := 0; i < ft.NumIn(); i++ {
		if i == 0 && withCtx {
			continue
		}
		in = append(in, ft.In(i))
	}
	out := make([]reflect.Type, 0, ft.NumOut())
	withErr := ft.NumOut() > 0 && ft.Out(ft.NumOut()-1) == errorType
	for i := 0; i < ft.NumOut(); i++ {
		if i == ft.NumOut()-1 && withErr {
			continue
		}
		out = append(out, ft.Out(i))
	}

	var sig plugin.Signature
	for _, t := range in {
		sig.Params = append(sig.Params, types.FromGoType(t))
	}
	for _, t := range out {
		sig.Returns = append(sig.Returns, types.FromGoType(t))
	}

	call := func(ctx context.Context, args []any) ([]any, error) {
		argv := make([]reflect.Value, 0, ft.NumIn())
		if withCtx {
			argv = append(argv, reflect.ValueOf(ctx))
		}
		for i, t := range in {
			v, err := cdts.AssignTo(args[i], t)
			if err != nil {
				return nil, errors.CoercionFailed(errors.PhaseExport, []string{"param", strconv.Itoa(i)}, typeName(args[i]), sig.Params[i].String(), err.Error())
			}
			argv = append(argv, v)
		}

		results := rv.Call(argv)
		if withErr {
			if err, _ := results[len(results)-1].Interface().(error); err != nil {
				return nil, err
			}
			results = results[:len(results)-1]
		}
		values := make([]any, len(results))
		for i, r := range results {
			values[i] = r.Interface()
		}
		return values, nil
	}
	return h.Export(call, sig)
}

// Unexport releases an exported callable. It reports whether c was exported.
func (h *Host) Unexport(c Callable) bool {
	if _, ok := h.lookup(c.Handle); !ok {
		return false
	}
	_, ok := h.objects.Release(c.Handle)
	return ok
}

// Object implements plugin.ObjectSource.
func (h *Host) Object(hnd handle.Handle) (any, bool) {
	if !h.objects.Owns(hnd) {
		return nil, false
	}
	return h.objects.Get(hnd)
}

// Release drops a host object handle, such as one minted when a Go value
// was passed as a Handle argument.
func (h *Host) Release(hnd handle.Handle) bool {
	_, ok := h.objects.Release(hnd)
	return ok
}

// Signature implements plugin.Host.
func (h *Host) Signature(hnd handle.Handle) (plugin.Signature, bool) {
	e, ok := h.lookup(hnd)
	if !ok {
		return plugin.Signature{}, false
	}
	return e.callable.Signature, true
}

// InvokeCallable implements plugin.Host. It runs the callable behind hnd
// through the same four-shape dispatch a Caller uses, with the host on the
// receiving side.
func (h *Host) InvokeCallable(ctx context.Context, hnd handle.Handle, b *cdts.Block) error {
	e, ok := h.lookup(hnd)
	if !ok {
		return errors.InvalidInput(errors.PhaseExport, "handle "+hnd.String()+" is not an exported callable")
	}
	sig := e.callable.Signature
	shape := ShapeOf(len(sig.Params), len(sig.Returns))

	if shape.NeedsBlock() {
		if b == nil {
			return errors.InvalidInput(errors.PhaseExport, "callable "+hnd.String()+" needs a transfer block")
		}
		if len(b.Params) != len(sig.Params) {
			return errors.ArityMismatch(len(sig.Params), len(b.Params))
		}
		if len(b.Returns) != len(sig.Returns) {
			return errors.SignatureMismatch(errors.PhaseExport, hnd.String(),
				"block has "+strconv.Itoa(len(b.Returns))+" return slots, callable returns "+strconv.Itoa(len(sig.Returns)))
		}
	}
	return dispatchTable[shape](ctx, e.native, b)
}

func (h *Host) run(ctx context.Context, e *export, b *cdts.Block) error {
	sig := e.callable.Signature
	m := h.Marshaler()

	var args []any
	if len(sig.Params) > 0 {
		var err error
		if args, err = m.DrainParams(b, sig.Params); err != nil {
			return err
		}
	}

	out, err := e.fn(ctx, args)
	if err != nil {
		h.logger.Debug("callable failed", zap.Stringer("handle", e.callable.Handle), zap.Error(err))
		return err
	}
	if len(sig.Returns) == 0 {
		return nil
	}
	return m.FillReturns(b, out, sig.Returns)
}

func (h *Host) lookup(hnd handle.Handle) (*export, bool) {
	h.mu.RLock()
	e, ok := h.exports[hnd]
	h.mu.RUnlock()
	return e, ok
}

// Close releases every host object and exported callable.
func (h *Host) Close() error {
	return h.objects.Close()
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}
