package gohost

import (
	"context"
	"fmt"
	"reflect"

	"github.com/wippyai/xcall/cdts"
	"github.com/wippyai/xcall/entity"
	"github.com/wippyai/xcall/errors"
	"github.com/wippyai/xcall/handle"
	"github.com/wippyai/xcall/types"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// goFunc maps the declared parameters of a binding onto a Go function.
//
// Foreign order is: explicit parameters, varargs handle, named_args handle.
// Go order is: optional context, explicit parameters, named_args map,
// varargs slice (last so it may be variadic).
type goFunc struct {
	t       reflect.Type
	fixed   []reflect.Type
	named   reflect.Type
	rest    reflect.Type
	withCtx bool
	withErr bool
}

// bindFunc checks Go function type ft against the declared signature of
// path. params excludes the instance handle.
func bindFunc(ft reflect.Type, path entity.Path, params, returns []types.Descriptor) (*goFunc, error) {
	spec := path.String()
	gf := &goFunc{t: ft}

	in := make([]reflect.Type, 0, ft.NumIn())
	for i := 0; i < ft.NumIn(); i++ {
		in = append(in, ft.In(i))
	}
	if len(in) > 0 && in[0] == contextType {
		gf.withCtx = true
		in = in[1:]
	}

	if path.Has(entity.Varargs) {
		if len(in) == 0 || in[len(in)-1].Kind() != reflect.Slice {
			return nil, errors.SignatureMismatch(errors.PhaseResolve, spec, "varargs needs a trailing slice parameter in "+ft.String())
		}
		gf.rest = in[len(in)-1]
		in = in[:len(in)-1]
	} else if ft.IsVariadic() {
		return nil, errors.SignatureMismatch(errors.PhaseResolve, spec, "variadic "+ft.String()+" must be bound with varargs")
	}
	if path.Has(entity.NamedArgs) {
		if len(in) == 0 || in[len(in)-1].Kind() != reflect.Map || in[len(in)-1].Key().Kind() != reflect.String {
			return nil, errors.SignatureMismatch(errors.PhaseResolve, spec, "named_args needs a string-keyed map parameter in "+ft.String())
		}
		gf.named = in[len(in)-1]
		in = in[:len(in)-1]
	}

	explicit := params[:len(params)-path.ExtraParams()]
	if len(in) != len(explicit) {
		return nil, errors.SignatureMismatch(errors.PhaseResolve, spec,
			fmt.Sprintf("%s takes %d parameters, declared %d", ft, len(in), len(explicit)))
	}
	for i, t := range in {
		if !paramCompatible(explicit[i], t) {
			return nil, errors.SignatureMismatch(errors.PhaseResolve, spec,
				fmt.Sprintf("parameter %d: %s cannot receive %s", i, t, explicit[i]))
		}
	}
	gf.fixed = in

	out := make([]reflect.Type, 0, ft.NumOut())
	for i := 0; i < ft.NumOut(); i++ {
		out = append(out, ft.Out(i))
	}
	if len(out) > 0 && out[len(out)-1] == errorType {
		gf.withErr = true
		out = out[:len(out)-1]
	}
	if len(out) != len(returns) {
		return nil, errors.SignatureMismatch(errors.PhaseResolve, spec,
			fmt.Sprintf("%s returns %d values, declared %d", ft, len(out), len(returns)))
	}
	for i, t := range out {
		if !returnCompatible(returns[i], t) {
			return nil, errors.SignatureMismatch(errors.PhaseResolve, spec,
				fmt.Sprintf("return %d: %s cannot be sent as %s", i, t, returns[i]))
		}
	}
	return gf, nil
}

func (gf *goFunc) results(rs []reflect.Value) ([]any, error) {
	if gf.withErr {
		if err, _ := rs[len(rs)-1].Interface().(error); err != nil {
			return nil, err
		}
		rs = rs[:len(rs)-1]
	}
	out := make([]any, len(rs))
	for i, r := range rs {
		out[i] = r.Interface()
	}
	return out, nil
}

// invoke calls fn with drained args laid out per gf.
func (p *Plugin) invoke(ctx context.Context, fn reflect.Value, gf *goFunc, args []any) ([]any, error) {
	argv := make([]reflect.Value, 0, gf.t.NumIn())
	if gf.withCtx {
		argv = append(argv, reflect.ValueOf(&ctx).Elem())
	}
	for i, t := range gf.fixed {
		v, err := p.arg(ctx, args[i], t)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		argv = append(argv, v)
	}

	k := len(gf.fixed)
	var rest []any
	if gf.rest != nil {
		var err error
		if rest, err = p.list(args[k]); err != nil {
			return nil, err
		}
		k++
	}
	if gf.named != nil {
		kw, err := p.dict(args[k])
		if err != nil {
			return nil, err
		}
		v, err := toMap(kw, gf.named)
		if err != nil {
			return nil, fmt.Errorf("named_args: %w", err)
		}
		argv = append(argv, v)
	}

	var results []reflect.Value
	if gf.rest != nil {
		v, err := cdts.AssignTo(rest, gf.rest)
		if err != nil {
			return nil, fmt.Errorf("varargs: %w", err)
		}
		argv = append(argv, v)
		if gf.t.IsVariadic() {
			results = fn.CallSlice(argv)
		} else {
			results = fn.Call(argv)
		}
	} else {
		results = fn.Call(argv)
	}
	return gf.results(results)
}

// arg converts one drained argument to t. Host callables bind to func
// parameters and handles to objects readable by this plugin are dereferenced.
func (p *Plugin) arg(ctx context.Context, v any, t reflect.Type) (reflect.Value, error) {
	h, isHandle := v.(handle.Handle)
	if !isHandle || t == handleType {
		return cdts.AssignTo(v, t)
	}
	if h.IsZero() {
		return reflect.Zero(t), nil
	}
	if t.Kind() == reflect.Func && p.env.Host != nil {
		if _, ok := p.env.Host.Signature(h); ok {
			return p.callback(ctx, h, t)
		}
	}
	obj, err := p.object(h)
	if err != nil {
		return reflect.Value{}, err
	}
	return cdts.AssignTo(obj, t)
}

var handleType = reflect.TypeFor[handle.Handle]()

// list reads the ordered collection passed for varargs.
func (p *Plugin) list(v any) ([]any, error) {
	v, err := p.collection(v)
	if err != nil || v == nil {
		return nil, err
	}
	rv := reflect.ValueOf(v)
	if k := rv.Kind(); k != reflect.Slice && k != reflect.Array {
		return nil, fmt.Errorf("varargs: %T is not a list", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

// dict reads the string-keyed collection passed for named_args.
func (p *Plugin) dict(v any) (map[string]any, error) {
	v, err := p.collection(v)
	if err != nil || v == nil {
		return map[string]any{}, err
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, fmt.Errorf("named_args: %T is not a string-keyed map", v)
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, nil
}

func (p *Plugin) collection(v any) (any, error) {
	h, ok := v.(handle.Handle)
	if !ok {
		return v, nil
	}
	if h.IsZero() {
		return nil, nil
	}
	return p.object(h)
}

func toMap(kw map[string]any, t reflect.Type) (reflect.Value, error) {
	if reflect.TypeOf(kw).AssignableTo(t) {
		return reflect.ValueOf(kw), nil
	}
	out := reflect.MakeMapWithSize(t, len(kw))
	for k, v := range kw {
		e, err := cdts.AssignTo(v, t.Elem())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%s: %w", k, err)
		}
		out.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), e)
	}
	return out, nil
}

// paramCompatible reports whether Go type t can receive every value of the
// declared kind without loss.
func paramCompatible(d types.Descriptor, t reflect.Type) bool {
	if isEmptyInterface(t) {
		return true
	}
	g := types.FromGoType(t)
	if d.Kind == types.KindAny {
		return !d.Array || g.Array
	}
	if d.Array != g.Array {
		return false
	}
	return holds(g.Kind, d.Kind)
}

// returnCompatible reports whether values of Go type t may be sent as the
// declared kind. Numeric ranges are checked per value when filling.
func returnCompatible(d types.Descriptor, t reflect.Type) bool {
	if isEmptyInterface(t) || d.Kind == types.KindAny {
		return true
	}
	g := types.FromGoType(t)
	if d.Array != g.Array {
		return false
	}
	switch {
	case g.Kind == d.Kind:
		return true
	case d.Kind.IsString():
		return g.Kind.IsString()
	case isNumeric(d.Kind):
		return isNumeric(g.Kind)
	}
	return false
}

// holds reports whether Go kind g holds every value of declared kind d.
func holds(g, d types.Kind) bool {
	switch {
	case g == d:
		return true
	case d.IsString():
		return g.IsString()
	case d.IsChar():
		return (g.IsSigned() || g.IsUnsigned()) && g.Bits() >= d.Bits()
	case d.IsSigned():
		return g.IsSigned() && g.Bits() >= d.Bits()
	case d.IsUnsigned():
		return (g.IsUnsigned() && g.Bits() >= d.Bits()) || (g.IsSigned() && g.Bits() > d.Bits())
	case d.IsFloat():
		return g.IsFloat() && g.Bits() >= d.Bits()
	}
	return false
}

func isNumeric(k types.Kind) bool {
	return k.IsSigned() || k.IsUnsigned() || k.IsFloat() || k.IsChar()
}

func isEmptyInterface(t reflect.Type) bool {
	return t.Kind() == reflect.Interface && t.NumMethod() == 0
}
