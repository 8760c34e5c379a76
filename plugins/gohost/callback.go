package gohost

import (
	"context"
	"fmt"
	"reflect"

	"github.com/wippyai/xcall/cdts"
	"github.com/wippyai/xcall/handle"
	"github.com/wippyai/xcall/plugin"
)

// callback builds a Go function of type t that calls the host callable h.
// A trailing error result receives call failures; without one they panic,
// which the enclosing binding reports as a failed call.
func (p *Plugin) callback(ctx context.Context, h handle.Handle, t reflect.Type) (reflect.Value, error) {
	host := p.env.Host
	sig, _ := host.Signature(h)

	withErr := t.NumOut() > 0 && t.Out(t.NumOut()-1) == errorType
	nout := t.NumOut()
	if withErr {
		nout--
	}
	if t.IsVariadic() || t.NumIn() != len(sig.Params) || nout != len(sig.Returns) {
		return reflect.Value{}, fmt.Errorf("callable %s does not fit %s", h, t)
	}

	m := cdts.Marshaler{Objects: p.objects}
	fn := reflect.MakeFunc(t, func(in []reflect.Value) []reflect.Value {
		args := make([]any, len(in))
		for i, v := range in {
			args[i] = v.Interface()
		}
		out, err := invokeCallable(ctx, host, m, h, sig, args)

		results := make([]reflect.Value, t.NumOut())
		for i := 0; i < nout; i++ {
			results[i] = reflect.Zero(t.Out(i))
			if err != nil {
				continue
			}
			var v reflect.Value
			if v, err = cdts.AssignTo(out[i], t.Out(i)); err == nil {
				results[i] = v
			}
		}
		if withErr {
			ev := reflect.New(errorType).Elem()
			if err != nil {
				ev.Set(reflect.ValueOf(err))
			}
			results[nout] = ev
		} else if err != nil {
			panic(err)
		}
		return results
	})
	return fn, nil
}

func invokeCallable(ctx context.Context, host plugin.Host, m cdts.Marshaler, h handle.Handle, sig plugin.Signature, args []any) ([]any, error) {
	var b *cdts.Block
	if len(sig.Params) > 0 || len(sig.Returns) > 0 {
		b = cdts.DefaultArena.Allocate(len(sig.Params), len(sig.Returns))
		defer cdts.DefaultArena.Release(b)
	}
	if len(sig.Params) > 0 {
		if err := m.FillParams(b, args, sig.Params); err != nil {
			return nil, err
		}
	}
	if err := host.InvokeCallable(ctx, h, b); err != nil {
		return nil, err
	}
	if len(sig.Returns) == 0 {
		return nil, nil
	}
	return m.DrainReturns(b, sig.Returns)
}
