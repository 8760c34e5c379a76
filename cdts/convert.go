package cdts

import (
	"reflect"

	"github.com/wippyai/xcall/errors"
	"github.com/wippyai/xcall/handle"
	"github.com/wippyai/xcall/types"
)

// drainer converts slots back into native Go values.
type drainer struct {
	objects *handle.Table
	phase   errors.Phase
}

// value converts one slot. Scalars come back in their canonical Go type;
// arrays become nested typed slices, one level per dimension.
func (d drainer) value(v Value, path []string) (any, error) {
	if v.Type.Array {
		a, ok := v.Data.(*Array)
		if !ok {
			if v.Data == nil {
				return nil, nil
			}
			return nil, d.fail(path, v, "array slot does not hold an array")
		}
		rv, err := d.array(a, v.Type, path)
		if err != nil {
			return nil, err
		}
		return rv.Interface(), nil
	}
	return d.scalar(v, path)
}

func (d drainer) fail(path []string, v Value, detail string) error {
	goType := "nil"
	if v.Data != nil {
		goType = reflect.TypeOf(v.Data).String()
	}
	return errors.CoercionFailed(d.phase, path, goType, v.Type.String(), detail)
}

func (d drainer) scalar(v Value, path []string) (any, error) {
	switch v.Type.Kind {
	case types.KindNull:
		return nil, nil
	case types.KindAny:
		return v.Data, nil
	case types.KindHandle:
		var h handle.Handle
		switch x := v.Data.(type) {
		case handle.Handle:
			h = x
		case nil:
		default:
			return nil, d.fail(path, v, "handle slot does not hold a handle")
		}
		if d.objects != nil && d.objects.Owns(h) {
			if obj, ok := d.objects.Get(h); ok {
				return obj, nil
			}
		}
		return h, nil
	}

	// Foreign plugins may write any Go type that converts losslessly.
	c := coercer{phase: d.phase}
	data, _, err := c.scalar(v.Data, v.Type, path)
	return data, err
}

// array builds a reflect slice of the canonical element type for a.
func (d drainer) array(a *Array, declared types.Descriptor, path []string) (reflect.Value, error) {
	if msg := a.checkDepth(declared.Kind); msg != "" {
		return reflect.Value{}, d.fail(path, Value{Type: declared, Data: a}, msg)
	}
	t := d.elemType(declared.Kind)
	for i := 0; i < a.Dims; i++ {
		t = reflect.SliceOf(t)
	}
	return d.fill(a, declared, t, path)
}

func (d drainer) fill(a *Array, declared types.Descriptor, t reflect.Type, path []string) (reflect.Value, error) {
	out := reflect.MakeSlice(t, len(a.Items), len(a.Items))
	for i, item := range a.Items {
		p := appendPath(path, i)

		if t.Elem().Kind() == reflect.Slice && declared.Kind != types.KindAny {
			sub, ok := item.Data.(*Array)
			if !ok {
				if item.Data == nil {
					continue
				}
				return reflect.Value{}, d.fail(p, item, "nested slot does not hold an array")
			}
			rv, err := d.fill(sub, declared, t.Elem(), p)
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(rv)
			continue
		}

		var (
			x   any
			err error
		)
		switch {
		case declared.Kind == types.KindAny:
			x, err = d.value(item, p)
		case declared.Kind == types.KindHandle:
			// Handle arrays stay opaque; objects are not resolved element-wise.
			h, ok := item.Data.(handle.Handle)
			if !ok && item.Data != nil {
				return reflect.Value{}, d.fail(p, item, "handle slot does not hold a handle")
			}
			x = h
		default:
			item.Type = declared.Elem()
			x, err = d.scalar(item, p)
		}
		if err != nil {
			return reflect.Value{}, err
		}
		if x != nil {
			out.Index(i).Set(reflect.ValueOf(x))
		}
	}
	return out, nil
}

func (d drainer) elemType(kind types.Kind) reflect.Type {
	if kind == types.KindHandle {
		return handleType
	}
	return types.GoTypeOf(kind)
}
