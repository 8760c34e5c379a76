package cdts

import (
	"math"
	"reflect"
	"strconv"
	"unicode/utf8"

	"github.com/wippyai/xcall/errors"
	"github.com/wippyai/xcall/handle"
	"github.com/wippyai/xcall/types"
)

var (
	handleType   = reflect.TypeFor[handle.Handle]()
	arrayPtrType = reflect.TypeFor[*Array]()
)

// coercer converts native Go values into slots. objects, when set, receives
// Go values that have no bridge representation and hands back a handle.
type coercer struct {
	objects *handle.Table
	phase   errors.Phase
}

func (c coercer) fail(path []string, v any, d types.Descriptor, detail string) error {
	goType := "nil"
	if v != nil {
		goType = reflect.TypeOf(v).String()
	}
	return errors.CoercionFailed(c.phase, path, goType, d.String(), detail)
}

// value converts v to a slot declared as d.
func (c coercer) value(v any, d types.Descriptor, path []string) (Value, error) {
	if d.Array {
		if v == nil {
			return Value{Type: d, Data: &Array{Dims: 1, Elem: d.Elem()}}, nil
		}
		if a, ok := v.(*Array); ok {
			return c.prebuilt(a, d, path)
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return Value{}, c.fail(path, v, d, "value is not a slice or array")
		}
		a, err := c.array(rv, d, path)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: d, Data: a}, nil
	}

	data, actual, err := c.scalar(v, d, path)
	if err != nil {
		return Value{}, err
	}
	return Value{Type: actual, Data: data}, nil
}

func (c coercer) prebuilt(a *Array, d types.Descriptor, path []string) (Value, error) {
	if d.Kind != types.KindAny && a.Elem.Kind != d.Kind {
		return Value{}, c.fail(path, a, d, "array element type "+a.Elem.String()+" does not match")
	}
	if msg := a.checkDepth(d.Kind); msg != "" {
		return Value{}, c.fail(path, a, d, msg)
	}
	return Value{Type: d, Data: a}, nil
}

// array converts a Go slice or array, recursing into nested slices.
func (c coercer) array(rv reflect.Value, d types.Descriptor, path []string) (*Array, error) {
	n := rv.Len()
	arr := &Array{Items: make([]Value, n)}

	if d.Kind == types.KindAny {
		for i := 0; i < n; i++ {
			item, err := c.value(indirect(rv.Index(i)), types.Any, appendPath(path, i))
			if err != nil {
				return nil, err
			}
			arr.Items[i] = item
		}
		arr.Dims = 1
		arr.Elem = d.Elem()
		return arr, nil
	}

	nested := types.Descriptor{Kind: d.Kind, Array: true, Alias: d.Alias}
	childDims := -1
	for i := 0; i < n; i++ {
		e := rv.Index(i)
		if e.Kind() == reflect.Interface {
			e = e.Elem()
		}
		p := appendPath(path, i)

		if isNested(e, d.Kind) {
			var sub *Array
			if e.Type() == arrayPtrType {
				v, err := c.prebuilt(e.Interface().(*Array), d, p)
				if err != nil {
					return nil, err
				}
				sub = v.Data.(*Array)
			} else {
				var err error
				if sub, err = c.array(e, d, p); err != nil {
					return nil, err
				}
			}
			if childDims == 0 || (childDims > 0 && childDims != sub.Dims) {
				return nil, c.fail(p, e.Interface(), d, "array mixes nesting depths")
			}
			childDims = sub.Dims
			arr.Items[i] = Value{Type: nested, Data: sub}
			continue
		}

		if childDims > 0 {
			return nil, c.fail(p, valueOrNil(e), d, "array mixes nesting depths")
		}
		childDims = 0
		data, actual, err := c.scalar(valueOrNil(e), d.Elem(), p)
		if err != nil {
			return nil, err
		}
		arr.Items[i] = Value{Type: actual, Data: data}
	}

	switch {
	case childDims > 0:
		arr.Dims = childDims + 1
	case childDims == 0:
		arr.Dims = 1
	default:
		arr.Dims = goDepth(rv.Type(), d.Kind)
	}
	if arr.Dims > 1 {
		arr.Elem = nested
	} else {
		arr.Elem = d.Elem()
	}
	return arr, nil
}

// isNested reports whether e is a nested array rather than an element.
// []byte and []rune are elements, not arrays, when the element kind is a string.
func isNested(e reflect.Value, kind types.Kind) bool {
	if !e.IsValid() {
		return false
	}
	if e.Type() == arrayPtrType {
		return true
	}
	if e.Kind() != reflect.Slice && e.Kind() != reflect.Array {
		return false
	}
	if kind.IsString() {
		ek := e.Type().Elem().Kind()
		if ek == reflect.Uint8 || ek == reflect.Int32 {
			return false
		}
	}
	return true
}

// goDepth counts array levels of a Go slice type, for empty arrays whose
// depth cannot be read off their items.
func goDepth(t reflect.Type, kind types.Kind) int {
	depth := 0
	for t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		if depth > 0 && kind.IsString() {
			if ek := t.Elem().Kind(); ek == reflect.Uint8 || ek == reflect.Int32 {
				break
			}
		}
		depth++
		t = t.Elem()
	}
	return max(depth, 1)
}

// scalar converts v to the canonical data of d and returns the descriptor to
// tag the slot with (the inferred one when d is Any).
func (c coercer) scalar(v any, d types.Descriptor, path []string) (any, types.Descriptor, error) {
	switch d.Kind {
	case types.KindNull:
		if v != nil {
			return nil, d, c.fail(path, v, d, "null slot only accepts nil")
		}
		return nil, d, nil

	case types.KindAny:
		return c.infer(v, path)

	case types.KindHandle:
		h, err := c.handle(v, d, path)
		return h, d, err

	case types.KindBool:
		if b, ok := v.(bool); ok {
			return b, d, nil
		}
		return nil, d, c.fail(path, v, d, "value is not a bool")

	case types.KindString8, types.KindString16, types.KindString32:
		switch s := v.(type) {
		case string:
			return s, d, nil
		case []byte:
			return string(s), d, nil
		case []rune:
			return string(s), d, nil
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.String {
			return rv.String(), d, nil
		}
		return nil, d, c.fail(path, v, d, "value is not string-like")

	case types.KindChar8, types.KindChar16, types.KindChar32:
		r, ok := toRune(v)
		if !ok {
			return nil, d, c.fail(path, v, d, "value is not a character")
		}
		switch d.Kind {
		case types.KindChar8:
			if r > math.MaxUint8 {
				return nil, d, c.fail(path, v, d, "character does not fit in 8 bits")
			}
			return uint8(r), d, nil
		case types.KindChar16:
			if r > math.MaxUint16 {
				return nil, d, c.fail(path, v, d, "character does not fit in 16 bits")
			}
			return uint16(r), d, nil
		}
		return r, d, nil
	}

	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, d, c.fail(path, v, d, "nil is not a number")
	}

	switch {
	case d.Kind.IsSigned():
		i, ok := toInt(rv, d.Kind.Bits())
		if !ok {
			return nil, d, c.fail(path, v, d, "value is not representable as "+d.Kind.String())
		}
		switch d.Kind {
		case types.KindInt8:
			return int8(i), d, nil
		case types.KindInt16:
			return int16(i), d, nil
		case types.KindInt32:
			return int32(i), d, nil
		}
		return i, d, nil

	case d.Kind.IsUnsigned():
		u, ok := toUint(rv, d.Kind.Bits())
		if !ok {
			return nil, d, c.fail(path, v, d, "value is not representable as "+d.Kind.String())
		}
		switch d.Kind {
		case types.KindUInt8:
			return uint8(u), d, nil
		case types.KindUInt16:
			return uint16(u), d, nil
		case types.KindUInt32:
			return uint32(u), d, nil
		}
		return u, d, nil

	case d.Kind.IsFloat():
		f, ok := toFloat(rv, d.Kind.Bits())
		if !ok {
			return nil, d, c.fail(path, v, d, "value is not representable as "+d.Kind.String())
		}
		if d.Kind == types.KindFloat32 {
			return float32(f), d, nil
		}
		return f, d, nil
	}

	return nil, d, errors.TypeUnsupported(c.phase, d.String(), "no coercion for kind")
}

func (c coercer) handle(v any, d types.Descriptor, path []string) (handle.Handle, error) {
	switch h := v.(type) {
	case nil:
		return handle.Handle{}, nil
	case handle.Handle:
		return h, nil
	case *handle.Handle:
		if h == nil {
			return handle.Handle{}, nil
		}
		return *h, nil
	case handle.Holder:
		return h.ForeignHandle(), nil
	}
	if c.objects == nil {
		return handle.Handle{}, c.fail(path, v, d, "value is not a handle")
	}
	h := c.objects.Insert(v)
	if h.IsZero() {
		return handle.Handle{}, errors.Closed(c.phase, "object table")
	}
	return h, nil
}

// infer picks a descriptor for a value bound to an Any slot.
func (c coercer) infer(v any, path []string) (any, types.Descriptor, error) {
	switch x := v.(type) {
	case nil:
		return nil, types.Null, nil
	case handle.Handle, *handle.Handle, handle.Holder:
		h, err := c.handle(v, types.Handle, path)
		return h, types.Handle, err
	case *Array:
		d := types.Descriptor{Kind: x.Elem.Kind, Array: true, Alias: x.Elem.Alias}
		if msg := x.checkDepth(d.Kind); msg != "" {
			return nil, d, c.fail(path, v, d, msg)
		}
		return x, d, nil
	case int:
		return int64(x), types.Int64, nil
	case uint:
		return uint64(x), types.UInt64, nil
	case []byte:
		val, err := c.value(x, types.UInt8Array, path)
		return val.Data, types.UInt8Array, err
	}

	rv := reflect.ValueOf(v)
	d := types.FromGoType(rv.Type())
	if d.Kind == types.KindHandle {
		h, err := c.handle(v, d, path)
		return h, types.Handle, err
	}
	if d.Array {
		val, err := c.value(v, d, path)
		if err != nil {
			return nil, d, err
		}
		return val.Data, d, nil
	}
	data, _, err := c.scalar(v, d, path)
	return data, d, err
}

func toRune(v any) (rune, bool) {
	if s, ok := v.(string); ok {
		if utf8.RuneCountInString(s) != 1 {
			return 0, false
		}
		r, _ := utf8.DecodeRuneInString(s)
		return r, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return 0, false
	}
	i, ok := toInt(rv, 32)
	if !ok || i < 0 || i > utf8.MaxRune {
		return 0, false
	}
	return rune(i), true
}

func toInt(rv reflect.Value, bits int) (int64, bool) {
	lo, hi := int64(-1)<<(bits-1), int64(1)<<(bits-1)-1
	if bits == 64 {
		lo, hi = math.MinInt64, math.MaxInt64
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i := rv.Int()
		return i, i >= lo && i <= hi
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		return int64(u), u <= uint64(hi)
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f < float64(lo) || f >= -float64(lo) {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}

func toUint(rv reflect.Value, bits int) (uint64, bool) {
	hi := uint64(math.MaxUint64)
	if bits < 64 {
		hi = uint64(1)<<bits - 1
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i := rv.Int()
		return uint64(i), i >= 0 && uint64(i) <= hi
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		return u, u <= hi
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f < 0 || f >= float64(hi)+1 {
			return 0, false
		}
		return uint64(f), true
	}
	return 0, false
}

func toFloat(rv reflect.Value, bits int) (float64, bool) {
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if bits == 32 && !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
			return 0, false
		}
		return f, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i := rv.Int()
		f := float64(i)
		if bits == 32 {
			f = float64(float32(i))
		}
		return f, int64(f) == i
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		f := float64(u)
		if bits == 32 {
			f = float64(float32(u))
		}
		return f, f < math.MaxUint64 && uint64(f) == u
	}
	return 0, false
}

func indirect(rv reflect.Value) any {
	if rv.Kind() == reflect.Interface && rv.IsNil() {
		return nil
	}
	return rv.Interface()
}

func valueOrNil(rv reflect.Value) any {
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

func appendPath(path []string, i int) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, strconv.Itoa(i))
}
