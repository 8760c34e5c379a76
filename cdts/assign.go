package cdts

import (
	"fmt"
	"reflect"
)

// AssignTo converts a drained value to Go type t, for binding drained
// arguments to typed Go function parameters. Numbers convert between Go
// numeric types when the value survives the round trip, nested slices are
// rebuilt element by element, and nil becomes the zero value of t.
func AssignTo(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(rv)
		return out, nil
	}

	switch t.Kind() {
	case reflect.Slice:
		if rv.Kind() == reflect.String && (t.Elem().Kind() == reflect.Uint8 || t.Elem().Kind() == reflect.Int32) {
			return rv.Convert(t), nil
		}
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			break
		}
		out := reflect.MakeSlice(t, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			e, err := AssignTo(valueOrNil(rv.Index(i)), t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			out.Index(i).Set(e)
		}
		return out, nil

	case reflect.Array:
		if rv.Kind() != reflect.Slice || rv.Len() != t.Len() {
			break
		}
		out := reflect.New(t).Elem()
		for i := 0; i < rv.Len(); i++ {
			e, err := AssignTo(valueOrNil(rv.Index(i)), t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			out.Index(i).Set(e)
		}
		return out, nil

	case reflect.String:
		if rv.Kind() == reflect.String {
			return rv.Convert(t), nil
		}
		if r, ok := v.(rune); ok {
			return reflect.ValueOf(string(r)).Convert(t), nil
		}

	case reflect.Bool:
		if rv.Kind() == reflect.Bool {
			return rv.Convert(t), nil
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		if !isNumber(rv.Kind()) {
			break
		}
		out := rv.Convert(t)
		if isFloat(rv.Kind()) && isFloat(t.Kind()) {
			return out, nil
		}
		if out.Convert(rv.Type()).Interface() != rv.Interface() {
			return reflect.Value{}, fmt.Errorf("%v overflows %s", v, t)
		}
		return out, nil

	case reflect.Interface:
		if rv.Type().Implements(t) {
			out := reflect.New(t).Elem()
			out.Set(rv)
			return out, nil
		}
	}

	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, t)
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}
