package types

import "reflect"

// FromGoType maps a Go type to the descriptor a value of that type would be
// bridged as. Slices and arrays of any depth map to an array of their leaf
// element kind; []byte is uint8[]. Empty interfaces are Any; structs,
// pointers, maps, funcs, channels and non-empty interfaces are Handle.
func FromGoType(t reflect.Type) Descriptor {
	if t == nil {
		return Null
	}

	array := false
	for t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		array = true
		t = t.Elem()
	}

	d := Descriptor{Array: array}
	switch t.Kind() {
	case reflect.Float64:
		d.Kind = KindFloat64
	case reflect.Float32:
		d.Kind = KindFloat32
	case reflect.Int8:
		d.Kind = KindInt8
	case reflect.Int16:
		d.Kind = KindInt16
	case reflect.Int32:
		d.Kind = KindInt32
	case reflect.Int64, reflect.Int:
		d.Kind = KindInt64
	case reflect.Uint8:
		d.Kind = KindUInt8
	case reflect.Uint16:
		d.Kind = KindUInt16
	case reflect.Uint32:
		d.Kind = KindUInt32
	case reflect.Uint64, reflect.Uint:
		d.Kind = KindUInt64
	case reflect.Uintptr:
		d.Kind = KindSize
	case reflect.Bool:
		d.Kind = KindBool
	case reflect.String:
		d.Kind = KindString8
	case reflect.Interface:
		if t.NumMethod() == 0 {
			d.Kind = KindAny
		} else {
			d.Kind = KindHandle
		}
	default:
		d.Kind = KindHandle
	}
	return d
}

// GoTypeOf returns the Go type a scalar of kind drains to. Handle maps to
// nil because its Go type lives in package handle.
func GoTypeOf(kind Kind) reflect.Type {
	switch kind {
	case KindFloat64:
		return reflect.TypeFor[float64]()
	case KindFloat32:
		return reflect.TypeFor[float32]()
	case KindInt8:
		return reflect.TypeFor[int8]()
	case KindInt16:
		return reflect.TypeFor[int16]()
	case KindInt32:
		return reflect.TypeFor[int32]()
	case KindInt64:
		return reflect.TypeFor[int64]()
	case KindUInt8, KindChar8:
		return reflect.TypeFor[uint8]()
	case KindUInt16, KindChar16:
		return reflect.TypeFor[uint16]()
	case KindUInt32:
		return reflect.TypeFor[uint32]()
	case KindUInt64, KindSize:
		return reflect.TypeFor[uint64]()
	case KindChar32:
		return reflect.TypeFor[rune]()
	case KindBool:
		return reflect.TypeFor[bool]()
	case KindString8, KindString16, KindString32:
		return reflect.TypeFor[string]()
	case KindAny, KindNull:
		return reflect.TypeFor[any]()
	}
	return nil
}
