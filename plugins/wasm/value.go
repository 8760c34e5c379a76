package wasm

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/xcall/cdts"
	"github.com/wippyai/xcall/errors"
	"github.com/wippyai/xcall/types"
)

// valueType returns the wasm value type a descriptor is passed as.
func valueType(d types.Descriptor) (api.ValueType, bool) {
	if d.Array {
		return 0, false
	}
	switch d.Kind {
	case types.KindInt8, types.KindInt16, types.KindInt32,
		types.KindUInt8, types.KindUInt16, types.KindUInt32,
		types.KindBool, types.KindChar8, types.KindChar16, types.KindChar32:
		return api.ValueTypeI32, true
	case types.KindInt64, types.KindUInt64, types.KindSize:
		return api.ValueTypeI64, true
	case types.KindFloat32:
		return api.ValueTypeF32, true
	case types.KindFloat64:
		return api.ValueTypeF64, true
	}
	return 0, false
}

// descriptorOf returns the canonical descriptor of a wasm value type.
func descriptorOf(vt api.ValueType) (types.Descriptor, bool) {
	switch vt {
	case api.ValueTypeI32:
		return types.Int32, true
	case api.ValueTypeI64:
		return types.Int64, true
	case api.ValueTypeF32:
		return types.Float32, true
	case api.ValueTypeF64:
		return types.Float64, true
	}
	return types.Descriptor{}, false
}

func descriptorsOf(vts []api.ValueType) ([]types.Descriptor, bool) {
	out := make([]types.Descriptor, len(vts))
	for i, vt := range vts {
		d, ok := descriptorOf(vt)
		if !ok {
			return nil, false
		}
		out[i] = d
	}
	return out, true
}

// encode reads a parameter slot as a wasm stack value.
func encode(slot cdts.Value, d types.Descriptor) (uint64, error) {
	v, err := cdts.Get(slot)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case int8:
		return api.EncodeI32(int32(x)), nil
	case int16:
		return api.EncodeI32(int32(x)), nil
	case int32:
		return api.EncodeI32(x), nil
	case int64:
		return api.EncodeI64(x), nil
	case uint8:
		return uint64(x), nil
	case uint16:
		return uint64(x), nil
	case uint32:
		return api.EncodeU32(x), nil
	case uint64:
		return x, nil
	case float32:
		return api.EncodeF32(x), nil
	case float64:
		return api.EncodeF64(x), nil
	}
	return 0, errors.CoercionFailed(errors.PhaseDispatch, nil, typeName(v), d.String(), "value has no wasm representation")
}

// decode converts a wasm stack value to the canonical Go value of d.
func decode(u uint64, d types.Descriptor) any {
	switch d.Kind {
	case types.KindInt8:
		return int8(api.DecodeI32(u))
	case types.KindInt16:
		return int16(api.DecodeI32(u))
	case types.KindInt32:
		return api.DecodeI32(u)
	case types.KindUInt8, types.KindChar8:
		return uint8(u)
	case types.KindUInt16, types.KindChar16:
		return uint16(u)
	case types.KindUInt32:
		return api.DecodeU32(u)
	case types.KindChar32:
		return rune(api.DecodeI32(u))
	case types.KindBool:
		return uint32(u) != 0
	case types.KindInt64:
		return int64(u)
	case types.KindFloat32:
		return api.DecodeF32(u)
	case types.KindFloat64:
		return api.DecodeF64(u)
	}
	return u
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
