package cdts

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/wippyai/xcall/handle"
	"github.com/wippyai/xcall/types"
)

// Slots travel between processes as CBOR. Encoding is canonical so the same
// block always produces the same bytes.
var wireEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cdts: failed to create CBOR enc mode: %v", err))
	}
	wireEncMode = em
}

type wireValue struct {
	Type      types.ID        `cbor:"1,keyasint"`
	Alias     string          `cbor:"2,keyasint,omitempty"`
	Data      cbor.RawMessage `cbor:"3,keyasint,omitempty"`
	Items     []wireValue     `cbor:"4,keyasint,omitempty"`
	Elem      types.ID        `cbor:"5,keyasint,omitempty"`
	ElemAlias string          `cbor:"6,keyasint,omitempty"`
	Dims      int             `cbor:"7,keyasint,omitempty"`
}

type wireBlock struct {
	Params  []wireValue `cbor:"1,keyasint"`
	Returns []wireValue `cbor:"2,keyasint"`
}

// MarshalValues serializes slots to CBOR bytes.
func MarshalValues(vs []Value) ([]byte, error) {
	w, err := toWireList(vs)
	if err != nil {
		return nil, err
	}
	return wireEncMode.Marshal(w)
}

// UnmarshalValues deserializes slots produced by MarshalValues.
func UnmarshalValues(data []byte) ([]Value, error) {
	var w []wireValue
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("cdts: unmarshal values: %w", err)
	}
	return fromWireList(w)
}

// MarshalBlock serializes both slot lists of b.
func MarshalBlock(b *Block) ([]byte, error) {
	params, err := toWireList(b.Params)
	if err != nil {
		return nil, err
	}
	returns, err := toWireList(b.Returns)
	if err != nil {
		return nil, err
	}
	return wireEncMode.Marshal(wireBlock{Params: params, Returns: returns})
}

// UnmarshalBlock decodes data into b, replacing its slots.
func UnmarshalBlock(data []byte, b *Block) error {
	var w wireBlock
	if err := cbor.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("cdts: unmarshal block: %w", err)
	}
	params, err := fromWireList(w.Params)
	if err != nil {
		return err
	}
	returns, err := fromWireList(w.Returns)
	if err != nil {
		return err
	}
	b.Params, b.Returns = params, returns
	return nil
}

func toWireList(vs []Value) ([]wireValue, error) {
	out := make([]wireValue, len(vs))
	for i, v := range vs {
		w, err := toWire(v)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		out[i] = w
	}
	return out, nil
}

func toWire(v Value) (wireValue, error) {
	w := wireValue{Type: v.Type.ID(), Alias: v.Type.Alias}
	if !v.IsSet() {
		w.Type = 0
		return w, nil
	}

	if v.Type.Array {
		a, ok := v.Data.(*Array)
		if !ok {
			return w, fmt.Errorf("cdts: %s slot holds %T", v.Type, v.Data)
		}
		items, err := toWireList(a.Items)
		if err != nil {
			return w, err
		}
		w.Items = items
		w.Elem = a.Elem.ID()
		w.ElemAlias = a.Elem.Alias
		w.Dims = a.Dims
		return w, nil
	}

	data := v.Data
	if h, ok := data.(handle.Handle); ok {
		data = [2]uint64{h.Ref, uint64(h.Owner)}
	}
	if data == nil {
		return w, nil
	}
	raw, err := wireEncMode.Marshal(data)
	if err != nil {
		return w, err
	}
	w.Data = raw
	return w, nil
}

func fromWireList(ws []wireValue) ([]Value, error) {
	out := make([]Value, len(ws))
	for i, w := range ws {
		v, err := fromWire(w)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func fromWire(w wireValue) (Value, error) {
	if w.Type == 0 {
		return Value{}, nil
	}
	if !w.Type.Valid() {
		return Value{}, fmt.Errorf("cdts: invalid type id %d", w.Type)
	}
	d := types.FromID(w.Type).WithAlias(w.Alias)

	if d.Array {
		items, err := fromWireList(w.Items)
		if err != nil {
			return Value{}, err
		}
		a := &Array{
			Items: items,
			Elem:  types.FromID(w.Elem).WithAlias(w.ElemAlias),
			Dims:  w.Dims,
		}
		if msg := a.checkDepth(d.Kind); msg != "" {
			return Value{}, fmt.Errorf("cdts: %s: %s", d, msg)
		}
		return Value{Type: d, Data: a}, nil
	}

	data, err := decodeScalar(d.Kind, w.Data)
	if err != nil {
		return Value{}, fmt.Errorf("cdts: decode %s: %w", d, err)
	}
	return Value{Type: d, Data: data}, nil
}

func decodeScalar(kind types.Kind, raw cbor.RawMessage) (any, error) {
	switch kind {
	case types.KindNull:
		return nil, nil
	case types.KindFloat64:
		return decodeAs[float64](raw)
	case types.KindFloat32:
		return decodeAs[float32](raw)
	case types.KindInt8:
		return decodeAs[int8](raw)
	case types.KindInt16:
		return decodeAs[int16](raw)
	case types.KindInt32:
		return decodeAs[int32](raw)
	case types.KindInt64:
		return decodeAs[int64](raw)
	case types.KindUInt8, types.KindChar8:
		return decodeAs[uint8](raw)
	case types.KindUInt16, types.KindChar16:
		return decodeAs[uint16](raw)
	case types.KindUInt32:
		return decodeAs[uint32](raw)
	case types.KindUInt64, types.KindSize:
		return decodeAs[uint64](raw)
	case types.KindChar32:
		return decodeAs[rune](raw)
	case types.KindBool:
		return decodeAs[bool](raw)
	case types.KindString8, types.KindString16, types.KindString32:
		return decodeAs[string](raw)
	case types.KindHandle:
		if len(raw) == 0 {
			return handle.Handle{}, nil
		}
		pair, err := decodeAs[[2]uint64](raw)
		if err != nil {
			return nil, err
		}
		return handle.New(pair[0], handle.RuntimeID(pair[1])), nil
	}
	return nil, fmt.Errorf("no wire form for %s", kind)
}

func decodeAs[T any](raw cbor.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	err := cbor.Unmarshal(raw, &v)
	return v, err
}
