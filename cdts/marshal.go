package cdts

import (
	"strconv"

	"github.com/wippyai/xcall/errors"
	"github.com/wippyai/xcall/handle"
	"github.com/wippyai/xcall/types"
)

// Marshaler moves native Go values in and out of blocks.
//
// Objects, when set, is the host object table: Go values bound to a Handle
// or Any slot that have no bridge representation are inserted and passed as
// handles, and handles owned by the table drain back to their objects.
type Marshaler struct {
	Objects *handle.Table
}

// FillParams writes args into the parameter slots of b.
func (m Marshaler) FillParams(b *Block, args []any, declared []types.Descriptor) error {
	return m.fill(b.Params, args, declared, "param")
}

// FillReturns writes values into the return slots of b. The foreign side of
// a call (a plugin or an exported host callable) uses it to answer.
func (m Marshaler) FillReturns(b *Block, values []any, declared []types.Descriptor) error {
	return m.fill(b.Returns, values, declared, "return")
}

// DrainParams reads the parameter slots of b as native values.
func (m Marshaler) DrainParams(b *Block, declared []types.Descriptor) ([]any, error) {
	return m.drain(b.Params, declared, "param")
}

// DrainReturns reads the return slots of b as native values.
func (m Marshaler) DrainReturns(b *Block, declared []types.Descriptor) ([]any, error) {
	return m.drain(b.Returns, declared, "return")
}

func (m Marshaler) fill(slots []Value, values []any, declared []types.Descriptor, what string) error {
	if len(values) != len(declared) {
		return errors.ArityMismatch(len(declared), len(values))
	}
	if len(slots) != len(declared) {
		return errors.InvalidInput(errors.PhaseMarshal,
			"block has "+strconv.Itoa(len(slots))+" "+what+" slots, need "+strconv.Itoa(len(declared)))
	}

	c := coercer{objects: m.Objects, phase: errors.PhaseMarshal}
	for i, d := range declared {
		v, err := c.value(values[i], d, []string{what, strconv.Itoa(i)})
		if err != nil {
			return err
		}
		if d.Alias != "" && v.Type.Alias == "" {
			v.Type.Alias = d.Alias
		}
		slots[i] = v
	}
	return nil
}

func (m Marshaler) drain(slots []Value, declared []types.Descriptor, what string) ([]any, error) {
	if len(slots) != len(declared) {
		return nil, errors.New(errors.PhaseUnmarshal, errors.KindSignatureMismatch).
			Detail("block has %d %s slots, declared %d", len(slots), what, len(declared)).
			Build()
	}

	d := drainer{objects: m.Objects, phase: errors.PhaseUnmarshal}
	out := make([]any, len(slots))
	for i, slot := range slots {
		path := []string{what, strconv.Itoa(i)}
		if !slot.IsSet() {
			return nil, errors.CoercionFailed(errors.PhaseUnmarshal, path, "nil", declared[i].String(), "slot was not written")
		}
		if !declared[i].Accepts(slot.Type) {
			return nil, errors.New(errors.PhaseUnmarshal, errors.KindSignatureMismatch).
				Path(path...).
				XType(declared[i].String()).
				Detail("slot holds %s", slot.Type).
				Build()
		}
		v, err := d.value(slot, path)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Scalar builds a slot for data already in the canonical representation of d.
func Scalar(d types.Descriptor, data any) Value {
	return Value{Type: d, Data: data}
}

// Set coerces v to d and stores it in *slot. Plugins use it to answer single
// return slots without going through FillReturns.
func Set(slot *Value, v any, d types.Descriptor) error {
	val, err := coercer{phase: errors.PhaseMarshal}.value(v, d, nil)
	if err != nil {
		return err
	}
	*slot = val
	return nil
}

// Get converts a single slot to its native Go value.
func Get(slot Value) (any, error) {
	if !slot.IsSet() {
		return nil, errors.CoercionFailed(errors.PhaseUnmarshal, nil, "nil", "", "slot was not written")
	}
	return drainer{phase: errors.PhaseUnmarshal}.value(slot, nil)
}
