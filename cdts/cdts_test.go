package cdts

import (
	stderrors "errors"
	"math"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/xcall/errors"
	"github.com/wippyai/xcall/handle"
	"github.com/wippyai/xcall/types"
)

func roundTrip(t *testing.T, m Marshaler, in any, d types.Descriptor) any {
	t.Helper()
	b := DefaultArena.Allocate(1, 1)
	defer DefaultArena.Release(b)

	if err := m.FillParams(b, []any{in}, []types.Descriptor{d}); err != nil {
		t.Fatalf("FillParams(%v as %s): %v", in, d, err)
	}
	b.Returns[0] = b.Params[0]
	out, err := m.DrainReturns(b, []types.Descriptor{d})
	if err != nil {
		t.Fatalf("DrainReturns(%s): %v", d, err)
	}
	return out[0]
}

func TestScalarRoundTrip(t *testing.T) {
	owner := handle.NewRuntimeID()
	tests := []struct {
		name string
		in   any
		d    types.Descriptor
		want any
	}{
		{"float64", 1.5, types.Float64, 1.5},
		{"float32 from int", 3, types.Float32, float32(3)},
		{"int8", int8(-5), types.Int8, int8(-5)},
		{"int16 from int", 300, types.Int16, int16(300)},
		{"int32", int32(math.MaxInt32), types.Int32, int32(math.MaxInt32)},
		{"int64 from int", 42, types.Int64, int64(42)},
		{"uint8", uint8(255), types.UInt8, uint8(255)},
		{"uint16 from int", 65535, types.UInt16, uint16(65535)},
		{"uint32", uint32(7), types.UInt32, uint32(7)},
		{"uint64 from integral float", 8.0, types.UInt64, uint64(8)},
		{"bool", true, types.Bool, true},
		{"char8 from string", "A", types.Char8, uint8('A')},
		{"char16 from rune", 'é', types.Char16, uint16('é')},
		{"char32", '😀', types.Char32, '😀'},
		{"string8", "hello", types.String8, "hello"},
		{"string16 from bytes", []byte("hi"), types.String16, "hi"},
		{"string32 from runes", []rune("ok"), types.String32, "ok"},
		{"size", 12, types.Size, uint64(12)},
		{"null", nil, types.Null, nil},
		{"handle", handle.New(3, owner), types.Handle, handle.New(3, owner)},
		{"zero handle from nil", nil, types.Handle, handle.Handle{}},
		{"any int", 7, types.Any, int64(7)},
		{"any string", "x", types.Any, "x"},
		{"any nil", nil, types.Any, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTrip(t, Marshaler{}, tt.in, tt.d)
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestScalarCoercionFailures(t *testing.T) {
	tests := []struct {
		name string
		in   any
		d    types.Descriptor
	}{
		{"int8 overflow", 200, types.Int8},
		{"uint8 negative", -1, types.UInt8},
		{"uint64 negative", int64(-3), types.UInt64},
		{"int from fraction", 1.5, types.Int64},
		{"float32 overflow", math.MaxFloat64, types.Float32},
		{"bool from int", 1, types.Bool},
		{"string from int", 5, types.String8},
		{"char8 too wide", "€", types.Char8},
		{"char from long string", "ab", types.Char32},
		{"null from value", 0, types.Null},
		{"int from nil", nil, types.Int64},
		{"array from scalar", 3, types.Int64Array},
		{"handle without table", struct{}{}, types.Handle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := DefaultArena.Allocate(1, 0)
			defer DefaultArena.Release(b)
			err := Marshaler{}.FillParams(b, []any{tt.in}, []types.Descriptor{tt.d})
			if !stderrors.Is(err, errors.ErrTypeCoercionFailed) {
				t.Fatalf("expected type_coercion_failed, got %v", err)
			}
			var e *errors.Error
			if !stderrors.As(err, &e) || e.Phase != errors.PhaseMarshal {
				t.Errorf("expected marshal phase, got %v", err)
			}
		})
	}
}

func TestArrayRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   any
		d    types.Descriptor
		want any
	}{
		{"flat ints", []int{1, 2, 3}, types.Int64Array, []int64{1, 2, 3}},
		{"ragged ints", [][]int{{1, 2, 3}, {4}, {5, 6}}, types.Int64Array, [][]int64{{1, 2, 3}, {4}, {5, 6}}},
		{"three levels", [][][]int8{{{1}, {2, 3}}, {}}, types.ArrayOf(types.KindInt8), [][][]int8{{{1}, {2, 3}}, {}}},
		{"go array", [3]float64{1, 2, 3}, types.Float64Array, []float64{1, 2, 3}},
		{"bytes", []byte{0, 1, 255}, types.UInt8Array, []uint8{0, 1, 255}},
		{"strings", []string{"a", "bc"}, types.String8Array, []string{"a", "bc"}},
		{"byte strings", [][]byte{[]byte("a"), []byte("bc")}, types.String8Array, []string{"a", "bc"}},
		{"empty", []int{}, types.Int64Array, []int64{}},
		{"empty nested", [][]int{}, types.Int64Array, [][]int64{}},
		{"any items", []any{1, "two", []int{3}}, types.AnyArray, []any{int64(1), "two", []int64{3}}},
		{"interface nesting", []any{[]any{1, 2}, []any{3}}, types.Int64Array, [][]int64{{1, 2}, {3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTrip(t, Marshaler{}, tt.in, tt.d)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestArrayDims(t *testing.T) {
	b := DefaultArena.Allocate(1, 0)
	defer DefaultArena.Release(b)

	err := Marshaler{}.FillParams(b, []any{[][]int{{1, 2, 3}, {4}, {5, 6}}}, []types.Descriptor{types.Int64Array})
	if err != nil {
		t.Fatal(err)
	}
	a := b.Params[0].Data.(*Array)
	if a.Dims != 2 || a.Len() != 3 {
		t.Fatalf("dims=%d len=%d, want 2 and 3", a.Dims, a.Len())
	}
	if !a.Elem.Array || a.Elem.Kind != types.KindInt64 {
		t.Errorf("outer elem = %s", a.Elem)
	}
	lens := []int{}
	for _, item := range a.Items {
		lens = append(lens, item.Data.(*Array).Len())
	}
	if diff := cmp.Diff([]int{3, 1, 2}, lens); diff != "" {
		t.Errorf("inner lengths (-want +got):\n%s", diff)
	}
}

func TestArrayMixedDepth(t *testing.T) {
	b := DefaultArena.Allocate(1, 0)
	defer DefaultArena.Release(b)

	err := Marshaler{}.FillParams(b, []any{[]any{1, []int{2}}}, []types.Descriptor{types.Int64Array})
	if !stderrors.Is(err, errors.ErrTypeCoercionFailed) {
		t.Fatalf("expected coercion failure for mixed depth, got %v", err)
	}
	var e *errors.Error
	stderrors.As(err, &e)
	if diff := cmp.Diff([]string{"param", "0", "1"}, e.Path); diff != "" {
		t.Errorf("path (-want +got):\n%s", diff)
	}
}

func TestArrayDepthChecked(t *testing.T) {
	inner := &Array{Dims: 1, Elem: types.Int64, Items: []Value{Scalar(types.Int64, int64(1))}}
	tests := []struct {
		name     string
		a        *Array
		declared types.Descriptor
	}{
		{"any array claiming two levels", &Array{Dims: 2, Elem: types.AnyArray, Items: []Value{{Type: types.Int64Array, Data: inner}}}, types.AnyArray},
		{"depth beyond items", &Array{Dims: 2, Elem: types.Int64Array, Items: []Value{Scalar(types.Int64, int64(1))}}, types.Int64Array},
		{"nested depth off by one", &Array{Dims: 3, Elem: types.Int64Array, Items: []Value{{Type: types.Int64Array, Data: inner}}}, types.Int64Array},
		{"empty array too deep", &Array{Dims: 1 << 20, Elem: types.Int64Array}, types.Int64Array},
		{"no dimensions", &Array{Elem: types.Int64}, types.Int64Array},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := DefaultArena.Allocate(0, 1)
			defer DefaultArena.Release(b)

			err := Marshaler{}.FillReturns(b, []any{tt.a}, []types.Descriptor{tt.declared})
			if !stderrors.Is(err, errors.ErrTypeCoercionFailed) {
				t.Errorf("FillReturns: expected coercion failure, got %v", err)
			}

			// plugins may also write slots directly
			b.Returns[0] = Value{Type: tt.declared, Data: tt.a}
			_, err = Marshaler{}.DrainReturns(b, []types.Descriptor{tt.declared})
			if !stderrors.Is(err, errors.ErrTypeCoercionFailed) {
				t.Errorf("DrainReturns: expected coercion failure, got %v", err)
			}
		})
	}
}

func TestAnyArrayHoldsNestedArrays(t *testing.T) {
	b := DefaultArena.Allocate(0, 1)
	defer DefaultArena.Release(b)

	inner := &Array{Dims: 1, Elem: types.Int64, Items: []Value{Scalar(types.Int64, int64(1)), Scalar(types.Int64, int64(2))}}
	a := &Array{Dims: 1, Elem: types.Any, Items: []Value{{Type: types.Int64Array, Data: inner}, Scalar(types.String8, "x")}}
	if err := (Marshaler{}).FillReturns(b, []any{a}, []types.Descriptor{types.AnyArray}); err != nil {
		t.Fatal(err)
	}
	out, err := Marshaler{}.DrainReturns(b, []types.Descriptor{types.AnyArray})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]any{[]any{[]int64{1, 2}, "x"}}, out); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

type widget struct{ name string }

func TestObjectsBecomeHandles(t *testing.T) {
	table := handle.NewTable(handle.NewRuntimeID())
	m := Marshaler{Objects: table}
	w := &widget{name: "w"}

	b := DefaultArena.Allocate(1, 1)
	defer DefaultArena.Release(b)
	if err := m.FillParams(b, []any{w}, []types.Descriptor{types.Handle}); err != nil {
		t.Fatal(err)
	}
	h, ok := b.Params[0].Data.(handle.Handle)
	if !ok || !table.Owns(h) {
		t.Fatalf("expected host-owned handle, got %#v", b.Params[0].Data)
	}

	b.Returns[0] = b.Params[0]
	out, err := m.DrainReturns(b, []types.Descriptor{types.Handle})
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != w {
		t.Errorf("host-owned handle drained to %#v, want original object", out[0])
	}

	foreign := handle.New(9, handle.NewRuntimeID())
	b.Returns[0] = Scalar(types.Handle, foreign)
	out, err = m.DrainReturns(b, []types.Descriptor{types.Handle})
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != foreign {
		t.Errorf("foreign handle changed to %#v", out[0])
	}
}

func TestFillArity(t *testing.T) {
	b := DefaultArena.Allocate(2, 0)
	defer DefaultArena.Release(b)
	err := Marshaler{}.FillParams(b, []any{1}, []types.Descriptor{types.Int64, types.Int64})
	if !stderrors.Is(err, errors.ErrArityMismatch) {
		t.Fatalf("expected arity mismatch, got %v", err)
	}
}

func TestDrainChecks(t *testing.T) {
	b := DefaultArena.Allocate(0, 1)
	defer DefaultArena.Release(b)

	_, err := Marshaler{}.DrainReturns(b, []types.Descriptor{types.Int64})
	if !stderrors.Is(err, errors.ErrTypeCoercionFailed) {
		t.Errorf("unset slot: expected coercion failure, got %v", err)
	}

	b.Returns[0] = Scalar(types.String8, "x")
	_, err = Marshaler{}.DrainReturns(b, []types.Descriptor{types.Int64})
	if !stderrors.Is(err, errors.ErrSignatureMismatch) {
		t.Errorf("wrong tag: expected signature mismatch, got %v", err)
	}

	b.Returns[0] = Scalar(types.String8, "x")
	out, err := Marshaler{}.DrainReturns(b, []types.Descriptor{types.Any})
	if err != nil || out[0] != "x" {
		t.Errorf("any slot: got %v, %v", out, err)
	}

	// Plugins may answer with any losslessly convertible Go type.
	b.Returns[0] = Scalar(types.Int64, int32(5))
	out, err = Marshaler{}.DrainReturns(b, []types.Descriptor{types.Int64})
	if err != nil || out[0] != int64(5) {
		t.Errorf("normalization: got %v, %v", out, err)
	}
}

func TestSetGet(t *testing.T) {
	var slot Value
	if err := Set(&slot, []int{1, 2}, types.Int64Array); err != nil {
		t.Fatal(err)
	}
	v, err := Get(slot)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{1, 2}, v); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if _, err := Get(Value{}); err == nil {
		t.Error("Get on an unset slot should fail")
	}
}

func TestPoolArena(t *testing.T) {
	a := NewPoolArena()
	b := a.Allocate(2, 3)
	if len(b.Params) != 2 || len(b.Returns) != 3 {
		t.Fatalf("sizes = %d/%d", len(b.Params), len(b.Returns))
	}
	b.Params[0] = Scalar(types.Int64, int64(1))
	a.Release(b)

	b = a.Allocate(1, 0)
	if b.Params[0].IsSet() {
		t.Error("recycled block leaked a previous slot")
	}
	a.Release(b)
	a.Release(nil)
}

func TestAssignTo(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"int from int64", int64(5), 5},
		{"float32 from float64", 1.5, float32(1.5)},
		{"nested slices", [][]int64{{1}, {2, 3}}, [][]int{{1}, {2, 3}}},
		{"bytes from string", "ab", []byte("ab")},
		{"nil to zero", nil, ""},
		{"any slice", []any{int64(1), int64(2)}, []int32{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AssignTo(tt.in, reflect.TypeOf(tt.want))
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got.Interface()); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}

	if _, err := AssignTo(int64(300), reflect.TypeFor[int8]()); err == nil {
		t.Error("expected overflow error")
	}
	if _, err := AssignTo("x", reflect.TypeFor[int]()); err == nil {
		t.Error("expected type error")
	}
}
