// Package types defines the universal type descriptor that tags every value
// crossing the bridge.
//
// A Descriptor is a closed Kind, an array flag and an advisory alias (for
// example a foreign class name). Two descriptors are call-compatible when Kind
// and Array match; the alias never takes part in compatibility.
//
//	types.Int64                  // int64
//	types.ArrayOf(types.KindInt64) // int64[]
//	types.Handle.WithAlias("java.util.HashMap")
//
// Descriptors have a stable integer identity (ID) usable as a map key, a
// textual form accepted by Parse, and a JNI-style signature token form.
package types

import (
	"strings"

	"github.com/wippyai/xcall/errors"
)

// Kind is the primitive shape of a value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindFloat64
	KindFloat32
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUInt8
	KindUInt16
	KindUInt32
	KindUInt64
	KindBool
	KindChar8
	KindChar16
	KindChar32
	KindString8
	KindString16
	KindString32
	KindHandle
	KindAny
	KindNull
	KindSize

	kindCount
)

var kindNames = [kindCount]string{
	KindInvalid:  "invalid",
	KindFloat64:  "float64",
	KindFloat32:  "float32",
	KindInt8:     "int8",
	KindInt16:    "int16",
	KindInt32:    "int32",
	KindInt64:    "int64",
	KindUInt8:    "uint8",
	KindUInt16:   "uint16",
	KindUInt32:   "uint32",
	KindUInt64:   "uint64",
	KindBool:     "bool",
	KindChar8:    "char8",
	KindChar16:   "char16",
	KindChar32:   "char32",
	KindString8:  "string8",
	KindString16: "string16",
	KindString32: "string32",
	KindHandle:   "handle",
	KindAny:      "any",
	KindNull:     "null",
	KindSize:     "size",
}

// Kinds returns every valid kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount-1)
	for k := KindFloat64; k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

func (k Kind) String() string {
	if k >= kindCount {
		return "invalid"
	}
	return kindNames[k]
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k > KindInvalid && k < kindCount
}

// IsSigned reports whether k is a signed integer kind.
func (k Kind) IsSigned() bool {
	return k >= KindInt8 && k <= KindInt64
}

// IsUnsigned reports whether k is an unsigned integer kind, including Size.
func (k Kind) IsUnsigned() bool {
	return (k >= KindUInt8 && k <= KindUInt64) || k == KindSize
}

// IsFloat reports whether k is a floating point kind.
func (k Kind) IsFloat() bool {
	return k == KindFloat64 || k == KindFloat32
}

// IsChar reports whether k is a character kind.
func (k Kind) IsChar() bool {
	return k >= KindChar8 && k <= KindChar32
}

// IsString reports whether k is a string kind.
func (k Kind) IsString() bool {
	return k >= KindString8 && k <= KindString32
}

// Bits returns the storage width of numeric and char kinds, 0 otherwise.
func (k Kind) Bits() int {
	switch k {
	case KindInt8, KindUInt8, KindChar8, KindBool:
		return 8
	case KindInt16, KindUInt16, KindChar16:
		return 16
	case KindInt32, KindUInt32, KindChar32, KindFloat32:
		return 32
	case KindInt64, KindUInt64, KindFloat64, KindSize:
		return 64
	}
	return 0
}

// ID is the stable integer identity of a (Kind, Array) pair.
type ID uint16

const arrayBit ID = 1 << 8

// Encode returns the identity of (kind, array).
func Encode(kind Kind, array bool) ID {
	id := ID(kind)
	if array {
		id |= arrayBit
	}
	return id
}

// Decode is the inverse of Encode.
func (id ID) Decode() (Kind, bool) {
	return Kind(id &^ arrayBit), id&arrayBit != 0
}

// Valid reports whether id decodes to a declared kind and a legal array flag.
func (id ID) Valid() bool {
	if id&^(arrayBit|0xff) != 0 {
		return false
	}
	k, array := id.Decode()
	return k.Valid() && !(array && k == KindNull)
}

// Descriptor tags one value: its kind, whether it is an array, and an
// optional alias naming the foreign type.
type Descriptor struct {
	Alias string
	Kind  Kind
	Array bool
}

// Scalar descriptors for every kind.
var (
	Float64  = Descriptor{Kind: KindFloat64}
	Float32  = Descriptor{Kind: KindFloat32}
	Int8     = Descriptor{Kind: KindInt8}
	Int16    = Descriptor{Kind: KindInt16}
	Int32    = Descriptor{Kind: KindInt32}
	Int64    = Descriptor{Kind: KindInt64}
	UInt8    = Descriptor{Kind: KindUInt8}
	UInt16   = Descriptor{Kind: KindUInt16}
	UInt32   = Descriptor{Kind: KindUInt32}
	UInt64   = Descriptor{Kind: KindUInt64}
	Bool     = Descriptor{Kind: KindBool}
	Char8    = Descriptor{Kind: KindChar8}
	Char16   = Descriptor{Kind: KindChar16}
	Char32   = Descriptor{Kind: KindChar32}
	String8  = Descriptor{Kind: KindString8}
	String16 = Descriptor{Kind: KindString16}
	String32 = Descriptor{Kind: KindString32}
	Handle   = Descriptor{Kind: KindHandle}
	Any      = Descriptor{Kind: KindAny}
	Null     = Descriptor{Kind: KindNull}
	Size     = Descriptor{Kind: KindSize}
)

// Frequently used array descriptors.
var (
	Int64Array   = Descriptor{Kind: KindInt64, Array: true}
	Float64Array = Descriptor{Kind: KindFloat64, Array: true}
	UInt8Array   = Descriptor{Kind: KindUInt8, Array: true}
	String8Array = Descriptor{Kind: KindString8, Array: true}
	HandleArray  = Descriptor{Kind: KindHandle, Array: true}
	AnyArray     = Descriptor{Kind: KindAny, Array: true}
)

// Of returns the scalar descriptor of kind.
func Of(kind Kind) Descriptor {
	return Descriptor{Kind: kind}
}

// ArrayOf returns the array descriptor of kind.
func ArrayOf(kind Kind) Descriptor {
	return Descriptor{Kind: kind, Array: true}
}

// FromID builds a descriptor without alias from an ID.
func FromID(id ID) Descriptor {
	k, array := id.Decode()
	return Descriptor{Kind: k, Array: array}
}

// WithAlias returns a copy of d carrying alias.
func (d Descriptor) WithAlias(alias string) Descriptor {
	d.Alias = alias
	return d
}

// Elem returns the scalar descriptor of an array's elements.
func (d Descriptor) Elem() Descriptor {
	d.Array = false
	return d
}

// ID returns the identity of d; the alias does not participate.
func (d Descriptor) ID() ID {
	return Encode(d.Kind, d.Array)
}

// Valid reports whether d describes a legal value shape.
func (d Descriptor) Valid() bool {
	return d.ID().Valid()
}

// Compatible reports whether d and other are call-compatible.
func (d Descriptor) Compatible(other Descriptor) bool {
	return d.Kind == other.Kind && d.Array == other.Array
}

// Accepts reports whether a value tagged actual may fill a slot declared as d.
// Any accepts every scalar and Any[] every array.
func (d Descriptor) Accepts(actual Descriptor) bool {
	if d.Kind == KindAny {
		return !d.Array || actual.Array
	}
	return d.Compatible(actual)
}

// String renders d in the form accepted by Parse: kind, optional "[]", optional ":alias".
func (d Descriptor) String() string {
	var b strings.Builder
	b.WriteString(d.Kind.String())
	if d.Array {
		b.WriteString("[]")
	}
	if d.Alias != "" {
		b.WriteByte(':')
		b.WriteString(d.Alias)
	}
	return b.String()
}

// Parse reads the textual form produced by String, e.g. "int64", "uint8[]",
// "handle:java.util.HashMap".
func Parse(s string) (Descriptor, error) {
	name, alias, _ := strings.Cut(s, ":")
	array := strings.HasSuffix(name, "[]")
	name = strings.TrimSuffix(name, "[]")

	kind, ok := kindByName(name)
	if !ok {
		return Descriptor{}, errors.MalformedSpec(s, "unknown type "+name)
	}
	d := Descriptor{Kind: kind, Array: array, Alias: alias}
	if !d.Valid() {
		return Descriptor{}, errors.MalformedSpec(s, "null cannot be an array")
	}
	return d, nil
}

// ParseList parses a comma separated list of descriptors. An empty string is an empty list.
func ParseList(s string) ([]Descriptor, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]Descriptor, 0, len(parts))
	for _, p := range parts {
		d, err := Parse(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// IDs returns the identities of ds in order.
func IDs(ds []Descriptor) []ID {
	out := make([]ID, len(ds))
	for i, d := range ds {
		out[i] = d.ID()
	}
	return out
}

// Join renders ds as a comma separated list.
func Join(ds []Descriptor) string {
	parts := make([]string, len(ds))
	for i, d := range ds {
		parts[i] = d.String()
	}
	return strings.Join(parts, ",")
}

func kindByName(name string) (Kind, bool) {
	for k := KindFloat64; k < kindCount; k++ {
		if kindNames[k] == name {
			return k, true
		}
	}
	return KindInvalid, false
}
