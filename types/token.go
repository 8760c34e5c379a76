package types

import "strings"

// JNI object tokens with a dedicated mapping.
const (
	tokenString = "Ljava/lang/String;"
	tokenObject = "Ljava/lang/Object;"
)

// FromSignatureToken maps a JNI-style signature token to the closest
// descriptor. It never fails: unknown object-like tokens become Handle with
// the token (or class name) as alias, java.lang.Object becomes Any, and an
// empty token is Any.
//
//	"I"                   -> int32
//	"[J"                  -> int64[]
//	"Ljava/lang/String;"  -> string8
//	"Ljava/util/Map;"     -> handle:java.util.Map
func FromSignatureToken(token string) Descriptor {
	array := false
	for strings.HasPrefix(token, "[") {
		array = true
		token = token[1:]
	}

	var d Descriptor
	switch token {
	case "":
		d = Any
	case "Z":
		d = Bool
	case "B":
		d = Int8
	case "C":
		d = Char16
	case "S":
		d = Int16
	case "I":
		d = Int32
	case "J":
		d = Int64
	case "F":
		d = Float32
	case "D":
		d = Float64
	case "V":
		if array {
			return HandleArray
		}
		return Null
	case tokenString:
		d = String8
	case tokenObject:
		d = Any
	default:
		d = Handle
		if strings.HasPrefix(token, "L") && strings.HasSuffix(token, ";") {
			d.Alias = strings.ReplaceAll(token[1:len(token)-1], "/", ".")
		} else {
			d.Alias = token
		}
	}
	d.Array = array
	return d
}

// SignatureToken renders d as a JNI-style token. Kinds without a JNI
// counterpart map to the nearest wider one.
func (d Descriptor) SignatureToken() string {
	var b strings.Builder
	if d.Array {
		b.WriteByte('[')
	}
	if d.Alias != "" && (d.Kind == KindHandle || d.Kind == KindAny) {
		b.WriteByte('L')
		b.WriteString(strings.ReplaceAll(d.Alias, ".", "/"))
		b.WriteByte(';')
		return b.String()
	}

	switch d.Kind {
	case KindNull:
		b.WriteByte('V')
	case KindBool:
		b.WriteByte('Z')
	case KindInt8, KindUInt8:
		b.WriteByte('B')
	case KindChar8, KindChar16:
		b.WriteByte('C')
	case KindInt16, KindUInt16:
		b.WriteByte('S')
	case KindInt32, KindUInt32, KindChar32:
		b.WriteByte('I')
	case KindInt64, KindUInt64, KindSize:
		b.WriteByte('J')
	case KindFloat32:
		b.WriteByte('F')
	case KindFloat64:
		b.WriteByte('D')
	case KindString8, KindString16, KindString32:
		b.WriteString(tokenString)
	default:
		b.WriteString(tokenObject)
	}
	return b.String()
}
