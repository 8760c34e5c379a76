package main

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/wippyai/xcall/errors"
	"github.com/wippyai/xcall/types"
)

// parseArgs converts command line arguments to values of the declared
// parameter types. Array arguments are comma separated.
func parseArgs(args []string, declared []types.Descriptor) ([]any, error) {
	if len(args) != len(declared) {
		return nil, errors.ArityMismatch(len(declared), len(args))
	}
	out := make([]any, len(args))
	for i, s := range args {
		v, err := parseArg(s, declared[i])
		if err != nil {
			return nil, errors.New(errors.PhaseParse, errors.KindInvalidInput).
				Path("arg", strconv.Itoa(i)).
				XType(declared[i].String()).
				Cause(err).
				Build()
		}
		out[i] = v
	}
	return out, nil
}

func parseArg(s string, d types.Descriptor) (any, error) {
	if !d.Array {
		return parseScalar(s, d.Kind)
	}
	if s == "" {
		return []any{}, nil
	}
	parts := strings.Split(s, ",")
	items := make([]any, len(parts))
	for i, p := range parts {
		v, err := parseScalar(strings.TrimSpace(p), d.Kind)
		if err != nil {
			return nil, err
		}
		items[i] = v
	}
	return items, nil
}

func parseScalar(s string, kind types.Kind) (any, error) {
	switch {
	case kind == types.KindBool:
		return strconv.ParseBool(s)
	case kind.IsUnsigned():
		return strconv.ParseUint(s, 0, kind.Bits())
	case kind.IsSigned():
		return strconv.ParseInt(s, 0, kind.Bits())
	case kind.IsFloat():
		return strconv.ParseFloat(s, kind.Bits())
	case kind.IsChar():
		r, n := utf8.DecodeRuneInString(s)
		if n == 0 || n != len(s) {
			return nil, errors.InvalidInput(errors.PhaseParse, "expected one character, got "+strconv.Quote(s))
		}
		return r, nil
	case kind.IsString():
		return s, nil
	case kind == types.KindNull:
		if s != "null" {
			return nil, errors.InvalidInput(errors.PhaseParse, "null parameters take the argument null")
		}
		return nil, nil
	case kind == types.KindAny:
		return inferScalar(s), nil
	}
	return nil, errors.TypeUnsupported(errors.PhaseParse, kind.String(), "cannot be given on the command line")
}

// inferScalar picks the narrowest reading of an untyped argument.
func inferScalar(s string) any {
	if i, err := strconv.ParseInt(s, 0, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if s == "null" {
		return nil
	}
	return s
}
