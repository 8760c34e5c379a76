package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseMarshal,
				Kind:   KindTypeCoercionFailed,
				Path:   []string{"param", "1"},
				GoType: "int",
				XType:  "string8",
				Detail: "not string-like",
			},
			contains: []string{"[marshal]", "type_coercion_failed", "param.1", "Go type int", "bridge type string8", "not string-like"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseArity,
				Kind:  KindArityMismatch,
			},
			contains: []string{"[arity]", "arity_mismatch"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseDispatch,
				Kind:   KindForeignCallFailed,
				Detail: "boom",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[dispatch]", "foreign_call_failed", "boom", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(PhaseLoad, KindInvalidInput, cause, "load")

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find cause in chain")
	}
}

func TestError_Is(t *testing.T) {
	err := ArityMismatch(2, 3)

	if !errors.Is(err, ErrArityMismatch) {
		t.Error("sentinel without phase should match on kind")
	}
	if !errors.Is(err, &Error{Phase: PhaseArity, Kind: KindArityMismatch}) {
		t.Error("same phase and kind should match")
	}
	if errors.Is(err, &Error{Phase: PhaseMarshal, Kind: KindArityMismatch}) {
		t.Error("different phase should not match")
	}
	if errors.Is(err, ErrTypeCoercionFailed) {
		t.Error("different kind should not match")
	}

	wrapped := fmt.Errorf("call: %w", err)
	if !errors.Is(wrapped, ErrArityMismatch) {
		t.Error("wrapped error should still match sentinel")
	}
}

func TestForeignMessage(t *testing.T) {
	const msg = "java.lang.IllegalStateException: map is frozen"
	err := fmt.Errorf("outer: %w", ForeignCall(msg, nil))

	got, ok := ForeignMessage(err)
	if !ok {
		t.Fatal("expected foreign message")
	}
	if got != msg {
		t.Errorf("got %q, want verbatim %q", got, msg)
	}

	if _, ok := ForeignMessage(ArityMismatch(1, 2)); ok {
		t.Error("arity error should not carry a foreign message")
	}
	if _, ok := ForeignMessage(errors.New("plain")); ok {
		t.Error("plain error should not carry a foreign message")
	}
}

func TestKindOf(t *testing.T) {
	if k := KindOf(fmt.Errorf("x: %w", BindingNotFound("mod", "callable=f"))); k != KindBindingNotFound {
		t.Errorf("KindOf = %q", k)
	}
	if k := KindOf(errors.New("plain")); k != "" {
		t.Errorf("KindOf(plain) = %q, want empty", k)
	}
}

func TestWithPhase(t *testing.T) {
	orig := SignatureMismatch(PhaseResolve, "callable=f", "bad")
	got := WithPhase(orig, PhaseUnmarshal)

	var e *Error
	if !errors.As(got, &e) {
		t.Fatal("expected *Error")
	}
	if e.Phase != PhaseUnmarshal || e.Kind != KindSignatureMismatch {
		t.Errorf("got %s/%s", e.Phase, e.Kind)
	}
	if orig.Phase != PhaseResolve {
		t.Error("WithPhase must not mutate the original")
	}

	plain := errors.New("plain")
	if WithPhase(plain, PhaseLoad) != plain {
		t.Error("non-bridge errors pass through")
	}
}

func TestBuilder(t *testing.T) {
	err := New(PhaseMarshal, KindTypeCoercionFailed).
		Path("param", "0").
		GoType("float64").
		XType("int8").
		Value(300.5).
		Detail("value %v overflows %s", 300.5, "int8").
		Build()

	if err.Detail != "value 300.5 overflows int8" {
		t.Errorf("Detail = %q", err.Detail)
	}
	if err.Value != 300.5 {
		t.Errorf("Value = %v", err.Value)
	}
	if len(err.Path) != 2 || err.Path[1] != "0" {
		t.Errorf("Path = %v", err.Path)
	}
}
