// Package errors provides structured error types for the xcall bridge.
//
// Errors are categorized by Phase (which step of the protocol failed) and Kind
// (the taxonomy entry). The Error type carries the entity or slot path, the Go
// and foreign type names involved, and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMarshal, errors.KindTypeCoercionFailed).
//		Path("param", "1").
//		GoType("int").
//		XType("string8").
//		Detail("value is not string-like").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.ArityMismatch(2, 3)
//	err := errors.ForeignCall("NullPointerException: x", nil)
//
// Every taxonomy kind has a sentinel that matches on Kind alone, so callers
// can test for a category regardless of the phase it surfaced in:
//
//	if errors.Is(err, xerrors.ErrArityMismatch) { ... }
package errors
