package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates which step of the bridge protocol produced the error
type Phase string

const (
	PhaseParse     Phase = "parse"     // entity path / type text
	PhaseLoad      Phase = "load"      // plugin load and unload
	PhaseResolve   Phase = "resolve"   // binding resolution
	PhaseArity     Phase = "arity"     // argument count check
	PhaseMarshal   Phase = "marshal"   // native to transfer slots
	PhaseDispatch  Phase = "dispatch"  // foreign invocation
	PhaseUnmarshal Phase = "unmarshal" // transfer slots to native
	PhaseExport    Phase = "export"    // host callable export
	PhaseConfig    Phase = "config"    // configuration
	PhaseTransport Phase = "transport" // out-of-process plugins
)

// Kind categorizes the error
type Kind string

const (
	KindPluginNotLoaded    Kind = "plugin_not_loaded"
	KindMalformedSpec      Kind = "malformed_spec"
	KindBindingNotFound    Kind = "binding_not_found"
	KindSignatureMismatch  Kind = "signature_mismatch"
	KindTypeUnsupported    Kind = "type_unsupported"
	KindArityMismatch      Kind = "arity_mismatch"
	KindTypeCoercionFailed Kind = "type_coercion_failed"
	KindForeignCallFailed  Kind = "foreign_call_failed"
	KindInvalidInput       Kind = "invalid_input"
	KindPluginUnknown      Kind = "plugin_unknown"
	KindClosed             Kind = "closed"
	KindTransport          Kind = "transport"
)

// Sentinels match any error of the same Kind, whatever its phase.
var (
	ErrPluginNotLoaded    = &Error{Kind: KindPluginNotLoaded}
	ErrMalformedSpec      = &Error{Kind: KindMalformedSpec}
	ErrBindingNotFound    = &Error{Kind: KindBindingNotFound}
	ErrSignatureMismatch  = &Error{Kind: KindSignatureMismatch}
	ErrTypeUnsupported    = &Error{Kind: KindTypeUnsupported}
	ErrArityMismatch      = &Error{Kind: KindArityMismatch}
	ErrTypeCoercionFailed = &Error{Kind: KindTypeCoercionFailed}
	ErrForeignCallFailed  = &Error{Kind: KindForeignCallFailed}
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
	ErrPluginUnknown      = &Error{Kind: KindPluginUnknown}
	ErrClosed             = &Error{Kind: KindClosed}
	ErrTransport          = &Error{Kind: KindTransport}
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	GoType string
	XType  string // bridge type descriptor, e.g. "int64[]"
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.XType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.XType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", bridge type ")
			b.WriteString(e.XType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("bridge type ")
			b.WriteString(e.XType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.XType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a Phase matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the slot or entity path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// XType sets the bridge type descriptor name
func (b *Builder) XType(t string) *Builder {
	b.err.XType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for the taxonomy

// PluginNotLoaded reports an operation on a plugin whose ref-count is zero
func PluginNotLoaded(phase Phase, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindPluginNotLoaded,
		Detail: fmt.Sprintf("runtime plugin %q is not loaded", name),
	}
}

// PluginUnknown reports a plugin name with no registered factory
func PluginUnknown(name string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindPluginUnknown,
		Detail: fmt.Sprintf("no factory registered for runtime plugin %q", name),
	}
}

// MalformedSpec reports an entity path or type text that does not parse
func MalformedSpec(spec, detail string) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindMalformedSpec,
		Detail: fmt.Sprintf("%q: %s", spec, detail),
		Value:  spec,
	}
}

// BindingNotFound reports a missing foreign entity
func BindingNotFound(module, entity string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindBindingNotFound,
		Path:   []string{module},
		Detail: fmt.Sprintf("entity %q not found", entity),
	}
}

// SignatureMismatch reports an entity whose shape disagrees with the requested types
func SignatureMismatch(phase Phase, entity, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindSignatureMismatch,
		Path:   []string{entity},
		Detail: detail,
	}
}

// TypeUnsupported reports a type the plugin cannot bridge
func TypeUnsupported(phase Phase, xtype, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeUnsupported,
		XType:  xtype,
		Detail: detail,
	}
}

// ArityMismatch reports a wrong argument count
func ArityMismatch(expected, received int) *Error {
	return &Error{
		Phase:  PhaseArity,
		Kind:   KindArityMismatch,
		Detail: fmt.Sprintf("expected %d parameters, received %d parameters", expected, received),
		Value:  received,
	}
}

// CoercionFailed reports a native value that cannot be represented under its declared type
func CoercionFailed(phase Phase, path []string, goType, xtype, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeCoercionFailed,
		Path:   path,
		GoType: goType,
		XType:  xtype,
		Detail: detail,
	}
}

// ForeignCall wraps a failure raised by the foreign side. The message is kept verbatim.
func ForeignCall(message string, cause error) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindForeignCallFailed,
		Detail: message,
		Cause:  cause,
	}
}

// ForeignMessage returns the foreign diagnostic text carried by a ForeignCallFailed error.
func ForeignMessage(err error) (string, bool) {
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindForeignCallFailed {
		return "", false
	}
	return e.Detail, true
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Closed reports use of a closed component
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}

// Transport wraps an I/O failure on an out-of-process plugin connection
func Transport(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseTransport,
		Kind:   KindTransport,
		Detail: detail,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// WithPhase returns err re-tagged with phase when it is an *Error with a
// different phase; other errors are returned unchanged.
func WithPhase(err error, phase Phase) error {
	var e *Error
	if !errors.As(err, &e) || e.Phase == phase {
		return err
	}
	c := *e
	c.Phase = phase
	return &c
}
