// Package plugin defines the contract between the bridge core and the
// runtime plugins that embed foreign runtimes, and the reference-counted
// registry that loads them.
//
// A plugin is loaded at most once per name no matter how many front-ends use
// it. It resolves entity paths into Contexts; a Context exposes the four
// dispatch entry points selected by whether a call has parameters and
// whether it has return values.
package plugin

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/xcall/cdts"
	"github.com/wippyai/xcall/entity"
	"github.com/wippyai/xcall/handle"
	"github.com/wippyai/xcall/types"
)

// ResolveRequest is everything a plugin needs to bind one entity.
type ResolveRequest struct {
	ModulePath string
	Entity     entity.Path
	Params     []types.Descriptor
	Returns    []types.Descriptor
}

// Plugin is a foreign-runtime bridge.
//
// Resolve fails with BindingNotFound when the entity does not exist,
// SignatureMismatch when its shape is incompatible with the requested
// descriptors, and TypeUnsupported when the plugin cannot bridge one of them.
// Contexts returned by Resolve must tolerate concurrent calls.
type Plugin interface {
	Load(ctx context.Context) error
	Unload(ctx context.Context) error
	Resolve(ctx context.Context, req ResolveRequest) (Context, error)
}

// Context is a resolved binding. Exactly one entry point is used per call;
// which one is fixed when the binding is resolved.
//
// Implementations read parameters from b.Params and write every slot of
// b.Returns. A returned error is reported to the caller as a foreign call
// failure carrying the error text.
type Context interface {
	CallParamsRet(ctx context.Context, b *cdts.Block) error
	CallParamsNoRet(ctx context.Context, b *cdts.Block) error
	CallNoParamsRet(ctx context.Context, b *cdts.Block) error
	CallNoParamsNoRet(ctx context.Context) error
}

// ContextFunc adapts one function to all four entry points. The no-params,
// no-returns shape passes a nil block.
type ContextFunc func(ctx context.Context, b *cdts.Block) error

func (f ContextFunc) CallParamsRet(ctx context.Context, b *cdts.Block) error {
	return f(ctx, b)
}

func (f ContextFunc) CallParamsNoRet(ctx context.Context, b *cdts.Block) error {
	return f(ctx, b)
}

func (f ContextFunc) CallNoParamsRet(ctx context.Context, b *cdts.Block) error {
	return f(ctx, b)
}

func (f ContextFunc) CallNoParamsNoRet(ctx context.Context) error {
	return f(ctx, nil)
}

// Signature is the ordered parameter and return descriptors of a callable.
type Signature struct {
	Params  []types.Descriptor
	Returns []types.Descriptor
}

// Export is a callable a plugin can enumerate.
type Export struct {
	Name string
	Signature
}

// Lister is implemented by plugins that can enumerate the callables of a
// module, so tools can offer them before any entity path is known.
type Lister interface {
	Exports(ctx context.Context, modulePath string) ([]Export, error)
}

// Host is the host side of the bridge as seen by plugins. A plugin that is
// handed an exported host callable invokes it through InvokeCallable.
type Host interface {
	RuntimeID() handle.RuntimeID
	// Signature returns the declared signature of an exported callable.
	Signature(h handle.Handle) (Signature, bool)
	// InvokeCallable runs the callable behind h. b carries the parameters
	// and receives the returns; it may be nil when the signature is empty.
	InvokeCallable(ctx context.Context, h handle.Handle, b *cdts.Block) error
}

// ObjectSource is implemented by hosts whose objects can be read directly by
// in-process plugins. Out-of-process plugins only ever see the handle.
type ObjectSource interface {
	Object(h handle.Handle) (any, bool)
}

// Env is handed to a factory when its plugin is initialized.
type Env struct {
	Host      Host
	Logger    *zap.Logger
	Name      string
	RuntimeID handle.RuntimeID
}

// Factory creates a plugin instance. It is called on every 0 to 1 load
// transition.
type Factory func(env Env) (Plugin, error)
