package runtime

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/xcall/cdts"
	"github.com/wippyai/xcall/errors"
	"github.com/wippyai/xcall/handle"
)

// Caller invokes one resolved binding. It holds no per-call state, so one
// Caller may be used by many goroutines at once.
type Caller struct {
	cc        *CallContext
	arena     cdts.Arena
	marshaler cdts.Marshaler
	logger    *zap.Logger
	dispatch  dispatchFunc
	host      handle.RuntimeID
	policy    handle.Policy
	shape     Shape
}

// NewCaller binds cc. host, when non-nil, supplies the object table for Go
// values passed as handles and the handle policy; options override the
// arena, logger and policy.
func NewCaller(cc *CallContext, host *Host, opts ...Option) *Caller {
	if host != nil {
		opts = append([]Option{WithPolicy(host.Policy())}, opts...)
	}
	o := buildOptions(opts)

	shape := cc.Shape()
	c := &Caller{
		cc:       cc,
		arena:    o.arena,
		logger:   o.logger,
		dispatch: dispatchTable[shape],
		policy:   o.policy,
		shape:    shape,
	}
	if host != nil {
		c.marshaler = host.Marshaler()
		c.host = host.RuntimeID()
	}
	return c
}

// Context returns the bound CallContext.
func (c *Caller) Context() *CallContext { return c.cc }

// Shape returns the dispatch shape fixed at construction.
func (c *Caller) Shape() Shape { return c.shape }

// Call runs the binding with args and returns one value per declared return
// in declared order; the result is empty when the binding returns nothing.
func (c *Caller) Call(ctx context.Context, args ...any) ([]any, error) {
	params, returns := c.cc.params, c.cc.returns

	if len(args) != len(params) {
		return nil, errors.ArityMismatch(len(params), len(args))
	}

	if !c.shape.NeedsBlock() {
		if err := c.dispatch(ctx, c.cc.native, nil); err != nil {
			return nil, c.foreign(err)
		}
		return []any{}, nil
	}

	b := c.arena.Allocate(len(params), len(returns))
	defer c.arena.Release(b)

	if c.shape.HasParams() {
		if err := c.marshaler.FillParams(b, args, params); err != nil {
			return nil, err
		}
		if err := c.checkHandles(b.Params); err != nil {
			return nil, err
		}
	}

	if err := c.dispatch(ctx, c.cc.native, b); err != nil {
		return nil, c.foreign(err)
	}

	if !c.shape.HasReturns() {
		return []any{}, nil
	}
	return c.marshaler.DrainReturns(b, returns)
}

// foreign converts a dispatch failure into ForeignCallFailed, keeping the
// foreign text verbatim.
func (c *Caller) foreign(err error) error {
	msg, ok := errors.ForeignMessage(err)
	if !ok {
		msg = err.Error()
	}
	c.logger.Debug("foreign call failed", zap.Stringer("binding", c.cc), zap.String("message", msg))
	return errors.ForeignCall(msg, err)
}

// checkHandles applies the handle policy to every handle in the parameter slots.
func (c *Caller) checkHandles(slots []cdts.Value) error {
	if c.policy == handle.PolicyTrust {
		return nil
	}
	for i, v := range slots {
		if err := c.checkValue(v, []string{"param", strconv.Itoa(i)}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Caller) checkValue(v cdts.Value, path []string) error {
	if a, ok := v.Data.(*cdts.Array); ok {
		for i, item := range a.Items {
			if err := c.checkValue(item, append(path[:len(path):len(path)], strconv.Itoa(i))); err != nil {
				return err
			}
		}
		return nil
	}
	h, ok := v.Data.(handle.Handle)
	if !ok || c.policy.Allows(h, c.cc.target, c.host) {
		return nil
	}
	return errors.New(errors.PhaseMarshal, errors.KindTypeCoercionFailed).
		Path(path...).
		GoType("handle.Handle").
		XType(v.Type.String()).
		Value(h).
		Detail("handle owned by runtime %d cannot be passed to runtime %d under %s policy", h.Owner, c.cc.target, c.policy).
		Build()
}
