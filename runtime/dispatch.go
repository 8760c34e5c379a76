package runtime

import (
	"context"

	"github.com/wippyai/xcall/cdts"
	"github.com/wippyai/xcall/plugin"
)

// Shape selects a dispatch entry point from whether a binding has
// parameters and whether it has return values.
type Shape uint8

const (
	ShapeNoParamsNoRet Shape = iota
	ShapeNoParamsRet
	ShapeParamsNoRet
	ShapeParamsRet
)

// ShapeOf returns the shape of a binding with the given slot counts.
func ShapeOf(params, returns int) Shape {
	var s Shape
	if params > 0 {
		s |= ShapeParamsNoRet
	}
	if returns > 0 {
		s |= ShapeNoParamsRet
	}
	return s
}

// HasParams reports whether calls of this shape carry parameter slots.
func (s Shape) HasParams() bool { return s&ShapeParamsNoRet != 0 }

// HasReturns reports whether calls of this shape carry return slots.
func (s Shape) HasReturns() bool { return s&ShapeNoParamsRet != 0 }

// NeedsBlock reports whether calls of this shape use a transfer block.
func (s Shape) NeedsBlock() bool { return s != ShapeNoParamsNoRet }

func (s Shape) String() string {
	switch s {
	case ShapeNoParamsNoRet:
		return "no_params_no_ret"
	case ShapeNoParamsRet:
		return "no_params_ret"
	case ShapeParamsNoRet:
		return "params_no_ret"
	case ShapeParamsRet:
		return "params_ret"
	}
	return "invalid"
}

type dispatchFunc func(ctx context.Context, pc plugin.Context, b *cdts.Block) error

var dispatchTable = [4]dispatchFunc{
	ShapeNoParamsNoRet: func(ctx context.Context, pc plugin.Context, _ *cdts.Block) error {
		return pc.CallNoParamsNoRet(ctx)
	},
	ShapeNoParamsRet: func(ctx context.Context, pc plugin.Context, b *cdts.Block) error {
		return pc.CallNoParamsRet(ctx, b)
	},
	ShapeParamsNoRet: func(ctx context.Context, pc plugin.Context, b *cdts.Block) error {
		return pc.CallParamsNoRet(ctx, b)
	},
	ShapeParamsRet: func(ctx context.Context, pc plugin.Context, b *cdts.Block) error {
		return pc.CallParamsRet(ctx, b)
	},
}
