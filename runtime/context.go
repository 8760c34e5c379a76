package runtime

import (
	"slices"

	"github.com/wippyai/xcall/entity"
	"github.com/wippyai/xcall/handle"
	"github.com/wippyai/xcall/plugin"
	"github.com/wippyai/xcall/types"
)

// CallContext is a resolved binding: the plugin's native context plus the
// signature it was resolved for. It never changes after resolution and may
// be shared between goroutines.
type CallContext struct {
	native  plugin.Context
	plugin  string
	module  string
	entity  entity.Path
	params  []types.Descriptor
	returns []types.Descriptor
	target  handle.RuntimeID
}

// Plugin returns the name of the plugin the binding belongs to.
func (c *CallContext) Plugin() string { return c.plugin }

// ModulePath returns the module the entity was resolved in.
func (c *CallContext) ModulePath() string { return c.module }

// Entity returns the parsed entity path.
func (c *CallContext) Entity() entity.Path { return c.entity }

// Params returns a copy of the parameter descriptors.
func (c *CallContext) Params() []types.Descriptor { return slices.Clone(c.params) }

// Returns returns a copy of the return descriptors.
func (c *CallContext) Returns() []types.Descriptor { return slices.Clone(c.returns) }

// Native returns the plugin's context.
func (c *CallContext) Native() plugin.Context { return c.native }

// RuntimeID returns the runtime id of the plugin instance that resolved the binding.
func (c *CallContext) RuntimeID() handle.RuntimeID { return c.target }

// Shape returns the dispatch shape of the binding.
func (c *CallContext) Shape() Shape { return ShapeOf(len(c.params), len(c.returns)) }

func (c *CallContext) String() string {
	return c.plugin + ":" + c.module + ":" + c.entity.String() +
		"(" + types.Join(c.params) + ")->(" + types.Join(c.returns) + ")"
}
