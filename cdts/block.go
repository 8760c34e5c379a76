// Package cdts implements the per-call transfer arena: a block of tagged
// parameter slots and tagged return slots exchanged across the runtime
// boundary.
//
// A Block lives for exactly one call. The caller allocates it from an Arena,
// fills the parameter slots, hands it to the foreign side, drains the return
// slots and releases it on every exit path:
//
//	b := arena.Allocate(len(args), len(returns))
//	defer arena.Release(b)
//	if err := m.FillParams(b, args, paramTypes); err != nil { ... }
//	// dispatch
//	out, err := m.DrainReturns(b, returnTypes)
//
// Each slot is a Value: a types.Descriptor plus data in the canonical Go
// representation of its kind. Arrays nest recursively as *Array, so ragged
// and arbitrarily deep arrays need no special cases.
package cdts

import (
	"strconv"
	"sync"

	"github.com/wippyai/xcall/types"
)

// Value is one tagged slot.
//
// Canonical data per kind: float64, float32, int8..int64, uint8..uint64,
// bool, uint8 (char8), uint16 (char16), rune (char32), string (string8/16/32),
// handle.Handle, nil (null), uint64 (size), and *Array when Type.Array is set.
// A slot declared Any carries the concrete descriptor of its value.
type Value struct {
	Data any
	Type types.Descriptor
}

// IsSet reports whether the slot has been written.
func (v Value) IsSet() bool {
	return v.Type.Kind != types.KindInvalid
}

// Array is the recursive array representation: a length (len(Items)), the
// descriptor of each item and the nested slots. Elem is scalar when Dims is 1
// and an array descriptor otherwise. Items of different lengths (ragged
// arrays) are allowed at every level.
type Array struct {
	Items []Value
	Elem  types.Descriptor
	Dims  int
}

// MaxDims bounds the declared depth of an array.
const MaxDims = 32

// checkDepth reports why the declared depth of a disagrees with its items,
// or "" when it matches. kind is the element kind of the slot holding a.
// Arrays of any are one level deep; arrays inside them carry their own depth.
func (a *Array) checkDepth(kind types.Kind) string {
	if a.Dims < 1 {
		return "array has no dimensions"
	}
	if a.Dims > MaxDims {
		return "array declares " + strconv.Itoa(a.Dims) + " dimensions, limit is " + strconv.Itoa(MaxDims)
	}
	if kind == types.KindAny && a.Dims != 1 {
		return "array of any declares " + strconv.Itoa(a.Dims) + " dimensions"
	}
	for _, item := range a.Items {
		sub, ok := item.Data.(*Array)
		if !ok {
			if a.Dims > 1 && item.Data != nil {
				return "array declares " + strconv.Itoa(a.Dims) + " dimensions but holds a scalar"
			}
			continue
		}
		if kind == types.KindAny {
			if msg := sub.checkDepth(item.Type.Kind); msg != "" {
				return msg
			}
			continue
		}
		if sub.Dims != a.Dims-1 {
			return "array declares " + strconv.Itoa(a.Dims) + " dimensions but nests one of " + strconv.Itoa(sub.Dims)
		}
		if msg := sub.checkDepth(kind); msg != "" {
			return msg
		}
	}
	return ""
}

// Len returns the number of items.
func (a *Array) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Items)
}

// Block holds the slots of one call.
type Block struct {
	Params  []Value
	Returns []Value
}

func (b *Block) reset(params, returns int) {
	b.Params = resize(b.Params, params)
	b.Returns = resize(b.Returns, returns)
}

func resize(s []Value, n int) []Value {
	if cap(s) < n {
		return make([]Value, n)
	}
	s = s[:n]
	clear(s)
	return s
}

// Arena allocates and releases blocks. Implementations must hand out
// exclusively owned blocks; a released block is never observed again by the
// call that released it.
type Arena interface {
	Allocate(params, returns int) *Block
	Release(*Block)
}

const (
	// Pool limits to prevent memory bloat
	poolMaxSlots = 256
)

// PoolArena recycles blocks through a sync.Pool.
type PoolArena struct {
	pool sync.Pool
}

// NewPoolArena creates an arena backed by a sync.Pool.
func NewPoolArena() *PoolArena {
	return &PoolArena{
		pool: sync.Pool{
			New: func() any { return &Block{} },
		},
	}
}

// DefaultArena is shared by callers that are not given an arena.
var DefaultArena Arena = NewPoolArena()

// Allocate returns a zeroed block with params parameter and returns return slots.
func (a *PoolArena) Allocate(params, returns int) *Block {
	b := a.pool.Get().(*Block)
	b.reset(params, returns)
	return b
}

// Release clears b and returns it to the pool.
func (a *PoolArena) Release(b *Block) {
	if b == nil {
		return
	}
	if cap(b.Params) > poolMaxSlots || cap(b.Returns) > poolMaxSlots {
		return // reject oversized
	}
	clear(b.Params)
	clear(b.Returns)
	b.Params = b.Params[:0]
	b.Returns = b.Returns[:0]
	a.pool.Put(b)
}
