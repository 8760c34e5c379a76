// Package handle provides opaque references to objects owned by a runtime.
//
// A Handle is an identity, not a pointer: a native reference value plus the
// id of the runtime that minted it. The bridge never dereferences a Handle;
// it forwards it into later calls that declare a Handle-typed parameter.
//
// # Lifetime
//
// Handles have no finalizer and no automatic destructor. The referenced
// object may live in a foreign runtime whose garbage collector the host
// cannot observe, so lifetime is managed only explicitly:
//
//   - by calling the foreign entity's release binding (a binding with zero
//     return values, e.g. "callable=release,instance_required"), or
//   - by the owning plugin's own teardown.
//
// Dropping the last Go copy of a Handle without releasing it leaks the
// foreign object. It never crashes.
//
// # Object tables
//
// Runtimes implemented in Go keep their objects in a Table, which maps refs
// to Go values for one owner:
//
//	table := handle.NewTable(handle.NewRuntimeID())
//	h := table.Insert(conn)
//	v, ok := table.Get(h)
//	table.Release(h) // calls v.Drop() if v implements Dropper
package handle

import (
	"fmt"
	"sync/atomic"
)

// RuntimeID identifies the runtime that owns a handle.
type RuntimeID uint64

var lastRuntimeID atomic.Uint64

// NewRuntimeID returns a process-unique, non-zero runtime id.
func NewRuntimeID() RuntimeID {
	return RuntimeID(lastRuntimeID.Add(1))
}

// Handle is an opaque reference to an object owned by a runtime.
// Handles compare structurally: equal Ref and Owner means the same object.
type Handle struct {
	Ref   uint64
	Owner RuntimeID
}

// New returns the handle (ref, owner).
func New(ref uint64, owner RuntimeID) Handle {
	return Handle{Ref: ref, Owner: owner}
}

// IsZero reports whether h is the null handle.
func (h Handle) IsZero() bool {
	return h.Ref == 0 && h.Owner == 0
}

func (h Handle) String() string {
	return fmt.Sprintf("handle(%#x@%d)", h.Ref, h.Owner)
}

// Holder is implemented by values that marshal as a handle, such as
// exported host callables.
type Holder interface {
	ForeignHandle() Handle
}

// Dropper is optionally implemented by table values that need cleanup when
// their handle is released.
type Dropper interface {
	Drop()
}
