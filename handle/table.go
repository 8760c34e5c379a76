package handle

import (
	"sync"

	"github.com/wippyai/xcall/errors"
)

// EventType is a table lifecycle notification kind.
type EventType uint8

const (
	EventCreated EventType = iota
	EventReleased
)

// Event represents a handle lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Type   EventType
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnHandleEvent(Event)
}

// Table maps handles of one owner to Go values. Ref 0 is reserved, so the
// zero Handle is never valid.
//
// A ref packs a slot index in its low 32 bits and the slot's generation in
// the high 32. Released slots are reused under a new generation, so a stale
// handle never resolves to the object that took its slot.
type Table struct {
	entries   []entry
	freeList  []uint64
	observers []Observer
	owner     RuntimeID
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

type entry struct {
	value any
	gen   uint32
	valid bool
}

func ref(slot uint64, gen uint32) uint64 {
	return uint64(gen)<<32 | slot
}

// lookup returns the entry h points at, if h names its current generation.
// The caller holds t.mu.
func (t *Table) lookup(h Handle) *entry {
	if !t.Owns(h) {
		return nil
	}
	slot := h.Ref & 0xffffffff
	if slot == 0 || slot > uint64(len(t.entries)) {
		return nil
	}
	e := &t.entries[slot-1]
	if !e.valid || e.gen != uint32(h.Ref>>32) {
		return nil
	}
	return e
}

// NewTable creates an empty table for owner.
func NewTable(owner RuntimeID) *Table {
	return &Table{
		owner:    owner,
		entries:  make([]entry, 0, 64),
		freeList: make([]uint64, 0, 16),
	}
}

// Owner returns the runtime id stamped on every handle the table mints.
func (t *Table) Owner() RuntimeID {
	return t.owner
}

// Owns reports whether h was minted by this table's owner.
func (t *Table) Owns(h Handle) bool {
	return h.Owner == t.owner && h.Ref != 0
}

// Insert stores value and returns its handle. It returns the zero handle
// after Close.
func (t *Table) Insert(value any) Handle {
	h, err := t.create(value)
	if err != nil {
		return Handle{}
	}

	t.notify(Event{
		Type:   EventCreated,
		Handle: h,
		Value:  value,
	})
	return h
}

func (t *Table) create(value any) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return Handle{}, errors.Closed(errors.PhaseMarshal, "handle table")
	}

	if len(t.freeList) > 0 {
		slot := t.freeList[len(t.freeList)-1]
		t.freeList = t.freeList[:len(t.freeList)-1]
		e := &t.entries[slot-1]
		e.value, e.valid = value, true
		return New(ref(slot, e.gen), t.owner), nil
	}

	t.entries = append(t.entries, entry{value: value, valid: true})
	return New(uint64(len(t.entries)), t.owner), nil
}

// Get retrieves the value behind h. Handles of other owners and released
// handles are not found.
func (t *Table) Get(h Handle) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e := t.lookup(h)
	if e == nil {
		return nil, false
	}
	return e.value, true
}

// Release removes h and returns its value. If the value implements Dropper,
// Drop is called after the entry is removed.
func (t *Table) Release(h Handle) (any, bool) {
	value, ok := t.drop(h)
	if !ok {
		return nil, false
	}

	if d, ok := value.(Dropper); ok {
		d.Drop()
	}

	t.notify(Event{
		Type:   EventReleased,
		Handle: h,
		Value:  value,
	})
	return value, true
}

func (t *Table) drop(h Handle) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.lookup(h)
	if e == nil {
		return nil, false
	}

	value := e.value
	e.valid = false
	e.value = nil
	e.gen++
	t.freeList = append(t.freeList, h.Ref&0xffffffff)
	return value, true
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, e := range t.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each iterates over live handles until fn returns false.
func (t *Table) Each(fn func(Handle, any) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, e := range t.entries {
		if e.valid {
			if !fn(New(ref(uint64(i+1), e.gen), t.owner), e.value) {
				break
			}
		}
	}
}

// Clear releases every live handle.
func (t *Table) Clear() {
	// Collect handles first to avoid holding the lock during Release
	var handles []Handle
	t.Each(func(h Handle, _ any) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		t.Release(h)
	}
}

// Close releases every live handle and stops accepting inserts.
func (t *Table) Close() error {
	t.Clear()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.entries = nil
	t.freeList = nil
	return nil
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnHandleEvent(e)
	}
}
