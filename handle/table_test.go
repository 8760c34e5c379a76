package handle

import (
	stderrors "errors"
	"sync"
	"testing"

	"github.com/wippyai/xcall/errors"
)

type testObserver struct {
	events []Event
}

func (o *testObserver) OnHandleEvent(e Event) {
	o.events = append(o.events, e)
}

type dropCounter struct {
	drops int
}

func (d *dropCounter) Drop() {
	d.drops++
}

func TestTable_Basic(t *testing.T) {
	owner := NewRuntimeID()
	table := NewTable(owner)

	h := table.Insert("test")
	if h.IsZero() {
		t.Fatal("Expected non-zero handle")
	}
	if h.Owner != owner {
		t.Fatalf("Owner = %d, want %d", h.Owner, owner)
	}

	val, ok := table.Get(h)
	if !ok {
		t.Fatal("Get failed")
	}
	if val != "test" {
		t.Fatalf("Expected 'test', got %v", val)
	}

	val, ok = table.Release(h)
	if !ok {
		t.Fatal("Release failed")
	}
	if val != "test" {
		t.Fatalf("Expected 'test', got %v", val)
	}

	if table.Len() != 0 {
		t.Fatal("Expected Len() == 0 after Release")
	}
	if _, ok := table.Get(h); ok {
		t.Fatal("Get after Release should fail")
	}
	if _, ok := table.Release(h); ok {
		t.Fatal("double Release should fail")
	}
}

func TestTable_ForeignOwner(t *testing.T) {
	a := NewTable(NewRuntimeID())
	b := NewTable(NewRuntimeID())

	h := a.Insert(42)
	if _, ok := b.Get(h); ok {
		t.Fatal("table must not resolve handles of another owner")
	}
	if _, ok := b.Release(h); ok {
		t.Fatal("table must not release handles of another owner")
	}
	if _, ok := a.Get(h); !ok {
		t.Fatal("owner lost its handle")
	}
	if _, ok := a.Get(Handle{}); ok {
		t.Fatal("zero handle must never resolve")
	}
}

func TestTable_ReusedSlotRejectsStaleHandle(t *testing.T) {
	table := NewTable(NewRuntimeID())
	h1 := table.Insert("a")
	table.Release(h1)
	h2 := table.Insert("b")

	if h2 == h1 {
		t.Fatalf("reused slot handed out the released handle %v again", h1)
	}
	if h2.Ref&0xffffffff != h1.Ref&0xffffffff {
		t.Errorf("slot of %v not reused by %v", h1, h2)
	}
	if v, ok := table.Get(h1); ok {
		t.Errorf("stale handle resolved to %v", v)
	}
	if _, ok := table.Release(h1); ok {
		t.Error("stale handle released the new object")
	}
	if v, _ := table.Get(h2); v != "b" {
		t.Errorf("reused slot holds %v", v)
	}

	var seen []Handle
	table.Each(func(h Handle, _ any) bool {
		seen = append(seen, h)
		return true
	})
	if len(seen) != 1 || seen[0] != h2 {
		t.Errorf("Each visited %v, want [%v]", seen, h2)
	}
}

func TestTable_Observer(t *testing.T) {
	table := NewTable(NewRuntimeID())
	obs := &testObserver{}
	table.Subscribe(obs)

	h := table.Insert("test")
	table.Release(h)

	if len(obs.events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(obs.events))
	}
	if obs.events[0].Type != EventCreated || obs.events[0].Handle != h {
		t.Errorf("first event = %+v", obs.events[0])
	}
	if obs.events[1].Type != EventReleased || obs.events[1].Value != "test" {
		t.Errorf("second event = %+v", obs.events[1])
	}

	table.Unsubscribe(obs)
	table.Insert("quiet")
	if len(obs.events) != 2 {
		t.Error("unsubscribed observer still notified")
	}
}

func TestTable_DropperAndClose(t *testing.T) {
	table := NewTable(NewRuntimeID())
	d1, d2 := &dropCounter{}, &dropCounter{}
	h1 := table.Insert(d1)
	table.Insert(d2)

	table.Release(h1)
	if d1.drops != 1 {
		t.Errorf("d1 drops = %d", d1.drops)
	}

	if err := table.Close(); err != nil {
		t.Fatal(err)
	}
	if d2.drops != 1 {
		t.Errorf("Close did not drop remaining values: %d", d2.drops)
	}
	if h := table.Insert("late"); !h.IsZero() {
		t.Error("Insert after Close should return the zero handle")
	}
	if _, err := table.create("late"); !stderrors.Is(err, errors.ErrClosed) {
		t.Errorf("create after Close: got %v, want a closed error", err)
	}
}

func TestTable_Each(t *testing.T) {
	table := NewTable(NewRuntimeID())
	for i := 0; i < 5; i++ {
		table.Insert(i)
	}
	count := 0
	table.Each(func(h Handle, v any) bool {
		count++
		return count < 3
	})
	if count != 3 {
		t.Errorf("Each visited %d entries, want 3", count)
	}
}

func TestTable_Concurrent(t *testing.T) {
	table := NewTable(NewRuntimeID())
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				h := table.Insert(i)
				if v, ok := table.Get(h); !ok || v != i {
					t.Errorf("Get(%v) = %v, %v", h, v, ok)
					return
				}
				table.Release(h)
			}
		}()
	}
	wg.Wait()
	if table.Len() != 0 {
		t.Errorf("Len = %d after balanced inserts and releases", table.Len())
	}
}

func TestHandle_Equality(t *testing.T) {
	a := New(7, 3)
	b := New(7, 3)
	if a != b {
		t.Error("handles with equal fields must be equal")
	}
	if a == New(7, 4) || a == New(8, 3) {
		t.Error("handles differing in any field must differ")
	}
	if !(Handle{}).IsZero() || a.IsZero() {
		t.Error("IsZero")
	}
}

func TestPolicy(t *testing.T) {
	host, target, other := RuntimeID(1), RuntimeID(2), RuntimeID(3)

	if !PolicyTrust.Allows(New(1, other), target, host) {
		t.Error("trust must forward every handle")
	}
	if PolicyStrict.Allows(New(1, other), target, host) {
		t.Error("strict must reject third-party handles")
	}
	if !PolicyStrict.Allows(New(1, target), target, host) || !PolicyStrict.Allows(New(1, host), target, host) {
		t.Error("strict must forward target and host handles")
	}
	if !PolicyStrict.Allows(Handle{}, target, host) {
		t.Error("zero handle is always allowed")
	}

	for in, want := range map[string]Policy{"": PolicyTrust, "trust": PolicyTrust, "Strict": PolicyStrict} {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("paranoid"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
