package handle

import (
	"testing"
)

func TestTable_Basic(t *testing.T) {
	tbl := NewTable[string](KindValue)

	h := tbl.Insert("test value")
	if h == 0 {
		t.Fatal("Expected non-zero handle")
	}
	if h.Kind() != KindValue {
		t.Fatalf("Expected value kind, got %v", h.Kind())
	}

	val, ok := tbl.Get(h)
	if !ok {
		t.Fatal("Get failed")
	}
	if val != "test value" {
		t.Fatalf("Expected 'test value', got %v", val)
	}

	val, ok = tbl.Remove(h)
	if !ok {
		t.Fatal("Remove failed")
	}
	if val != "test value" {
		t.Fatalf("Expected 'test value', got %v", val)
	}

	if _, ok = tbl.Get(h); ok {
		t.Fatal("Expected Get to fail after Remove")
	}
	if _, ok = tbl.Remove(h); ok {
		t.Fatal("Expected second Remove to fail")
	}
}

func TestTable_StaleHandleAfterReuse(t *testing.T) {
	tbl := NewTable[int](KindInstance)

	h1 := tbl.Insert(1)
	tbl.Remove(h1)

	// The slot is reused, the old handle must not resolve to the new value.
	h2 := tbl.Insert(2)
	if h1 == h2 {
		t.Fatal("Reused slot must produce a different handle")
	}
	if _, ok := tbl.Get(h1); ok {
		t.Fatal("Stale handle resolved after slot reuse")
	}
	if v, ok := tbl.Get(h2); !ok || v != 2 {
		t.Fatalf("Expected 2, got %v (ok=%v)", v, ok)
	}
}

func TestTable_KindMismatch(t *testing.T) {
	instances := NewTable[int](KindInstance)
	values := NewTable[int](KindValue)

	hi := instances.Insert(10)
	hv := values.Insert(20)

	if _, ok := values.Get(hi); ok {
		t.Fatal("Instance handle resolved in value table")
	}
	if _, ok := instances.Get(hv); ok {
		t.Fatal("Value handle resolved in instance table")
	}
}

func TestTable_GenerationExhausted(t *testing.T) {
	tbl := NewTable[int](KindRequest)
	h := tbl.Insert(1)
	idx, _ := h.slot()
	tbl.slots[idx].gen = maxGeneration
	h = makeHandle(KindRequest, maxGeneration, idx)

	if _, ok := tbl.Remove(h); !ok {
		t.Fatal("Remove failed")
	}
	if len(tbl.free) != 0 {
		t.Fatal("Exhausted slot must be retired, not reused")
	}

	h2 := tbl.Insert(2)
	if idx2, _ := h2.slot(); idx2 == idx {
		t.Fatal("Retired slot was reused")
	}
}

func TestTable_InvalidHandle(t *testing.T) {
	tbl := NewTable[int](KindValue)

	if _, ok := tbl.Get(0); ok {
		t.Fatal("Handle 0 should be invalid")
	}
	if _, ok := tbl.Remove(0); ok {
		t.Fatal("Handle 0 should fail Remove")
	}
	if tbl.Contains(makeHandle(KindValue, 1, 999)) {
		t.Fatal("Non-existent handle should be invalid")
	}
}

func TestTable_Len(t *testing.T) {
	tbl := NewTable[string](KindValue)

	if tbl.Len() != 0 {
		t.Fatal("Expected Len() == 0 initially")
	}

	h1 := tbl.Insert("a")
	h2 := tbl.Insert("b")
	tbl.Insert("c")

	if tbl.Len() != 3 {
		t.Fatalf("Expected Len() == 3, got %d", tbl.Len())
	}

	tbl.Remove(h1)
	if tbl.Len() != 2 {
		t.Fatalf("Expected Len() == 2, got %d", tbl.Len())
	}

	tbl.Remove(h2)
	if tbl.Len() != 1 {
		t.Fatalf("Expected Len() == 1, got %d", tbl.Len())
	}
}

func TestTable_Each(t *testing.T) {
	tbl := NewTable[string](KindValue)

	tbl.Insert("a")
	tbl.Insert("b")
	tbl.Insert("c")

	var seen []string
	tbl.Each(func(h Handle, v string) bool {
		if got, ok := tbl.Get(h); !ok || got != v {
			t.Errorf("Each handle %v does not resolve to %q", h, v)
		}
		seen = append(seen, v)
		return true
	})
	if len(seen) != 3 || seen[0] != "a" || seen[2] != "c" {
		t.Fatalf("Expected slot order [a b c], got %v", seen)
	}

	count := 0
	tbl.Each(func(Handle, string) bool {
		count++
		return false
	})
	if count != 1 {
		t.Fatalf("Expected to iterate over 1 item (early term), got %d", count)
	}
}

func TestTable_Clear(t *testing.T) {
	tbl := NewTable[int](KindInstance)
	hs := []Handle{tbl.Insert(1), tbl.Insert(2), tbl.Insert(3)}

	sum := 0
	tbl.Clear(func(_ Handle, v int) { sum += v })

	if sum != 6 {
		t.Fatalf("Expected cleared values to sum to 6, got %d", sum)
	}
	if tbl.Len() != 0 {
		t.Fatalf("Expected empty table, got %d", tbl.Len())
	}
	for _, h := range hs {
		if tbl.Contains(h) {
			t.Fatalf("Handle %v survived Clear", h)
		}
	}
}

func TestTable_Observers(t *testing.T) {
	tbl := NewTable[int](KindValue)

	var events []Event
	tbl.Subscribe(ObserverFunc(func(e Event) {
		events = append(events, e)
	}))

	h := tbl.Insert(1)
	tbl.Remove(h)
	tbl.Remove(h)

	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Type != EventCreated || events[1].Type != EventReleased {
		t.Fatalf("Unexpected event order: %+v", events)
	}
	if events[1].Handle != h || events[1].Kind != KindValue {
		t.Fatalf("Unexpected release event: %+v", events[1])
	}
}

func TestHandle_String(t *testing.T) {
	if got := Handle(0).String(); got != "nil" {
		t.Fatalf("Expected nil, got %q", got)
	}
	h := makeHandle(KindInstance, 3, 4)
	if got := h.String(); got != "instance#5.3" {
		t.Fatalf("Expected instance#5.3, got %q", got)
	}
}
