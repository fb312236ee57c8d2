package handle

// Table maps generation-checked handles to values.
//
// Table performs no locking; every caller serializes access under its own
// lock. A removed handle never resolves again: its slot generation is bumped
// on removal, and a slot whose generation is exhausted is retired instead of
// reused.
type Table[T any] struct {
	slots     []slot[T]
	free      []uint32
	observers []Observer
	live      int
	kind      Kind
}

type slot[T any] struct {
	value T
	gen   uint32
	used  bool
}

// NewTable creates an empty table issuing handles of the given kind.
func NewTable[T any](kind Kind) *Table[T] {
	return &Table[T]{
		kind:  kind,
		slots: make([]slot[T], 0, 16),
		free:  make([]uint32, 0, 8),
	}
}

// Kind returns the kind of handles this table issues.
func (t *Table[T]) Kind() Kind {
	return t.kind
}

// Insert stores a value and returns its handle.
func (t *Table[T]) Insert(value T) Handle {
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
		s := &t.slots[idx]
		s.value = value
		s.used = true
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, slot[T]{value: value, gen: 1, used: true})
	}
	t.live++

	h := makeHandle(t.kind, t.slots[idx].gen, idx)
	t.notify(Event{Handle: h, Kind: t.kind, Type: EventCreated})
	return h
}

func (t *Table[T]) lookup(h Handle) (*slot[T], bool) {
	if h == 0 || h.Kind() != t.kind {
		return nil, false
	}
	idx, ok := h.slot()
	if !ok || int(idx) >= len(t.slots) {
		return nil, false
	}
	s := &t.slots[idx]
	if !s.used || s.gen != h.generation() {
		return nil, false
	}
	return s, true
}

// Get retrieves a value by handle.
func (t *Table[T]) Get(h Handle) (T, bool) {
	s, ok := t.lookup(h)
	if !ok {
		var zero T
		return zero, false
	}
	return s.value, true
}

// Contains reports whether h currently resolves.
func (t *Table[T]) Contains(h Handle) bool {
	_, ok := t.lookup(h)
	return ok
}

// Remove releases a handle and returns (value, true) if it was live.
func (t *Table[T]) Remove(h Handle) (T, bool) {
	var zero T
	s, ok := t.lookup(h)
	if !ok {
		return zero, false
	}

	value := s.value
	s.value = zero
	s.used = false
	s.gen++
	t.live--

	idx, _ := h.slot()
	if s.gen <= maxGeneration {
		t.free = append(t.free, idx)
	}

	t.notify(Event{Handle: h, Kind: t.kind, Type: EventReleased})
	return value, true
}

// Len returns the number of live handles.
func (t *Table[T]) Len() int {
	return t.live
}

// Each iterates over live handles in slot order until fn returns false.
// fn must not insert or remove.
func (t *Table[T]) Each(fn func(Handle, T) bool) {
	for i := range t.slots {
		s := &t.slots[i]
		if !s.used {
			continue
		}
		if !fn(makeHandle(t.kind, s.gen, uint32(i)), s.value) {
			return
		}
	}
}

// Clear removes every live handle, passing each released value to fn.
func (t *Table[T]) Clear(fn func(Handle, T)) {
	var handles []Handle
	t.Each(func(h Handle, _ T) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		v, ok := t.Remove(h)
		if ok && fn != nil {
			fn(h, v)
		}
	}
}

// Subscribe adds an observer for lifecycle events.
func (t *Table[T]) Subscribe(o Observer) {
	t.observers = append(t.observers, o)
}

func (t *Table[T]) notify(e Event) {
	for _, o := range t.observers {
		o.OnHandleEvent(e)
	}
}
