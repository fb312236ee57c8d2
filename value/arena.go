package value

import (
	"github.com/wippyai/plugin-host/errors"
	"github.com/wippyai/plugin-host/handle"
)

// Arena owns every value that has been handed across the boundary and counts
// the references held on it.
//
// A value keeps a single handle for as long as any reference is outstanding:
// exporting it again bumps the count instead of issuing a second handle. The
// count reaches zero only through Decref, at which point the handle is
// released and the arena's hold on the value is dropped. A value still held
// by a container survives and gets a fresh handle when exported again.
//
// Arena is not synchronized; the bridge calls it under the global lock.
type Arena struct {
	table *handle.Table[*entry]
	index map[Value]handle.Handle
}

type entry struct {
	v    Value
	refs int32
}

func NewArena() *Arena {
	return &Arena{
		table: handle.NewTable[*entry](handle.KindValue),
		index: make(map[Value]handle.Handle),
	}
}

// Export returns a handle owning one new reference to v.
func (a *Arena) Export(v Value) handle.Handle {
	if v == nil {
		return 0
	}
	if h, ok := a.index[v]; ok {
		if e, ok := a.table.Get(h); ok {
			e.refs++
			return h
		}
		delete(a.index, v)
	}
	h := a.table.Insert(&entry{v: v, refs: 1})
	a.index[v] = h
	Retain(v)
	return h
}

// Resolve returns the value behind h.
func (a *Arena) Resolve(h handle.Handle) (Value, bool) {
	e, ok := a.table.Get(h)
	if !ok {
		return nil, false
	}
	return e.v, true
}

// Lookup returns the live handle of v without taking a reference.
func (a *Arena) Lookup(v Value) (handle.Handle, bool) {
	h, ok := a.index[v]
	if !ok || !a.table.Contains(h) {
		return 0, false
	}
	return h, true
}

func (a *Arena) Incref(h handle.Handle) error {
	e, ok := a.table.Get(h)
	if !ok {
		return errors.Refcount(uint64(h), "incref of released value")
	}
	e.refs++
	return nil
}

// Decref drops one reference. Decrementing a released handle is a contract
// violation and is reported as an error rather than ignored.
func (a *Arena) Decref(h handle.Handle) error {
	e, ok := a.table.Get(h)
	if !ok {
		return errors.Refcount(uint64(h), "decref of released value")
	}
	e.refs--
	if e.refs > 0 {
		return nil
	}
	a.release(h, e)
	return nil
}

func (a *Arena) release(h handle.Handle, e *entry) {
	a.table.Remove(h)
	delete(a.index, e.v)
	Drop(e.v)
}

// Refs returns the outstanding reference count of h, or 0 if h is not live.
func (a *Arena) Refs(h handle.Handle) int32 {
	e, ok := a.table.Get(h)
	if !ok {
		return 0
	}
	return e.refs
}

func (a *Arena) Len() int {
	return a.table.Len()
}

// Clear invalidates every handle regardless of outstanding references and
// drops the arena's holds. Values no container holds are released.
func (a *Arena) Clear() {
	a.table.Clear(func(_ handle.Handle, e *entry) {
		delete(a.index, e.v)
		Drop(e.v)
	})
}

// Subscribe adds an observer for value handle events.
func (a *Arena) Subscribe(o handle.Observer) {
	a.table.Subscribe(o)
}
