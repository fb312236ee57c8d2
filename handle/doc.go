// Package handle provides generation-checked handle tables.
//
// Every object that crosses the bridge boundary (instances, scripting values,
// delivered requests) is referenced by a Handle rather than a pointer. A
// Handle encodes its slot, the slot generation and the kind of table that
// issued it:
//
//	instances := handle.NewTable[*Instance](handle.KindInstance)
//
//	h := instances.Insert(inst)
//	inst, ok := instances.Get(h)   // ok
//	instances.Remove(h)
//	_, ok = instances.Get(h)       // !ok, forever
//
// Removing a handle bumps its slot generation, so a stale handle never
// resolves to a later occupant of the same slot. Handles of one kind never
// resolve in a table of another kind.
//
// # Locking
//
// Tables are not synchronized. The bridge guards all of them with its single
// global lock, so no finer-grained lock is ever taken inside that critical
// section.
//
// # Observers
//
// Register observers to track handle lifecycle events:
//
//	table.Subscribe(handle.ObserverFunc(func(e handle.Event) {
//	    log.Printf("%s %v", e.Handle, e.Type)
//	}))
package handle
