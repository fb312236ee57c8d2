// Package value implements the scripting values exchanged across the bridge.
//
// A Value is one of undefined, none, bool, int (32-bit), float, string (raw
// bytes) or object. Objects delegate to a Class capability table, so hosts
// and runtimes can expose their own object kinds:
//
//	class := &value.Class{
//	    Name: "counter",
//	    GetProperty: func(o *value.Object, name string) (value.Value, bool) {
//	        if name == "count" {
//	            return value.NewInt(o.State.(*counter).n), true
//	        }
//	        return nil, false
//	    },
//	}
//	obj := value.NewObject(class, &counter{})
//
// Dict is a ready-made class for property bags with Go methods.
//
// # Reference counting
//
// Values cross the boundary as handles issued by an Arena. Each handle
// carries an explicit reference count: Export returns a handle owning one
// reference, Incref and Decref adjust it, and the value is released when the
// count reaches zero. Decref on a released handle is a contract violation
// reported as an error.
package value
