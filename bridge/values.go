package bridge

import (
	"go.uber.org/zap"

	"github.com/wippyai/plugin-host/errors"
	"github.com/wippyai/plugin-host/handle"
	"github.com/wippyai/plugin-host/value"
)

func (g *Gateway) export(v value.Value) handle.Handle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.values.Export(v)
}

func (g *Gateway) NewUndefined() handle.Handle { return g.export(value.NewUndefined()) }

func (g *Gateway) NewNone() handle.Handle { return g.export(value.NewNone()) }

func (g *Gateway) NewBool(v bool) handle.Handle { return g.export(value.NewBool(v)) }

func (g *Gateway) NewInt(v int32) handle.Handle { return g.export(value.NewInt(v)) }

func (g *Gateway) NewFloat(v float64) handle.Handle { return g.export(value.NewFloat(v)) }

// NewString copies data into a new string value.
func (g *Gateway) NewString(data []byte) handle.Handle { return g.export(value.NewString(data)) }

// NewObject creates an object of class carrying state. A nil class yields an
// object with no properties or methods.
func (g *Gateway) NewObject(class *value.Class, state any) handle.Handle {
	return g.export(value.NewObject(class, state))
}

// ExportValue hands an existing Go value across the boundary, returning a
// handle that owns one new reference.
func (g *Gateway) ExportValue(v value.Value) handle.Handle {
	if v == nil {
		return 0
	}
	return g.export(v)
}

// resolve runs with the lock held.
func (g *Gateway) resolve(op string, h handle.Handle) (value.Value, bool) {
	v, ok := g.values.Resolve(h)
	if !ok {
		g.invalid(op, "value", h)
	}
	return v, ok
}

// ValueGetType returns TypeUndefined for invalid handles.
func (g *Gateway) ValueGetType(h handle.Handle) value.Type {
	g.mu.Lock()
	defer g.mu.Unlock()

	v, ok := g.resolve("value_get_type", h)
	if !ok {
		return value.TypeUndefined
	}
	return v.Type()
}

func (g *Gateway) ValueGetBool(h handle.Handle) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	v, ok := g.resolve("value_get_bool", h)
	if !ok {
		return false
	}
	return v.Bool()
}

func (g *Gateway) ValueGetInt(h handle.Handle) int32 {
	g.mu.Lock()
	defer g.mu.Unlock()

	v, ok := g.resolve("value_get_int", h)
	if !ok {
		return 0
	}
	return v.Int()
}

func (g *Gateway) ValueGetFloat(h handle.Handle) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	v, ok := g.resolve("value_get_float", h)
	if !ok {
		return 0
	}
	return v.Float()
}

// ValueGetString copies the string into buf, truncating if needed, and
// returns the full length. It returns -1 for non-string values.
func (g *Gateway) ValueGetString(h handle.Handle, buf []byte) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	v, ok := g.resolve("value_get_string", h)
	if !ok {
		return -1
	}
	b, ok := v.Bytes()
	if !ok {
		g.log.Debug("value_get_string", zap.Error(errors.TypeMismatch(errors.PhaseValue, nil, v.Type().String(), "get_string")))
		return -1
	}
	return value.CopyOut(b, buf)
}

// ValueGetRepr copies the printable form of any value into buf and returns
// its full length, or -1 for an invalid handle.
func (g *Gateway) ValueGetRepr(h handle.Handle, buf []byte) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	v, ok := g.resolve("value_get_repr", h)
	if !ok {
		return -1
	}
	return value.CopyOut([]byte(v.Repr()), buf)
}

// ValueGetProperty returns a new reference to the named property. Absent
// properties read as None; non-object values return 0.
func (g *Gateway) ValueGetProperty(h handle.Handle, name string) handle.Handle {
	g.mu.Lock()
	defer g.mu.Unlock()

	v, ok := g.resolve("value_get_property", h)
	if !ok {
		return 0
	}
	prop, err := v.Property(name)
	if err != nil {
		g.log.Debug("value_get_property", zap.String("name", name), zap.Error(err))
		return 0
	}
	return g.values.Export(prop)
}

// ValueSetProperty stores val under name. A zero val deletes the property.
// The object keeps its own reference to the value, not the caller's handle.
func (g *Gateway) ValueSetProperty(h handle.Handle, name string, val handle.Handle) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	v, ok := g.resolve("value_set_property", h)
	if !ok {
		return false
	}
	var pv value.Value
	if val != 0 {
		if pv, ok = g.resolve("value_set_property", val); !ok {
			return false
		}
	}
	if err := v.SetProperty(name, pv); err != nil {
		g.log.Debug("value_set_property", zap.String("name", name), zap.Error(err))
		return false
	}
	return true
}

func (g *Gateway) ValueHasMethod(h handle.Handle, name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	v, ok := g.resolve("value_has_method", h)
	if !ok {
		return false
	}
	return v.HasMethod(name)
}

// ValueCall invokes method with args and returns a new reference to the
// result, or 0 on failure. Class callbacks run with the gateway lock held and
// must not call back into the gateway.
func (g *Gateway) ValueCall(h handle.Handle, method string, needsResponse bool, args []handle.Handle) handle.Handle {
	g.mu.Lock()
	defer g.mu.Unlock()

	v, ok := g.resolve("value_call", h)
	if !ok {
		return 0
	}
	argv := make([]value.Value, len(args))
	for i, ah := range args {
		if argv[i], ok = g.resolve("value_call", ah); !ok {
			return 0
		}
	}
	res, err := v.Call(method, needsResponse, argv)
	if err != nil {
		g.log.Debug("value_call", zap.String("method", method), zap.Error(err))
		return 0
	}
	if res == nil {
		res = value.NewUndefined()
	}
	return g.values.Export(res)
}

// ValueEval evaluates expr against an object and returns a new reference to
// the result, or 0 on failure.
func (g *Gateway) ValueEval(h handle.Handle, expr string) handle.Handle {
	g.mu.Lock()
	defer g.mu.Unlock()

	v, ok := g.resolve("value_eval", h)
	if !ok {
		return 0
	}
	res, err := v.Eval(expr)
	if err != nil {
		g.log.Debug("value_eval", zap.String("expr", expr), zap.Error(err))
		return 0
	}
	return g.values.Export(res)
}

// ValueIncref takes another reference on a live value.
func (g *Gateway) ValueIncref(h handle.Handle) {
	if h == 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.values.Incref(h); err != nil {
		g.log.DPanic("value_incref", zap.Error(err))
	}
}

// ValueDecref drops one reference, releasing the value at zero. Dropping a
// reference on a released value is a contract violation.
func (g *Gateway) ValueDecref(h handle.Handle) {
	if h == 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.values.Decref(h); err != nil {
		g.log.DPanic("value_decref", zap.Error(err))
	}
}

// ValueRefs reports the outstanding references on h, 0 once released.
func (g *Gateway) ValueRefs(h handle.Handle) int32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.values.Refs(h)
}
