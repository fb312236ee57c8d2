package value

import (
	"fmt"

	"github.com/wippyai/plugin-host/errors"
)

// Class is the capability table of an object value. Any nil entry makes the
// corresponding operation unsupported for objects of the class.
//
// A SetProperty that keeps v must Retain it and Drop the value it replaces.
// Release runs once, when the object's last hold is dropped.
type Class struct {
	GetProperty func(o *Object, name string) (Value, bool)
	SetProperty func(o *Object, name string, v Value) bool
	HasMethod   func(o *Object, name string) bool
	Call        func(o *Object, method string, needsResponse bool, args []Value) (Value, error)
	Eval        func(o *Object, expr string) (Value, error)
	Repr        func(o *Object) string
	Release     func(o *Object)
	Name        string
}

// Object is an opaque scripting value whose behavior is defined by its Class.
type Object struct {
	scalar
	class    *Class
	holds    int32
	released bool
	State    any
}

// NewObject creates an object of the given class carrying state.
func NewObject(class *Class, state any) *Object {
	if class == nil {
		class = &Class{Name: "object"}
	}
	return &Object{scalar: scalar{TypeObject}, class: class, State: state}
}

func (o *Object) Class() *Class { return o.class }

func (o *Object) Repr() string {
	if o.class.Repr != nil {
		return o.class.Repr(o)
	}
	return fmt.Sprintf("<%s object>", o.class.Name)
}

func (o *Object) Property(name string) (Value, error) {
	if o.class.GetProperty == nil {
		return NewNone(), nil
	}
	v, ok := o.class.GetProperty(o, name)
	if !ok || v == nil {
		return NewNone(), nil
	}
	return v, nil
}

func (o *Object) SetProperty(name string, v Value) error {
	if o.class.SetProperty == nil {
		return errors.TypeMismatch(errors.PhaseValue, []string{name}, o.class.Name, "set_property")
	}
	if !o.class.SetProperty(o, name, v) {
		return errors.New(errors.PhaseValue, errors.KindInvalidInput).
			Path(name).
			Type(o.class.Name).
			Detail("property rejected").
			Build()
	}
	return nil
}

func (o *Object) HasMethod(name string) bool {
	if o.class.HasMethod == nil {
		return false
	}
	return o.class.HasMethod(o, name)
}

func (o *Object) Call(method string, needsResponse bool, args []Value) (Value, error) {
	if o.class.Call == nil {
		return nil, errors.NotFound(errors.PhaseValue, "method", method)
	}
	result, err := o.class.Call(o, method, needsResponse, args)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return NewUndefined(), nil
	}
	return result, nil
}

func (o *Object) Eval(expr string) (Value, error) {
	if o.class.Eval == nil {
		return nil, errors.TypeMismatch(errors.PhaseValue, nil, o.class.Name, "eval")
	}
	result, err := o.class.Eval(o, expr)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return NewUndefined(), nil
	}
	return result, nil
}

func (o *Object) Retain() {
	o.holds++
}

// Drop gives up one hold and runs the class destructor when none remain.
// Dropping an object that holds nothing is a no-op.
func (o *Object) Drop() {
	if o.holds <= 0 {
		return
	}
	o.holds--
	if o.holds == 0 {
		o.release()
	}
}

// Holds returns the number of outstanding holds.
func (o *Object) Holds() int32 { return o.holds }

// Released reports whether the class destructor has run.
func (o *Object) Released() bool { return o.released }

func (o *Object) release() {
	if o.released {
		return
	}
	o.released = true
	if o.class.Release != nil {
		o.class.Release(o)
	}
}
