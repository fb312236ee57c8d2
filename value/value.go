package value

import (
	"github.com/wippyai/plugin-host/errors"
)

// Type is the variant tag of a scripting value.
type Type int8

const (
	TypeUndefined Type = iota
	TypeNone
	TypeBool
	TypeInt
	TypeFloat
	TypeString
	TypeObject
)

func (t Type) String() string {
	switch t {
	case TypeUndefined:
		return "undefined"
	case TypeNone:
		return "none"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeObject:
		return "object"
	default:
		return "invalid"
	}
}

// Value is a polymorphic unit of data exchanged between the host and the
// runtime.
//
// Primitive getters never fail: invoked on a mismatched variant they return
// the zero value of their result type. Property, method and eval operations
// are only supported by objects; other variants return a type mismatch error.
//
// Implementations must be comparable (pointer types), because the Arena keys
// exported values by identity.
type Value interface {
	Type() Type
	Bool() bool
	Int() int32
	Float() float64
	// Bytes returns the content of a string value and false for any other variant.
	Bytes() ([]byte, bool)
	Repr() string

	// Property returns the named property, or None when it is absent.
	Property(name string) (Value, error)
	// SetProperty stores v under name; a nil v deletes the property.
	SetProperty(name string, v Value) error
	HasMethod(name string) bool
	// Call invokes a method. With needsResponse false the callee may return a
	// placeholder immediately and finish the work asynchronously.
	Call(method string, needsResponse bool, args []Value) (Value, error)
	Eval(expr string) (Value, error)
}

// Holder is implemented by values whose lifetime spans every holder: a live
// arena handle counts once, and so does each container slot storing the
// value. The value is released when the last hold is dropped.
type Holder interface {
	Retain()
	Drop()
}

// Retain takes a hold on v if it is a Holder.
func Retain(v Value) {
	if h, ok := v.(Holder); ok {
		h.Retain()
	}
}

// Drop gives up a hold taken with Retain.
func Drop(v Value) {
	if h, ok := v.(Holder); ok {
		h.Drop()
	}
}

// scalar supplies the mismatch behavior shared by every variant; each variant
// overrides the getters it supports.
type scalar struct {
	typ Type
}

func (s scalar) Type() Type            { return s.typ }
func (s scalar) Bool() bool            { return false }
func (s scalar) Int() int32            { return 0 }
func (s scalar) Float() float64        { return 0 }
func (s scalar) Bytes() ([]byte, bool) { return nil, false }

func (s scalar) Property(name string) (Value, error) {
	return nil, errors.TypeMismatch(errors.PhaseValue, []string{name}, s.typ.String(), "get_property")
}

func (s scalar) SetProperty(name string, _ Value) error {
	return errors.TypeMismatch(errors.PhaseValue, []string{name}, s.typ.String(), "set_property")
}

func (s scalar) HasMethod(string) bool { return false }

func (s scalar) Call(method string, _ bool, _ []Value) (Value, error) {
	return nil, errors.TypeMismatch(errors.PhaseValue, []string{method}, s.typ.String(), "call")
}

func (s scalar) Eval(string) (Value, error) {
	return nil, errors.TypeMismatch(errors.PhaseValue, nil, s.typ.String(), "eval")
}
