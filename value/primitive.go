package value

import (
	"strconv"
)

type Undefined struct{ scalar }

func NewUndefined() *Undefined { return &Undefined{scalar{TypeUndefined}} }

func (*Undefined) Repr() string { return "Undefined" }

type None struct{ scalar }

func NewNone() *None { return &None{scalar{TypeNone}} }

func (*None) Repr() string { return "None" }

type Bool struct {
	scalar
	v bool
}

func NewBool(v bool) *Bool { return &Bool{scalar: scalar{TypeBool}, v: v} }

func (b *Bool) Bool() bool { return b.v }

func (b *Bool) Repr() string {
	if b.v {
		return "True"
	}
	return "False"
}

type Int struct {
	scalar
	v int32
}

func NewInt(v int32) *Int { return &Int{scalar: scalar{TypeInt}, v: v} }

func (i *Int) Int() int32 { return i.v }

func (i *Int) Repr() string { return strconv.FormatInt(int64(i.v), 10) }

type Float struct {
	scalar
	v float64
}

func NewFloat(v float64) *Float { return &Float{scalar: scalar{TypeFloat}, v: v} }

func (f *Float) Float() float64 { return f.v }

func (f *Float) Repr() string { return strconv.FormatFloat(f.v, 'g', -1, 64) }

// String holds arbitrary bytes; it need not be valid UTF-8.
type String struct {
	scalar
	v []byte
}

// NewString copies b.
func NewString(b []byte) *String {
	return &String{scalar: scalar{TypeString}, v: append([]byte(nil), b...)}
}

func NewStringFrom(s string) *String {
	return &String{scalar: scalar{TypeString}, v: []byte(s)}
}

func (s *String) Bytes() ([]byte, bool) { return s.v, true }

func (s *String) Repr() string { return strconv.Quote(string(s.v)) }

// CopyOut copies src into buf, truncating as needed, and returns the full
// length of src so callers can retry with a large enough buffer.
func CopyOut(src []byte, buf []byte) int {
	copy(buf, src)
	return len(src)
}
