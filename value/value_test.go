package value

import (
	"errors"
	"math"
	"testing"

	perrors "github.com/wippyai/plugin-host/errors"
)

func allVariants() []Value {
	return []Value{
		NewUndefined(),
		NewNone(),
		NewBool(true),
		NewInt(5),
		NewFloat(2.5),
		NewStringFrom("hello"),
		NewDict().Object(),
	}
}

func TestPrimitiveGetters(t *testing.T) {
	tests := []struct {
		v     Value
		typ   Type
		b     bool
		i     int32
		f     float64
		repr  string
		isStr bool
	}{
		{NewUndefined(), TypeUndefined, false, 0, 0, "Undefined", false},
		{NewNone(), TypeNone, false, 0, 0, "None", false},
		{NewBool(true), TypeBool, true, 0, 0, "True", false},
		{NewBool(false), TypeBool, false, 0, 0, "False", false},
		{NewInt(-42), TypeInt, false, -42, 0, "-42", false},
		{NewInt(math.MaxInt32), TypeInt, false, math.MaxInt32, 0, "2147483647", false},
		{NewFloat(1.5), TypeFloat, false, 0, 1.5, "1.5", false},
		{NewStringFrom("a\"b"), TypeString, false, 0, 0, `"a\"b"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String()+"_"+tt.repr, func(t *testing.T) {
			if tt.v.Type() != tt.typ {
				t.Errorf("Type() = %v, want %v", tt.v.Type(), tt.typ)
			}
			if tt.v.Bool() != tt.b {
				t.Errorf("Bool() = %v, want %v", tt.v.Bool(), tt.b)
			}
			if tt.v.Int() != tt.i {
				t.Errorf("Int() = %v, want %v", tt.v.Int(), tt.i)
			}
			if tt.v.Float() != tt.f {
				t.Errorf("Float() = %v, want %v", tt.v.Float(), tt.f)
			}
			if tt.v.Repr() != tt.repr {
				t.Errorf("Repr() = %q, want %q", tt.v.Repr(), tt.repr)
			}
			if _, ok := tt.v.Bytes(); ok != tt.isStr {
				t.Errorf("Bytes() ok = %v, want %v", ok, tt.isStr)
			}
		})
	}
}

func TestBytesOnNonStringVariants(t *testing.T) {
	for _, v := range allVariants() {
		if v.Type() == TypeString {
			continue
		}
		b, ok := v.Bytes()
		if ok || b != nil {
			t.Errorf("%v: Bytes() = (%q, %v), want (nil, false)", v.Type(), b, ok)
		}
	}
}

func TestNewStringCopies(t *testing.T) {
	src := []byte("abc")
	s := NewString(src)
	src[0] = 'x'

	b, _ := s.Bytes()
	if string(b) != "abc" {
		t.Fatalf("string value aliased its input: %q", b)
	}
}

func TestNonObjectOperationsFail(t *testing.T) {
	mismatch := &perrors.Error{Phase: perrors.PhaseValue, Kind: perrors.KindTypeMismatch}

	for _, v := range allVariants() {
		if v.Type() == TypeObject {
			continue
		}
		t.Run(v.Type().String(), func(t *testing.T) {
			if _, err := v.Property("x"); !errors.Is(err, mismatch) {
				t.Errorf("Property err = %v, want type mismatch", err)
			}
			if err := v.SetProperty("x", NewInt(1)); !errors.Is(err, mismatch) {
				t.Errorf("SetProperty err = %v, want type mismatch", err)
			}
			if v.HasMethod("x") {
				t.Error("HasMethod should be false")
			}
			if _, err := v.Call("x", true, nil); !errors.Is(err, mismatch) {
				t.Errorf("Call err = %v, want type mismatch", err)
			}
			if _, err := v.Eval("x"); !errors.Is(err, mismatch) {
				t.Errorf("Eval err = %v, want type mismatch", err)
			}
		})
	}
}

func TestCopyOut(t *testing.T) {
	src := []byte("hello world")

	buf := make([]byte, 5)
	if n := CopyOut(src, buf); n != len(src) {
		t.Fatalf("CopyOut returned %d, want %d", n, len(src))
	}
	if string(buf) != "hello" {
		t.Fatalf("truncated copy = %q, want %q", buf, "hello")
	}

	if n := CopyOut(src, nil); n != len(src) {
		t.Fatalf("CopyOut(nil) returned %d, want %d", n, len(src))
	}
}

func TestTypeString(t *testing.T) {
	if Type(99).String() != "invalid" {
		t.Fatalf("unknown type should print as invalid")
	}
	if TypeObject.String() != "object" {
		t.Fatalf("TypeObject = %q", TypeObject.String())
	}
}
