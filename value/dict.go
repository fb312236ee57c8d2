package value

import (
	"sort"
	"strings"

	"github.com/wippyai/plugin-host/errors"
)

// Method is a Go function callable on a Dict object.
type Method func(args []Value) (Value, error)

// Dict is a ready-made object backing: named properties plus Go methods.
//
// Eval resolves dotted property paths ("window.title"); the empty expression
// evaluates to the object itself. Calls made with needsResponse false run the
// method on its own goroutine and return Undefined immediately; their errors
// and panics go to OnError.
//
// A Dict holds its property values (see Holder) while they are set. It is
// not synchronized; mutate it only under the bridge lock or before it is
// shared.
type Dict struct {
	obj     *Object
	props   map[string]Value
	methods map[string]Method
	OnError func(method string, err error)
}

var dictClass = &Class{
	Name: "dict",
	GetProperty: func(o *Object, name string) (Value, bool) {
		v, ok := o.State.(*Dict).props[name]
		return v, ok
	},
	SetProperty: func(o *Object, name string, v Value) bool {
		o.State.(*Dict).put(name, v)
		return true
	},
	HasMethod: func(o *Object, name string) bool {
		_, ok := o.State.(*Dict).methods[name]
		return ok
	},
	Call: func(o *Object, method string, needsResponse bool, args []Value) (Value, error) {
		return o.State.(*Dict).call(method, needsResponse, args)
	},
	Eval: func(o *Object, expr string) (Value, error) {
		return evalPath(o, expr)
	},
	Repr: func(o *Object) string {
		return o.State.(*Dict).repr()
	},
}

func NewDict() *Dict {
	d := &Dict{
		props:   make(map[string]Value),
		methods: make(map[string]Method),
	}
	d.obj = NewObject(dictClass, d)
	return d
}

// Object returns the scripting value backed by this dict. The same object is
// returned on every call.
func (d *Dict) Object() *Object { return d.obj }

// Set stores v under name, holding it until it is replaced or deleted. A nil
// v deletes the property.
func (d *Dict) Set(name string, v Value) *Dict {
	d.put(name, v)
	return d
}

func (d *Dict) put(name string, v Value) {
	old, had := d.props[name]
	if v == nil {
		delete(d.props, name)
	} else {
		Retain(v)
		d.props[name] = v
	}
	if had {
		Drop(old)
	}
}

func (d *Dict) Get(name string) (Value, bool) {
	v, ok := d.props[name]
	return v, ok
}

func (d *Dict) Define(name string, m Method) *Dict {
	d.methods[name] = m
	return d
}

func (d *Dict) call(method string, needsResponse bool, args []Value) (Value, error) {
	m, ok := d.methods[method]
	if !ok {
		return nil, errors.NotFound(errors.PhaseValue, "method", method)
	}
	if needsResponse {
		return m(args)
	}

	argv := append([]Value(nil), args...)
	go func() {
		if err := callAsync(m, argv); err != nil && d.OnError != nil {
			d.OnError(method, err)
		}
	}()
	return NewUndefined(), nil
}

func callAsync(m Method, args []Value) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.New(errors.PhaseValue, errors.KindInvalidInput).
				Detail("method panicked: %v", p).
				Build()
		}
	}()
	_, err = m(args)
	return err
}

func (d *Dict) repr() string {
	keys := make([]string, 0, len(d.props))
	for k := range d.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(d.props[k].Repr())
	}
	b.WriteByte('}')
	return b.String()
}

func evalPath(root Value, expr string) (Value, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return root, nil
	}

	cur := root
	for _, part := range strings.Split(expr, ".") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, errors.InvalidInput(errors.PhaseValue, "empty path segment in "+expr)
		}
		next, err := cur.Property(part)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseValue, errors.KindNotFound, err, "eval "+expr)
		}
		cur = next
	}
	return cur, nil
}
