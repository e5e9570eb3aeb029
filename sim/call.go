package sim

import (
	"github.com/chazu/pylower/abi"
)

// ---------------------------------------------------------------------------
// The generic call protocol
// ---------------------------------------------------------------------------

// CallValue calls fn with positional and keyword arguments. kw may be nil.
func (rt *Runtime) CallValue(fn any, args []any, kw *Dict) (any, error) {
	switch f := fn.(type) {
	case *Function:
		hostArgs, err := rt.Bind(f, args, kw)
		if err != nil {
			return nil, err
		}
		return rt.callHost(f, hostArgs)
	case *BoundFunction:
		return rt.CallValue(f.Func, append([]any{f.Self}, args...), kw)
	case *Class:
		return rt.instantiate(f, args, kw)
	}
	return nil, rt.raisef(rt.TypeError, "%s", abi.NotCallableMessage(rt.TypeName(fn)))
}

// callHost calls f with arguments already in host order.
func (rt *Runtime) callHost(f *Function, args []any) (any, error) {
	if rt.depth >= maxDepth {
		return nil, rt.raisef(rt.RuntimeError, "maximum recursion depth exceeded")
	}
	rt.depth++
	defer func() { rt.depth-- }()
	return f.Body(args)
}

// Bind maps positional and keyword arguments to the host parameters of f.
// Errors use the same messages as call sites bound at lowering time.
func (rt *Runtime) Bind(f *Function, args []any, kw *Dict) ([]any, error) {
	bound := make([]any, len(f.Params))
	set := make([]bool, len(f.Params))

	n := len(args)
	if n > len(f.Params) {
		if !f.VarArgs {
			return nil, rt.raisef(rt.TypeError, "%s", abi.TooManyPositionalMessage(f.Name, len(f.Params), len(args)))
		}
		n = len(f.Params)
	}
	for i := 0; i < n; i++ {
		bound[i] = args[i]
		set[i] = true
	}
	var extra *Seq
	if f.VarArgs {
		extra = rt.NewTuple(append([]any(nil), args[n:]...)...)
	}

	var extraKw *Dict
	if f.VarKw {
		extraKw = rt.NewDict()
	}
	if kw != nil {
		for i, k := range kw.Keys {
			name := stringOf(k)
			idx := indexOf(f.Params, name)
			switch {
			case idx >= 0 && set[idx]:
				return nil, rt.raisef(rt.TypeError, "%s", abi.MultipleValuesMessage(f.Name, name))
			case idx >= 0:
				bound[idx] = kw.Vals[i]
				set[idx] = true
			case extraKw != nil:
				extraKw.Put(k, kw.Vals[i])
			default:
				return nil, rt.raisef(rt.TypeError, "%s", abi.UnexpectedKeywordMessage(f.Name, name))
			}
		}
	}

	for i, name := range f.Params {
		if set[i] {
			continue
		}
		d, ok := f.Defaults[name]
		if !ok {
			return nil, rt.raisef(rt.TypeError, "%s", abi.MissingArgumentMessage(f.Name, name))
		}
		bound[i] = d
	}
	if extra != nil {
		bound = append(bound, extra)
	}
	if extraKw != nil {
		bound = append(bound, extraKw)
	}
	return bound, nil
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func stringOf(v any) string {
	switch s := v.(type) {
	case *Str:
		return s.V
	case string:
		return s
	}
	return ""
}

// instantiate creates an instance of c and runs __init__.
func (rt *Runtime) instantiate(c *Class, args []any, kw *Dict) (any, error) {
	switch {
	case c.IsSubclassOf(rt.BaseException):
		exc := rt.NewException(c, args...)
		if init, ok := c.Lookup("__init__"); ok && c.DefiningClass("__init__") != rt.BaseException {
			if _, err := rt.CallValue(init, append([]any{exc}, args...), kw); err != nil {
				return nil, err
			}
		}
		return exc, nil
	case rt.userClass(c):
		obj := &Instance{Class: c, Fields: make(map[string]any)}
		if init, ok := c.Lookup("__init__"); ok {
			if _, err := rt.CallValue(init, append([]any{obj}, args...), kw); err != nil {
				return nil, err
			}
		}
		return obj, nil
	}
	return nil, rt.raisef(rt.TypeError, "cannot create '%s' instances", c.Name)
}

// userClass reports whether c derives from object without passing through
// a builtin class with its own representation.
func (rt *Runtime) userClass(c *Class) bool {
	for k := c; k != nil; k = k.Base {
		if k == rt.Object {
			return true
		}
		if _, builtin := rt.representation(k); builtin {
			return false
		}
	}
	return false
}

// representation reports whether instances of c are not *Instance values.
func (rt *Runtime) representation(c *Class) (string, bool) {
	switch c {
	case rt.Int, rt.Bool, rt.Str, rt.Tuple, rt.List, rt.Dict, rt.Set, rt.Slice,
		rt.NoneType, rt.NotImplementedType, rt.Function, rt.Method, rt.Type,
		rt.Generator, rt.Iterator:
		return c.Name, true
	}
	return "", false
}

// ---------------------------------------------------------------------------
// Attributes
// ---------------------------------------------------------------------------

// GetAttr looks an attribute up on a value: instance fields first, then
// the class chain, binding functions to the value.
func (rt *Runtime) GetAttr(obj any, name string) (any, bool) {
	if c, ok := obj.(*Class); ok {
		if v, ok := c.Lookup(name); ok {
			if f, ok := v.(*Function); ok && f.ClassMethod {
				return &BoundFunction{Self: c, Func: f}, true
			}
			return v, true
		}
	}
	if fo, ok := obj.(*Instance); ok {
		if v, ok := fo.field(name); ok && v != nil {
			return v, true
		}
	}
	c := rt.TypeOf(obj)
	if c == nil {
		return nil, false
	}
	v, ok := c.Lookup(name)
	if !ok {
		return nil, false
	}
	if f, ok := v.(*Function); ok {
		switch {
		case f.Static:
			return f, true
		case f.ClassMethod:
			return &BoundFunction{Self: c, Func: f}, true
		}
		return &BoundFunction{Self: obj, Func: f}, true
	}
	return v, true
}

// Attr looks an attribute up and raises AttributeError when it is missing.
func (rt *Runtime) Attr(obj any, name string) (any, error) {
	if v, ok := rt.GetAttr(obj, name); ok {
		return v, nil
	}
	return nil, Raise(rt.noAttribute(obj, name))
}

func (rt *Runtime) noAttribute(obj any, name string) *Instance {
	return rt.Errorf(rt.AttributeError, "%s", abi.NoAttributeMessage(rt.TypeName(obj), name))
}

// CallMethod looks up and calls a method of obj with positional arguments.
func (rt *Runtime) CallMethod(obj any, name string, args ...any) (any, error) {
	fn, err := rt.Attr(obj, name)
	if err != nil {
		return nil, err
	}
	return rt.CallValue(fn, args, nil)
}

// Truth converts a value to a Go bool through __bool__ or __len__.
func (rt *Runtime) Truth(v any) (bool, error) {
	switch o := v.(type) {
	case *Int:
		return o.V != 0, nil
	case *Singleton:
		if o == rt.None {
			return false, nil
		}
	}
	c := rt.TypeOf(v)
	if c == nil {
		return false, faultf("truth of host value %T", v)
	}
	if c.DefiningClass("__bool__") != rt.Object {
		r, err := rt.CallMethod(v, "__bool__")
		if err != nil {
			return false, err
		}
		b, ok := r.(*Int)
		if !ok || b.class != rt.Bool {
			return false, rt.raisef(rt.TypeError, "__bool__ should return bool, returned %s", rt.TypeName(r))
		}
		return b.V != 0, nil
	}
	if _, ok := c.Lookup("__len__"); ok {
		r, err := rt.CallMethod(v, "__len__")
		if err != nil {
			return false, err
		}
		n, ok := r.(*Int)
		return ok && n.V != 0, nil
	}
	return true, nil
}

// Iterate drains an iterable into a slice.
func (rt *Runtime) Iterate(v any) ([]any, error) {
	switch o := v.(type) {
	case *Seq:
		return append([]any(nil), o.Items...), nil
	case *Dict:
		return append([]any(nil), o.Keys...), nil
	}
	it, err := rt.CallMethod(v, "__iter__")
	if err != nil {
		return nil, err
	}
	var out []any
	for {
		item, err := rt.CallMethod(it, "__next__")
		if err != nil {
			if _, ok := rt.isStopIteration(err); ok {
				return out, nil
			}
			return nil, err
		}
		out = append(out, item)
	}
}
