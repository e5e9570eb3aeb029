package sim

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/pylower/abi"
	"github.com/chazu/pylower/catalog"
)

var log = commonlog.GetLogger("pylower.sim")

// maxDepth bounds nested host invocations.
const maxDepth = 512

// Runtime holds the class table and the singletons of one simulated
// program. A Runtime is not safe for concurrent use.
type Runtime struct {
	classes map[string]*Class // by host class
	byName  map[string]*Class // by type name

	Object, Type, Function, Method                  *Class
	NoneType, NotImplementedType                    *Class
	Int, Bool, Str, Tuple, List, Dict, Set, Slice   *Class
	BaseException, Exception, StopIteration         *Class
	TypeError, AttributeError, ValueError           *Class
	RuntimeError, IndexError, KeyError              *Class
	Generator, Iterator                             *Class

	None, NotImplemented *Singleton
	True, False          *Int

	depth int
}

// New returns a runtime with the builtin classes installed.
func New() *Runtime {
	rt := &Runtime{
		classes: make(map[string]*Class),
		byName:  make(map[string]*Class),
	}
	rt.Object = rt.fromCatalog(catalog.Object)
	rt.Type = rt.fromCatalog(catalog.TypeType)
	rt.Function = rt.fromCatalog(catalog.Function)
	rt.Method = rt.fromCatalog(catalog.BoundFunction)
	rt.NoneType = rt.fromCatalog(catalog.NoneType)
	rt.NotImplementedType = rt.fromCatalog(catalog.NotImplementedType)
	rt.Int = rt.fromCatalog(catalog.Int)
	rt.Bool = rt.fromCatalog(catalog.Bool)
	rt.Str = rt.fromCatalog(catalog.Str)
	rt.Tuple = rt.fromCatalog(catalog.Tuple)
	rt.List = rt.fromCatalog(catalog.List)
	rt.Dict = rt.fromCatalog(catalog.Dict)
	rt.Set = rt.fromCatalog(catalog.Set)
	rt.Slice = rt.fromCatalog(catalog.Slice)
	rt.BaseException = rt.fromCatalog(catalog.BaseException)
	rt.StopIteration = rt.fromCatalog(catalog.StopIteration)
	rt.Generator = rt.fromCatalog(catalog.Generator)

	rt.Exception = rt.DefineClass("Exception", "pyrt/Exception", rt.BaseException)
	rt.TypeError = rt.DefineClass(abi.TypeError, "pyrt/TypeError", rt.Exception)
	rt.AttributeError = rt.DefineClass(abi.AttributeError, "pyrt/AttributeError", rt.Exception)
	rt.ValueError = rt.DefineClass(abi.ValueError, "pyrt/ValueError", rt.Exception)
	rt.RuntimeError = rt.DefineClass("RuntimeError", "pyrt/RuntimeError", rt.Exception)
	rt.IndexError = rt.DefineClass("IndexError", "pyrt/IndexError", rt.Exception)
	rt.KeyError = rt.DefineClass("KeyError", "pyrt/KeyError", rt.Exception)
	rt.Iterator = rt.DefineClass("iterator", "pyrt/SeqIterator", rt.Object)

	// StopIteration derives from Exception at runtime.
	rt.StopIteration.Base = rt.Exception

	rt.None = &Singleton{class: rt.NoneType}
	rt.NotImplemented = &Singleton{class: rt.NotImplementedType}
	rt.True = &Int{class: rt.Bool, V: 1}
	rt.False = &Int{class: rt.Bool, V: 0}
	rt.NoneType.Statics[abi.None.Name] = rt.None
	rt.NotImplementedType.Statics[abi.NotImplemented.Name] = rt.NotImplemented
	rt.Bool.Statics[abi.True.Name] = rt.True
	rt.Bool.Statics[abi.False.Name] = rt.False

	rt.installBuiltins()
	return rt
}

func (rt *Runtime) fromCatalog(t *catalog.Type) *Class {
	var base *Class
	if t.Base != nil {
		base = rt.classes[t.Base.Host]
	}
	return rt.DefineClass(t.Name, t.Host, base)
}

// DefineClass creates and registers a class.
func (rt *Runtime) DefineClass(name, hostClass string, base *Class) *Class {
	c := newClass(name, hostClass, base)
	rt.classes[hostClass] = c
	rt.byName[name] = c
	return c
}

// Define registers the runtime class of a cataloged type. Its base must
// already be defined. Methods are not derived from the catalog: the
// caller installs them with Class.Def.
func (rt *Runtime) Define(t *catalog.Type) (*Class, error) {
	if c, ok := rt.classes[t.Host]; ok {
		return c, nil
	}
	if t.Base == nil {
		return nil, fmt.Errorf("sim: type %s has no base", t.Name)
	}
	base, ok := rt.classes[t.Base.Host]
	if !ok {
		return nil, fmt.Errorf("sim: base %s of %s is not defined", t.Base.Name, t.Name)
	}
	log.Debugf("defining class %s (%s)", t.Name, t.Host)
	return rt.DefineClass(t.Name, t.Host, base), nil
}

// Class returns the class of a host class name.
func (rt *Runtime) Class(hostClass string) (*Class, bool) {
	c, ok := rt.classes[hostClass]
	return c, ok
}

// ClassNamed returns a class by type name.
func (rt *Runtime) ClassNamed(name string) (*Class, bool) {
	c, ok := rt.byName[name]
	return c, ok
}

// ---------------------------------------------------------------------------
// Value helpers
// ---------------------------------------------------------------------------

// NewInt returns an int object.
func (rt *Runtime) NewInt(v int64) *Int {
	return &Int{class: rt.Int, V: v}
}

// NewBool returns True or False.
func (rt *Runtime) NewBool(v bool) *Int {
	if v {
		return rt.True
	}
	return rt.False
}

// NewStr returns a str object.
func (rt *Runtime) NewStr(s string) *Str {
	return &Str{V: s}
}

// NewTuple returns a tuple of items.
func (rt *Runtime) NewTuple(items ...any) *Seq {
	return &Seq{class: rt.Tuple, Items: items}
}

// NewList returns a list of items.
func (rt *Runtime) NewList(items ...any) *Seq {
	return &Seq{class: rt.List, Items: items}
}

// NewDict returns an empty dict.
func (rt *Runtime) NewDict() *Dict {
	return &Dict{}
}

// TypeOf returns the class of a runtime value.
func (rt *Runtime) TypeOf(v any) *Class {
	switch o := v.(type) {
	case *Instance:
		return o.Class
	case *Int:
		return o.class
	case *Str:
		return rt.Str
	case *Seq:
		return o.class
	case *Dict:
		return rt.Dict
	case *Slice:
		return rt.Slice
	case *Singleton:
		return o.class
	case *Function:
		return rt.Function
	case *BoundFunction:
		return rt.Method
	case *Class:
		return rt.Type
	case *Generator:
		return rt.Generator
	case *SeqIterator:
		return rt.Iterator
	}
	return nil
}

// TypeName returns the type name of a value for messages.
func (rt *Runtime) TypeName(v any) string {
	if c := rt.TypeOf(v); c != nil {
		return c.Name
	}
	return fmt.Sprintf("%T", v)
}

// IsInstance reports whether v is an instance of c or a subclass.
func (rt *Runtime) IsInstance(v any, c *Class) bool {
	t := rt.TypeOf(v)
	return t != nil && t.IsSubclassOf(c)
}

// isHost reports whether v is an instance of a host class, for CHECKCAST
// and INSTANCEOF. Object and Function are interfaces.
func (rt *Runtime) isHost(v any, hostClass string) bool {
	switch hostClass {
	case abi.ObjectClass:
		return rt.TypeOf(v) != nil
	case abi.FunctionClass:
		switch v.(type) {
		case *Function, *BoundFunction, *Class:
			return true
		}
		return false
	}
	for c := rt.TypeOf(v); c != nil; c = c.Base {
		if c.Host == hostClass {
			return true
		}
	}
	return false
}

// Identical is the identity comparison of IF_ACMPEQ.
func Identical(a, b any) bool {
	return a == b
}

// Equal compares values for containment tests: identity, then int and str
// value equality.
func Equal(a, b any) bool {
	if a == b {
		return true
	}
	switch x := a.(type) {
	case *Int:
		y, ok := b.(*Int)
		return ok && x.V == y.V
	case *Str:
		y, ok := b.(*Str)
		return ok && x.V == y.V
	case *Seq:
		y, ok := b.(*Seq)
		if !ok || x.class != y.class || len(x.Items) != len(y.Items) {
			return false
		}
		for i := range x.Items {
			if !Equal(x.Items[i], y.Items[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Exceptions
// ---------------------------------------------------------------------------

// NewException creates an exception of class c with args.
func (rt *Runtime) NewException(c *Class, args ...any) *Instance {
	exc := &Instance{Class: c, Fields: map[string]any{"args": rt.NewTuple(args...)}}
	if c.IsSubclassOf(rt.StopIteration) {
		var value any = rt.None
		if len(args) > 0 {
			value = args[0]
		}
		exc.Fields["value"] = value
	}
	return exc
}

// Errorf creates an exception of class c with a formatted message.
func (rt *Runtime) Errorf(c *Class, format string, args ...any) *Instance {
	return rt.NewException(c, rt.NewStr(fmt.Sprintf(format, args...)))
}

// Raise wraps an exception as a Go error.
func Raise(exc *Instance) error {
	return &Raised{Exc: exc}
}

func (rt *Runtime) raisef(c *Class, format string, args ...any) error {
	return Raise(rt.Errorf(c, format, args...))
}

func (rt *Runtime) stopIteration(value any) error {
	return Raise(rt.NewException(rt.StopIteration, value))
}

// isStopIteration reports whether err is a raised StopIteration.
func (rt *Runtime) isStopIteration(err error) (*Instance, bool) {
	r, ok := err.(*Raised)
	if !ok || !r.Exc.Class.IsSubclassOf(rt.StopIteration) {
		return nil, false
	}
	return r.Exc, true
}

// exceptionOf turns a raise operand into an exception instance: classes
// are instantiated with no arguments.
func (rt *Runtime) exceptionOf(v any) (*Instance, error) {
	if c, ok := v.(*Class); ok {
		inst, err := rt.CallValue(c, nil, nil)
		if err != nil {
			return nil, err
		}
		v = inst
	}
	if exc, ok := v.(*Instance); ok && exc.Class.IsSubclassOf(rt.BaseException) {
		return exc, nil
	}
	return nil, rt.raisef(rt.TypeError, "exceptions must derive from BaseException")
}
