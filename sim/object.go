// Package sim executes host methods. It pairs an interpreter for the host
// instruction set with a small runtime object model implementing every
// runtime-library call the lowering emits, so lowered code can be run and
// observed in tests and from the command line.
//
// Host values are nil, int64 (int, long and boolean kinds), string (host
// strings) and the runtime objects defined here.
package sim

import (
	"fmt"

	"github.com/chazu/pylower/host"
)

// ---------------------------------------------------------------------------
// Classes
// ---------------------------------------------------------------------------

// Class is a runtime type. Classes are values: calling one creates an
// instance.
type Class struct {
	Name string
	Host string
	Base *Class

	// Attrs holds the class attributes, methods included.
	Attrs map[string]any
	// Statics holds host static fields other than $TYPE.
	Statics map[string]any
}

func newClass(name, hostClass string, base *Class) *Class {
	return &Class{
		Name:    name,
		Host:    hostClass,
		Base:    base,
		Attrs:   make(map[string]any),
		Statics: make(map[string]any),
	}
}

// Lookup finds an attribute along the base chain.
func (c *Class) Lookup(name string) (any, bool) {
	for k := c; k != nil; k = k.Base {
		if v, ok := k.Attrs[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// DefiningClass returns the nearest class in the base chain declaring
// name, or nil.
func (c *Class) DefiningClass(name string) *Class {
	for k := c; k != nil; k = k.Base {
		if _, ok := k.Attrs[name]; ok {
			return k
		}
	}
	return nil
}

// IsSubclassOf reports whether c is other or derives from it.
func (c *Class) IsSubclassOf(other *Class) bool {
	for k := c; k != nil; k = k.Base {
		if k == other {
			return true
		}
	}
	return false
}

// Def declares a function attribute.
func (c *Class) Def(f *Function) *Function {
	c.Attrs[f.Name] = f
	return f
}

func (c *Class) String() string {
	return c.Name
}

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

// Instance is an object of a user class or an exception. Its fields double
// as its attribute dictionary; a nil field is an unset attribute.
type Instance struct {
	Class  *Class
	Fields map[string]any
}

// Int is an integer or a bool.
type Int struct {
	class *Class
	V     int64
}

// Str is a string object.
type Str struct {
	V string
}

// Seq is a tuple, list or set.
type Seq struct {
	class *Class
	Items []any
}

// Dict is an insertion-ordered mapping.
type Dict struct {
	Keys []any
	Vals []any
}

// Slice is a slice object.
type Slice struct {
	Start, Stop, Step any
}

// Singleton is None or NotImplemented.
type Singleton struct {
	class *Class
}

// Function is a callable. Body receives its arguments in host order: the
// named parameters, then the surplus tuple and then the keyword dict when
// the function declares them.
type Function struct {
	Name     string
	Params   []string
	Defaults map[string]any
	VarArgs  bool
	VarKw    bool
	// ClassMethod functions bind to the class of the instance they are
	// looked up on.
	ClassMethod bool
	Static      bool
	Body        func(args []any) (any, error)
}

// BoundFunction is a function bound to its first argument.
type BoundFunction struct {
	Self any
	Func any
}

// SeqIterator iterates over a snapshot of a sequence.
type SeqIterator struct {
	items []any
	next  int
}

// Generator is a suspended lowered generator body.
type Generator struct {
	method   *host.Method
	args     []any
	fields   map[string]any
	running  bool
	finished bool
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// Raised carries a runtime exception out of host code.
type Raised struct {
	Exc *Instance
}

func (e *Raised) Error() string {
	return e.Exc.Class.Name + ": " + Message(e.Exc)
}

// Fault is a defect in host code, such as a failed cast. Handlers never
// catch faults.
type Fault struct {
	Method string
	PC     int
	Msg    string
}

func (e *Fault) Error() string {
	if e.Method == "" {
		return "sim: " + e.Msg
	}
	return fmt.Sprintf("sim: %s at %04d: %s", e.Method, e.PC, e.Msg)
}

func faultf(format string, args ...any) error {
	return &Fault{Msg: fmt.Sprintf(format, args...)}
}

// Message returns the first argument of an exception when it is a string.
func Message(exc *Instance) string {
	args, ok := exc.Fields["args"].(*Seq)
	if !ok || len(args.Items) == 0 {
		return ""
	}
	if s, ok := args.Items[0].(*Str); ok {
		return s.V
	}
	return fmt.Sprint(args.Items[0])
}

// ---------------------------------------------------------------------------
// Field access
// ---------------------------------------------------------------------------

// fielder is implemented by values with host fields.
type fielder interface {
	field(name string) (any, bool)
	setField(name string, v any)
}

func (o *Instance) field(name string) (any, bool) {
	v, ok := o.Fields[name]
	return v, ok
}

func (o *Instance) setField(name string, v any) {
	o.Fields[name] = v
}

// Field returns a frame field of the generator, nil when unset.
func (g *Generator) Field(name string) any {
	return g.fields[name]
}

func (g *Generator) field(name string) (any, bool) {
	v, ok := g.fields[name]
	return v, ok
}

func (g *Generator) setField(name string, v any) {
	g.fields[name] = v
}
