// Package catalog records what the lowering knows statically about types:
// their host classes, base types, field mappings and the signatures of the
// methods they expose.
//
// A Type is built once and then only read. Lowering treats every Type and
// Signature as immutable, so a Registry may be shared by workers lowering
// different functions concurrently.
package catalog

import (
	"sort"

	"github.com/chazu/pylower/host"
)

// Type is the static description of a runtime type.
type Type struct {
	Name string
	Host string // host class name
	Base *Type

	fields  map[string]*Field
	methods map[string]*Signature

	// call is the signature invoked when a value of this type is called,
	// for statically known functions and bound methods.
	call  *Signature
	bound bool
}

// Field maps an attribute name to a host field.
type Field struct {
	Name string
	Type *Type
	Host host.FieldRef
}

// NewType creates a type. base may be nil only for the root type.
func NewType(name, hostClass string, base *Type) *Type {
	return &Type{
		Name:    name,
		Host:    hostClass,
		Base:    base,
		fields:  make(map[string]*Field),
		methods: make(map[string]*Signature),
	}
}

// NewFunctionType describes a value statically known to be the function
// with signature sig.
func NewFunctionType(sig *Signature) *Type {
	t := NewType(sig.Name, Function.Host, Function)
	t.call = sig
	return t
}

// NewBoundMethodType describes a method value bound to a receiver.
func NewBoundMethodType(sig *Signature) *Type {
	t := NewType(sig.Name, BoundFunction.Host, BoundFunction)
	t.call = sig
	t.bound = true
	return t
}

// CallSignature returns the signature invoked when calling a value of this
// type, and whether the callee is bound to a receiver.
func (t *Type) CallSignature() (sig *Signature, bound bool) {
	if t == nil {
		return nil, false
	}
	return t.call, t.bound
}

// AddField declares a field backed by a host field of this type's class.
func (t *Type) AddField(name string, typ *Type) *Field {
	f := &Field{
		Name: name,
		Type: typ,
		Host: host.FieldRef{Owner: t.Host, Name: name, Type: typ.Host},
	}
	t.fields[name] = f
	return f
}

// AddMethod declares a method. The signature's owner is set to t and, when
// no host method was given, one is derived from the parameter types.
func (t *Type) AddMethod(sig *Signature) *Signature {
	sig.Owner = t
	if sig.Method.Name == "" {
		sig.Method = sig.deriveMethod(t.Host)
	}
	t.methods[sig.Name] = sig
	return sig
}

// Method finds a method by name, searching base types.
func (t *Type) Method(name string) (*Signature, bool) {
	for c := t; c != nil; c = c.Base {
		if sig, ok := c.methods[name]; ok {
			return sig, true
		}
	}
	return nil, false
}

// Field finds a field mapping by attribute name, searching base types.
func (t *Type) Field(name string) (*Field, bool) {
	for c := t; c != nil; c = c.Base {
		if f, ok := c.fields[name]; ok {
			return f, true
		}
	}
	return nil, false
}

// DefiningType returns the nearest type in the base chain that declares
// name itself, or nil.
func (t *Type) DefiningType(name string) *Type {
	for c := t; c != nil; c = c.Base {
		if _, ok := c.methods[name]; ok {
			return c
		}
	}
	return nil
}

// IsSubtypeOf reports whether t is other or derives from it.
func (t *Type) IsSubtypeOf(other *Type) bool {
	for c := t; c != nil; c = c.Base {
		if c == other {
			return true
		}
	}
	return false
}

// Kind returns the value kind used to spill values of this type.
func (t *Type) Kind() host.Kind {
	if t == nil {
		return host.KindRef
	}
	return host.KindOf(t.Host)
}

// Methods returns the methods declared directly on t, sorted by name.
func (t *Type) Methods() []*Signature {
	out := make([]*Signature, 0, len(t.methods))
	for _, s := range t.methods {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Fields returns the fields declared directly on t, sorted by name.
func (t *Type) Fields() []*Field {
	out := make([]*Field, 0, len(t.fields))
	for _, f := range t.fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.Name
}

// Related reports whether one of a and b derives from the other.
func Related(a, b *Type) bool {
	return a.IsSubtypeOf(b) || b.IsSubtypeOf(a)
}
