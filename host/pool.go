package host

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Value kinds and type names
// ---------------------------------------------------------------------------

// Kind classifies a value for typed local access.
type Kind byte

const (
	KindRef Kind = iota
	KindInt
	KindLong
	KindDouble
)

var kindNames = [...]string{"ref", "int", "long", "double"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Primitive type names. Any other name denotes a reference class.
const (
	TypeVoid    = "void"
	TypeInt     = "int"
	TypeBoolean = "boolean"
	TypeLong    = "long"
	TypeDouble  = "double"
	TypeString  = "string"
)

// KindOf returns the value kind of a type name.
func KindOf(typeName string) Kind {
	switch typeName {
	case TypeInt, TypeBoolean:
		return KindInt
	case TypeLong:
		return KindLong
	case TypeDouble:
		return KindDouble
	}
	return KindRef
}

// ---------------------------------------------------------------------------
// Symbolic references
// ---------------------------------------------------------------------------

// MethodRef names a method of a host class.
type MethodRef struct {
	Owner     string   `cbor:"1,keyasint"`
	Name      string   `cbor:"2,keyasint"`
	Params    []string `cbor:"3,keyasint,omitempty"`
	Return    string   `cbor:"4,keyasint"`
	Interface bool     `cbor:"5,keyasint,omitempty"`
}

// Descriptor renders the parameter and return types, e.g. "(int)pyrt/Object".
func (m MethodRef) Descriptor() string {
	return "(" + strings.Join(m.Params, ",") + ")" + m.Return
}

// Key uniquely identifies the method.
func (m MethodRef) Key() string {
	return m.Owner + "." + m.Name + m.Descriptor()
}

func (m MethodRef) String() string {
	return m.Key()
}

// Returns reports whether the method pushes a result.
func (m MethodRef) Returns() bool {
	return m.Return != "" && m.Return != TypeVoid
}

// StackEffect returns the net stack effect of invoking m with op.
func (m MethodRef) StackEffect(op Opcode) int {
	effect := -len(m.Params)
	if op != OpINVOKESTATIC {
		effect-- // receiver
	}
	if m.Returns() {
		effect++
	}
	return effect
}

// FieldRef names a field of a host class.
type FieldRef struct {
	Owner string `cbor:"1,keyasint"`
	Name  string `cbor:"2,keyasint"`
	Type  string `cbor:"3,keyasint"`
}

// Key uniquely identifies the field.
func (f FieldRef) Key() string {
	return f.Owner + "." + f.Name + ":" + f.Type
}

func (f FieldRef) String() string {
	return f.Key()
}

// ---------------------------------------------------------------------------
// Constant pool
// ---------------------------------------------------------------------------

// ConstKind identifies the kind of a pool entry.
type ConstKind uint8

const (
	ConstString ConstKind = 1
	ConstInt    ConstKind = 2
	ConstClass  ConstKind = 3
	ConstField  ConstKind = 4
	ConstMethod ConstKind = 5
)

// Constant is a single pool entry.
type Constant struct {
	Kind   ConstKind  `cbor:"1,keyasint"`
	Str    string     `cbor:"2,keyasint,omitempty"` // string value or class name
	Int    int64      `cbor:"3,keyasint,omitempty"`
	Field  *FieldRef  `cbor:"4,keyasint,omitempty"`
	Method *MethodRef `cbor:"5,keyasint,omitempty"`
}

func (c Constant) key() string {
	switch c.Kind {
	case ConstString:
		return "s:" + c.Str
	case ConstInt:
		return fmt.Sprintf("i:%d", c.Int)
	case ConstClass:
		return "c:" + c.Str
	case ConstField:
		return "f:" + c.Field.Key()
	case ConstMethod:
		return "m:" + c.Method.Key()
	}
	return "?"
}

func (c Constant) String() string {
	switch c.Kind {
	case ConstString:
		return fmt.Sprintf("%q", c.Str)
	case ConstInt:
		return fmt.Sprintf("%d", c.Int)
	case ConstClass:
		return c.Str
	case ConstField:
		return c.Field.String()
	case ConstMethod:
		return c.Method.String()
	}
	return "?"
}

// Pool is a deduplicating constant pool.
type Pool struct {
	entries []Constant
	index   map[string]uint16
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{index: make(map[string]uint16)}
}

func (p *Pool) add(c Constant) uint16 {
	k := c.key()
	if idx, ok := p.index[k]; ok {
		return idx
	}
	if len(p.entries) > 0xFFFF {
		panic("host: constant pool overflow")
	}
	idx := uint16(len(p.entries))
	p.entries = append(p.entries, c)
	p.index[k] = idx
	return idx
}

// String interns a string constant.
func (p *Pool) String(s string) uint16 { return p.add(Constant{Kind: ConstString, Str: s}) }

// Int interns an integer constant.
func (p *Pool) Int(v int64) uint16 { return p.add(Constant{Kind: ConstInt, Int: v}) }

// Class interns a class reference.
func (p *Pool) Class(name string) uint16 { return p.add(Constant{Kind: ConstClass, Str: name}) }

// Field interns a field reference.
func (p *Pool) Field(f FieldRef) uint16 { return p.add(Constant{Kind: ConstField, Field: &f}) }

// Method interns a method reference.
func (p *Pool) Method(m MethodRef) uint16 { return p.add(Constant{Kind: ConstMethod, Method: &m}) }

// Entries returns the pool contents in index order.
func (p *Pool) Entries() []Constant {
	out := make([]Constant, len(p.entries))
	copy(out, p.entries)
	return out
}

// Len returns the number of entries.
func (p *Pool) Len() int {
	return len(p.entries)
}
