package catalog

import (
	"fmt"
	"strings"

	"github.com/chazu/pylower/host"
)

// CallKind is the host calling convention of a cataloged method.
type CallKind uint8

const (
	// Virtual methods take the receiver as the host receiver.
	Virtual CallKind = iota
	// Static methods take no receiver.
	Static
	// ClassMethod methods take the receiver's type object as their first
	// host parameter.
	ClassMethod
)

var callKindNames = [...]string{"virtual", "static", "classmethod"}

func (k CallKind) String() string {
	if int(k) < len(callKindNames) {
		return callKindNames[k]
	}
	return fmt.Sprintf("CallKind(%d)", k)
}

// ParseCallKind converts a catalog file spelling to a CallKind.
func ParseCallKind(s string) (CallKind, error) {
	for i, n := range callKindNames {
		if n == s {
			return CallKind(i), nil
		}
	}
	if s == "" {
		return Virtual, nil
	}
	return 0, fmt.Errorf("unknown call kind %q", s)
}

// Param is a named parameter of a signature.
type Param struct {
	Name string
	Type *Type
	// Default is the static field holding the parameter's default value.
	Default *host.FieldRef
	// Nullable parameters are bound to null when not supplied.
	Nullable bool
}

// Optional reports whether the parameter may be omitted at a call site.
func (p Param) Optional() bool {
	return p.Default != nil || p.Nullable
}

// Signature describes a cataloged method.
type Signature struct {
	Owner  *Type
	Name   string
	Method host.MethodRef
	Kind   CallKind
	Params []Param

	// VarArgs and VarKwargs are indices into the host parameter list
	// (after any receiver or class argument) of the tuple collecting
	// surplus positional arguments and the dict collecting unmatched
	// keywords; -1 when absent.
	VarArgs   int
	VarKwargs int

	Return                  *Type
	MayReturnNotImplemented bool
}

// NewSignature creates a signature with no variadic parameters.
func NewSignature(name string, kind CallKind, ret *Type, params ...Param) *Signature {
	return &Signature{
		Name:      name,
		Kind:      kind,
		Params:    params,
		VarArgs:   -1,
		VarKwargs: -1,
		Return:    ret,
	}
}

// WithVarArgs appends a variadic positional tuple to the host parameters.
func (s *Signature) WithVarArgs() *Signature {
	s.VarArgs = s.HostArity()
	return s
}

// WithVarKwargs appends a variadic keyword dict to the host parameters.
func (s *Signature) WithVarKwargs() *Signature {
	s.VarKwargs = s.HostArity()
	return s
}

// NotImplementedPossible marks the signature as able to return the
// NotImplemented sentinel.
func (s *Signature) NotImplementedPossible() *Signature {
	s.MayReturnNotImplemented = true
	return s
}

// HostArity returns the number of host parameters after any receiver or
// class argument.
func (s *Signature) HostArity() int {
	n := len(s.Params)
	if s.VarArgs >= 0 {
		n++
	}
	if s.VarKwargs >= 0 {
		n++
	}
	return n
}

// ParamIndex returns the index of the named parameter, or -1.
func (s *Signature) ParamIndex(name string) int {
	for i, p := range s.Params {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// Required returns the number of parameters that have no default and are
// not nullable.
func (s *Signature) Required() int {
	n := 0
	for _, p := range s.Params {
		if !p.Optional() {
			n++
		}
	}
	return n
}

// Accepts reports whether the signature can be called directly with
// positional arguments of the given static types.
func (s *Signature) Accepts(args ...*Type) bool {
	if len(args) > len(s.Params) && s.VarArgs < 0 {
		return false
	}
	for i, p := range s.Params {
		if i >= len(args) {
			if !p.Optional() {
				return false
			}
			continue
		}
		if p.Type != nil && !args[i].IsSubtypeOf(p.Type) {
			return false
		}
	}
	return true
}

// Opcode returns the host invocation opcode for the signature.
func (s *Signature) Opcode() host.Opcode {
	switch s.Kind {
	case Static, ClassMethod:
		return host.OpINVOKESTATIC
	}
	if s.Method.Interface {
		return host.OpINVOKEINTERFACE
	}
	return host.OpINVOKEVIRTUAL
}

func (s *Signature) deriveMethod(owner string) host.MethodRef {
	params := make([]string, 0, s.HostArity()+1)
	if s.Kind == ClassMethod {
		params = append(params, TypeType.Host)
	}
	for i := 0; i < s.HostArity(); i++ {
		switch i {
		case s.VarArgs:
			params = append(params, Tuple.Host)
		case s.VarKwargs:
			params = append(params, Dict.Host)
		default:
			params = append(params, hostOf(s.Params[s.NamedIndex(i)].Type))
		}
	}
	return host.MethodRef{Owner: owner, Name: s.Name, Params: params, Return: hostOf(s.Return)}
}

func hostOf(t *Type) string {
	if t == nil {
		return Object.Host
	}
	return t.Host
}

// NamedIndex maps a host parameter index that is not variadic to the
// index of the named parameter it carries.
func (s *Signature) NamedIndex(hostIndex int) int {
	n := hostIndex
	if s.VarArgs >= 0 && s.VarArgs < hostIndex {
		n--
	}
	if s.VarKwargs >= 0 && s.VarKwargs < hostIndex {
		n--
	}
	return n
}

func (s *Signature) String() string {
	var b strings.Builder
	if s.Owner != nil {
		b.WriteString(s.Owner.Name)
		b.WriteByte('.')
	}
	b.WriteString(s.Name)
	b.WriteByte('(')
	for i, p := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		if p.Type != nil {
			b.WriteString(": ")
			b.WriteString(p.Type.Name)
		}
		if p.Optional() {
			b.WriteString(" = ...")
		}
	}
	if s.VarArgs >= 0 {
		if len(s.Params) > 0 {
			b.WriteString(", ")
		}
		b.WriteString("*args")
	}
	if s.VarKwargs >= 0 {
		if len(s.Params) > 0 || s.VarArgs >= 0 {
			b.WriteString(", ")
		}
		b.WriteString("**kwargs")
	}
	b.WriteByte(')')
	if s.Return != nil {
		b.WriteString(" -> ")
		b.WriteString(s.Return.Name)
	}
	if s.Kind != Virtual {
		b.WriteString(" [")
		b.WriteString(s.Kind.String())
		b.WriteByte(']')
	}
	return b.String()
}
