package host

import "fmt"

// ---------------------------------------------------------------------------
// Method: an emitted host method body
// ---------------------------------------------------------------------------

// Handler is an exception table entry. Code in [Start, End) that throws an
// instance of Catch transfers control to Target with the operand stack
// cleared and the thrown value pushed. An empty Catch matches everything.
type Handler struct {
	Start  int    `cbor:"1,keyasint"`
	End    int    `cbor:"2,keyasint"`
	Target int    `cbor:"3,keyasint"`
	Catch  string `cbor:"4,keyasint,omitempty"`
}

// Method is a complete host method body together with its constant pool
// and exception table.
type Method struct {
	Owner     string     `cbor:"1,keyasint"`
	Name      string     `cbor:"2,keyasint"`
	Params    []string   `cbor:"3,keyasint,omitempty"` // host types of locals 0..n-1
	Code      []byte     `cbor:"4,keyasint"`
	Pool      []Constant `cbor:"5,keyasint,omitempty"`
	Handlers  []Handler  `cbor:"6,keyasint,omitempty"`
	MaxStack  int        `cbor:"7,keyasint"`
	MaxLocals int        `cbor:"8,keyasint"`
}

// Constant returns the pool entry at idx.
func (m *Method) Constant(idx uint16) (Constant, error) {
	if int(idx) >= len(m.Pool) {
		return Constant{}, fmt.Errorf("host: pool index %d out of range (len=%d)", idx, len(m.Pool))
	}
	return m.Pool[idx], nil
}

// MethodAt returns the method reference at idx.
func (m *Method) MethodAt(idx uint16) (*MethodRef, error) {
	c, err := m.Constant(idx)
	if err != nil {
		return nil, err
	}
	if c.Kind != ConstMethod || c.Method == nil {
		return nil, fmt.Errorf("host: pool entry %d is not a method", idx)
	}
	return c.Method, nil
}

// FieldAt returns the field reference at idx.
func (m *Method) FieldAt(idx uint16) (*FieldRef, error) {
	c, err := m.Constant(idx)
	if err != nil {
		return nil, err
	}
	if c.Kind != ConstField || c.Field == nil {
		return nil, fmt.Errorf("host: pool entry %d is not a field", idx)
	}
	return c.Field, nil
}

// ClassAt returns the class name at idx.
func (m *Method) ClassAt(idx uint16) (string, error) {
	c, err := m.Constant(idx)
	if err != nil {
		return "", err
	}
	if c.Kind != ConstClass {
		return "", fmt.Errorf("host: pool entry %d is not a class", idx)
	}
	return c.Str, nil
}

// Disassemble returns a full listing of the method, followed by its
// exception table.
func (m *Method) Disassemble() string {
	out := DisassembleWithPool(m.Code, m.Pool)
	for _, h := range m.Handlers {
		catch := h.Catch
		if catch == "" {
			catch = "any"
		}
		out += fmt.Sprintf("\ntry %04d..%04d -> %04d catch %s", h.Start, h.End, h.Target, catch)
	}
	return out
}
