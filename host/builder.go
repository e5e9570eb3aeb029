package host

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ---------------------------------------------------------------------------
// Builder: Helper for constructing host code
// ---------------------------------------------------------------------------

// Builder helps construct a host method body.
type Builder struct {
	bytes    []byte
	pool     *Pool
	handlers []pendingHandler
	labels   []*Label
	err      error
}

type pendingHandler struct {
	start, end, target *Label
	catch              string
}

// NewBuilder creates a new builder with an empty constant pool.
func NewBuilder() *Builder {
	return &Builder{
		bytes: make([]byte, 0, 64),
		pool:  NewPool(),
	}
}

// Bytes returns the constructed code.
func (b *Builder) Bytes() []byte {
	return b.bytes
}

// Len returns the current length.
func (b *Builder) Len() int {
	return len(b.bytes)
}

// Pool returns the builder's constant pool.
func (b *Builder) Pool() *Pool {
	return b.pool
}

// Emit appends an opcode with no operands.
func (b *Builder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitUint16 appends an opcode with a 16-bit operand (little-endian).
func (b *Builder) EmitUint16(op Opcode, operand uint16) {
	b.bytes = append(b.bytes, byte(op), byte(operand), byte(operand>>8))
}

// EmitLocal appends a local load or store.
func (b *Builder) EmitLocal(op Opcode, index int) {
	if index < 0 || index > math.MaxUint16 {
		b.fail(fmt.Errorf("host: local index %d out of range", index))
		return
	}
	b.EmitUint16(op, uint16(index))
}

// EmitIinc appends an IINC instruction.
func (b *Builder) EmitIinc(index int, delta int8) {
	b.EmitLocal(OpIINC, index)
	b.bytes = append(b.bytes, byte(delta))
}

// EmitInt pushes an integer, using SIPUSH when it fits.
func (b *Builder) EmitInt(v int64) {
	if v >= math.MinInt16 && v <= math.MaxInt16 {
		b.EmitUint16(OpSIPUSH, uint16(int16(v)))
		return
	}
	b.EmitUint16(OpLDC, b.pool.Int(v))
}

// EmitString pushes a host string constant.
func (b *Builder) EmitString(s string) {
	b.EmitUint16(OpLDC, b.pool.String(s))
}

// EmitClass appends NEW, CHECKCAST or INSTANCEOF.
func (b *Builder) EmitClass(op Opcode, class string) {
	b.EmitUint16(op, b.pool.Class(class))
}

// EmitField appends a field access.
func (b *Builder) EmitField(op Opcode, f FieldRef) {
	b.EmitUint16(op, b.pool.Field(f))
}

// EmitInvoke appends a method invocation.
func (b *Builder) EmitInvoke(op Opcode, m MethodRef) {
	b.EmitUint16(op, b.pool.Method(m))
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// Label represents a forward reference in host code.
type Label struct {
	resolved bool
	position int   // target (if resolved)
	refs     []int // operand positions that reference this label
}

// NewLabel creates an unresolved label.
func (b *Builder) NewLabel() *Label {
	l := &Label{refs: make([]int, 0, 2)}
	b.labels = append(b.labels, l)
	return l
}

// Resolved reports whether the label has been marked.
func (l *Label) Resolved() bool {
	return l.resolved
}

// Position returns the marked position, or -1 if unresolved.
func (l *Label) Position() int {
	if !l.resolved {
		return -1
	}
	return l.position
}

// Mark resolves a label to the current position.
func (b *Builder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.position = len(b.bytes)

	for _, ref := range label.refs {
		b.patch(ref, label.position-(ref+2))
	}
	label.refs = nil
}

// EmitJump emits a branch instruction targeting label.
func (b *Builder) EmitJump(op Opcode, label *Label) {
	b.bytes = append(b.bytes, byte(op))
	ref := len(b.bytes)
	b.bytes = append(b.bytes, 0, 0)
	if label.resolved {
		b.patch(ref, label.position-(ref+2))
	} else {
		label.refs = append(label.refs, ref)
	}
}

func (b *Builder) patch(ref, offset int) {
	if offset < math.MinInt16 || offset > math.MaxInt16 {
		b.fail(fmt.Errorf("host: branch offset %d at %04d out of range", offset, ref-1))
		return
	}
	b.bytes[ref] = byte(offset)
	b.bytes[ref+1] = byte(offset >> 8)
}

// TryCatch registers an exception table entry. The labels may be marked
// later; they must all be resolved by Build.
func (b *Builder) TryCatch(start, end, target *Label, catch string) {
	b.handlers = append(b.handlers, pendingHandler{start, end, target, catch})
}

// ---------------------------------------------------------------------------
// Build
// ---------------------------------------------------------------------------

// ErrUnresolvedLabel is returned by Build when a referenced label was never
// marked.
var ErrUnresolvedLabel = errors.New("host: unresolved label")

// Build finalizes the method. maxLocals is supplied by the caller's local
// allocator; MaxStack is filled in by Verify.
func (b *Builder) Build(owner, name string, params []string, maxLocals int) (*Method, error) {
	if b.err != nil {
		return nil, b.err
	}
	for _, l := range b.labels {
		if !l.resolved && len(l.refs) > 0 {
			return nil, ErrUnresolvedLabel
		}
	}
	m := &Method{
		Owner:     owner,
		Name:      name,
		Params:    append([]string(nil), params...),
		Code:      append([]byte(nil), b.bytes...),
		Pool:      b.pool.Entries(),
		MaxLocals: maxLocals,
	}
	for _, h := range b.handlers {
		if !h.start.resolved || !h.end.resolved || !h.target.resolved {
			return nil, fmt.Errorf("%w in exception table", ErrUnresolvedLabel)
		}
		if h.start.position == h.end.position {
			continue // empty region
		}
		m.Handlers = append(m.Handlers, Handler{
			Start:  h.start.position,
			End:    h.end.position,
			Target: h.target.position,
			Catch:  h.catch,
		})
	}
	// The first matching entry wins, so nested regions go before the
	// regions enclosing them.
	sort.SliceStable(m.Handlers, func(i, j int) bool {
		return m.Handlers[i].End-m.Handlers[i].Start < m.Handlers[j].End-m.Handlers[j].Start
	})
	return m, nil
}
