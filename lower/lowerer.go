// Package lower translates the instructions of a dynamic-language function
// into host machine code, one instruction at a time.
//
// The front end drives a Lowerer: for each source instruction it calls At
// with the instruction offset and the operand stack snapshot inferred for
// that point, then the operation method for the instruction. Every
// operation appends host code, derives the next snapshot and returns it.
// Finish assembles the method, runs the stack verifier and reports the
// first translation error, if any. A unit that failed produces no method.
//
// Values whose static type is known to the catalog get direct calls; every
// other value goes through the uniform dynamic protocol of the runtime
// library named in package abi.
package lower

import (
	"fmt"

	"github.com/chazu/pylower/abi"
	"github.com/chazu/pylower/catalog"
	"github.com/chazu/pylower/host"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("pylower.lower")

// Dialect selects the shape of the values pushed at exception handler
// entry.
type Dialect uint8

const (
	// DialectUnset is invalid; exception handling fails with ErrDialect.
	DialectUnset Dialect = iota
	// DialectTuple pushes (None, depth, None, traceback, value, exception).
	DialectTuple
	// DialectBare pushes the exception alone, optionally preceded by the
	// last instruction index.
	DialectBare
)

var dialectNames = [...]string{"", "tuple", "bare"}

func (d Dialect) String() string {
	if int(d) < len(dialectNames) && d != DialectUnset {
		return dialectNames[d]
	}
	return "unset"
}

// ParseDialect converts a configuration spelling to a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch s {
	case "tuple":
		return DialectTuple, nil
	case "bare":
		return DialectBare, nil
	}
	return DialectUnset, fmt.Errorf("unknown dialect %q (want tuple or bare)", s)
}

// Config holds the options shared by every unit.
type Config struct {
	Dialect Dialect
	// Verify runs the host stack verifier in Finish and fills in MaxStack.
	// Without it MaxStack is left zero for a later host.Verify.
	Verify  bool
	Catalog catalog.Catalog
}

// Func describes the function being lowered.
type Func struct {
	Owner string // host class receiving the method
	Name  string
	// ArgCount is the number of positional parameters. They arrive in the
	// first locals.
	ArgCount int
	// Locals are the static types of the source locals; nil means
	// unknown. There must be at least ArgCount of them.
	Locals    []*catalog.Type
	Generator bool
}

// Lowerer translates one function. It is not safe for concurrent use;
// separate functions may be lowered concurrently with separate Lowerers
// sharing one read-only Catalog.
type Lowerer struct {
	cfg  Config
	cat  catalog.Catalog
	fn   Func
	b    *host.Builder
	pool *SlotPool

	stack     Stack
	reachable bool
	op        string
	offset    int
	err       error

	localBase   int
	excSlot     int
	prevExcSlot int

	labels   map[int]*host.Label
	marked   map[int]bool
	expected map[int]Stack
	handlers map[int]*handler

	// generator state machine
	dispatch  *host.Label
	first     int
	resumes   []*resumePoint
	nextState int
}

// handler is the exception handler entered at a source offset.
type handler struct {
	target  int
	slots   []int // pre-try stack, bottom first
	saved   Stack
	lasti   bool
	emitted bool
}

// resumePoint is a place a suspended generator re-enters.
type resumePoint struct {
	state     int
	label     *host.Label
	stack     Stack // operand stack saved at suspension
	frame     []int // persistent locals saved after the stack
	frameOnly bool  // delegation: restore locals, not the stack
}

// New starts lowering fn.
func New(cfg Config, fn Func) *Lowerer {
	cat := cfg.Catalog
	if cat == nil {
		cat = catalog.Dynamic{}
	}
	l := &Lowerer{
		cfg:       cfg,
		cat:       cat,
		fn:        fn,
		b:         host.NewBuilder(),
		labels:    make(map[int]*host.Label),
		marked:    make(map[int]bool),
		expected:  make(map[int]Stack),
		handlers:  make(map[int]*handler),
		first:     -1,
		nextState: 1,
		offset:    -1,
		op:        "New",
	}
	if len(fn.Locals) < fn.ArgCount {
		l.fail(ErrArgumentCount, "%d locals declared for %d arguments", len(fn.Locals), fn.ArgCount)
	}
	if fn.Generator {
		l.localBase = 1
	}
	l.pool = NewSlotPool(l.localBase + len(fn.Locals))
	l.excSlot = l.pool.Reserve(host.KindRef)
	l.prevExcSlot = l.pool.Reserve(host.KindRef)
	for _, idx := range []int{l.excSlot, l.prevExcSlot} {
		l.b.Emit(host.OpACONSTNULL)
		l.store(idx, host.KindRef)
	}
	if fn.Generator {
		l.dispatch = l.b.NewLabel()
		l.b.EmitJump(host.OpGOTO, l.dispatch)
	} else {
		l.reachable = true
	}
	return l
}

// Stack returns the snapshot after the last operation.
func (l *Lowerer) Stack() Stack {
	return l.stack.Clone()
}

// Err returns the first translation error recorded so far.
func (l *Lowerer) Err() error {
	return l.err
}

// Pool exposes the local slot pool.
func (l *Lowerer) Pool() *SlotPool {
	return l.pool
}

// local returns the host index of source local i.
func (l *Lowerer) local(i int) int {
	return l.localBase + i
}

// params returns the host parameter types of the emitted method.
func (l *Lowerer) params() []string {
	var out []string
	if l.fn.Generator {
		out = append(out, abi.GeneratorClass)
	}
	for i := 0; i < l.fn.ArgCount && i < len(l.fn.Locals); i++ {
		out = append(out, hostOf(l.fn.Locals[i]))
	}
	return out
}

func hostOf(t *catalog.Type) string {
	if t == nil {
		return abi.ObjectClass
	}
	return t.Host
}

func (l *Lowerer) fail(kind error, format string, args ...any) {
	if l.err != nil {
		return
	}
	l.err = &TranslationError{Op: l.op, Offset: l.offset, Kind: kind, Msg: fmt.Sprintf(format, args...)}
	log.Error("translation failed", "func", l.fn.Name, "error", l.err)
}

// ---------------------------------------------------------------------------
// Instruction boundaries
// ---------------------------------------------------------------------------

// At starts the source instruction at offset. s is the operand stack the
// front end inferred for that point; it must agree with the stack left by
// the previous instruction when control falls through, and with the stack
// of every jump to offset.
func (l *Lowerer) At(offset int, s Stack) {
	if l.err != nil {
		return
	}
	l.op, l.offset = "At", offset
	if l.marked[offset] {
		l.fail(ErrControlFlow, "offset visited twice")
		return
	}

	if h := l.handlers[offset]; h != nil {
		if l.reachable {
			l.fail(ErrControlFlow, "control falls through into exception handler")
			return
		}
		l.markOffset(offset)
		l.handlerEntry(h)
		if l.err == nil && !l.stack.Compatible(s) {
			l.fail(ErrStackJoin, "handler entry stack %v, given %v", l.stack, s)
		}
		l.stack = s.Clone()
		l.reachable = true
		return
	}

	if l.reachable && !l.stack.Compatible(s) {
		l.fail(ErrStackJoin, "fallthrough stack %v, given %v", l.stack, s)
		return
	}
	if exp, ok := l.expected[offset]; ok && !exp.Compatible(s) {
		l.fail(ErrStackJoin, "jump stack %v, given %v", exp, s)
		return
	}
	if l.fn.Generator && l.first < 0 {
		// entered from the dispatcher with the first sent value
		l.first = offset
		if sent := NewStack(catalog.Object); !sent.Compatible(s) {
			l.fail(ErrStackJoin, "generator entry stack %v, given %v", sent, s)
			return
		}
	}
	l.expected[offset] = s.Clone()
	l.markOffset(offset)
	l.stack = s.Clone()
	l.reachable = true
}

func (l *Lowerer) markOffset(offset int) {
	l.marked[offset] = true
	l.b.Mark(l.label(offset))
}

func (l *Lowerer) label(offset int) *host.Label {
	lab, ok := l.labels[offset]
	if !ok {
		lab = l.b.NewLabel()
		l.labels[offset] = lab
	}
	return lab
}

// begin opens an operation needing need stack slots. It reports false when
// the operation must emit nothing.
func (l *Lowerer) begin(op string, need int) bool {
	if l.err != nil {
		return false
	}
	l.op = op
	if !l.reachable {
		l.fail(ErrControlFlow, "unreachable instruction (missing At)")
		return false
	}
	if len(l.stack) < need {
		l.fail(ErrStackDepth, "needs %d operands, stack %v", need, l.stack)
		return false
	}
	log.Debug("lowering", "op", op, "offset", l.offset, "depth", len(l.stack))
	return true
}

// end closes an operation. Temporaries never outlive the operation that
// took them.
func (l *Lowerer) end() {
	if l.err == nil && l.pool.Live() != 0 {
		panic(fmt.Sprintf("lower: %s left %d temporaries live", l.op, l.pool.Live()))
	}
	log.Debug("lowered", "op", l.op, "offset", l.offset, "depth", len(l.stack))
}

// jump emits a branch to a source offset, recording the stack the target
// must accept.
func (l *Lowerer) jump(op host.Opcode, target int) {
	if l.handlers[target] != nil {
		l.fail(ErrControlFlow, "jump into exception handler at %d", target)
		return
	}
	if exp, ok := l.expected[target]; ok {
		if !exp.Compatible(l.stack) {
			l.fail(ErrStackJoin, "jump to %d with %v, target has %v", target, l.stack, exp)
			return
		}
	} else {
		l.expected[target] = l.stack.Clone()
	}
	l.b.EmitJump(op, l.label(target))
}

// ---------------------------------------------------------------------------
// Stack model
// ---------------------------------------------------------------------------

func (l *Lowerer) push(t *catalog.Type) {
	l.stack = append(l.stack, Slot{Type: t, Source: l.offset})
}

func (l *Lowerer) pop(n int) []Slot {
	top := append([]Slot(nil), l.stack[len(l.stack)-n:]...)
	l.stack = l.stack[:len(l.stack)-n]
	return top
}

func (l *Lowerer) peek(d int) Slot {
	return l.stack.Peek(d)
}

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

func (l *Lowerer) emit(ops ...host.Opcode) {
	for _, op := range ops {
		l.b.Emit(op)
	}
}

func (l *Lowerer) load(idx int, k host.Kind) {
	l.b.EmitLocal(host.LoadOp(k), idx)
}

func (l *Lowerer) store(idx int, k host.Kind) {
	l.b.EmitLocal(host.StoreOp(k), idx)
}

func (l *Lowerer) invoke(m host.MethodRef) {
	if m.Interface {
		l.b.EmitInvoke(host.OpINVOKEINTERFACE, m)
		return
	}
	l.b.EmitInvoke(host.OpINVOKEVIRTUAL, m)
}

func (l *Lowerer) invokeStatic(m host.MethodRef) {
	l.b.EmitInvoke(host.OpINVOKESTATIC, m)
}

func (l *Lowerer) invokeSpecial(m host.MethodRef) {
	l.b.EmitInvoke(host.OpINVOKESPECIAL, m)
}

func (l *Lowerer) getStatic(f host.FieldRef) {
	l.b.EmitField(host.OpGETSTATIC, f)
}

func (l *Lowerer) getField(f host.FieldRef) {
	l.b.EmitField(host.OpGETFIELD, f)
}

func (l *Lowerer) putField(f host.FieldRef) {
	l.b.EmitField(host.OpPUTFIELD, f)
}

// checkcast narrows the top of stack. Casting to the root interface is a
// no-op and emits nothing.
func (l *Lowerer) checkcast(class string) {
	if class == abi.ObjectClass || host.KindOf(class) != host.KindRef {
		return
	}
	l.b.EmitClass(host.OpCHECKCAST, class)
}

func (l *Lowerer) pushInt(n int) {
	l.b.EmitInt(int64(n))
}

// pushStr pushes a runtime string object.
func (l *Lowerer) pushStr(s string) {
	l.b.EmitString(s)
	l.invokeStatic(abi.StrValueOf)
}

func (l *Lowerer) newLabel() *host.Label {
	return l.b.NewLabel()
}

func (l *Lowerer) mark(lab *host.Label) {
	l.b.Mark(lab)
}

func (l *Lowerer) branch(op host.Opcode, lab *host.Label) {
	l.b.EmitJump(op, lab)
}

// newCollection allocates an empty collection sized for n values.
func (l *Lowerer) newCollection(class string, n int) {
	l.b.EmitClass(host.OpNEW, class)
	l.emit(host.OpDUP)
	l.pushInt(n)
	l.invokeSpecial(abi.CollectionInit(class))
}

// reverseAdd moves the value under a collection into it, in front of the
// values already added: [v c] -> [c].
func (l *Lowerer) reverseAdd(class string) {
	l.emit(host.OpDUPX1, host.OpSWAP)
	l.invoke(abi.ReverseAdd(class))
}

// callerInstance pushes the value super() resolves against: the first
// argument, or null for functions without arguments.
func (l *Lowerer) callerInstance() {
	if l.fn.ArgCount > 0 {
		l.load(l.local(0), host.KindRef)
		return
	}
	l.emit(host.OpACONSTNULL)
}

// ---------------------------------------------------------------------------
// Finish
// ---------------------------------------------------------------------------

// Finish assembles the method. It returns the first translation error
// instead of a method when any operation failed.
func (l *Lowerer) Finish() (*host.Method, error) {
	l.op = "Finish"
	if l.err == nil && l.reachable {
		l.fail(ErrControlFlow, "control falls off the end of the function")
	}
	if l.err == nil && l.fn.Generator {
		if l.first < 0 {
			l.fail(ErrControlFlow, "generator has no instructions")
		} else {
			l.emitDispatch()
		}
	}
	if l.err == nil {
		for offset := range l.expected {
			if !l.marked[offset] {
				l.fail(ErrControlFlow, "jump target %d never reached", offset)
				break
			}
		}
	}
	if l.err == nil {
		for target, h := range l.handlers {
			if !h.emitted {
				l.fail(ErrControlFlow, "exception handler at %d never reached", target)
				break
			}
		}
	}
	if l.err != nil {
		return nil, l.err
	}

	m, err := l.b.Build(l.fn.Owner, l.fn.Name, l.params(), l.pool.MaxLocals())
	if err != nil {
		return nil, fmt.Errorf("lower: build %s: %w", l.fn.Name, err)
	}
	if l.cfg.Verify {
		if err := host.Verify(m); err != nil {
			return nil, fmt.Errorf("lower: %s: %w", l.fn.Name, err)
		}
	}
	log.Info("lowered function", "func", l.fn.Name, "code", len(m.Code),
		"maxStack", m.MaxStack, "maxLocals", m.MaxLocals, "handlers", len(m.Handlers))
	return m, nil
}
