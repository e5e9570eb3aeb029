package sim

import (
	"fmt"

	"github.com/chazu/pylower/abi"
	"github.com/chazu/pylower/host"
)

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

// frame is the activation of one host method.
type frame struct {
	m      *host.Method
	locals []any
	stack  []any
	r      *host.Reader
	pc     int // start of the current instruction
}

func (f *frame) push(v any) {
	f.stack = append(f.stack, v)
}

func (f *frame) pop() any {
	n := len(f.stack) - 1
	v := f.stack[n]
	f.stack = f.stack[:n]
	return v
}

func (f *frame) popN(n int) []any {
	out := make([]any, n)
	copy(out, f.stack[len(f.stack)-n:])
	f.stack = f.stack[:len(f.stack)-n]
	return out
}

func (f *frame) popInt() (int64, error) {
	v, ok := f.pop().(int64)
	if !ok {
		return 0, f.faultf("expected an int on the stack")
	}
	return v, nil
}

func (f *frame) faultf(format string, args ...any) error {
	return &Fault{Method: f.m.Owner + "." + f.m.Name, PC: f.pc, Msg: fmt.Sprintf(format, args...)}
}

// branch reads a branch offset and returns its target.
func (f *frame) branch() int {
	off := int(f.r.ReadInt16())
	return f.r.Position() + off
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// Run executes m with args in its first locals and returns the value it
// returns, nil for a void return.
func (rt *Runtime) Run(m *host.Method, args []any) (any, error) {
	f := &frame{
		m:      m,
		locals: make([]any, max(m.MaxLocals, len(args))),
		r:      host.NewReader(m.Code),
	}
	copy(f.locals, args)

	for {
		if !f.r.HasMore() {
			return nil, f.faultf("fell off the end of the code")
		}
		f.pc = f.r.Position()
		op := f.r.ReadOpcode()
		result, done, err := rt.step(f, op)
		if err == nil {
			if done {
				return result, nil
			}
			continue
		}
		raised, ok := err.(*Raised)
		if !ok {
			if fault, ok := err.(*Fault); ok && fault.Method == "" {
				fault.Method, fault.PC = m.Owner+"."+m.Name, f.pc
			}
			return nil, err
		}
		target, ok := rt.handlerFor(m, f.pc, raised.Exc)
		if !ok {
			return nil, err
		}
		f.stack = append(f.stack[:0], raised.Exc)
		f.r.Seek(target)
	}
}

// handlerFor returns the target of the first handler covering pc that
// catches exc.
func (rt *Runtime) handlerFor(m *host.Method, pc int, exc *Instance) (int, bool) {
	for _, h := range m.Handlers {
		if pc < h.Start || pc >= h.End {
			continue
		}
		if h.Catch == "" || rt.isHost(exc, h.Catch) {
			return h.Target, true
		}
	}
	return 0, false
}

// step executes one instruction. done reports a return from the method.
func (rt *Runtime) step(f *frame, op host.Opcode) (result any, done bool, err error) {
	switch op {
	case host.OpNOP:

	// --- Constants --------------------------------------------------------
	case host.OpACONSTNULL:
		f.push(nil)
	case host.OpSIPUSH:
		f.push(int64(f.r.ReadInt16()))
	case host.OpLDC:
		c, err := f.m.Constant(f.r.ReadUint16())
		if err != nil {
			return nil, false, f.faultf("%v", err)
		}
		switch c.Kind {
		case host.ConstString:
			f.push(c.Str)
		case host.ConstInt:
			f.push(c.Int)
		default:
			return nil, false, f.faultf("LDC of %v", c)
		}

	// --- Stack shuffles ---------------------------------------------------
	case host.OpPOP:
		f.pop()
	case host.OpPOP2:
		f.popN(2)
	case host.OpDUP:
		f.push(f.stack[len(f.stack)-1])
	case host.OpDUPX1:
		v := f.popN(2) // b a
		f.push(v[1])
		f.push(v[0])
		f.push(v[1])
	case host.OpDUPX2:
		v := f.popN(3) // c b a
		f.push(v[2])
		f.push(v[0])
		f.push(v[1])
		f.push(v[2])
	case host.OpDUP2:
		n := len(f.stack)
		f.push(f.stack[n-2])
		f.push(f.stack[n-1])
	case host.OpSWAP:
		n := len(f.stack)
		f.stack[n-1], f.stack[n-2] = f.stack[n-2], f.stack[n-1]

	// --- Locals -----------------------------------------------------------
	case host.OpALOAD, host.OpILOAD, host.OpLLOAD, host.OpDLOAD:
		f.push(f.locals[f.r.ReadUint16()])
	case host.OpASTORE, host.OpISTORE, host.OpLSTORE, host.OpDSTORE:
		f.locals[f.r.ReadUint16()] = f.pop()
	case host.OpIINC:
		idx := f.r.ReadUint16()
		delta := int64(f.r.ReadInt8())
		n, ok := f.locals[idx].(int64)
		if !ok {
			return nil, false, f.faultf("IINC of non-int local %d", idx)
		}
		f.locals[idx] = n + delta

	// --- Types ------------------------------------------------------------
	case host.OpNEW:
		class, err := f.m.ClassAt(f.r.ReadUint16())
		if err != nil {
			return nil, false, f.faultf("%v", err)
		}
		obj, err := rt.allocate(class)
		if err != nil {
			return nil, false, err
		}
		f.push(obj)
	case host.OpCHECKCAST:
		class, err := f.m.ClassAt(f.r.ReadUint16())
		if err != nil {
			return nil, false, f.faultf("%v", err)
		}
		if v := f.stack[len(f.stack)-1]; v != nil && !rt.isHost(v, class) {
			return nil, false, f.faultf("cannot cast %s to %s", rt.TypeName(v), class)
		}
	case host.OpINSTANCEOF:
		class, err := f.m.ClassAt(f.r.ReadUint16())
		if err != nil {
			return nil, false, f.faultf("%v", err)
		}
		v := f.pop()
		f.push(boolean(v != nil && rt.isHost(v, class)))

	// --- Fields -----------------------------------------------------------
	case host.OpGETFIELD, host.OpPUTFIELD:
		ref, err := f.m.FieldAt(f.r.ReadUint16())
		if err != nil {
			return nil, false, f.faultf("%v", err)
		}
		var v any
		if op == host.OpPUTFIELD {
			v = f.pop()
		}
		obj, ok := f.pop().(fielder)
		if !ok {
			return nil, false, f.faultf("%v on a value without fields", ref)
		}
		if op == host.OpPUTFIELD {
			obj.setField(ref.Name, v)
			break
		}
		v, _ = obj.field(ref.Name)
		f.push(v)
	case host.OpGETSTATIC:
		ref, err := f.m.FieldAt(f.r.ReadUint16())
		if err != nil {
			return nil, false, f.faultf("%v", err)
		}
		c, ok := rt.classes[ref.Owner]
		if !ok {
			return nil, false, f.faultf("static of unknown class %s", ref.Owner)
		}
		if ref.Name == abi.TypeObject(ref.Owner).Name {
			f.push(c)
			break
		}
		f.push(c.Statics[ref.Name])
	case host.OpPUTSTATIC:
		ref, err := f.m.FieldAt(f.r.ReadUint16())
		if err != nil {
			return nil, false, f.faultf("%v", err)
		}
		c, ok := rt.classes[ref.Owner]
		if !ok {
			return nil, false, f.faultf("static of unknown class %s", ref.Owner)
		}
		c.Statics[ref.Name] = f.pop()

	// --- Invocation -------------------------------------------------------
	case host.OpINVOKEVIRTUAL, host.OpINVOKEINTERFACE, host.OpINVOKESTATIC, host.OpINVOKESPECIAL:
		ref, err := f.m.MethodAt(f.r.ReadUint16())
		if err != nil {
			return nil, false, f.faultf("%v", err)
		}
		n := len(ref.Params)
		if op != host.OpINVOKESTATIC {
			n++
		}
		if len(f.stack) < n {
			return nil, false, f.faultf("%v needs %d operands, stack has %d", ref, n, len(f.stack))
		}
		v, err := rt.invoke(op, ref, f.popN(n))
		if err != nil {
			return nil, false, err
		}
		if ref.Returns() {
			f.push(v)
		}

	// --- Branches ---------------------------------------------------------
	case host.OpGOTO:
		f.r.Seek(f.branch())
	case host.OpIFEQ, host.OpIFNE:
		target := f.branch()
		v, err := f.popInt()
		if err != nil {
			return nil, false, err
		}
		if (v == 0) == (op == host.OpIFEQ) {
			f.r.Seek(target)
		}
	case host.OpIFNULL, host.OpIFNONNULL:
		target := f.branch()
		if (f.pop() == nil) == (op == host.OpIFNULL) {
			f.r.Seek(target)
		}
	case host.OpIFACMPEQ, host.OpIFACMPNE:
		target := f.branch()
		v := f.popN(2)
		if Identical(v[0], v[1]) == (op == host.OpIFACMPEQ) {
			f.r.Seek(target)
		}
	case host.OpIFICMPEQ, host.OpIFICMPNE, host.OpIFICMPLT, host.OpIFICMPGT, host.OpIFICMPGE:
		target := f.branch()
		b, err := f.popInt()
		if err != nil {
			return nil, false, err
		}
		a, err := f.popInt()
		if err != nil {
			return nil, false, err
		}
		var taken bool
		switch op {
		case host.OpIFICMPEQ:
			taken = a == b
		case host.OpIFICMPNE:
			taken = a != b
		case host.OpIFICMPLT:
			taken = a < b
		case host.OpIFICMPGT:
			taken = a > b
		default:
			taken = a >= b
		}
		if taken {
			f.r.Seek(target)
		}

	// --- Exits ------------------------------------------------------------
	case host.OpRETURN:
		return nil, true, nil
	case host.OpARETURN:
		return f.pop(), true, nil
	case host.OpATHROW:
		v := f.pop()
		if v == nil {
			return nil, false, rt.raisef(rt.RuntimeError, "No active exception to reraise")
		}
		exc, ok := v.(*Instance)
		if !ok || !exc.Class.IsSubclassOf(rt.BaseException) {
			return nil, false, f.faultf("ATHROW of %s", rt.TypeName(v))
		}
		return nil, false, Raise(exc)

	default:
		return nil, false, f.faultf("unknown opcode %v", op)
	}
	return nil, false, nil
}
