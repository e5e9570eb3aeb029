package lower

import (
	"github.com/chazu/pylower/abi"
	"github.com/chazu/pylower/catalog"
	"github.com/chazu/pylower/host"
)

// Region is a source exception region: code from Start up to End transfers
// control to Target, keeping the bottom Depth slots of the stack.
type Region struct {
	Start, End int
	Target     int
	Depth      int
	// Lasti pushes the index of the raising instruction under the
	// exception in the bare dialect.
	Lasti bool
}

// TryRegion opens r at the current instruction. It saves the bottom
// r.Depth slots so the handler can rebuild them. Regions sharing a target
// share the saved slots and must agree on the depth.
func (l *Lowerer) TryRegion(r Region) Stack {
	if !l.begin("TryRegion", r.Depth) {
		return l.Stack()
	}
	defer l.end()
	if r.Depth < 0 {
		l.fail(ErrStackDepth, "negative region depth %d", r.Depth)
		return l.Stack()
	}
	if l.cfg.Dialect == DialectUnset {
		l.fail(ErrDialect, "exception regions need a dialect")
		return l.Stack()
	}
	if l.marked[r.Target] {
		l.fail(ErrControlFlow, "handler at %d precedes its region", r.Target)
		return l.Stack()
	}

	saved := l.stack[:r.Depth].Clone()
	h := l.handlers[r.Target]
	if h == nil {
		if _, ok := l.expected[r.Target]; ok {
			l.fail(ErrControlFlow, "jump into exception handler at %d", r.Target)
			return l.Stack()
		}
		h = &handler{target: r.Target, saved: saved, lasti: r.Lasti}
		for _, s := range saved {
			h.slots = append(h.slots, l.pool.Reserve(s.Kind()))
		}
		l.handlers[r.Target] = h
		log.Debug("exception region", "start", r.Start, "end", r.End, "target", r.Target, "depth", r.Depth)
	} else if !h.saved.Compatible(saved) || h.lasti != r.Lasti {
		l.fail(ErrStackJoin, "region stack %v, handler at %d keeps %v", saved, r.Target, h.saved)
		return l.Stack()
	}

	upper := l.spill(len(l.stack) - r.Depth)
	for i := len(h.slots) - 1; i >= 0; i-- {
		l.store(h.slots[i], h.saved[i].Kind())
	}
	for i, idx := range h.slots {
		l.load(idx, h.saved[i].Kind())
	}
	l.reload(upper)
	l.release(upper)

	start := l.newLabel()
	l.mark(start)
	l.b.TryCatch(start, l.label(r.End), l.label(r.Target), abi.BaseExceptionClass)
	return l.Stack()
}

// handlerEntry emits the code at a handler target. The host enters with
// only the exception on the stack.
func (l *Lowerer) handlerEntry(h *handler) {
	l.op = "Handler"
	h.emitted = true
	l.load(l.excSlot, host.KindRef)
	l.store(l.prevExcSlot, host.KindRef)
	l.store(l.excSlot, host.KindRef)

	l.stack = l.stack[:0]
	for i, idx := range h.slots {
		l.load(idx, h.saved[i].Kind())
		l.stack = append(l.stack, h.saved[i])
	}

	switch l.cfg.Dialect {
	case DialectTuple:
		l.getStatic(abi.None)
		l.push(catalog.NoneType)
		l.pushInt(len(h.slots))
		l.invokeStatic(abi.IntValueOf)
		l.push(catalog.Int)
		l.getStatic(abi.None)
		l.push(catalog.NoneType)
		l.invokeStatic(abi.CurrentTraceback)
		l.push(catalog.Object)
		l.load(l.excSlot, host.KindRef)
		l.push(catalog.BaseException)
		l.emit(host.OpDUP)
		l.push(catalog.BaseException)
	case DialectBare:
		if h.lasti {
			l.pushInt(0)
			l.invokeStatic(abi.IntValueOf)
			l.push(catalog.Int)
		}
		l.load(l.excSlot, host.KindRef)
		l.push(catalog.BaseException)
	default:
		l.fail(ErrDialect, "handler entry needs a dialect")
	}
}

// StartExceptOrFinally clears the current exception and pops the handler
// block values: three in the tuple dialect, one in the bare dialect.
func (l *Lowerer) StartExceptOrFinally() Stack {
	n := 1
	if l.cfg.Dialect == DialectTuple {
		n = 3
	}
	if !l.begin("StartExceptOrFinally", n) {
		return l.Stack()
	}
	defer l.end()
	if l.cfg.Dialect == DialectUnset {
		l.fail(ErrDialect, "handler blocks need a dialect")
		return l.Stack()
	}
	l.emit(host.OpACONSTNULL)
	l.store(l.excSlot, host.KindRef)
	for i := 0; i < n; i++ {
		l.emit(host.OpPOP)
	}
	l.pop(n)
	return l.Stack()
}

// PushExcInfo pushes the exception that was current before the handler
// was entered under the top slot.
func (l *Lowerer) PushExcInfo() Stack {
	if !l.begin("PushExcInfo", 1) {
		return l.Stack()
	}
	defer l.end()
	l.load(l.prevExcSlot, host.KindRef)
	l.push(catalog.Object)
	l.swap()
	return l.Stack()
}

// PopExcept pops the exception saved by PushExcInfo and makes it current
// again.
func (l *Lowerer) PopExcept() Stack {
	if !l.begin("PopExcept", 1) {
		return l.Stack()
	}
	defer l.end()
	l.store(l.excSlot, host.KindRef)
	l.pop(1)
	return l.Stack()
}

// CheckExcMatch replaces the type on top with whether the exception under
// it is an instance of that type. The exception stays.
func (l *Lowerer) CheckExcMatch() Stack {
	if !l.begin("CheckExcMatch", 2) {
		return l.Stack()
	}
	defer l.end()
	l.emit(host.OpDUP2)
	l.b.EmitClass(host.OpCHECKCAST, abi.TypeClass)
	l.emit(host.OpSWAP)
	l.invoke(abi.IsInstance)
	l.invokeStatic(abi.BoolValueOf)
	l.emit(host.OpSWAP, host.OpPOP)
	l.pop(1)
	l.push(catalog.Bool)
	return l.Stack()
}

// JumpIfNotExcMatch pops an exception and a type and jumps unless the
// exception is an instance of the type.
func (l *Lowerer) JumpIfNotExcMatch(target int) Stack {
	if !l.begin("JumpIfNotExcMatch", 2) {
		return l.Stack()
	}
	defer l.end()
	l.b.EmitClass(host.OpCHECKCAST, abi.TypeClass)
	l.emit(host.OpSWAP)
	l.invoke(abi.IsInstance)
	l.pop(2)
	l.jump(host.OpIFEQ, target)
	return l.Stack()
}

// Raise raises an exception. With no operands it re-raises the current
// exception; with one it raises the top slot; with two it raises the
// slot under the top with the top as its cause.
func (l *Lowerer) Raise(argc int) Stack {
	if !l.begin("Raise", argc) {
		return l.Stack()
	}
	defer l.end()
	switch argc {
	case 0:
		l.load(l.excSlot, host.KindRef)
	case 1:
		l.exceptionInstance()
	case 2:
		l.emit(host.OpSWAP)
		l.exceptionInstance()
		l.emit(host.OpSWAP)
		l.invoke(abi.SetCause)
	default:
		l.fail(ErrUnsupported, "raise with %d operands", argc)
		return l.Stack()
	}
	l.emit(host.OpATHROW)
	l.pop(argc)
	l.reachable = false
	return l.Stack()
}

// Reraise raises the top slot again.
func (l *Lowerer) Reraise() Stack {
	if !l.begin("Reraise", 1) {
		return l.Stack()
	}
	defer l.end()
	l.exceptionInstance()
	l.emit(host.OpATHROW)
	l.pop(1)
	l.reachable = false
	return l.Stack()
}

// exceptionInstance leaves exceptions on top alone and instantiates
// exception types with no arguments.
func (l *Lowerer) exceptionInstance() {
	isExc := l.newLabel()
	l.emit(host.OpDUP)
	l.b.EmitClass(host.OpINSTANCEOF, abi.BaseExceptionClass)
	l.branch(host.OpIFNE, isExc)
	l.rawArgList(0)
	l.rawCall(false)
	l.mark(isExc)
	l.b.EmitClass(host.OpCHECKCAST, abi.BaseExceptionClass)
}
