package lower

import (
	"github.com/chazu/pylower/abi"
	"github.com/chazu/pylower/catalog"
	"github.com/chazu/pylower/host"
)

// A generator body is one host method taking the generator object first.
// Every call runs it from the top, where a jump to the dispatcher emitted
// by Finish selects the resumption point from the state field. Suspending
// stores the operand stack and the persistent locals in a list held by
// the generator and returns.

// loadGen pushes the generator object.
func (l *Lowerer) loadGen() {
	l.load(0, host.KindRef)
}

// GeneratorStart discards the value sent to start the generator.
func (l *Lowerer) GeneratorStart() Stack {
	if !l.begin("GeneratorStart", 1) {
		return l.Stack()
	}
	defer l.end()
	l.emit(host.OpPOP)
	l.pop(1)
	return l.Stack()
}

// Yield suspends with the top slot as the yielded value. On resumption the
// stack is restored and the sent value replaces the yielded one; a value
// thrown into the generator is raised instead.
func (l *Lowerer) Yield() Stack {
	if !l.begin("Yield", 1) {
		return l.Stack()
	}
	defer l.end()
	if !l.generatorOnly() {
		return l.Stack()
	}
	l.loadGen()
	l.emit(host.OpSWAP)
	l.putField(abi.YieldedValue)
	l.pop(1)

	rest := l.stack.Clone()
	state := l.nextState
	l.nextState++
	frame, ok := l.saveFrame(state)
	if !ok {
		return l.Stack()
	}
	l.emit(host.OpRETURN)

	resume := l.newLabel()
	l.mark(resume)
	l.resumes = append(l.resumes, &resumePoint{state: state, label: resume, stack: rest, frame: frame})
	l.push(catalog.Object)

	notThrown := l.newLabel()
	l.loadGen()
	l.getField(abi.ThrownValue)
	l.emit(host.OpDUP)
	l.branch(host.OpIFNULL, notThrown)
	l.loadGen()
	l.emit(host.OpACONSTNULL)
	l.putField(abi.ThrownValue)
	l.emit(host.OpATHROW)
	l.mark(notThrown)
	l.emit(host.OpPOP)
	return l.Stack()
}

// YieldFrom delegates to the iterator under the top slot until it is
// exhausted, forwarding every value it yields and every value sent or
// thrown in. The top slot is the first value to send. The result is the
// iterator's return value.
func (l *Lowerer) YieldFrom() Stack {
	if !l.begin("YieldFrom", 2) {
		return l.Stack()
	}
	defer l.end()
	if !l.generatorOnly() {
		return l.Stack()
	}
	l.loadGen()
	l.emit(host.OpSWAP)
	l.putField(abi.SentValue)
	l.pop(1)
	l.loadGen()
	l.emit(host.OpSWAP)
	l.putField(abi.YieldFromIterator)
	l.pop(1)

	rest := l.stack.Clone()
	state := l.nextState
	l.nextState++
	frame, ok := l.saveFrame(state)
	if !ok {
		return l.Stack()
	}

	loop := l.newLabel()
	start, end, exhausted := l.newLabel(), l.newLabel(), l.newLabel()
	notThrown, noThrow, useNext, got := l.newLabel(), l.newLabel(), l.newLabel(), l.newLabel()
	l.mark(loop)
	l.resumes = append(l.resumes, &resumePoint{state: state, label: loop, stack: rest, frame: frame, frameOnly: true})
	l.mark(start)

	// thrown in: delegate to the iterator's throw, if it has one
	l.loadGen()
	l.getField(abi.ThrownValue)
	l.emit(host.OpDUP)
	l.branch(host.OpIFNULL, notThrown)
	l.loadGen()
	l.emit(host.OpACONSTNULL)
	l.putField(abi.ThrownValue)
	l.loadGen()
	l.getField(abi.YieldFromIterator)
	l.b.EmitString("throw")
	l.invoke(abi.GetAttributeOrNull)
	l.emit(host.OpDUP)
	l.branch(host.OpIFNULL, noThrow)
	l.emit(host.OpSWAP)
	l.rawArgList(1)
	l.rawCall(false)
	l.branch(host.OpGOTO, got)

	// sent: None advances with __next__, anything else goes to send
	l.mark(notThrown)
	l.emit(host.OpPOP)
	l.loadGen()
	l.getField(abi.SentValue)
	l.emit(host.OpDUP)
	l.getStatic(abi.None)
	l.branch(host.OpIFACMPEQ, useNext)
	l.loadGen()
	l.getField(abi.YieldFromIterator)
	l.b.EmitString("send")
	l.invoke(abi.GetAttributeOrError)
	l.emit(host.OpSWAP)
	l.rawArgList(1)
	l.rawCall(false)
	l.branch(host.OpGOTO, got)

	l.mark(useNext)
	l.emit(host.OpPOP)
	l.loadGen()
	l.getField(abi.YieldFromIterator)
	l.rawUnary("__next__")

	l.mark(got)
	l.mark(end)
	l.loadGen()
	l.emit(host.OpSWAP)
	l.putField(abi.YieldedValue)
	l.setState(state)
	l.emit(host.OpRETURN)

	l.mark(noThrow)
	l.emit(host.OpPOP)
	l.clearDelegate()
	l.emit(host.OpATHROW)

	l.mark(exhausted)
	l.b.TryCatch(start, end, exhausted, abi.StopIterationClass)
	l.b.EmitClass(host.OpCHECKCAST, abi.StopIterationClass)
	l.invoke(abi.StopIterationValue)
	l.clearDelegate()
	result := l.allocRef()
	l.store(result, host.KindRef)
	l.restoreStack(rest)
	l.load(result, host.KindRef)
	l.pool.Free(result)

	l.stack = rest.Clone()
	l.push(catalog.Object)
	return l.Stack()
}

// Send advances the iterator under the top slot with the top slot as the
// sent value: __next__ for None, send otherwise. When the iterator yields
// the value replaces the sent one; when it is exhausted both are replaced
// by its return value and control continues at target.
func (l *Lowerer) Send(target int) Stack {
	if !l.begin("Send", 2) {
		return l.Stack()
	}
	defer l.end()

	ts := l.storeStack(len(l.stack))
	v, recv := ts[0], ts[1]
	start, end, exhausted, useNext, got, cont := l.newLabel(), l.newLabel(), l.newLabel(), l.newLabel(), l.newLabel(), l.newLabel()
	l.mark(start)
	l.load(v.idx, v.slot.Kind())
	l.getStatic(abi.None)
	l.branch(host.OpIFACMPEQ, useNext)
	l.load(recv.idx, recv.slot.Kind())
	l.b.EmitString("send")
	l.invoke(abi.GetAttributeOrError)
	l.load(v.idx, v.slot.Kind())
	l.rawArgList(1)
	l.rawCall(false)
	l.branch(host.OpGOTO, got)
	l.mark(useNext)
	l.load(recv.idx, recv.slot.Kind())
	l.rawUnary("__next__")
	l.mark(got)
	l.mark(end)
	l.emit(host.OpSWAP, host.OpPOP)
	l.branch(host.OpGOTO, cont)

	l.mark(exhausted)
	l.b.TryCatch(start, end, exhausted, abi.StopIterationClass)
	l.b.EmitClass(host.OpCHECKCAST, abi.StopIterationClass)
	l.invoke(abi.StopIterationValue)
	result := l.allocRef()
	l.store(result, host.KindRef)
	yielding := l.stack
	l.stack = nil
	l.reload(ts[2:])
	l.load(result, host.KindRef)
	l.push(catalog.Object)
	l.pool.Free(result)
	l.jump(host.OpGOTO, target)
	l.stack = yielding

	l.mark(cont)
	l.pop(1)
	l.push(catalog.Object)
	l.release(ts)
	return l.Stack()
}

// GetYieldFromIter replaces the top slot with the iterator to delegate to.
// Generators are their own iterators.
func (l *Lowerer) GetYieldFromIter() Stack {
	if !l.begin("GetYieldFromIter", 1) {
		return l.Stack()
	}
	defer l.end()
	l.unary("__iter__")
	return l.Stack()
}

// endGenerator finishes the generator with the value on top as its result.
func (l *Lowerer) endGenerator() {
	l.loadGen()
	l.emit(host.OpSWAP)
	l.putField(abi.YieldedValue)
	l.loadGen()
	l.emit(host.OpACONSTNULL)
	l.putField(abi.GeneratorStack)
	l.setState(abi.StateFinished)
	l.emit(host.OpRETURN)
}

// EndGenerator finishes the generator with the top slot as its result.
func (l *Lowerer) EndGenerator() Stack {
	if !l.begin("EndGenerator", 1) {
		return l.Stack()
	}
	defer l.end()
	if !l.generatorOnly() {
		return l.Stack()
	}
	l.endGenerator()
	l.pop(1)
	l.reachable = false
	return l.Stack()
}

func (l *Lowerer) generatorOnly() bool {
	if !l.fn.Generator {
		l.fail(ErrControlFlow, "%s outside a generator", l.op)
		return false
	}
	return true
}

func (l *Lowerer) setState(state int) {
	l.loadGen()
	l.pushInt(state)
	l.putField(abi.GeneratorState)
}

func (l *Lowerer) clearDelegate() {
	l.loadGen()
	l.emit(host.OpACONSTNULL)
	l.putField(abi.YieldFromIterator)
}

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

// frameSlots returns the locals that survive a suspension: the source
// locals and the reserved slots.
func (l *Lowerer) frameSlots() []int {
	var out []int
	for i := range l.fn.Locals {
		out = append(out, l.local(i))
	}
	return append(out, l.pool.Reserved()...)
}

// slotClass returns the host class a frame slot is restored as.
func (l *Lowerer) slotClass(idx int) string {
	if i := idx - l.localBase; i >= 0 && i < len(l.fn.Locals) {
		return hostOf(l.fn.Locals[i])
	}
	return abi.ObjectClass
}

// saveFrame moves the whole operand stack, bottom first, and then the
// persistent locals into a new list held by the generator, and sets the
// state to resume in. It leaves the host stack empty and the stack model
// untouched.
func (l *Lowerer) saveFrame(state int) ([]int, bool) {
	for _, s := range l.stack {
		if s.Kind() != host.KindRef {
			l.fail(ErrUnsupported, "cannot suspend with a %v slot on the stack", s.Kind())
			return nil, false
		}
	}
	frame := l.frameSlots()
	for _, idx := range frame {
		if k := l.pool.Kind(idx); idx >= l.localBase+len(l.fn.Locals) && k != host.KindRef {
			l.fail(ErrUnsupported, "cannot suspend with a %v local", k)
			return nil, false
		}
	}
	for _, t := range l.fn.Locals {
		if t.Kind() != host.KindRef {
			l.fail(ErrUnsupported, "cannot suspend with a %v local", t.Kind())
			return nil, false
		}
	}

	l.newCollection(abi.ListClass, len(l.stack)+len(frame))
	for range l.stack {
		l.reverseAdd(abi.ListClass)
	}
	for _, idx := range frame {
		l.emit(host.OpDUP)
		l.load(idx, host.KindRef)
		l.invoke(abi.ListAdd)
	}
	l.loadGen()
	l.emit(host.OpSWAP)
	l.putField(abi.GeneratorStack)
	l.setState(state)
	return frame, true
}

// listItem pushes item i of the saved frame list, cast to class.
func (l *Lowerer) listItem(i int, class string) {
	l.loadGen()
	l.getField(abi.GeneratorStack)
	l.pushInt(i)
	l.invoke(abi.ListGet)
	l.checkcast(class)
}

// restoreStack pushes the operand stack saved with the frame.
func (l *Lowerer) restoreStack(stack Stack) {
	for i, s := range stack {
		l.listItem(i, hostOf(s.typ()))
	}
}

// restoreFrame reloads the persistent locals of a resumption point.
func (l *Lowerer) restoreFrame(rp *resumePoint) {
	for j, idx := range rp.frame {
		l.listItem(len(rp.stack)+j, l.slotClass(idx))
		l.store(idx, host.KindRef)
	}
}

// emitDispatch emits the jump table the method entry goes to: state 0
// starts the body with the sent value, every resumption point restores its
// frame, any other state returns at once.
func (l *Lowerer) emitDispatch() {
	l.op = "Dispatch"
	l.mark(l.dispatch)
	next := l.newLabel()
	l.loadGen()
	l.getField(abi.GeneratorState)
	l.branch(host.OpIFNE, next)
	l.loadGen()
	l.getField(abi.SentValue)
	l.branch(host.OpGOTO, l.label(l.first))

	for _, rp := range l.resumes {
		l.mark(next)
		next = l.newLabel()
		l.loadGen()
		l.getField(abi.GeneratorState)
		l.pushInt(rp.state)
		l.branch(host.OpIFICMPNE, next)
		l.restoreFrame(rp)
		if !rp.frameOnly {
			l.restoreStack(rp.stack)
			l.loadGen()
			l.getField(abi.SentValue)
		}
		l.branch(host.OpGOTO, rp.label)
	}
	l.mark(next)
	l.emit(host.OpRETURN)
	log.Debug("generator dispatch", "func", l.fn.Name, "states", len(l.resumes)+1)
}
