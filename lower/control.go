package lower

import (
	"github.com/chazu/pylower/abi"
	"github.com/chazu/pylower/catalog"
	"github.com/chazu/pylower/host"
)

// Jump continues at target unconditionally.
func (l *Lowerer) Jump(target int) Stack {
	if !l.begin("Jump", 0) {
		return l.Stack()
	}
	defer l.end()
	l.jump(host.OpGOTO, target)
	l.reachable = false
	return l.Stack()
}

// PopJumpIfTrue pops the top slot and jumps when it is truthy.
func (l *Lowerer) PopJumpIfTrue(target int) Stack {
	return l.popJumpIfBool("PopJumpIfTrue", host.OpIFACMPEQ, target)
}

// PopJumpIfFalse pops the top slot and jumps when it is falsy.
func (l *Lowerer) PopJumpIfFalse(target int) Stack {
	return l.popJumpIfBool("PopJumpIfFalse", host.OpIFACMPNE, target)
}

func (l *Lowerer) popJumpIfBool(op string, cmp host.Opcode, target int) Stack {
	if !l.begin(op, 1) {
		return l.Stack()
	}
	defer l.end()
	l.toBool()
	l.pop(1)
	l.getStatic(abi.True)
	l.jump(cmp, target)
	return l.Stack()
}

// JumpIfTrueOrPop jumps keeping the top slot when it is truthy, and pops
// it otherwise.
func (l *Lowerer) JumpIfTrueOrPop(target int) Stack {
	return l.jumpIfBoolOrPop("JumpIfTrueOrPop", host.OpIFACMPEQ, target)
}

// JumpIfFalseOrPop jumps keeping the top slot when it is falsy, and pops
// it otherwise.
func (l *Lowerer) JumpIfFalseOrPop(target int) Stack {
	return l.jumpIfBoolOrPop("JumpIfFalseOrPop", host.OpIFACMPNE, target)
}

func (l *Lowerer) jumpIfBoolOrPop(op string, cmp host.Opcode, target int) Stack {
	if !l.begin(op, 1) {
		return l.Stack()
	}
	defer l.end()
	l.duplicateToTop(0)
	l.toBool()
	l.pop(1)
	l.getStatic(abi.True)
	l.jump(cmp, target)
	l.emit(host.OpPOP)
	l.pop(1)
	return l.Stack()
}

// PopJumpIfNone pops the top slot and jumps when it is None.
func (l *Lowerer) PopJumpIfNone(target int) Stack {
	return l.popJumpIfNone("PopJumpIfNone", host.OpIFACMPEQ, target)
}

// PopJumpIfNotNone pops the top slot and jumps when it is not None.
func (l *Lowerer) PopJumpIfNotNone(target int) Stack {
	return l.popJumpIfNone("PopJumpIfNotNone", host.OpIFACMPNE, target)
}

func (l *Lowerer) popJumpIfNone(op string, cmp host.Opcode, target int) Stack {
	if !l.begin(op, 1) {
		return l.Stack()
	}
	defer l.end()
	l.pop(1)
	l.getStatic(abi.None)
	l.jump(cmp, target)
	return l.Stack()
}

// GetIter replaces the top slot with its iterator.
func (l *Lowerer) GetIter() Stack {
	if !l.begin("GetIter", 1) {
		return l.Stack()
	}
	defer l.end()
	l.unary("__iter__")
	return l.Stack()
}

// ForIter pushes the next item of the iterator on top. When the iterator
// is exhausted it pops the iterator and jumps to target instead.
func (l *Lowerer) ForIter(target int) Stack {
	if !l.begin("ForIter", 1) {
		return l.Stack()
	}
	defer l.end()

	// The handler enters with an empty stack; keep a copy to rebuild it.
	ts := l.storeStack(len(l.stack))
	start, end, exhausted, cont := l.newLabel(), l.newLabel(), l.newLabel(), l.newLabel()
	l.mark(start)
	l.emit(host.OpDUP)
	l.rawUnary("__next__")
	l.mark(end)
	l.branch(host.OpGOTO, cont)

	l.mark(exhausted)
	l.b.TryCatch(start, end, exhausted, abi.StopIterationClass)
	l.emit(host.OpPOP)
	loop := l.stack
	l.stack = nil
	l.reload(ts[1:])
	l.jump(host.OpGOTO, target)
	l.stack = loop

	l.mark(cont)
	l.push(catalog.Object)
	l.release(ts)
	return l.Stack()
}

// ReturnValue returns the top slot. In a generator it finishes the
// generator with the value as its result.
func (l *Lowerer) ReturnValue() Stack {
	if !l.begin("ReturnValue", 1) {
		return l.Stack()
	}
	defer l.end()
	if l.fn.Generator {
		l.endGenerator()
	} else {
		l.emit(host.OpARETURN)
	}
	l.pop(1)
	l.reachable = false
	return l.Stack()
}
