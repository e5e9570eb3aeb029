package lower

import (
	"github.com/chazu/pylower/abi"
	"github.com/chazu/pylower/catalog"
	"github.com/chazu/pylower/host"
)

// BeforeWith enters the context manager on top: it leaves the manager's
// __exit__ bound to the manager under the result of __enter__.
func (l *Lowerer) BeforeWith() Stack {
	if !l.begin("BeforeWith", 1) {
		return l.Stack()
	}
	defer l.end()
	l.emit(host.OpDUP, host.OpDUP)
	l.invoke(abi.GetType)
	l.b.EmitString("__exit__")
	l.invoke(abi.GetAttributeOrError)
	l.checkcast(abi.FunctionClass)
	l.b.EmitClass(host.OpNEW, abi.BoundFunctionClass)
	l.emit(host.OpDUPX2, host.OpDUPX2, host.OpPOP) // [cm cm fn b] -> [cm b b cm fn]
	l.invokeSpecial(abi.BoundFunctionInit)
	l.emit(host.OpSWAP) // [b cm]

	cm := l.pop(1)[0]
	l.push(catalog.BoundFunction)
	l.stack = append(l.stack, cm)
	l.unary("__enter__")
	return l.Stack()
}

// WithNormalExit calls the bound __exit__ on top with three Nones and
// discards the result.
func (l *Lowerer) WithNormalExit() Stack {
	if !l.begin("WithNormalExit", 1) {
		return l.Stack()
	}
	defer l.end()
	for i := 0; i < 3; i++ {
		l.getStatic(abi.None)
		l.push(catalog.NoneType)
	}
	l.genericCall(3, nil)
	l.emit(host.OpPOP)
	l.pop(1)
	return l.Stack()
}

// WithExceptStart calls the nearest bound __exit__ below the top with the
// type, value and traceback of the exception on top, and pushes the
// result. The handler values between them stay in place.
func (l *Lowerer) WithExceptStart() Stack {
	if !l.begin("WithExceptStart", 2) {
		return l.Stack()
	}
	defer l.end()
	p := -1
	for d := 1; d < len(l.stack); d++ {
		if l.peek(d).typ().IsSubtypeOf(catalog.BoundFunction) {
			p = d
			break
		}
	}
	if p < 0 {
		l.fail(ErrUnsupported, "no bound __exit__ below the exception in %v", l.stack)
		return l.Stack()
	}

	ts := l.spill(p)
	exc := ts[0]
	l.emit(host.OpDUP)
	l.checkcast(abi.FunctionClass)
	l.newCollection(abi.ListClass, 3)
	l.emit(host.OpDUP)
	l.load(exc.idx, exc.slot.Kind())
	l.invoke(abi.GetType)
	l.invoke(abi.ListAdd)
	l.emit(host.OpDUP)
	l.load(exc.idx, exc.slot.Kind())
	l.invoke(abi.ListAdd)
	l.emit(host.OpDUP)
	l.invokeStatic(abi.CurrentTraceback)
	l.invoke(abi.ListAdd)
	l.emit(host.OpACONSTNULL)
	l.callerInstance()
	l.invoke(abi.Call)

	result := l.allocRef()
	l.store(result, host.KindRef)
	l.reload(ts)
	l.load(result, host.KindRef)
	l.push(catalog.Object)
	l.pool.Free(result)
	l.release(ts)
	return l.Stack()
}
