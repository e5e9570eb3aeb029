package lower

import (
	"github.com/chazu/pylower/abi"
	"github.com/chazu/pylower/catalog"
	"github.com/chazu/pylower/host"
)

// buildCollection collects the top n slots into a new collection of type t,
// keeping their order.
func (l *Lowerer) buildCollection(class string, t *catalog.Type, n int) {
	l.newCollection(class, n)
	l.push(t)
	for i := 0; i < n; i++ {
		l.reverseAdd(class)
		top := len(l.stack)
		l.stack = append(l.stack[:top-2], l.stack[top-1])
	}
}

// BuildTuple replaces the top n slots with a tuple of them.
func (l *Lowerer) BuildTuple(n int) Stack {
	return l.build("BuildTuple", abi.TupleClass, catalog.Tuple, n)
}

// BuildList replaces the top n slots with a list of them.
func (l *Lowerer) BuildList(n int) Stack {
	return l.build("BuildList", abi.ListClass, catalog.List, n)
}

// BuildSet replaces the top n slots with a set of them.
func (l *Lowerer) BuildSet(n int) Stack {
	return l.build("BuildSet", abi.SetClass, catalog.Set, n)
}

func (l *Lowerer) build(op, class string, t *catalog.Type, n int) Stack {
	if !l.begin(op, n) {
		return l.Stack()
	}
	defer l.end()
	if n < 0 {
		l.fail(ErrUnsupported, "negative element count %d", n)
		return l.Stack()
	}
	l.buildCollection(class, t, n)
	return l.Stack()
}

// BuildMap replaces n key/value pairs, keys below values, with a dict.
// Pairs are inserted bottom first, so a repeated key keeps the last value.
func (l *Lowerer) BuildMap(n int) Stack {
	if !l.begin("BuildMap", 2*n) {
		return l.Stack()
	}
	defer l.end()
	if n < 0 {
		l.fail(ErrUnsupported, "negative pair count %d", n)
		return l.Stack()
	}
	ts := l.spill(2 * n)
	l.newCollection(abi.DictClass, n)
	for i := 0; i < n; i++ {
		k, v := ts[2*n-1-2*i], ts[2*n-2-2*i]
		l.emit(host.OpDUP)
		l.load(k.idx, k.slot.Kind())
		l.load(v.idx, v.slot.Kind())
		l.invoke(abi.DictPut)
	}
	l.release(ts)
	l.push(catalog.Dict)
	return l.Stack()
}

// UnpackSequence replaces an iterable with its n items, the first on top.
// The emitted code raises when the iterable yields fewer or more than n
// items.
func (l *Lowerer) UnpackSequence(n int) Stack {
	if !l.begin("UnpackSequence", 1) {
		return l.Stack()
	}
	defer l.end()
	if n < 0 {
		l.fail(ErrUnpackCount, "negative target count %d", n)
		return l.Stack()
	}

	// The handler enters with an empty stack, so everything is spilled.
	ts := l.spill(len(l.stack))
	seq, rest := ts[:1], ts[1:]
	l.reload(seq)
	l.unary("__iter__")
	it := l.allocRef()
	l.store(it, host.KindRef)
	l.pop(1)
	size := l.pool.Alloc(host.KindInt)
	l.pushInt(0)
	l.store(size, host.KindInt)
	items := make([]int, n)
	for i := range items {
		items[i] = l.allocRef()
	}

	start, end, exhausted, done := l.newLabel(), l.newLabel(), l.newLabel(), l.newLabel()
	l.mark(start)
	for i := 0; i <= n; i++ {
		l.load(it, host.KindRef)
		l.rawUnary("__next__")
		if i == n {
			break
		}
		l.store(items[i], host.KindRef)
		l.b.EmitIinc(size, 1)
	}
	l.mark(end)
	l.emit(host.OpPOP)
	l.pushInt(n)
	l.invokeStatic(abi.UnpackTooMany)
	l.emit(host.OpATHROW)

	l.mark(exhausted)
	l.b.TryCatch(start, end, exhausted, abi.StopIterationClass)
	l.emit(host.OpPOP)
	l.load(size, host.KindInt)
	l.pushInt(n)
	l.branch(host.OpIFICMPGE, done)
	l.pushInt(n)
	l.load(size, host.KindInt)
	l.invokeStatic(abi.UnpackTooFew)
	l.emit(host.OpATHROW)

	l.mark(done)
	l.reload(rest)
	for i := n - 1; i >= 0; i-- {
		l.load(items[i], host.KindRef)
		l.push(catalog.Object)
	}
	for i := n - 1; i >= 0; i-- {
		l.pool.Free(items[i])
	}
	l.pool.Free(size)
	l.pool.Free(it)
	l.release(ts)
	return l.Stack()
}

// UnpackSequenceWithTail unpacks an iterable into before leading items, a
// list of the middle items and after trailing items. The first leading
// item ends on top and the last trailing item deepest.
func (l *Lowerer) UnpackSequenceWithTail(before, after int) Stack {
	if !l.begin("UnpackSequenceWithTail", 1) {
		return l.Stack()
	}
	defer l.end()
	if before < 0 || after < 0 {
		l.fail(ErrUnpackCount, "negative target count %d/%d", before, after)
		return l.Stack()
	}

	l.newCollection(abi.ListClass, 0)
	l.emit(host.OpDUPX1, host.OpSWAP)
	l.invoke(abi.ListExtend)
	l.pop(1)
	list := l.allocRef()
	l.store(list, host.KindRef)

	fixed := before + after
	enough := l.newLabel()
	l.load(list, host.KindRef)
	l.invoke(abi.ListSize)
	l.pushInt(fixed)
	l.branch(host.OpIFICMPGE, enough)
	l.pushInt(fixed)
	l.load(list, host.KindRef)
	l.invoke(abi.ListSize)
	l.invokeStatic(abi.UnpackTooFewStarred)
	l.emit(host.OpATHROW)

	l.mark(enough)
	for i := 1; i <= after; i++ {
		l.load(list, host.KindRef)
		l.pushInt(-i)
		l.invoke(abi.ListGet)
		l.push(catalog.Object)
	}
	l.load(list, host.KindRef)
	l.pushInt(before)
	l.pushInt(after)
	l.invoke(abi.ListCut)
	l.push(catalog.List)
	for i := before - 1; i >= 0; i-- {
		l.load(list, host.KindRef)
		l.pushInt(i)
		l.invoke(abi.ListGet)
		l.push(catalog.Object)
	}
	l.pool.Free(list)
	return l.Stack()
}

// newSlice replaces [start stop] with a slice object with no step.
func (l *Lowerer) newSlice() {
	ts := l.spill(2) // stop, start
	l.b.EmitClass(host.OpNEW, abi.SliceClass)
	l.emit(host.OpDUP)
	l.load(ts[1].idx, ts[1].slot.Kind())
	l.load(ts[0].idx, ts[0].slot.Kind())
	l.getStatic(abi.None)
	l.invokeSpecial(abi.SliceInit)
	l.release(ts)
	l.push(catalog.Slice)
}

// GetSlice replaces [container start stop] with container[start:stop].
func (l *Lowerer) GetSlice() Stack {
	if !l.begin("GetSlice", 3) {
		return l.Stack()
	}
	defer l.end()
	l.newSlice()
	l.binary(GetItem)
	return l.Stack()
}

// StoreSlice performs container[start:stop] = value on
// [value container start stop].
func (l *Lowerer) StoreSlice() Stack {
	if !l.begin("StoreSlice", 4) {
		return l.Stack()
	}
	defer l.end()
	l.newSlice()
	l.storeItem()
	return l.Stack()
}

// StoreSubscr performs container[key] = value on [value container key].
func (l *Lowerer) StoreSubscr() Stack {
	if !l.begin("StoreSubscr", 3) {
		return l.Stack()
	}
	defer l.end()
	l.storeItem()
	return l.Stack()
}

// storeItem calls __setitem__ on [value container key].
func (l *Lowerer) storeItem() {
	l.rotate3()
	l.rotate3()
	l.protocolCall("__setitem__", 3)
	l.emit(host.OpPOP)
	l.pop(1)
}

// DeleteSubscr performs del container[key] on [container key].
func (l *Lowerer) DeleteSubscr() Stack {
	if !l.begin("DeleteSubscr", 2) {
		return l.Stack()
	}
	defer l.end()
	l.protocolCall("__delitem__", 2)
	l.emit(host.OpPOP)
	l.pop(1)
	return l.Stack()
}
