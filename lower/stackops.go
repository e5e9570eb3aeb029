package lower

import "github.com/chazu/pylower/host"

// ---------------------------------------------------------------------------
// Temporaries
// ---------------------------------------------------------------------------

// temp is a local holding one spilled stack slot.
type temp struct {
	idx  int
	slot Slot
}

// spill pops the top n slots into fresh temporaries. The result is top
// first.
func (l *Lowerer) spill(n int) []temp {
	ts := make([]temp, n)
	for i := 0; i < n; i++ {
		s := l.pop(1)[0]
		idx := l.pool.Alloc(s.Kind())
		l.store(idx, s.Kind())
		ts[i] = temp{idx, s}
	}
	return ts
}

// reload pushes spilled slots back in their original order. The
// temporaries stay allocated.
func (l *Lowerer) reload(ts []temp) {
	for i := len(ts) - 1; i >= 0; i-- {
		l.load(ts[i].idx, ts[i].slot.Kind())
		l.stack = append(l.stack, ts[i].slot)
	}
}

// release frees temporaries taken by spill, last allocated first.
func (l *Lowerer) release(ts []temp) {
	for i := len(ts) - 1; i >= 0; i-- {
		l.pool.Free(ts[i].idx)
	}
}

// storeStack copies the top n slots into temporaries, leaving the stack as
// it was.
func (l *Lowerer) storeStack(n int) []temp {
	ts := l.spill(n)
	l.reload(ts)
	return ts
}

// allocRef takes a temporary for a reference.
func (l *Lowerer) allocRef() int {
	return l.pool.Alloc(host.KindRef)
}

// ---------------------------------------------------------------------------
// Primitives
// ---------------------------------------------------------------------------

// [a b] -> [b a]
func (l *Lowerer) swap() {
	l.emit(host.OpSWAP)
	n := len(l.stack)
	l.stack[n-1], l.stack[n-2] = l.stack[n-2], l.stack[n-1]
}

// [a b c] -> [c a b]
func (l *Lowerer) rotate3() {
	l.emit(host.OpDUPX2, host.OpPOP)
	s := l.pop(3)
	l.stack = append(l.stack, s[2], s[0], s[1])
}

// [a b c d] -> [d a b c]
func (l *Lowerer) rotate4() {
	ts := l.spill(2) // d, c
	d, c := ts[0], ts[1]
	l.load(d.idx, d.slot.Kind())
	l.stack = append(l.stack, d.slot)
	l.rotate3()
	l.load(c.idx, c.slot.Kind())
	l.stack = append(l.stack, c.slot)
	l.release(ts)
}

// duplicateToTop pushes a copy of the slot at depth p.
func (l *Lowerer) duplicateToTop(p int) {
	switch p {
	case 0:
		l.emit(host.OpDUP)
		l.stack = append(l.stack, l.peek(0))
		return
	case 1:
		l.emit(host.OpDUP2, host.OpPOP)
		l.stack = append(l.stack, l.peek(1))
		return
	}
	ts := l.spill(p)
	l.emit(host.OpDUP)
	x := l.peek(0)
	l.stack = append(l.stack, x)
	for i := len(ts) - 1; i >= 0; i-- {
		l.load(ts[i].idx, ts[i].slot.Kind())
		l.emit(host.OpSWAP)
		l.stack[len(l.stack)-1] = ts[i].slot
		l.stack = append(l.stack, x)
	}
	l.release(ts)
}

// shiftTopDownTo moves the top slot under the p slots beneath it:
// [x_p ... x_1 x_0] -> [x_0 x_p ... x_1].
func (l *Lowerer) shiftTopDownTo(p int) {
	switch p {
	case 0:
		return
	case 1:
		l.swap()
		return
	case 2:
		l.rotate3()
		return
	}
	top := l.spill(1)
	under := l.spill(p)
	l.reload(top)
	l.reload(under)
	l.release(under)
	l.release(top)
}

// swapTopWith exchanges the top slot with the slot at depth p:
// [x_p x_p-1 ... x_1 x_0] -> [x_0 x_p-1 ... x_1 x_p].
func (l *Lowerer) swapTopWith(p int) {
	switch p {
	case 0:
		return
	case 1:
		l.swap()
		return
	}
	ts := l.spill(p + 1)
	order := make([]temp, 0, p+1)
	order = append(order, ts[p])      // new top: x_p
	order = append(order, ts[1:p]...) // x_1 ... x_p-1, top first
	order = append(order, ts[0])      // new bottom: x_0
	l.reload(order)
	l.release(ts)
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// Swap exchanges the top two slots.
func (l *Lowerer) Swap() Stack {
	if !l.begin("Swap", 2) {
		return l.Stack()
	}
	defer l.end()
	l.swap()
	return l.Stack()
}

// Rotate3 lifts the second and third slots over the top: [a b c] -> [c a b].
func (l *Lowerer) Rotate3() Stack {
	if !l.begin("Rotate3", 3) {
		return l.Stack()
	}
	defer l.end()
	l.rotate3()
	return l.Stack()
}

// Rotate4 moves the top slot under the next three: [a b c d] -> [d a b c].
func (l *Lowerer) Rotate4() Stack {
	if !l.begin("Rotate4", 4) {
		return l.Stack()
	}
	defer l.end()
	l.rotate4()
	return l.Stack()
}

// DuplicateToTop copies the slot at depth to the top. Depth 0 duplicates
// the top slot.
func (l *Lowerer) DuplicateToTop(depth int) Stack {
	if !l.begin("DuplicateToTop", depth+1) {
		return l.Stack()
	}
	if depth < 0 {
		l.fail(ErrStackDepth, "negative depth %d", depth)
		return l.Stack()
	}
	defer l.end()
	l.duplicateToTop(depth)
	return l.Stack()
}

// ShiftTopDownTo moves the top slot down under depth slots. Depth 0 is a
// no-op.
func (l *Lowerer) ShiftTopDownTo(depth int) Stack {
	if !l.begin("ShiftTopDownTo", depth+1) {
		return l.Stack()
	}
	if depth < 0 {
		l.fail(ErrStackDepth, "negative depth %d", depth)
		return l.Stack()
	}
	defer l.end()
	l.shiftTopDownTo(depth)
	return l.Stack()
}

// SwapTopWith exchanges the top slot with the slot at depth. Depth 0 is a
// no-op.
func (l *Lowerer) SwapTopWith(depth int) Stack {
	if !l.begin("SwapTopWith", depth+1) {
		return l.Stack()
	}
	if depth < 0 {
		l.fail(ErrStackDepth, "negative depth %d", depth)
		return l.Stack()
	}
	defer l.end()
	l.swapTopWith(depth)
	return l.Stack()
}

// Dup duplicates the top slot.
func (l *Lowerer) Dup() Stack {
	return l.DuplicateToTop(0)
}

// Pop discards the top slot.
func (l *Lowerer) Pop() Stack {
	if !l.begin("Pop", 1) {
		return l.Stack()
	}
	defer l.end()
	l.emit(host.OpPOP)
	l.pop(1)
	return l.Stack()
}
