package lower

import (
	"github.com/chazu/pylower/abi"
	"github.com/chazu/pylower/catalog"
	"github.com/chazu/pylower/host"
)

func (l *Lowerer) localType(i int) (*catalog.Type, bool) {
	if i < 0 || i >= len(l.fn.Locals) {
		l.fail(ErrUnsupported, "local %d out of range (%d locals)", i, len(l.fn.Locals))
		return nil, false
	}
	t := l.fn.Locals[i]
	if t == nil {
		t = catalog.Object
	}
	return t, true
}

// LoadFast pushes source local i.
func (l *Lowerer) LoadFast(i int) Stack {
	if !l.begin("LoadFast", 0) {
		return l.Stack()
	}
	defer l.end()
	t, ok := l.localType(i)
	if !ok {
		return l.Stack()
	}
	l.load(l.local(i), t.Kind())
	l.push(t)
	return l.Stack()
}

// StoreFast pops the top slot into source local i.
func (l *Lowerer) StoreFast(i int) Stack {
	if !l.begin("StoreFast", 1) {
		return l.Stack()
	}
	defer l.end()
	t, ok := l.localType(i)
	if !ok {
		return l.Stack()
	}
	if v := l.peek(0); v.Kind() != t.Kind() {
		l.fail(ErrStackJoin, "storing %v into %v local %d", v.typ(), t, i)
		return l.Stack()
	}
	if !l.peek(0).typ().IsSubtypeOf(t) {
		l.checkcast(t.Host)
	}
	l.store(l.local(i), t.Kind())
	l.pop(1)
	return l.Stack()
}

// DeleteFast clears source local i.
func (l *Lowerer) DeleteFast(i int) Stack {
	if !l.begin("DeleteFast", 0) {
		return l.Stack()
	}
	defer l.end()
	t, ok := l.localType(i)
	if !ok {
		return l.Stack()
	}
	if t.Kind() != host.KindRef {
		l.fail(ErrUnsupported, "cannot delete %v local %d", t.Kind(), i)
		return l.Stack()
	}
	l.emit(host.OpACONSTNULL)
	l.store(l.local(i), host.KindRef)
	return l.Stack()
}

// LoadConst pushes a constant: nil for None, a bool, an integer or a
// string.
func (l *Lowerer) LoadConst(v any) Stack {
	if !l.begin("LoadConst", 0) {
		return l.Stack()
	}
	defer l.end()
	switch c := v.(type) {
	case nil:
		l.getStatic(abi.None)
		l.push(catalog.NoneType)
	case bool:
		l.getStatic(boolField(c))
		l.push(catalog.Bool)
	case int:
		l.pushLong(int64(c))
	case int64:
		l.pushLong(c)
	case string:
		l.pushStr(c)
		l.push(catalog.Str)
	default:
		l.fail(ErrUnsupported, "constant of type %T", v)
	}
	return l.Stack()
}

func (l *Lowerer) pushLong(v int64) {
	l.b.EmitInt(v)
	l.invokeStatic(abi.IntValueOf)
	l.push(catalog.Int)
}
