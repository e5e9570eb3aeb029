package lower

import (
	"github.com/chazu/pylower/abi"
	"github.com/chazu/pylower/catalog"
	"github.com/chazu/pylower/host"
)

// field returns the host field backing attribute name of the slot at
// depth d, when the catalog maps one.
func (l *Lowerer) field(d int, name string) (*catalog.Field, bool) {
	t := l.peek(d).typ()
	if t == catalog.Object {
		return nil, false
	}
	return t.Field(name)
}

// LoadAttr replaces the top slot with its attribute name. Attributes
// backed by a field are read directly; a null field raises AttributeError.
func (l *Lowerer) LoadAttr(name string) Stack {
	if !l.begin("LoadAttr", 1) {
		return l.Stack()
	}
	defer l.end()

	if f, ok := l.field(0, name); ok {
		log.Debug("field read", "type", l.peek(0).typ().Name, "attr", name)
		missing, done := l.newLabel(), l.newLabel()
		l.emit(host.OpDUP)
		l.checkcast(f.Host.Owner)
		l.getField(f.Host)
		l.emit(host.OpDUP)
		l.branch(host.OpIFNULL, missing)
		l.emit(host.OpSWAP, host.OpPOP)
		l.branch(host.OpGOTO, done)
		l.mark(missing)
		l.emit(host.OpPOP)
		l.b.EmitString(name)
		l.invokeStatic(abi.NoAttribute)
		l.emit(host.OpATHROW)
		l.mark(done)
		l.pop(1)
		l.push(f.Type)
		return l.Stack()
	}

	recv := l.peek(0).typ()
	l.b.EmitString(name)
	l.invoke(abi.GetAttributeOrError)
	l.pop(1)
	if sig, ok := l.cat.Lookup(recv, name); ok && sig.Kind != catalog.Static {
		l.push(catalog.NewBoundMethodType(sig))
		return l.Stack()
	}
	l.push(catalog.Object)
	return l.Stack()
}

// StoreAttr sets attribute name of the top slot to the slot under it.
// Field-backed attributes coerce the value to the field's type.
func (l *Lowerer) StoreAttr(name string) Stack {
	if !l.begin("StoreAttr", 2) {
		return l.Stack()
	}
	defer l.end()

	if f, ok := l.field(0, name); ok {
		log.Debug("field write", "type", l.peek(0).typ().Name, "attr", name)
		l.checkcast(f.Host.Owner)
		l.emit(host.OpSWAP)
		l.getStatic(abi.TypeObject(f.Type.Host))
		l.invokeStatic(abi.CoerceToType)
		l.checkcast(f.Type.Host)
		l.putField(f.Host)
		l.pop(2)
		return l.Stack()
	}

	l.swap()
	l.pushStr(name)
	l.push(catalog.Str)
	l.swap()
	l.dunderCall("__setattr__", 3)
	l.emit(host.OpPOP)
	l.pop(1)
	return l.Stack()
}

// DeleteAttr deletes attribute name of the top slot. Deleting a
// field-backed attribute clears the field; it raises AttributeError when
// the field is already clear.
func (l *Lowerer) DeleteAttr(name string) Stack {
	if !l.begin("DeleteAttr", 1) {
		return l.Stack()
	}
	defer l.end()

	if f, ok := l.field(0, name); ok {
		missing, done := l.newLabel(), l.newLabel()
		l.checkcast(f.Host.Owner)
		l.emit(host.OpDUP)
		l.getField(f.Host)
		l.branch(host.OpIFNULL, missing)
		l.emit(host.OpACONSTNULL)
		l.putField(f.Host)
		l.branch(host.OpGOTO, done)
		l.mark(missing)
		l.b.EmitString(name)
		l.invokeStatic(abi.NoAttribute)
		l.emit(host.OpATHROW)
		l.mark(done)
		l.pop(1)
		return l.Stack()
	}

	l.pushStr(name)
	l.push(catalog.Str)
	l.dunderCall("__delattr__", 2)
	l.emit(host.OpPOP)
	l.pop(1)
	return l.Stack()
}
