package lower

import (
	"github.com/chazu/pylower/abi"
	"github.com/chazu/pylower/catalog"
	"github.com/chazu/pylower/host"
)

// receiver says where a direct call finds its receiver.
type receiver uint8

const (
	recvObject receiver = iota // the slot under the arguments
	recvBound                  // the instance inside the bound method under the arguments
	recvFirstArg               // the first positional argument; the callable is dropped
)

// Call calls the slot under argc positional arguments and len(kwNames)
// keyword values. kwNames name the keyword values in stack order.
func (l *Lowerer) Call(argc int, kwNames []string) Stack {
	n := argc + len(kwNames)
	if !l.begin("Call", n+1) {
		return l.Stack()
	}
	defer l.end()
	if argc < 0 {
		l.fail(ErrArgumentCount, "negative argument count %d", argc)
		return l.Stack()
	}

	fnType := l.peek(n).typ()
	if sig, bound := fnType.CallSignature(); sig != nil {
		mode := recvFirstArg
		if bound {
			mode = recvBound
		}
		if sig.Kind == catalog.Static {
			mode = recvFirstArg
		}
		l.directCall(sig, mode, argc, kwNames)
		return l.Stack()
	}
	l.genericCall(argc, kwNames)
	return l.Stack()
}

// CallMethod looks up name on the slot under the arguments and calls it.
func (l *Lowerer) CallMethod(name string, argc int, kwNames []string) Stack {
	n := argc + len(kwNames)
	if !l.begin("CallMethod", n+1) {
		return l.Stack()
	}
	defer l.end()
	if argc < 0 {
		l.fail(ErrArgumentCount, "negative argument count %d", argc)
		return l.Stack()
	}

	recvType := l.peek(n).typ()
	if sig, ok := l.cat.Lookup(recvType, name); ok {
		mode := recvObject
		if sig.Kind == catalog.Static {
			mode = recvFirstArg
		}
		l.directCall(sig, mode, argc, kwNames)
		return l.Stack()
	}

	args := l.spill(n)
	l.b.EmitString(name)
	l.invoke(abi.GetAttributeOrError)
	l.stack[len(l.stack)-1] = Of(catalog.Object)
	l.reload(args)
	l.genericCall(argc, kwNames)
	l.release(args)
	return l.Stack()
}

// CallFunctionEx calls the slot under an iterable of positional arguments
// and, when hasKwargs, a dict of keyword arguments.
func (l *Lowerer) CallFunctionEx(hasKwargs bool) Stack {
	need := 2
	if hasKwargs {
		need = 3
	}
	if !l.begin("CallFunctionEx", need) {
		return l.Stack()
	}
	defer l.end()

	kw := -1
	if hasKwargs {
		kw = l.allocRef()
		l.store(kw, host.KindRef)
		l.pop(1)
	}
	l.newCollection(abi.ListClass, 0)
	l.emit(host.OpDUPX1, host.OpSWAP)
	l.invoke(abi.ListExtend)
	l.pop(1)
	l.push(catalog.List)

	l.castUnder(abi.FunctionClass)
	if kw >= 0 {
		l.load(kw, host.KindRef)
		l.checkcast(abi.DictClass)
		l.pool.Free(kw)
	} else {
		l.emit(host.OpACONSTNULL)
	}
	l.callerInstance()
	l.invoke(abi.Call)
	l.pop(2)
	l.push(catalog.Object)
	return l.Stack()
}

// genericCall calls [fn args kwvalues] through the uniform protocol.
func (l *Lowerer) genericCall(argc int, kwNames []string) {
	dict := -1
	if len(kwNames) > 0 {
		l.newCollection(abi.DictClass, len(kwNames))
		dict = l.allocRef()
		l.store(dict, host.KindRef)
		for i := len(kwNames) - 1; i >= 0; i-- {
			l.load(dict, host.KindRef)
			l.emit(host.OpSWAP)
			l.pushStr(kwNames[i])
			l.emit(host.OpSWAP)
			l.invoke(abi.DictPut)
			l.pop(1)
		}
	}
	l.buildCollection(abi.ListClass, catalog.List, argc)
	l.castUnder(abi.FunctionClass)
	if dict >= 0 {
		l.load(dict, host.KindRef)
		l.pool.Free(dict)
	} else {
		l.emit(host.OpACONSTNULL)
	}
	l.callerInstance()
	l.invoke(abi.Call)
	l.pop(2)
	l.push(catalog.Object)
}

// ---------------------------------------------------------------------------
// Direct calls
// ---------------------------------------------------------------------------

// hostArg is where one host argument of a direct call comes from.
type hostArg struct {
	param    *catalog.Param
	from     *temp
	def      *host.FieldRef
	varArgs  []temp
	varKw    []temp
	kwNames  []string
	isVarArg bool
	isVarKw  bool
}

// bind matches call-site arguments to the parameters of sig. It reports
// a translation error and returns nil when they cannot be matched.
func (l *Lowerer) bind(sig *catalog.Signature, positional []temp, kwNames []string, kwValues []temp) []hostArg {
	bound := make([]*temp, len(sig.Params))
	var surplus []temp
	for i := range positional {
		if i < len(sig.Params) {
			bound[i] = &positional[i]
			continue
		}
		if sig.VarArgs < 0 {
			l.fail(ErrArgumentCount, "%s", abi.TooManyPositionalMessage(sig.Name, len(sig.Params), len(positional)))
			return nil
		}
		surplus = append(surplus, positional[i])
	}

	var extraNames []string
	var extraValues []temp
	for i, name := range kwNames {
		idx := sig.ParamIndex(name)
		switch {
		case idx >= 0 && bound[idx] != nil:
			l.fail(ErrKeyword, "%s", abi.MultipleValuesMessage(sig.Name, name))
			return nil
		case idx >= 0:
			bound[idx] = &kwValues[i]
		case sig.VarKwargs >= 0:
			extraNames = append(extraNames, name)
			extraValues = append(extraValues, kwValues[i])
		default:
			l.fail(ErrKeyword, "%s", abi.UnexpectedKeywordMessage(sig.Name, name))
			return nil
		}
	}

	args := make([]hostArg, sig.HostArity())
	for h := range args {
		switch h {
		case sig.VarArgs:
			args[h] = hostArg{isVarArg: true, varArgs: surplus}
			continue
		case sig.VarKwargs:
			args[h] = hostArg{isVarKw: true, varKw: extraValues, kwNames: extraNames}
			continue
		}
		i := sig.NamedIndex(h)
		p := &sig.Params[i]
		switch {
		case bound[i] != nil:
			args[h] = hostArg{param: p, from: bound[i]}
		case p.Default != nil:
			args[h] = hostArg{param: p, def: p.Default}
		case p.Nullable:
			args[h] = hostArg{param: p}
		default:
			l.fail(ErrArgumentCount, "%s", abi.MissingArgumentMessage(sig.Name, p.Name))
			return nil
		}
	}
	return args
}

// directCall calls sig on [callable-or-receiver args kwvalues].
func (l *Lowerer) directCall(sig *catalog.Signature, mode receiver, argc int, kwNames []string) {
	n := argc + len(kwNames)
	callee := l.peek(n).typ()

	ts := l.spill(n) // top first
	inOrder := make([]temp, n)
	for i := range ts {
		inOrder[n-1-i] = ts[i]
	}
	positional, kwValues := inOrder[:argc], inOrder[argc:]

	needsReceiver := sig.Kind != catalog.Static
	if mode == recvFirstArg && needsReceiver {
		if argc == 0 {
			l.fail(ErrArgumentCount, "%s() needs a receiver argument", sig.Name)
			l.release(ts)
			return
		}
		positional = positional[1:]
	}
	args := l.bind(sig, positional, kwNames, kwValues)
	if args == nil {
		l.release(ts)
		return
	}
	log.Debug("direct call", "callee", callee.Name, "method", sig.Method.Key())

	switch mode {
	case recvObject:
		if !needsReceiver {
			l.emit(host.OpPOP)
		}
	case recvBound:
		l.checkcast(abi.BoundFunctionClass)
		l.invoke(abi.BoundFunctionInstance)
	case recvFirstArg:
		l.emit(host.OpPOP)
		if needsReceiver {
			first := inOrder[0]
			l.load(first.idx, first.slot.Kind())
		}
	}
	switch sig.Kind {
	case catalog.Virtual:
		l.checkcast(sig.Owner.Host)
	case catalog.ClassMethod:
		l.coerceToType()
	}

	for _, a := range args {
		l.loadArg(a)
	}
	l.b.EmitInvoke(sig.Opcode(), sig.Method)
	l.release(ts)
	l.pop(1)
	l.push(sig.Return)
}

// loadArg pushes one host argument of a direct call.
func (l *Lowerer) loadArg(a hostArg) {
	switch {
	case a.isVarArg:
		l.newCollection(abi.TupleClass, len(a.varArgs))
		for i := len(a.varArgs) - 1; i >= 0; i-- {
			l.emit(host.OpDUP)
			l.load(a.varArgs[i].idx, a.varArgs[i].slot.Kind())
			l.invoke(abi.ReverseAdd(abi.TupleClass))
		}
	case a.isVarKw:
		l.newCollection(abi.DictClass, len(a.varKw))
		for i, v := range a.varKw {
			l.emit(host.OpDUP)
			l.pushStr(a.kwNames[i])
			l.load(v.idx, v.slot.Kind())
			l.invoke(abi.DictPut)
		}
	case a.from != nil:
		l.load(a.from.idx, a.from.slot.Kind())
		l.checkcast(hostOf(a.param.Type))
	case a.def != nil:
		l.getStatic(*a.def)
	default:
		l.emit(host.OpACONSTNULL)
	}
}

// coerceToType replaces an instance on top with its type; types are left
// alone.
func (l *Lowerer) coerceToType() {
	isType := l.newLabel()
	l.emit(host.OpDUP)
	l.b.EmitClass(host.OpINSTANCEOF, abi.TypeClass)
	l.branch(host.OpIFNE, isType)
	l.invoke(abi.GetType)
	l.mark(isType)
	l.b.EmitClass(host.OpCHECKCAST, abi.TypeClass)
}
