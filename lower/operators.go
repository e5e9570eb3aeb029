package lower

import (
	"fmt"

	"github.com/chazu/pylower/abi"
	"github.com/chazu/pylower/catalog"
	"github.com/chazu/pylower/host"
)

// Operator is a binary operator or comparison.
type Operator uint8

const (
	Add Operator = iota
	Sub
	Mul
	TrueDiv
	FloorDiv
	Mod
	Pow
	MatMul
	LShift
	RShift
	And
	Or
	Xor

	InplaceAdd
	InplaceSub
	InplaceMul
	InplaceTrueDiv
	InplaceFloorDiv
	InplaceMod
	InplacePow
	InplaceMatMul
	InplaceLShift
	InplaceRShift
	InplaceAnd
	InplaceOr
	InplaceXor

	LT
	LE
	EQ
	NE
	GT
	GE

	GetItem

	numOperators
)

type operatorInfo struct {
	name     string
	dunder   string
	right    string // reflected dunder, tried on the right operand
	symbol   string
	fallback Operator
	// hasFallback marks operators that retry as fallback when the left
	// dunder is missing or returns NotImplemented.
	hasFallback bool
}

var operators [numOperators]operatorInfo

func init() {
	arith := []struct {
		op, inplace Operator
		name, base  string
		symbol      string
	}{
		{Add, InplaceAdd, "Add", "add", "+"},
		{Sub, InplaceSub, "Sub", "sub", "-"},
		{Mul, InplaceMul, "Mul", "mul", "*"},
		{TrueDiv, InplaceTrueDiv, "TrueDiv", "truediv", "/"},
		{FloorDiv, InplaceFloorDiv, "FloorDiv", "floordiv", "//"},
		{Mod, InplaceMod, "Mod", "mod", "%"},
		{Pow, InplacePow, "Pow", "pow", "**"},
		{MatMul, InplaceMatMul, "MatMul", "matmul", "@"},
		{LShift, InplaceLShift, "LShift", "lshift", "<<"},
		{RShift, InplaceRShift, "RShift", "rshift", ">>"},
		{And, InplaceAnd, "And", "and", "&"},
		{Or, InplaceOr, "Or", "or", "|"},
		{Xor, InplaceXor, "Xor", "xor", "^"},
	}
	for _, a := range arith {
		operators[a.op] = operatorInfo{
			name:   a.name,
			dunder: "__" + a.base + "__",
			right:  "__r" + a.base + "__",
			symbol: a.symbol,
		}
		operators[a.inplace] = operatorInfo{
			name:        "Inplace" + a.name,
			dunder:      "__i" + a.base + "__",
			symbol:      a.symbol + "=",
			fallback:    a.op,
			hasFallback: true,
		}
	}
	operators[LT] = operatorInfo{name: "LT", dunder: "__lt__", right: "__gt__", symbol: "<"}
	operators[LE] = operatorInfo{name: "LE", dunder: "__le__", right: "__ge__", symbol: "<="}
	operators[EQ] = operatorInfo{name: "EQ", dunder: "__eq__", right: "__eq__", symbol: "=="}
	operators[NE] = operatorInfo{name: "NE", dunder: "__ne__", right: "__ne__", symbol: "!="}
	operators[GT] = operatorInfo{name: "GT", dunder: "__gt__", right: "__lt__", symbol: ">"}
	operators[GE] = operatorInfo{name: "GE", dunder: "__ge__", right: "__le__", symbol: ">="}
	operators[GetItem] = operatorInfo{name: "GetItem", dunder: "__getitem__", symbol: "[]"}
}

func (op Operator) info() operatorInfo {
	return operators[op]
}

func (op Operator) String() string {
	if op < numOperators {
		return op.info().name
	}
	return fmt.Sprintf("Operator(%d)", op)
}

// Dunder returns the method name tried on the left operand.
func (op Operator) Dunder() string {
	return op.info().dunder
}

// Reflected returns the method name tried on the right operand, or "".
func (op Operator) Reflected() string {
	return op.info().right
}

// Symbol returns the operator as spelled in source.
func (op Operator) Symbol() string {
	return op.info().symbol
}

// UnaryOperator is a single-operand operator.
type UnaryOperator uint8

const (
	Negative UnaryOperator = iota
	Positive
	Invert
)

var unaryDunders = [...]string{"__neg__", "__pos__", "__invert__"}

// Dunder returns the method implementing the operator.
func (op UnaryOperator) Dunder() string {
	return unaryDunders[op]
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// UnaryOp applies a unary operator to the top slot.
func (l *Lowerer) UnaryOp(op UnaryOperator) Stack {
	if !l.begin("UnaryOp", 1) {
		return l.Stack()
	}
	defer l.end()
	if int(op) >= len(unaryDunders) {
		l.fail(ErrUnsupported, "unary operator %d", op)
		return l.Stack()
	}
	l.unary(op.Dunder())
	return l.Stack()
}

// BinaryOp applies a binary operator or comparison to the top two slots,
// left operand below right.
func (l *Lowerer) BinaryOp(op Operator) Stack {
	if !l.begin("BinaryOp", 2) {
		return l.Stack()
	}
	defer l.end()
	if op >= numOperators {
		l.fail(ErrUnsupported, "binary operator %d", op)
		return l.Stack()
	}
	l.binary(op)
	return l.Stack()
}

// Ternary calls a three-operand dunder such as __setitem__ on the slot at
// depth 2 with the two slots above it.
func (l *Lowerer) Ternary(dunder string) Stack {
	if !l.begin("Ternary", 3) {
		return l.Stack()
	}
	defer l.end()
	l.protocolCall(dunder, 3)
	return l.Stack()
}

// Is compares the top two slots by identity.
func (l *Lowerer) Is(negate bool) Stack {
	if !l.begin("Is", 2) {
		return l.Stack()
	}
	defer l.end()
	same, done := l.newLabel(), l.newLabel()
	l.branch(host.OpIFACMPEQ, same)
	l.getStatic(boolField(negate))
	l.branch(host.OpGOTO, done)
	l.mark(same)
	l.getStatic(boolField(!negate))
	l.mark(done)
	l.pop(2)
	l.push(catalog.Bool)
	return l.Stack()
}

// Contains tests membership of the item (below) in the container (top).
func (l *Lowerer) Contains(negate bool) Stack {
	if !l.begin("Contains", 2) {
		return l.Stack()
	}
	defer l.end()
	l.swap()
	c, item := l.peek(1), l.peek(0)
	if sig, ok := l.direct(c.typ(), "__contains__", item.typ()); ok {
		l.castUnder(sig.Owner.Host)
		l.checkcast(hostOf(sig.Params[0].Type))
		l.b.EmitInvoke(sig.Opcode(), sig.Method)
		l.pop(2)
		l.push(sig.Return)
	} else {
		l.dunderCall("__contains__", 2)
	}
	l.toBool()
	if negate {
		l.negateBool()
	}
	return l.Stack()
}

// Not replaces the top slot with the negation of its truth value.
func (l *Lowerer) Not() Stack {
	if !l.begin("Not", 1) {
		return l.Stack()
	}
	defer l.end()
	l.toBool()
	l.negateBool()
	return l.Stack()
}

func boolField(v bool) host.FieldRef {
	if v {
		return abi.True
	}
	return abi.False
}

// ---------------------------------------------------------------------------
// Unary and n-ary dunder calls
// ---------------------------------------------------------------------------

// direct finds a virtual method of t taking exactly the given arguments.
func (l *Lowerer) direct(t *catalog.Type, name string, args ...*catalog.Type) (*catalog.Signature, bool) {
	sig, ok := l.cat.Lookup(t, name)
	if !ok || sig.Kind != catalog.Virtual || sig.HostArity() != len(args) || !sig.Accepts(args...) {
		return nil, false
	}
	return sig, true
}

// unary calls a zero-argument dunder on the top slot.
func (l *Lowerer) unary(dunder string) {
	x := l.peek(0).typ()
	if sig, ok := l.direct(x, dunder); ok {
		log.Debug("direct call", "type", x.Name, "dunder", dunder)
		l.checkcast(sig.Owner.Host)
		l.b.EmitInvoke(sig.Opcode(), sig.Method)
		l.pop(1)
		l.push(sig.Return)
		return
	}
	l.rawUnary(dunder)
	l.pop(1)
	l.push(catalog.Object)
}

// rawUnary emits the dynamic call of a zero-argument dunder on the top of
// the host stack without touching the stack model: [x] -> [result].
func (l *Lowerer) rawUnary(dunder string) {
	l.emit(host.OpDUP)
	l.invoke(abi.GetType)
	l.b.EmitString(dunder)
	l.invoke(abi.GetDunderOrError)
	l.emit(host.OpSWAP)
	l.rawArgList(1)
	l.rawCall(false)
}

// dunderCall calls a dunder on the slot at depth argc-1 with the argc-1
// slots above it as arguments, through the dynamic protocol. A missing
// dunder raises AttributeError naming the receiver's type.
func (l *Lowerer) dunderCall(dunder string, argc int) {
	l.duplicateToTop(argc - 1)
	l.invoke(abi.GetType)
	l.b.EmitString(dunder)
	l.invoke(abi.GetDunderOrError)
	l.callDunder(argc)
}

// protocolCall is dunderCall for container protocols: a missing dunder
// raises TypeError naming the receiver's type.
func (l *Lowerer) protocolCall(dunder string, argc int) {
	l.duplicateToTop(argc - 1)
	found := l.newLabel()
	l.emit(host.OpDUP)
	l.invoke(abi.GetType)
	l.b.EmitString(dunder)
	l.invoke(abi.GetAttributeOrNull)
	l.emit(host.OpDUP)
	l.branch(host.OpIFNONNULL, found)
	l.emit(host.OpPOP)
	l.b.EmitString(dunder)
	l.invokeStatic(abi.NotSupported)
	l.emit(host.OpATHROW)
	l.mark(found)
	l.emit(host.OpSWAP, host.OpPOP)
	l.callDunder(argc)
}

// callDunder finishes a dynamic dunder call once the looked-up function
// replaces the duplicated receiver on top.
func (l *Lowerer) callDunder(argc int) {
	l.stack[len(l.stack)-1] = Of(catalog.Object)
	l.shiftTopDownTo(argc)
	l.buildCollection(abi.ListClass, catalog.List, argc)
	l.rawCall(false)
	l.pop(2)
	l.push(catalog.Object)
}

// rawArgList collects the top n host values into a new list, keeping their
// order: [v1 ... vn] -> [list].
func (l *Lowerer) rawArgList(n int) {
	l.newCollection(abi.ListClass, n)
	for i := 0; i < n; i++ {
		l.reverseAdd(abi.ListClass)
	}
}

// rawCall invokes the uniform call protocol on [fn args] with no keywords.
func (l *Lowerer) rawCall(withCaller bool) {
	l.emit(host.OpSWAP)
	l.checkcast(abi.FunctionClass)
	l.emit(host.OpSWAP)
	l.emit(host.OpACONSTNULL)
	if withCaller {
		l.callerInstance()
	} else {
		l.emit(host.OpACONSTNULL)
	}
	l.invoke(abi.Call)
}

// castUnder narrows the slot below the top of stack.
func (l *Lowerer) castUnder(class string) {
	if class == abi.ObjectClass {
		return
	}
	l.emit(host.OpSWAP)
	l.checkcast(class)
	l.emit(host.OpSWAP)
}

// toBool coerces the top slot to a runtime bool.
func (l *Lowerer) toBool() {
	if l.peek(0).typ().IsSubtypeOf(catalog.Bool) {
		return
	}
	l.unary("__bool__")
	l.stack[len(l.stack)-1].Type = catalog.Bool
}

// negateBool inverts the runtime bool on top.
func (l *Lowerer) negateBool() {
	isTrue, done := l.newLabel(), l.newLabel()
	l.getStatic(abi.True)
	l.branch(host.OpIFACMPEQ, isTrue)
	l.getStatic(abi.True)
	l.branch(host.OpGOTO, done)
	l.mark(isTrue)
	l.getStatic(abi.False)
	l.mark(done)
	l.pop(1)
	l.push(catalog.Bool)
}

// ---------------------------------------------------------------------------
// Binary dispatch
// ---------------------------------------------------------------------------

// binary lowers op on [l r]. The helpers below emit code without touching
// the stack model and report the static type of the result.
func (l *Lowerer) binary(op Operator) {
	var result *catalog.Type
	info := op.info()
	if op == EQ || op == NE {
		left := l.peek(1).typ()
		if d := left.DefiningType(info.dunder); d == nil || d == catalog.Object {
			l.equalityOrder(info.dunder)
			result = l.genericBinary(op, info.symbol)
			l.pop(2)
			l.push(result)
			return
		}
	}
	result = l.binarySide(op, info.symbol, false, false, false)
	l.pop(2)
	l.push(result)
}

// equalityOrder swaps the operands at run time when the left operand's
// type inherits the universal comparison, so an override on the right
// operand is tried first.
func (l *Lowerer) equalityOrder(dunder string) {
	keep := l.newLabel()
	l.emit(host.OpSWAP, host.OpDUPX1) // [l r] -> [l r l]
	l.invoke(abi.GetType)
	l.b.EmitString(dunder)
	l.invoke(abi.GetDefiningTypeOrNull)
	l.getStatic(abi.TypeObject(abi.ObjectClass))
	l.branch(host.OpIFACMPNE, keep)
	l.emit(host.OpSWAP)
	l.mark(keep)
}

// binarySide tries one operand's cataloged method. rightSide selects the
// reflected method of the right operand; leftTried records that the left
// operand already answered NotImplemented at run time; forced selects the
// operator's fallback.
func (l *Lowerer) binarySide(op Operator, symbol string, rightSide, leftTried, forced bool) *catalog.Type {
	info := op.info()
	actual := op
	if info.hasFallback && (forced || rightSide) {
		actual = info.fallback
	}
	ainfo := actual.info()

	left, right := l.peek(1).typ(), l.peek(0).typ()
	recv, other, name := left, right, ainfo.dunder
	if rightSide {
		recv, other, name = right, left, ainfo.right
	}
	var sig *catalog.Signature
	ok := false
	if name != "" {
		sig, ok = l.direct(recv, name, other)
	}
	if !ok && !rightSide && !forced && info.hasFallback && left != catalog.Object {
		return l.binarySide(op, symbol, false, false, true)
	}
	if ok {
		log.Debug("direct call", "type", recv.Name, "dunder", name, "other", other.Name)
		return l.directBinary(op, actual, symbol, sig, rightSide, forced)
	}

	switch {
	case !rightSide && left != catalog.Object && ainfo.right != "":
		// The catalog describes the left type and it lacks the method.
		return l.binarySide(op, symbol, true, false, forced)
	case rightSide && leftTried:
		return l.genericRight(actual, symbol)
	case forced:
		return l.genericBinary(actual, symbol)
	}
	return l.genericBinary(op, symbol)
}

// directBinary calls sig on [l r]. A result of NotImplemented moves on to
// the next candidate.
func (l *Lowerer) directBinary(op, actual Operator, symbol string, sig *catalog.Signature, rightSide, forced bool) *catalog.Type {
	recvHost, argHost := sig.Owner.Host, hostOf(sig.Params[0].Type)
	leftHost, rightHost := recvHost, argHost
	if rightSide {
		leftHost, rightHost = argHost, recvHost
	}
	l.castUnder(leftHost)
	l.checkcast(rightHost)

	check := sig.MayReturnNotImplemented
	if check {
		l.emit(host.OpDUP2)
	}
	if rightSide {
		l.emit(host.OpSWAP)
	}
	l.b.EmitInvoke(sig.Opcode(), sig.Method)
	if !check {
		return sig.Return
	}

	ifNI, done := l.newLabel(), l.newLabel()
	l.emit(host.OpDUP)
	l.getStatic(abi.NotImplemented)
	l.branch(host.OpIFACMPEQ, ifNI)
	l.emit(host.OpDUPX2, host.OpPOP, host.OpPOP2)
	l.branch(host.OpGOTO, done)

	l.mark(ifNI)
	l.emit(host.OpPOP)
	switch {
	case rightSide:
		l.exhausted(op, symbol)
	case !forced && op.info().hasFallback:
		l.binarySide(op, symbol, false, false, true)
	case actual.info().right != "":
		l.binarySide(op, symbol, true, true, forced)
	default:
		l.exhausted(op, symbol)
	}
	l.mark(done)
	return catalog.Object
}

// genericBinary emits the full dynamic protocol for op on [l r]: the left
// dunder, then the fallback operator or the reflected dunder, then the
// exhaustion result.
func (l *Lowerer) genericBinary(op Operator, symbol string) *catalog.Type {
	info := op.info()
	noLeft, ifNI, done := l.newLabel(), l.newLabel(), l.newLabel()

	l.emit(host.OpDUP2, host.OpSWAP) // [l r r l]
	l.emit(host.OpDUP)
	l.invoke(abi.GetType)
	l.b.EmitString(info.dunder)
	l.invoke(abi.GetAttributeOrNull) // [l r r l fn]
	l.emit(host.OpDUP)
	l.branch(host.OpIFNULL, noLeft)
	l.emit(host.OpDUPX2, host.OpPOP, host.OpSWAP) // [l r fn l r]
	l.rawArgList(2)
	l.rawCall(false) // [l r result]
	l.emit(host.OpDUP)
	l.getStatic(abi.NotImplemented)
	l.branch(host.OpIFACMPEQ, ifNI)
	l.emit(host.OpDUPX2, host.OpPOP, host.OpPOP2)
	l.branch(host.OpGOTO, done)

	l.mark(noLeft)
	l.emit(host.OpPOP2) // [l r r]
	l.mark(ifNI)
	l.emit(host.OpPOP) // [l r]

	if info.hasFallback {
		l.genericBinary(info.fallback, symbol)
	} else {
		l.genericRight(op, symbol)
	}
	l.mark(done)
	return catalog.Object
}

// genericRight emits the dynamic call of the reflected dunder on [l r].
func (l *Lowerer) genericRight(op Operator, symbol string) *catalog.Type {
	info := op.info()
	if info.right == "" {
		return l.exhausted(op, symbol)
	}
	noRight, ifNI, done := l.newLabel(), l.newLabel(), l.newLabel()

	l.emit(host.OpDUP2, host.OpDUP) // [l r l r r]
	l.invoke(abi.GetType)
	l.b.EmitString(info.right)
	l.invoke(abi.GetAttributeOrNull) // [l r l r fn]
	l.emit(host.OpDUP)
	l.branch(host.OpIFNULL, noRight)
	l.emit(host.OpDUPX2, host.OpPOP, host.OpSWAP) // [l r fn r l]
	l.rawArgList(2)
	l.rawCall(false)
	l.emit(host.OpDUP)
	l.getStatic(abi.NotImplemented)
	l.branch(host.OpIFACMPEQ, ifNI)
	l.emit(host.OpDUPX2, host.OpPOP, host.OpPOP2)
	l.branch(host.OpGOTO, done)

	l.mark(noRight)
	l.emit(host.OpPOP2) // [l r l]
	l.mark(ifNI)
	l.emit(host.OpPOP) // [l r]
	l.exhausted(op, symbol)
	l.mark(done)
	return catalog.Object
}

// exhausted handles [l r] once every candidate declined: comparisons for
// equality fall back to identity, everything else raises.
func (l *Lowerer) exhausted(op Operator, symbol string) *catalog.Type {
	if op == EQ || op == NE {
		same, done := l.newLabel(), l.newLabel()
		l.branch(host.OpIFACMPEQ, same)
		l.getStatic(boolField(op == NE))
		l.branch(host.OpGOTO, done)
		l.mark(same)
		l.getStatic(boolField(op == EQ))
		l.mark(done)
		return catalog.Bool
	}
	l.b.EmitString(symbol)
	l.emit(host.OpDUPX2, host.OpPOP)
	l.invokeStatic(abi.UnsupportedOperands)
	l.emit(host.OpATHROW)
	return catalog.Object
}
