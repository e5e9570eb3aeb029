package lower

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/chazu/pylower/abi"
	"github.com/chazu/pylower/catalog"
	"github.com/chazu/pylower/host"
	"github.com/chazu/pylower/sim"
)

// run executes m on rt and fails the test on a fault.
func run(t *testing.T, rt *sim.Runtime, m *host.Method, args ...any) (any, error) {
	t.Helper()
	v, err := rt.Run(m, args)
	var fault *sim.Fault
	if errors.As(err, &fault) {
		t.Fatalf("fault: %v\n%s", fault, m.Disassemble())
	}
	return v, err
}

// raised returns the exception an error carries.
func raised(t *testing.T, err error) *sim.Instance {
	t.Helper()
	var r *sim.Raised
	if !errors.As(err, &r) {
		t.Fatalf("error = %v, want a raised exception", err)
	}
	return r.Exc
}

// show renders a runtime value for comparisons.
func show(v any) string {
	switch o := v.(type) {
	case nil:
		return "null"
	case *sim.Int:
		return fmt.Sprint(o.V)
	case *sim.Str:
		return fmt.Sprintf("%q", o.V)
	case *sim.Seq:
		parts := make([]string, len(o.Items))
		for i, item := range o.Items {
			parts[i] = show(item)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case *sim.Dict:
		parts := make([]string, len(o.Keys))
		for i, k := range o.Keys {
			parts[i] = show(k) + ": " + show(o.Vals[i])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *sim.Singleton:
		return "None"
	}
	return fmt.Sprintf("<%T>", v)
}

// binaryUnit lowers `return a <op> b` over two dynamic arguments.
func binaryUnit(t *testing.T, op Operator) *host.Method {
	t.Helper()
	u := newUnit(t, verified, Func{ArgCount: 2, Locals: dynamicLocals(2)})
	u.at(0).LoadFast(0)
	u.at(1).LoadFast(1)
	u.at(2).BinaryOp(op)
	u.at(3).ReturnValue()
	return u.finish()
}

// userClass defines a class deriving from object with the given methods.
func userClass(rt *sim.Runtime, name string, methods ...*sim.Function) *sim.Class {
	c := rt.DefineClass(name, "user/"+name, rt.Object)
	for _, m := range methods {
		c.Def(m)
	}
	return c
}

func method(name string, params []string, body func(args []any) (any, error)) *sim.Function {
	return &sim.Function{Name: name, Params: params, Body: body}
}

func instance(t *testing.T, rt *sim.Runtime, c *sim.Class) any {
	t.Helper()
	v, err := rt.CallValue(c, nil, nil)
	if err != nil {
		t.Fatalf("instantiate %s: %v", c.Name, err)
	}
	return v
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func TestDynamicArithmetic(t *testing.T) {
	tests := []struct {
		op   Operator
		a, b int64
		want string
	}{
		{Add, 2, 3, "5"},
		{Sub, 2, 3, "-1"},
		{Mul, 6, 7, "42"},
		{FloorDiv, -7, 2, "-4"},
		{InplaceAdd, 40, 2, "42"},
		{InplaceSub, 1, 1, "0"},
	}
	for _, tt := range tests {
		rt := sim.New()
		m := binaryUnit(t, tt.op)
		v, err := run(t, rt, m, rt.NewInt(tt.a), rt.NewInt(tt.b))
		if err != nil {
			t.Errorf("%v(%d, %d): %v", tt.op, tt.a, tt.b, err)
			continue
		}
		if got := show(v); got != tt.want {
			t.Errorf("%v(%d, %d) = %s, want %s", tt.op, tt.a, tt.b, got, tt.want)
		}
	}
}

func TestComparisons(t *testing.T) {
	tests := []struct {
		op   Operator
		a, b int64
		want bool
	}{
		{LT, 1, 2, true},
		{LT, 2, 1, false},
		{LE, 2, 2, true},
		{GT, 3, 2, true},
		{GE, 1, 2, false},
		{EQ, 5, 5, true},
		{NE, 5, 5, false},
	}
	for _, tt := range tests {
		rt := sim.New()
		v, err := run(t, rt, binaryUnit(t, tt.op), rt.NewInt(tt.a), rt.NewInt(tt.b))
		if err != nil {
			t.Errorf("%v(%d, %d): %v", tt.op, tt.a, tt.b, err)
			continue
		}
		if v != any(rt.NewBool(tt.want)) {
			t.Errorf("%v(%d, %d) = %s, want %v", tt.op, tt.a, tt.b, show(v), tt.want)
		}
	}
}

func TestUnsupportedOperands(t *testing.T) {
	rt := sim.New()
	_, err := run(t, rt, binaryUnit(t, Add), rt.NewStr("a"), rt.NewInt(1))
	exc := raised(t, err)
	if exc.Class != rt.TypeError {
		t.Errorf("class = %v, want TypeError", exc.Class)
	}
	want := abi.UnsupportedOperandsMessage("+", "str", "int")
	if got := sim.Message(exc); got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
}

func TestReflectedAfterNotImplemented(t *testing.T) {
	rt := sim.New()
	var calls []string
	a := userClass(rt, "A", method("__add__", []string{"self", "other"}, func(args []any) (any, error) {
		calls = append(calls, "A.__add__")
		return rt.NotImplemented, nil
	}))
	b := userClass(rt, "B", method("__radd__", []string{"self", "other"}, func(args []any) (any, error) {
		calls = append(calls, "B.__radd__")
		return rt.NewStr("radd"), nil
	}))

	v, err := run(t, rt, binaryUnit(t, Add), instance(t, rt, a), instance(t, rt, b))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := show(v); got != `"radd"` {
		t.Errorf("result = %s, want \"radd\"", got)
	}
	if got := strings.Join(calls, " "); got != "A.__add__ B.__radd__" {
		t.Errorf("calls = %s, want A.__add__ B.__radd__", got)
	}
}

func TestInplaceFallsBackToBinary(t *testing.T) {
	rt := sim.New()
	a := userClass(rt, "A", method("__add__", []string{"self", "other"}, func(args []any) (any, error) {
		return rt.NewStr("add"), nil
	}))
	v, err := run(t, rt, binaryUnit(t, InplaceAdd), instance(t, rt, a), rt.NewInt(1))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := show(v); got != `"add"` {
		t.Errorf("result = %s, want \"add\"", got)
	}

	iadd := userClass(rt, "C", method("__iadd__", []string{"self", "other"}, func(args []any) (any, error) {
		return rt.NewStr("iadd"), nil
	}))
	v, err = run(t, rt, binaryUnit(t, InplaceAdd), instance(t, rt, iadd), rt.NewInt(1))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := show(v); got != `"iadd"` {
		t.Errorf("result = %s, want \"iadd\"", got)
	}
}

func TestEqualityPrefersOverride(t *testing.T) {
	rt := sim.New()
	plain := userClass(rt, "Plain")
	var calls []string
	custom := userClass(rt, "Custom", method("__eq__", []string{"self", "other"}, func(args []any) (any, error) {
		calls = append(calls, "Custom.__eq__")
		return rt.NewStr("custom"), nil
	}))

	v, err := run(t, rt, binaryUnit(t, EQ), instance(t, rt, plain), instance(t, rt, custom))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := show(v); got != `"custom"` {
		t.Errorf("plain == custom = %s, want \"custom\"", got)
	}
	if len(calls) != 1 {
		t.Errorf("Custom.__eq__ called %d times, want 1", len(calls))
	}
}

func TestEqualityFallsBackToIdentity(t *testing.T) {
	rt := sim.New()
	plain := userClass(rt, "Plain")
	x, y := instance(t, rt, plain), instance(t, rt, plain)

	tests := []struct {
		op   Operator
		a, b any
		want bool
	}{
		{EQ, x, x, true},
		{EQ, x, y, false},
		{NE, x, y, true},
		{NE, x, x, false},
		{EQ, x, rt.NewInt(1), false},
	}
	for i, tt := range tests {
		v, err := run(t, rt, binaryUnit(t, tt.op), tt.a, tt.b)
		if err != nil {
			t.Errorf("%d: %v", i, err)
			continue
		}
		if v != any(rt.NewBool(tt.want)) {
			t.Errorf("%d: %v = %s, want %v", i, tt.op, show(v), tt.want)
		}
	}
}

func TestOrderingWithoutMethodsRaises(t *testing.T) {
	rt := sim.New()
	plain := userClass(rt, "Plain")
	_, err := run(t, rt, binaryUnit(t, LT), instance(t, rt, plain), rt.NewInt(1))
	exc := raised(t, err)
	want := abi.UnsupportedOperandsMessage("<", "Plain", "int")
	if got := sim.Message(exc); got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
}

func TestDirectArithmeticRuns(t *testing.T) {
	rt := sim.New()
	u := newUnit(t, typed, Func{ArgCount: 2, Locals: []*catalog.Type{catalog.Int, catalog.Int}})
	u.at(0).LoadFast(0)
	u.at(1).LoadFast(1)
	u.at(2).BinaryOp(Add)
	u.at(3).ReturnValue()
	v, err := run(t, rt, u.finish(), rt.NewInt(2), rt.NewInt(40000))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := show(v); got != "40002" {
		t.Errorf("result = %s, want 40002", got)
	}
}

func TestNotAndContains(t *testing.T) {
	rt := sim.New()
	u := newUnit(t, verified, Func{ArgCount: 2, Locals: dynamicLocals(2)})
	u.at(0).LoadFast(0)
	u.at(1).LoadFast(1)
	u.at(2).Contains(true)
	u.at(3).Not()
	u.at(4).ReturnValue()
	m := u.finish()

	list := rt.NewList(rt.NewInt(1), rt.NewInt(2))
	for _, tt := range []struct {
		item int64
		want bool
	}{{1, true}, {3, false}} {
		v, err := run(t, rt, m, rt.NewInt(tt.item), list)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if v != any(rt.NewBool(tt.want)) {
			t.Errorf("not (%d not in [1, 2]) = %s, want %v", tt.item, show(v), tt.want)
		}
	}
}

func TestMissingDunderNamesReceiverType(t *testing.T) {
	rt := sim.New()
	plain := userClass(rt, "Plain")
	tests := []struct {
		op     UnaryOperator
		dunder string
	}{
		{Negative, "__neg__"},
		{Positive, "__pos__"},
		{Invert, "__invert__"},
	}
	for _, tt := range tests {
		u := newUnit(t, verified, Func{ArgCount: 1, Locals: dynamicLocals(1)})
		u.at(0).LoadFast(0)
		u.at(1).UnaryOp(tt.op)
		u.at(2).ReturnValue()
		_, err := run(t, rt, u.finish(), instance(t, rt, plain))
		exc := raised(t, err)
		if exc.Class != rt.AttributeError {
			t.Errorf("%s: class = %v, want AttributeError", tt.dunder, exc.Class)
		}
		if want := abi.NoAttributeMessage("Plain", tt.dunder); sim.Message(exc) != want {
			t.Errorf("%s: message = %q, want %q", tt.dunder, sim.Message(exc), want)
		}
	}
}

func TestContainerProtocolErrors(t *testing.T) {
	tests := []struct {
		name   string
		lower  func(u *unit)
		dunder string
	}{
		{"store subscript", func(u *unit) {
			u.at(0).LoadConst(1)
			u.at(1).LoadFast(0)
			u.at(2).LoadConst(0)
			u.at(3).StoreSubscr()
			u.at(4).LoadConst(nil)
			u.at(5).ReturnValue()
		}, "__setitem__"},
		{"delete subscript", func(u *unit) {
			u.at(0).LoadFast(0)
			u.at(1).LoadConst(0)
			u.at(2).DeleteSubscr()
			u.at(3).LoadConst(nil)
			u.at(4).ReturnValue()
		}, "__delitem__"},
		{"ternary", func(u *unit) {
			u.at(0).LoadFast(0)
			u.at(1).LoadConst(0)
			u.at(2).LoadConst(1)
			u.at(3).Ternary("__setitem__")
			u.at(4).ReturnValue()
		}, "__setitem__"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := sim.New()
			plain := userClass(rt, "Plain")
			u := newUnit(t, verified, Func{ArgCount: 1, Locals: dynamicLocals(1)})
			tt.lower(u)
			m := u.finish()

			_, err := run(t, rt, m, instance(t, rt, plain))
			exc := raised(t, err)
			if exc.Class != rt.TypeError {
				t.Errorf("class = %v, want TypeError", exc.Class)
			}
			if want := abi.NotSupportedMessage("Plain", tt.dunder); sim.Message(exc) != want {
				t.Errorf("message = %q, want %q", sim.Message(exc), want)
			}

			list := rt.NewList(rt.NewInt(5))
			if _, err := run(t, rt, m, list); err != nil {
				t.Errorf("on a list: %v", err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// TestCallBindingAgrees checks that a call bound at lowering time passes
// the same host arguments as the same call bound at run time.
func TestCallBindingAgrees(t *testing.T) {
	mod := catalog.NewType("mod", "user/Mod", catalog.Object)
	sig := mod.AddMethod(catalog.NewSignature("f", catalog.Static, catalog.Object,
		catalog.Param{Name: "x", Type: catalog.Object},
		catalog.Param{Name: "y", Type: catalog.Object, Nullable: true},
	).WithVarKwargs())

	tests := []struct {
		name string
		argc int
		kw   []string
		want string
	}{
		{"positional", 1, nil, `[1 null {}]`},
		{"both positional", 2, nil, `[1 2 {}]`},
		{"keyword", 1, []string{"y"}, `[1 2 {}]`},
		{"extra keyword", 1, []string{"z"}, `[1 null {"z": 2}]`},
		{"all keywords", 0, []string{"y", "x"}, `[2 1 {}]`},
	}
	for _, tt := range tests {
		for _, direct := range []bool{true, false} {
			rt := sim.New()
			class, err := rt.Define(mod)
			if err != nil {
				t.Fatalf("Define: %v", err)
			}
			var got string
			f := class.Def(&sim.Function{
				Name:     "f",
				Params:   []string{"x", "y"},
				Defaults: map[string]any{"y": nil},
				VarKw:    true,
				Static:   true,
				Body: func(args []any) (any, error) {
					parts := make([]string, len(args))
					for i, a := range args {
						parts[i] = show(a)
					}
					got = "[" + strings.Join(parts, " ") + "]"
					return rt.None, nil
				},
			})

			callee := catalog.Object
			if direct {
				callee = catalog.NewFunctionType(sig)
			}
			u := newUnit(t, verified, Func{ArgCount: 1, Locals: []*catalog.Type{callee}})
			u.at(0).LoadFast(0)
			off := 1
			for i := 0; i < tt.argc+len(tt.kw); i++ {
				u.at(off).LoadConst(i + 1)
				off++
			}
			u.at(off).Call(tt.argc, tt.kw)
			u.at(off + 1).ReturnValue()
			m := u.finish()

			if _, err := run(t, rt, m, f); err != nil {
				t.Errorf("%s direct=%v: %v", tt.name, direct, err)
				continue
			}
			if got != tt.want {
				t.Errorf("%s direct=%v: args = %s, want %s", tt.name, direct, got, tt.want)
			}
		}
	}
}

func TestCallMethodGeneric(t *testing.T) {
	rt := sim.New()
	greeter := userClass(rt, "Greeter", method("greet", []string{"self", "name"}, func(args []any) (any, error) {
		return rt.NewStr("hello " + args[1].(*sim.Str).V), nil
	}))

	u := newUnit(t, verified, Func{ArgCount: 1, Locals: dynamicLocals(1)})
	u.at(0).LoadFast(0)
	u.at(1).LoadConst("bob")
	u.at(2).CallMethod("greet", 0, []string{"name"})
	u.at(3).ReturnValue()
	v, err := run(t, rt, u.finish(), instance(t, rt, greeter))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := show(v); got != `"hello bob"` {
		t.Errorf("result = %s, want \"hello bob\"", got)
	}
}

func TestCallFunctionEx(t *testing.T) {
	rt := sim.New()
	f := &sim.Function{
		Name:   "f",
		Params: []string{"a", "b"},
		Body: func(args []any) (any, error) {
			return rt.NewTuple(args...), nil
		},
	}
	u := newUnit(t, verified, Func{ArgCount: 3, Locals: dynamicLocals(3)})
	u.at(0).LoadFast(0)
	u.at(1).LoadFast(1)
	u.at(2).LoadFast(2)
	u.at(3).CallFunctionEx(true)
	u.at(4).ReturnValue()
	kw := rt.NewDict()
	kw.Put(rt.NewStr("b"), rt.NewInt(2))
	v, err := run(t, rt, u.finish(), f, rt.NewTuple(rt.NewInt(1)), kw)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := show(v); got != "(1, 2)" {
		t.Errorf("result = %s, want (1, 2)", got)
	}
}

// ---------------------------------------------------------------------------
// Collections
// ---------------------------------------------------------------------------

func TestUnpackSequence(t *testing.T) {
	rt := sim.New()
	u := newUnit(t, verified, Func{ArgCount: 1, Locals: dynamicLocals(1)})
	u.at(0).LoadFast(0)
	u.at(1).UnpackSequence(2)
	u.at(2).BuildTuple(2)
	u.at(3).ReturnValue()
	m := u.finish()

	tests := []struct {
		in      *sim.Seq
		want    string
		wantErr string
	}{
		{rt.NewList(rt.NewInt(1), rt.NewInt(2)), "(2, 1)", ""},
		{rt.NewTuple(rt.NewInt(1)), "", abi.UnpackTooFewMessage(2, 1)},
		{rt.NewTuple(rt.NewInt(1), rt.NewInt(2), rt.NewInt(3)), "", abi.UnpackTooManyMessage(2)},
	}
	for _, tt := range tests {
		v, err := run(t, rt, m, tt.in)
		if tt.wantErr != "" {
			exc := raised(t, err)
			if exc.Class != rt.ValueError || sim.Message(exc) != tt.wantErr {
				t.Errorf("unpack %s raised %v %q, want ValueError %q", show(tt.in), exc.Class, sim.Message(exc), tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("unpack %s: %v", show(tt.in), err)
			continue
		}
		if got := show(v); got != tt.want {
			t.Errorf("unpack %s = %s, want %s", show(tt.in), got, tt.want)
		}
	}
}

func TestUnpackWithTail(t *testing.T) {
	rt := sim.New()
	u := newUnit(t, verified, Func{ArgCount: 1, Locals: dynamicLocals(1)})
	u.at(0).LoadFast(0)
	u.at(1).UnpackSequenceWithTail(1, 1)
	u.at(2).BuildTuple(3)
	u.at(3).ReturnValue()
	m := u.finish()

	ints := func(vs ...int64) *sim.Seq {
		items := make([]any, len(vs))
		for i, v := range vs {
			items[i] = rt.NewInt(v)
		}
		return rt.NewList(items...)
	}
	v, err := run(t, rt, m, ints(1, 2, 3, 4))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// first item on top, so the tuple reads last, middle, first
	if got := show(v); got != "(4, (2, 3), 1)" {
		t.Errorf("a, *b, c = [1, 2, 3, 4] gave %s, want (4, (2, 3), 1)", got)
	}

	_, err = run(t, rt, m, ints(1))
	exc := raised(t, err)
	if want := abi.UnpackTooFewStarredMessage(2, 1); sim.Message(exc) != want {
		t.Errorf("message = %q, want %q", sim.Message(exc), want)
	}
}

func TestBuildAndSubscript(t *testing.T) {
	rt := sim.New()
	u := newUnit(t, verified, Func{ArgCount: 1, Locals: dynamicLocals(2)})
	u.at(0).LoadFast(0)
	u.at(1).LoadConst(10)
	u.at(2).LoadConst(20)
	u.at(3).BuildList(3)
	u.at(4).StoreFast(1)
	u.at(5).LoadConst(99)
	u.at(6).LoadFast(1)
	u.at(7).LoadConst(0)
	u.at(8).StoreSubscr()
	u.at(9).LoadFast(1)
	u.at(10).LoadConst(1)
	u.at(11).LoadConst(3)
	u.at(12).GetSlice()
	u.at(13).ReturnValue()
	v, err := run(t, rt, u.finish(), rt.NewInt(5))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := show(v); got != "(10, 20)" {
		t.Errorf("result = %s, want (10, 20)", got)
	}
}

func TestBuildMap(t *testing.T) {
	rt := sim.New()
	u := newUnit(t, verified, Func{})
	u.at(0).LoadConst("a")
	u.at(1).LoadConst(1)
	u.at(2).LoadConst("b")
	u.at(3).LoadConst(2)
	u.at(4).BuildMap(2)
	u.at(5).ReturnValue()
	v, err := run(t, rt, u.finish())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := show(v); got != `{"a": 1, "b": 2}` {
		t.Errorf("result = %s, want {\"a\": 1, \"b\": 2}", got)
	}
}

func TestForLoopSum(t *testing.T) {
	rt := sim.New()
	// total = 0; for x in xs: total += x; return total
	u := newUnit(t, verified, Func{ArgCount: 1, Locals: dynamicLocals(3)})
	u.at(0).LoadConst(0)
	u.at(1).StoreFast(1)
	u.at(2).LoadFast(0)
	u.at(3).GetIter()
	u.at(4).ForIter(11)
	u.at(5).StoreFast(2)
	u.at(6).LoadFast(1)
	u.at(7).LoadFast(2)
	u.at(8).BinaryOp(InplaceAdd)
	u.at(9).StoreFast(1)
	u.at(10).Jump(4)
	u.enter(11).LoadFast(1)
	u.at(12).ReturnValue()
	v, err := run(t, rt, u.finish(), rt.NewList(rt.NewInt(1), rt.NewInt(2), rt.NewInt(3)))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := show(v); got != "6" {
		t.Errorf("sum = %s, want 6", got)
	}
}

// ---------------------------------------------------------------------------
// Stack primitives
// ---------------------------------------------------------------------------

// TestStackPrimitives pushes 0 through 4, applies one primitive and returns
// the whole stack as a tuple. The producing offsets in the returned
// snapshot must match the runtime order.
func TestStackPrimitives(t *testing.T) {
	tests := []struct {
		name string
		op   func(l *Lowerer) Stack
		want []int
	}{
		{"Swap", (*Lowerer).Swap, []int{0, 1, 2, 4, 3}},
		{"Rotate3", (*Lowerer).Rotate3, []int{0, 1, 4, 2, 3}},
		{"Rotate4", (*Lowerer).Rotate4, []int{0, 4, 1, 2, 3}},
		{"DuplicateToTop(0)", func(l *Lowerer) Stack { return l.DuplicateToTop(0) }, []int{0, 1, 2, 3, 4, 4}},
		{"DuplicateToTop(1)", func(l *Lowerer) Stack { return l.DuplicateToTop(1) }, []int{0, 1, 2, 3, 4, 3}},
		{"DuplicateToTop(2)", func(l *Lowerer) Stack { return l.DuplicateToTop(2) }, []int{0, 1, 2, 3, 4, 2}},
		{"DuplicateToTop(3)", func(l *Lowerer) Stack { return l.DuplicateToTop(3) }, []int{0, 1, 2, 3, 4, 1}},
		{"DuplicateToTop(4)", func(l *Lowerer) Stack { return l.DuplicateToTop(4) }, []int{0, 1, 2, 3, 4, 0}},
		{"ShiftTopDownTo(0)", func(l *Lowerer) Stack { return l.ShiftTopDownTo(0) }, []int{0, 1, 2, 3, 4}},
		{"ShiftTopDownTo(1)", func(l *Lowerer) Stack { return l.ShiftTopDownTo(1) }, []int{0, 1, 2, 4, 3}},
		{"ShiftTopDownTo(2)", func(l *Lowerer) Stack { return l.ShiftTopDownTo(2) }, []int{0, 1, 4, 2, 3}},
		{"ShiftTopDownTo(3)", func(l *Lowerer) Stack { return l.ShiftTopDownTo(3) }, []int{0, 4, 1, 2, 3}},
		{"ShiftTopDownTo(4)", func(l *Lowerer) Stack { return l.ShiftTopDownTo(4) }, []int{4, 0, 1, 2, 3}},
		{"SwapTopWith(0)", func(l *Lowerer) Stack { return l.SwapTopWith(0) }, []int{0, 1, 2, 3, 4}},
		{"SwapTopWith(1)", func(l *Lowerer) Stack { return l.SwapTopWith(1) }, []int{0, 1, 2, 4, 3}},
		{"SwapTopWith(2)", func(l *Lowerer) Stack { return l.SwapTopWith(2) }, []int{0, 1, 4, 3, 2}},
		{"SwapTopWith(3)", func(l *Lowerer) Stack { return l.SwapTopWith(3) }, []int{0, 4, 2, 3, 1}},
		{"SwapTopWith(4)", func(l *Lowerer) Stack { return l.SwapTopWith(4) }, []int{4, 1, 2, 3, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newUnit(t, verified, Func{})
			for i := 0; i < 5; i++ {
				u.at(i).LoadConst(i)
			}
			s := tt.op(u.at(5))
			if err := u.l.Err(); err != nil {
				t.Fatalf("lowering: %v", err)
			}

			got := make([]int, s.Depth())
			for i := range got {
				got[i] = s.Peek(s.Depth() - 1 - i).Source
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("snapshot sources = %v, want %v", got, tt.want)
			}
			if live := u.l.Pool().Live(); live != 0 {
				t.Errorf("live temporaries = %d, want 0", live)
			}

			u.at(6).BuildTuple(s.Depth())
			u.at(7).ReturnValue()
			v, err := run(t, sim.New(), u.finish())
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			parts := make([]string, len(tt.want))
			for i, w := range tt.want {
				parts[i] = fmt.Sprint(w)
			}
			if want := "(" + strings.Join(parts, ", ") + ")"; show(v) != want {
				t.Errorf("runtime stack = %s, want %s", show(v), want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Attributes
// ---------------------------------------------------------------------------

func pointType() *catalog.Type {
	p := catalog.NewType("Point", "user/Point", catalog.Object)
	p.AddField("x", catalog.Int)
	return p
}

func TestFieldReadOfUnsetAttribute(t *testing.T) {
	point := pointType()
	rt := sim.New()
	class, err := rt.Define(point)
	if err != nil {
		t.Fatalf("Define: %v", err)
	}
	u := newUnit(t, verified, Func{ArgCount: 1, Locals: []*catalog.Type{point}})
	u.at(0).LoadFast(0)
	u.at(1).LoadAttr("x")
	u.at(2).ReturnValue()
	m := u.finish()

	p := instance(t, rt, class)
	_, err = run(t, rt, m, p)
	exc := raised(t, err)
	if exc.Class != rt.AttributeError {
		t.Errorf("class = %v, want AttributeError", exc.Class)
	}
	if want := abi.NoAttributeMessage("Point", "x"); sim.Message(exc) != want {
		t.Errorf("message = %q, want %q", sim.Message(exc), want)
	}

	p.(*sim.Instance).Fields["x"] = rt.NewInt(7)
	v, err := run(t, rt, m, p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := show(v); got != "7" {
		t.Errorf("p.x = %s, want 7", got)
	}
}

func TestFieldWriteCoerces(t *testing.T) {
	point := pointType()
	rt := sim.New()
	class, err := rt.Define(point)
	if err != nil {
		t.Fatalf("Define: %v", err)
	}
	u := newUnit(t, verified, Func{ArgCount: 2, Locals: []*catalog.Type{point, nil}})
	u.at(0).LoadFast(1)
	u.at(1).LoadFast(0)
	u.at(2).StoreAttr("x")
	u.at(3).LoadConst(nil)
	u.at(4).ReturnValue()
	m := u.finish()

	p := instance(t, rt, class)
	if _, err := run(t, rt, m, p, rt.NewInt(3)); err != nil {
		t.Fatalf("store int: %v", err)
	}
	if got := show(p.(*sim.Instance).Fields["x"]); got != "3" {
		t.Errorf("p.x = %s, want 3", got)
	}

	_, err = run(t, rt, m, p, rt.NewStr("three"))
	exc := raised(t, err)
	if exc.Class != rt.TypeError || sim.Message(exc) != "expected int, got str" {
		t.Errorf("raised %v %q, want TypeError \"expected int, got str\"", exc.Class, sim.Message(exc))
	}
}

func TestDynamicAttributes(t *testing.T) {
	rt := sim.New()
	bag := userClass(rt, "Bag")
	u := newUnit(t, verified, Func{ArgCount: 1, Locals: dynamicLocals(1)})
	u.at(0).LoadConst(1)
	u.at(1).LoadFast(0)
	u.at(2).StoreAttr("v")
	u.at(3).LoadFast(0)
	u.at(4).LoadAttr("v")
	u.at(5).LoadFast(0)
	u.at(6).DeleteAttr("v")
	u.at(7).ReturnValue()
	m := u.finish()

	obj := instance(t, rt, bag)
	v, err := run(t, rt, m, obj)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := show(v); got != "1" {
		t.Errorf("obj.v = %s, want 1", got)
	}
	if _, ok := rt.GetAttr(obj, "v"); ok {
		t.Error("obj.v still set after del")
	}
}

// ---------------------------------------------------------------------------
// Exceptions
// ---------------------------------------------------------------------------

// tryExcept lowers:
//
//	try:
//	    raise arg
//	except ValueError:
//	    return "caught"
func tryExcept(t *testing.T, cfg Config) *host.Method {
	u := newUnit(t, cfg, Func{ArgCount: 2, Locals: dynamicLocals(2)})
	u.at(0).TryRegion(Region{Start: 0, End: 2, Target: 3})
	u.l.LoadFast(0)
	u.at(1).Raise(1)
	u.enter(2).LoadConst(nil)
	u.l.ReturnValue()
	u.enter(3, catalog.BaseException).PushExcInfo()
	u.at(4).LoadFast(1)
	u.at(5).CheckExcMatch()
	u.at(6).PopJumpIfFalse(11)
	u.at(7).Pop()
	u.at(8).PopExcept()
	u.at(9).LoadConst("caught")
	u.at(10).ReturnValue()
	u.enter(11, catalog.Object, catalog.BaseException).Reraise()
	return u.finish()
}

func TestTryExcept(t *testing.T) {
	rt := sim.New()
	m := tryExcept(t, verified)

	v, err := run(t, rt, m, rt.Errorf(rt.ValueError, "bad"), rt.ValueError)
	if err != nil {
		t.Fatalf("matching handler: %v", err)
	}
	if got := show(v); got != `"caught"` {
		t.Errorf("result = %s, want \"caught\"", got)
	}

	_, err = run(t, rt, m, rt.Errorf(rt.KeyError, "k"), rt.ValueError)
	if exc := raised(t, err); exc.Class != rt.KeyError {
		t.Errorf("reraised %v, want KeyError", exc.Class)
	}

	// a class is instantiated before it is raised
	v, err = run(t, rt, m, rt.ValueError, rt.Exception)
	if err != nil {
		t.Fatalf("raise class: %v", err)
	}
	if got := show(v); got != `"caught"` {
		t.Errorf("result = %s, want \"caught\"", got)
	}
}

func TestRaiseFrom(t *testing.T) {
	rt := sim.New()
	u := newUnit(t, verified, Func{ArgCount: 2, Locals: dynamicLocals(2)})
	u.at(0).LoadFast(0)
	u.at(1).LoadFast(1)
	u.at(2).Raise(2)
	m := u.finish()

	cause := rt.Errorf(rt.KeyError, "k")
	_, err := run(t, rt, m, rt.Errorf(rt.ValueError, "v"), cause)
	exc := raised(t, err)
	if exc.Fields["__cause__"] != any(cause) {
		t.Errorf("__cause__ = %s, want the KeyError", show(exc.Fields["__cause__"]))
	}
}

func TestBareReraiseWithoutException(t *testing.T) {
	rt := sim.New()
	u := newUnit(t, verified, Func{})
	u.at(0).Raise(0)
	_, err := run(t, rt, u.finish())
	exc := raised(t, err)
	if exc.Class != rt.RuntimeError {
		t.Errorf("class = %v, want RuntimeError", exc.Class)
	}
}

func TestTupleDialectHandler(t *testing.T) {
	rt := sim.New()
	cfg := Config{Dialect: DialectTuple, Verify: true}
	u := newUnit(t, cfg, Func{ArgCount: 1, Locals: dynamicLocals(1)})
	u.at(0).TryRegion(Region{Start: 0, End: 2, Target: 3})
	u.l.LoadFast(0)
	u.at(1).Raise(1)
	u.enter(2).LoadConst(nil)
	u.l.ReturnValue()
	u.enter(3, catalog.NoneType, catalog.Int, catalog.NoneType, catalog.Object,
		catalog.BaseException, catalog.BaseException)
	u.l.Pop()
	u.l.StoreFast(0)
	u.l.StartExceptOrFinally()
	u.l.Pop()
	u.l.LoadFast(0)
	u.l.ReturnValue()
	m := u.finish()

	exc := rt.Errorf(rt.ValueError, "v")
	v, err := run(t, rt, m, exc)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if v != any(exc) {
		t.Errorf("result = %s, want the raised exception", show(v))
	}
}

// ---------------------------------------------------------------------------
// With
// ---------------------------------------------------------------------------

// withUnit lowers, in the bare dialect:
//
//	with cm:
//	    if fail:
//	        raise exc
//	return "normal"
//
// where a true __exit__ result returns "suppressed".
func withUnit(t *testing.T) *host.Method {
	u := newUnit(t, verified, Func{ArgCount: 3, Locals: dynamicLocals(3)})
	u.at(0).LoadFast(0)
	u.at(1).BeforeWith()
	u.at(2).Pop()
	u.at(3).TryRegion(Region{Start: 3, End: 6, Target: 8, Depth: 1})
	u.l.LoadFast(1)
	u.at(4).PopJumpIfFalse(6)
	u.at(5).LoadFast(2)
	u.l.Raise(1)
	u.enter(6, catalog.BoundFunction).WithNormalExit()
	u.at(7).LoadConst("normal")
	u.l.ReturnValue()
	u.enter(8, catalog.BoundFunction, catalog.BaseException).PushExcInfo()
	u.l.WithExceptStart()
	u.at(9).PopJumpIfTrue(11)
	u.at(10).Reraise()
	u.enter(11, catalog.BoundFunction, catalog.Object, catalog.BaseException).Pop()
	u.l.PopExcept()
	u.l.Pop()
	u.l.LoadConst("suppressed")
	u.l.ReturnValue()
	return u.finish()
}

func TestWithExitAlwaysRuns(t *testing.T) {
	tests := []struct {
		name     string
		fail     bool
		suppress bool
		want     string
		wantExit string
	}{
		{"normal", false, false, `"normal"`, "None None"},
		{"suppressed", true, true, `"suppressed"`, "ValueError <*sim.Instance>"},
		{"propagated", true, false, "", "ValueError <*sim.Instance>"},
	}
	for _, tt := range tests {
		rt := sim.New()
		var entered int
		var exit []string
		cm := userClass(rt, "CM",
			method("__enter__", []string{"self"}, func(args []any) (any, error) {
				entered++
				return args[0], nil
			}),
			method("__exit__", []string{"self", "typ", "val", "tb"}, func(args []any) (any, error) {
				typ := show(args[1])
				if c, ok := args[1].(*sim.Class); ok {
					typ = c.Name
				}
				exit = append(exit, typ+" "+show(args[2]))
				return rt.NewBool(tt.suppress), nil
			}),
		)
		m := withUnit(t)
		v, err := run(t, rt, m, instance(t, rt, cm), rt.NewBool(tt.fail), rt.Errorf(rt.ValueError, "boom"))

		if entered != 1 {
			t.Errorf("%s: __enter__ called %d times, want 1", tt.name, entered)
		}
		if len(exit) != 1 || exit[0] != tt.wantExit {
			t.Errorf("%s: __exit__ calls = %v, want [%s]", tt.name, exit, tt.wantExit)
		}
		if tt.want == "" {
			if exc := raised(t, err); exc.Class != rt.ValueError {
				t.Errorf("%s: raised %v, want ValueError", tt.name, exc.Class)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if got := show(v); got != tt.want {
			t.Errorf("%s: result = %s, want %s", tt.name, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Generators
// ---------------------------------------------------------------------------

func genUnit(t *testing.T, argc int, locals int) *unit {
	u := newUnit(t, verified, Func{ArgCount: argc, Locals: dynamicLocals(locals), Generator: true})
	u.enter(0, catalog.Object).GeneratorStart()
	return u
}

func drain(t *testing.T, rt *sim.Runtime, gen any) string {
	t.Helper()
	items, err := rt.Iterate(gen)
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = show(item)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// yieldThree lowers: yield 1; yield 2; yield 3; return 99
func yieldThree(t *testing.T) *host.Method {
	u := genUnit(t, 0, 0)
	off := 1
	for _, v := range []int{1, 2, 3} {
		u.at(off).LoadConst(v)
		u.at(off + 1).Yield()
		u.at(off + 2).Pop()
		off += 3
	}
	u.at(off).LoadConst(99)
	u.at(off + 1).ReturnValue()
	return u.finish()
}

func TestGeneratorYields(t *testing.T) {
	rt := sim.New()
	fn := rt.LoweredGenerator(yieldThree(t))
	gen, err := rt.CallValue(fn, nil, nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got := drain(t, rt, gen); got != "[1 2 3]" {
		t.Errorf("items = %s, want [1 2 3]", got)
	}
	// exhausted generators stay exhausted
	if got := drain(t, rt, gen); got != "[]" {
		t.Errorf("second drain = %s, want []", got)
	}
}

func TestGeneratorLoop(t *testing.T) {
	// i = 0
	// while i < n:
	//     yield i
	//     i += 1
	u := genUnit(t, 1, 2)
	u.at(1).LoadConst(0)
	u.at(2).StoreFast(1)
	u.at(3).LoadFast(1)
	u.at(4).LoadFast(0)
	u.at(5).BinaryOp(LT)
	u.at(6).PopJumpIfFalse(15)
	u.at(7).LoadFast(1)
	u.at(8).Yield()
	u.at(9).Pop()
	u.at(10).LoadFast(1)
	u.at(11).LoadConst(1)
	u.at(12).BinaryOp(InplaceAdd)
	u.at(13).StoreFast(1)
	u.at(14).Jump(3)
	u.enter(15).LoadConst(nil)
	u.at(16).ReturnValue()
	m := u.finish()

	rt := sim.New()
	gen, err := rt.CallValue(rt.LoweredGenerator(m, "n"), []any{rt.NewInt(3)}, nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got := drain(t, rt, gen); got != "[0 1 2]" {
		t.Errorf("items = %s, want [0 1 2]", got)
	}
}

func TestGeneratorReturnValue(t *testing.T) {
	rt := sim.New()
	gen, err := rt.CallValue(rt.LoweredGenerator(yieldThree(t)), nil, nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := rt.CallMethod(gen, "__next__"); err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
	}
	_, err = rt.CallMethod(gen, "__next__")
	exc := raised(t, err)
	if exc.Class != rt.StopIteration || show(exc.Fields["value"]) != "99" {
		t.Errorf("raised %v value %s, want StopIteration value 99", exc.Class, show(exc.Fields["value"]))
	}
}

// echo lowers: x = yield 1; yield x
func echo(t *testing.T) *host.Method {
	u := genUnit(t, 0, 0)
	u.at(1).LoadConst(1)
	u.at(2).Yield()
	u.at(3).Yield()
	u.at(4).Pop()
	u.at(5).LoadConst(nil)
	u.at(6).ReturnValue()
	return u.finish()
}

func TestGeneratorSendAndThrow(t *testing.T) {
	rt := sim.New()
	fn := rt.LoweredGenerator(echo(t))

	gen, _ := rt.CallValue(fn, nil, nil)
	if _, err := rt.CallMethod(gen, "send", rt.NewStr("early")); err == nil {
		t.Error("sending a value to a just-started generator succeeded")
	}

	gen, _ = rt.CallValue(fn, nil, nil)
	if v, err := rt.CallMethod(gen, "__next__"); err != nil || show(v) != "1" {
		t.Fatalf("first next = %s, %v; want 1", show(v), err)
	}
	v, err := rt.CallMethod(gen, "send", rt.NewStr("hi"))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := show(v); got != `"hi"` {
		t.Errorf("send result = %s, want \"hi\"", got)
	}

	gen, _ = rt.CallValue(fn, nil, nil)
	rt.CallMethod(gen, "__next__")
	_, err = rt.CallMethod(gen, "throw", rt.Errorf(rt.KeyError, "k"))
	if exc := raised(t, err); exc.Class != rt.KeyError {
		t.Errorf("throw raised %v, want KeyError", exc.Class)
	}
	if got := drain(t, rt, gen); got != "[]" {
		t.Errorf("after throw = %s, want []", got)
	}
}

// delegating lowers: r = yield from it; yield r
func delegating(t *testing.T) *host.Method {
	u := genUnit(t, 1, 1)
	u.at(1).LoadFast(0)
	u.at(2).GetYieldFromIter()
	u.at(3).LoadConst(nil)
	u.at(4).YieldFrom()
	u.at(5).Yield()
	u.at(6).Pop()
	u.at(7).LoadConst(nil)
	u.at(8).ReturnValue()
	return u.finish()
}

func TestYieldFrom(t *testing.T) {
	rt := sim.New()
	inner, err := rt.CallValue(rt.LoweredGenerator(yieldThree(t)), nil, nil)
	if err != nil {
		t.Fatalf("inner: %v", err)
	}
	outer, err := rt.CallValue(rt.LoweredGenerator(delegating(t), "it"), []any{inner}, nil)
	if err != nil {
		t.Fatalf("outer: %v", err)
	}
	if got := drain(t, rt, outer); got != "[1 2 3 99]" {
		t.Errorf("items = %s, want [1 2 3 99]", got)
	}
}

func TestYieldFromForwardsSend(t *testing.T) {
	rt := sim.New()
	inner, _ := rt.CallValue(rt.LoweredGenerator(echo(t)), nil, nil)
	outer, _ := rt.CallValue(rt.LoweredGenerator(delegating(t), "it"), []any{inner}, nil)

	if v, err := rt.CallMethod(outer, "__next__"); err != nil || show(v) != "1" {
		t.Fatalf("first next = %s, %v; want 1", show(v), err)
	}
	v, err := rt.CallMethod(outer, "send", rt.NewStr("hi"))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := show(v); got != `"hi"` {
		t.Errorf("send through delegation = %s, want \"hi\"", got)
	}
}

func TestYieldFromThrowDelegates(t *testing.T) {
	rt := sim.New()
	inner, _ := rt.CallValue(rt.LoweredGenerator(yieldThree(t)), nil, nil)
	outer, _ := rt.CallValue(rt.LoweredGenerator(delegating(t), "it"), []any{inner}, nil)

	if v, err := rt.CallMethod(outer, "__next__"); err != nil || show(v) != "1" {
		t.Fatalf("first next = %s, %v; want 1", show(v), err)
	}
	_, err := rt.CallMethod(outer, "throw", rt.Errorf(rt.KeyError, "k"))
	if exc := raised(t, err); exc.Class != rt.KeyError {
		t.Errorf("throw raised %v, want KeyError", exc.Class)
	}
	// the inner generator received the exception and finished with it
	if got := drain(t, rt, inner); got != "[]" {
		t.Errorf("inner after throw = %s, want []", got)
	}
}

func TestYieldFromThrowWithoutThrowMethod(t *testing.T) {
	rt := sim.New()
	list := rt.NewList(rt.NewInt(7), rt.NewInt(8))
	outer, _ := rt.CallValue(rt.LoweredGenerator(delegating(t), "it"), []any{list}, nil)

	if v, err := rt.CallMethod(outer, "__next__"); err != nil || show(v) != "7" {
		t.Fatalf("first next = %s, %v; want 7", show(v), err)
	}
	gen := outer.(*sim.Generator)
	if gen.Field(abi.YieldFromIterator.Name) == nil {
		t.Fatal("delegation field unset while delegating")
	}
	thrown := rt.Errorf(rt.KeyError, "k")
	_, err := rt.CallMethod(outer, "throw", thrown)
	if exc := raised(t, err); exc != thrown {
		t.Errorf("throw raised %v %q, want the thrown KeyError", exc.Class, sim.Message(exc))
	}
	if v := gen.Field(abi.YieldFromIterator.Name); v != nil {
		t.Errorf("delegation field = %s, want null", show(v))
	}
	if got := drain(t, rt, outer); got != "[]" {
		t.Errorf("after throw = %s, want []", got)
	}
}

func TestYieldFromList(t *testing.T) {
	rt := sim.New()
	list := rt.NewList(rt.NewInt(7), rt.NewInt(8))
	outer, _ := rt.CallValue(rt.LoweredGenerator(delegating(t), "it"), []any{list}, nil)
	if got := drain(t, rt, outer); got != "[7 8 None]" {
		t.Errorf("items = %s, want [7 8 None]", got)
	}
}

func TestSendLoop(t *testing.T) {
	// r = yield from it, written with an explicit send loop; yield r
	u := genUnit(t, 1, 1)
	u.at(1).LoadFast(0)
	u.at(2).GetYieldFromIter()
	u.at(3).LoadConst(nil)
	u.at(4).Send(7)
	u.at(5).Yield()
	u.at(6).Jump(4)
	u.enter(7, catalog.Object).Yield()
	u.at(8).Pop()
	u.at(9).LoadConst(nil)
	u.at(10).ReturnValue()
	m := u.finish()

	rt := sim.New()
	inner, _ := rt.CallValue(rt.LoweredGenerator(yieldThree(t)), nil, nil)
	outer, _ := rt.CallValue(rt.LoweredGenerator(m, "it"), []any{inner}, nil)
	if got := drain(t, rt, outer); got != "[1 2 3 99]" {
		t.Errorf("items = %s, want [1 2 3 99]", got)
	}
}
