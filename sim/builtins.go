package sim

import (
	"strings"
)

// fn declares a builtin function; params names the receiver first.
func fn(name string, params []string, body func(args []any) (any, error)) *Function {
	return &Function{Name: name, Params: params, Body: body}
}

var (
	selfOnly  = []string{"self"}
	selfOther = []string{"self", "other"}
)

func (rt *Runtime) installBuiltins() {
	rt.installObject()
	rt.installInt()
	rt.installStr()
	rt.installSequences()
	rt.installDict()
	rt.installExceptions()
	rt.installIterators()
}

// ---------------------------------------------------------------------------
// object and the singletons
// ---------------------------------------------------------------------------

func (rt *Runtime) installObject() {
	o := rt.Object
	o.Def(fn("__init__", selfOnly, func(args []any) (any, error) {
		return rt.None, nil
	}))
	o.Def(fn("__eq__", selfOther, func(args []any) (any, error) {
		if args[0] == args[1] {
			return rt.True, nil
		}
		return rt.NotImplemented, nil
	}))
	o.Def(fn("__ne__", selfOther, func(args []any) (any, error) {
		if args[0] == args[1] {
			return rt.False, nil
		}
		return rt.NotImplemented, nil
	}))
	o.Def(fn("__bool__", selfOnly, func(args []any) (any, error) {
		return rt.True, nil
	}))
	o.Def(fn("__setattr__", []string{"self", "name", "value"}, func(args []any) (any, error) {
		inst, ok := args[0].(*Instance)
		if !ok {
			return nil, rt.raisef(rt.AttributeError, "'%s' object attribute '%s' is read-only", rt.TypeName(args[0]), stringOf(args[1]))
		}
		inst.Fields[stringOf(args[1])] = args[2]
		return rt.None, nil
	}))
	o.Def(fn("__delattr__", []string{"self", "name"}, func(args []any) (any, error) {
		name := stringOf(args[1])
		inst, ok := args[0].(*Instance)
		if !ok || inst.Fields[name] == nil {
			return nil, Raise(rt.noAttribute(args[0], name))
		}
		inst.Fields[name] = nil
		return rt.None, nil
	}))

	rt.NoneType.Def(fn("__bool__", selfOnly, func(args []any) (any, error) {
		return rt.False, nil
	}))
}

// ---------------------------------------------------------------------------
// int and bool
// ---------------------------------------------------------------------------

func (rt *Runtime) installInt() {
	arith := map[string]func(a, b int64) int64{
		"add": func(a, b int64) int64 { return a + b },
		"sub": func(a, b int64) int64 { return a - b },
		"mul": func(a, b int64) int64 { return a * b },
	}
	for name, op := range arith {
		op := op
		rt.Int.Def(fn("__"+name+"__", selfOther, func(args []any) (any, error) {
			a, b, ok := intPair(args[0], args[1])
			if !ok {
				return rt.NotImplemented, nil
			}
			return rt.NewInt(op(a, b)), nil
		}))
		rt.Int.Def(fn("__r"+name+"__", selfOther, func(args []any) (any, error) {
			a, b, ok := intPair(args[1], args[0])
			if !ok {
				return rt.NotImplemented, nil
			}
			return rt.NewInt(op(a, b)), nil
		}))
	}
	rt.Int.Def(fn("__floordiv__", selfOther, func(args []any) (any, error) {
		a, b, ok := intPair(args[0], args[1])
		if !ok {
			return rt.NotImplemented, nil
		}
		if b == 0 {
			return nil, rt.raisef(rt.ValueError, "integer division or modulo by zero")
		}
		q := a / b
		if (a%b != 0) && ((a < 0) != (b < 0)) {
			q--
		}
		return rt.NewInt(q), nil
	}))

	cmp := map[string]func(a, b int64) bool{
		"__lt__": func(a, b int64) bool { return a < b },
		"__le__": func(a, b int64) bool { return a <= b },
		"__gt__": func(a, b int64) bool { return a > b },
		"__ge__": func(a, b int64) bool { return a >= b },
		"__eq__": func(a, b int64) bool { return a == b },
		"__ne__": func(a, b int64) bool { return a != b },
	}
	for name, op := range cmp {
		op := op
		rt.Int.Def(fn(name, selfOther, func(args []any) (any, error) {
			a, b, ok := intPair(args[0], args[1])
			if !ok {
				return rt.NotImplemented, nil
			}
			return rt.NewBool(op(a, b)), nil
		}))
	}
	rt.Int.Def(fn("__neg__", selfOnly, func(args []any) (any, error) {
		return rt.NewInt(-args[0].(*Int).V), nil
	}))
	rt.Int.Def(fn("__pos__", selfOnly, func(args []any) (any, error) {
		return rt.NewInt(args[0].(*Int).V), nil
	}))
	rt.Int.Def(fn("__bool__", selfOnly, func(args []any) (any, error) {
		return rt.NewBool(args[0].(*Int).V != 0), nil
	}))
}

func intPair(a, b any) (int64, int64, bool) {
	x, ok := a.(*Int)
	if !ok {
		return 0, 0, false
	}
	y, ok := b.(*Int)
	if !ok {
		return 0, 0, false
	}
	return x.V, y.V, true
}

// ---------------------------------------------------------------------------
// str
// ---------------------------------------------------------------------------

func (rt *Runtime) installStr() {
	rt.Str.Def(fn("__add__", selfOther, func(args []any) (any, error) {
		b, ok := args[1].(*Str)
		if !ok {
			return rt.NotImplemented, nil
		}
		return rt.NewStr(args[0].(*Str).V + b.V), nil
	}))
	rt.Str.Def(fn("__len__", selfOnly, func(args []any) (any, error) {
		return rt.NewInt(int64(len(args[0].(*Str).V))), nil
	}))
	rt.Str.Def(fn("__eq__", selfOther, func(args []any) (any, error) {
		b, ok := args[1].(*Str)
		if !ok {
			return rt.NotImplemented, nil
		}
		return rt.NewBool(args[0].(*Str).V == b.V), nil
	}))
	rt.Str.Def(fn("__contains__", []string{"self", "item"}, func(args []any) (any, error) {
		b, ok := args[1].(*Str)
		if !ok {
			return nil, rt.raisef(rt.TypeError, "'in <string>' requires string as left operand, not %s", rt.TypeName(args[1]))
		}
		return rt.NewBool(strings.Contains(args[0].(*Str).V, b.V)), nil
	}))
}

// ---------------------------------------------------------------------------
// tuple, list and set
// ---------------------------------------------------------------------------

func (rt *Runtime) installSequences() {
	for _, c := range []*Class{rt.Tuple, rt.List, rt.Set} {
		c.Def(fn("__len__", selfOnly, func(args []any) (any, error) {
			return rt.NewInt(int64(len(args[0].(*Seq).Items))), nil
		}))
		c.Def(fn("__iter__", selfOnly, func(args []any) (any, error) {
			return &SeqIterator{items: append([]any(nil), args[0].(*Seq).Items...)}, nil
		}))
		c.Def(fn("__contains__", []string{"self", "item"}, func(args []any) (any, error) {
			for _, v := range args[0].(*Seq).Items {
				if Equal(v, args[1]) {
					return rt.True, nil
				}
			}
			return rt.False, nil
		}))
		c.Def(fn("__eq__", selfOther, func(args []any) (any, error) {
			if _, ok := args[1].(*Seq); !ok {
				return rt.NotImplemented, nil
			}
			return rt.NewBool(Equal(args[0], args[1])), nil
		}))
	}
	for _, c := range []*Class{rt.Tuple, rt.List} {
		c.Def(fn("__getitem__", []string{"self", "index"}, func(args []any) (any, error) {
			s := args[0].(*Seq)
			if sl, ok := args[1].(*Slice); ok {
				lo, hi, err := rt.sliceBounds(sl, len(s.Items))
				if err != nil {
					return nil, err
				}
				return &Seq{class: s.class, Items: append([]any(nil), s.Items[lo:hi]...)}, nil
			}
			i, err := rt.index(s, args[1])
			if err != nil {
				return nil, err
			}
			return s.Items[i], nil
		}))
		c.Def(fn("__add__", selfOther, func(args []any) (any, error) {
			s := args[0].(*Seq)
			o, ok := args[1].(*Seq)
			if !ok || o.class != s.class {
				return rt.NotImplemented, nil
			}
			items := append(append([]any(nil), s.Items...), o.Items...)
			return &Seq{class: s.class, Items: items}, nil
		}))
	}

	rt.List.Def(fn("__setitem__", []string{"self", "index", "value"}, func(args []any) (any, error) {
		s := args[0].(*Seq)
		if sl, ok := args[1].(*Slice); ok {
			lo, hi, err := rt.sliceBounds(sl, len(s.Items))
			if err != nil {
				return nil, err
			}
			repl, err := rt.Iterate(args[2])
			if err != nil {
				return nil, err
			}
			tail := append([]any(nil), s.Items[hi:]...)
			s.Items = append(append(s.Items[:lo], repl...), tail...)
			return rt.None, nil
		}
		i, err := rt.index(s, args[1])
		if err != nil {
			return nil, err
		}
		s.Items[i] = args[2]
		return rt.None, nil
	}))
	rt.List.Def(fn("__delitem__", []string{"self", "index"}, func(args []any) (any, error) {
		s := args[0].(*Seq)
		lo, hi := 0, 0
		if sl, ok := args[1].(*Slice); ok {
			var err error
			if lo, hi, err = rt.sliceBounds(sl, len(s.Items)); err != nil {
				return nil, err
			}
		} else {
			i, err := rt.index(s, args[1])
			if err != nil {
				return nil, err
			}
			lo, hi = i, i+1
		}
		s.Items = append(s.Items[:lo], s.Items[hi:]...)
		return rt.None, nil
	}))
	rt.List.Def(fn("append", []string{"self", "item"}, func(args []any) (any, error) {
		s := args[0].(*Seq)
		s.Items = append(s.Items, args[1])
		return rt.None, nil
	}))
	rt.Set.Def(fn("add", []string{"self", "item"}, func(args []any) (any, error) {
		s := args[0].(*Seq)
		s.setAdd(args[1])
		return rt.None, nil
	}))
}

// setAdd adds v unless an equal item is present.
func (s *Seq) setAdd(v any) {
	for _, item := range s.Items {
		if Equal(item, v) {
			return
		}
	}
	s.Items = append(s.Items, v)
}

// index resolves a possibly negative int index into s.
func (rt *Runtime) index(s *Seq, v any) (int, error) {
	n, ok := v.(*Int)
	if !ok {
		return 0, rt.raisef(rt.TypeError, "%s indices must be integers, not %s", s.class.Name, rt.TypeName(v))
	}
	i := int(n.V)
	if i < 0 {
		i += len(s.Items)
	}
	if i < 0 || i >= len(s.Items) {
		return 0, rt.raisef(rt.IndexError, "%s index out of range", s.class.Name)
	}
	return i, nil
}

// sliceBounds clamps a unit-step slice to a sequence of length n.
func (rt *Runtime) sliceBounds(sl *Slice, n int) (int, int, error) {
	if sl.Step != nil && sl.Step != any(rt.None) {
		if st, ok := sl.Step.(*Int); !ok || st.V != 1 {
			return 0, 0, rt.raisef(rt.ValueError, "slice step other than 1 is not supported")
		}
	}
	bound := func(v any, def int) (int, error) {
		if v == nil || v == any(rt.None) {
			return def, nil
		}
		x, ok := v.(*Int)
		if !ok {
			return 0, rt.raisef(rt.TypeError, "slice indices must be integers or None")
		}
		i := int(x.V)
		if i < 0 {
			i += n
		}
		return min(max(i, 0), n), nil
	}
	lo, err := bound(sl.Start, 0)
	if err != nil {
		return 0, 0, err
	}
	hi, err := bound(sl.Stop, n)
	if err != nil {
		return 0, 0, err
	}
	return lo, max(lo, hi), nil
}

// ---------------------------------------------------------------------------
// dict
// ---------------------------------------------------------------------------

func (d *Dict) find(k any) int {
	for i, key := range d.Keys {
		if Equal(key, k) {
			return i
		}
	}
	return -1
}

// Put sets k to v.
func (d *Dict) Put(k, v any) {
	if i := d.find(k); i >= 0 {
		d.Vals[i] = v
		return
	}
	d.Keys = append(d.Keys, k)
	d.Vals = append(d.Vals, v)
}

// Get returns the value stored under a string key.
func (d *Dict) Get(key string) (any, bool) {
	for i, k := range d.Keys {
		if stringOf(k) == key {
			return d.Vals[i], true
		}
	}
	return nil, false
}

func (rt *Runtime) installDict() {
	rt.Dict.Def(fn("__getitem__", []string{"self", "key"}, func(args []any) (any, error) {
		d := args[0].(*Dict)
		if i := d.find(args[1]); i >= 0 {
			return d.Vals[i], nil
		}
		return nil, Raise(rt.NewException(rt.KeyError, args[1]))
	}))
	rt.Dict.Def(fn("__setitem__", []string{"self", "key", "value"}, func(args []any) (any, error) {
		args[0].(*Dict).Put(args[1], args[2])
		return rt.None, nil
	}))
	rt.Dict.Def(fn("__delitem__", []string{"self", "key"}, func(args []any) (any, error) {
		d := args[0].(*Dict)
		i := d.find(args[1])
		if i < 0 {
			return nil, Raise(rt.NewException(rt.KeyError, args[1]))
		}
		d.Keys = append(d.Keys[:i], d.Keys[i+1:]...)
		d.Vals = append(d.Vals[:i], d.Vals[i+1:]...)
		return rt.None, nil
	}))
	rt.Dict.Def(fn("__contains__", []string{"self", "key"}, func(args []any) (any, error) {
		return rt.NewBool(args[0].(*Dict).find(args[1]) >= 0), nil
	}))
	rt.Dict.Def(fn("__len__", selfOnly, func(args []any) (any, error) {
		return rt.NewInt(int64(len(args[0].(*Dict).Keys))), nil
	}))
	rt.Dict.Def(fn("__iter__", selfOnly, func(args []any) (any, error) {
		return &SeqIterator{items: append([]any(nil), args[0].(*Dict).Keys...)}, nil
	}))
}

// ---------------------------------------------------------------------------
// Exceptions and iterators
// ---------------------------------------------------------------------------

func (rt *Runtime) installExceptions() {
	init := fn("__init__", selfOnly, func(args []any) (any, error) {
		exc := args[0].(*Instance)
		exc.Fields["args"] = args[1]
		return rt.None, nil
	})
	init.VarArgs = true
	rt.BaseException.Def(init)
}

func (rt *Runtime) installIterators() {
	rt.Iterator.Def(fn("__iter__", selfOnly, func(args []any) (any, error) {
		return args[0], nil
	}))
	rt.Iterator.Def(fn("__next__", selfOnly, func(args []any) (any, error) {
		it := args[0].(*SeqIterator)
		if it.next >= len(it.items) {
			return nil, rt.stopIteration(rt.None)
		}
		v := it.items[it.next]
		it.next++
		return v, nil
	}))
	rt.installGenerator()
}
