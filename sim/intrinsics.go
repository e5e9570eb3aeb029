package sim

import (
	"github.com/chazu/pylower/abi"
	"github.com/chazu/pylower/host"
)

// intrinsic implements a runtime-library method. args holds the receiver
// first for instance methods.
type intrinsic func(rt *Runtime, args []any) (any, error)

// intrinsics is keyed by owner and method name.
var intrinsics = map[string]intrinsic{}

func def(m host.MethodRef, f intrinsic) {
	intrinsics[m.Owner+"."+m.Name] = f
}

func boolean(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func init() {
	// Object protocol.
	def(abi.GetType, func(rt *Runtime, args []any) (any, error) {
		c := rt.TypeOf(args[0])
		if c == nil {
			return nil, faultf("$getType on host value %T", args[0])
		}
		return c, nil
	})
	def(abi.GetAttributeOrError, func(rt *Runtime, args []any) (any, error) {
		return rt.Attr(args[0], args[1].(string))
	})
	def(abi.GetAttributeOrNull, func(rt *Runtime, args []any) (any, error) {
		if v, ok := rt.GetAttr(args[0], args[1].(string)); ok {
			return v, nil
		}
		return nil, nil
	})
	def(abi.Call, func(rt *Runtime, args []any) (any, error) {
		list, ok := args[1].(*Seq)
		if !ok {
			return nil, faultf("$call positional arguments are %T", args[1])
		}
		var kw *Dict
		if args[2] != nil {
			kw = args[2].(*Dict)
		}
		return rt.CallValue(args[0], list.Items, kw)
	})
	def(abi.BoundFunctionInit, func(rt *Runtime, args []any) (any, error) {
		b := args[0].(*BoundFunction)
		b.Self, b.Func = args[1], args[2]
		return nil, nil
	})
	def(abi.BoundFunctionInstance, func(rt *Runtime, args []any) (any, error) {
		return args[0].(*BoundFunction).Self, nil
	})

	// Types.
	def(abi.GetDefiningTypeOrNull, func(rt *Runtime, args []any) (any, error) {
		if d := args[0].(*Class).DefiningClass(args[1].(string)); d != nil {
			return d, nil
		}
		return nil, nil
	})
	def(abi.IsInstance, func(rt *Runtime, args []any) (any, error) {
		return boolean(rt.IsInstance(args[1], args[0].(*Class))), nil
	})
	def(abi.GetDunderOrError, func(rt *Runtime, args []any) (any, error) {
		c, name := args[0].(*Class), args[1].(string)
		if v, ok := rt.GetAttr(c, name); ok {
			return v, nil
		}
		return nil, rt.raisef(rt.AttributeError, "%s", abi.NoAttributeMessage(c.Name, name))
	})
	def(abi.TypeName, func(rt *Runtime, args []any) (any, error) {
		return args[0].(*Class).Name, nil
	})

	// Value factories.
	def(abi.BoolValueOf, func(rt *Runtime, args []any) (any, error) {
		return rt.NewBool(args[0].(int64) != 0), nil
	})
	def(abi.IntValueOf, func(rt *Runtime, args []any) (any, error) {
		return rt.NewInt(args[0].(int64)), nil
	})
	def(abi.StrValueOf, func(rt *Runtime, args []any) (any, error) {
		return rt.NewStr(args[0].(string)), nil
	})

	// Collections.
	for _, class := range []string{abi.TupleClass, abi.ListClass, abi.SetClass, abi.DictClass} {
		def(abi.CollectionInit(class), func(rt *Runtime, args []any) (any, error) {
			return nil, nil
		})
	}
	for _, class := range []string{abi.TupleClass, abi.ListClass} {
		def(abi.ReverseAdd(class), func(rt *Runtime, args []any) (any, error) {
			s := args[0].(*Seq)
			s.Items = append([]any{args[1]}, s.Items...)
			return nil, nil
		})
	}
	def(abi.ReverseAdd(abi.SetClass), func(rt *Runtime, args []any) (any, error) {
		args[0].(*Seq).setAdd(args[1])
		return nil, nil
	})
	def(abi.ListAdd, func(rt *Runtime, args []any) (any, error) {
		s := args[0].(*Seq)
		s.Items = append(s.Items, args[1])
		return nil, nil
	})
	def(abi.ListExtend, func(rt *Runtime, args []any) (any, error) {
		items, err := rt.Iterate(args[1])
		if err != nil {
			return nil, err
		}
		s := args[0].(*Seq)
		s.Items = append(s.Items, items...)
		return nil, nil
	})
	def(abi.ListGet, func(rt *Runtime, args []any) (any, error) {
		s := args[0].(*Seq)
		i := int(args[1].(int64))
		if i < 0 {
			i += len(s.Items)
		}
		if i < 0 || i >= len(s.Items) {
			return nil, faultf("list get %d out of range (len=%d)", args[1], len(s.Items))
		}
		return s.Items[i], nil
	})
	def(abi.ListSize, func(rt *Runtime, args []any) (any, error) {
		return int64(len(args[0].(*Seq).Items)), nil
	})
	def(abi.ListCut, func(rt *Runtime, args []any) (any, error) {
		s := args[0].(*Seq)
		head, tail := int(args[1].(int64)), int(args[2].(int64))
		if head+tail > len(s.Items) {
			return nil, faultf("list cut %d+%d exceeds len=%d", head, tail, len(s.Items))
		}
		return rt.NewList(append([]any(nil), s.Items[head:len(s.Items)-tail]...)...), nil
	})
	def(abi.DictPut, func(rt *Runtime, args []any) (any, error) {
		args[0].(*Dict).Put(args[1], args[2])
		return nil, nil
	})
	def(abi.SliceInit, func(rt *Runtime, args []any) (any, error) {
		s := args[0].(*Slice)
		s.Start, s.Stop, s.Step = args[1], args[2], args[3]
		return nil, nil
	})

	// Exceptions and helpers.
	def(abi.StopIterationValue, func(rt *Runtime, args []any) (any, error) {
		return args[0].(*Instance).Fields["value"], nil
	})
	def(abi.SetCause, func(rt *Runtime, args []any) (any, error) {
		exc := args[0].(*Instance)
		var cause any = rt.None
		if args[1] != any(rt.None) {
			c, err := rt.exceptionOf(args[1])
			if err != nil {
				return nil, err
			}
			cause = c
		}
		exc.Fields["__cause__"] = cause
		return exc, nil
	})
	def(abi.CoerceToType, func(rt *Runtime, args []any) (any, error) {
		t := args[1].(*Class)
		if args[0] == nil || rt.IsInstance(args[0], t) {
			return args[0], nil
		}
		return nil, rt.raisef(rt.TypeError, "expected %s, got %s", t.Name, rt.TypeName(args[0]))
	})
	def(abi.CurrentTraceback, func(rt *Runtime, args []any) (any, error) {
		return rt.None, nil
	})

	// Error factories.
	def(abi.UnsupportedOperands, func(rt *Runtime, args []any) (any, error) {
		msg := abi.UnsupportedOperandsMessage(args[0].(string), rt.TypeName(args[1]), rt.TypeName(args[2]))
		return rt.Errorf(rt.TypeError, "%s", msg), nil
	})
	def(abi.NoAttribute, func(rt *Runtime, args []any) (any, error) {
		return rt.noAttribute(args[0], args[1].(string)), nil
	})
	def(abi.NotSupported, func(rt *Runtime, args []any) (any, error) {
		msg := abi.NotSupportedMessage(rt.TypeName(args[0]), args[1].(string))
		return rt.Errorf(rt.TypeError, "%s", msg), nil
	})
	def(abi.UnpackTooFew, func(rt *Runtime, args []any) (any, error) {
		msg := abi.UnpackTooFewMessage(int(args[0].(int64)), int(args[1].(int64)))
		return rt.Errorf(rt.ValueError, "%s", msg), nil
	})
	def(abi.UnpackTooMany, func(rt *Runtime, args []any) (any, error) {
		return rt.Errorf(rt.ValueError, "%s", abi.UnpackTooManyMessage(int(args[0].(int64)))), nil
	})
	def(abi.UnpackTooFewStarred, func(rt *Runtime, args []any) (any, error) {
		msg := abi.UnpackTooFewStarredMessage(int(args[0].(int64)), int(args[1].(int64)))
		return rt.Errorf(rt.ValueError, "%s", msg), nil
	})
}

// allocate implements NEW.
func (rt *Runtime) allocate(hostClass string) (any, error) {
	c, ok := rt.classes[hostClass]
	if !ok {
		return nil, faultf("NEW of unknown class %s", hostClass)
	}
	switch c {
	case rt.Tuple, rt.List, rt.Set:
		return &Seq{class: c}, nil
	case rt.Dict:
		return &Dict{}, nil
	case rt.Slice:
		return &Slice{}, nil
	case rt.Method:
		return &BoundFunction{}, nil
	}
	if _, builtin := rt.representation(c); builtin {
		return nil, faultf("NEW of builtin class %s", hostClass)
	}
	return &Instance{Class: c, Fields: make(map[string]any)}, nil
}

// invoke dispatches a host invocation. Runtime-library methods are
// intrinsics; anything else is looked up by name: statically on the owner
// class, virtually on the receiver's class.
func (rt *Runtime) invoke(op host.Opcode, m *host.MethodRef, args []any) (any, error) {
	if f, ok := intrinsics[m.Owner+"."+m.Name]; ok {
		return f(rt, args)
	}
	var c *Class
	switch op {
	case host.OpINVOKESTATIC, host.OpINVOKESPECIAL:
		var ok bool
		if c, ok = rt.classes[m.Owner]; !ok {
			return nil, faultf("invoke on unknown class %s", m.Owner)
		}
	default:
		if args[0] == nil {
			return nil, faultf("invoke %s on null", m)
		}
		if c = rt.TypeOf(args[0]); c == nil {
			return nil, faultf("invoke %s on host value %T", m, args[0])
		}
	}
	v, ok := c.Lookup(m.Name)
	if !ok {
		return nil, faultf("%s has no method %s", c.Name, m.Name)
	}
	f, ok := v.(*Function)
	if !ok {
		return nil, faultf("%s.%s is not a function", c.Name, m.Name)
	}
	return rt.callHost(f, args)
}
