package catalog

import "github.com/chazu/pylower/abi"

// Builtin types. Object is also the sentinel for a value whose type is
// not known statically: lookups on it only find the universal methods.
var (
	Object             = NewType("object", abi.ObjectClass, nil)
	TypeType           = NewType("type", abi.TypeClass, Object)
	Function           = NewType("function", abi.FunctionClass, Object)
	BoundFunction      = NewType("method", abi.BoundFunctionClass, Function)
	NoneType           = NewType("NoneType", abi.NoneClass, Object)
	NotImplementedType = NewType("NotImplementedType", abi.NotImplementedClass, Object)
	Int                = NewType("int", abi.IntClass, Object)
	Bool               = NewType("bool", abi.BoolClass, Int)
	Str                = NewType("str", abi.StrClass, Object)
	Tuple              = NewType("tuple", abi.TupleClass, Object)
	List               = NewType("list", abi.ListClass, Object)
	Dict               = NewType("dict", abi.DictClass, Object)
	Set                = NewType("set", abi.SetClass, Object)
	Slice              = NewType("slice", abi.SliceClass, Object)
	BaseException      = NewType("BaseException", abi.BaseExceptionClass, Object)
	StopIteration      = NewType("StopIteration", abi.StopIterationClass, BaseException)
	Generator          = NewType("generator", abi.GeneratorClass, Object)
)

// Builtins lists every builtin type.
func Builtins() []*Type {
	return []*Type{
		Object, TypeType, Function, BoundFunction, NoneType, NotImplementedType,
		Int, Bool, Str, Tuple, List, Dict, Set, Slice,
		BaseException, StopIteration, Generator,
	}
}

func arg(name string, t *Type) Param {
	return Param{Name: name, Type: t}
}

func init() {
	for _, name := range []string{"__eq__", "__ne__"} {
		Object.AddMethod(NewSignature(name, Virtual, Object, arg("other", Object)).NotImplementedPossible())
	}

	for _, name := range []string{"__add__", "__sub__", "__mul__"} {
		Int.AddMethod(NewSignature(name, Virtual, Int, arg("other", Int)))
	}
	for _, name := range []string{"__lt__", "__le__", "__gt__", "__ge__"} {
		Int.AddMethod(NewSignature(name, Virtual, Bool, arg("other", Int)))
	}
	Int.AddMethod(NewSignature("__eq__", Virtual, Object, arg("other", Object)).NotImplementedPossible())
	Int.AddMethod(NewSignature("__neg__", Virtual, Int))
	Int.AddMethod(NewSignature("__bool__", Virtual, Bool))

	Str.AddMethod(NewSignature("__add__", Virtual, Str, arg("other", Str)))
	Str.AddMethod(NewSignature("__len__", Virtual, Int))
	Str.AddMethod(NewSignature("__eq__", Virtual, Object, arg("other", Object)).NotImplementedPossible())

	Tuple.AddMethod(NewSignature("__getitem__", Virtual, Object, arg("index", Int)))
	Tuple.AddMethod(NewSignature("__len__", Virtual, Int))

	List.AddMethod(NewSignature("__getitem__", Virtual, Object, arg("index", Int)))
	List.AddMethod(NewSignature("__len__", Virtual, Int))
	List.AddMethod(NewSignature("__contains__", Virtual, Bool, arg("item", Object)))
	List.AddMethod(NewSignature("append", Virtual, NoneType, arg("item", Object)))

	Dict.AddMethod(NewSignature("__getitem__", Virtual, Object, arg("key", Object)))
	Dict.AddMethod(NewSignature("__contains__", Virtual, Bool, arg("key", Object)))
}
