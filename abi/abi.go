// Package abi names the runtime library the lowering layer emits calls
// against: host classes, their methods and static fields, and the text of
// every runtime error message the emitted code can raise.
//
// Both the lowering and the runtime simulator refer to these values, so a
// specialized call site and the generic call protocol always agree on
// descriptors and message wording.
package abi

import "github.com/chazu/pylower/host"

// ---------------------------------------------------------------------------
// Host classes
// ---------------------------------------------------------------------------

const (
	ObjectClass         = "pyrt/Object" // interface implemented by every value
	TypeClass           = "pyrt/Type"
	FunctionClass       = "pyrt/Function" // interface; types are functions too
	BoundFunctionClass  = "pyrt/BoundFunction"
	NoneClass           = "pyrt/None"
	NotImplementedClass = "pyrt/NotImplemented"
	BoolClass           = "pyrt/Bool"
	IntClass            = "pyrt/Int"
	StrClass            = "pyrt/Str"
	TupleClass          = "pyrt/Tuple"
	ListClass           = "pyrt/List"
	DictClass           = "pyrt/Dict"
	SetClass            = "pyrt/Set"
	SliceClass          = "pyrt/Slice"
	BaseExceptionClass  = "pyrt/BaseException"
	StopIterationClass  = "pyrt/StopIteration"
	GeneratorClass      = "pyrt/Generator"
	ErrorsClass         = "pyrt/Errors"  // static error factories
	RuntimeClass        = "pyrt/Runtime" // static helpers
)

// ---------------------------------------------------------------------------
// Object protocol
// ---------------------------------------------------------------------------

func objectMethod(name string, ret string, params ...string) host.MethodRef {
	return host.MethodRef{Owner: ObjectClass, Name: name, Params: params, Return: ret, Interface: true}
}

var (
	GetType             = objectMethod("$getType", TypeClass)
	GetAttributeOrError = objectMethod("$getAttributeOrError", ObjectClass, host.TypeString)
	GetAttributeOrNull  = objectMethod("$getAttributeOrNull", ObjectClass, host.TypeString)
)

// Call is the uniform call convention: positional list, keyword dict (may
// be null) and the caller instance used for zero-argument super().
var Call = host.MethodRef{
	Owner:     FunctionClass,
	Name:      "$call",
	Params:    []string{ListClass, DictClass, ObjectClass},
	Return:    ObjectClass,
	Interface: true,
}

var (
	BoundFunctionInit = host.MethodRef{
		Owner:  BoundFunctionClass,
		Name:   "<init>",
		Params: []string{ObjectClass, FunctionClass},
		Return: host.TypeVoid,
	}
	BoundFunctionInstance = host.MethodRef{Owner: BoundFunctionClass, Name: "getInstance", Return: ObjectClass}
)

var (
	GetDefiningTypeOrNull = host.MethodRef{Owner: TypeClass, Name: "getDefiningTypeOrNull", Params: []string{host.TypeString}, Return: TypeClass}
	IsInstance            = host.MethodRef{Owner: TypeClass, Name: "isInstance", Params: []string{ObjectClass}, Return: host.TypeBoolean}
	TypeName              = host.MethodRef{Owner: TypeClass, Name: "getTypeName", Return: host.TypeString}
	// GetDunderOrError looks a protocol method up on a receiver's type and
	// raises AttributeError naming that type when it is missing.
	GetDunderOrError = host.MethodRef{Owner: TypeClass, Name: "$getDunderOrError", Params: []string{host.TypeString}, Return: ObjectClass}
)

// ---------------------------------------------------------------------------
// Value factories and singletons
// ---------------------------------------------------------------------------

var (
	BoolValueOf = host.MethodRef{Owner: BoolClass, Name: "valueOf", Params: []string{host.TypeBoolean}, Return: BoolClass}
	IntValueOf  = host.MethodRef{Owner: IntClass, Name: "valueOf", Params: []string{host.TypeLong}, Return: IntClass}
	StrValueOf  = host.MethodRef{Owner: StrClass, Name: "valueOf", Params: []string{host.TypeString}, Return: StrClass}
)

var (
	None           = host.FieldRef{Owner: NoneClass, Name: "INSTANCE", Type: NoneClass}
	NotImplemented = host.FieldRef{Owner: NotImplementedClass, Name: "INSTANCE", Type: NotImplementedClass}
	True           = host.FieldRef{Owner: BoolClass, Name: "TRUE", Type: BoolClass}
	False          = host.FieldRef{Owner: BoolClass, Name: "FALSE", Type: BoolClass}
)

// TypeObject returns the static field holding the type object of a host
// class.
func TypeObject(class string) host.FieldRef {
	return host.FieldRef{Owner: class, Name: "$TYPE", Type: TypeClass}
}

// ---------------------------------------------------------------------------
// Collections
// ---------------------------------------------------------------------------

// CollectionInit returns the sized constructor of a collection class.
func CollectionInit(class string) host.MethodRef {
	return host.MethodRef{Owner: class, Name: "<init>", Params: []string{host.TypeInt}, Return: host.TypeVoid}
}

// ReverseAdd returns the method that prepends a value to a sequence or
// adds it to a set. Popping values off the operand stack into it leaves
// them in stack order.
func ReverseAdd(class string) host.MethodRef {
	return host.MethodRef{Owner: class, Name: "reverseAdd", Params: []string{ObjectClass}, Return: host.TypeVoid}
}

// ListGet counts negative indices from the end. ListCut returns a new list
// of the items after the first head and before the last tail.
var (
	ListAdd    = host.MethodRef{Owner: ListClass, Name: "add", Params: []string{ObjectClass}, Return: host.TypeVoid}
	ListExtend = host.MethodRef{Owner: ListClass, Name: "extend", Params: []string{ObjectClass}, Return: host.TypeVoid}
	ListGet    = host.MethodRef{Owner: ListClass, Name: "get", Params: []string{host.TypeInt}, Return: ObjectClass}
	ListSize   = host.MethodRef{Owner: ListClass, Name: "size", Return: host.TypeInt}
	ListCut    = host.MethodRef{Owner: ListClass, Name: "cut", Params: []string{host.TypeInt, host.TypeInt}, Return: ListClass}
	DictPut    = host.MethodRef{Owner: DictClass, Name: "put", Params: []string{ObjectClass, ObjectClass}, Return: host.TypeVoid}
	SliceInit  = host.MethodRef{Owner: SliceClass, Name: "<init>", Params: []string{ObjectClass, ObjectClass, ObjectClass}, Return: host.TypeVoid}
)

// ---------------------------------------------------------------------------
// Exceptions and runtime helpers
// ---------------------------------------------------------------------------

var (
	StopIterationValue = host.MethodRef{Owner: StopIterationClass, Name: "getValue", Return: ObjectClass}
	SetCause           = host.MethodRef{Owner: BaseExceptionClass, Name: "$setCause", Params: []string{ObjectClass}, Return: BaseExceptionClass}
	CoerceToType       = host.MethodRef{Owner: RuntimeClass, Name: "coerceToType", Params: []string{ObjectClass, TypeClass}, Return: ObjectClass}
	CurrentTraceback   = host.MethodRef{Owner: RuntimeClass, Name: "currentTraceback", Return: ObjectClass}
)

func errorFactory(name string, params ...string) host.MethodRef {
	return host.MethodRef{Owner: ErrorsClass, Name: name, Params: params, Return: BaseExceptionClass}
}

var (
	UnsupportedOperands = errorFactory("unsupportedOperands", host.TypeString, ObjectClass, ObjectClass)
	NoAttribute         = errorFactory("noAttribute", ObjectClass, host.TypeString)
	UnpackTooFew        = errorFactory("unpackTooFew", host.TypeInt, host.TypeInt)
	UnpackTooMany       = errorFactory("unpackTooMany", host.TypeInt)
	UnpackTooFewStarred = errorFactory("unpackTooFewStarred", host.TypeInt, host.TypeInt)
	NotSupported        = errorFactory("notSupported", ObjectClass, host.TypeString)
)

// ---------------------------------------------------------------------------
// Generator frame fields
// ---------------------------------------------------------------------------

var (
	YieldedValue      = host.FieldRef{Owner: GeneratorClass, Name: "yieldedValue", Type: ObjectClass}
	GeneratorStack    = host.FieldRef{Owner: GeneratorClass, Name: "generatorStack", Type: ListClass}
	GeneratorState    = host.FieldRef{Owner: GeneratorClass, Name: "generatorState", Type: host.TypeInt}
	YieldFromIterator = host.FieldRef{Owner: GeneratorClass, Name: "yieldFromIterator", Type: ObjectClass}
	SentValue         = host.FieldRef{Owner: GeneratorClass, Name: "sentValue", Type: ObjectClass}
	ThrownValue       = host.FieldRef{Owner: GeneratorClass, Name: "thrownValue", Type: BaseExceptionClass}
)

// Generator states other than resumption points.
const (
	StateStart    = 0
	StateFinished = -1
)
