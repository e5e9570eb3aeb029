package abi

import "fmt"

// Runtime error type names.
const (
	TypeError      = "TypeError"
	AttributeError = "AttributeError"
	ValueError     = "ValueError"
)

// UnsupportedOperandsMessage is raised when neither side of a binary
// operator handles the operand types.
func UnsupportedOperandsMessage(symbol, left, right string) string {
	return fmt.Sprintf("unsupported operand type(s) for %s: '%s' and '%s'", symbol, left, right)
}

// NoAttributeMessage is raised when attribute lookup fails.
func NoAttributeMessage(typeName, attr string) string {
	return fmt.Sprintf("'%s' object has no attribute '%s'", typeName, attr)
}

// NotSupportedMessage is raised when a container protocol method is
// missing from the receiver's type.
func NotSupportedMessage(typeName, dunder string) string {
	switch dunder {
	case "__setitem__":
		return fmt.Sprintf("'%s' object does not support item assignment", typeName)
	case "__delitem__":
		return fmt.Sprintf("'%s' object doesn't support item deletion", typeName)
	case "__getitem__":
		return fmt.Sprintf("'%s' object is not subscriptable", typeName)
	}
	return fmt.Sprintf("'%s' object does not support %s", typeName, dunder)
}

// UnpackTooFewMessage is raised when unpacking runs out of values.
func UnpackTooFewMessage(expected, got int) string {
	return fmt.Sprintf("not enough values to unpack (expected %d, got %d)", expected, got)
}

// UnpackTooFewStarredMessage is raised when a starred unpack cannot fill
// its fixed targets.
func UnpackTooFewStarredMessage(expected, got int) string {
	return fmt.Sprintf("not enough values to unpack (expected at least %d, got %d)", expected, got)
}

// UnpackTooManyMessage is raised when unpacking finds extra values.
func UnpackTooManyMessage(expected int) string {
	return fmt.Sprintf("too many values to unpack (expected %d)", expected)
}

// NotCallableMessage is raised when calling a value with no call protocol.
func NotCallableMessage(typeName string) string {
	return fmt.Sprintf("'%s' object is not callable", typeName)
}

// TooManyPositionalMessage reports surplus positional arguments.
func TooManyPositionalMessage(fn string, max, given int) string {
	return fmt.Sprintf("%s() takes %d positional arguments but %d were given", fn, max, given)
}

// MissingArgumentMessage reports a required parameter with no value.
func MissingArgumentMessage(fn, param string) string {
	return fmt.Sprintf("%s() missing required argument: '%s'", fn, param)
}

// UnexpectedKeywordMessage reports a keyword that matches no parameter.
func UnexpectedKeywordMessage(fn, kw string) string {
	return fmt.Sprintf("%s() got an unexpected keyword argument '%s'", fn, kw)
}

// MultipleValuesMessage reports a parameter bound both positionally and by
// keyword.
func MultipleValuesMessage(fn, param string) string {
	return fmt.Sprintf("%s() got multiple values for argument '%s'", fn, param)
}
