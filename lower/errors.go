package lower

import (
	"errors"
	"fmt"
)

// Translation error kinds, for use with errors.Is.
var (
	ErrArgumentCount = errors.New("argument count")
	ErrKeyword       = errors.New("keyword argument")
	ErrUnpackCount   = errors.New("unpack count")
	ErrStackJoin     = errors.New("stack join")
	ErrStackDepth    = errors.New("stack depth")
	ErrControlFlow   = errors.New("control flow")
	ErrDialect       = errors.New("dialect")
	ErrUnsupported   = errors.New("unsupported")
)

// TranslationError reports input that cannot be lowered. The first one
// recorded aborts the unit.
type TranslationError struct {
	Op     string
	Offset int
	Kind   error
	Msg    string
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("lower: %s at %d: %v: %s", e.Op, e.Offset, e.Kind, e.Msg)
}

func (e *TranslationError) Unwrap() error {
	return e.Kind
}
