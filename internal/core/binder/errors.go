package binder

import (
	"errors"
	"fmt"
)

var (
	ErrUnresolvedField = errors.New("unresolved field")
	ErrNotStruct       = errors.New("value is not a struct")
	ErrMissingSchema   = errors.New("missing schema")
)

// InvariantViolation is the panic value raised when the configured pk mode,
// insert mode and field layout disagree. It signals a bug in how the layout
// was computed and is never retryable.
type InvariantViolation struct {
	Msg string
}

func (e *InvariantViolation) Error() string {
	return "binder invariant violated: " + e.Msg
}

func invariant(format string, args ...any) {
	panic(&InvariantViolation{Msg: fmt.Sprintf(format, args...)})
}
