package script

import (
	"errors"
	"fmt"

	"github.com/roach88/reentry/internal/ir"
)

// ErrFail is wrapped by the error a `fail` action produces.
var ErrFail = errors.New("routine failed")

// Error is a routine-body failure at a specific action.
type Error struct {
	Routine string
	Step    int // 0-based index into the body
	Op      ir.Op
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s[%d] %s: %s", e.Routine, e.Step, e.Op, e.Message)
	if e.Err != nil && !errors.Is(e.Err, ErrFail) {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsFail reports whether err came from an explicit `fail` action.
func IsFail(err error) bool {
	return errors.Is(err, ErrFail)
}
