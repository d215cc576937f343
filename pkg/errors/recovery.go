// Panic recovery. Block-processing workers and expression evaluation
// convert unexpected panics into structured errors so a single bad tile
// cannot take down a long-running job.

package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError is an error built from a recovered panic, carrying the
// original panic value and the stack at the point of panic.
type PanicError struct {
	// PanicValue is the value passed to panic().
	PanicValue interface{}

	// StackTrace captured when the panic was recovered.
	StackTrace string

	// Operation identifies where the panic was recovered.
	Operation string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.PanicValue)
}

// Unwrap returns nil; a PanicError wraps no other error.
func (e *PanicError) Unwrap() error {
	return nil
}

// String renders the error together with its stack trace.
func (e *PanicError) String() string {
	return fmt.Sprintf("panic in %s: %v\nStack trace:\n%s",
		e.Operation, e.PanicValue, e.StackTrace)
}

// NewPanicError captures the current stack into a PanicError.
func NewPanicError(operation string, panicValue interface{}) *PanicError {
	return &PanicError{
		PanicValue: panicValue,
		StackTrace: string(debug.Stack()),
		Operation:  operation,
	}
}

// Recover converts a panic into an error on the named return value:
//
//	func Apply(...) (err error) {
//	    defer errors.Recover(&err, "applier.Apply")
//	    ...
//	}
//
// When the function already carries an error, the panic wraps it so
// neither failure is lost.
func Recover(err *error, operation string) {
	if r := recover(); r != nil {
		if *err != nil {
			*err = fmt.Errorf("panic in %s: %v (original error: %w)",
				operation, r, *err)
			return
		}
		*err = NewPanicError(operation, r)
	}
}

// SafeExecute runs fn, converting any panic into a PanicError.
func SafeExecute(operation string, fn func() error) (err error) {
	defer Recover(&err, operation)
	return fn()
}
