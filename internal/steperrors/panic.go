package steperrors

import (
	"fmt"
)

// PanicError is produced when a step panics. It keeps the stack of the panicking goroutine.
type PanicError struct {
	message    string
	stacktrace string
}

func (pe *PanicError) Error() string {
	return pe.message
}

func (pe *PanicError) Stacktrace() string {
	return pe.stacktrace
}

func NewPanicError(msg string) *PanicError {
	return &PanicError{
		message: msg,
	}
}

// FromPanic converts a recovered value into a *PanicError. It has to be called from the deferred
// function that recovered, so the captured stack still contains the panicking frames.
func FromPanic(r any) *PanicError {
	var msg string
	switch v := r.(type) {
	case error:
		msg = v.Error()
	default:
		msg = fmt.Sprint(v)
	}

	return &PanicError{
		message:    fmt.Sprintf("panic: %s", msg),
		stacktrace: stack(2),
	}
}
