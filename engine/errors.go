package engine

import (
	"errors"
	"fmt"
)

// ErrProcessNotRegistered is returned when an instance refers to a process that has not been registered in
// this process yet. Callers can register the definition and retry.
var ErrProcessNotRegistered = errors.New("process not registered")

// ErrDefinitionMismatch is returned when the registered definition's steps differ from the steps the
// instance was started with.
var ErrDefinitionMismatch = errors.New("process definition does not match instance")

// PreconditionError is returned when an operation does not apply to the instance in its current state.
type PreconditionError struct {
	InstanceID string
	Reason     string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("instance %s: %s", e.InstanceID, e.Reason)
}
