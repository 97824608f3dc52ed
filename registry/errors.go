package registry

import "errors"

var ErrDefinitionNotRegistered = errors.New("process definition not registered")

type ErrDefinitionAlreadyRegistered struct {
	msg string
}

func (e *ErrDefinitionAlreadyRegistered) Error() string {
	return e.msg
}
