package step

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledgerdocs/procflow/core"
)

var ErrInputRejected = errors.New("input rejected")

// InputError is returned by Human.Complete when validation rejects a submission. The step stays
// pending, so the caller can prompt again.
type InputError struct {
	Step string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("step %q: %v: %v", e.Step, ErrInputRejected, e.Err)
}

func (e *InputError) Unwrap() []error {
	return []error{ErrInputRejected, e.Err}
}

type (
	ValidateFunc func(ctx context.Context, instance *core.Instance, input Input) error
	ApplyFunc    func(ctx context.Context, instance *core.Instance, input Input) error
)

// Human suspends the instance until an out-of-band submission completes it.
type Human struct {
	name     string
	validate ValidateFunc
	apply    ApplyFunc
}

var _ Task = (*Human)(nil)

type HumanOption func(*Human)

// WithValidation sets the input check run before apply. Without it every submission is accepted.
func WithValidation(validate ValidateFunc) HumanOption {
	return func(h *Human) {
		h.validate = validate
	}
}

func NewHuman(name string, apply ApplyFunc, opts ...HumanOption) *Human {
	if apply == nil {
		panic("step: nil apply for human step " + name)
	}

	h := &Human{
		name:     name,
		validate: func(context.Context, *core.Instance, Input) error { return nil },
		apply:    apply,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

func (h *Human) Name() string {
	return h.name
}

// Execute always suspends. Apply only ever runs from Complete.
func (h *Human) Execute(ctx context.Context, instance *core.Instance) Result {
	instance.WaitingForUser = true
	instance.CurrentUserStepName = h.name

	return Waiting
}

// Complete validates and applies a user submission.
//
// A rejected submission returns Failed together with an *InputError and leaves the waiting flags
// untouched. An apply error records the message on the instance and returns Failed with a nil error.
func (h *Human) Complete(ctx context.Context, instance *core.Instance, input Input) (Result, error) {
	if err := h.validate(ctx, instance, input); err != nil {
		return Failed, &InputError{Step: h.name, Err: err}
	}

	if err := h.applySafe(ctx, instance, input); err != nil {
		instance.Error = err.Error()
		return Failed, nil
	}

	instance.WaitingForUser = false
	instance.CurrentUserStepName = ""

	return Completed, nil
}

func (h *Human) applySafe(ctx context.Context, instance *core.Instance, input Input) error {
	return run(ctx, instance, func(ctx context.Context, instance *core.Instance) error {
		return h.apply(ctx, instance, input)
	})
}
