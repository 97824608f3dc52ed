package step

import (
	"context"

	"github.com/ledgerdocs/procflow/core"
	"github.com/ledgerdocs/procflow/internal/steperrors"
)

// ActionFunc is the body of an automated step.
type ActionFunc func(ctx context.Context, instance *core.Instance) error

// Automated runs synchronously to completion or failure and never suspends.
type Automated struct {
	name string
	do   ActionFunc
}

var _ Task = (*Automated)(nil)

func NewAutomated(name string, do ActionFunc) *Automated {
	if do == nil {
		panic("step: nil action for automated step " + name)
	}

	return &Automated{name: name, do: do}
}

func (a *Automated) Name() string {
	return a.name
}

// Execute runs the action. Errors and panics are recorded on the instance and reported as Failed, so
// the engine never has to deal with step internals.
func (a *Automated) Execute(ctx context.Context, instance *core.Instance) Result {
	if err := run(ctx, instance, a.do); err != nil {
		instance.Error = err.Error()
		return Failed
	}

	return Completed
}

func run(ctx context.Context, instance *core.Instance, fn ActionFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = steperrors.FromPanic(r)
		}
	}()

	return fn(ctx, instance)
}
