// Package step defines the unit of work driven by the engine. Steps are named, stateless and
// re-entrant; all execution state lives on the instance they are handed.
package step

import (
	"context"

	"github.com/ledgerdocs/procflow/core"
)

type Result int

const (
	Completed Result = iota
	Waiting
	Failed
)

func (r Result) String() string {
	switch r {
	case Completed:
		return "completed"
	case Waiting:
		return "waiting"
	case Failed:
		return "failed"
	}

	return "unknown"
}

// Task is the only contract the engine relies on.
type Task interface {
	// Name identifies the step in logs and the audit trail, and matches a resumed human step.
	Name() string

	// Execute runs the step against the instance. Implementations may read and write the instance's
	// variables and set its error, but must not touch cursor or status.
	Execute(ctx context.Context, instance *core.Instance) Result
}

// Input is a flat key/value submission resuming a human step.
type Input map[string]any

// AsHuman returns the task as a human step, if it is one.
func AsHuman(t Task) (*Human, bool) {
	h, ok := t.(*Human)
	return h, ok
}
