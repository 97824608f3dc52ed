// Package process holds process definitions: ordered, named lists of steps that serve as reusable
// templates. A definition carries no execution state and may be shared by any number of instances.
package process

import (
	"fmt"
	"sync/atomic"

	"github.com/ledgerdocs/procflow/step"
)

type Definition struct {
	name   string
	steps  []step.Task
	frozen atomic.Bool
}

func New(name string) *Definition {
	if name == "" {
		panic("process: definition name must not be empty")
	}

	return &Definition{name: name}
}

// AddStep appends a step. Definitions are built once at startup, so misuse panics.
func (d *Definition) AddStep(t step.Task) *Definition {
	if d.frozen.Load() {
		panic(fmt.Sprintf("process: definition %q is frozen", d.name))
	}

	if t == nil {
		panic(fmt.Sprintf("process: nil step added to %q", d.name))
	}

	for _, s := range d.steps {
		if s.Name() == t.Name() {
			panic(fmt.Sprintf("process: duplicate step %q in %q", t.Name(), d.name))
		}
	}

	d.steps = append(d.steps, t)

	return d
}

// Freeze prevents further changes. Called once the definition is handed to the engine.
func (d *Definition) Freeze() {
	d.frozen.Store(true)
}

func (d *Definition) Name() string {
	return d.name
}

func (d *Definition) Len() int {
	return len(d.steps)
}

// Step returns the step at index i, or false if i is out of range.
func (d *Definition) Step(i int) (step.Task, bool) {
	if i < 0 || i >= len(d.steps) {
		return nil, false
	}

	return d.steps[i], true
}

func (d *Definition) StepNames() []string {
	names := make([]string, len(d.steps))
	for i, s := range d.steps {
		names[i] = s.Name()
	}

	return names
}
