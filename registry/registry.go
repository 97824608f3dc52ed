package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ledgerdocs/procflow/process"
)

// Registry maps process names to their definitions for the lifetime of the process. Definitions hold
// live collaborators and cannot be persisted, so a restarted process has to register them again before
// waiting instances can be resumed.
type Registry struct {
	sync.Mutex

	definitions map[string]*process.Definition
}

// New creates a new registry instance.
func New() *Registry {
	return &Registry{
		definitions: make(map[string]*process.Definition),
	}
}

// Register adds a definition. Registering the same definition again is a no-op, registering a
// different definition under an existing name fails.
func (r *Registry) Register(def *process.Definition) error {
	if def == nil {
		return errors.New("definition is nil")
	}

	r.Lock()
	defer r.Unlock()

	if existing, ok := r.definitions[def.Name()]; ok {
		if existing == def {
			return nil
		}

		return &ErrDefinitionAlreadyRegistered{fmt.Sprintf("process definition with name %q already registered", def.Name())}
	}

	def.Freeze()
	r.definitions[def.Name()] = def

	return nil
}

func (r *Registry) Get(name string) (*process.Definition, error) {
	r.Lock()
	defer r.Unlock()

	if def, ok := r.definitions[name]; ok {
		return def, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrDefinitionNotRegistered, name)
}

// Names returns the registered process names in lexical order.
func (r *Registry) Names() []string {
	r.Lock()
	defer r.Unlock()

	names := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
