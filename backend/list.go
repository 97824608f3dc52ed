package backend

import "github.com/ledgerdocs/procflow/core"

type ListOptions struct {
	Status      core.Status
	ProcessName string
	Limit       int
}

type ListOption func(o *ListOptions)

func WithStatus(s core.Status) ListOption {
	return func(o *ListOptions) {
		o.Status = s
	}
}

func WithProcessName(name string) ListOption {
	return func(o *ListOptions) {
		o.ProcessName = name
	}
}

func WithLimit(limit int) ListOption {
	return func(o *ListOptions) {
		o.Limit = limit
	}
}

func ApplyListOptions(opts ...ListOption) ListOptions {
	var o ListOptions
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// Matches reports whether the instance passes the status and process filters. Limit is not considered.
func (o ListOptions) Matches(i *core.Instance) bool {
	if o.Status != "" && i.Status != o.Status {
		return false
	}

	if o.ProcessName != "" && i.ProcessName != o.ProcessName {
		return false
	}

	return true
}
