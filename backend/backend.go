package backend

import (
	"context"
	"errors"

	"github.com/ledgerdocs/procflow/audit"
	"github.com/ledgerdocs/procflow/core"
	"github.com/ledgerdocs/procflow/metrics"
)

var (
	ErrInstanceNotFound      = errors.New("workflow instance not found")
	ErrInstanceAlreadyExists = errors.New("workflow instance already exists")

	// ErrVersionConflict is returned by UpdateInstance when the stored instance has been changed since
	// it was read.
	ErrVersionConflict = errors.New("workflow instance version conflict")
)

// Backend persists workflow instances and their audit trail. All reads are scoped to a tenant; an
// instance owned by a different tenant is reported as not found.
type Backend interface {
	// CreateInstance stores a new instance. On success the instance's Version is set to 1.
	CreateInstance(ctx context.Context, instance *core.Instance) error

	// GetInstance returns the instance with the given id owned by tenantID.
	GetInstance(ctx context.Context, tenantID, instanceID string) (*core.Instance, error)

	// UpdateInstance replaces the stored instance if its version still equals instance.Version, and
	// increments instance.Version on success. Otherwise it returns ErrVersionConflict.
	UpdateInstance(ctx context.Context, instance *core.Instance) error

	// ListInstances returns the instances of a tenant, newest first.
	ListInstances(ctx context.Context, tenantID string, opts ...ListOption) ([]*core.Instance, error)

	audit.Sink
	audit.Reader

	// Metrics returns the configured metrics client for the backend
	Metrics() metrics.Client

	// Options returns the configured options for the backend
	Options() *Options

	// Close closes any underlying resources
	Close() error
}
