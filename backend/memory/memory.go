// Package memory provides an in-process backend. State is lost when the process exits.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ledgerdocs/procflow/audit"
	"github.com/ledgerdocs/procflow/backend"
	"github.com/ledgerdocs/procflow/core"
	"github.com/ledgerdocs/procflow/internal/metrickeys"
	"github.com/ledgerdocs/procflow/metrics"
)

type instanceKey struct {
	tenantID   string
	instanceID string
}

type memoryBackend struct {
	mu sync.RWMutex

	instances map[instanceKey]*core.Instance
	audit     map[instanceKey][]*audit.Entry

	options *backend.Options
}

func NewMemoryBackend(opts ...backend.BackendOption) *memoryBackend {
	return &memoryBackend{
		instances: make(map[instanceKey]*core.Instance),
		audit:     make(map[instanceKey][]*audit.Entry),
		options:   backend.ApplyOptions(opts...),
	}
}

var _ backend.Backend = (*memoryBackend)(nil)

func (mb *memoryBackend) CreateInstance(ctx context.Context, instance *core.Instance) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	k := instanceKey{instance.TenantID, instance.ID}
	if _, ok := mb.instances[k]; ok {
		return backend.ErrInstanceAlreadyExists
	}

	instance.Version = 1
	mb.instances[k] = instance.Clone()

	return nil
}

func (mb *memoryBackend) GetInstance(ctx context.Context, tenantID, instanceID string) (*core.Instance, error) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	i, ok := mb.instances[instanceKey{tenantID, instanceID}]
	if !ok {
		return nil, backend.ErrInstanceNotFound
	}

	return i.Clone(), nil
}

func (mb *memoryBackend) UpdateInstance(ctx context.Context, instance *core.Instance) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	k := instanceKey{instance.TenantID, instance.ID}
	stored, ok := mb.instances[k]
	if !ok {
		return backend.ErrInstanceNotFound
	}

	if stored.Version != instance.Version {
		return fmt.Errorf("instance %s at version %d, have %d: %w", instance.ID, stored.Version, instance.Version, backend.ErrVersionConflict)
	}

	instance.Version++
	mb.instances[k] = instance.Clone()

	return nil
}

func (mb *memoryBackend) ListInstances(ctx context.Context, tenantID string, opts ...backend.ListOption) ([]*core.Instance, error) {
	o := backend.ApplyListOptions(opts...)

	mb.mu.RLock()
	defer mb.mu.RUnlock()

	var r []*core.Instance
	for k, i := range mb.instances {
		if k.tenantID != tenantID || !o.Matches(i) {
			continue
		}

		r = append(r, i.Clone())
	}

	sort.SliceStable(r, func(a, b int) bool {
		if r[a].CreatedAt.Equal(r[b].CreatedAt) {
			return r[a].ID > r[b].ID
		}

		return r[a].CreatedAt.After(r[b].CreatedAt)
	})

	if o.Limit > 0 && len(r) > o.Limit {
		r = r[:o.Limit]
	}

	return r, nil
}

func (mb *memoryBackend) AppendAudit(ctx context.Context, entry *audit.Entry) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	k := instanceKey{entry.TenantID, entry.EntityID}
	e := *entry
	mb.audit[k] = append(mb.audit[k], &e)

	return nil
}

func (mb *memoryBackend) AuditTrail(ctx context.Context, tenantID, entityID string) ([]*audit.Entry, error) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	entries := mb.audit[instanceKey{tenantID, entityID}]
	r := make([]*audit.Entry, 0, len(entries))
	for _, e := range entries {
		c := *e
		r = append(r, &c)
	}

	return r, nil
}

func (mb *memoryBackend) Metrics() metrics.Client {
	return mb.options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: "memory"})
}

func (mb *memoryBackend) Options() *backend.Options {
	return mb.options
}

func (mb *memoryBackend) Close() error {
	return nil
}
