package test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerdocs/procflow/audit"
	"github.com/ledgerdocs/procflow/backend"
	"github.com/ledgerdocs/procflow/core"
	"github.com/stretchr/testify/require"
)

func newInstance(tenantID string, createdAt time.Time) *core.Instance {
	return core.NewInstance(
		uuid.NewString(),
		tenantID,
		"document-analysis",
		[]string{"PrimaryExtraction", "SecondaryExtraction", "Review"},
		core.Variables{"documentId": "doc-1", "primaryExtractionSucceeded": true},
		createdAt.UTC().Truncate(time.Millisecond),
	)
}

// BackendTest runs the conformance suite against a backend. setup is called once per test case and should
// return a backend without any instances of the tenants used by the suite.
func BackendTest(t *testing.T, setup func() backend.Backend, teardown func(b backend.Backend)) {
	tests := []struct {
		name string
		f    func(t *testing.T, ctx context.Context, b backend.Backend)
	}{
		{
			name: "CreateInstance_SetsVersion",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				i := newInstance("t1", time.Now())

				require.NoError(t, b.CreateInstance(ctx, i))
				require.Equal(t, int64(1), i.Version)
			},
		},
		{
			name: "CreateInstance_SameInstanceIDErrors",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				i := newInstance("t1", time.Now())
				require.NoError(t, b.CreateInstance(ctx, i))

				err := b.CreateInstance(ctx, i)
				require.ErrorIs(t, err, backend.ErrInstanceAlreadyExists)
			},
		},
		{
			name: "GetInstance_ErrorWhenInstanceDoesNotExist",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				_, err := b.GetInstance(ctx, "t1", uuid.NewString())
				require.ErrorIs(t, err, backend.ErrInstanceNotFound)
			},
		},
		{
			name: "GetInstance_ReturnsStoredState",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				i := newInstance("t1", time.Now())
				require.NoError(t, b.CreateInstance(ctx, i))

				got, err := b.GetInstance(ctx, "t1", i.ID)
				require.NoError(t, err)
				require.Equal(t, i.ID, got.ID)
				require.Equal(t, "t1", got.TenantID)
				require.Equal(t, i.ProcessName, got.ProcessName)
				require.Equal(t, i.Steps, got.Steps)
				require.Equal(t, core.StatusRunning, got.Status)
				require.Equal(t, 0, got.CurrentStepIndex)
				require.Equal(t, int64(1), got.Version)
				require.Equal(t, "doc-1", got.Variables.String("documentId"))
				require.True(t, got.Variables.Bool("primaryExtractionSucceeded"))
				require.WithinDuration(t, i.CreatedAt, got.CreatedAt, time.Second)
			},
		},
		{
			name: "GetInstance_ScopedToTenant",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				i := newInstance("t1", time.Now())
				require.NoError(t, b.CreateInstance(ctx, i))

				_, err := b.GetInstance(ctx, "t2", i.ID)
				require.ErrorIs(t, err, backend.ErrInstanceNotFound)
			},
		},
		{
			name: "GetInstance_ReturnsCopy",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				i := newInstance("t1", time.Now())
				require.NoError(t, b.CreateInstance(ctx, i))

				got, err := b.GetInstance(ctx, "t1", i.ID)
				require.NoError(t, err)
				got.Variables["documentId"] = "changed"

				again, err := b.GetInstance(ctx, "t1", i.ID)
				require.NoError(t, err)
				require.Equal(t, "doc-1", again.Variables.String("documentId"))
			},
		},
		{
			name: "UpdateInstance_PersistsAndIncrementsVersion",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				i := newInstance("t1", time.Now())
				require.NoError(t, b.CreateInstance(ctx, i))

				i.Status = core.StatusWaiting
				i.CurrentStepIndex = 2
				i.WaitingForUser = true
				i.CurrentUserStepName = "Review"
				i.Variables["extractionMethod"] = "secondary"
				require.NoError(t, b.UpdateInstance(ctx, i))
				require.Equal(t, int64(2), i.Version)

				got, err := b.GetInstance(ctx, "t1", i.ID)
				require.NoError(t, err)
				require.Equal(t, core.StatusWaiting, got.Status)
				require.Equal(t, 2, got.CurrentStepIndex)
				require.True(t, got.WaitingForUser)
				require.Equal(t, "Review", got.CurrentUserStepName)
				require.Equal(t, "secondary", got.Variables.String("extractionMethod"))
				require.Equal(t, int64(2), got.Version)
			},
		},
		{
			name: "UpdateInstance_StaleVersionConflicts",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				i := newInstance("t1", time.Now())
				require.NoError(t, b.CreateInstance(ctx, i))

				stale, err := b.GetInstance(ctx, "t1", i.ID)
				require.NoError(t, err)

				i.Status = core.StatusCompleted
				require.NoError(t, b.UpdateInstance(ctx, i))

				stale.Status = core.StatusFailed
				stale.Error = "late"
				err = b.UpdateInstance(ctx, stale)
				require.ErrorIs(t, err, backend.ErrVersionConflict)

				got, err := b.GetInstance(ctx, "t1", i.ID)
				require.NoError(t, err)
				require.Equal(t, core.StatusCompleted, got.Status)
			},
		},
		{
			name: "UpdateInstance_ErrorWhenInstanceDoesNotExist",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				i := newInstance("t1", time.Now())
				i.Version = 1

				err := b.UpdateInstance(ctx, i)
				require.ErrorIs(t, err, backend.ErrInstanceNotFound)
			},
		},
		{
			name: "UpdateInstance_ConcurrentWritersOnlyOneWins",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				i := newInstance("t1", time.Now())
				require.NoError(t, b.CreateInstance(ctx, i))

				const writers = 5

				var wg sync.WaitGroup
				errs := make(chan error, writers)
				for w := 0; w < writers; w++ {
					c := i.Clone()
					wg.Add(1)
					go func() {
						defer wg.Done()
						c.CurrentStepIndex++
						errs <- b.UpdateInstance(ctx, c)
					}()
				}
				wg.Wait()
				close(errs)

				var ok, conflicts int
				for err := range errs {
					switch {
					case err == nil:
						ok++
					case errors.Is(err, backend.ErrVersionConflict):
						conflicts++
					default:
						require.NoError(t, err)
					}
				}

				require.Equal(t, 1, ok)
				require.Equal(t, writers-1, conflicts)
			},
		},
		{
			name: "ListInstances_NewestFirstAndScoped",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				now := time.Now()
				older := newInstance("list-a", now.Add(-time.Minute))
				newer := newInstance("list-a", now)
				other := newInstance("list-b", now)
				for _, i := range []*core.Instance{older, newer, other} {
					require.NoError(t, b.CreateInstance(ctx, i))
				}

				r, err := b.ListInstances(ctx, "list-a")
				require.NoError(t, err)
				require.Len(t, r, 2)
				require.Equal(t, newer.ID, r[0].ID)
				require.Equal(t, older.ID, r[1].ID)

				r, err = b.ListInstances(ctx, "list-a", backend.WithLimit(1))
				require.NoError(t, err)
				require.Len(t, r, 1)
				require.Equal(t, newer.ID, r[0].ID)
			},
		},
		{
			name: "ListInstances_FiltersByStatus",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				now := time.Now()
				running := newInstance("list-c", now)
				waiting := newInstance("list-c", now.Add(time.Second))
				require.NoError(t, b.CreateInstance(ctx, running))
				require.NoError(t, b.CreateInstance(ctx, waiting))

				waiting.Status = core.StatusWaiting
				waiting.WaitingForUser = true
				waiting.CurrentUserStepName = "Review"
				require.NoError(t, b.UpdateInstance(ctx, waiting))

				r, err := b.ListInstances(ctx, "list-c", backend.WithStatus(core.StatusWaiting))
				require.NoError(t, err)
				require.Len(t, r, 1)
				require.Equal(t, waiting.ID, r[0].ID)

				r, err = b.ListInstances(ctx, "list-c", backend.WithProcessName("other"))
				require.NoError(t, err)
				require.Empty(t, r)
			},
		},
		{
			name: "AuditTrail_ReturnsEntriesInOrder",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				id := uuid.NewString()
				now := time.Now().UTC().Truncate(time.Millisecond)
				actions := []audit.Action{audit.ActionStarted, audit.ActionStepCompleted, audit.ActionStepWaiting}
				for n, a := range actions {
					require.NoError(t, b.AppendAudit(ctx, &audit.Entry{
						EntityType: audit.EntityTypeInstance,
						EntityID:   id,
						StepName:   "PrimaryExtraction",
						Action:     a,
						Details:    "details",
						ActorID:    "user-1",
						TenantID:   "t1",
						Timestamp:  now.Add(time.Duration(n) * time.Millisecond),
					}))
				}

				trail, err := b.AuditTrail(ctx, "t1", id)
				require.NoError(t, err)
				require.Len(t, trail, len(actions))
				for n, a := range actions {
					require.Equal(t, a, trail[n].Action)
					require.Equal(t, id, trail[n].EntityID)
					require.Equal(t, audit.EntityTypeInstance, trail[n].EntityType)
				}
				require.Equal(t, "user-1", trail[0].ActorID)
				require.Equal(t, "PrimaryExtraction", trail[0].StepName)
				require.Equal(t, "details", trail[0].Details)
				require.WithinDuration(t, now, trail[0].Timestamp, time.Second)
			},
		},
		{
			name: "AuditTrail_ScopedToTenant",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				id := uuid.NewString()
				require.NoError(t, b.AppendAudit(ctx, &audit.Entry{
					EntityType: audit.EntityTypeInstance,
					EntityID:   id,
					Action:     audit.ActionStarted,
					TenantID:   "t1",
					Timestamp:  time.Now(),
				}))

				trail, err := b.AuditTrail(ctx, "t2", id)
				require.NoError(t, err)
				require.Empty(t, trail)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := setup()
			ctx := context.Background()
			tt.f(t, ctx, b)
			if teardown != nil {
				teardown(b)
			}
		})
	}
}
