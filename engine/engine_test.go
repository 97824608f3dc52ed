package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ledgerdocs/procflow/audit"
	"github.com/ledgerdocs/procflow/backend"
	"github.com/ledgerdocs/procflow/backend/memory"
	"github.com/ledgerdocs/procflow/core"
	"github.com/ledgerdocs/procflow/process"
	"github.com/ledgerdocs/procflow/registry"
	"github.com/ledgerdocs/procflow/step"
	"github.com/ledgerdocs/procflow/tenant"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func appendTo(key, value string) step.ActionFunc {
	return func(ctx context.Context, i *core.Instance) error {
		i.Variables[key] = i.Variables.String(key) + value
		return nil
	}
}

func approval() *step.Human {
	return step.NewHuman("Approve", func(ctx context.Context, i *core.Instance, in step.Input) error {
		i.Variables["approved"] = in["approved"]
		return nil
	}, step.WithValidation(func(ctx context.Context, i *core.Instance, in step.Input) error {
		if _, ok := in["approved"]; !ok {
			return errors.New("approved is required")
		}

		return nil
	}))
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, backend.Backend, *clock.Mock) {
	c := clock.NewMock()
	c.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	b := memory.NewMemoryBackend()

	return New(b, append([]Option{WithClock(c)}, opts...)...), b, c
}

func actions(trail []*audit.Entry) []audit.Action {
	r := make([]audit.Action, 0, len(trail))
	for _, e := range trail {
		r = append(r, e.Action)
	}

	return r
}

func Test_Start_LinearProgression(t *testing.T) {
	ctx := context.Background()
	e, b, _ := newTestEngine(t)

	def := process.New("linear").
		AddStep(step.NewAutomated("A", appendTo("trace", "a"))).
		AddStep(step.NewAutomated("B", appendTo("trace", "b"))).
		AddStep(step.NewAutomated("C", appendTo("trace", "c")))

	i, err := e.Start(ctx, def, core.Variables{"trace": ""})
	require.NoError(t, err)
	require.Equal(t, core.StatusCompleted, i.Status)
	require.Equal(t, 3, i.CurrentStepIndex)
	require.Equal(t, "abc", i.Variables.String("trace"))
	require.Equal(t, []string{"A", "B", "C"}, i.Steps)
	require.Equal(t, tenant.Default, i.TenantID)

	stored, err := b.GetInstance(ctx, tenant.Default, i.ID)
	require.NoError(t, err)
	require.Equal(t, core.StatusCompleted, stored.Status)
	require.Equal(t, i.Version, stored.Version)

	trail, err := e.AuditTrail(ctx, i.ID)
	require.NoError(t, err)
	require.Equal(t, []audit.Action{
		audit.ActionStarted,
		audit.ActionStepCompleted,
		audit.ActionStepCompleted,
		audit.ActionStepCompleted,
		audit.ActionCompleted,
	}, actions(trail))
	require.Equal(t, "A", trail[1].StepName)
}

func Test_Start_DoesNotShareVariables(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	def := process.New("vars").AddStep(step.NewAutomated("A", appendTo("trace", "a")))

	vars := core.Variables{"trace": "x"}
	i, err := e.Start(ctx, def, vars)
	require.NoError(t, err)
	require.Equal(t, "xa", i.Variables.String("trace"))
	require.Equal(t, "x", vars.String("trace"))
}

func Test_Start_EmptyDefinitionCompletes(t *testing.T) {
	e, _, _ := newTestEngine(t)

	i, err := e.Start(context.Background(), process.New("empty"), nil)
	require.NoError(t, err)
	require.Equal(t, core.StatusCompleted, i.Status)
	require.Equal(t, 0, i.CurrentStepIndex)
}

func Test_SuspendAndResume(t *testing.T) {
	ctx := context.Background()
	e, _, c := newTestEngine(t)

	var after int32
	def := process.New("approval").
		AddStep(step.NewAutomated("Prepare", appendTo("trace", "p"))).
		AddStep(approval()).
		AddStep(step.NewAutomated("Finish", func(ctx context.Context, i *core.Instance) error {
			atomic.AddInt32(&after, 1)
			return nil
		}))

	i, err := e.Start(ctx, def, nil)
	require.NoError(t, err)
	require.Equal(t, core.StatusWaiting, i.Status)
	require.Equal(t, 1, i.CurrentStepIndex)
	require.True(t, i.WaitingForUser)
	require.Equal(t, "Approve", i.CurrentUserStepName)
	require.Zero(t, atomic.LoadInt32(&after))

	c.Add(time.Hour)

	i, err = e.CompleteUserStep(ctx, i.ID, step.Input{"approved": true}, "user-1")
	require.NoError(t, err)
	require.Equal(t, core.StatusCompleted, i.Status)
	require.Equal(t, 3, i.CurrentStepIndex)
	require.False(t, i.WaitingForUser)
	require.Empty(t, i.CurrentUserStepName)
	require.True(t, i.Variables.Bool("approved"))
	require.Equal(t, int32(1), atomic.LoadInt32(&after))
	require.Equal(t, c.Now(), i.UpdatedAt)

	trail, err := e.AuditTrail(ctx, i.ID)
	require.NoError(t, err)
	require.Equal(t, []audit.Action{
		audit.ActionStarted,
		audit.ActionStepCompleted,
		audit.ActionStepWaiting,
		audit.ActionUserStepCompleted,
		audit.ActionStepCompleted,
		audit.ActionCompleted,
	}, actions(trail))
	require.Equal(t, "user-1", trail[3].ActorID)
}

func Test_CompleteUserStep_ValidationFailureKeepsWaiting(t *testing.T) {
	ctx := context.Background()
	e, b, _ := newTestEngine(t)

	def := process.New("approval").AddStep(approval())

	i, err := e.Start(ctx, def, nil)
	require.NoError(t, err)
	version := i.Version

	got, err := e.CompleteUserStep(ctx, i.ID, step.Input{}, "user-1")
	require.ErrorIs(t, err, step.ErrInputRejected)
	require.Equal(t, core.StatusWaiting, got.Status)
	require.True(t, got.WaitingForUser)

	stored, err := b.GetInstance(ctx, tenant.Default, i.ID)
	require.NoError(t, err)
	require.Equal(t, version, stored.Version)
	require.Equal(t, core.StatusWaiting, stored.Status)
	require.Equal(t, "Approve", stored.CurrentUserStepName)

	// Resubmission is allowed
	got, err = e.CompleteUserStep(ctx, i.ID, step.Input{"approved": false}, "user-1")
	require.NoError(t, err)
	require.Equal(t, core.StatusCompleted, got.Status)

	trail, err := e.AuditTrail(ctx, i.ID)
	require.NoError(t, err)
	require.Contains(t, actions(trail), audit.ActionUserInputRejected)
}

func Test_FailureHaltsChain(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	var downstream int32
	def := process.New("failing").
		AddStep(step.NewAutomated("A", func(ctx context.Context, i *core.Instance) error {
			return errors.New("boom")
		})).
		AddStep(step.NewAutomated("B", func(ctx context.Context, i *core.Instance) error {
			atomic.AddInt32(&downstream, 1)
			return nil
		}))

	i, err := e.Start(ctx, def, nil)
	require.NoError(t, err)
	require.Equal(t, core.StatusFailed, i.Status)
	require.Equal(t, 0, i.CurrentStepIndex)
	require.Contains(t, i.Error, "boom")
	require.Zero(t, atomic.LoadInt32(&downstream))

	trail, err := e.AuditTrail(ctx, i.ID)
	require.NoError(t, err)
	last := trail[len(trail)-1]
	require.Equal(t, audit.ActionStepFailed, last.Action)
	require.Equal(t, "A", last.StepName)
	require.Contains(t, last.Details, "boom")

	// Failed instances are not driven again
	resumed, err := e.Resume(ctx, i.ID)
	require.NoError(t, err)
	require.Equal(t, i.Version, resumed.Version)
	require.Zero(t, atomic.LoadInt32(&downstream))
}

func Test_PanicInStepFailsInstance(t *testing.T) {
	e, _, _ := newTestEngine(t)

	def := process.New("panicking").AddStep(step.NewAutomated("A", func(ctx context.Context, i *core.Instance) error {
		panic("unexpected")
	}))

	i, err := e.Start(context.Background(), def, nil)
	require.NoError(t, err)
	require.Equal(t, core.StatusFailed, i.Status)
	require.Contains(t, i.Error, "unexpected")
}

func Test_CompleteUserStep_ApplyFailureFailsInstance(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	def := process.New("apply").AddStep(step.NewHuman("Review", func(ctx context.Context, i *core.Instance, in step.Input) error {
		return errors.New("cannot apply")
	}))

	i, err := e.Start(ctx, def, nil)
	require.NoError(t, err)

	i, err = e.CompleteUserStep(ctx, i.ID, step.Input{}, "user-1")
	require.NoError(t, err)
	require.Equal(t, core.StatusFailed, i.Status)
	require.Equal(t, "cannot apply", i.Error)
	require.False(t, i.WaitingForUser)

	stored, err := e.GetInstance(ctx, i.ID)
	require.NoError(t, err)
	require.Equal(t, core.StatusFailed, stored.Status)

	trail, err := e.AuditTrail(ctx, i.ID)
	require.NoError(t, err)
	require.Equal(t, audit.ActionUserStepFailed, trail[len(trail)-1].Action)
}

func Test_CompleteUserStep_Preconditions(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	_, err := e.CompleteUserStep(ctx, "does-not-exist", step.Input{}, "user-1")
	require.ErrorIs(t, err, backend.ErrInstanceNotFound)

	def := process.New("done").AddStep(step.NewAutomated("A", appendTo("trace", "a")))
	i, err := e.Start(ctx, def, nil)
	require.NoError(t, err)

	_, err = e.CompleteUserStep(ctx, i.ID, step.Input{}, "user-1")
	var perr *PreconditionError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, i.ID, perr.InstanceID)
}

func Test_ProcessNotRegisteredAfterRestart(t *testing.T) {
	ctx := context.Background()
	e, b, c := newTestEngine(t)

	i, err := e.Start(ctx, process.New("approval").AddStep(approval()), nil)
	require.NoError(t, err)

	// A new engine on the same store starts with an empty registry
	restarted := New(b, WithClock(c), WithRegistry(registry.New()))

	_, err = restarted.CompleteUserStep(ctx, i.ID, step.Input{"approved": true}, "user-1")
	require.ErrorIs(t, err, ErrProcessNotRegistered)

	stored, err := restarted.GetInstance(ctx, i.ID)
	require.NoError(t, err)
	require.Equal(t, core.StatusWaiting, stored.Status)

	require.NoError(t, restarted.Register(process.New("approval").AddStep(approval())))

	got, err := restarted.CompleteUserStep(ctx, i.ID, step.Input{"approved": true}, "user-1")
	require.NoError(t, err)
	require.Equal(t, core.StatusCompleted, got.Status)
}

func Test_DefinitionMismatch(t *testing.T) {
	ctx := context.Background()
	e, b, c := newTestEngine(t)

	i, err := e.Start(ctx, process.New("approval").AddStep(approval()), nil)
	require.NoError(t, err)

	changed := New(b, WithClock(c))
	require.NoError(t, changed.Register(process.New("approval").
		AddStep(step.NewAutomated("Prepare", appendTo("trace", "p"))).
		AddStep(approval())))

	_, err = changed.CompleteUserStep(ctx, i.ID, step.Input{"approved": true}, "user-1")
	require.ErrorIs(t, err, ErrDefinitionMismatch)
}

func Test_Register_DifferentDefinitionSameName(t *testing.T) {
	e, _, _ := newTestEngine(t)

	def := process.New("p")
	require.NoError(t, e.Register(def))
	require.NoError(t, e.Register(def))

	err := e.Register(process.New("p"))
	var aerr *registry.ErrDefinitionAlreadyRegistered
	require.ErrorAs(t, err, &aerr)
}

func Test_CompleteUserStep_ConcurrentCompletionsConflict(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	entered := make(chan struct{})
	release := make(chan struct{})

	def := process.New("race").AddStep(step.NewHuman("Review", func(ctx context.Context, i *core.Instance, in step.Input) error {
		if in["caller"] == "slow" {
			close(entered)
			<-release
		}

		i.Variables["caller"] = in["caller"]
		return nil
	}))

	i, err := e.Start(ctx, def, nil)
	require.NoError(t, err)

	slowErr := make(chan error, 1)
	go func() {
		_, err := e.CompleteUserStep(ctx, i.ID, step.Input{"caller": "slow"}, "user-1")
		slowErr <- err
	}()

	<-entered

	fast, err := e.CompleteUserStep(ctx, i.ID, step.Input{"caller": "fast"}, "user-2")
	require.NoError(t, err)
	require.Equal(t, core.StatusCompleted, fast.Status)

	close(release)
	require.ErrorIs(t, <-slowErr, backend.ErrVersionConflict)

	stored, err := e.GetInstance(ctx, i.ID)
	require.NoError(t, err)
	require.Equal(t, "fast", stored.Variables.String("caller"))

	trail, err := e.AuditTrail(ctx, i.ID)
	require.NoError(t, err)

	var completedBy []string
	for _, entry := range trail {
		if entry.Action == audit.ActionUserStepCompleted {
			completedBy = append(completedBy, entry.ActorID)
		}
	}
	require.Equal(t, []string{"user-2"}, completedBy)
}

// conflictingBackend rejects every update after the first n with a version conflict.
type conflictingBackend struct {
	backend.Backend

	updates int32
	allowed int32
}

func (b *conflictingBackend) UpdateInstance(ctx context.Context, instance *core.Instance) error {
	if atomic.AddInt32(&b.updates, 1) > b.allowed {
		return backend.ErrVersionConflict
	}

	return b.Backend.UpdateInstance(ctx, instance)
}

func Test_RejectedPersistIsNotAudited(t *testing.T) {
	tests := []struct {
		name    string
		allowed int32
		def     *process.Definition
		want    []audit.Action
	}{
		{
			name:    "step completed",
			allowed: 0,
			def:     process.New("p").AddStep(step.NewAutomated("A", appendTo("trace", "a"))),
			want:    []audit.Action{audit.ActionStarted},
		},
		{
			name:    "instance completed",
			allowed: 1,
			def:     process.New("p").AddStep(step.NewAutomated("A", appendTo("trace", "a"))),
			want:    []audit.Action{audit.ActionStarted, audit.ActionStepCompleted},
		},
		{
			name:    "step waiting",
			allowed: 0,
			def:     process.New("p").AddStep(approval()),
			want:    []audit.Action{audit.ActionStarted},
		},
		{
			name:    "step failed",
			allowed: 0,
			def: process.New("p").AddStep(step.NewAutomated("A", func(context.Context, *core.Instance) error {
				return errors.New("boom")
			})),
			want: []audit.Action{audit.ActionStarted},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			b := &conflictingBackend{Backend: memory.NewMemoryBackend(), allowed: tt.allowed}
			e := New(b)

			i, err := e.Start(ctx, tt.def, nil)
			require.ErrorIs(t, err, backend.ErrVersionConflict)

			trail, err := e.AuditTrail(ctx, i.ID)
			require.NoError(t, err)
			require.Equal(t, tt.want, actions(trail))
		})
	}
}

func Test_CompleteUserStep_RejectedPersistIsNotAudited(t *testing.T) {
	ctx := context.Background()
	b := &conflictingBackend{Backend: memory.NewMemoryBackend(), allowed: 1}
	e := New(b)

	i, err := e.Start(ctx, process.New("approval").AddStep(approval()), nil)
	require.NoError(t, err)
	require.Equal(t, core.StatusWaiting, i.Status)

	_, err = e.CompleteUserStep(ctx, i.ID, step.Input{"approved": true}, "user-1")
	require.ErrorIs(t, err, backend.ErrVersionConflict)

	trail, err := e.AuditTrail(ctx, i.ID)
	require.NoError(t, err)
	require.Equal(t, []audit.Action{audit.ActionStarted, audit.ActionStepWaiting}, actions(trail))
}

func Test_Start_DifferentDefinitionSameName(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	_, err := e.Start(ctx, process.New("approval").AddStep(approval()), nil)
	require.NoError(t, err)

	_, err = e.Start(ctx, process.New("approval").AddStep(step.NewAutomated("A", appendTo("trace", "a"))), nil)
	var aerr *registry.ErrDefinitionAlreadyRegistered
	require.ErrorAs(t, err, &aerr)

	list, err := e.ListInstances(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func Test_Resume_RunningInstance(t *testing.T) {
	ctx := context.Background()
	e, b, c := newTestEngine(t)

	var ran []string
	record := func(name string) step.ActionFunc {
		return func(ctx context.Context, i *core.Instance) error {
			ran = append(ran, name)
			return nil
		}
	}

	def := process.New("crash").
		AddStep(step.NewAutomated("A", record("A"))).
		AddStep(step.NewAutomated("B", record("B"))).
		AddStep(step.NewAutomated("C", record("C")))
	require.NoError(t, e.Register(def))

	// Instance persisted after A, before the process went away
	crashed := core.NewInstance("crashed", tenant.Default, "crash", []string{"A", "B", "C"}, nil, c.Now())
	crashed.CurrentStepIndex = 1
	require.NoError(t, b.CreateInstance(ctx, crashed))

	i, err := e.Resume(ctx, "crashed")
	require.NoError(t, err)
	require.Equal(t, core.StatusCompleted, i.Status)
	require.Equal(t, []string{"B", "C"}, ran)

	trail, err := e.AuditTrail(ctx, "crashed")
	require.NoError(t, err)
	require.Equal(t, audit.ActionResumed, trail[0].Action)
	require.Equal(t, "B", trail[0].StepName)
}

func Test_Resume_WaitingInstanceUnchanged(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	i, err := e.Start(ctx, process.New("approval").AddStep(approval()), nil)
	require.NoError(t, err)

	got, err := e.Resume(ctx, i.ID)
	require.NoError(t, err)
	require.Equal(t, core.StatusWaiting, got.Status)
	require.Equal(t, i.Version, got.Version)
}

func Test_TenantIsolation(t *testing.T) {
	e, _, _ := newTestEngine(t)

	ctxA := tenant.WithTenant(context.Background(), "tenant-a")
	ctxB := tenant.WithTenant(context.Background(), "tenant-b")

	i, err := e.Start(ctxA, process.New("approval").AddStep(approval()), nil)
	require.NoError(t, err)
	require.Equal(t, "tenant-a", i.TenantID)

	_, err = e.GetInstance(ctxB, i.ID)
	require.ErrorIs(t, err, backend.ErrInstanceNotFound)

	_, err = e.CompleteUserStep(ctxB, i.ID, step.Input{"approved": true}, "intruder")
	require.ErrorIs(t, err, backend.ErrInstanceNotFound)

	listB, err := e.ListInstances(ctxB)
	require.NoError(t, err)
	require.Empty(t, listB)

	listA, err := e.ListInstances(ctxA, backend.WithStatus(core.StatusWaiting))
	require.NoError(t, err)
	require.Len(t, listA, 1)
}

func Test_TenantResolverError(t *testing.T) {
	e, _, _ := newTestEngine(t, WithTenantResolver(tenant.Required))

	_, err := e.Start(context.Background(), process.New("p"), nil)
	require.ErrorIs(t, err, tenant.ErrNoTenant)
}

type failingSink struct {
	calls int32
}

func (s *failingSink) AppendAudit(ctx context.Context, e *audit.Entry) error {
	atomic.AddInt32(&s.calls, 1)
	return fmt.Errorf("audit store unavailable")
}

func Test_AuditFailureDoesNotStopInstance(t *testing.T) {
	sink := &failingSink{}
	e, _, _ := newTestEngine(t, WithAuditSink(sink))

	def := process.New("audited").
		AddStep(step.NewAutomated("A", appendTo("trace", "a"))).
		AddStep(step.NewAutomated("B", appendTo("trace", "b")))

	i, err := e.Start(context.Background(), def, nil)
	require.NoError(t, err)
	require.Equal(t, core.StatusCompleted, i.Status)
	require.Equal(t, int32(4), atomic.LoadInt32(&sink.calls))
}

func Test_Spans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(trace.NewSimpleSpanProcessor(exporter)))
	defer tp.Shutdown(context.Background())

	e, _, _ := newTestEngine(t, WithTracerProvider(tp))

	def := process.New("traced").
		AddStep(step.NewAutomated("A", appendTo("trace", "a"))).
		AddStep(approval())

	i, err := e.Start(context.Background(), def, nil)
	require.NoError(t, err)

	_, err = e.CompleteUserStep(context.Background(), i.ID, step.Input{"approved": true}, "user-1")
	require.NoError(t, err)

	var names []string
	for _, s := range exporter.GetSpans() {
		names = append(names, s.Name)
	}

	require.Contains(t, names, "Start: traced")
	require.Contains(t, names, "Step: A")
	require.Contains(t, names, "Step: Approve")
	require.Contains(t, names, "CompleteUserStep")
}
