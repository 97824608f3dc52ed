// Package engine drives process instances step by step and persists them after every step.
//
// There is no background scheduler. Instances only advance inside Start, CompleteUserStep and Resume, on
// the caller's goroutine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/benbjohnson/clock"
	"github.com/ledgerdocs/procflow/audit"
	"github.com/ledgerdocs/procflow/backend"
	"github.com/ledgerdocs/procflow/core"
	"github.com/ledgerdocs/procflow/internal/metrickeys"
	"github.com/ledgerdocs/procflow/internal/tracing"
	"github.com/ledgerdocs/procflow/log"
	"github.com/ledgerdocs/procflow/metrics"
	"github.com/ledgerdocs/procflow/process"
	"github.com/ledgerdocs/procflow/registry"
	"github.com/ledgerdocs/procflow/step"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const TracerName = "procflow"

type Engine struct {
	backend  backend.Backend
	registry *registry.Registry
	sink     audit.Sink
	resolve  TenantResolver
	newID    func() string

	logger  *slog.Logger
	metrics metrics.Client
	tracer  trace.Tracer
	clock   clock.Clock
}

func New(b backend.Backend, opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if o.Logger == nil {
		o.Logger = b.Options().Logger
	}

	if o.Metrics == nil {
		o.Metrics = b.Metrics()
	}

	if o.TracerProvider == nil {
		o.TracerProvider = noop.NewTracerProvider()
	}

	if o.AuditSink == nil {
		o.AuditSink = b
	}

	if o.Registry == nil {
		o.Registry = registry.New()
	}

	return &Engine{
		backend:  b,
		registry: o.Registry,
		sink:     o.AuditSink,
		resolve:  o.TenantResolver,
		newID:    o.NewID,
		logger:   o.Logger,
		metrics:  o.Metrics,
		tracer:   o.TracerProvider.Tracer(TracerName),
		clock:    o.Clock,
	}
}

// Register makes a definition available for resuming its instances. Call it for every process at startup,
// before instances are completed or resumed.
func (e *Engine) Register(def *process.Definition) error {
	return e.registry.Register(def)
}

// Start creates an instance of def seeded with vars and drives it until it completes, fails or waits for a
// human step. A failing step is reported on the returned instance, not as an error.
//
// def is registered if needed. Starting a different definition under an already registered name fails with
// *registry.ErrDefinitionAlreadyRegistered.
func (e *Engine) Start(ctx context.Context, def *process.Definition, vars core.Variables) (*core.Instance, error) {
	if def == nil {
		return nil, errors.New("process definition is nil")
	}

	tenantID, err := e.resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving tenant: %w", err)
	}

	if err := e.registry.Register(def); err != nil {
		return nil, err
	}

	instance := core.NewInstance(e.newID(), tenantID, def.Name(), def.StepNames(), vars.Clone(), e.clock.Now())

	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("Start: %s", def.Name()), trace.WithAttributes(
		attribute.String(tracing.InstanceID, instance.ID),
		attribute.String(tracing.ProcessName, def.Name()),
		attribute.String(tracing.TenantID, tenantID),
	))
	defer span.End()

	if err := e.backend.CreateInstance(ctx, instance); err != nil {
		return nil, tracing.RecordError(span, fmt.Errorf("creating instance: %w", err))
	}

	e.logger.Debug(
		"Created instance",
		log.InstanceIDKey, instance.ID,
		log.ProcessNameKey, def.Name(),
		log.TenantIDKey, tenantID,
	)

	e.metrics.Counter(metrickeys.InstanceCreated, metrics.Tags{metrickeys.ProcessName: def.Name()}, 1)

	e.audit(ctx, instance, "", audit.ActionStarted, "", "")

	if err := e.drive(ctx, def, instance); err != nil {
		return instance, tracing.RecordError(span, err)
	}

	return instance, nil
}

// CompleteUserStep resumes an instance waiting on a human step with the given submission.
//
// Rejected input leaves the instance waiting and returns an error matching step.ErrInputRejected. A failing
// apply marks the instance failed and is not returned as an error.
func (e *Engine) CompleteUserStep(ctx context.Context, instanceID string, input step.Input, actorID string) (*core.Instance, error) {
	ctx, span := e.tracer.Start(ctx, "CompleteUserStep", trace.WithAttributes(
		attribute.String(tracing.InstanceID, instanceID),
		attribute.String(tracing.ActorID, actorID),
	))
	defer span.End()

	instance, err := e.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, tracing.RecordError(span, err)
	}

	if instance.Status != core.StatusWaiting {
		return instance, tracing.RecordError(span, &PreconditionError{
			InstanceID: instanceID,
			Reason:     fmt.Sprintf("not waiting for user input, status is %s", instance.Status),
		})
	}

	def, err := e.definitionFor(instance)
	if err != nil {
		return instance, tracing.RecordError(span, err)
	}

	task, _ := def.Step(instance.CurrentStepIndex)
	human, ok := step.AsHuman(task)
	if !ok || human.Name() != instance.CurrentUserStepName {
		return instance, tracing.RecordError(span, &PreconditionError{
			InstanceID: instanceID,
			Reason:     fmt.Sprintf("step %q is not a pending human step", instance.CurrentStepName()),
		})
	}

	span.SetAttributes(attribute.String(tracing.StepName, human.Name()))
	tags := metrics.Tags{metrickeys.ProcessName: def.Name(), metrickeys.StepName: human.Name()}

	result, err := human.Complete(ctx, instance, input)
	if err != nil {
		e.metrics.Counter(metrickeys.UserStepRejected, tags, 1)
		e.audit(ctx, instance, human.Name(), audit.ActionUserInputRejected, err.Error(), actorID)

		e.logger.Debug(
			"Rejected user input",
			log.InstanceIDKey, instance.ID,
			log.StepNameKey, human.Name(),
			log.ActorIDKey, actorID,
			"error", err,
		)

		return instance, tracing.RecordError(span, err)
	}

	if result == step.Failed {
		markFailed(instance)

		if err := e.persist(ctx, instance); err != nil {
			return instance, tracing.RecordError(span, err)
		}

		e.audit(ctx, instance, human.Name(), audit.ActionUserStepFailed, instance.Error, actorID)
		e.failed(instance, human.Name())

		return instance, nil
	}

	instance.CurrentStepIndex++
	instance.Status = core.StatusRunning

	if err := e.persist(ctx, instance); err != nil {
		return instance, tracing.RecordError(span, err)
	}

	e.metrics.Counter(metrickeys.UserStepCompleted, tags, 1)
	e.audit(ctx, instance, human.Name(), audit.ActionUserStepCompleted, "", actorID)

	if err := e.drive(ctx, def, instance); err != nil {
		return instance, tracing.RecordError(span, err)
	}

	return instance, nil
}

// Resume continues an instance left running, for example by a process that stopped in the middle of a
// step. Waiting and finished instances are returned unchanged.
func (e *Engine) Resume(ctx context.Context, instanceID string) (*core.Instance, error) {
	ctx, span := e.tracer.Start(ctx, "Resume", trace.WithAttributes(
		attribute.String(tracing.InstanceID, instanceID),
	))
	defer span.End()

	instance, err := e.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, tracing.RecordError(span, err)
	}

	if instance.Status != core.StatusRunning {
		return instance, nil
	}

	def, err := e.definitionFor(instance)
	if err != nil {
		return instance, tracing.RecordError(span, err)
	}

	e.logger.Info(
		"Resuming instance",
		log.InstanceIDKey, instance.ID,
		log.ProcessNameKey, instance.ProcessName,
		log.StepIndexKey, instance.CurrentStepIndex,
	)

	e.audit(ctx, instance, instance.CurrentStepName(), audit.ActionResumed, "", "")

	if err := e.drive(ctx, def, instance); err != nil {
		return instance, tracing.RecordError(span, err)
	}

	return instance, nil
}

// TenantID returns the tenant calls with ctx act on.
func (e *Engine) TenantID(ctx context.Context) (string, error) {
	tenantID, err := e.resolve(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving tenant: %w", err)
	}

	return tenantID, nil
}

func (e *Engine) GetInstance(ctx context.Context, instanceID string) (*core.Instance, error) {
	tenantID, err := e.resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving tenant: %w", err)
	}

	instance, err := e.backend.GetInstance(ctx, tenantID, instanceID)
	if err != nil {
		return nil, fmt.Errorf("getting instance %s: %w", instanceID, err)
	}

	return instance, nil
}

// AuditTrail returns the audit entries of an instance in the order they were written.
func (e *Engine) AuditTrail(ctx context.Context, instanceID string) ([]*audit.Entry, error) {
	tenantID, err := e.resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving tenant: %w", err)
	}

	return e.backend.AuditTrail(ctx, tenantID, instanceID)
}

func (e *Engine) ListInstances(ctx context.Context, opts ...backend.ListOption) ([]*core.Instance, error) {
	tenantID, err := e.resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving tenant: %w", err)
	}

	return e.backend.ListInstances(ctx, tenantID, opts...)
}

func (e *Engine) definitionFor(instance *core.Instance) (*process.Definition, error) {
	def, err := e.registry.Get(instance.ProcessName)
	if err != nil {
		if errors.Is(err, registry.ErrDefinitionNotRegistered) {
			return nil, fmt.Errorf("%w: %s", ErrProcessNotRegistered, instance.ProcessName)
		}

		return nil, err
	}

	if !slices.Equal(def.StepNames(), instance.Steps) {
		return nil, fmt.Errorf("%w: %s has steps %v, instance %s has %v",
			ErrDefinitionMismatch, def.Name(), def.StepNames(), instance.ID, instance.Steps)
	}

	return def, nil
}
