package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledgerdocs/procflow/audit"
	"github.com/ledgerdocs/procflow/backend"
	"github.com/ledgerdocs/procflow/core"
	"github.com/ledgerdocs/procflow/internal/metrickeys"
	"github.com/ledgerdocs/procflow/internal/tracing"
	"github.com/ledgerdocs/procflow/log"
	"github.com/ledgerdocs/procflow/metrics"
	"github.com/ledgerdocs/procflow/process"
	"github.com/ledgerdocs/procflow/step"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// drive executes steps from the cursor until the instance completes, fails or waits. The instance is
// persisted after every step. Audit entries are only written once the transition they record is stored.
func (e *Engine) drive(ctx context.Context, def *process.Definition, instance *core.Instance) error {
	for instance.Status == core.StatusRunning {
		task, ok := def.Step(instance.CurrentStepIndex)
		if !ok {
			instance.Status = core.StatusCompleted

			if err := e.persist(ctx, instance); err != nil {
				return err
			}

			e.audit(ctx, instance, "", audit.ActionCompleted, "", "")
			e.metrics.Counter(metrickeys.InstanceCompleted, metrics.Tags{metrickeys.ProcessName: def.Name()}, 1)
			e.logger.Debug("Instance completed", log.InstanceIDKey, instance.ID, log.ProcessNameKey, def.Name())

			return nil
		}

		switch e.executeStep(ctx, def, instance, task) {
		case step.Completed:
			instance.CurrentStepIndex++
			instance.Status = core.StatusRunning

			if err := e.persist(ctx, instance); err != nil {
				return err
			}

			e.audit(ctx, instance, task.Name(), audit.ActionStepCompleted, "", "")

		case step.Waiting:
			instance.Status = core.StatusWaiting

			if err := e.persist(ctx, instance); err != nil {
				return err
			}

			e.audit(ctx, instance, task.Name(), audit.ActionStepWaiting, "", "")
			e.metrics.Counter(metrickeys.InstanceWaiting, metrics.Tags{metrickeys.ProcessName: def.Name()}, 1)

			return nil

		default:
			if instance.Error == "" {
				instance.Error = fmt.Sprintf("step %s failed", task.Name())
			}

			markFailed(instance)

			if err := e.persist(ctx, instance); err != nil {
				return err
			}

			e.audit(ctx, instance, task.Name(), audit.ActionStepFailed, instance.Error, "")
			e.failed(instance, task.Name())

			return nil
		}
	}

	return nil
}

func (e *Engine) executeStep(ctx context.Context, def *process.Definition, instance *core.Instance, task step.Task) step.Result {
	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("Step: %s", task.Name()), trace.WithAttributes(
		attribute.String(tracing.InstanceID, instance.ID),
		attribute.String(tracing.StepName, task.Name()),
		attribute.Int(tracing.StepIndex, instance.CurrentStepIndex),
	))
	defer span.End()

	tags := metrics.Tags{metrickeys.ProcessName: def.Name(), metrickeys.StepName: task.Name()}

	stop := metrics.StartTimer(e.metrics, e.clock, metrickeys.StepDuration, tags)
	result := task.Execute(ctx, instance)
	elapsed := stop()

	span.SetAttributes(attribute.String(tracing.StepResult, result.String()))
	if result == step.Failed {
		span.SetStatus(codes.Error, instance.Error)
	}

	e.metrics.Counter(metrickeys.StepExecuted, metrics.Tags{
		metrickeys.ProcessName: def.Name(),
		metrickeys.StepName:    task.Name(),
		metrickeys.StepResult:  result.String(),
	}, 1)

	e.logger.Debug(
		"Executed step",
		log.InstanceIDKey, instance.ID,
		log.StepNameKey, task.Name(),
		log.StepIndexKey, instance.CurrentStepIndex,
		log.StepResultKey, result.String(),
		log.DurationKey, elapsed.Milliseconds(),
	)

	return result
}

func markFailed(instance *core.Instance) {
	instance.Status = core.StatusFailed
	instance.WaitingForUser = false
	instance.CurrentUserStepName = ""
}

// failed reports an instance whose failure has been persisted.
func (e *Engine) failed(instance *core.Instance, stepName string) {
	e.metrics.Counter(metrickeys.InstanceFailed, metrics.Tags{metrickeys.ProcessName: instance.ProcessName}, 1)

	e.logger.Warn(
		"Instance failed",
		log.InstanceIDKey, instance.ID,
		log.ProcessNameKey, instance.ProcessName,
		log.StepNameKey, stepName,
		"error", instance.Error,
	)
}

// persist writes the instance with a compare-and-swap on its version.
func (e *Engine) persist(ctx context.Context, instance *core.Instance) error {
	instance.UpdatedAt = e.clock.Now()

	if err := e.backend.UpdateInstance(ctx, instance); err != nil {
		if errors.Is(err, backend.ErrVersionConflict) {
			e.metrics.Counter(metrickeys.InstanceConflict, metrics.Tags{metrickeys.ProcessName: instance.ProcessName}, 1)
		}

		return fmt.Errorf("persisting instance %s: %w", instance.ID, err)
	}

	return nil
}

// audit writes an entry to the audit sink. Failures are logged and counted but never stop the instance.
func (e *Engine) audit(ctx context.Context, instance *core.Instance, stepName string, action audit.Action, details, actorID string) {
	entry := &audit.Entry{
		EntityType: audit.EntityTypeInstance,
		EntityID:   instance.ID,
		StepName:   stepName,
		Action:     action,
		Details:    details,
		ActorID:    actorID,
		TenantID:   instance.TenantID,
		Timestamp:  e.clock.Now(),
	}

	if err := e.sink.AppendAudit(ctx, entry); err != nil {
		e.metrics.Counter(metrickeys.AuditFailed, metrics.Tags{metrickeys.ProcessName: instance.ProcessName}, 1)
		e.logger.Error(
			"Could not append audit entry",
			log.InstanceIDKey, instance.ID,
			log.AuditActionKey, string(action),
			"error", err,
		)
	}
}
