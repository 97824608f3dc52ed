// Package audit defines the append-only audit trail written by the engine.
package audit

import (
	"context"
	"time"
)

const EntityTypeInstance = "WorkflowInstance"

type Action string

const (
	ActionStarted           Action = "started"
	ActionStepCompleted     Action = "step_completed"
	ActionStepWaiting       Action = "step_waiting"
	ActionStepFailed        Action = "step_failed"
	ActionUserStepCompleted Action = "user_step_completed"
	ActionUserInputRejected Action = "user_input_rejected"
	ActionUserStepFailed    Action = "user_step_failed"
	ActionCompleted         Action = "completed"
	ActionResumed           Action = "resumed"
)

type Entry struct {
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	StepName   string    `json:"step_name,omitempty"`
	Action     Action    `json:"action"`
	Details    string    `json:"details,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	TenantID   string    `json:"tenant_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sink receives audit entries. It is write-only from the engine's point of view.
type Sink interface {
	AppendAudit(ctx context.Context, entry *Entry) error
}

// Reader returns the audit trail of an entity in append order.
type Reader interface {
	AuditTrail(ctx context.Context, tenantID, entityID string) ([]*Entry, error)
}
