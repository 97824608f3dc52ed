package core

import (
	"time"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusWaiting   Status = "waiting"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is absorbing. Terminal instances are not driven again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusWaiting, StatusCompleted, StatusFailed:
		return true
	}

	return false
}

// Instance is one persisted execution of a process definition.
type Instance struct {
	// ID is generated at creation and never changes.
	ID string `json:"id"`

	// TenantID is the owning tenant. Stores only return an instance to callers of the same tenant.
	TenantID string `json:"tenant_id"`

	// ProcessName refers to the definition driving this instance.
	ProcessName string `json:"process_name"`

	// Steps is the step-name sequence of the definition at the time the instance was started.
	Steps []string `json:"steps"`

	Variables Variables `json:"variables"`

	Status Status `json:"status"`

	// CurrentStepIndex is the cursor into Steps. It only ever increases.
	CurrentStepIndex int `json:"current_step_index"`

	// WaitingForUser and CurrentUserStepName are only set while Status is StatusWaiting.
	WaitingForUser      bool   `json:"waiting_for_user,omitempty"`
	CurrentUserStepName string `json:"current_user_step_name,omitempty"`

	// Error is the last failure message, set together with StatusFailed.
	Error string `json:"error,omitempty"`

	// Version is the optimistic concurrency token, incremented by every successful persist.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewInstance(id, tenantID, processName string, steps []string, vars Variables, now time.Time) *Instance {
	if vars == nil {
		vars = Variables{}
	}

	return &Instance{
		ID:          id,
		TenantID:    tenantID,
		ProcessName: processName,
		Steps:       append([]string(nil), steps...),
		Variables:   vars,
		Status:      StatusRunning,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CurrentStepName returns the name of the step at the cursor, or "" once the cursor passed the last step.
func (i *Instance) CurrentStepName() string {
	if i.CurrentStepIndex < 0 || i.CurrentStepIndex >= len(i.Steps) {
		return ""
	}

	return i.Steps[i.CurrentStepIndex]
}

// Clone returns a deep copy. Stores hand out clones so callers never share state with them.
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}

	c := *i
	c.Steps = append([]string(nil), i.Steps...)
	c.Variables = i.Variables.Clone()

	return &c
}
