package tracing

const (
	InstanceID  = "instance.id"
	ProcessName = "process.name"
	TenantID    = "tenant.id"

	StepName   = "step.name"
	StepIndex  = "step.index"
	StepResult = "step.result"

	ActorID = "actor.id"
)
