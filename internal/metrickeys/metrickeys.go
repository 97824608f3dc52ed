package metrickeys

const (
	Prefix = "procflow."

	// Instances
	InstanceCreated   = Prefix + "instance.created"
	InstanceCompleted = Prefix + "instance.completed"
	InstanceFailed    = Prefix + "instance.failed"
	InstanceWaiting   = Prefix + "instance.waiting"
	InstanceConflict  = Prefix + "instance.version_conflict"

	// Steps
	StepExecuted = Prefix + "step.executed"
	StepDuration = Prefix + "step.duration"

	UserStepCompleted = Prefix + "user_step.completed"
	UserStepRejected  = Prefix + "user_step.rejected"

	AuditFailed = Prefix + "audit.failed"

	// Tag cache
	TagCacheHit      = Prefix + "tagcache.hit"
	TagCacheMiss     = Prefix + "tagcache.miss"
	TagCacheEviction = Prefix + "tagcache.eviction"
	TagCacheSize     = Prefix + "tagcache.size"
)

// Tag names
const (
	// Backend being used
	Backend = "backend"

	ProcessName = "process"
	StepName    = "step"
	StepResult  = "result"

	EvictionReason = "reason"
)
