package log

const (
	NamespaceKey = "procflow"

	InstanceIDKey  = NamespaceKey + ".instance.id"
	ProcessNameKey = NamespaceKey + ".process.name"
	TenantIDKey    = NamespaceKey + ".tenant.id"
	StatusKey      = NamespaceKey + ".instance.status"
	VersionKey     = NamespaceKey + ".instance.version"

	StepNameKey   = NamespaceKey + ".step.name"
	StepIndexKey  = NamespaceKey + ".step.index"
	StepResultKey = NamespaceKey + ".step.result"

	ActorIDKey     = NamespaceKey + ".actor.id"
	AuditActionKey = NamespaceKey + ".audit.action"

	DocumentIDKey = NamespaceKey + ".document.id"

	DurationKey = NamespaceKey + ".duration_ms"
)
