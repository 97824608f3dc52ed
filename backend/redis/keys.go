package redis

import (
	"fmt"
	"strings"
)

type keys struct {
	// Ensure prefix ends with `:`
	prefix string
}

func newKeys(prefix string) *keys {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}

	return &keys{prefix: prefix}
}

// instanceKey holds the JSON encoded state of an instance
func (k *keys) instanceKey(tenantID, instanceID string) string {
	return fmt.Sprintf("%vinstance:%v:%v", k.prefix, tenantID, instanceID)
}

// instancesByCreation returns the key for the ZSET that contains all instances of a tenant sorted by creation
// date. The score is the creation time in unix milliseconds.
func (k *keys) instancesByCreation(tenantID string) string {
	return fmt.Sprintf("%vinstances-by-creation:%v", k.prefix, tenantID)
}

// instancesExpiring returns the key for the ZSET of a tenant's instances set to expire. The score is the
// expiration time in unix milliseconds.
func (k *keys) instancesExpiring(tenantID string) string {
	return fmt.Sprintf("%vinstances-expiring:%v", k.prefix, tenantID)
}

// auditKey returns the LIST holding the audit trail of an entity
func (k *keys) auditKey(tenantID, entityID string) string {
	return fmt.Sprintf("%vaudit:%v:%v", k.prefix, tenantID, entityID)
}
