package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ledgerdocs/procflow/audit"
)

func (rb *redisBackend) AppendAudit(ctx context.Context, entry *audit.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}

	if err := rb.rdb.RPush(ctx, rb.keys.auditKey(entry.TenantID, entry.EntityID), data).Err(); err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}

	return nil
}

func (rb *redisBackend) AuditTrail(ctx context.Context, tenantID, entityID string) ([]*audit.Entry, error) {
	values, err := rb.rdb.LRange(ctx, rb.keys.auditKey(tenantID, entityID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading audit trail: %w", err)
	}

	r := make([]*audit.Entry, 0, len(values))
	for _, v := range values {
		var e audit.Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, fmt.Errorf("unmarshaling audit entry: %w", err)
		}

		r = append(r, &e)
	}

	return r, nil
}
