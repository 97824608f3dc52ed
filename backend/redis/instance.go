package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ledgerdocs/procflow/backend"
	"github.com/ledgerdocs/procflow/core"
	"github.com/redis/go-redis/v9"
)

func (rb *redisBackend) CreateInstance(ctx context.Context, instance *core.Instance) error {
	c := instance.Clone()
	c.Version = 1

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling instance: %w", err)
	}

	key := rb.keys.instanceKey(c.TenantID, c.ID)

	err = rb.rdb.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("checking instance: %w", err)
		}

		if exists > 0 {
			return backend.ErrInstanceAlreadyExists
		}

		// The instance and its index entry are written together or not at all
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, 0)
			p.ZAdd(ctx, rb.keys.instancesByCreation(c.TenantID), redis.Z{
				Score:  float64(c.CreatedAt.UnixMilli()),
				Member: c.ID,
			})

			return nil
		})

		return err
	}, key)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return backend.ErrInstanceAlreadyExists
		}

		if errors.Is(err, backend.ErrInstanceAlreadyExists) {
			return err
		}

		return fmt.Errorf("storing instance: %w", err)
	}

	instance.Version = 1

	return nil
}

func (rb *redisBackend) GetInstance(ctx context.Context, tenantID, instanceID string) (*core.Instance, error) {
	data, err := rb.rdb.Get(ctx, rb.keys.instanceKey(tenantID, instanceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, backend.ErrInstanceNotFound
		}

		return nil, fmt.Errorf("reading instance: %w", err)
	}

	return unmarshalInstance(data)
}

// UpdateInstance watches the instance key, so a write by another client between the version check and the
// transaction aborts the transaction.
func (rb *redisBackend) UpdateInstance(ctx context.Context, instance *core.Instance) error {
	key := rb.keys.instanceKey(instance.TenantID, instance.ID)

	c := instance.Clone()
	c.Version = instance.Version + 1

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling instance: %w", err)
	}

	err = rb.rdb.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return backend.ErrInstanceNotFound
			}

			return fmt.Errorf("reading instance: %w", err)
		}

		current, err := unmarshalInstance(stored)
		if err != nil {
			return err
		}

		if current.Version != instance.Version {
			return fmt.Errorf("instance %s at version %d, have %d: %w", instance.ID, current.Version, instance.Version, backend.ErrVersionConflict)
		}

		expire := rb.options.AutoExpiration > 0 && c.Status.Terminal()
		now := rb.options.Clock.Now()

		var expired []string
		if expire {
			expired, err = tx.ZRangeByScore(ctx, rb.keys.instancesExpiring(instance.TenantID), &redis.ZRangeBy{
				Min: "-inf",
				Max: strconv.FormatInt(now.UnixMilli(), 10),
			}).Result()
			if err != nil {
				return fmt.Errorf("reading expired instances: %w", err)
			}
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, 0)

			if expire {
				p.Expire(ctx, key, rb.options.AutoExpiration)
				p.Expire(ctx, rb.keys.auditKey(instance.TenantID, instance.ID), rb.options.AutoExpiration)

				// Drop instances that expired since the last terminal update from the index
				if len(expired) > 0 {
					members := make([]any, 0, len(expired))
					for _, id := range expired {
						members = append(members, id)
					}

					p.ZRem(ctx, rb.keys.instancesByCreation(instance.TenantID), members...)
					p.ZRem(ctx, rb.keys.instancesExpiring(instance.TenantID), members...)
				}

				p.ZAdd(ctx, rb.keys.instancesExpiring(instance.TenantID), redis.Z{
					Score:  float64(now.Add(rb.options.AutoExpiration).UnixMilli()),
					Member: instance.ID,
				})
			}

			return nil
		})

		return err
	}, key)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("instance %s changed concurrently: %w", instance.ID, backend.ErrVersionConflict)
		}

		return err
	}

	instance.Version = c.Version

	return nil
}

func (rb *redisBackend) ListInstances(ctx context.Context, tenantID string, opts ...backend.ListOption) ([]*core.Instance, error) {
	o := backend.ApplyListOptions(opts...)

	ids, err := rb.rdb.ZRevRange(ctx, rb.keys.instancesByCreation(tenantID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading instance index: %w", err)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	instanceKeys := make([]string, 0, len(ids))
	for _, id := range ids {
		instanceKeys = append(instanceKeys, rb.keys.instanceKey(tenantID, id))
	}

	values, err := rb.rdb.MGet(ctx, instanceKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading instances: %w", err)
	}

	var r []*core.Instance
	for _, v := range values {
		// Expired instances stay in the index until the next terminal update of the tenant
		s, ok := v.(string)
		if !ok {
			continue
		}

		i, err := unmarshalInstance([]byte(s))
		if err != nil {
			return nil, err
		}

		if !o.Matches(i) {
			continue
		}

		r = append(r, i)
		if o.Limit > 0 && len(r) == o.Limit {
			break
		}
	}

	return r, nil
}

func unmarshalInstance(data []byte) (*core.Instance, error) {
	var i core.Instance
	if err := json.Unmarshal(data, &i); err != nil {
		return nil, fmt.Errorf("unmarshaling instance: %w", err)
	}

	if i.Variables == nil {
		i.Variables = core.Variables{}
	}

	return &i, nil
}
