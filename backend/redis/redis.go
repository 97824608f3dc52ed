package redis

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/ledgerdocs/procflow/backend"
	"github.com/ledgerdocs/procflow/internal/metrickeys"
	"github.com/ledgerdocs/procflow/metrics"
	"github.com/redis/go-redis/v9"
)

var _ backend.Backend = (*redisBackend)(nil)

func NewRedisBackend(client redis.UniversalClient, opts ...Option) (*redisBackend, error) {
	// Default options
	options := &Options{
		Options: backend.ApplyOptions(),
		Clock:   clock.New(),
	}

	for _, opt := range opts {
		opt(options)
	}

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &redisBackend{
		rdb:     client,
		keys:    newKeys(options.KeyPrefix),
		options: options,
	}, nil
}

type redisBackend struct {
	rdb     redis.UniversalClient
	keys    *keys
	options *Options
}

func (rb *redisBackend) Metrics() metrics.Client {
	return rb.options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: "redis"})
}

func (rb *redisBackend) Options() *backend.Options {
	return rb.options.Options
}

func (rb *redisBackend) Close() error {
	return rb.rdb.Close()
}
