package redis

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ledgerdocs/procflow/backend"
)

// Options configure the redis backend.
type Options struct {
	*backend.Options

	// KeyPrefix namespaces all keys, so several deployments can share one database.
	KeyPrefix string

	// AutoExpiration lets completed and failed instances and their audit trail expire. 0 keeps them.
	AutoExpiration time.Duration

	// Clock decides when expired instances are dropped from the creation index.
	Clock clock.Clock
}

type Option func(*Options)

func WithBackendOptions(opts ...backend.BackendOption) Option {
	return func(o *Options) {
		for _, opt := range opts {
			opt(o.Options)
		}
	}
}

func WithAutoExpiration(after time.Duration) Option {
	return func(o *Options) {
		o.AutoExpiration = after
	}
}

func WithKeyPrefix(prefix string) Option {
	return func(o *Options) {
		o.KeyPrefix = prefix
	}
}

func WithClock(c clock.Clock) Option {
	return func(o *Options) {
		o.Clock = c
	}
}
