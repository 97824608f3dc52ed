package backend

import (
	"log/slog"

	"github.com/ledgerdocs/procflow/metrics"
)

// Options are common to all backends.
type Options struct {
	Logger  *slog.Logger
	Metrics metrics.Client
}

type BackendOption func(*Options)

func WithLogger(logger *slog.Logger) BackendOption {
	return func(o *Options) {
		o.Logger = logger
	}
}

func WithMetrics(client metrics.Client) BackendOption {
	return func(o *Options) {
		o.Metrics = client
	}
}

// ApplyOptions returns the options with opts applied. Unset values fall back to slog.Default and a
// client dropping all metrics.
func ApplyOptions(opts ...BackendOption) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	if o.Metrics == nil {
		o.Metrics = metrics.NewNoopClient()
	}

	return o
}
