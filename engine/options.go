package engine

import (
	"context"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/ledgerdocs/procflow/audit"
	"github.com/ledgerdocs/procflow/metrics"
	"github.com/ledgerdocs/procflow/registry"
	"github.com/ledgerdocs/procflow/tenant"
	"go.opentelemetry.io/otel/trace"
)

type TenantResolver func(ctx context.Context) (string, error)

type options struct {
	Logger *slog.Logger

	Metrics metrics.Client

	TracerProvider trace.TracerProvider

	Clock clock.Clock

	// AuditSink receives audit entries. Defaults to the backend.
	AuditSink audit.Sink

	TenantResolver TenantResolver

	Registry *registry.Registry

	// NewID generates instance ids.
	NewID func() string
}

type Option func(*options)

// WithLogger sets the logger. Defaults to the backend's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.Logger = logger
	}
}

// WithMetrics sets the metrics client. Defaults to the backend's client.
func WithMetrics(client metrics.Client) Option {
	return func(o *options) {
		o.Metrics = client
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.TracerProvider = tp
	}
}

func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.Clock = c
	}
}

func WithAuditSink(sink audit.Sink) Option {
	return func(o *options) {
		o.AuditSink = sink
	}
}

// WithTenantResolver overrides how the tenant of a call is determined. Defaults to tenant.FromContext.
func WithTenantResolver(r TenantResolver) Option {
	return func(o *options) {
		o.TenantResolver = r
	}
}

// WithRegistry shares a registry between engines. Each engine gets its own registry by default.
func WithRegistry(r *registry.Registry) Option {
	return func(o *options) {
		o.Registry = r
	}
}

func WithIDGenerator(f func() string) Option {
	return func(o *options) {
		o.NewID = f
	}
}

func defaultOptions() *options {
	return &options{
		Clock:          clock.New(),
		TenantResolver: tenant.FromContext,
		NewID:          uuid.NewString,
	}
}
