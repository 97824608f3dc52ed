// Package metrics is the minimal metrics interface the engine and backends report to. Adapt it to the
// metrics system in use, e.g. statsd or OpenTelemetry.
package metrics

import "time"

type Tags map[string]string

type Client interface {
	// Counter adds value to a monotonic counter.
	Counter(name string, tags Tags, value int64)

	Distribution(name string, tags Tags, value float64)

	// Gauge sets the current value of name.
	Gauge(name string, tags Tags, value int64)

	Timing(name string, tags Tags, duration time.Duration)

	// WithTags returns a client adding tags to everything it reports.
	WithTags(tags Tags) Client
}

type noopClient struct{}

// NewNoopClient returns a client that drops all metrics.
func NewNoopClient() Client {
	return noopClient{}
}

func (noopClient) Counter(string, Tags, int64)        {}
func (noopClient) Distribution(string, Tags, float64) {}
func (noopClient) Gauge(string, Tags, int64)          {}
func (noopClient) Timing(string, Tags, time.Duration) {}
func (n noopClient) WithTags(Tags) Client             { return n }
