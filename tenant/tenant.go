// Package tenant carries the owning tenant of a request through its context.
package tenant

import (
	"context"
	"errors"
)

// Default is used when no tenant has been attached to the context.
const Default = "default"

var ErrNoTenant = errors.New("no tenant in context")

type tenantKeyType int

const tenantKey tenantKeyType = iota

func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// FromContext returns the tenant attached to ctx, falling back to Default.
func FromContext(ctx context.Context) (string, error) {
	if id, ok := ctx.Value(tenantKey).(string); ok && id != "" {
		return id, nil
	}

	return Default, nil
}

// Required returns the tenant attached to ctx and fails if there is none.
func Required(ctx context.Context) (string, error) {
	if id, ok := ctx.Value(tenantKey).(string); ok && id != "" {
		return id, nil
	}

	return "", ErrNoTenant
}
