package tenant

import (
	"context"
	"errors"
)

type ctxKey int

const (
	tenantKey ctxKey = iota
)

// ErrNoTenantInContext is returned when no tenant was resolved for the caller.
var ErrNoTenantInContext = errors.New("tenant not found in context")

// WithTenant stores the resolved tenant in context.
func WithTenant(ctx context.Context, t *Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// GetTenant retrieves tenant from context.
func GetTenant(ctx context.Context) *Tenant {
	t, _ := ctx.Value(tenantKey).(*Tenant)
	return t
}

// GetTenantID returns tenant ID or empty string.
func GetTenantID(ctx context.Context) string {
	if t := GetTenant(ctx); t != nil {
		return t.ID
	}
	return ""
}

// ResolveID returns the tenant of the current caller. Every sequence and
// document operation is scoped by the returned ID.
func ResolveID(ctx context.Context) (string, error) {
	t := GetTenant(ctx)
	if t == nil || t.ID == "" {
		return "", ErrNoTenantInContext
	}
	return t.ID, nil
}
