package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	"kabala/internal/core/apperror"
	appctx "kabala/internal/core/context"
	"kabala/internal/core/tenant"
	"kabala/pkg/logger"
)

const (
	// TenantHeader optionally names the tenant; it must match the token.
	TenantHeader = "X-Tenant-ID"
)

// TenantScope resolves the caller's tenant from the token and injects it
// into context. It must run after Auth.
//
// The tenant comes from the token only. A X-Tenant-ID header that names a
// different tenant is rejected; unknown and suspended tenants are refused.
func TenantScope(registry tenant.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		user := appctx.GetUser(ctx)
		if user == nil || user.TenantID == "" {
			abortUnauthorized(c, "no tenant for caller")
			return
		}

		if header := c.GetHeader(TenantHeader); header != "" && header != user.TenantID {
			_ = c.Error(
				apperror.NewForbidden("tenant mismatch").
					WithDetail("header_tenant_id", header).
					WithDetail("token_tenant_id", user.TenantID),
			)
			c.Abort()
			return
		}

		t, err := registry.GetByID(ctx, user.TenantID)
		if err != nil {
			if errors.Is(err, tenant.ErrTenantNotFound) {
				logger.Warn(ctx, "token names unknown tenant", "tenant_id", user.TenantID)
				_ = c.Error(apperror.NewForbidden("unknown tenant").WithDetail("tenant_id", user.TenantID))
			} else {
				_ = c.Error(apperror.NewInternal(err).WithDetail("tenant_id", user.TenantID))
			}
			c.Abort()
			return
		}
		if !t.IsActive() {
			_ = c.Error(apperror.NewForbidden("tenant is not active").WithDetail("tenant_id", t.ID))
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(tenant.WithTenant(ctx, t))
		c.Set("tenant_id", t.ID)

		c.Next()
	}
}
