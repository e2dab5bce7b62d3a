// Package tenant provides the tenant registry and request-scoped tenant resolution.
// All tenants share one database; every row they own carries tenant_id.
package tenant

import (
	"fmt"
	"strings"
	"time"
)

// Status represents tenant lifecycle state.
type Status string

const (
	// StatusActive - tenant can issue documents
	StatusActive Status = "active"

	// StatusSuspended - tenant is temporarily disabled (e.g., payment issues)
	StatusSuspended Status = "suspended"
)

// Tenant is an isolated business account.
type Tenant struct {
	ID             string    `db:"id"`
	Slug           string    `db:"slug"`
	DisplayName    string    `db:"display_name"`
	BusinessNumber string    `db:"business_number"` // registration / VAT dealer number
	Status         Status    `db:"status"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// IsActive returns true if tenant can accept requests.
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

// CreateTenantInput contains data for creating a new tenant.
type CreateTenantInput struct {
	Slug           string
	DisplayName    string
	BusinessNumber string
}

// Validate checks if input is valid.
func (i *CreateTenantInput) Validate() error {
	i.Slug = strings.ToLower(strings.TrimSpace(i.Slug))
	if i.Slug == "" {
		return fmt.Errorf("slug is required")
	}
	if len(i.Slug) > 63 {
		return fmt.Errorf("slug must be 63 characters or less")
	}
	if strings.TrimSpace(i.DisplayName) == "" {
		return fmt.Errorf("display_name is required")
	}
	return nil
}
