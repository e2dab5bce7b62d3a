package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"kabala/internal/core/id"
	"kabala/internal/core/tenant"
)

// Registry implements tenant.Registry.
type Registry struct {
	mu      sync.Mutex
	tenants map[string]*tenant.Tenant
}

func NewRegistry(seed ...*tenant.Tenant) *Registry {
	r := &Registry{tenants: make(map[string]*tenant.Tenant)}
	for _, t := range seed {
		cp := *t
		if cp.Status == "" {
			cp.Status = tenant.StatusActive
		}
		r.tenants[cp.ID] = &cp
	}
	return r
}

var _ tenant.Registry = (*Registry)(nil)

func (r *Registry) GetByID(_ context.Context, tenantID string) (*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[tenantID]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *Registry) ListActive(ctx context.Context) ([]*tenant.Tenant, error) {
	all, _ := r.ListAll(ctx)
	var out []*tenant.Tenant
	for _, t := range all {
		if t.IsActive() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *Registry) ListAll(_ context.Context) ([]*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*tenant.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (r *Registry) Create(_ context.Context, t *tenant.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == "" {
		t.ID = id.New().String()
	}
	if t.Status == "" {
		t.Status = tenant.StatusActive
	}
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	r.tenants[t.ID] = &cp
	return nil
}

func (r *Registry) UpdateStatusByID(_ context.Context, tenantID string, status tenant.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[tenantID]
	if !ok {
		return tenant.ErrTenantNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	return nil
}
