// Package cache provides caching infrastructure with PostgreSQL LISTEN/NOTIFY support.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"kabala/internal/core/tenant"
	"kabala/pkg/logger"
)

// ChannelTenantsChanged is notified by the tenants table trigger with the tenant id as payload.
const ChannelTenantsChanged = "tenants_changed"

// TenantCache is a tenant.Registry that keeps GetByID results in memory.
// Entries are dropped on NOTIFY from the tenants table and expire after ttl,
// so a lost notification only delays a suspension by at most ttl.
type TenantCache struct {
	inner tenant.Registry
	pool  *pgxpool.Pool // nil disables LISTEN
	ttl   time.Duration
	now   func() time.Time

	mu      sync.RWMutex
	entries map[string]cachedTenant

	// Lifecycle
	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

type cachedTenant struct {
	tenant    tenant.Tenant
	expiresAt time.Time
}

var _ tenant.Registry = (*TenantCache)(nil)

// NewTenantCache wraps inner. A ttl of zero selects one minute.
func NewTenantCache(pool *pgxpool.Pool, inner tenant.Registry, ttl time.Duration) *TenantCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &TenantCache{
		inner:   inner,
		pool:    pool,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cachedTenant),
	}
}

// Start begins listening for tenant change notifications.
func (c *TenantCache) Start(ctx context.Context) {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.started || c.pool == nil {
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.started = true

	c.wg.Add(1)
	go c.listenLoop()
	logger.Info(c.ctx, "tenant cache started")
}

// Stop gracefully stops the listener.
func (c *TenantCache) Stop() {
	c.lifecycleMu.Lock()
	if !c.started {
		c.lifecycleMu.Unlock()
		return
	}
	cancel := c.cancel
	c.started = false
	c.cancel = nil
	c.lifecycleMu.Unlock()

	cancel()
	c.wg.Wait()
	logger.Info(context.Background(), "tenant cache stopped")
}

func (c *TenantCache) listenLoop() {
	defer c.wg.Done()

	for c.ctx.Err() == nil {
		// Dedicated connection for LISTEN
		conn, err := c.pool.Acquire(c.ctx)
		if err != nil {
			logger.Error(c.ctx, "failed to acquire connection for LISTEN", "error", err)
			c.sleep(time.Second)
			continue
		}

		if _, err := conn.Exec(c.ctx, "LISTEN "+ChannelTenantsChanged); err != nil {
			logger.Error(c.ctx, "failed to LISTEN", "error", err)
			conn.Release()
			c.sleep(time.Second)
			continue
		}

		// Changes made while we were not listening are unknown.
		c.InvalidateAll()

		for c.ctx.Err() == nil {
			n, err := conn.Conn().WaitForNotification(c.ctx)
			if err != nil {
				if c.ctx.Err() == nil {
					logger.Warn(c.ctx, "tenant notifications interrupted", "error", err)
				}
				break
			}
			c.Invalidate(strings.TrimSpace(n.Payload))
		}
		conn.Release()
	}
}

func (c *TenantCache) sleep(d time.Duration) {
	select {
	case <-c.ctx.Done():
	case <-time.After(d):
	}
}

// Invalidate drops one tenant. An empty id drops everything.
func (c *TenantCache) Invalidate(tenantID string) {
	if tenantID == "" {
		c.InvalidateAll()
		return
	}
	c.mu.Lock()
	delete(c.entries, tenantID)
	c.mu.Unlock()
}

// InvalidateAll empties the cache.
func (c *TenantCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]cachedTenant)
	c.mu.Unlock()
}

// GetByID serves from memory when possible. Unknown tenants are not cached.
func (c *TenantCache) GetByID(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	c.mu.RLock()
	e, ok := c.entries[tenantID]
	c.mu.RUnlock()
	if ok && c.now().Before(e.expiresAt) {
		t := e.tenant
		return &t, nil
	}

	t, err := c.inner.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[tenantID] = cachedTenant{tenant: *t, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return t, nil
}

func (c *TenantCache) ListActive(ctx context.Context) ([]*tenant.Tenant, error) {
	return c.inner.ListActive(ctx)
}

func (c *TenantCache) ListAll(ctx context.Context) ([]*tenant.Tenant, error) {
	return c.inner.ListAll(ctx)
}

func (c *TenantCache) Create(ctx context.Context, t *tenant.Tenant) error {
	return c.inner.Create(ctx, t)
}

// UpdateStatusByID writes through and drops the local entry without waiting for NOTIFY.
func (c *TenantCache) UpdateStatusByID(ctx context.Context, tenantID string, status tenant.Status) error {
	defer c.Invalidate(tenantID)
	return c.inner.UpdateStatusByID(ctx, tenantID, status)
}

// Len returns the number of cached tenants.
func (c *TenantCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
