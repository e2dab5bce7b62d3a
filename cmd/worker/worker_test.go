package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kabala/internal/core/tenant"
	"kabala/internal/testutil/memstore"
)

type gapCounts map[string]int

func (g gapCounts) CountUnresolved(_ context.Context, tenantID string) (int, error) {
	n, ok := g[tenantID]
	if !ok {
		return 0, errors.New("tenant unreachable")
	}
	return n, nil
}

type cleaner struct{ calls atomic.Int32 }

func (c *cleaner) CleanupExpired(context.Context) (int64, error) {
	c.calls.Add(1)
	return 2, nil
}

func TestCollectGapReports(t *testing.T) {
	registry := memstore.NewRegistry(
		&tenant.Tenant{ID: "t1", Slug: "one"},
		&tenant.Tenant{ID: "t2", Slug: "two"},
		&tenant.Tenant{ID: "t3", Slug: "three"},
		&tenant.Tenant{ID: "t4", Slug: "four", Status: tenant.StatusSuspended},
	)
	w := NewWorker(WorkerConfig{
		Registry:    registry,
		Gaps:        gapCounts{"t1": 0, "t2": 3, "t4": 9},
		Concurrency: 2,
	})

	reports, err := w.CollectGapReports(context.Background())
	require.Error(t, err, "t3 cannot be counted")

	byTenant := make(map[string]int)
	for _, r := range reports {
		byTenant[r.TenantID] = r.Unresolved
	}
	assert.Equal(t, map[string]int{"t1": 0, "t2": 3}, byTenant)
}

func TestRun_StopsOnCancel(t *testing.T) {
	c := &cleaner{}
	w := NewWorker(WorkerConfig{
		Registry:          memstore.NewRegistry(&tenant.Tenant{ID: "t1", Slug: "one"}),
		Idempotency:       c,
		Gaps:              gapCounts{"t1": 1},
		CleanupInterval:   time.Millisecond,
		GapReportInterval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	require.Eventually(t, func() bool { return c.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
