package main

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"

	"kabala/internal/core/tenant"
	"kabala/pkg/logger"
)

// IdempotencyCleaner removes expired idempotency keys.
type IdempotencyCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// GapCounter counts unreconciled burned numbers of a tenant.
type GapCounter interface {
	CountUnresolved(ctx context.Context, tenantID string) (int, error)
}

// WorkerConfig wires the worker.
type WorkerConfig struct {
	Registry          tenant.Registry
	Idempotency       IdempotencyCleaner
	Gaps              GapCounter
	Logger            *logger.Logger
	CleanupInterval   time.Duration
	GapReportInterval time.Duration
	Concurrency       int
}

// Worker runs periodic maintenance jobs.
type Worker struct {
	registry    tenant.Registry
	idempotency IdempotencyCleaner
	gaps        GapCounter
	log         *logger.Logger

	cleanupInterval   time.Duration
	gapReportInterval time.Duration
	concurrency       int
}

// GapReport is the unresolved gap count of one tenant.
type GapReport struct {
	TenantID   string
	Slug       string
	Unresolved int
}

func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return &Worker{
		registry:          cfg.Registry,
		idempotency:       cfg.Idempotency,
		gaps:              cfg.Gaps,
		log:               cfg.Logger.WithComponent("worker"),
		cleanupInterval:   cfg.CleanupInterval,
		gapReportInterval: cfg.GapReportInterval,
		concurrency:       cfg.Concurrency,
	}
}

// Run executes both jobs once and then on their intervals until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	cleanupTicker := time.NewTicker(w.cleanupInterval)
	defer cleanupTicker.Stop()

	reportTicker := time.NewTicker(w.gapReportInterval)
	defer reportTicker.Stop()

	w.cleanupIdempotency(ctx)
	w.reportGaps(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanupTicker.C:
			w.cleanupIdempotency(ctx)
		case <-reportTicker.C:
			w.reportGaps(ctx)
		}
	}
}

func (w *Worker) cleanupIdempotency(ctx context.Context) {
	n, err := w.idempotency.CleanupExpired(ctx)
	if err != nil {
		w.log.Errorw("failed to clean up idempotency keys", "error", err)
		return
	}
	if n > 0 {
		w.log.Infow("cleaned up idempotency keys", "count", n)
	}
}

func (w *Worker) reportGaps(ctx context.Context) {
	reports, err := w.CollectGapReports(ctx)
	if err != nil {
		w.log.Errorw("gap report incomplete", "error", err)
	}
	for _, r := range reports {
		if r.Unresolved > 0 {
			w.log.Warnw("tenant has unresolved number gaps",
				"tenant_id", r.TenantID,
				"tenant_slug", r.Slug,
				"unresolved", r.Unresolved,
			)
		}
	}
}

// CollectGapReports counts unresolved gaps of every active tenant, a bounded
// number of tenants at a time. Tenants that fail are left out of the result
// and their errors are joined.
func (w *Worker) CollectGapReports(ctx context.Context) ([]GapReport, error) {
	tenants, err := w.registry.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*GapReport, len(tenants))
	p := pool.New().WithMaxGoroutines(w.concurrency).WithContext(ctx)
	for i, t := range tenants {
		p.Go(func(ctx context.Context) error {
			n, err := w.gaps.CountUnresolved(ctx, t.ID)
			if err != nil {
				w.log.Warnw("failed to count gaps", "tenant_id", t.ID, "error", err)
				return err
			}
			results[i] = &GapReport{TenantID: t.ID, Slug: t.Slug, Unresolved: n}
			return nil
		})
	}
	err = p.Wait()

	reports := make([]GapReport, 0, len(results))
	for _, r := range results {
		if r != nil {
			reports = append(reports, *r)
		}
	}
	return reports, err
}
