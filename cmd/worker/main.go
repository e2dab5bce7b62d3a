// Package main is the entry point for the kabala background worker.
// Removes expired idempotency keys and reports unreconciled number gaps per tenant.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kabala/internal/config"
	"kabala/internal/core/tenant"
	"kabala/internal/infrastructure/storage/postgres"
	"kabala/internal/infrastructure/storage/postgres/document_repo"
	"kabala/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.App.IsDevelopment(),
		Service:     "kabala-worker",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Info("starting kabala worker")

	pool, err := postgres.NewPool(ctx, postgres.PoolConfigFrom(cfg.Database, "kabala-worker"))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool, cfg.Database.StatementTimeout)

	worker := NewWorker(WorkerConfig{
		Registry:          tenant.NewPostgresRegistry(pool),
		Idempotency:       postgres.NewIdempotencyStore(txManager, cfg.Idempotency.TTL),
		Gaps:              document_repo.NewGapRepo(txManager),
		Logger:            log,
		CleanupInterval:   cfg.Worker.CleanupInterval,
		GapReportInterval: cfg.Worker.GapReportInterval,
		Concurrency:       cfg.Worker.Concurrency,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	<-done
	log.Info("worker stopped")
}
