// Package main is the entry point for the kabala API server.
// All tenants share one database; rows are scoped by tenant_id.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kabala/internal/config"
	"kabala/internal/core/tenant"
	"kabala/internal/domain/auth"
	"kabala/internal/domain/documents"
	"kabala/internal/domain/sequence"
	"kabala/internal/infrastructure/cache"
	v1 "kabala/internal/infrastructure/http/v1"
	"kabala/internal/infrastructure/http/v1/middleware"
	"kabala/internal/infrastructure/numerator"
	"kabala/internal/infrastructure/storage/postgres"
	"kabala/internal/infrastructure/storage/postgres/document_repo"
	"kabala/pkg/logger"
	"kabala/pkg/metrics"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.App.IsDevelopment(),
		Service:     "kabala-server",
		Version:     version,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := logger.WithLogger(context.Background(), log)
	log.Infow("starting kabala server", "env", cfg.App.Env, "version", version)

	// --- Database ---
	pool, err := postgres.NewPool(ctx, postgres.PoolConfigFrom(cfg.Database, "kabala-server"))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	if cfg.Database.MigrateOnStart {
		if err := migrateUp(ctx, pool); err != nil {
			log.Fatalw("failed to apply migrations", "error", err)
		}
	}

	txManager := postgres.NewTxManager(pool, cfg.Database.StatementTimeout)

	auditStore, err := postgres.NewAuditStore(txManager)
	if err != nil {
		log.Fatalw("failed to initialize audit store", "error", err)
	}

	m := metrics.New()

	// --- Domain services ---
	sequenceService := sequence.NewService(numerator.NewStore(txManager), txManager, auditStore, m)

	documentService := documents.NewService(documents.ServiceConfig{
		Repo:      document_repo.NewDocumentRepo(txManager),
		Gaps:      document_repo.NewGapRepo(txManager),
		Allocator: sequenceService,
		TxManager: txManager,
		Audit:     auditStore,
		Metrics:   m,
		Retry: documents.RetryConfig{
			MaxRetries:      cfg.Finalize.MaxRetries,
			InitialInterval: cfg.Finalize.InitialInterval,
			MaxInterval:     cfg.Finalize.MaxInterval,
		},
	})

	// --- JWT Service ---
	jwtConfig := auth.DefaultJWTConfig(cfg.JWT.Secret)
	jwtConfig.Issuer = cfg.JWT.Issuer
	jwtService := auth.NewJWTService(jwtConfig)

	var idempotencyStore middleware.IdempotencyStore
	if cfg.Idempotency.Enabled {
		idempotencyStore = postgres.NewIdempotencyStore(txManager, cfg.Idempotency.TTL)
	}

	tenants := cache.NewTenantCache(pool, tenant.NewPostgresRegistry(pool), cfg.App.TenantCacheTTL)
	tenants.Start(ctx)
	defer tenants.Stop()

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Logger:           log,
		Metrics:          m,
		DB:               pool,
		Version:          version,
		JWTValidator:     jwtService,
		TenantRegistry:   tenants,
		IdempotencyStore: idempotencyStore,
		Sequences:        sequenceService,
		Documents:        documentService,
		Gaps:             documentService,
		History:          auditStore,
		RetryFinalize:    cfg.Finalize.MaxRetries > 0,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.App.Port, "idempotency", cfg.Idempotency.Enabled)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
