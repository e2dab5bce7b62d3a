// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"kabala/internal/core/tenant"
	"kabala/internal/domain/auth"
	"kabala/internal/infrastructure/http/v1/handlers"
	"kabala/internal/infrastructure/http/v1/middleware"
	"kabala/pkg/logger"
	"kabala/pkg/metrics"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// Metrics is exposed at /metrics and fed by request logging. Optional.
	Metrics *metrics.Numbering

	// DB is pinged by the readiness probe
	DB handlers.Pinger

	// Version reported by /health/info
	Version string

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// TenantRegistry checks that the caller's tenant exists and is active
	TenantRegistry tenant.Registry

	// IdempotencyStore enables X-Idempotency-Key handling when set
	IdempotencyStore middleware.IdempotencyStore

	Sequences handlers.SequenceService
	Documents handlers.DocumentService
	Gaps      handlers.GapService

	// History serves document audit trails. Optional.
	History handlers.HistoryReader

	// RetryFinalize routes finalize through FinalizeWithRetry
	RetryFinalize bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger, cfg.Metrics))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth, no tenant required)
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	// API v1
	v1 := router.Group("/api/v1")
	{
		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.JWTValidator))          // 1. Validate JWT
		protected.Use(middleware.TenantScope(cfg.TenantRegistry)) // 2. Resolve tenant from token

		if cfg.IdempotencyStore != nil {
			protected.Use(middleware.Idempotency(cfg.IdempotencyStore))
		}

		base := handlers.NewBaseHandler()
		registerSequenceRoutes(protected, base, cfg)
		registerDocumentRoutes(protected, base, cfg)
		registerGapRoutes(protected, base, cfg)
	}

	return router
}

// registerSequenceRoutes registers numbering settings endpoints.
func registerSequenceRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewSequenceHandler(base, cfg.Sequences)

	sequences := rg.Group("/sequences")
	sequences.GET("", h.List)
	sequences.GET("/:type", h.Get)
	sequences.GET("/:type/preview", h.Preview)
	sequences.POST("/:type/initialize", middleware.RequireRole(auth.RoleOwner), h.Initialize)
}

// registerDocumentRoutes registers draft lifecycle and finalize endpoints.
func registerDocumentRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewDocumentHandler(base, handlers.DocumentHandlerConfig{
		Service:       cfg.Documents,
		History:       cfg.History,
		RetryFinalize: cfg.RetryFinalize,
	})

	docs := rg.Group("/documents")
	docs.GET("", h.List)
	docs.POST("", h.Create)
	docs.GET("/:id", h.Get)
	docs.PUT("/:id", h.Update)
	docs.DELETE("/:id", h.Delete)
	docs.POST("/:id/finalize", h.Finalize)
	if h.HasHistory() {
		docs.GET("/:id/history", h.History)
	}
}

// registerGapRoutes registers the gap ledger endpoints.
func registerGapRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewGapHandler(base, cfg.Gaps)

	gaps := rg.Group("/sequence-gaps")
	gaps.GET("", h.List)
	gaps.POST("/:id/resolve", middleware.RequireRole(auth.RoleOwner, auth.RoleAccountant), h.Resolve)
}
