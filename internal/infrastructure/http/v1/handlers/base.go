package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"kabala/internal/core/apperror"
	"kabala/internal/core/id"
	"kabala/internal/core/numerator"
	"kabala/internal/core/tenant"
	"kabala/internal/infrastructure/http/v1/middleware"
	"kabala/pkg/logger"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// NewBaseHandler creates a new base handler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// BindJSON binds and validates JSON request body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// BindQuery binds and validates query parameters.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid query parameters").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// Error registers error on Gin context and aborts request.
// Actual JSON response is produced by middleware.ErrorHandler (single source of truth).
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// TenantID returns the caller's tenant. Writes 401 and returns false when none
// was resolved.
func (h *BaseHandler) TenantID(c *gin.Context) (string, bool) {
	tenantID, err := tenant.ResolveID(c.Request.Context())
	if err != nil {
		h.Error(c, apperror.NewUnauthorized("no tenant for caller"))
		return "", false
	}
	return tenantID, true
}

// ParseID parses a UUID path parameter.
func (h *BaseHandler) ParseID(c *gin.Context, param string) (id.ID, bool) {
	v, err := id.Parse(c.Param(param))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format").WithDetail("field", param))
		return id.ID{}, false
	}
	return v, true
}

// ParseDocumentType parses a document type from a path parameter or body field.
func (h *BaseHandler) ParseDocumentType(c *gin.Context, raw, field string) (numerator.DocumentType, bool) {
	dt, err := numerator.ParseDocumentType(raw)
	if err != nil {
		h.Error(c, apperror.NewValidation(err.Error()).WithDetail("field", field))
		return "", false
	}
	return dt, true
}

// respond writes a JSON response and records it for idempotent replay.
func (h *BaseHandler) respond(c *gin.Context, statusCode int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}
	if err := middleware.CompleteIdempotency(c, statusCode, "application/json", body); err != nil {
		logger.Warn(c.Request.Context(), "failed to store idempotent response", "error", err)
	}
	c.Data(statusCode, "application/json; charset=utf-8", body)
}

// Created sends 201 response with data.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	h.respond(c, http.StatusCreated, data)
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	h.respond(c, http.StatusOK, data)
}

// NoContent sends 204 response.
func (h *BaseHandler) NoContent(c *gin.Context) {
	// 204 must replay as 204 with empty body.
	if err := middleware.CompleteIdempotency(c, http.StatusNoContent, "", nil); err != nil {
		logger.Warn(c.Request.Context(), "failed to store idempotent response", "error", err)
	}
	c.Status(http.StatusNoContent)
}
