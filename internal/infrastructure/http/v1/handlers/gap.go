package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"kabala/internal/core/id"
	"kabala/internal/domain/documents"
	"kabala/internal/infrastructure/http/v1/dto"
)

// GapService is implemented by documents.Service.
type GapService interface {
	ListGaps(ctx context.Context, tenantID string, filter documents.GapFilter) ([]*documents.Gap, error)
	ResolveGap(ctx context.Context, tenantID string, gapID id.ID, note string) (*documents.Gap, error)
}

var _ GapService = (*documents.Service)(nil)

// GapHandler serves the ledger of burned numbers.
type GapHandler struct {
	*BaseHandler
	service GapService
}

// NewGapHandler creates a new gap handler.
func NewGapHandler(base *BaseHandler, service GapService) *GapHandler {
	return &GapHandler{BaseHandler: base, service: service}
}

// List handles GET /sequence-gaps
func (h *GapHandler) List(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}

	var req dto.GapListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	filter, err := req.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	gaps, err := h.service.ListGaps(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	if gaps == nil {
		gaps = []*documents.Gap{}
	}

	h.OK(c, dto.ItemsResponse{Items: gaps})
}

// Resolve handles POST /sequence-gaps/:id/resolve
func (h *GapHandler) Resolve(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	gapID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var req dto.ResolveGapRequest
	if !h.BindJSON(c, &req) {
		return
	}

	gap, err := h.service.ResolveGap(c.Request.Context(), tenantID, gapID, req.Note)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, gap)
}
