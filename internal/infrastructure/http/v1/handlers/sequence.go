package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"kabala/internal/core/apperror"
	"kabala/internal/core/numerator"
	"kabala/internal/domain/sequence"
	"kabala/internal/infrastructure/http/v1/dto"
)

// SequenceService is implemented by sequence.Service.
type SequenceService interface {
	InitializeSequence(ctx context.Context, tenantID string, docType numerator.DocumentType, startingNumber int64, prefix string) (*numerator.Sequence, error)
	PreviewNext(ctx context.Context, tenantID string, docType numerator.DocumentType) (*numerator.Preview, error)
	Get(ctx context.Context, tenantID string, docType numerator.DocumentType) (*numerator.Sequence, error)
	List(ctx context.Context, tenantID string) ([]sequence.Status, error)
}

var _ SequenceService = (*sequence.Service)(nil)

// SequenceHandler serves the numbering settings of the caller's tenant.
type SequenceHandler struct {
	*BaseHandler
	service SequenceService
}

// NewSequenceHandler creates a new sequence handler.
func NewSequenceHandler(base *BaseHandler, service SequenceService) *SequenceHandler {
	return &SequenceHandler{BaseHandler: base, service: service}
}

// List handles GET /sequences
func (h *SequenceHandler) List(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}

	statuses, err := h.service.List(c.Request.Context(), tenantID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ItemsResponse{Items: dto.FromStatuses(statuses)})
}

// Get handles GET /sequences/:type
func (h *SequenceHandler) Get(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	docType, ok := h.ParseDocumentType(c, c.Param("type"), "type")
	if !ok {
		return
	}

	seq, err := h.service.Get(c.Request.Context(), tenantID, docType)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromSequence(seq))
}

// Preview handles GET /sequences/:type/preview
// The number shown is advisory: a concurrent finalize may take it first.
func (h *SequenceHandler) Preview(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	docType, ok := h.ParseDocumentType(c, c.Param("type"), "type")
	if !ok {
		return
	}

	preview, err := h.service.PreviewNext(c.Request.Context(), tenantID, docType)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, preview)
}

// Initialize handles POST /sequences/:type/initialize
func (h *SequenceHandler) Initialize(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	docType, ok := h.ParseDocumentType(c, c.Param("type"), "type")
	if !ok {
		return
	}

	var req dto.InitializeSequenceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if !req.ConfirmIrreversible {
		h.Error(c, apperror.NewValidation("the starting number cannot be changed later; set confirmIrreversible to true").
			WithDetail("field", "confirmIrreversible"))
		return
	}

	seq, err := h.service.InitializeSequence(c.Request.Context(), tenantID, docType, req.StartingNumber, req.Prefix)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, dto.FromSequence(seq))
}
