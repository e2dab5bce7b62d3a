package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"kabala/internal/core/id"
	"kabala/internal/core/numerator"
	"kabala/internal/domain/audit"
	"kabala/internal/domain/documents"
	"kabala/internal/infrastructure/http/v1/dto"
	"kabala/internal/infrastructure/storage/postgres"
)

// DocumentService is implemented by documents.Service.
type DocumentService interface {
	Create(ctx context.Context, tenantID string, in documents.CreateInput) (*documents.Document, error)
	Get(ctx context.Context, tenantID string, docID id.ID) (*documents.Document, error)
	List(ctx context.Context, tenantID string, filter documents.ListFilter) ([]*documents.Document, int, error)
	Update(ctx context.Context, tenantID string, docID id.ID, in documents.UpdateInput) (*documents.Document, error)
	Delete(ctx context.Context, tenantID string, docID id.ID) error
	Finalize(ctx context.Context, tenantID string, docType numerator.DocumentType, docID id.ID) (*documents.FinalizeResult, error)
	FinalizeWithRetry(ctx context.Context, tenantID string, docType numerator.DocumentType, docID id.ID) (*documents.FinalizeResult, error)
}

var _ DocumentService = (*documents.Service)(nil)

// HistoryReader returns audit records of an entity. Implemented by postgres.AuditStore.
type HistoryReader interface {
	History(ctx context.Context, tenantID, entityType, entityID string, limit int) ([]postgres.AuditRecord, error)
}

// DocumentHandler serves drafts and their finalization.
type DocumentHandler struct {
	*BaseHandler
	service       DocumentService
	history       HistoryReader
	retryFinalize bool
}

// DocumentHandlerConfig configures the document handler.
type DocumentHandlerConfig struct {
	Service DocumentService
	History HistoryReader // Optional

	// RetryFinalize routes finalize through FinalizeWithRetry.
	RetryFinalize bool
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(base *BaseHandler, cfg DocumentHandlerConfig) *DocumentHandler {
	return &DocumentHandler{
		BaseHandler:   base,
		service:       cfg.Service,
		history:       cfg.History,
		retryFinalize: cfg.RetryFinalize,
	}
}

// HasHistory reports whether GET /documents/:id/history can be served.
func (h *DocumentHandler) HasHistory() bool { return h.history != nil }

// List handles GET /documents
func (h *DocumentHandler) List(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}

	var req dto.DocumentListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	filter, err := req.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	docs, total, err := h.service.List(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:      dto.FromDocuments(docs),
		TotalCount: int64(total),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// Get handles GET /documents/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	docID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	doc, err := h.service.Get(c.Request.Context(), tenantID, docID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromDocument(doc))
}

// Create handles POST /documents
// The draft carries no number; numbering sequences are not touched.
func (h *DocumentHandler) Create(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}

	var req dto.CreateDocumentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	docType, ok := h.ParseDocumentType(c, req.DocumentType, "documentType")
	if !ok {
		return
	}
	fields, err := req.ToFields()
	if err != nil {
		h.Error(c, err)
		return
	}

	doc, err := h.service.Create(c.Request.Context(), tenantID, documents.CreateInput{
		DocumentType: docType,
		Fields:       fields,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, dto.FromDocument(doc))
}

// Update handles PUT /documents/:id
func (h *DocumentHandler) Update(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	docID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateDocumentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	fields, err := req.ToFields()
	if err != nil {
		h.Error(c, err)
		return
	}

	doc, err := h.service.Update(c.Request.Context(), tenantID, docID, documents.UpdateInput{
		Version: req.Version,
		Fields:  fields,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromDocument(doc))
}

// Delete handles DELETE /documents/:id
func (h *DocumentHandler) Delete(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	docID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), tenantID, docID); err != nil {
		h.Error(c, err)
		return
	}

	h.NoContent(c)
}

// Finalize handles POST /documents/:id/finalize
func (h *DocumentHandler) Finalize(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	docID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var req dto.FinalizeDocumentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	docType, ok := h.ParseDocumentType(c, req.DocumentType, "documentType")
	if !ok {
		return
	}

	finalize := h.service.Finalize
	if h.retryFinalize {
		finalize = h.service.FinalizeWithRetry
	}

	result, err := finalize(c.Request.Context(), tenantID, docType, docID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromFinalizeResult(result))
}

// History handles GET /documents/:id/history
func (h *DocumentHandler) History(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	docID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var page dto.PaginationRequest
	if !h.BindQuery(c, &page) {
		return
	}
	page.Defaults()

	// Existence check keeps other tenants' ids indistinguishable from unknown ones.
	if _, err := h.service.Get(c.Request.Context(), tenantID, docID); err != nil {
		h.Error(c, err)
		return
	}

	records, err := h.history.History(c.Request.Context(), tenantID, audit.EntityDocument, docID.String(), page.Limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	if records == nil {
		records = []postgres.AuditRecord{}
	}

	h.OK(c, dto.ItemsResponse{Items: records})
}
