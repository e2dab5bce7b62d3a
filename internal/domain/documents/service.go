package documents

import (
	"context"
	"fmt"
	"time"

	"kabala/internal/core/apperror"
	appctx "kabala/internal/core/context"
	"kabala/internal/core/id"
	"kabala/internal/core/numerator"
	"kabala/internal/core/tx"
	"kabala/internal/domain/audit"
	"kabala/pkg/logger"
	"kabala/pkg/metrics"
)

// Allocator hands out document numbers. Implemented by sequence.Service.
type Allocator interface {
	Allocate(ctx context.Context, tenantID string, docType numerator.DocumentType) (numerator.Allocation, error)
}

// Service provides business operations for documents.
type Service struct {
	repo      Repository
	gaps      GapRepository
	allocator Allocator
	txManager tx.Manager
	audit     audit.Recorder
	metrics   *metrics.Numbering
	retry     RetryConfig
	now       func() time.Time
}

// ServiceConfig configures the document service.
type ServiceConfig struct {
	Repo      Repository
	Gaps      GapRepository
	Allocator Allocator
	TxManager tx.Manager
	Audit     audit.Recorder     // Optional
	Metrics   *metrics.Numbering // Optional
	Retry     RetryConfig
	Clock     func() time.Time // Optional, defaults to time.Now().UTC()
}

// NewService creates a new document service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:      cfg.Repo,
		gaps:      cfg.Gaps,
		allocator: cfg.Allocator,
		txManager: cfg.TxManager,
		audit:     cfg.Audit,
		metrics:   cfg.Metrics,
		retry:     cfg.Retry.withDefaults(),
		now:       cfg.Clock,
	}
	if s.audit == nil {
		s.audit = audit.Nop{}
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// CreateInput is the content of a new draft.
type CreateInput struct {
	DocumentType numerator.DocumentType
	Fields
}

// UpdateInput replaces the content of a draft seen at Version.
type UpdateInput struct {
	Version int
	Fields
}

// Create stores a new draft. Drafts never touch numbering sequences.
func (s *Service) Create(ctx context.Context, tenantID string, in CreateInput) (*Document, error) {
	now := s.now()
	doc := &Document{
		ID:           id.New(),
		TenantID:     tenantID,
		DocumentType: in.DocumentType,
		Status:       StatusDraft,
		Version:      1,
		CreatedBy:    appctx.GetUserID(ctx),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	doc.Apply(in.Fields)
	if doc.IssueDate.IsZero() {
		doc.IssueDate = now.Truncate(24 * time.Hour)
	}

	if err := doc.Validate(ctx); err != nil {
		return nil, err
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		return s.audit.Record(ctx, audit.Entry{
			TenantID:   tenantID,
			EntityType: audit.EntityDocument,
			EntityID:   doc.ID.String(),
			Action:     audit.ActionCreate,
			Changes:    snapshot(doc),
		})
	})
	if err != nil {
		return nil, normalize(err)
	}

	logger.Info(ctx, "draft created",
		"document_id", doc.ID,
		"document_type", doc.DocumentType,
	)
	return doc, nil
}

// Get retrieves a document of the tenant.
func (s *Service) Get(ctx context.Context, tenantID string, docID id.ID) (*Document, error) {
	doc, err := s.repo.Get(ctx, tenantID, docID)
	if err != nil {
		return nil, normalize(err)
	}
	return doc, nil
}

// List returns a page of documents and the total count.
func (s *Service) List(ctx context.Context, tenantID string, filter ListFilter) ([]*Document, int, error) {
	filter.Normalize()
	docs, total, err := s.repo.List(ctx, tenantID, filter)
	if err != nil {
		return nil, 0, normalize(err)
	}
	return docs, total, nil
}

// Update replaces the content of a draft. Final documents are rejected with
// DOCUMENT_NOT_DRAFT; a stale version yields CONCURRENT_MODIFICATION.
func (s *Service) Update(ctx context.Context, tenantID string, docID id.ID, in UpdateInput) (*Document, error) {
	// 1. Load current state
	doc, err := s.repo.Get(ctx, tenantID, docID)
	if err != nil {
		return nil, normalize(err)
	}

	// 2. Status gate
	if !doc.IsDraft() {
		return nil, apperror.NewDocumentNotDraft(docID.String(), string(doc.Status))
	}
	if in.Version != doc.Version {
		return nil, apperror.NewConcurrentModification("document", docID.String()).
			WithDetail("expected_version", in.Version).
			WithDetail("actual_version", doc.Version)
	}

	// 3. Apply and validate
	before := snapshot(doc)
	doc.Apply(in.Fields)
	if doc.IssueDate.IsZero() {
		doc.IssueDate = s.now().Truncate(24 * time.Hour)
	}
	doc.UpdatedAt = s.now()
	if err := doc.Validate(ctx); err != nil {
		return nil, err
	}

	// 4. Conditional write
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		ok, err := s.repo.UpdateDraft(ctx, doc)
		if err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		if !ok {
			return s.classifyMiss(ctx, tenantID, docID)
		}
		return s.audit.Record(ctx, audit.Entry{
			TenantID:   tenantID,
			EntityType: audit.EntityDocument,
			EntityID:   docID.String(),
			Action:     audit.ActionUpdate,
			Changes:    audit.Diff(before, snapshot(doc)),
		})
	})
	if err != nil {
		return nil, normalize(err)
	}

	return doc, nil
}

// Delete hard-deletes a draft. Final documents can never be deleted.
func (s *Service) Delete(ctx context.Context, tenantID string, docID id.ID) error {
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		ok, err := s.repo.DeleteDraft(ctx, tenantID, docID)
		if err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		if !ok {
			return s.classifyMiss(ctx, tenantID, docID)
		}
		return s.audit.Record(ctx, audit.Entry{
			TenantID:   tenantID,
			EntityType: audit.EntityDocument,
			EntityID:   docID.String(),
			Action:     audit.ActionDelete,
		})
	})
	if err != nil {
		return normalize(err)
	}

	logger.Info(ctx, "draft deleted", "document_id", docID)
	return nil
}

// classifyMiss explains why a conditional draft mutation matched no row.
func (s *Service) classifyMiss(ctx context.Context, tenantID string, docID id.ID) error {
	current, err := s.repo.Get(ctx, tenantID, docID)
	if err != nil {
		return err
	}
	if !current.IsDraft() {
		return apperror.NewDocumentNotDraft(docID.String(), string(current.Status))
	}
	return apperror.NewConcurrentModification("document", docID.String()).
		WithDetail("actual_version", current.Version)
}

func snapshot(d *Document) map[string]any {
	return map[string]any{
		"document_type":   string(d.DocumentType),
		"document_status": string(d.Status),
		"document_number": d.NumberOrEmpty(),
		"issue_date":      d.IssueDate.Format(time.DateOnly),
		"customer_name":   d.CustomerName,
		"customer_tax_id": d.CustomerTaxID,
		"currency":        d.Currency,
		"total":           d.Total.String(),
		"notes":           d.Notes,
		"payments":        len(d.Payments),
	}
}

// normalize keeps AppErrors and hides everything else behind INTERNAL_ERROR.
func normalize(err error) error {
	if err == nil {
		return nil
	}
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewInternal(err)
}
