package documents

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kabala/internal/core/apperror"
	"kabala/internal/core/id"
	"kabala/internal/core/numerator"
	"kabala/internal/domain/audit"
	"kabala/pkg/logger"
	"kabala/pkg/metrics"
)

var tracer = otel.Tracer("kabala/documents")

// FinalizeResult describes an issued document.
type FinalizeResult struct {
	Document *Document `json:"document"`
	Number   string    `json:"number"`

	// AlreadyFinal is set when a retry found the document already issued.
	AlreadyFinal bool `json:"alreadyFinal"`
}

// Finalize issues a draft: it allocates the next number of docType and writes
// it to the document together with status final.
//
// Allocation commits on its own before the document update. If the update
// then matches no row or fails, the allocated number is burned: the call
// returns FINALIZE_INCONSISTENT and the number is written to the gap ledger.
// The gap ledger row is the explicit failure marker. The document itself
// keeps whatever status it had; no failed status is ever written to it.
func (s *Service) Finalize(ctx context.Context, tenantID string, docType numerator.DocumentType, docID id.ID) (*FinalizeResult, error) {
	started := time.Now()
	ctx, span := tracer.Start(ctx, "documents.Finalize", trace.WithAttributes(
		attribute.String("document.id", docID.String()),
		attribute.String("document.type", docType.String()),
	))
	defer span.End()

	result, outcome, err := s.finalize(ctx, tenantID, docType, docID)

	s.metrics.ObserveFinalize(docType.String(), outcome, time.Since(started))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	return result, nil
}

func (s *Service) finalize(ctx context.Context, tenantID string, docType numerator.DocumentType, docID id.ID) (*FinalizeResult, string, error) {
	// 1. Pre-check: the document must be a complete draft of docType
	doc, err := s.repo.Get(ctx, tenantID, docID)
	if err != nil {
		return nil, outcomeOf(err), normalize(err)
	}
	if doc.DocumentType != docType {
		return nil, metrics.ResultRejected, apperror.NewValidation("document type does not match").
			WithDetail("document_id", docID.String()).
			WithDetail("document_type", string(doc.DocumentType)).
			WithDetail("requested_type", string(docType))
	}
	if !doc.IsDraft() {
		return nil, metrics.ResultRejected, apperror.NewDocumentNotDraft(docID.String(), string(doc.Status))
	}
	if err := doc.ValidateForIssue(ctx); err != nil {
		return nil, metrics.ResultRejected, err
	}

	// 2. Allocate. A failure here leaves the document untouched.
	alloc, err := s.allocator.Allocate(ctx, tenantID, docType)
	if err != nil {
		return nil, outcomeOf(err), normalize(err)
	}

	// 3. Write the number, conditional on the document still being a draft
	at := s.now()
	ok, err := s.repo.MarkFinal(ctx, tenantID, docID, alloc.Formatted, at)
	if err != nil {
		return s.afterFailedUpdate(ctx, doc, alloc, at, err)
	}
	if !ok {
		s.burn(ctx, doc, alloc, GapPreconditionFailed, "document was no longer a draft")
		return nil, metrics.ResultInconsistent,
			apperror.NewFinalizeInconsistent(docID.String(), alloc.Formatted, http.StatusConflict)
	}

	doc.Status = StatusFinal
	doc.Number = &alloc.Formatted
	doc.FinalizedAt = &at
	doc.UpdatedAt = at
	doc.Version++

	s.recordFinalized(ctx, doc)
	logger.Info(ctx, "document finalized",
		"document_id", docID,
		"document_type", docType,
		"number", alloc.Formatted,
	)
	return &FinalizeResult{Document: doc, Number: alloc.Formatted}, metrics.ResultSuccess, nil
}

// afterFailedUpdate confirms whether a failed MarkFinal actually committed.
func (s *Service) afterFailedUpdate(
	ctx context.Context,
	doc *Document,
	alloc numerator.Allocation,
	at time.Time,
	updateErr error,
) (*FinalizeResult, string, error) {
	readCtx := context.WithoutCancel(ctx)
	current, readErr := s.repo.Get(readCtx, doc.TenantID, doc.ID)

	switch {
	case readErr == nil && current.IsFinal() && current.NumberOrEmpty() == alloc.Formatted:
		logger.Warn(ctx, "finalize update reported an error but was committed",
			"document_id", doc.ID,
			"number", alloc.Formatted,
			"error", updateErr,
		)
		s.recordFinalized(ctx, current)
		return &FinalizeResult{Document: current, Number: alloc.Formatted}, metrics.ResultSuccess, nil

	case readErr == nil:
		s.burn(ctx, doc, alloc, GapUpdateFailed, updateErr.Error())

	default:
		s.burn(ctx, doc, alloc, GapUpdateUnconfirmed, errors.Join(updateErr, readErr).Error())
	}

	return nil, metrics.ResultInconsistent,
		apperror.NewFinalizeInconsistent(doc.ID.String(), alloc.Formatted, http.StatusInternalServerError).
			WithCause(updateErr)
}

// burn records an allocated number that no document carries. The ERROR log
// line carries every field needed for reconciliation in case the gap row
// cannot be written either.
func (s *Service) burn(ctx context.Context, doc *Document, alloc numerator.Allocation, reason GapReason, detail string) {
	s.metrics.ObserveGap(doc.DocumentType.String(), string(reason))
	log := logger.FromContext(ctx).ForDocument(doc.ID.String(), doc.DocumentType.String())
	log.Errorw("allocated number was not committed to document",
		"number", alloc.Formatted,
		"reason", reason,
		"detail", detail,
	)

	gap := &Gap{
		ID:           id.New(),
		TenantID:     doc.TenantID,
		DocumentType: doc.DocumentType,
		Number:       alloc.Number,
		Formatted:    alloc.Formatted,
		DocumentID:   doc.ID,
		Reason:       reason,
		Detail:       detail,
		CreatedAt:    s.now(),
	}
	if err := s.gaps.Record(context.WithoutCancel(ctx), gap); err != nil {
		log.Errorw("failed to record sequence gap", "number", alloc.Formatted, "error", err)
	}
}

func (s *Service) recordFinalized(ctx context.Context, doc *Document) {
	err := s.audit.Record(context.WithoutCancel(ctx), audit.Entry{
		TenantID:   doc.TenantID,
		EntityType: audit.EntityDocument,
		EntityID:   doc.ID.String(),
		Action:     audit.ActionFinalize,
		Changes: map[string]any{
			"document_status": string(StatusFinal),
			"document_number": doc.NumberOrEmpty(),
		},
	})
	if err != nil {
		logger.Warn(ctx, "failed to audit finalization", "document_id", doc.ID, "error", err)
	}
}

func outcomeOf(err error) string {
	if apperror.IsTransient(err) || !apperror.IsAppError(err) {
		return metrics.ResultError
	}
	return metrics.ResultRejected
}
