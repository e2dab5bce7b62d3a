// Package sequence provides the business operations on document numbering
// sequences: one-time initialization, preview and allocation.
package sequence

import (
	"context"
	"errors"
	"fmt"

	"kabala/internal/core/apperror"
	"kabala/internal/core/numerator"
	"kabala/internal/core/tx"
	"kabala/internal/domain/audit"
	"kabala/pkg/logger"
	"kabala/pkg/metrics"
)

// Service owns sequence state transitions. Every method is scoped by tenantID;
// callers resolve it from the authenticated caller, never from input.
type Service struct {
	store     numerator.Store
	txManager tx.Manager
	audit     audit.Recorder
	metrics   *metrics.Numbering
}

// NewService creates a sequence service. Nil audit and metrics are allowed.
func NewService(store numerator.Store, txManager tx.Manager, recorder audit.Recorder, m *metrics.Numbering) *Service {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Service{
		store:     store,
		txManager: txManager,
		audit:     recorder,
		metrics:   m,
	}
}

// Status describes a document type's numbering from the tenant's point of view.
type Status struct {
	DocumentType numerator.DocumentType `json:"documentType"`
	Initialized  bool                   `json:"initialized"`
	Issued       bool                   `json:"issued"` // at least one number allocated
	Sequence     *numerator.Sequence    `json:"sequence,omitempty"`
	Next         *numerator.Preview     `json:"next,omitempty"`
}

// InitializeSequence sets the starting number and prefix of a document type and
// locks them forever. A second call fails with SEQUENCE_LOCKED and changes nothing.
func (s *Service) InitializeSequence(
	ctx context.Context,
	tenantID string,
	docType numerator.DocumentType,
	startingNumber int64,
	prefix string,
) (*numerator.Sequence, error) {
	// 1. Validate input
	if !docType.Valid() {
		return nil, apperror.NewValidation("unknown document type").WithDetail("document_type", docType)
	}
	if err := numerator.ValidateInit(startingNumber, prefix); err != nil {
		return nil, apperror.NewValidation(err.Error()).WithDetail("document_type", docType)
	}

	// 2. Lock and audit atomically
	var seq *numerator.Sequence
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		seq, err = s.store.Lock(ctx, tenantID, docType, startingNumber, prefix)
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Entry{
			TenantID:   tenantID,
			EntityType: audit.EntitySequence,
			EntityID:   docType.String(),
			Action:     audit.ActionInitialize,
			Changes: map[string]any{
				"starting_number": startingNumber,
				"prefix":          prefix,
			},
		})
	})
	if err != nil {
		s.metrics.ObserveInitialization(docType.String(), metrics.ResultRejected)
		if errors.Is(err, numerator.ErrAlreadyLocked) {
			logger.Warn(ctx, "sequence initialization rejected: already locked",
				"document_type", docType)
			return nil, apperror.NewSequenceLocked(docType.String())
		}
		return nil, normalize(err, "initialize sequence")
	}

	s.metrics.ObserveInitialization(docType.String(), metrics.ResultSuccess)
	logger.Info(ctx, "sequence initialized",
		"document_type", docType,
		"starting_number", startingNumber,
		"prefix", prefix,
	)
	return seq, nil
}

// PreviewNext returns the number the next finalization would most likely get.
// It never mutates state; a concurrent finalization may take the number first.
func (s *Service) PreviewNext(ctx context.Context, tenantID string, docType numerator.DocumentType) (*numerator.Preview, error) {
	seq, err := s.getLocked(ctx, tenantID, docType)
	if err != nil {
		return nil, err
	}
	return previewOf(seq), nil
}

// Allocate hands out the next number. The number is consumed once returned.
func (s *Service) Allocate(ctx context.Context, tenantID string, docType numerator.DocumentType) (numerator.Allocation, error) {
	if !docType.Valid() {
		return numerator.Allocation{}, apperror.NewValidation("unknown document type").WithDetail("document_type", docType)
	}

	a, err := s.store.Allocate(ctx, tenantID, docType)
	if err != nil {
		s.metrics.ObserveAllocation(docType.String(), metrics.ResultError)
		if errors.Is(err, numerator.ErrNotFound) || errors.Is(err, numerator.ErrNotLocked) {
			return numerator.Allocation{}, apperror.NewSequenceNotInitialized(docType.String())
		}
		return numerator.Allocation{}, normalize(err, "allocate number")
	}

	s.metrics.ObserveAllocation(docType.String(), metrics.ResultSuccess)
	logger.Debug(ctx, "number allocated", "document_type", docType, "number", a.Formatted)
	return a, nil
}

// Get returns the locked sequence of a document type.
func (s *Service) Get(ctx context.Context, tenantID string, docType numerator.DocumentType) (*numerator.Sequence, error) {
	return s.getLocked(ctx, tenantID, docType)
}

// List reports every supported document type, initialized or not.
func (s *Service) List(ctx context.Context, tenantID string) ([]Status, error) {
	seqs, err := s.store.List(ctx, tenantID)
	if err != nil {
		return nil, normalize(err, "list sequences")
	}

	byType := make(map[numerator.DocumentType]*numerator.Sequence, len(seqs))
	for _, seq := range seqs {
		byType[seq.DocumentType] = seq
	}

	out := make([]Status, 0, len(numerator.DocumentTypes))
	for _, dt := range numerator.DocumentTypes {
		st := Status{DocumentType: dt}
		if seq, ok := byType[dt]; ok && seq.IsLocked {
			st.Initialized = true
			st.Issued = seq.Issued()
			st.Sequence = seq
			st.Next = previewOf(seq)
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *Service) getLocked(ctx context.Context, tenantID string, docType numerator.DocumentType) (*numerator.Sequence, error) {
	if !docType.Valid() {
		return nil, apperror.NewValidation("unknown document type").WithDetail("document_type", docType)
	}

	seq, err := s.store.Get(ctx, tenantID, docType)
	if errors.Is(err, numerator.ErrNotFound) {
		return nil, apperror.NewSequenceNotInitialized(docType.String())
	}
	if err != nil {
		return nil, normalize(err, "get sequence")
	}
	if !seq.IsLocked {
		return nil, apperror.NewSequenceNotInitialized(docType.String())
	}
	return seq, nil
}

func previewOf(seq *numerator.Sequence) *numerator.Preview {
	next := seq.Next()
	return &numerator.Preview{
		DocumentType: seq.DocumentType,
		NextNumber:   next,
		Formatted:    numerator.Format(seq.Prefix, next),
	}
}

// normalize keeps AppErrors and hides everything else behind INTERNAL_ERROR.
func normalize(err error, op string) error {
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewInternal(fmt.Errorf("%s: %w", op, err))
}
