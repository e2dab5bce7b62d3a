package documents

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"kabala/internal/core/apperror"
	"kabala/internal/core/id"
	"kabala/internal/core/numerator"
	"kabala/pkg/logger"
)

// RetryConfig bounds FinalizeWithRetry.
type RetryConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.InitialInterval <= 0 {
		c.InitialInterval = 100 * time.Millisecond
	}
	if c.MaxInterval < c.InitialInterval {
		c.MaxInterval = 2 * time.Second
	}
	return c
}

func (c RetryConfig) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialInterval
	b.MaxInterval = c.MaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, c.MaxRetries), ctx)
}

// FinalizeWithRetry calls Finalize and retries transient and inconsistent
// failures. Before every retry the document is re-read: if it is already final
// the call succeeds with the number it carries, so a retry never issues a
// second number for a document that already has one.
func (s *Service) FinalizeWithRetry(ctx context.Context, tenantID string, docType numerator.DocumentType, docID id.ID) (*FinalizeResult, error) {
	var (
		result  *FinalizeResult
		attempt int
	)

	op := func() error {
		attempt++
		if attempt > 1 {
			done, err := s.checkFinalized(ctx, tenantID, docID)
			if err != nil {
				return retryable(err)
			}
			if done != nil {
				result = done
				return nil
			}
		}

		r, err := s.Finalize(ctx, tenantID, docType, docID)
		if err != nil {
			return retryable(err)
		}
		result = r
		return nil
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn(ctx, "finalize failed, retrying",
			"document_id", docID,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	}

	if err := backoff.RetryNotify(op, s.retry.backOff(ctx), notify); err != nil {
		return nil, err
	}
	return result, nil
}

// checkFinalized returns a result when the document is already issued.
func (s *Service) checkFinalized(ctx context.Context, tenantID string, docID id.ID) (*FinalizeResult, error) {
	doc, err := s.repo.Get(ctx, tenantID, docID)
	if err != nil {
		return nil, normalize(err)
	}
	if !doc.IsFinal() {
		return nil, nil
	}

	number := doc.NumberOrEmpty()
	if _, err := s.gaps.ResolveForDocument(context.WithoutCancel(ctx), tenantID, docID, number,
		"number found on document after retry", s.now()); err != nil {
		logger.Warn(ctx, "failed to reconcile gap", "document_id", docID, "number", number, "error", err)
	}

	logger.Info(ctx, "document already finalized", "document_id", docID, "number", number)
	return &FinalizeResult{Document: doc, Number: number, AlreadyFinal: true}, nil
}

// retryable marks errors that must not be retried as permanent.
func retryable(err error) error {
	if apperror.IsTransient(err) || apperror.HasCode(err, apperror.CodeFinalizeInconsistent) {
		return err
	}
	return backoff.Permanent(err)
}
