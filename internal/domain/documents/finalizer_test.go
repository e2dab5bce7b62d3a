package documents_test

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kabala/internal/core/apperror"
	"kabala/internal/core/id"
	"kabala/internal/core/numerator"
	"kabala/internal/domain/audit"
	"kabala/internal/domain/documents"
)

func TestFinalize_IssuesNumbersInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initSequence(t, tenantA, numerator.TypeTaxInvoiceReceipt, 1, "")

	preview, err := f.seqs.PreviewNext(ctx, tenantA, numerator.TypeTaxInvoiceReceipt)
	require.NoError(t, err)
	assert.Equal(t, "000001", preview.Formatted)

	for _, want := range []string{"000001", "000002", "000003"} {
		doc := f.draft(t, tenantA, numerator.TypeTaxInvoiceReceipt)
		res, err := f.svc.Finalize(ctx, tenantA, numerator.TypeTaxInvoiceReceipt, doc.ID)
		require.NoError(t, err)

		assert.Equal(t, want, res.Number)
		assert.False(t, res.AlreadyFinal)
		assert.True(t, res.Document.IsFinal())
		assert.Equal(t, want, res.Document.NumberOrEmpty())
		assert.Equal(t, fixedNow, *res.Document.FinalizedAt)
	}

	preview, err = f.seqs.PreviewNext(ctx, tenantA, numerator.TypeTaxInvoiceReceipt)
	require.NoError(t, err)
	assert.Equal(t, "000004", preview.Formatted)
	assert.Empty(t, f.gaps.All())
}

func TestFinalize_PrefixAndStartingNumber(t *testing.T) {
	f := newFixture(t)
	f.initSequence(t, tenantA, numerator.TypeCreditInvoice, 4200, "CR-")
	doc := f.draft(t, tenantA, numerator.TypeCreditInvoice)

	res, err := f.svc.Finalize(context.Background(), tenantA, numerator.TypeCreditInvoice, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "CR-004200", res.Number)

	entries := f.audit.Entries()
	last := entries[len(entries)-1]
	assert.Equal(t, audit.ActionFinalize, last.Action)
	assert.Equal(t, "CR-004200", last.Changes["document_number"])
}

func TestFinalize_AlreadyFinalDoesNotAllocate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initSequence(t, tenantA, numerator.TypeReceipt, 1, "")
	doc := f.draft(t, tenantA, numerator.TypeReceipt)

	_, err := f.svc.Finalize(ctx, tenantA, numerator.TypeReceipt, doc.ID)
	require.NoError(t, err)
	before := f.store.Current(tenantA, numerator.TypeReceipt)

	_, err = f.svc.Finalize(ctx, tenantA, numerator.TypeReceipt, doc.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeDocumentNotDraft))
	assert.Equal(t, http.StatusUnprocessableEntity, apperror.GetHTTPStatus(err))
	assert.Equal(t, before, f.store.Current(tenantA, numerator.TypeReceipt))

	stored, err := f.svc.Get(ctx, tenantA, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "000001", stored.NumberOrEmpty())
}

func TestFinalize_SequenceNotInitialized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.draft(t, tenantA, numerator.TypeReceipt)

	_, err := f.svc.Finalize(ctx, tenantA, numerator.TypeReceipt, doc.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeSequenceNotInitialized))

	stored, err := f.svc.Get(ctx, tenantA, doc.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDraft())
	assert.Nil(t, stored.Number)
}

func TestFinalize_RejectedBeforeAllocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initSequence(t, tenantA, numerator.TypeReceipt, 1, "")
	f.initSequence(t, tenantA, numerator.TypeQuote, 1, "")

	incomplete, err := f.svc.Create(ctx, tenantA, documents.CreateInput{DocumentType: numerator.TypeReceipt})
	require.NoError(t, err)
	quote := f.draft(t, tenantA, numerator.TypeQuote)

	t.Run("incomplete draft", func(t *testing.T) {
		_, err := f.svc.Finalize(ctx, tenantA, numerator.TypeReceipt, incomplete.ID)
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	})
	t.Run("type mismatch", func(t *testing.T) {
		_, err := f.svc.Finalize(ctx, tenantA, numerator.TypeReceipt, quote.ID)
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	})
	t.Run("unknown document", func(t *testing.T) {
		_, err := f.svc.Finalize(ctx, tenantA, numerator.TypeReceipt, id.New())
		assert.True(t, apperror.IsNotFound(err))
	})
	t.Run("other tenant", func(t *testing.T) {
		_, err := f.svc.Finalize(ctx, tenantB, numerator.TypeQuote, quote.ID)
		assert.True(t, apperror.IsNotFound(err))
	})

	assert.Equal(t, int64(0), f.store.Current(tenantA, numerator.TypeReceipt))
	assert.Equal(t, int64(0), f.store.Current(tenantA, numerator.TypeQuote))
}

func TestFinalize_DocumentFinalizedConcurrentlyBurnsNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initSequence(t, tenantA, numerator.TypeTaxInvoice, 1, "")
	doc := f.draft(t, tenantA, numerator.TypeTaxInvoice)

	f.repo.BeforeMarkFinal = func(tenantID string, docID id.ID) {
		other := "000099"
		forced := *doc
		forced.Status = documents.StatusFinal
		forced.Number = &other
		f.repo.Force(&forced)
	}

	_, err := f.svc.Finalize(ctx, tenantA, numerator.TypeTaxInvoice, doc.ID)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeFinalizeInconsistent, appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.HTTPStatus)
	assert.Equal(t, "000001", appErr.Details["burned_number"])

	gaps := f.gaps.All()
	require.Len(t, gaps, 1)
	assert.Equal(t, documents.GapPreconditionFailed, gaps[0].Reason)
	assert.Equal(t, int64(1), gaps[0].Number)
	assert.Equal(t, "000001", gaps[0].Formatted)
	assert.Equal(t, doc.ID, gaps[0].DocumentID)
	assert.False(t, gaps[0].IsResolved())

	stored, err := f.svc.Get(ctx, tenantA, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "000099", stored.NumberOrEmpty())
}

func TestFinalize_UpdateFailedIsRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initSequence(t, tenantA, numerator.TypeReceipt, 10, "")
	doc := f.draft(t, tenantA, numerator.TypeReceipt)

	f.repo.MarkFinalErr = errors.New("connection reset by peer")

	_, err := f.svc.Finalize(ctx, tenantA, numerator.TypeReceipt, doc.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeFinalizeInconsistent))
	assert.Equal(t, http.StatusInternalServerError, apperror.GetHTTPStatus(err))

	gaps := f.gaps.All()
	require.Len(t, gaps, 1)
	assert.Equal(t, documents.GapUpdateFailed, gaps[0].Reason)
	assert.Equal(t, "000010", gaps[0].Formatted)
	assert.Contains(t, gaps[0].Detail, "connection reset")

	stored, err := f.svc.Get(ctx, tenantA, doc.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDraft())
}

func TestFinalize_UpdateUnconfirmedIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.initSequence(t, tenantA, numerator.TypeReceipt, 1, "")
	doc := f.draft(t, tenantA, numerator.TypeReceipt)

	f.repo.MarkFinalErr = errors.New("i/o timeout")
	f.repo.GetErr = errors.New("connection refused")
	f.repo.GetErrAfter = 1

	_, err := f.svc.Finalize(context.Background(), tenantA, numerator.TypeReceipt, doc.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeFinalizeInconsistent))

	gaps := f.gaps.All()
	require.Len(t, gaps, 1)
	assert.Equal(t, documents.GapUpdateUnconfirmed, gaps[0].Reason)
	assert.Contains(t, gaps[0].Detail, "connection refused")
}

func TestFinalize_UpdateErrorButCommitted(t *testing.T) {
	f := newFixture(t)
	f.initSequence(t, tenantA, numerator.TypeReceipt, 1, "")
	doc := f.draft(t, tenantA, numerator.TypeReceipt)

	f.repo.MarkFinalErr = errors.New("commit acknowledgement lost")
	f.repo.MarkFinalCommits = true

	res, err := f.svc.Finalize(context.Background(), tenantA, numerator.TypeReceipt, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "000001", res.Number)
	assert.True(t, res.Document.IsFinal())
	assert.Empty(t, f.gaps.All())
}

func TestFinalize_GapRecordFailureStillReportsInconsistency(t *testing.T) {
	f := newFixture(t)
	f.initSequence(t, tenantA, numerator.TypeReceipt, 1, "")
	doc := f.draft(t, tenantA, numerator.TypeReceipt)

	f.repo.MarkFinalErr = errors.New("boom")
	f.gaps.RecordErr = errors.New("gap table unavailable")

	_, err := f.svc.Finalize(context.Background(), tenantA, numerator.TypeReceipt, doc.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeFinalizeInconsistent))
	assert.Empty(t, f.gaps.All())
}

func TestFinalize_ConcurrentDraftsGetDistinctNumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initSequence(t, tenantA, numerator.TypeReceipt, 1, "")

	const n = 50
	drafts := make([]*documents.Document, n)
	for i := range drafts {
		drafts[i] = f.draft(t, tenantA, numerator.TypeReceipt)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []string
	)
	for _, d := range drafts {
		wg.Add(1)
		go func(docID id.ID) {
			defer wg.Done()
			res, err := f.svc.Finalize(ctx, tenantA, numerator.TypeReceipt, docID)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			numbers = append(numbers, res.Number)
			mu.Unlock()
		}(d.ID)
	}
	wg.Wait()

	require.Len(t, numbers, n)
	sort.Strings(numbers)
	for i, got := range numbers {
		assert.Equal(t, numerator.Format("", int64(i+1)), got)
	}
}

func TestFinalize_SameDraftConcurrently(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initSequence(t, tenantA, numerator.TypeReceipt, 1, "")
	doc := f.draft(t, tenantA, numerator.TypeReceipt)

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Finalize(ctx, tenantA, numerator.TypeReceipt, doc.ID)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.True(t,
				apperror.HasCode(err, apperror.CodeDocumentNotDraft) ||
					apperror.HasCode(err, apperror.CodeFinalizeInconsistent),
				"unexpected error: %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)

	// Every allocated number is either on the document or in the gap ledger.
	issued := f.store.Current(tenantA, numerator.TypeReceipt)
	assert.Equal(t, issued, int64(1+len(f.gaps.All())))
	for _, g := range f.gaps.All() {
		assert.Equal(t, documents.GapPreconditionFailed, g.Reason)
	}
}
