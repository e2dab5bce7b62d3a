//go:build integration

package document_repo_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kabala/internal/core/apperror"
	"kabala/internal/core/numerator"
	"kabala/internal/core/types"
	"kabala/internal/domain/audit"
	"kabala/internal/domain/documents"
	"kabala/internal/domain/sequence"
	infranumerator "kabala/internal/infrastructure/numerator"
	"kabala/internal/infrastructure/storage/postgres"
	"kabala/internal/infrastructure/storage/postgres/document_repo"
	"kabala/internal/testutil/pgtest"
)

type stack struct {
	db    *pgtest.DB
	seqs  *sequence.Service
	docs  *documents.Service
	gaps  *document_repo.GapRepo
	audit *postgres.AuditStore
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db := pgtest.New(t)

	auditStore, err := postgres.NewAuditStore(db.TxManager)
	require.NoError(t, err)

	seqs := sequence.NewService(infranumerator.NewStore(db.TxManager), db.TxManager, auditStore, nil)
	gaps := document_repo.NewGapRepo(db.TxManager)
	docs := documents.NewService(documents.ServiceConfig{
		Repo:      document_repo.NewDocumentRepo(db.TxManager),
		Gaps:      gaps,
		Allocator: seqs,
		TxManager: db.TxManager,
		Audit:     auditStore,
		Retry: documents.RetryConfig{
			MaxRetries:      2,
			InitialInterval: 5 * time.Millisecond,
			MaxInterval:     20 * time.Millisecond,
		},
	})
	return &stack{db: db, seqs: seqs, docs: docs, gaps: gaps, audit: auditStore}
}

func (s *stack) draft(t *testing.T, tenantID string, docType numerator.DocumentType) *documents.Document {
	t.Helper()
	fields := documents.Fields{
		IssueDate:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		CustomerName: "Yossi Cohen",
		Currency:     "ILS",
		Total:        types.MustMoney("250.00"),
	}
	if documents.RequiresPayments(docType) {
		fields.Payments = documents.Payments{
			{Amount: types.MustMoney("250.00"), Details: &documents.BankTransferDetails{BankCode: "12", BranchCode: "600", AccountNumber: "123456"}},
		}
	}
	doc, err := s.docs.Create(context.Background(), tenantID, documents.CreateInput{DocumentType: docType, Fields: fields})
	require.NoError(t, err)
	return doc
}

func TestFinalize_EndToEnd(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	tenantID := s.db.Tenant(t)

	_, err := s.seqs.InitializeSequence(ctx, tenantID, numerator.TypeReceipt, 42, "RC")
	require.NoError(t, err)

	doc := s.draft(t, tenantID, numerator.TypeReceipt)
	res, err := s.docs.Finalize(ctx, tenantID, numerator.TypeReceipt, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "RC000042", res.Number)

	stored, err := s.docs.Get(ctx, tenantID, doc.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsFinal())
	assert.Equal(t, "RC000042", stored.NumberOrEmpty())
	require.NotNil(t, stored.FinalizedAt)
	require.Len(t, stored.Payments, 1)
	assert.Equal(t, documents.PaymentBankTransfer, stored.Payments[0].Method())

	preview, err := s.seqs.PreviewNext(ctx, tenantID, numerator.TypeReceipt)
	require.NoError(t, err)
	assert.Equal(t, "RC000043", preview.Formatted)

	// Final documents are frozen at the service and at the schema.
	err = s.docs.Delete(ctx, tenantID, doc.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeDocumentNotDraft))

	_, err = s.db.Pool.Exec(ctx, `UPDATE documents SET notes = 'x' WHERE id = $1`, doc.ID)
	assert.Error(t, err)
	_, err = s.db.Pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, doc.ID)
	assert.Error(t, err)

	history, err := s.audit.History(ctx, tenantID, audit.EntityDocument, doc.ID.String(), 10)
	require.NoError(t, err)
	var actions []audit.Action
	for _, r := range history {
		actions = append(actions, r.Action)
	}
	assert.Contains(t, actions, audit.ActionFinalize)
}

func TestFinalize_WithoutSequenceKeepsDraft(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	tenantID := s.db.Tenant(t)

	doc := s.draft(t, tenantID, numerator.TypeQuote)
	_, err := s.docs.Finalize(ctx, tenantID, numerator.TypeQuote, doc.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeSequenceNotInitialized))

	stored, err := s.docs.Get(ctx, tenantID, doc.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDraft())
	assert.Nil(t, stored.Number)
}

func TestFinalize_ConcurrentDraftsGetDistinctNumbers(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	tenantID := s.db.Tenant(t)

	_, err := s.seqs.InitializeSequence(ctx, tenantID, numerator.TypeTaxInvoice, 1, "")
	require.NoError(t, err)

	const n = 25
	drafts := make([]*documents.Document, n)
	for i := range drafts {
		drafts[i] = s.draft(t, tenantID, numerator.TypeTaxInvoice)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = map[string]bool{}
	)
	for _, d := range drafts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.docs.Finalize(ctx, tenantID, numerator.TypeTaxInvoice, d.ID)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, numbers[res.Number], "duplicate %s", res.Number)
			numbers[res.Number] = true
		}()
	}
	wg.Wait()
	assert.Len(t, numbers, n)

	for i := 1; i <= n; i++ {
		assert.True(t, numbers[numerator.Format("", int64(i))], "missing %d", i)
	}
}

func TestFinalize_SameDraftRacingBurnsLoserNumbers(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	tenantID := s.db.Tenant(t)

	_, err := s.seqs.InitializeSequence(ctx, tenantID, numerator.TypeCreditInvoice, 1, "C")
	require.NoError(t, err)
	doc := s.draft(t, tenantID, numerator.TypeCreditInvoice)

	const n = 8
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		wins         int
		inconsistent int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.docs.Finalize(ctx, tenantID, numerator.TypeCreditInvoice, doc.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case apperror.HasCode(err, apperror.CodeFinalizeInconsistent):
				inconsistent++
			default:
				assert.True(t, apperror.HasCode(err, apperror.CodeDocumentNotDraft), "unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	// Every allocation either numbered the document or sits in the gap ledger.
	open, err := s.gaps.CountUnresolved(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, inconsistent, open)

	seq, err := s.seqs.Get(ctx, tenantID, numerator.TypeCreditInvoice)
	require.NoError(t, err)
	assert.EqualValues(t, 1+inconsistent, seq.CurrentNumber)

	gaps, err := s.docs.ListGaps(ctx, tenantID, documents.GapFilter{UnresolvedOnly: true})
	require.NoError(t, err)
	for _, g := range gaps {
		assert.Equal(t, documents.GapPreconditionFailed, g.Reason)
		assert.Equal(t, doc.ID, g.DocumentID)
	}

	if len(gaps) > 0 {
		resolved, err := s.docs.ResolveGap(ctx, tenantID, gaps[0].ID, "void number noted in ledger")
		require.NoError(t, err)
		assert.True(t, resolved.IsResolved())

		_, err = s.docs.ResolveGap(ctx, tenantID, gaps[0].ID, "again")
		assert.Error(t, err)
	}
}

func TestFinalizeWithRetry_ReportsAlreadyFinal(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	tenantID := s.db.Tenant(t)

	_, err := s.seqs.InitializeSequence(ctx, tenantID, numerator.TypeDeliveryNote, 10, "")
	require.NoError(t, err)
	doc := s.draft(t, tenantID, numerator.TypeDeliveryNote)

	first, err := s.docs.FinalizeWithRetry(ctx, tenantID, numerator.TypeDeliveryNote, doc.ID)
	require.NoError(t, err)
	assert.False(t, first.AlreadyFinal)

	_, err = s.docs.FinalizeWithRetry(ctx, tenantID, numerator.TypeDeliveryNote, doc.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeDocumentNotDraft))
}

func TestIdempotencyStore_RoundTrip(t *testing.T) {
	db := pgtest.New(t)
	ctx := context.Background()
	tenantID := db.Tenant(t)
	store := postgres.NewIdempotencyStore(db.TxManager, time.Hour)

	replay, err := store.AcquireKey(ctx, tenantID, "k-1", "u-1", "POST /api/v1/documents", "hash-a")
	require.NoError(t, err)
	assert.Nil(t, replay)

	_, err = store.AcquireKey(ctx, tenantID, "k-1", "u-1", "POST /api/v1/documents", "hash-a")
	assert.True(t, apperror.HasCode(err, apperror.CodeIdempotency))

	body := []byte(`{"id":"1"}`)
	require.NoError(t, store.CompleteKey(ctx, tenantID, "k-1", 201, "application/json", body))

	replay, err = store.AcquireKey(ctx, tenantID, "k-1", "u-1", "POST /api/v1/documents", "hash-a")
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, 201, replay.StatusCode)
	assert.Equal(t, body, replay.Body)

	_, err = store.AcquireKey(ctx, tenantID, "k-1", "u-1", "POST /api/v1/documents", "hash-b")
	assert.True(t, apperror.HasCode(err, apperror.CodeIdempotency))

	// Same key in another tenant is independent.
	other := db.Tenant(t)
	replay, err = store.AcquireKey(ctx, other, "k-1", "u-1", "POST /api/v1/documents", "hash-b")
	require.NoError(t, err)
	assert.Nil(t, replay)
	require.NoError(t, store.ReleaseKey(ctx, other, "k-1"))
}
