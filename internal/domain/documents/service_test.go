package documents_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kabala/internal/core/apperror"
	appctx "kabala/internal/core/context"
	"kabala/internal/core/id"
	"kabala/internal/core/numerator"
	"kabala/internal/core/types"
	"kabala/internal/domain/audit"
	"kabala/internal/domain/documents"
)

func TestCreate_DraftNeverTouchesSequences(t *testing.T) {
	f := newFixture(t)
	f.initSequence(t, tenantA, numerator.TypeTaxInvoice, 1, "")
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "user-1"})

	doc, err := f.svc.Create(ctx, tenantA, documents.CreateInput{
		DocumentType: numerator.TypeTaxInvoice,
		Fields:       documents.Fields{CustomerName: "  Dana Levi  ", Total: types.MustMoney("10.50")},
	})
	require.NoError(t, err)

	assert.Equal(t, documents.StatusDraft, doc.Status)
	assert.Nil(t, doc.Number)
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, "Dana Levi", doc.CustomerName)
	assert.Equal(t, types.DefaultCurrency, doc.Currency)
	assert.Equal(t, "user-1", doc.CreatedBy)
	assert.False(t, doc.IssueDate.IsZero())
	assert.Equal(t, int64(0), f.store.Current(tenantA, numerator.TypeTaxInvoice))
	assert.Equal(t, []audit.Action{audit.ActionInitialize, audit.ActionCreate}, f.audit.Actions())
}

func TestCreate_WithoutInitializedSequence(t *testing.T) {
	f := newFixture(t)

	doc, err := f.svc.Create(context.Background(), tenantA, documents.CreateInput{
		DocumentType: numerator.TypeQuote,
	})
	require.NoError(t, err)
	assert.True(t, doc.IsDraft())
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    documents.CreateInput
		field string
	}{
		{
			name:  "unknown type",
			in:    documents.CreateInput{DocumentType: "invoice_draft"},
			field: "documentType",
		},
		{
			name: "bad currency",
			in: documents.CreateInput{
				DocumentType: numerator.TypeQuote,
				Fields:       documents.Fields{Currency: "shekel"},
			},
			field: "currency",
		},
		{
			name: "negative total",
			in: documents.CreateInput{
				DocumentType: numerator.TypeQuote,
				Fields:       documents.Fields{Total: types.MustMoney("-1")},
			},
			field: "total",
		},
		{
			name: "invalid payment",
			in: documents.CreateInput{
				DocumentType: numerator.TypeReceipt,
				Fields: documents.Fields{Payments: documents.Payments{
					{Amount: types.MustMoney("5"), Details: &documents.OtherDetails{}},
				}},
			},
			field: "payments",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tenantA, tt.in)
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperror.CodeValidation, appErr.Code)
			assert.Equal(t, tt.field, appErr.Details["field"])
		})
	}
	assert.Empty(t, f.repo.All())
}

func TestUpdate_Draft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.draft(t, tenantA, numerator.TypeQuote)

	fields := completeFields(numerator.TypeQuote)
	fields.CustomerName = "Yossi Cohen"
	updated, err := f.svc.Update(ctx, tenantA, doc.ID, documents.UpdateInput{Version: 1, Fields: fields})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "Yossi Cohen", updated.CustomerName)

	entries := f.audit.Entries()
	last := entries[len(entries)-1]
	assert.Equal(t, audit.ActionUpdate, last.Action)
	assert.Contains(t, last.Changes, "customer_name")
	assert.NotContains(t, last.Changes, "total")
}

func TestUpdate_StaleVersion(t *testing.T) {
	f := newFixture(t)
	doc := f.draft(t, tenantA, numerator.TypeQuote)

	_, err := f.svc.Update(context.Background(), tenantA, doc.ID, documents.UpdateInput{
		Version: 7,
		Fields:  completeFields(numerator.TypeQuote),
	})
	assert.True(t, apperror.IsConcurrentModification(err))
}

func TestFinalDocumentIsWriteProtected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initSequence(t, tenantA, numerator.TypeReceipt, 1, "")
	doc := f.draft(t, tenantA, numerator.TypeReceipt)

	res, err := f.svc.Finalize(ctx, tenantA, numerator.TypeReceipt, doc.ID)
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, tenantA, doc.ID, documents.UpdateInput{
		Version: res.Document.Version,
		Fields:  completeFields(numerator.TypeReceipt),
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeDocumentNotDraft))

	err = f.svc.Delete(ctx, tenantA, doc.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeDocumentNotDraft))

	stored, err := f.svc.Get(ctx, tenantA, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "000001", stored.NumberOrEmpty())
	assert.Equal(t, "Dana Levi", stored.CustomerName)
}

func TestClosedDocumentsAreWriteProtected(t *testing.T) {
	voidedNumber := "000007"
	closedAt := fixedNow.Add(-time.Hour)

	cases := []struct {
		name   string
		status documents.Status
		number *string
		at     *time.Time
	}{
		{name: "cancelled", status: documents.StatusCancelled},
		{name: "voided", status: documents.StatusVoided, number: &voidedNumber, at: &closedAt},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.initSequence(t, tenantA, numerator.TypeTaxInvoice, 1, "")
			doc := f.draft(t, tenantA, numerator.TypeTaxInvoice)

			closed := *doc
			closed.Status = tc.status
			closed.Number = tc.number
			closed.FinalizedAt = tc.at
			f.repo.Force(&closed)

			_, err := f.svc.Update(ctx, tenantA, doc.ID, documents.UpdateInput{
				Version: doc.Version,
				Fields:  completeFields(numerator.TypeTaxInvoice),
			})
			assert.True(t, apperror.HasCode(err, apperror.CodeDocumentNotDraft))

			err = f.svc.Delete(ctx, tenantA, doc.ID)
			assert.True(t, apperror.HasCode(err, apperror.CodeDocumentNotDraft))

			_, err = f.svc.Finalize(ctx, tenantA, numerator.TypeTaxInvoice, doc.ID)
			assert.True(t, apperror.HasCode(err, apperror.CodeDocumentNotDraft))

			assert.Equal(t, int64(0), f.store.Current(tenantA, numerator.TypeTaxInvoice))
			assert.Empty(t, f.gaps.All())

			stored, err := f.svc.Get(ctx, tenantA, doc.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.status, stored.Status)
			assert.Equal(t, closed.NumberOrEmpty(), stored.NumberOrEmpty())
		})
	}
}

func TestStatus_Valid(t *testing.T) {
	for _, st := range documents.Statuses {
		assert.True(t, st.Valid(), st)
	}
	assert.False(t, documents.Status("failed").Valid())
	assert.False(t, documents.Status("").Valid())
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.draft(t, tenantA, numerator.TypeQuote)

	require.NoError(t, f.svc.Delete(ctx, tenantA, doc.ID))

	_, err := f.svc.Get(ctx, tenantA, doc.ID)
	assert.True(t, apperror.IsNotFound(err))

	err = f.svc.Delete(ctx, tenantA, doc.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestTenantIsolation_Documents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.draft(t, tenantA, numerator.TypeQuote)

	_, err := f.svc.Get(ctx, tenantB, doc.ID)
	assert.True(t, apperror.IsNotFound(err))

	_, err = f.svc.Update(ctx, tenantB, doc.ID, documents.UpdateInput{Version: 1})
	assert.True(t, apperror.IsNotFound(err))

	err = f.svc.Delete(ctx, tenantB, doc.ID)
	assert.True(t, apperror.IsNotFound(err))

	docs, total, err := f.svc.List(ctx, tenantB, documents.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Zero(t, total)
}

func TestList_Filters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.draft(t, tenantA, numerator.TypeQuote)
	f.draft(t, tenantA, numerator.TypeQuote)
	f.draft(t, tenantA, numerator.TypeDeliveryNote)

	quote := numerator.TypeQuote
	docs, total, err := f.svc.List(ctx, tenantA, documents.ListFilter{DocumentType: &quote, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, 2, total)

	final := documents.StatusFinal
	docs, total, err = f.svc.List(ctx, tenantA, documents.ListFilter{Status: &final})
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Zero(t, total)
}

func TestGet_UnknownDocument(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Get(context.Background(), tenantA, id.New())
	assert.True(t, apperror.IsNotFound(err))
	assert.Equal(t, 404, apperror.GetHTTPStatus(err))
}
