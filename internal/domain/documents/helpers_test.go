package documents_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kabala/internal/core/numerator"
	"kabala/internal/core/tx"
	"kabala/internal/core/types"
	"kabala/internal/domain/documents"
	"kabala/internal/domain/sequence"
	"kabala/internal/testutil/memstore"
	"kabala/pkg/metrics"
)

const (
	tenantA = "0190a2b4-0000-7000-8000-00000000000a"
	tenantB = "0190a2b4-0000-7000-8000-00000000000b"
)

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

type fixture struct {
	svc   *documents.Service
	seqs  *sequence.Service
	store *memstore.SequenceStore
	repo  *memstore.DocumentRepo
	gaps  *memstore.GapRepo
	audit *memstore.AuditLog
	m     *metrics.Numbering
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store: memstore.NewSequenceStore(),
		repo:  memstore.NewDocumentRepo(),
		gaps:  memstore.NewGapRepo(),
		audit: &memstore.AuditLog{},
		m:     metrics.New(),
	}
	f.seqs = sequence.NewService(f.store, tx.Nop{}, f.audit, f.m)
	f.svc = documents.NewService(documents.ServiceConfig{
		Repo:      f.repo,
		Gaps:      f.gaps,
		Allocator: f.seqs,
		TxManager: tx.Nop{},
		Audit:     f.audit,
		Metrics:   f.m,
		Retry: documents.RetryConfig{
			MaxRetries:      3,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
		},
		Clock: func() time.Time { return fixedNow },
	})
	return f
}

func (f *fixture) initSequence(t *testing.T, tenantID string, docType numerator.DocumentType, start int64, prefix string) {
	t.Helper()
	_, err := f.seqs.InitializeSequence(context.Background(), tenantID, docType, start, prefix)
	require.NoError(t, err)
}

func (f *fixture) draft(t *testing.T, tenantID string, docType numerator.DocumentType) *documents.Document {
	t.Helper()
	doc, err := f.svc.Create(context.Background(), tenantID, documents.CreateInput{
		DocumentType: docType,
		Fields:       completeFields(docType),
	})
	require.NoError(t, err)
	return doc
}

func completeFields(docType numerator.DocumentType) documents.Fields {
	fields := documents.Fields{
		IssueDate:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		CustomerName: "Dana Levi",
		Total:        types.MustMoney("117.00"),
	}
	if documents.RequiresPayments(docType) {
		fields.Payments = documents.Payments{
			{Amount: types.MustMoney("100.00"), Details: &documents.CashDetails{}},
			{Amount: types.MustMoney("17.00"), Details: &documents.CreditCardDetails{Last4: "4242", DealType: documents.DealRegular}},
		}
	}
	return fields
}
