package documents_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"kabala/internal/core/apperror"
	"kabala/internal/core/numerator"
	"kabala/internal/core/types"
	"kabala/internal/domain/documents"
)

func TestValidateForIssue(t *testing.T) {
	ctx := context.Background()

	newDoc := func(docType numerator.DocumentType, mutate func(*documents.Fields)) *documents.Document {
		f := completeFields(docType)
		if mutate != nil {
			mutate(&f)
		}
		d := &documents.Document{DocumentType: docType, Status: documents.StatusDraft}
		d.Apply(f)
		return d
	}

	tests := []struct {
		name  string
		doc   *documents.Document
		field string
	}{
		{"complete receipt", newDoc(numerator.TypeReceipt, nil), ""},
		{"complete quote", newDoc(numerator.TypeQuote, nil), ""},
		{"missing customer", newDoc(numerator.TypeQuote, func(f *documents.Fields) { f.CustomerName = " " }), "customerName"},
		{"receipt without payments", newDoc(numerator.TypeReceipt, func(f *documents.Fields) { f.Payments = nil }), "payments"},
		{"payments do not add up", newDoc(numerator.TypeTaxInvoiceReceipt, func(f *documents.Fields) {
			f.Total = types.MustMoney("118.00")
		}), "payments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.doc.ValidateForIssue(ctx)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			appErr, ok := apperror.AsAppError(err)
			if assert.True(t, ok) {
				assert.Equal(t, tt.field, appErr.Details["field"])
			}
		})
	}
}

func TestListFilter_Normalize(t *testing.T) {
	f := documents.ListFilter{Limit: 5000, Offset: -3, Search: "  levi "}
	f.Normalize()
	assert.Equal(t, 50, f.Limit)
	assert.Zero(t, f.Offset)
	assert.Equal(t, "levi", f.Search)
}
