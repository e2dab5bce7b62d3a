// Package documents provides the draft document lifecycle and the one-way
// draft → final transition that assigns a legal document number.
package documents

import (
	"context"
	"slices"
	"strings"
	"time"

	"kabala/internal/core/apperror"
	"kabala/internal/core/id"
	"kabala/internal/core/numerator"
	"kabala/internal/core/types"
)

// Status is the lifecycle state of a document.
type Status string

const (
	// StatusDraft - editable, deletable, carries no number
	StatusDraft Status = "draft"

	// StatusFinal - issued, carries a number, immutable
	StatusFinal Status = "final"

	// StatusCancelled - abandoned before issue, carries no number, immutable
	StatusCancelled Status = "cancelled"

	// StatusVoided - issued then voided, keeps its number, immutable
	StatusVoided Status = "voided"
)

// Statuses lists every document status.
var Statuses = []Status{StatusDraft, StatusFinal, StatusCancelled, StatusVoided}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

const (
	maxCustomerNameLength = 200
	maxNotesLength        = 2000
)

// Document is a business document of one tenant.
//
// Number is set exactly when Status is final or voided. Only drafts are ever
// modified or deleted.
type Document struct {
	ID            id.ID                  `db:"id" json:"id"`
	TenantID      string                 `db:"tenant_id" json:"-"`
	DocumentType  numerator.DocumentType `db:"document_type" json:"documentType"`
	Status        Status                 `db:"document_status" json:"status"`
	Number        *string                `db:"document_number" json:"number"`
	FinalizedAt   *time.Time             `db:"finalized_at" json:"finalizedAt,omitempty"`
	IssueDate     time.Time              `db:"issue_date" json:"issueDate"`
	CustomerName  string                 `db:"customer_name" json:"customerName"`
	CustomerTaxID string                 `db:"customer_tax_id" json:"customerTaxId,omitempty"`
	Currency      string                 `db:"currency" json:"currency"`
	Total         types.Money            `db:"total" json:"total"`
	Notes         string                 `db:"notes" json:"notes,omitempty"`
	Payments      Payments               `db:"payments" json:"payments"`
	Version       int                    `db:"version" json:"version"`
	CreatedBy     string                 `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt     time.Time              `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time              `db:"updated_at" json:"updatedAt"`
}

// IsDraft reports whether the document may still be changed.
func (d *Document) IsDraft() bool { return d.Status == StatusDraft }

// IsFinal reports whether the document was issued.
func (d *Document) IsFinal() bool { return d.Status == StatusFinal }

// NumberOrEmpty returns the issued number or "".
func (d *Document) NumberOrEmpty() string {
	if d.Number == nil {
		return ""
	}
	return *d.Number
}

// Fields holds the editable content of a draft.
type Fields struct {
	IssueDate     time.Time
	CustomerName  string
	CustomerTaxID string
	Currency      string
	Total         types.Money
	Notes         string
	Payments      Payments
}

// Apply copies editable fields onto the document.
func (d *Document) Apply(f Fields) {
	d.IssueDate = f.IssueDate
	d.CustomerName = strings.TrimSpace(f.CustomerName)
	d.CustomerTaxID = strings.TrimSpace(f.CustomerTaxID)
	d.Currency = f.Currency
	d.Total = f.Total
	d.Notes = f.Notes
	d.Payments = f.Payments
	if d.Payments == nil {
		d.Payments = Payments{}
	}
}

// Validate checks the invariants every draft must satisfy.
func (d *Document) Validate(ctx context.Context) error {
	if !d.DocumentType.Valid() {
		return apperror.NewValidation("unknown document type").
			WithDetail("field", "documentType")
	}

	if len(d.CustomerName) > maxCustomerNameLength {
		return apperror.NewValidation("customer name is too long").
			WithDetail("field", "customerName")
	}

	if len(d.Notes) > maxNotesLength {
		return apperror.NewValidation("notes are too long").
			WithDetail("field", "notes")
	}

	currency, err := types.NormalizeCurrency(d.Currency)
	if err != nil {
		return apperror.NewValidation(err.Error()).WithDetail("field", "currency")
	}
	d.Currency = currency

	if err := types.ValidateAmount("total", d.Total); err != nil {
		return apperror.NewValidation(err.Error()).WithDetail("field", "total")
	}

	for i, p := range d.Payments {
		if err := p.Validate(); err != nil {
			return apperror.NewValidation(err.Error()).
				WithDetail("field", "payments").
				WithDetail("index", i)
		}
	}

	return nil
}

// ValidateForIssue checks that a draft is complete enough to receive a number.
func (d *Document) ValidateForIssue(ctx context.Context) error {
	if err := d.Validate(ctx); err != nil {
		return err
	}

	if d.CustomerName == "" {
		return apperror.NewValidation("customer name is required to issue a document").
			WithDetail("field", "customerName")
	}

	if d.IssueDate.IsZero() {
		return apperror.NewValidation("issue date is required to issue a document").
			WithDetail("field", "issueDate")
	}

	if RequiresPayments(d.DocumentType) {
		if len(d.Payments) == 0 {
			return apperror.NewValidation("at least one payment is required").
				WithDetail("field", "payments")
		}
		if sum := d.Payments.Total(); !sum.Equal(d.Total) {
			return apperror.NewValidation("payments must add up to the document total").
				WithDetail("field", "payments").
				WithDetail("payments_total", sum.StringFixed(types.MoneyPlaces)).
				WithDetail("total", d.Total.StringFixed(types.MoneyPlaces))
		}
	}

	return nil
}

// RequiresPayments reports whether a document type records money received.
func RequiresPayments(t numerator.DocumentType) bool {
	return t == numerator.TypeReceipt || t == numerator.TypeTaxInvoiceReceipt
}

// ListFilter narrows document listings.
type ListFilter struct {
	DocumentType *numerator.DocumentType
	Status       *Status
	Search       string // customer name substring
	Limit        int
	Offset       int
}

// Normalize applies paging defaults.
func (f *ListFilter) Normalize() {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Search = strings.TrimSpace(f.Search)
}
