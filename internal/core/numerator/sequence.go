// Package numerator provides domain contracts for per-tenant document numbering.
// Implementations live in infrastructure layer.
package numerator

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// PadWidth is the fixed width of the numeric part of a document number.
const PadWidth = 6

// MaxPrefixLength bounds the optional sequence prefix.
const MaxPrefixLength = 16

// DocumentType identifies a kind of business document that owns its own sequence.
type DocumentType string

const (
	TypeReceipt           DocumentType = "receipt"
	TypeTaxInvoice        DocumentType = "tax_invoice"
	TypeTaxInvoiceReceipt DocumentType = "tax_invoice_receipt"
	TypeCreditInvoice     DocumentType = "credit_invoice"
	TypeQuote             DocumentType = "quote"
	TypeDeliveryNote      DocumentType = "delivery_note"
)

// DocumentTypes lists every supported type in display order.
var DocumentTypes = []DocumentType{
	TypeReceipt,
	TypeTaxInvoice,
	TypeTaxInvoiceReceipt,
	TypeCreditInvoice,
	TypeQuote,
	TypeDeliveryNote,
}

// Valid reports whether t is a known document type.
func (t DocumentType) Valid() bool {
	for _, known := range DocumentTypes {
		if t == known {
			return true
		}
	}
	return false
}

func (t DocumentType) String() string { return string(t) }

// ParseDocumentType normalizes and validates a raw type name.
func ParseDocumentType(raw string) (DocumentType, error) {
	t := DocumentType(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown document type %q", raw)
	}
	return t, nil
}

// Sequence is the numbering state for one (tenant, document type) pair.
//
// Once IsLocked is true, StartingNumber and Prefix never change and the lock
// is never released. CurrentNumber only grows.
type Sequence struct {
	TenantID       string       `db:"tenant_id"`
	DocumentType   DocumentType `db:"document_type"`
	StartingNumber int64        `db:"starting_number"`
	CurrentNumber  int64        `db:"current_number"` // last issued; StartingNumber-1 when none issued
	Prefix         string       `db:"prefix"`
	IsLocked       bool         `db:"is_locked"`
	LockedAt       *time.Time   `db:"locked_at"`
	CreatedAt      time.Time    `db:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at"`
}

// Next returns the number the next allocation will hand out.
// A sequence whose current number lags behind its start resumes at the start.
func (s *Sequence) Next() int64 {
	return max(s.CurrentNumber+1, s.StartingNumber)
}

// Issued reports whether any number was allocated from this sequence.
func (s *Sequence) Issued() bool {
	return s.CurrentNumber >= s.StartingNumber
}

// Format renders a document number: prefix followed by the zero-padded number.
func Format(prefix string, n int64) string {
	return fmt.Sprintf("%s%0*d", prefix, PadWidth, n)
}

// Allocation is a number handed out by the allocator. Once returned it is
// consumed whether or not a document ends up carrying it.
type Allocation struct {
	Number    int64  `json:"number"`
	Formatted string `json:"formatted"`
}

// Preview is the non-committal next number for a sequence.
type Preview struct {
	DocumentType DocumentType `json:"documentType"`
	NextNumber   int64        `json:"nextNumber"`
	Formatted    string       `json:"formatted"`
}

// ValidateInit checks initialization input.
func ValidateInit(startingNumber int64, prefix string) error {
	if startingNumber < 1 {
		return fmt.Errorf("starting number must be at least 1")
	}
	if len([]rune(prefix)) > MaxPrefixLength {
		return fmt.Errorf("prefix must be %d characters or less", MaxPrefixLength)
	}
	if strings.IndexFunc(prefix, unicode.IsSpace) >= 0 {
		return fmt.Errorf("prefix must not contain whitespace")
	}
	return nil
}
