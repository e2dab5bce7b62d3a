package documents

import (
	"context"
	"time"

	"kabala/internal/core/id"
	"kabala/internal/core/numerator"
)

// Repository persists documents. Every method is tenant-scoped.
//
// Mutations of drafts are conditional: they carry document_status = 'draft'
// in the WHERE clause and report false when no row matched, so the service
// can classify the miss.
type Repository interface {
	Create(ctx context.Context, doc *Document) error

	// Get returns apperror NotFound when the document does not exist for the tenant.
	Get(ctx context.Context, tenantID string, docID id.ID) (*Document, error)

	List(ctx context.Context, tenantID string, filter ListFilter) ([]*Document, int, error)

	// UpdateDraft writes doc if it is still a draft at doc.Version and bumps the version.
	UpdateDraft(ctx context.Context, doc *Document) (bool, error)

	// DeleteDraft hard-deletes a draft.
	DeleteDraft(ctx context.Context, tenantID string, docID id.ID) (bool, error)

	// MarkFinal assigns number and status final if the document is still a draft.
	MarkFinal(ctx context.Context, tenantID string, docID id.ID, number string, at time.Time) (bool, error)
}

// GapReason explains why an allocated number never reached a document.
type GapReason string

const (
	// GapPreconditionFailed - the document stopped being a draft between pre-check and update
	GapPreconditionFailed GapReason = "precondition_failed"

	// GapUpdateFailed - the update failed and a confirming read shows no number was written
	GapUpdateFailed GapReason = "update_failed"

	// GapUpdateUnconfirmed - the update failed and the outcome could not be confirmed
	GapUpdateUnconfirmed GapReason = "update_unconfirmed"
)

// Gap is a burned number awaiting manual reconciliation.
type Gap struct {
	ID             id.ID                  `db:"id" json:"id"`
	TenantID       string                 `db:"tenant_id" json:"-"`
	DocumentType   numerator.DocumentType `db:"document_type" json:"documentType"`
	Number         int64                  `db:"number" json:"number"`
	Formatted      string                 `db:"formatted" json:"formatted"`
	DocumentID     id.ID                  `db:"document_id" json:"documentId"`
	Reason         GapReason              `db:"reason" json:"reason"`
	Detail         string                 `db:"detail" json:"detail,omitempty"`
	CreatedAt      time.Time              `db:"created_at" json:"createdAt"`
	ResolvedAt     *time.Time             `db:"resolved_at" json:"resolvedAt,omitempty"`
	ResolvedBy     *string                `db:"resolved_by" json:"resolvedBy,omitempty"`
	ResolutionNote *string                `db:"resolution_note" json:"resolutionNote,omitempty"`
}

// IsResolved reports whether the gap was reconciled.
func (g *Gap) IsResolved() bool { return g.ResolvedAt != nil }

// GapFilter narrows gap listings.
type GapFilter struct {
	DocumentType   *numerator.DocumentType
	UnresolvedOnly bool
	Limit          int
}

// GapRepository persists the gap ledger.
type GapRepository interface {
	Record(ctx context.Context, gap *Gap) error

	List(ctx context.Context, tenantID string, filter GapFilter) ([]*Gap, error)

	// Resolve marks an unresolved gap as reconciled. Returns apperror NotFound
	// for unknown gaps and Conflict for already resolved ones.
	Resolve(ctx context.Context, tenantID string, gapID id.ID, userID, note string, at time.Time) (*Gap, error)

	// ResolveForDocument closes unresolved gaps whose number the document turned out to carry.
	ResolveForDocument(ctx context.Context, tenantID string, docID id.ID, formatted, note string, at time.Time) (int64, error)

	// CountUnresolved returns the number of open gaps of a tenant.
	CountUnresolved(ctx context.Context, tenantID string) (int, error)
}
