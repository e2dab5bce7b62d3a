package dto

import (
	"kabala/internal/core/apperror"
	"kabala/internal/core/numerator"
	"kabala/internal/domain/documents"
)

// GapListRequest filters the gap ledger.
type GapListRequest struct {
	DocumentType   string `form:"documentType"`
	UnresolvedOnly bool   `form:"unresolved"`
	Limit          int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// ToFilter converts query parameters into a domain filter.
func (r GapListRequest) ToFilter() (documents.GapFilter, error) {
	f := documents.GapFilter{UnresolvedOnly: r.UnresolvedOnly, Limit: r.Limit}
	if r.DocumentType != "" {
		dt, err := numerator.ParseDocumentType(r.DocumentType)
		if err != nil {
			return f, apperror.NewValidation(err.Error()).WithDetail("field", "documentType")
		}
		f.DocumentType = &dt
	}
	return f, nil
}

// ResolveGapRequest records how a burned number was reconciled.
type ResolveGapRequest struct {
	Note string `json:"note" binding:"required,max=1000"`
}
