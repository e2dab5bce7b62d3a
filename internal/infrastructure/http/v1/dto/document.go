package dto

import (
	"time"

	"kabala/internal/core/apperror"
	"kabala/internal/core/numerator"
	"kabala/internal/core/types"
	"kabala/internal/domain/documents"
)

const dateLayout = "2006-01-02"

// DocumentFieldsRequest is the editable content of a draft.
type DocumentFieldsRequest struct {
	IssueDate     string             `json:"issueDate" binding:"omitempty,datetime=2006-01-02"`
	CustomerName  string             `json:"customerName" binding:"max=200"`
	CustomerTaxID string             `json:"customerTaxId" binding:"omitempty,max=20"`
	Currency      string             `json:"currency" binding:"omitempty,len=3"`
	Total         types.Money        `json:"total"`
	Notes         string             `json:"notes" binding:"max=2000"`
	Payments      documents.Payments `json:"payments"`
}

// ToFields converts the request into domain fields.
func (r DocumentFieldsRequest) ToFields() (documents.Fields, error) {
	f := documents.Fields{
		CustomerName:  r.CustomerName,
		CustomerTaxID: r.CustomerTaxID,
		Currency:      r.Currency,
		Total:         r.Total,
		Notes:         r.Notes,
		Payments:      r.Payments,
	}
	if r.IssueDate != "" {
		d, err := time.Parse(dateLayout, r.IssueDate)
		if err != nil {
			return f, apperror.NewValidation("invalid issue date").WithDetail("field", "issueDate")
		}
		f.IssueDate = d
	}
	return f, nil
}

// CreateDocumentRequest creates a draft.
type CreateDocumentRequest struct {
	DocumentType string `json:"documentType" binding:"required"`
	DocumentFieldsRequest
}

// UpdateDocumentRequest replaces the content of a draft.
type UpdateDocumentRequest struct {
	Version int `json:"version" binding:"required,min=1"`
	DocumentFieldsRequest
}

// FinalizeDocumentRequest issues a draft. DocumentType must match the draft.
type FinalizeDocumentRequest struct {
	DocumentType string `json:"documentType" binding:"required"`
}

// DocumentListRequest filters the document list.
type DocumentListRequest struct {
	PaginationRequest
	DocumentType string `form:"documentType"`
	Status       string `form:"status" binding:"omitempty,oneof=draft final cancelled voided"`
	Search       string `form:"search" binding:"max=200"`
}

// ToFilter converts query parameters into a domain filter.
func (r DocumentListRequest) ToFilter() (documents.ListFilter, error) {
	r.Defaults()
	f := documents.ListFilter{
		Search: r.Search,
		Limit:  r.Limit,
		Offset: r.Offset,
	}
	if r.DocumentType != "" {
		dt, err := numerator.ParseDocumentType(r.DocumentType)
		if err != nil {
			return f, apperror.NewValidation(err.Error()).WithDetail("field", "documentType")
		}
		f.DocumentType = &dt
	}
	if r.Status != "" {
		st := documents.Status(r.Status)
		if !st.Valid() {
			return f, apperror.NewValidation("unknown document status").WithDetail("field", "status")
		}
		f.Status = &st
	}
	return f, nil
}

// DocumentResponse is the public view of a document.
type DocumentResponse struct {
	ID            string                 `json:"id"`
	DocumentType  numerator.DocumentType `json:"documentType"`
	Status        documents.Status       `json:"status"`
	Number        *string                `json:"number"`
	FinalizedAt   *time.Time             `json:"finalizedAt,omitempty"`
	IssueDate     string                 `json:"issueDate"`
	CustomerName  string                 `json:"customerName"`
	CustomerTaxID string                 `json:"customerTaxId,omitempty"`
	Currency      string                 `json:"currency"`
	Total         string                 `json:"total"`
	Notes         string                 `json:"notes,omitempty"`
	Payments      documents.Payments     `json:"payments"`
	Version       int                    `json:"version"`
	CreatedBy     string                 `json:"createdBy,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

// FromDocument maps a domain document.
func FromDocument(d *documents.Document) DocumentResponse {
	payments := d.Payments
	if payments == nil {
		payments = documents.Payments{}
	}
	out := DocumentResponse{
		ID:            d.ID.String(),
		DocumentType:  d.DocumentType,
		Status:        d.Status,
		Number:        d.Number,
		FinalizedAt:   d.FinalizedAt,
		CustomerName:  d.CustomerName,
		CustomerTaxID: d.CustomerTaxID,
		Currency:      d.Currency,
		Total:         d.Total.StringFixed(types.MoneyPlaces),
		Notes:         d.Notes,
		Payments:      payments,
		Version:       d.Version,
		CreatedBy:     d.CreatedBy,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if !d.IssueDate.IsZero() {
		out.IssueDate = d.IssueDate.Format(dateLayout)
	}
	return out
}

// FromDocuments maps a page of documents.
func FromDocuments(docs []*documents.Document) []DocumentResponse {
	out := make([]DocumentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, FromDocument(d))
	}
	return out
}

// FinalizeResponse reports the issued number.
type FinalizeResponse struct {
	Document     DocumentResponse `json:"document"`
	Number       string           `json:"number"`
	AlreadyFinal bool             `json:"alreadyFinal"`
}

// FromFinalizeResult maps a finalize outcome.
func FromFinalizeResult(r *documents.FinalizeResult) FinalizeResponse {
	return FinalizeResponse{
		Document:     FromDocument(r.Document),
		Number:       r.Number,
		AlreadyFinal: r.AlreadyFinal,
	}
}
