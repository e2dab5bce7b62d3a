package dto

import (
	"time"

	"kabala/internal/core/numerator"
	"kabala/internal/domain/sequence"
)

// InitializeSequenceRequest sets the starting number of a document type.
// ConfirmIrreversible must be true: the choice can never be changed.
type InitializeSequenceRequest struct {
	StartingNumber      int64  `json:"startingNumber" binding:"required,min=1"`
	Prefix              string `json:"prefix" binding:"max=16"`
	ConfirmIrreversible bool   `json:"confirmIrreversible"`
}

// SequenceResponse is the public view of a numbering sequence.
type SequenceResponse struct {
	DocumentType   numerator.DocumentType `json:"documentType"`
	StartingNumber int64                  `json:"startingNumber"`
	CurrentNumber  int64                  `json:"currentNumber"`
	Prefix         string                 `json:"prefix"`
	IsLocked       bool                   `json:"isLocked"`
	LockedAt       *time.Time             `json:"lockedAt,omitempty"`
	Next           *numerator.Preview     `json:"next,omitempty"`
}

// FromSequence maps a sequence and its preview.
func FromSequence(seq *numerator.Sequence) SequenceResponse {
	next := seq.Next()
	return SequenceResponse{
		DocumentType:   seq.DocumentType,
		StartingNumber: seq.StartingNumber,
		CurrentNumber:  seq.CurrentNumber,
		Prefix:         seq.Prefix,
		IsLocked:       seq.IsLocked,
		LockedAt:       seq.LockedAt,
		Next: &numerator.Preview{
			DocumentType: seq.DocumentType,
			NextNumber:   next,
			Formatted:    numerator.Format(seq.Prefix, next),
		},
	}
}

// SequenceStatusResponse reports one document type in the sequence overview.
type SequenceStatusResponse struct {
	DocumentType numerator.DocumentType `json:"documentType"`
	Initialized  bool                   `json:"initialized"`
	Issued       bool                   `json:"issued"`
	Sequence     *SequenceResponse      `json:"sequence,omitempty"`
}

// FromStatuses maps the sequence overview.
func FromStatuses(statuses []sequence.Status) []SequenceStatusResponse {
	out := make([]SequenceStatusResponse, 0, len(statuses))
	for _, st := range statuses {
		item := SequenceStatusResponse{
			DocumentType: st.DocumentType,
			Initialized:  st.Initialized,
			Issued:       st.Issued,
		}
		if st.Sequence != nil {
			seq := FromSequence(st.Sequence)
			item.Sequence = &seq
		}
		out = append(out, item)
	}
	return out
}
