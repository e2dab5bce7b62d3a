package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"kabala/internal/core/apperror"
	"kabala/internal/core/id"
	"kabala/internal/domain/documents"
)

// DocumentRepo implements documents.Repository.
type DocumentRepo struct {
	mu   sync.Mutex
	docs map[id.ID]*documents.Document

	// BeforeMarkFinal runs before the conditional finalize write, outside the lock.
	// Tests use it to change the document in between pre-check and update.
	BeforeMarkFinal func(tenantID string, docID id.ID)

	// MarkFinalErr makes MarkFinal fail. If MarkFinalCommits is set the write
	// is applied before the error is returned.
	MarkFinalErr     error
	MarkFinalCommits bool

	// GetErr makes Get fail after the first GetErrAfter successful calls.
	// GetErrCount limits the number of failures; zero means every later call fails.
	GetErr      error
	GetErrAfter int
	GetErrCount int
	gets        int
}

func NewDocumentRepo() *DocumentRepo {
	return &DocumentRepo{docs: make(map[id.ID]*documents.Document)}
}

var _ documents.Repository = (*DocumentRepo)(nil)

func clone(d *documents.Document) *documents.Document {
	cp := *d
	if d.Number != nil {
		n := *d.Number
		cp.Number = &n
	}
	if d.FinalizedAt != nil {
		t := *d.FinalizedAt
		cp.FinalizedAt = &t
	}
	cp.Payments = append(documents.Payments{}, d.Payments...)
	return &cp
}

func (r *DocumentRepo) Create(_ context.Context, doc *documents.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = clone(doc)
	return nil
}

func (r *DocumentRepo) Get(_ context.Context, tenantID string, docID id.ID) (*documents.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gets++
	if r.GetErr != nil && r.gets > r.GetErrAfter && (r.GetErrCount == 0 || r.gets <= r.GetErrAfter+r.GetErrCount) {
		return nil, r.GetErr
	}

	doc, ok := r.docs[docID]
	if !ok || doc.TenantID != tenantID {
		return nil, apperror.NewNotFound("document", docID.String())
	}
	return clone(doc), nil
}

func (r *DocumentRepo) List(_ context.Context, tenantID string, f documents.ListFilter) ([]*documents.Document, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*documents.Document
	for _, doc := range r.docs {
		if doc.TenantID != tenantID {
			continue
		}
		if f.DocumentType != nil && doc.DocumentType != *f.DocumentType {
			continue
		}
		if f.Status != nil && doc.Status != *f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(doc.CustomerName), strings.ToLower(f.Search)) {
			continue
		}
		matched = append(matched, clone(doc))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	start := min(f.Offset, total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}
	return matched[start:end], total, nil
}

func (r *DocumentRepo) UpdateDraft(_ context.Context, doc *documents.Document) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.docs[doc.ID]
	if !ok || cur.TenantID != doc.TenantID || !cur.IsDraft() || cur.Version != doc.Version {
		return false, nil
	}
	doc.Version++
	r.docs[doc.ID] = clone(doc)
	return true, nil
}

func (r *DocumentRepo) DeleteDraft(_ context.Context, tenantID string, docID id.ID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.docs[docID]
	if !ok || cur.TenantID != tenantID || !cur.IsDraft() {
		return false, nil
	}
	delete(r.docs, docID)
	return true, nil
}

func (r *DocumentRepo) MarkFinal(_ context.Context, tenantID string, docID id.ID, number string, at time.Time) (bool, error) {
	if r.BeforeMarkFinal != nil {
		r.BeforeMarkFinal(tenantID, docID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.MarkFinalErr != nil && !r.MarkFinalCommits {
		return false, r.MarkFinalErr
	}

	cur, ok := r.docs[docID]
	if !ok || cur.TenantID != tenantID || !cur.IsDraft() {
		return false, r.MarkFinalErr
	}
	for _, other := range r.docs {
		if other.TenantID == tenantID && other.DocumentType == cur.DocumentType && other.Number != nil && *other.Number == number {
			return false, apperror.NewConflict("duplicate document number")
		}
	}

	n := number
	finalizedAt := at
	cur.Number = &n
	cur.Status = documents.StatusFinal
	cur.FinalizedAt = &finalizedAt
	cur.UpdatedAt = at
	cur.Version++

	if r.MarkFinalErr != nil {
		return false, r.MarkFinalErr
	}
	return true, nil
}

// Force overwrites a stored document, bypassing draft checks.
func (r *DocumentRepo) Force(doc *documents.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = clone(doc)
}

// All returns every stored document.
func (r *DocumentRepo) All() []*documents.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*documents.Document, 0, len(r.docs))
	for _, d := range r.docs {
		out = append(out, clone(d))
	}
	return out
}
