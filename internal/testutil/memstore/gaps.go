package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"kabala/internal/core/apperror"
	"kabala/internal/core/id"
	"kabala/internal/domain/documents"
)

// GapRepo implements documents.GapRepository.
type GapRepo struct {
	mu   sync.Mutex
	gaps []*documents.Gap

	// RecordErr makes Record fail.
	RecordErr error
}

func NewGapRepo() *GapRepo {
	return &GapRepo{}
}

var _ documents.GapRepository = (*GapRepo)(nil)

func (r *GapRepo) Record(_ context.Context, gap *documents.Gap) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.RecordErr != nil {
		return r.RecordErr
	}
	cp := *gap
	r.gaps = append(r.gaps, &cp)
	return nil
}

func (r *GapRepo) List(_ context.Context, tenantID string, f documents.GapFilter) ([]*documents.Gap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*documents.Gap
	for _, g := range r.gaps {
		if g.TenantID != tenantID {
			continue
		}
		if f.DocumentType != nil && g.DocumentType != *f.DocumentType {
			continue
		}
		if f.UnresolvedOnly && g.IsResolved() {
			continue
		}
		cp := *g
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *GapRepo) Resolve(_ context.Context, tenantID string, gapID id.ID, userID, note string, at time.Time) (*documents.Gap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, g := range r.gaps {
		if g.ID != gapID || g.TenantID != tenantID {
			continue
		}
		if g.IsResolved() {
			return nil, apperror.NewConflict("sequence gap is already resolved")
		}
		resolvedAt, by, n := at, userID, note
		g.ResolvedAt, g.ResolvedBy, g.ResolutionNote = &resolvedAt, &by, &n
		cp := *g
		return &cp, nil
	}
	return nil, apperror.NewNotFound("sequence_gap", gapID.String())
}

func (r *GapRepo) ResolveForDocument(_ context.Context, tenantID string, docID id.ID, formatted, note string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, g := range r.gaps {
		if g.TenantID == tenantID && g.DocumentID == docID && g.Formatted == formatted && !g.IsResolved() {
			resolvedAt, text := at, note
			g.ResolvedAt, g.ResolutionNote = &resolvedAt, &text
			n++
		}
	}
	return n, nil
}

func (r *GapRepo) CountUnresolved(_ context.Context, tenantID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, g := range r.gaps {
		if g.TenantID == tenantID && !g.IsResolved() {
			n++
		}
	}
	return n, nil
}

// All returns every recorded gap.
func (r *GapRepo) All() []*documents.Gap {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*documents.Gap, 0, len(r.gaps))
	for _, g := range r.gaps {
		cp := *g
		out = append(out, &cp)
	}
	return out
}
