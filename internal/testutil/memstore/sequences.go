// Package memstore provides in-memory implementations of the storage
// contracts for unit tests. All stores are safe for concurrent use.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"kabala/internal/core/numerator"
)

type seqKey struct {
	tenantID string
	docType  numerator.DocumentType
}

// SequenceStore implements numerator.Store.
type SequenceStore struct {
	mu   sync.Mutex
	seqs map[seqKey]*numerator.Sequence

	// AllocateErr, when set, is returned by Allocate without side effects.
	AllocateErr error
}

func NewSequenceStore() *SequenceStore {
	return &SequenceStore{seqs: make(map[seqKey]*numerator.Sequence)}
}

var _ numerator.Store = (*SequenceStore)(nil)

// Put stores a raw sequence row, e.g. an unlocked placeholder.
func (s *SequenceStore) Put(seq numerator.Sequence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs[seqKey{seq.TenantID, seq.DocumentType}] = &seq
}

func (s *SequenceStore) Get(_ context.Context, tenantID string, docType numerator.DocumentType) (*numerator.Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.seqs[seqKey{tenantID, docType}]
	if !ok {
		return nil, numerator.ErrNotFound
	}
	cp := *seq
	return &cp, nil
}

func (s *SequenceStore) List(_ context.Context, tenantID string) ([]*numerator.Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*numerator.Sequence
	for k, seq := range s.seqs {
		if k.tenantID == tenantID {
			cp := *seq
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentType < out[j].DocumentType })
	return out, nil
}

func (s *SequenceStore) Lock(_ context.Context, tenantID string, docType numerator.DocumentType, startingNumber int64, prefix string) (*numerator.Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := seqKey{tenantID, docType}
	now := time.Now().UTC()
	seq, ok := s.seqs[k]
	if ok && seq.IsLocked {
		return nil, numerator.ErrAlreadyLocked
	}
	if !ok {
		seq = &numerator.Sequence{TenantID: tenantID, DocumentType: docType, CreatedAt: now}
		s.seqs[k] = seq
	}
	seq.StartingNumber = startingNumber
	seq.CurrentNumber = startingNumber - 1
	seq.Prefix = prefix
	seq.IsLocked = true
	seq.LockedAt = &now
	seq.UpdatedAt = now

	cp := *seq
	return &cp, nil
}

func (s *SequenceStore) Allocate(_ context.Context, tenantID string, docType numerator.DocumentType) (numerator.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.AllocateErr != nil {
		return numerator.Allocation{}, s.AllocateErr
	}

	seq, ok := s.seqs[seqKey{tenantID, docType}]
	if !ok {
		return numerator.Allocation{}, numerator.ErrNotFound
	}
	if !seq.IsLocked {
		return numerator.Allocation{}, numerator.ErrNotLocked
	}

	seq.CurrentNumber = max(seq.CurrentNumber, seq.StartingNumber-1) + 1
	seq.UpdatedAt = time.Now().UTC()
	return numerator.Allocation{
		Number:    seq.CurrentNumber,
		Formatted: numerator.Format(seq.Prefix, seq.CurrentNumber),
	}, nil
}

// Current returns the current number of a sequence, or -1 if absent.
func (s *SequenceStore) Current(tenantID string, docType numerator.DocumentType) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq, ok := s.seqs[seqKey{tenantID, docType}]; ok {
		return seq.CurrentNumber
	}
	return -1
}
