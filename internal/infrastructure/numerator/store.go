// Package numerator provides the PostgreSQL sequence store.
// This is the infrastructure layer - it implements core/numerator.Store.
//
// Statements here run outside business transactions: each Lock and Allocate
// is a single auto-committed statement whose row lock serializes concurrent
// callers for the same (tenant, document type).
package numerator

import (
	"context"
	"errors"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"kabala/internal/core/apperror"
	corenumerator "kabala/internal/core/numerator"
	"kabala/internal/infrastructure/storage/postgres"
)

// QuerierProvider yields the querier for ctx (transaction or pool).
type QuerierProvider interface {
	GetQuerier(ctx context.Context) postgres.Querier
}

// Store implements numerator.Store on the document_sequences table.
type Store struct {
	db QuerierProvider
}

var _ corenumerator.Store = (*Store)(nil)

// NewStore creates a sequence store.
func NewStore(db QuerierProvider) *Store {
	return &Store{db: db}
}

const sequenceColumns = `tenant_id, document_type, starting_number, current_number, prefix, is_locked, locked_at, created_at, updated_at`

func scanSequence(row pgx.Row) (*corenumerator.Sequence, error) {
	var s corenumerator.Sequence
	err := row.Scan(
		&s.TenantID, &s.DocumentType, &s.StartingNumber, &s.CurrentNumber,
		&s.Prefix, &s.IsLocked, &s.LockedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Get returns the sequence or numerator.ErrNotFound.
func (s *Store) Get(ctx context.Context, tenantID string, docType corenumerator.DocumentType) (*corenumerator.Sequence, error) {
	seq, err := scanSequence(s.db.GetQuerier(ctx).QueryRow(ctx,
		`SELECT `+sequenceColumns+` FROM document_sequences WHERE tenant_id = $1 AND document_type = $2`,
		tenantID, docType,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, corenumerator.ErrNotFound
	}
	if err != nil {
		return nil, postgres.Classify("get sequence", err)
	}
	return seq, nil
}

// List returns all sequences of a tenant ordered by document type.
func (s *Store) List(ctx context.Context, tenantID string) ([]*corenumerator.Sequence, error) {
	var seqs []*corenumerator.Sequence
	err := pgxscan.Select(ctx, s.db.GetQuerier(ctx), &seqs,
		`SELECT `+sequenceColumns+` FROM document_sequences WHERE tenant_id = $1 ORDER BY document_type`,
		tenantID,
	)
	if err != nil {
		return nil, postgres.Classify("list sequences", err)
	}
	return seqs, nil
}

// Lock sets the starting number and prefix and locks the sequence in one upsert.
// The conflict branch only fires for an unlocked row, so a second
// initialization returns no row and maps to ErrAlreadyLocked.
func (s *Store) Lock(ctx context.Context, tenantID string, docType corenumerator.DocumentType, startingNumber int64, prefix string) (*corenumerator.Sequence, error) {
	seq, err := scanSequence(s.db.GetQuerier(ctx).QueryRow(ctx, `
		INSERT INTO document_sequences (tenant_id, document_type, starting_number, current_number, prefix, is_locked, locked_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, NOW())
		ON CONFLICT (tenant_id, document_type) DO UPDATE SET
			starting_number = EXCLUDED.starting_number,
			current_number  = EXCLUDED.current_number,
			prefix          = EXCLUDED.prefix,
			is_locked       = TRUE,
			locked_at       = EXCLUDED.locked_at,
			updated_at      = NOW()
		WHERE document_sequences.is_locked = FALSE
		RETURNING `+sequenceColumns,
		tenantID, docType, startingNumber, startingNumber-1, prefix,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, corenumerator.ErrAlreadyLocked
	}
	if err != nil {
		return nil, postgres.Classify("lock sequence", err)
	}
	return seq, nil
}

// Allocate increments a locked sequence and returns the new number.
// GREATEST keeps a lagging current_number from issuing below the start.
func (s *Store) Allocate(ctx context.Context, tenantID string, docType corenumerator.DocumentType) (corenumerator.Allocation, error) {
	var (
		number int64
		prefix string
	)
	err := s.db.GetQuerier(ctx).QueryRow(ctx, `
		UPDATE document_sequences
		SET current_number = GREATEST(current_number, starting_number - 1) + 1,
		    updated_at     = NOW()
		WHERE tenant_id = $1 AND document_type = $2 AND is_locked
		RETURNING current_number, prefix
	`, tenantID, docType).Scan(&number, &prefix)

	if errors.Is(err, pgx.ErrNoRows) {
		return corenumerator.Allocation{}, s.classifyMiss(ctx, tenantID, docType)
	}
	if err != nil {
		return corenumerator.Allocation{}, postgres.Classify("allocate number", err)
	}

	return corenumerator.Allocation{Number: number, Formatted: corenumerator.Format(prefix, number)}, nil
}

// classifyMiss explains why Allocate matched no row.
func (s *Store) classifyMiss(ctx context.Context, tenantID string, docType corenumerator.DocumentType) error {
	seq, err := s.Get(ctx, tenantID, docType)
	if err != nil {
		return err
	}
	if !seq.IsLocked {
		return corenumerator.ErrNotLocked
	}
	// Locked in between; the caller may retry.
	return apperror.NewTransient(errors.New("sequence locked during allocation"))
}
