package document_repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"kabala/internal/core/apperror"
	"kabala/internal/core/id"
	"kabala/internal/domain/documents"
	"kabala/internal/infrastructure/storage/postgres"
)

const gapsTable = "sequence_gaps"

// GapRepo implements documents.GapRepository on the sequence_gaps table.
type GapRepo struct {
	db         QuerierProvider
	selectCols []string
}

var _ documents.GapRepository = (*GapRepo)(nil)

// NewGapRepo creates a gap ledger repository.
func NewGapRepo(db QuerierProvider) *GapRepo {
	return &GapRepo{
		db:         db,
		selectCols: postgres.ExtractDBColumns[documents.Gap](),
	}
}

func (r *GapRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Record inserts a burned number. The insert is idempotent per
// (tenant, document type, number).
func (r *GapRepo) Record(ctx context.Context, gap *documents.Gap) error {
	data := postgres.StructToMap(gap)
	delete(data, "resolved_at")
	delete(data, "resolved_by")
	delete(data, "resolution_note")

	sql, args, err := r.builder().
		Insert(gapsTable).
		SetMap(data).
		Suffix("ON CONFLICT (tenant_id, document_type, number) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.Classify("record sequence gap", err)
	}
	return nil
}

// List returns gaps of a tenant, newest first.
func (r *GapRepo) List(ctx context.Context, tenantID string, filter documents.GapFilter) ([]*documents.Gap, error) {
	q := r.builder().
		Select(r.selectCols...).
		From(gapsTable).
		Where(squirrel.Eq{"tenant_id": tenantID}).
		OrderBy("created_at DESC", "number DESC")

	if filter.DocumentType != nil {
		q = q.Where(squirrel.Eq{"document_type": *filter.DocumentType})
	}
	if filter.UnresolvedOnly {
		q = q.Where(squirrel.Eq{"resolved_at": nil})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var gaps []*documents.Gap
	if err := pgxscan.Select(ctx, r.db.GetQuerier(ctx), &gaps, sql, args...); err != nil {
		return nil, postgres.Classify("list sequence gaps", err)
	}
	return gaps, nil
}

// Resolve marks an unresolved gap as reconciled.
func (r *GapRepo) Resolve(ctx context.Context, tenantID string, gapID id.ID, userID, note string, at time.Time) (*documents.Gap, error) {
	sql, args, err := r.builder().
		Update(gapsTable).
		Set("resolved_at", at).
		Set("resolved_by", userID).
		Set("resolution_note", note).
		Where(squirrel.Eq{"id": gapID, "tenant_id": tenantID, "resolved_at": nil}).
		Suffix("RETURNING " + strings.Join(r.selectCols, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build resolve: %w", err)
	}

	var gap documents.Gap
	err = pgxscan.Get(ctx, r.db.GetQuerier(ctx), &gap, sql, args...)
	if err == nil {
		return &gap, nil
	}
	if !pgxscan.NotFound(err) {
		return nil, postgres.Classify("resolve sequence gap", err)
	}

	// Distinguish unknown from already resolved.
	var resolved bool
	err = r.db.GetQuerier(ctx).QueryRow(ctx,
		`SELECT resolved_at IS NOT NULL FROM sequence_gaps WHERE id = $1 AND tenant_id = $2`,
		gapID, tenantID,
	).Scan(&resolved)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("sequence_gap", gapID.String())
		}
		return nil, postgres.Classify("read sequence gap", err)
	}
	return nil, apperror.NewConflict("sequence gap is already resolved").WithDetail("gap_id", gapID.String())
}

// ResolveForDocument closes open gaps whose number docID turned out to carry.
func (r *GapRepo) ResolveForDocument(ctx context.Context, tenantID string, docID id.ID, formatted, note string, at time.Time) (int64, error) {
	sql, args, err := r.builder().
		Update(gapsTable).
		Set("resolved_at", at).
		Set("resolution_note", note).
		Where(squirrel.Eq{
			"tenant_id":   tenantID,
			"document_id": docID,
			"formatted":   formatted,
			"resolved_at": nil,
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build resolve: %w", err)
	}

	tag, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, postgres.Classify("resolve sequence gaps for document", err)
	}
	return tag.RowsAffected(), nil
}

// CountUnresolved returns the number of open gaps of a tenant.
func (r *GapRepo) CountUnresolved(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := r.db.GetQuerier(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM sequence_gaps WHERE tenant_id = $1 AND resolved_at IS NULL`,
		tenantID,
	).Scan(&n)
	if err != nil {
		return 0, postgres.Classify("count sequence gaps", err)
	}
	return n, nil
}
