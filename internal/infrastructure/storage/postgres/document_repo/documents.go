// Package document_repo provides PostgreSQL implementations of the document
// and gap ledger repositories. Every query is scoped by tenant_id.
package document_repo

import (
	"context"
	"encoding/json"
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

const (
	documentsTable = "documents"

	// uqDocumentNumber guards against two documents of a type carrying the same number.
	uqDocumentNumber = "uq_documents_tenant_type_number"
)

// editableColumns are written by UpdateDraft. Everything else is either
// immutable or managed by the repository.
var editableColumns = []string{
	"issue_date", "customer_name", "customer_tax_id", "currency", "total", "notes", "payments",
}

// QuerierProvider yields the querier for ctx (transaction or pool).
type QuerierProvider interface {
	GetQuerier(ctx context.Context) postgres.Querier
}

// DocumentRepo implements documents.Repository.
type DocumentRepo struct {
	db         QuerierProvider
	selectCols []string
}

var _ documents.Repository = (*DocumentRepo)(nil)

// NewDocumentRepo creates a document repository.
func NewDocumentRepo(db QuerierProvider) *DocumentRepo {
	return &DocumentRepo{
		db:         db,
		selectCols: postgres.ExtractDBColumns[documents.Document](),
	}
}

// Builder returns a new squirrel builder.
func (r *DocumentRepo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// rowValues maps a document to column values. Payments are encoded to JSON
// here so the driver sends plain jsonb text.
func rowValues(doc *documents.Document, cols []string) (map[string]any, error) {
	data := postgres.StructToMap(doc)
	out := make(map[string]any, len(cols))
	for _, col := range cols {
		val, ok := data[col]
		if !ok {
			continue
		}
		if col == "payments" {
			raw, err := json.Marshal(doc.Payments)
			if err != nil {
				return nil, fmt.Errorf("encode payments: %w", err)
			}
			val = string(raw)
		}
		out[col] = val
	}
	return out, nil
}

// Create inserts a new draft.
func (r *DocumentRepo) Create(ctx context.Context, doc *documents.Document) error {
	data, err := rowValues(doc, r.selectCols)
	if err != nil {
		return err
	}

	sql, args, err := r.Builder().Insert(documentsTable).SetMap(data).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsCheckViolation(err) {
			return apperror.NewValidation("document violates a storage constraint").WithCause(err)
		}
		return postgres.Classify("insert document", err)
	}
	return nil
}

// listQuery applies the list filter, without paging or ordering.
func (r *DocumentRepo) listQuery(tenantID string, filter documents.ListFilter) squirrel.SelectBuilder {
	q := r.baseSelect(tenantID)
	if filter.DocumentType != nil {
		q = q.Where(squirrel.Eq{"document_type": *filter.DocumentType})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"document_status": *filter.Status})
	}
	if filter.Search != "" {
		pattern := "%" + likeEscaper.Replace(filter.Search) + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"customer_name": pattern},
			squirrel.ILike{"document_number": pattern},
		})
	}
	return q
}

// likeEscaper quotes LIKE wildcards using the default backslash escape.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *DocumentRepo) baseSelect(tenantID string) squirrel.SelectBuilder {
	return r.Builder().
		Select(r.selectCols...).
		From(documentsTable).
		Where(squirrel.Eq{"tenant_id": tenantID})
}

// Get retrieves a document of the tenant.
func (r *DocumentRepo) Get(ctx context.Context, tenantID string, docID id.ID) (*documents.Document, error) {
	sql, args, err := r.baseSelect(tenantID).Where(squirrel.Eq{"id": docID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var doc documents.Document
	if err := pgxscan.Get(ctx, r.db.GetQuerier(ctx), &doc, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("document", docID.String())
		}
		return nil, postgres.Classify("get document", err)
	}
	return &doc, nil
}

// List returns a page of documents, newest first, and the total count.
func (r *DocumentRepo) List(ctx context.Context, tenantID string, filter documents.ListFilter) ([]*documents.Document, int, error) {
	q := r.listQuery(tenantID, filter)

	querier := r.db.GetQuerier(ctx)

	// Count
	countSQL, countArgs, err := r.Builder().Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total int
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, postgres.Classify("count documents", err)
	}

	// Page
	q = q.OrderBy("created_at DESC", "id DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query: %w", err)
	}

	var docs []*documents.Document
	if err := pgxscan.Select(ctx, querier, &docs, sql, args...); err != nil {
		return nil, 0, postgres.Classify("list documents", err)
	}
	return docs, total, nil
}

// UpdateDraft writes the editable columns if the row is still a draft at
// doc.Version. On success doc.Version is bumped to match the row.
func (r *DocumentRepo) UpdateDraft(ctx context.Context, doc *documents.Document) (bool, error) {
	data, err := rowValues(doc, editableColumns)
	if err != nil {
		return false, err
	}

	sql, args, err := r.Builder().
		Update(documentsTable).
		SetMap(data).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", doc.UpdatedAt).
		Where(squirrel.Eq{
			"id":              doc.ID,
			"tenant_id":       doc.TenantID,
			"document_status": documents.StatusDraft,
			"version":         doc.Version,
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build update: %w", err)
	}

	tag, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, postgres.Classify("update document", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	doc.Version++
	return true, nil
}

// DeleteDraft hard-deletes a draft. Final rows are never matched.
func (r *DocumentRepo) DeleteDraft(ctx context.Context, tenantID string, docID id.ID) (bool, error) {
	sql, args, err := r.Builder().
		Delete(documentsTable).
		Where(squirrel.Eq{
			"id":              docID,
			"tenant_id":       tenantID,
			"document_status": documents.StatusDraft,
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete: %w", err)
	}

	tag, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, postgres.Classify("delete document", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFinal writes number and status final if the document is still a draft.
// A duplicate number is reported as an error, never as a miss.
func (r *DocumentRepo) MarkFinal(ctx context.Context, tenantID string, docID id.ID, number string, at time.Time) (bool, error) {
	sql, args, err := r.Builder().
		Update(documentsTable).
		Set("document_number", number).
		Set("document_status", documents.StatusFinal).
		Set("finalized_at", at).
		Set("updated_at", at).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{
			"id":              docID,
			"tenant_id":       tenantID,
			"document_status": documents.StatusDraft,
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build finalize: %w", err)
	}

	tag, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		if postgres.IsUniqueViolation(err, uqDocumentNumber) {
			return false, apperror.NewConflict("document number is already in use").
				WithDetail("number", number).
				WithCause(err)
		}
		return false, postgres.Classify("finalize document", err)
	}
	return tag.RowsAffected() > 0, nil
}
