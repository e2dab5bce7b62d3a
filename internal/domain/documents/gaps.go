package documents

import (
	"context"
	"strings"

	"kabala/internal/core/apperror"
	appctx "kabala/internal/core/context"
	"kabala/internal/core/id"
	"kabala/internal/domain/audit"
	"kabala/pkg/logger"
)

const maxResolutionNoteLength = 1000

// ListGaps returns the gap ledger of a tenant, newest first.
func (s *Service) ListGaps(ctx context.Context, tenantID string, filter GapFilter) ([]*Gap, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	gaps, err := s.gaps.List(ctx, tenantID, filter)
	if err != nil {
		return nil, normalize(err)
	}
	return gaps, nil
}

// ResolveGap records how a burned number was reconciled (e.g. a cancelled
// document was filed for it).
func (s *Service) ResolveGap(ctx context.Context, tenantID string, gapID id.ID, note string) (*Gap, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, apperror.NewValidation("resolution note is required").WithDetail("field", "note")
	}
	if len(note) > maxResolutionNoteLength {
		return nil, apperror.NewValidation("resolution note is too long").WithDetail("field", "note")
	}

	var gap *Gap
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		gap, err = s.gaps.Resolve(ctx, tenantID, gapID, appctx.GetUserID(ctx), note, s.now())
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Entry{
			TenantID:   tenantID,
			EntityType: audit.EntityGap,
			EntityID:   gapID.String(),
			Action:     audit.ActionResolveGap,
			Changes:    map[string]any{"number": gap.Formatted, "note": note},
		})
	})
	if err != nil {
		return nil, normalize(err)
	}

	logger.Info(ctx, "sequence gap resolved", "gap_id", gapID, "number", gap.Formatted)
	return gap, nil
}
