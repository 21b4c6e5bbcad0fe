package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/xavierca1/leadflow/internal/entity"
)

// recordAudit writes an audit entry. Audit is best effort: a failure is
// logged and never undoes the action being described.
func recordAudit(ctx context.Context, w AuditWriter, logger zerolog.Logger, entry *entity.AuditLogEntry) {
	if w == nil {
		return
	}
	if err := w.Insert(ctx, entry); err != nil {
		logger.Warn().Err(err).
			Str("action", string(entry.Action)).
			Str("table", entry.TableName).
			Str("lead_id", entry.LeadID).
			Msg("audit write failed")
	}
}
