package usecase

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xavierca1/leadflow/internal/entity"
)

const recentLeadsWindow = 7 * 24 * time.Hour

type ReportingUseCase struct {
	Audit     entity.AuditLogRepositoryInterface
	Analytics entity.AnalyticsRepositoryInterface
	Emails    entity.EmailQueueRepositoryInterface
	Clock     clockwork.Clock
}

func NewReportingUseCase(
	audit entity.AuditLogRepositoryInterface,
	analytics entity.AnalyticsRepositoryInterface,
	emails entity.EmailQueueRepositoryInterface,
	clock clockwork.Clock,
) *ReportingUseCase {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ReportingUseCase{Audit: audit, Analytics: analytics, Emails: emails, Clock: clock}
}

func (uc *ReportingUseCase) AuditLogs(ctx context.Context, actor Actor, filter entity.AuditFilter) ([]entity.AuditLogEntry, error) {
	if !actor.IsAdmin() {
		return nil, errForbidden
	}
	filter.Limit = pageSize(filter.Limit)
	filter.Offset = max(filter.Offset, 0)

	entries, err := uc.Audit.List(ctx, filter)
	if err != nil {
		return nil, &StorageError{Op: "list audit logs", Err: err}
	}
	return entries, nil
}

// Summary aggregates leads for the actor. Queue counts are admin only.
func (uc *ReportingUseCase) Summary(ctx context.Context, actor Actor) (*AnalyticsSummary, error) {
	if !actor.canReadLeads() {
		return nil, errForbidden
	}
	assignedTo := ""
	if actor.IsManager() {
		assignedTo = actor.UserID
	}

	since := uc.Clock.Now().UTC().Add(-recentLeadsWindow)
	leads, err := uc.Analytics.LeadSummary(ctx, assignedTo, since)
	if err != nil {
		return nil, &StorageError{Op: "lead summary", Err: err}
	}
	out := &AnalyticsSummary{Leads: leads}

	if actor.IsAdmin() {
		counts, err := uc.Emails.CountByStatus(ctx)
		if err != nil {
			return nil, &StorageError{Op: "count email queue", Err: err}
		}
		out.Queue = counts
	}
	return out, nil
}
