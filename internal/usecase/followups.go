package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/xavierca1/leadflow/internal/entity"
	"github.com/xavierca1/leadflow/internal/infra/mail"
)

const (
	DefaultFollowUpTemplate = "check-in"
	followUpSubject         = "Your request with us"
)

type FollowUpUseCase struct {
	Leads     entity.LeadRepositoryInterface
	FollowUps entity.FollowUpRepositoryInterface
	Emails    *EnqueueEmailUseCase
	Audit     AuditWriter
	Clock     clockwork.Clock
	Logger    zerolog.Logger
}

func NewFollowUpUseCase(
	leads entity.LeadRepositoryInterface,
	followUps entity.FollowUpRepositoryInterface,
	emails *EnqueueEmailUseCase,
	audit AuditWriter,
	clock clockwork.Clock,
	logger zerolog.Logger,
) *FollowUpUseCase {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &FollowUpUseCase{
		Leads:     leads,
		FollowUps: followUps,
		Emails:    emails,
		Audit:     audit,
		Clock:     clock,
		Logger:    logger.With().Str("usecase", "followups").Logger(),
	}
}

// Schedule creates a follow-up for the lead and queues the email that
// delivers it at the due time.
func (uc *FollowUpUseCase) Schedule(ctx context.Context, actor Actor, input ScheduleFollowUpInput) (*entity.FollowUp, error) {
	lead, err := loadLeadFor(ctx, uc.Leads, actor, input.LeadID)
	if err != nil {
		return nil, err
	}
	return uc.schedule(ctx, actor, lead, input)
}

func (uc *FollowUpUseCase) schedule(ctx context.Context, actor Actor, lead *entity.Lead, input ScheduleFollowUpInput) (*entity.FollowUp, error) {
	template := strings.ToLower(strings.TrimSpace(input.Template))
	if template == "" {
		template = DefaultFollowUpTemplate
	}

	now := uc.Clock.Now().UTC()
	due := now
	if input.DueAt != nil && input.DueAt.After(now) {
		due = input.DueAt.UTC()
	}

	emailID, err := uc.Emails.ExecuteAs(ctx, actor, EnqueueEmailInput{
		RecipientEmail: lead.Email,
		RecipientName:  lead.Name,
		Subject:        followUpSubject,
		Body:           mail.FollowUpCopy(template),
		EmailType:      entity.EmailFollowUp,
		LeadID:         lead.ID,
		UserID:         actor.UserID,
		ScheduledAt:    &due,
	})
	if err != nil {
		return nil, err
	}

	f := &entity.FollowUp{
		ID:        uuid.New().String(),
		LeadID:    lead.ID,
		Template:  template,
		Status:    entity.FollowUpPending,
		DueAt:     due,
		EmailID:   emailID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.FollowUps.Create(ctx, f); err != nil {
		return nil, &StorageError{Op: "create follow-up", Err: err}
	}

	recordAudit(ctx, uc.Audit, uc.Logger, &entity.AuditLogEntry{
		EventTime: now,
		UserID:    actor.UserID,
		Role:      actor.Role,
		Action:    entity.ActionFollowUpScheduled,
		TableName: "followups",
		LeadID:    lead.ID,
		Payload: entity.FollowUpScheduledPayload{
			FollowUpID: f.ID,
			Template:   f.Template,
			EmailID:    emailID,
			DueAt:      due,
		},
	})
	return f, nil
}

// cancelEmail stops the follow-up email if the dispatcher has not picked it
// up yet. Failures are logged; the follow-up change stands.
func (uc *FollowUpUseCase) cancelEmail(ctx context.Context, f *entity.FollowUp, at time.Time) {
	if f.EmailID == "" || uc.Emails == nil {
		return
	}
	err := uc.Emails.Repo.CancelPending(ctx, f.EmailID, at)
	switch {
	case err == nil:
		uc.Logger.Debug().Str("followup_id", f.ID).Str("email_id", f.EmailID).Msg("follow-up email cancelled")
	case errors.Is(err, entity.ErrEmailNotPending):
	default:
		uc.Logger.Warn().Err(err).Str("email_id", f.EmailID).Msg("cancel follow-up email failed")
	}
}

// supersede closes the open follow-ups of a lead and cancels their queued
// emails. It runs before a reassignment schedules a fresh follow-up.
func (uc *FollowUpUseCase) supersede(ctx context.Context, leadID string) {
	open, err := uc.FollowUps.List(ctx, entity.FollowUpFilter{LeadID: leadID, Limit: maxPageSize})
	if err != nil {
		uc.Logger.Warn().Err(err).Str("lead_id", leadID).Msg("list follow-ups to supersede failed")
		return
	}
	now := uc.Clock.Now().UTC()
	for i := range open {
		f := &open[i]
		if f.Status == entity.FollowUpDone {
			continue
		}
		if err := uc.FollowUps.UpdateStatus(ctx, f.ID, entity.FollowUpDone, now); err != nil {
			uc.Logger.Warn().Err(err).Str("followup_id", f.ID).Msg("close superseded follow-up failed")
			continue
		}
		uc.cancelEmail(ctx, f, now)
	}
}

func (uc *FollowUpUseCase) List(ctx context.Context, actor Actor, status entity.FollowUpStatus, limit int) ([]entity.FollowUp, error) {
	if !actor.canReadLeads() {
		return nil, errForbidden
	}
	if status != "" && !status.Valid() {
		return nil, &ValidationError{"status", "must be pending, in_progress or done"}
	}
	filter := entity.FollowUpFilter{Status: status, Limit: pageSize(limit)}
	if actor.IsManager() {
		filter.AssignedTo = actor.UserID
	}
	out, err := uc.FollowUps.List(ctx, filter)
	if err != nil {
		return nil, &StorageError{Op: "list follow-ups", Err: err}
	}
	return out, nil
}

func (uc *FollowUpUseCase) UpdateStatus(ctx context.Context, actor Actor, id string, status entity.FollowUpStatus) (*entity.FollowUp, error) {
	if !status.Valid() {
		return nil, &ValidationError{"status", "must be pending, in_progress or done"}
	}
	if !actor.canReadLeads() {
		return nil, errForbidden
	}

	f, err := uc.FollowUps.FindByID(ctx, id)
	if errors.Is(err, entity.ErrFollowUpNotFound) {
		return nil, notFound("follow-up")
	}
	if err != nil {
		return nil, &StorageError{Op: "find follow-up", Err: err}
	}
	if _, err := loadLeadFor(ctx, uc.Leads, actor, f.LeadID); err != nil {
		return nil, err
	}
	if f.Status == entity.FollowUpDone && status != entity.FollowUpDone {
		return nil, &DomainError{Code: CodeInvalidState, Message: "follow-up is already done"}
	}

	now := uc.Clock.Now().UTC()
	if err := uc.FollowUps.UpdateStatus(ctx, id, status, now); err != nil {
		if errors.Is(err, entity.ErrFollowUpNotFound) {
			return nil, notFound("follow-up")
		}
		return nil, &StorageError{Op: "update follow-up", Err: err}
	}
	if status == entity.FollowUpDone && f.Status != entity.FollowUpDone {
		uc.cancelEmail(ctx, f, now)
	}
	f.Status = status
	f.UpdatedAt = now

	recordAudit(ctx, uc.Audit, uc.Logger, &entity.AuditLogEntry{
		EventTime: now,
		UserID:    actor.UserID,
		Role:      actor.Role,
		Action:    entity.ActionUpdate,
		TableName: "followups",
		LeadID:    f.LeadID,
		Payload:   entity.FollowUpStatusPayload{FollowUpID: f.ID, Status: status},
	})
	return f, nil
}
