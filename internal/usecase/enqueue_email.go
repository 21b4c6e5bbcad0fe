package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/xavierca1/leadflow/internal/entity"
	"github.com/xavierca1/leadflow/internal/infra/mail"
)

// welcomePriority puts confirmation mail ahead of routine traffic.
const welcomePriority = 1

type EnqueueEmailUseCase struct {
	Repo   entity.EmailQueueRepositoryInterface
	Leads  entity.LeadRepositoryInterface
	Audit  AuditWriter
	Clock  clockwork.Clock
	Logger zerolog.Logger
}

func NewEnqueueEmailUseCase(
	repo entity.EmailQueueRepositoryInterface,
	leads entity.LeadRepositoryInterface,
	audit AuditWriter,
	clock clockwork.Clock,
	logger zerolog.Logger,
) *EnqueueEmailUseCase {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &EnqueueEmailUseCase{
		Repo:   repo,
		Leads:  leads,
		Audit:  audit,
		Clock:  clock,
		Logger: logger.With().Str("usecase", "enqueue_email").Logger(),
	}
}

// Execute queues one pending email on behalf of the system. No delivery is
// attempted here.
func (uc *EnqueueEmailUseCase) Execute(ctx context.Context, input EnqueueEmailInput) (string, error) {
	return uc.ExecuteAs(ctx, Actor{UserID: input.UserID, Role: entity.RoleSystem}, input)
}

func (uc *EnqueueEmailUseCase) ExecuteAs(ctx context.Context, actor Actor, input EnqueueEmailInput) (string, error) {
	if input.EmailType == "" {
		input.EmailType = entity.EmailOther
	}
	if strings.TrimSpace(input.Subject) == "" {
		input.Subject = mail.DefaultSubject(string(input.EmailType))
	}
	if verr := ValidateEnqueueInput(input); verr != nil {
		return "", verr
	}

	now := uc.Clock.Now().UTC()
	scheduledAt := now
	if input.ScheduledAt != nil && input.ScheduledAt.After(now) {
		scheduledAt = input.ScheduledAt.UTC()
	}
	priority := input.Priority
	if priority == 0 {
		priority = entity.DefaultEmailPriority
	}

	item := &entity.EmailQueueItem{
		ID:             uuid.New().String(),
		RecipientEmail: strings.TrimSpace(input.RecipientEmail),
		RecipientName:  strings.TrimSpace(input.RecipientName),
		Subject:        strings.TrimSpace(input.Subject),
		Body:           input.Body,
		EmailType:      input.EmailType,
		LeadID:         input.LeadID,
		UserID:         input.UserID,
		Priority:       priority,
		Status:         entity.EmailPending,
		ScheduledAt:    scheduledAt,
		CreatedAt:      now,
	}

	if err := uc.Repo.Enqueue(ctx, item); err != nil {
		return "", &StorageError{Op: "enqueue email", Err: err}
	}

	recordAudit(ctx, uc.Audit, uc.Logger, &entity.AuditLogEntry{
		EventTime: now,
		UserID:    actor.UserID,
		Role:      actor.Role,
		Action:    entity.ActionEmailEnqueued,
		TableName: "email_queue",
		LeadID:    item.LeadID,
		Payload: entity.EmailEnqueuedPayload{
			EmailID:     item.ID,
			Recipient:   item.RecipientEmail,
			EmailType:   item.EmailType,
			ScheduledAt: item.ScheduledAt,
		},
	})

	return item.ID, nil
}

// EnqueueWelcome queues the confirmation email for an existing lead.
func (uc *EnqueueEmailUseCase) EnqueueWelcome(ctx context.Context, leadID string) (string, error) {
	return uc.EnqueueWelcomeAs(ctx, Actor{Role: entity.RoleSystem}, leadID)
}

func (uc *EnqueueEmailUseCase) EnqueueWelcomeAs(ctx context.Context, actor Actor, leadID string) (string, error) {
	lead, err := uc.Leads.FindByID(ctx, leadID)
	if errors.Is(err, entity.ErrLeadNotFound) {
		return "", notFound("lead")
	}
	if err != nil {
		return "", &StorageError{Op: "find lead", Err: err}
	}

	return uc.ExecuteAs(ctx, actor, EnqueueEmailInput{
		RecipientEmail: lead.Email,
		RecipientName:  lead.Name,
		EmailType:      entity.EmailWelcome,
		LeadID:         lead.ID,
		UserID:         actor.UserID,
		Priority:       welcomePriority,
	})
}
