package usecase

import (
	"context"
	"errors"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/xavierca1/leadflow/internal/entity"
	"github.com/xavierca1/leadflow/internal/infra/queue"
)

const submitSuccessMessage = "Your information has been submitted successfully. We'll get back to you soon!"

type SubmitLeadUseCase struct {
	Repo   IntakeRepositoryInterface
	Audit  AuditWriter
	Events LeadEventPublisher // optional
	Policy entity.SubmissionPolicy
	Clock  clockwork.Clock
	Logger zerolog.Logger
}

func NewSubmitLeadUseCase(
	repo IntakeRepositoryInterface,
	audit AuditWriter,
	events LeadEventPublisher,
	policy entity.SubmissionPolicy,
	clock clockwork.Clock,
	logger zerolog.Logger,
) *SubmitLeadUseCase {
	if policy.Threshold <= 0 || policy.Window <= 0 {
		policy = entity.DefaultSubmissionPolicy()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SubmitLeadUseCase{
		Repo:   repo,
		Audit:  audit,
		Events: events,
		Policy: policy,
		Clock:  clock,
		Logger: logger.With().Str("usecase", "submit_lead").Logger(),
	}
}

// Execute validates the draft, then admits it against the per-IP window and
// stores the lead. Nothing is written when validation or the limit rejects it.
func (uc *SubmitLeadUseCase) Execute(ctx context.Context, input SubmitLeadInput) (*SubmitLeadOutput, error) {
	if verr := ValidateLeadDraft(input.Draft); verr != nil {
		return nil, verr
	}

	now := uc.Clock.Now().UTC()
	d := input.Draft
	lead := entity.NewLead(d.Name, d.Email, d.Phone, ResolveSource(d), d.Interest, d.Note, input.UserAgent, now)

	submissionID, err := uc.Repo.SubmitLead(ctx, entity.SubmissionRecord{
		Lead:        lead,
		IPAddress:   input.IPAddress,
		SubmittedAt: now,
		Policy:      uc.Policy,
	})
	if errors.Is(err, entity.ErrSubmissionLimit) {
		uc.Logger.Info().Str("ip", input.IPAddress).Msg("submission rejected by rate limit")
		return nil, &RateLimitError{Threshold: uc.Policy.Threshold, Window: uc.Policy.Window}
	}
	if err != nil {
		return nil, &StorageError{Op: "submit lead", Err: err}
	}

	recordAudit(ctx, uc.Audit, uc.Logger, &entity.AuditLogEntry{
		EventTime: now,
		Role:      entity.RolePublic,
		Action:    entity.ActionCreate,
		TableName: "leads",
		LeadID:    lead.ID,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		Payload: entity.LeadCreatedPayload{
			LeadName:     lead.Name,
			LeadEmail:    lead.Email,
			Source:       lead.Source,
			SubmissionID: submissionID,
		},
	})

	if uc.Events != nil {
		err := uc.Events.PublishLeadCreated(ctx, queue.LeadCreatedPayload{
			LeadID:    lead.ID,
			Name:      lead.Name,
			Email:     lead.Email,
			Source:    lead.Source,
			CreatedAt: lead.CreatedAt,
		})
		if err != nil {
			uc.Logger.Warn().Err(err).Str("lead_id", lead.ID).Msg("publish lead.created failed")
		}
	}

	uc.Logger.Info().Str("lead_id", lead.ID).Str("source", lead.Source).Msg("lead submitted")

	return &SubmitLeadOutput{
		Success: true,
		Message: submitSuccessMessage,
		LeadID:  lead.ID,
	}, nil
}
