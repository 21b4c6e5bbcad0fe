package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/xavierca1/leadflow/internal/entity"
)

const DefaultFollowUpDelay = 24 * time.Hour

type AssignLeadOutput struct {
	LeadID           string           `json:"lead_id"`
	AssignedTo       string           `json:"assigned_to"`
	PreviousAssignee string           `json:"previous_assignee,omitempty"`
	FollowUp         *entity.FollowUp `json:"followup,omitempty"`
}

type AssignLeadUseCase struct {
	Leads         entity.LeadRepositoryInterface
	FollowUps     *FollowUpUseCase
	Audit         AuditWriter
	FollowUpDelay time.Duration
	Clock         clockwork.Clock
	Logger        zerolog.Logger
}

func NewAssignLeadUseCase(
	leads entity.LeadRepositoryInterface,
	followUps *FollowUpUseCase,
	audit AuditWriter,
	followUpDelay time.Duration,
	clock clockwork.Clock,
	logger zerolog.Logger,
) *AssignLeadUseCase {
	if followUpDelay <= 0 {
		followUpDelay = DefaultFollowUpDelay
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AssignLeadUseCase{
		Leads:         leads,
		FollowUps:     followUps,
		Audit:         audit,
		FollowUpDelay: followUpDelay,
		Clock:         clock,
		Logger:        logger.With().Str("usecase", "assign_lead").Logger(),
	}
}

// Execute assigns the lead to a manager and schedules the first follow-up.
// On reassignment the open follow-ups of the previous owner are closed and
// their queued emails cancelled. A follow-up that cannot be scheduled is
// logged; the assignment stands.
func (uc *AssignLeadUseCase) Execute(ctx context.Context, actor Actor, input AssignLeadInput) (*AssignLeadOutput, error) {
	if !actor.IsAdmin() {
		return nil, errForbidden
	}
	managerID := strings.TrimSpace(input.ManagerID)
	if managerID == "" {
		return nil, &ValidationError{"manager_id", "is required"}
	}

	previous, err := uc.Leads.Assign(ctx, input.LeadID, managerID)
	if errors.Is(err, entity.ErrLeadNotFound) {
		return nil, notFound("lead")
	}
	if err != nil {
		return nil, &StorageError{Op: "assign lead", Err: err}
	}

	now := uc.Clock.Now().UTC()
	recordAudit(ctx, uc.Audit, uc.Logger, &entity.AuditLogEntry{
		EventTime: now,
		UserID:    actor.UserID,
		Role:      actor.Role,
		Action:    entity.ActionUpdate,
		TableName: "leads",
		LeadID:    input.LeadID,
		Payload: entity.LeadAssignedPayload{
			AssigneeID:         managerID,
			PreviousAssigneeID: previous,
		},
	})

	out := &AssignLeadOutput{LeadID: input.LeadID, AssignedTo: managerID, PreviousAssignee: previous}

	if uc.FollowUps == nil {
		return out, nil
	}
	lead, err := uc.Leads.FindByID(ctx, input.LeadID)
	if err != nil {
		uc.Logger.Warn().Err(err).Str("lead_id", input.LeadID).Msg("reload assigned lead failed")
		return out, nil
	}
	if previous != "" {
		uc.FollowUps.supersede(ctx, lead.ID)
	}
	due := now.Add(uc.FollowUpDelay)
	f, err := uc.FollowUps.schedule(ctx, actor, lead, ScheduleFollowUpInput{
		LeadID:   lead.ID,
		Template: DefaultFollowUpTemplate,
		DueAt:    &due,
	})
	if err != nil {
		uc.Logger.Warn().Err(err).Str("lead_id", lead.ID).Msg("schedule follow-up after assignment failed")
		return out, nil
	}
	out.FollowUp = f
	return out, nil
}
