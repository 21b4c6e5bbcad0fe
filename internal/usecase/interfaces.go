package usecase

import (
	"context"

	"github.com/xavierca1/leadflow/internal/entity"
	"github.com/xavierca1/leadflow/internal/infra/mail"
	"github.com/xavierca1/leadflow/internal/infra/queue"
)

type IntakeRepositoryInterface interface {
	// SubmitLead checks the per-IP window and, when there is room, records
	// the submission and inserts the lead in one serialized transaction.
	// It returns entity.ErrSubmissionLimit when the window is full.
	SubmitLead(ctx context.Context, rec entity.SubmissionRecord) (submissionID string, err error)
}

type EmailSender interface {
	Send(ctx context.Context, msg mail.Message) error
}

type LeadEventPublisher interface {
	PublishLeadCreated(ctx context.Context, payload queue.LeadCreatedPayload) error
}

type AuditWriter interface {
	Insert(ctx context.Context, entry *entity.AuditLogEntry) error
}

// Actor is the authenticated caller of an admin operation.
type Actor struct {
	UserID string
	Role   entity.Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == entity.RoleAdmin
}
