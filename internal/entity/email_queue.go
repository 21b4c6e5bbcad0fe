package entity

import (
	"context"
	"errors"
	"time"
)

// ErrEmailNotClaimed means the row is no longer in processing, so the
// outcome was not recorded.
var ErrEmailNotClaimed = errors.New("email is not claimed")

var ErrEmailNotPending = errors.New("email is not pending")

type EmailStatus string

const (
	EmailPending    EmailStatus = "pending"
	EmailProcessing EmailStatus = "processing"
	EmailSent       EmailStatus = "sent"
	EmailFailed     EmailStatus = "failed"
	EmailCancelled  EmailStatus = "cancelled"
)

type EmailType string

const (
	EmailWelcome      EmailType = "welcome"
	EmailFollowUp     EmailType = "followup"
	EmailNotification EmailType = "notification"
	EmailOther        EmailType = "other"
)

func (t EmailType) Valid() bool {
	switch t {
	case EmailWelcome, EmailFollowUp, EmailNotification, EmailOther:
		return true
	}
	return false
}

// DefaultEmailPriority sits in the middle of the 1 (most urgent) .. 10 range.
const DefaultEmailPriority = 5

type EmailQueueItem struct {
	ID             string      `json:"id"`
	RecipientEmail string      `json:"recipient_email"`
	RecipientName  string      `json:"recipient_name,omitempty"`
	Subject        string      `json:"subject"`
	Body           string      `json:"body"`
	EmailType      EmailType   `json:"email_type"`
	LeadID         string      `json:"lead_id,omitempty"`
	UserID         string      `json:"user_id,omitempty"`
	Priority       int         `json:"priority"`
	Status         EmailStatus `json:"status"`
	Attempts       int         `json:"attempts"`
	LastAttemptAt  *time.Time  `json:"last_attempt_at,omitempty"`
	ErrorMessage   string      `json:"error_message,omitempty"`
	ScheduledAt    time.Time   `json:"scheduled_at"`
	ClaimedAt      *time.Time  `json:"claimed_at,omitempty"`
	SentAt         *time.Time  `json:"sent_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// FailureOutcome is what the dispatcher decided after a failed attempt.
type FailureOutcome struct {
	Message     string
	NextStatus  EmailStatus // pending (retry) or failed (terminal)
	NextAttempt time.Time   // new scheduled_at when NextStatus is pending
}

type EmailQueueRepositoryInterface interface {
	Enqueue(ctx context.Context, item *EmailQueueItem) error
	// ClaimDue moves up to limit due pending rows to processing in a single
	// statement and returns them ordered by priority then scheduled_at.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]EmailQueueItem, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, at time.Time, outcome FailureOutcome) error
	// ReleaseStale gives up on claims older than claimedBefore. The abandoned
	// attempt counts: rows that reach maxAttempts end failed, the rest go
	// back to pending.
	ReleaseStale(ctx context.Context, claimedBefore time.Time, maxAttempts int) (int64, error)
	// CancelPending stops a row that has not been claimed yet. It returns
	// ErrEmailNotPending when the row is gone or already past pending.
	CancelPending(ctx context.Context, id string, at time.Time) error
	CountByStatus(ctx context.Context) (map[EmailStatus]int, error)
}
