package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xavierca1/leadflow/internal/entity"
)

const emailColumns = `id, recipient_email, recipient_name, subject, body, email_type, lead_id,
	user_id, priority, status, attempts, last_attempt_at, error_message, scheduled_at,
	claimed_at, sent_at, created_at`

type EmailQueueRepository struct {
	DB *sql.DB
}

func NewEmailQueueRepository(db *sql.DB) *EmailQueueRepository {
	return &EmailQueueRepository{DB: db}
}

func scanEmail(s rowScanner) (*entity.EmailQueueItem, error) {
	var (
		e                            entity.EmailQueueItem
		leadID, userID, errMsg       sql.NullString
		lastAttempt, claimed, sentAt sql.NullTime
	)
	err := s.Scan(
		&e.ID,
		&e.RecipientEmail,
		&e.RecipientName,
		&e.Subject,
		&e.Body,
		&e.EmailType,
		&leadID,
		&userID,
		&e.Priority,
		&e.Status,
		&e.Attempts,
		&lastAttempt,
		&errMsg,
		&e.ScheduledAt,
		&claimed,
		&sentAt,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.LeadID = leadID.String
	e.UserID = userID.String
	e.ErrorMessage = errMsg.String
	e.LastAttemptAt = timePtr(lastAttempt)
	e.ClaimedAt = timePtr(claimed)
	e.SentAt = timePtr(sentAt)
	return &e, nil
}

func (r *EmailQueueRepository) Enqueue(ctx context.Context, item *entity.EmailQueueItem) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO email_queue (id, recipient_email, recipient_name, subject, body, email_type,
			lead_id, user_id, priority, status, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		item.ID,
		item.RecipientEmail,
		item.RecipientName,
		item.Subject,
		item.Body,
		item.EmailType,
		nullString(item.LeadID),
		nullString(item.UserID),
		item.Priority,
		entity.EmailPending,
		item.ScheduledAt,
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue email: %w", err)
	}
	return nil
}

// ClaimDue locks due pending rows with SKIP LOCKED and flips them to
// processing in the same statement, so concurrent dispatchers never claim the
// same row.
func (r *EmailQueueRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]entity.EmailQueueItem, error) {
	rows, err := r.DB.QueryContext(ctx, `
		WITH due AS (
			SELECT id FROM email_queue
			WHERE status = 'pending' AND scheduled_at <= $1
			ORDER BY priority, scheduled_at, created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		), claimed AS (
			UPDATE email_queue q
			SET status = 'processing', claimed_at = $1
			FROM due
			WHERE q.id = due.id
			RETURNING q.*
		)
		SELECT `+emailColumns+` FROM claimed
		ORDER BY priority, scheduled_at, created_at
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim emails: %w", err)
	}
	defer rows.Close()

	out := []entity.EmailQueueItem{}
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *EmailQueueRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE email_queue
		SET status = 'sent', sent_at = $2, last_attempt_at = $2,
			attempts = attempts + 1, error_message = NULL
		WHERE id = $1 AND status = 'processing'
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark email sent: %w", err)
	}
	return expectClaimed(res)
}

func (r *EmailQueueRepository) MarkFailed(ctx context.Context, id string, at time.Time, outcome entity.FailureOutcome) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE email_queue
		SET status = $3, attempts = attempts + 1, last_attempt_at = $2,
			error_message = $4, claimed_at = NULL,
			scheduled_at = COALESCE($5::timestamptz, scheduled_at)
		WHERE id = $1 AND status = 'processing'
	`, id, at, outcome.NextStatus, outcome.Message, nullTime(outcome.NextAttempt))
	if err != nil {
		return fmt.Errorf("mark email failed: %w", err)
	}
	return expectClaimed(res)
}

func expectClaimed(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return entity.ErrEmailNotClaimed
	}
	return nil
}

const claimExpiredMessage = "claim expired before the outcome was recorded"

func (r *EmailQueueRepository) ReleaseStale(ctx context.Context, claimedBefore time.Time, maxAttempts int) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE email_queue
		SET attempts = attempts + 1,
			status = CASE WHEN attempts + 1 >= $2 THEN 'failed' ELSE 'pending' END,
			last_attempt_at = claimed_at,
			error_message = $3,
			claimed_at = NULL
		WHERE status = 'processing' AND claimed_at < $1
	`, claimedBefore, maxAttempts, claimExpiredMessage)
	if err != nil {
		return 0, fmt.Errorf("release stale emails: %w", err)
	}
	return res.RowsAffected()
}

func (r *EmailQueueRepository) CancelPending(ctx context.Context, id string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE email_queue
		SET status = 'cancelled', last_attempt_at = $2, error_message = 'cancelled'
		WHERE id = $1 AND status = 'pending'
	`, id, at)
	if isInvalidID(err) {
		return entity.ErrEmailNotPending
	}
	if err != nil {
		return fmt.Errorf("cancel email: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return entity.ErrEmailNotPending
	}
	return nil
}

func (r *EmailQueueRepository) CountByStatus(ctx context.Context) (map[entity.EmailStatus]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM email_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count emails: %w", err)
	}
	defer rows.Close()

	out := map[entity.EmailStatus]int{}
	for rows.Next() {
		var (
			status entity.EmailStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
