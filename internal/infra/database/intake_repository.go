package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/xavierca1/leadflow/internal/entity"
)

// IntakeRepository admits public submissions. The per-IP count and the
// inserts run under one advisory lock keyed by the address, so concurrent
// requests from the same IP are serialized and never overshoot the cap.
type IntakeRepository struct {
	DB *sql.DB
}

func NewIntakeRepository(db *sql.DB) *IntakeRepository {
	return &IntakeRepository{DB: db}
}

func (r *IntakeRepository) SubmitLead(ctx context.Context, rec entity.SubmissionRecord) (string, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin intake tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, rec.IPAddress); err != nil {
		return "", fmt.Errorf("lock ip: %w", err)
	}

	var count int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM form_submissions
		WHERE ip_address = $1 AND submitted_at > $2
	`, rec.IPAddress, rec.SubmittedAt.Add(-rec.Policy.Window)).Scan(&count)
	if err != nil {
		return "", fmt.Errorf("count submissions: %w", err)
	}
	if count >= rec.Policy.Threshold {
		return "", entity.ErrSubmissionLimit
	}

	submissionID := uuid.New().String()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO form_submissions (id, ip_address, submitted_at)
		VALUES ($1, $2, $3)
	`, submissionID, rec.IPAddress, rec.SubmittedAt); err != nil {
		return "", fmt.Errorf("insert submission: %w", err)
	}

	l := rec.Lead
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO leads (id, created_at, name, email, phone, source, interest, note,
			consent_marketing, consent_privacy, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		l.ID,
		l.CreatedAt,
		l.Name,
		l.Email,
		nullString(l.Phone),
		l.Source,
		l.Interest,
		nullString(l.Note),
		l.ConsentMarketing,
		l.ConsentPrivacy,
		nullString(l.UserAgent),
	); err != nil {
		return "", fmt.Errorf("insert lead: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit intake tx: %w", err)
	}
	return submissionID, nil
}
