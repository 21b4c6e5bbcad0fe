package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xavierca1/leadflow/internal/entity"
)

const followUpColumns = `f.id, f.lead_id, f.template, f.status, f.due_at, f.email_id, f.created_at, f.updated_at`

type FollowUpRepository struct {
	DB *sql.DB
}

func NewFollowUpRepository(db *sql.DB) *FollowUpRepository {
	return &FollowUpRepository{DB: db}
}

func scanFollowUp(s rowScanner) (*entity.FollowUp, error) {
	var (
		f       entity.FollowUp
		emailID sql.NullString
	)
	if err := s.Scan(&f.ID, &f.LeadID, &f.Template, &f.Status, &f.DueAt, &emailID, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.EmailID = emailID.String
	return &f, nil
}

func (r *FollowUpRepository) Create(ctx context.Context, f *entity.FollowUp) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO followups (id, lead_id, template, status, due_at, email_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, f.ID, f.LeadID, f.Template, f.Status, f.DueAt, nullString(f.EmailID), f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create follow-up: %w", err)
	}
	return nil
}

func (r *FollowUpRepository) FindByID(ctx context.Context, id string) (*entity.FollowUp, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+followUpColumns+` FROM followups f WHERE f.id = $1`, id)
	f, err := scanFollowUp(row)
	if errors.Is(err, sql.ErrNoRows) || isInvalidID(err) {
		return nil, entity.ErrFollowUpNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find follow-up: %w", err)
	}
	return f, nil
}

func (r *FollowUpRepository) List(ctx context.Context, filter entity.FollowUpFilter) ([]entity.FollowUp, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+followUpColumns+`
		FROM followups f
		JOIN leads l ON l.id = f.lead_id
		WHERE ($1 = '' OR l.assigned_to = $1)
		  AND ($2 = '' OR f.status = $2)
		  AND ($4 = '' OR f.lead_id::text = $4)
		ORDER BY f.due_at
		LIMIT $3
	`, filter.AssignedTo, string(filter.Status), filter.Limit, filter.LeadID)
	if err != nil {
		return nil, fmt.Errorf("list follow-ups: %w", err)
	}
	defer rows.Close()

	out := []entity.FollowUp{}
	for rows.Next() {
		f, err := scanFollowUp(rows)
		if err != nil {
			return nil, fmt.Errorf("scan follow-up: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (r *FollowUpRepository) UpdateStatus(ctx context.Context, id string, status entity.FollowUpStatus, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE followups SET status = $2, updated_at = $3 WHERE id = $1
	`, id, status, at)
	if err != nil {
		return fmt.Errorf("update follow-up: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return entity.ErrFollowUpNotFound
	}
	return nil
}
