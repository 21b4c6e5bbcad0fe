package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xavierca1/leadflow/internal/entity"
)

const leadColumns = `id, created_at, name, email, phone, source, interest, note,
	assigned_to, consent_marketing, consent_privacy, user_agent`

type LeadRepository struct {
	DB *sql.DB
}

func NewLeadRepository(db *sql.DB) *LeadRepository {
	return &LeadRepository{DB: db}
}

func scanLead(s rowScanner) (*entity.Lead, error) {
	var (
		l                                entity.Lead
		phone, note, assigned, userAgent sql.NullString
	)
	err := s.Scan(
		&l.ID,
		&l.CreatedAt,
		&l.Name,
		&l.Email,
		&phone,
		&l.Source,
		&l.Interest,
		&note,
		&assigned,
		&l.ConsentMarketing,
		&l.ConsentPrivacy,
		&userAgent,
	)
	if err != nil {
		return nil, err
	}
	l.Phone = phone.String
	l.Note = note.String
	l.AssignedTo = assigned.String
	l.UserAgent = userAgent.String
	return &l, nil
}

func (r *LeadRepository) FindByID(ctx context.Context, id string) (*entity.Lead, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	l, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) || isInvalidID(err) {
		return nil, entity.ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find lead: %w", err)
	}
	return l, nil
}

func (r *LeadRepository) List(ctx context.Context, filter entity.LeadFilter) ([]entity.Lead, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+leadColumns+` FROM leads
		WHERE ($1 = '' OR assigned_to = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, filter.AssignedTo, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	out := []entity.Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// Assign sets the manager and returns the previous one, empty when the lead
// was unassigned.
func (r *LeadRepository) Assign(ctx context.Context, id, managerID string) (string, error) {
	var previous sql.NullString
	err := r.DB.QueryRowContext(ctx, `
		WITH prev AS (
			SELECT id, assigned_to FROM leads WHERE id = $1 FOR UPDATE
		)
		UPDATE leads l SET assigned_to = $2
		FROM prev
		WHERE l.id = prev.id
		RETURNING prev.assigned_to
	`, id, managerID).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) || isInvalidID(err) {
		return "", entity.ErrLeadNotFound
	}
	if err != nil {
		return "", fmt.Errorf("assign lead: %w", err)
	}
	return previous.String, nil
}
