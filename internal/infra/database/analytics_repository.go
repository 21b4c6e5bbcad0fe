package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xavierca1/leadflow/internal/entity"
)

type AnalyticsRepository struct {
	DB *sql.DB
}

func NewAnalyticsRepository(db *sql.DB) *AnalyticsRepository {
	return &AnalyticsRepository{DB: db}
}

func (r *AnalyticsRepository) LeadSummary(ctx context.Context, assignedTo string, since time.Time) (*entity.LeadSummary, error) {
	s := &entity.LeadSummary{BySource: map[string]int{}}

	err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE created_at >= $2),
			COUNT(*) FILTER (WHERE assigned_to IS NOT NULL)
		FROM leads
		WHERE ($1 = '' OR assigned_to = $1)
	`, assignedTo, since).Scan(&s.TotalLeads, &s.LeadsLast7Days, &s.AssignedLeads)
	if err != nil {
		return nil, fmt.Errorf("count leads: %w", err)
	}
	s.UnassignedLeads = s.TotalLeads - s.AssignedLeads

	rows, err := r.DB.QueryContext(ctx, `
		SELECT source, COUNT(*) FROM leads
		WHERE ($1 = '' OR assigned_to = $1)
		GROUP BY source
	`, assignedTo)
	if err != nil {
		return nil, fmt.Errorf("count leads by source: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			source string
			n      int
		)
		if err := rows.Scan(&source, &n); err != nil {
			return nil, err
		}
		s.BySource[source] = n
	}
	return s, rows.Err()
}
