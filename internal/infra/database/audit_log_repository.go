package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/xavierca1/leadflow/internal/entity"
)

type AuditLogRepository struct {
	DB *sql.DB
}

func NewAuditLogRepository(db *sql.DB) *AuditLogRepository {
	return &AuditLogRepository{DB: db}
}

func (r *AuditLogRepository) Insert(ctx context.Context, e *entity.AuditLogEntry) error {
	data, err := e.PayloadJSON()
	if err != nil {
		return fmt.Errorf("encode audit payload: %w", err)
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO audit_logs (id, event_time, user_id, role, action, table_name, lead_id,
			ip_address, user_agent, additional_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		e.ID,
		e.EventTime,
		nullString(e.UserID),
		e.Role,
		e.Action,
		e.TableName,
		nullString(e.LeadID),
		nullString(e.IPAddress),
		nullString(e.UserAgent),
		pqtype.NullRawMessage{RawMessage: data, Valid: len(data) > 0},
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	e.Data = data
	return nil
}

func (r *AuditLogRepository) List(ctx context.Context, filter entity.AuditFilter) ([]entity.AuditLogEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, event_time, user_id, role, action, table_name, lead_id::text,
			ip_address, user_agent, additional_data::text
		FROM audit_logs
		WHERE ($1 = '' OR action = $1)
		  AND ($2 = '' OR lead_id::text = $2)
		ORDER BY event_time DESC
		LIMIT $3 OFFSET $4
	`, string(filter.Action), filter.LeadID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	out := []entity.AuditLogEntry{}
	for rows.Next() {
		var (
			e                                      entity.AuditLogEntry
			userID, leadID, ip, userAgent, payload sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.EventTime, &userID, &e.Role, &e.Action, &e.TableName,
			&leadID, &ip, &userAgent, &payload); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		e.UserID = userID.String
		e.LeadID = leadID.String
		e.IPAddress = ip.String
		e.UserAgent = userAgent.String
		if payload.Valid {
			e.Data = json.RawMessage(payload.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
