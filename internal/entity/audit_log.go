package entity

import (
	"context"
	"encoding/json"
	"time"
)

type Role string

const (
	RolePublic  Role = "public"
	RoleSystem  Role = "system"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
)

type AuditAction string

const (
	ActionCreate            AuditAction = "create"
	ActionUpdate            AuditAction = "update"
	ActionDelete            AuditAction = "delete"
	ActionLogin             AuditAction = "login"
	ActionLogout            AuditAction = "logout"
	ActionEmailSent         AuditAction = "email_sent"
	ActionEmailEnqueued     AuditAction = "email_enqueued"
	ActionFollowUpScheduled AuditAction = "followup_scheduled"
)

// AuditPayload is the typed additional_data of an audit entry.
type AuditPayload interface {
	auditPayload()
}

type LeadCreatedPayload struct {
	LeadName     string `json:"lead_name"`
	LeadEmail    string `json:"lead_email"`
	Source       string `json:"source"`
	SubmissionID string `json:"submission_id"`
}

type LeadAssignedPayload struct {
	AssigneeID         string `json:"assignee_id"`
	PreviousAssigneeID string `json:"previous_assignee_id,omitempty"`
}

type EmailSentPayload struct {
	EmailID   string    `json:"email_id"`
	Recipient string    `json:"recipient"`
	EmailType EmailType `json:"email_type"`
	Subject   string    `json:"subject"`
}

type EmailEnqueuedPayload struct {
	EmailID     string    `json:"email_id"`
	Recipient   string    `json:"recipient"`
	EmailType   EmailType `json:"email_type"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

type FollowUpScheduledPayload struct {
	FollowUpID string    `json:"followup_id"`
	Template   string    `json:"template"`
	EmailID    string    `json:"email_id"`
	DueAt      time.Time `json:"due_at"`
}

type FollowUpStatusPayload struct {
	FollowUpID string         `json:"followup_id"`
	Status     FollowUpStatus `json:"status"`
}

// DiagnosticPayload carries unstructured key/value data.
type DiagnosticPayload map[string]any

func (LeadCreatedPayload) auditPayload()       {}
func (LeadAssignedPayload) auditPayload()      {}
func (EmailSentPayload) auditPayload()         {}
func (EmailEnqueuedPayload) auditPayload()     {}
func (FollowUpScheduledPayload) auditPayload() {}
func (FollowUpStatusPayload) auditPayload()    {}
func (DiagnosticPayload) auditPayload()        {}

type AuditLogEntry struct {
	ID        string       `json:"id"`
	EventTime time.Time    `json:"event_time"`
	UserID    string       `json:"user_id,omitempty"`
	Role      Role         `json:"role"`
	Action    AuditAction  `json:"action"`
	TableName string       `json:"table_name"`
	LeadID    string       `json:"lead_id,omitempty"`
	IPAddress string       `json:"ip_address,omitempty"`
	UserAgent string       `json:"user_agent,omitempty"`
	Payload   AuditPayload `json:"-"`
	// Data is the stored additional_data, populated when reading entries back.
	Data json.RawMessage `json:"additional_data,omitempty"`
}

// PayloadJSON encodes the typed payload for storage.
func (e *AuditLogEntry) PayloadJSON() (json.RawMessage, error) {
	if e.Payload == nil {
		return nil, nil
	}
	return json.Marshal(e.Payload)
}

type AuditFilter struct {
	Action AuditAction
	LeadID string
	Limit  int
	Offset int
}

type AuditLogRepositoryInterface interface {
	Insert(ctx context.Context, entry *AuditLogEntry) error
	List(ctx context.Context, filter AuditFilter) ([]AuditLogEntry, error)
}
