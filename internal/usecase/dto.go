package usecase

import (
	"time"

	"github.com/xavierca1/leadflow/internal/entity"
)

// LeadDraft is the public form payload. Consent flags are pointers so a
// missing flag can be told apart from false.
type LeadDraft struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	Phone            string `json:"phone,omitempty"`
	Source           string `json:"source"`
	OtherSource      string `json:"otherSource,omitempty"`
	Interest         string `json:"interest"`
	Note             string `json:"note,omitempty"`
	ConsentMarketing *bool  `json:"consent_marketing"`
	ConsentPrivacy   *bool  `json:"consent_privacy"`
}

type SubmitLeadInput struct {
	IPAddress string
	UserAgent string
	Draft     LeadDraft
}

type SubmitLeadOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	LeadID  string `json:"lead_id"`
}

type EnqueueEmailInput struct {
	RecipientEmail string           `json:"recipient_email"`
	RecipientName  string           `json:"recipient_name,omitempty"`
	Subject        string           `json:"subject"`
	Body           string           `json:"body"`
	EmailType      entity.EmailType `json:"email_type"`
	LeadID         string           `json:"lead_id,omitempty"`
	UserID         string           `json:"user_id,omitempty"`
	Priority       int              `json:"priority,omitempty"`
	ScheduledAt    *time.Time       `json:"scheduled_at,omitempty"`
}

type BatchResult struct {
	Processed  int      `json:"processed"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
}

type AssignLeadInput struct {
	LeadID    string `json:"-"`
	ManagerID string `json:"manager_id"`
}

type ScheduleFollowUpInput struct {
	LeadID   string     `json:"-"`
	Template string     `json:"template"`
	DueAt    *time.Time `json:"due_at,omitempty"`
}

type AnalyticsSummary struct {
	Leads *entity.LeadSummary        `json:"leads"`
	Queue map[entity.EmailStatus]int `json:"email_queue,omitempty"`
}
