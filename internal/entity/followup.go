package entity

import (
	"context"
	"errors"
	"time"
)

var ErrFollowUpNotFound = errors.New("follow-up not found")

type FollowUpStatus string

const (
	FollowUpPending    FollowUpStatus = "pending"
	FollowUpInProgress FollowUpStatus = "in_progress"
	FollowUpDone       FollowUpStatus = "done"
)

func (s FollowUpStatus) Valid() bool {
	return s == FollowUpPending || s == FollowUpInProgress || s == FollowUpDone
}

type FollowUp struct {
	ID        string         `json:"id"`
	LeadID    string         `json:"lead_id"`
	Template  string         `json:"template"`
	Status    FollowUpStatus `json:"status"`
	DueAt     time.Time      `json:"due_at"`
	EmailID   string         `json:"email_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type FollowUpFilter struct {
	AssignedTo string
	LeadID     string
	Status     FollowUpStatus
	Limit      int
}

type FollowUpRepositoryInterface interface {
	Create(ctx context.Context, f *FollowUp) error
	FindByID(ctx context.Context, id string) (*FollowUp, error)
	List(ctx context.Context, filter FollowUpFilter) ([]FollowUp, error)
	UpdateStatus(ctx context.Context, id string, status FollowUpStatus, at time.Time) error
}
