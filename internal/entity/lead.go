package entity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrLeadNotFound = errors.New("lead not found")

const (
	SourceGoogle   = "Google"
	SourceReferral = "Referral"
	SourceOther    = "Other"
)

type Lead struct {
	ID               string    `json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone,omitempty"`
	Source           string    `json:"source"` // Google, Referral or the free text given with Other
	Interest         string    `json:"interest"`
	Note             string    `json:"note,omitempty"`
	AssignedTo       string    `json:"assigned_to,omitempty"`
	ConsentMarketing bool      `json:"consent_marketing"`
	ConsentPrivacy   bool      `json:"consent_privacy"`
	UserAgent        string    `json:"user_agent,omitempty"`
}

// NewLead builds a lead with a fresh ID. Source must already be resolved.
func NewLead(name, email, phone, source, interest, note, userAgent string, now time.Time) *Lead {
	return &Lead{
		ID:               uuid.New().String(),
		CreatedAt:        now,
		Name:             strings.TrimSpace(name),
		Email:            strings.TrimSpace(email),
		Phone:            strings.TrimSpace(phone),
		Source:           source,
		Interest:         strings.TrimSpace(interest),
		Note:             strings.TrimSpace(note),
		ConsentMarketing: true,
		ConsentPrivacy:   true,
		UserAgent:        userAgent,
	}
}

// Masked returns a copy safe to show to managers: email and phone are
// replaced by their SHA-256 hashes.
func (l Lead) Masked() Lead {
	l.Email = HashContact(l.Email)
	if l.Phone != "" {
		l.Phone = HashContact(l.Phone)
	}
	l.UserAgent = ""
	return l
}

func HashContact(v string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(v))))
	return hex.EncodeToString(sum[:])
}

type LeadFilter struct {
	AssignedTo string
	Limit      int
	Offset     int
}

type LeadRepositoryInterface interface {
	FindByID(ctx context.Context, id string) (*Lead, error)
	List(ctx context.Context, filter LeadFilter) ([]Lead, error)
	Assign(ctx context.Context, id, managerID string) (previous string, err error)
}
