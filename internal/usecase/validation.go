package usecase

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/xavierca1/leadflow/internal/entity"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

const (
	maxNameLength     = 200
	maxInterestLength = 2000
	maxNoteLength     = 5000
)

// ValidateLeadDraft returns the first offending field, or nil.
func ValidateLeadDraft(d LeadDraft) *ValidationError {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return &ValidationError{"name", "is required"}
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return &ValidationError{"name", fmt.Sprintf("must not exceed %d characters", maxNameLength)}
	}

	if strings.TrimSpace(d.Email) == "" {
		return &ValidationError{"email", "is required"}
	}
	if !isValidEmail(d.Email) {
		return &ValidationError{"email", "is invalid"}
	}

	switch d.Source {
	case "":
		return &ValidationError{"source", "is required"}
	case entity.SourceGoogle, entity.SourceReferral:
	case entity.SourceOther:
		if strings.TrimSpace(d.OtherSource) == "" {
			return &ValidationError{"otherSource", "is required when source is Other"}
		}
	default:
		return &ValidationError{"source", "must be Google, Referral or Other"}
	}

	interest := strings.TrimSpace(d.Interest)
	if interest == "" {
		return &ValidationError{"interest", "is required"}
	}
	if utf8.RuneCountInString(interest) > maxInterestLength {
		return &ValidationError{"interest", "is too long"}
	}
	if utf8.RuneCountInString(d.Note) > maxNoteLength {
		return &ValidationError{"note", "is too long"}
	}

	if d.ConsentMarketing == nil || !*d.ConsentMarketing {
		return &ValidationError{"consent_marketing", "must be accepted"}
	}
	if d.ConsentPrivacy == nil || !*d.ConsentPrivacy {
		return &ValidationError{"consent_privacy", "must be accepted"}
	}
	return nil
}

// ResolveSource substitutes the free text given with Other.
func ResolveSource(d LeadDraft) string {
	if d.Source == entity.SourceOther {
		return strings.TrimSpace(d.OtherSource)
	}
	return d.Source
}

// isValidEmail accepts a bare address only; display names are rejected.
func isValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == strings.TrimSpace(s) && strings.Contains(addr.Address, "@")
}

func ValidateEnqueueInput(in EnqueueEmailInput) *ValidationError {
	if strings.TrimSpace(in.RecipientEmail) == "" {
		return &ValidationError{"recipient_email", "is required"}
	}
	if !isValidEmail(in.RecipientEmail) {
		return &ValidationError{"recipient_email", "is invalid"}
	}
	if strings.TrimSpace(in.Subject) == "" {
		return &ValidationError{"subject", "is required"}
	}
	if in.EmailType != "" && !in.EmailType.Valid() {
		return &ValidationError{"email_type", "must be welcome, followup, notification or other"}
	}
	if in.Priority < 0 || in.Priority > 10 {
		return &ValidationError{"priority", "must be between 1 and 10"}
	}
	return nil
}
