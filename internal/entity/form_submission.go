package entity

import (
	"errors"
	"time"
)

// ErrSubmissionLimit is returned by the intake store when the per-IP
// window is already full. Nothing has been written when it is returned.
var ErrSubmissionLimit = errors.New("submission limit reached for ip")

type FormSubmission struct {
	ID          string    `json:"id"`
	IPAddress   string    `json:"ip_address"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// SubmissionPolicy is the trailing window cap applied per source IP.
type SubmissionPolicy struct {
	Threshold int
	Window    time.Duration
}

func DefaultSubmissionPolicy() SubmissionPolicy {
	return SubmissionPolicy{Threshold: 5, Window: time.Hour}
}

// SubmissionRecord is everything the intake store needs to admit one
// submission atomically.
type SubmissionRecord struct {
	Lead        *Lead
	IPAddress   string
	SubmittedAt time.Time
	Policy      SubmissionPolicy
}
