package usecase

import (
	"errors"
	"fmt"
	"time"
)

// ErrRateLimited means the caller has to wait for the submission window to move.
var ErrRateLimited = errors.New("rate limit exceeded")

const (
	CodeNotFound     = "NOT_FOUND"
	CodeForbidden    = "FORBIDDEN"
	CodeInvalidState = "INVALID_STATE"
	CodeInvalidInput = "INVALID_INPUT"
)

type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

func notFound(what string) *DomainError {
	return &DomainError{Code: CodeNotFound, Message: what + " not found"}
}

// StorageError wraps a failure of the durable store. It is transient and
// the caller may retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// RateLimitError carries the policy that rejected a submission.
type RateLimitError struct {
	Threshold int
	Window    time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: at most %d submissions per %s", e.Threshold, FormatWindow(e.Window))
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// FormatWindow renders whole hours and minutes the way users read them.
func FormatWindow(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	case d == time.Minute:
		return "minute"
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}
