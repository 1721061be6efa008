package domain

import (
	"errors"
	"time"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidState is returned when an operation is illegal for the job's
	// current status, e.g. retrying a job that has not failed
	ErrInvalidState = errors.New("operation not allowed in current job status")

	// ErrJobAlreadyClaimed is returned when attempting to claim a job that
	// another worker holds or that is in a terminal state
	ErrJobAlreadyClaimed = errors.New("job already claimed or not claimable")

	// ErrMaxAttemptsExceeded is returned when a job has exhausted its retry
	// budget and needs an explicit operator retry
	ErrMaxAttemptsExceeded = errors.New("max attempts exceeded")

	// ErrInvalidPayload is returned when a broker message body is malformed
	ErrInvalidPayload = errors.New("invalid message payload")

	// ErrPaperNotFound is returned when a submission references a paper that
	// does not exist
	ErrPaperNotFound = errors.New("paper not found")
)

// ValidationError describes a malformed submission. Rejected synchronously,
// never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Field + ": " + e.Message
}

// NewValidationError creates a ValidationError for the given field
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ConnectivityError wraps a store or broker reachability failure. Surfaces as
// degraded health; submission-time occurrences fail the job rather than hang.
type ConnectivityError struct {
	Service string
	Err     error
}

func (e *ConnectivityError) Error() string {
	return e.Service + " unreachable: " + e.Err.Error()
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// ProviderError records a single provider's analysis failure. It does not by
// itself fail the job under the any-success completion policy.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return "provider " + e.Provider + " failed: " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// RetryableError wraps transient job failures that should trigger a delayed
// broker redelivery after Delay
type RetryableError struct {
	Err   error
	Delay time.Duration
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error with the given redelivery
// delay
func NewRetryableError(err error, delay time.Duration) error {
	return &RetryableError{Err: err, Delay: delay}
}
