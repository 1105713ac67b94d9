// Package failure provides classified errors for retry and rollback decisions,
// plus the single rule table that classifies raw control-plane CLI output.
package failure

import (
	"errors"
	"fmt"
)

// Class represents the classification of an error for retry and recovery logic.
type Class string

const (
	// ClassTransient indicates a temporary failure that may succeed on retry.
	// Examples: propagation lag, temporary service unavailability.
	ClassTransient Class = "transient"

	// ClassThrottled indicates rate limiting.
	// Should be retried with exponential backoff.
	ClassThrottled Class = "throttled"

	// ClassConflict indicates a resource state conflict.
	// Examples: concurrent modifications, in-progress operations.
	ClassConflict Class = "conflict"

	// ClassPermanent indicates a non-recoverable error. Examples: name
	// collision, permission denied, invalid configuration, quota
	// exhaustion (freeing quota needs operator action, not retries).
	ClassPermanent Class = "permanent"
)

// Error represents a classified error with orchestration context.
type Error struct {
	// Class is the error classification for retry logic.
	Class Class `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the resource name that caused the error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Step is the orchestration step during which the error occurred.
	Step string `json:"step,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Resource != "" && e.Step != "" {
		return fmt.Sprintf("[%s] %s (resource=%s, step=%s): %s",
			e.Class, e.Message, e.Resource, e.Step, e.unwrapMessage())
	}
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s (resource=%s): %s",
			e.Class, e.Message, e.Resource, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransient creates a new transient error.
func NewTransient(message string, err error) *Error {
	return &Error{Class: ClassTransient, Message: message, Err: err}
}

// NewThrottled creates a new throttled error.
func NewThrottled(message string, err error) *Error {
	return &Error{Class: ClassThrottled, Message: message, Err: err}
}

// NewConflict creates a new conflict error.
func NewConflict(message string, err error) *Error {
	return &Error{Class: ClassConflict, Message: message, Err: err}
}

// NewPermanent creates a new permanent error.
func NewPermanent(message string, err error) *Error {
	return &Error{Class: ClassPermanent, Message: message, Err: err}
}

// WithResource adds resource context to an error.
func (e *Error) WithResource(resource string) *Error {
	e.Resource = resource
	return e
}

// WithStep adds step context to an error.
func (e *Error) WithStep(step string) *Error {
	e.Step = step
	return e
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ClassTransient
	}
	return false
}

// IsThrottled returns true if the error is classified as throttled.
func IsThrottled(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ClassThrottled
	}
	return false
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ClassConflict
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ClassPermanent
	}
	return false
}

// IsRetryable returns true if the error can be retried.
// Transient, throttled, and conflict errors are retryable.
func IsRetryable(err error) bool {
	return IsTransient(err) || IsThrottled(err) || IsConflict(err)
}

// ClassOf returns the class of err. Unclassified errors are permanent.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ClassPermanent
}

// Common error codes.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeAlreadyExists    = "ALREADY_EXISTS"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodePropagation      = "PROPAGATION_LAG"
	CodeRateLimited      = "RATE_LIMITED"
	CodeConflict         = "CONFLICT"
	CodeCommandFailed    = "COMMAND_FAILED"
	CodeInternal         = "INTERNAL_ERROR"
)
