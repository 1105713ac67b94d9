// Package steps tracks the ordered, named steps of an orchestration run and
// attributes failures to the step that was open when they escaped.
package steps

import (
	"fmt"
	"time"
)

// Status represents the lifecycle state of a single step.
type Status string

const (
	// StatusNotStarted indicates the step has not begun.
	StatusNotStarted Status = "not_started"

	// StatusStarted indicates the step is currently executing.
	StatusStarted Status = "started"

	// StatusRetrying indicates the step failed an attempt and is waiting to
	// retry.
	StatusRetrying Status = "retrying"

	// StatusSuccess indicates the step completed successfully.
	StatusSuccess Status = "success"

	// StatusError indicates the step failed terminally.
	StatusError Status = "error"
)

// IsTerminal returns true if the status represents a final state.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Validate checks if the status is valid.
func (s Status) Validate() error {
	switch s {
	case StatusNotStarted, StatusStarted, StatusRetrying, StatusSuccess, StatusError:
		return nil
	default:
		return fmt.Errorf("invalid step status: %s", s)
	}
}

// Step is the mutable record of one orchestrated action. One Step exists per
// named action per run; it is reset when a new run begins.
type Step struct {
	// Name is the human-readable step name.
	Name string `json:"name"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// Estimate is the operator-facing duration hint announced at start.
	Estimate time.Duration `json:"estimate,omitempty"`

	// StartedAt is when the step began.
	StartedAt time.Time `json:"started_at,omitempty"`

	// Elapsed is the total step duration, set on completion.
	Elapsed time.Duration `json:"elapsed,omitempty"`

	// Detail is the latest status detail (success note or failure cause).
	Detail string `json:"detail,omitempty"`

	// Retries counts retry notifications received while the step was open.
	Retries int `json:"retries,omitempty"`
}
