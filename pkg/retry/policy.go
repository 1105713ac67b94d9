package retry

import (
	"fmt"
	"time"
)

// Policy defines how a retried operation terminates and how long it waits
// between attempts. Exactly one termination mode must be set: MaxAttempts
// for count-based retries or Deadline for time-based retries.
type Policy struct {
	// MaxAttempts is the total number of attempts permitted, including the
	// first. Zero means count-based termination is not in use.
	MaxAttempts int `json:"max_attempts,omitempty"`

	// Deadline bounds the whole attempt sequence relative to the first
	// attempt. Zero means deadline-based termination is not in use.
	Deadline time.Duration `json:"deadline,omitempty"`

	// BaseDelay is the delay before the second attempt. In fixed mode every
	// sleep uses BaseDelay.
	BaseDelay time.Duration `json:"base_delay"`

	// MaxDelay caps the per-sleep delay in exponential mode.
	MaxDelay time.Duration `json:"max_delay,omitempty"`

	// Exponential doubles the delay after every failed attempt, capped at
	// MaxDelay. When false the delay is fixed at BaseDelay.
	Exponential bool `json:"exponential,omitempty"`

	// Jitter adds a uniform offset in [0, 4s) to every sleep, independent
	// of the delay mode.
	Jitter bool `json:"jitter,omitempty"`
}

// Validate checks that the policy is well formed. Configuring both or
// neither termination mode is a configuration error; it is reported before
// the first attempt, never retried.
func (p Policy) Validate() error {
	if p.MaxAttempts > 0 && p.Deadline > 0 {
		return fmt.Errorf("retry policy: max attempts and deadline are mutually exclusive")
	}
	if p.MaxAttempts <= 0 && p.Deadline <= 0 {
		return fmt.Errorf("retry policy: either max attempts or deadline is required")
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("retry policy: base delay must not be negative")
	}
	if p.Exponential && p.MaxDelay <= 0 {
		return fmt.Errorf("retry policy: exponential mode requires a max delay")
	}
	return nil
}

// delay returns the pre-jitter sleep before attempt+1, where attempt is the
// 1-based attempt that just failed.
func (p Policy) delay(attempt int) time.Duration {
	if !p.Exponential {
		return p.BaseDelay
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Attempts creates a count-terminated policy with a fixed delay.
func Attempts(n int, base time.Duration) Policy {
	return Policy{MaxAttempts: n, BaseDelay: base}
}

// Within creates a deadline-terminated policy with a fixed delay.
func Within(deadline, base time.Duration) Policy {
	return Policy{Deadline: deadline, BaseDelay: base}
}

// Backoff creates a count-terminated policy with exponential delay.
func Backoff(n int, base, max time.Duration) Policy {
	return Policy{MaxAttempts: n, BaseDelay: base, MaxDelay: max, Exponential: true}
}
