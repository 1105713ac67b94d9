package failure

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorClassPredicates(t *testing.T) {
	tests := []struct {
		name      string
		err       *Error
		retryable bool
		class     Class
	}{
		{"transient", NewTransient("propagation lag", nil), true, ClassTransient},
		{"throttled", NewThrottled("rate limited", nil), true, ClassThrottled},
		{"conflict", NewConflict("operation in progress", nil), true, ClassConflict},
		{"permanent", NewPermanent("name taken", nil), false, ClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
			if got := ClassOf(tt.err); got != tt.class {
				t.Errorf("ClassOf() = %v, want %v", got, tt.class)
			}
		})
	}
}

func TestClassOfUnclassified(t *testing.T) {
	if got := ClassOf(errors.New("plain error")); got != ClassPermanent {
		t.Errorf("ClassOf(plain error) = %v, want %v", got, ClassPermanent)
	}
	if IsRetryable(errors.New("plain error")) {
		t.Error("plain errors must not be retryable")
	}
}

func TestClassPredicatesThroughWrapping(t *testing.T) {
	inner := NewThrottled("too many requests", nil)
	wrapped := fmt.Errorf("create registry: %w", fmt.Errorf("attempt 3: %w", inner))

	if !IsThrottled(wrapped) {
		t.Error("IsThrottled must see through fmt.Errorf wrapping")
	}
	if !IsRetryable(wrapped) {
		t.Error("IsRetryable must see through fmt.Errorf wrapping")
	}
	if IsPermanent(wrapped) {
		t.Error("wrapped throttled error must not be permanent")
	}
}

func TestErrorChaining(t *testing.T) {
	cause := errors.New("exit status 1")
	err := NewPermanent("create sql server failed", cause).
		WithResource("db-prod-sql").
		WithStep("create sql server and database").
		WithCode(CodeAlreadyExists)

	if err.Resource != "db-prod-sql" {
		t.Errorf("Resource = %q", err.Resource)
	}
	if err.Step != "create sql server and database" {
		t.Errorf("Step = %q", err.Step)
	}
	if err.Code != CodeAlreadyExists {
		t.Errorf("Code = %q", err.Code)
	}
	if !errors.Is(err, cause) {
		t.Error("Unwrap must reach the cause")
	}
	msg := err.Error()
	if !strings.Contains(msg, "create sql server failed") {
		t.Errorf("Error() = %q, missing message", msg)
	}
}
