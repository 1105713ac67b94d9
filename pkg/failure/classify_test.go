package failure

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   Class
	}{
		{"name collision", `ERROR: The registry name "shopacr" is already in use.`, ClassPermanent},
		{"already exists", "Resource group 'shop-prod-rg' already exists", ClassPermanent},
		{"permission denied", "AuthorizationFailed: The client does not have authorization", ClassPermanent},
		{"invalid argument", "ERROR: Invalid argument --sku: expected one of Basic, Standard", ClassPermanent},
		{"quota", "Operation could not be completed: quota exceeded for region", ClassPermanent},
		{"rate limited", "ERROR: Too Many Requests, please retry later", ClassThrottled},
		{"http 429", "request failed with status 429", ClassThrottled},
		{"conflict", "Conflict: another operation is in progress on this resource", ClassConflict},
		{"being deleted", "cannot update resource: it is being deleted", ClassConflict},
		{"not found", "ERROR: principal 9f3c not found in directory", ClassTransient},
		{"timeout", "the request timed out waiting for the service", ClassTransient},
		{"connection refused", "dial tcp: connection refused", ClassTransient},
		{"unknown output", "something unexpected happened", ClassPermanent},
		{"empty output", "", ClassPermanent},
		{"whitespace output", "   \n\t  ", ClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.output); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.output, got, tt.want)
			}
		})
	}
}

// Permanent rules must win even when the output also mentions a retryable
// condition further down: the table is ordered, first match decides.
func TestClassifyRuleOrder(t *testing.T) {
	out := "name already exists; the request timed out fetching details"
	if got := Classify(out); got != ClassPermanent {
		t.Errorf("Classify(%q) = %v, want %v", out, got, ClassPermanent)
	}
}

func TestFromOutput(t *testing.T) {
	tests := []struct {
		name      string
		output    string
		wantClass Class
		wantCode  string
	}{
		{"collision", "registry name already in use", ClassPermanent, CodeAlreadyExists},
		{"denied", "permission denied for scope", ClassPermanent, CodePermissionDenied},
		{"throttled", "rate limit exceeded", ClassThrottled, CodeRateLimited},
		{"conflict", "another operation is in progress", ClassConflict, CodeConflict},
		{"lag", "identity does not exist", ClassTransient, CodePropagation},
		{"unknown", "segfault in vendor tool", ClassPermanent, CodeCommandFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromOutput("step failed", tt.output)
			if err.Class != tt.wantClass {
				t.Errorf("Class = %v, want %v", err.Class, tt.wantClass)
			}
			if err.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", err.Code, tt.wantCode)
			}
			if err.Message != "step failed" {
				t.Errorf("Message = %q", err.Message)
			}
		})
	}
}
