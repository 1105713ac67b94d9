package orchestrate

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/stackpilot/stackpilot/pkg/retry"
)

// HealthProber polls an HTTP endpoint until it answers successfully. A newly
// deployed application routes traffic some time after the deploy call
// returns, so "not yet reachable" and "not yet 200" both mean wait, not fail.
type HealthProber struct {
	client *http.Client
}

// NewHealthProber creates a prober whose individual requests time out after
// requestTimeout.
func NewHealthProber(requestTimeout time.Duration) *HealthProber {
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	return &HealthProber{client: &http.Client{Timeout: requestTimeout}}
}

// Wait polls url under policy until it returns a 2xx response.
func (h *HealthProber) Wait(ctx context.Context, url string, policy retry.Policy, onRetry retry.OnRetry) error {
	return retry.Poll(ctx, policy, func(ctx context.Context) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false, fmt.Errorf("build health request: %w", err)
		}
		resp, err := h.client.Do(req)
		if err != nil {
			// Connection refused and DNS misses are expected while ingress
			// provisioning finishes.
			return false, nil
		}
		resp.Body.Close()
		return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
	}, onRetry)
}
