package orchestrate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stackpilot/stackpilot/pkg/retry"
)

func TestHealthWaitSucceedsOnceAppAnswers(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Two cold-start failures, then healthy.
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	prober := NewHealthProber(time.Second)
	err := prober.Wait(context.Background(), srv.URL+"/healthz", retry.Attempts(5, time.Millisecond), nil)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("probes = %d, want 3", got)
	}
}

// An endpoint nobody is listening on is "not ready yet", not an error; the
// wait runs its full budget and then reports exhaustion.
func TestHealthWaitUnreachableExhaustsBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens on this address anymore

	prober := NewHealthProber(time.Second)
	err := prober.Wait(context.Background(), srv.URL+"/healthz", retry.Attempts(3, time.Millisecond), nil)
	if err == nil {
		t.Fatal("expected exhaustion")
	}
	if !strings.Contains(err.Error(), "3 attempts") {
		t.Errorf("err = %v", err)
	}
}

func TestHealthWaitNonSuccessStatusIsNotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	prober := NewHealthProber(time.Second)
	err := prober.Wait(context.Background(), srv.URL+"/healthz", retry.Attempts(2, time.Millisecond), nil)
	if err == nil {
		t.Fatal("a 404 endpoint must not count as healthy")
	}
}

func TestHealthWaitCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	prober := NewHealthProber(time.Second)
	err := prober.Wait(ctx, srv.URL+"/healthz", retry.Attempts(5, time.Millisecond), nil)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}
