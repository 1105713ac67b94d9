package steps

import (
	"testing"
	"time"
)

// Mock reporter for testing
type mockReporter struct {
	transitions []Step
	retries     []string
	infos       []string
	completed   [][]Step
}

func (m *mockReporter) OnStep(step Step)             { m.transitions = append(m.transitions, step) }
func (m *mockReporter) OnRetry(s Step, n int, cause string) { m.retries = append(m.retries, cause) }
func (m *mockReporter) OnInfo(s Step, detail string) { m.infos = append(m.infos, detail) }
func (m *mockReporter) OnComplete(all []Step)        { m.completed = append(m.completed, all) }

func TestTrackerSequentialSteps(t *testing.T) {
	rep := &mockReporter{}
	tr := NewTracker(rep)

	tr.Begin("create resource group", time.Minute)
	if got := tr.Current(); got != "create resource group" {
		t.Errorf("Current() = %q", got)
	}
	tr.Succeed("shop-prod-rg")

	tr.Begin("create container registry", time.Minute)
	tr.Fail("name already in use")

	all := tr.Steps()
	if len(all) != 2 {
		t.Fatalf("steps = %d, want 2", len(all))
	}
	if all[0].Status != StatusSuccess || all[0].Detail != "shop-prod-rg" {
		t.Errorf("step[0] = %+v", all[0])
	}
	if all[1].Status != StatusError || all[1].Detail != "name already in use" {
		t.Errorf("step[1] = %+v", all[1])
	}

	// Two Begin transitions plus two terminal transitions.
	if len(rep.transitions) != 4 {
		t.Errorf("transitions = %d, want 4", len(rep.transitions))
	}
}

// Once a step reaches a terminal status, nothing is open: a failure escaping
// later code cannot be attributed to an already-closed step.
func TestTrackerCurrentEmptyAfterTerminal(t *testing.T) {
	tr := NewTracker(nil)

	if got := tr.Current(); got != "" {
		t.Errorf("Current() before any step = %q, want empty", got)
	}

	tr.Begin("deploy application", time.Minute)
	tr.Succeed("https://shop.example.test")
	if got := tr.Current(); got != "" {
		t.Errorf("Current() after terminal = %q, want empty", got)
	}
}

func TestTrackerRetryingLoopsBackToStarted(t *testing.T) {
	rep := &mockReporter{}
	tr := NewTracker(rep)

	tr.Begin("wait for identity visibility", time.Minute)
	tr.Retrying("not visible yet")
	tr.Retrying("still not visible")

	if got := tr.Current(); got != "wait for identity visibility" {
		t.Errorf("Current() = %q; retrying must keep the step open", got)
	}

	tr.Succeed("visible")
	all := tr.Steps()
	if all[0].Retries != 2 {
		t.Errorf("Retries = %d, want 2", all[0].Retries)
	}
	if all[0].Status != StatusSuccess {
		t.Errorf("Status = %v, want success", all[0].Status)
	}
	if len(rep.retries) != 2 {
		t.Errorf("reporter retries = %d, want 2", len(rep.retries))
	}
}

// A Begin while a step is still open marks the abandoned step as errored
// instead of leaving the pointer dangling.
func TestTrackerBeginClosesAbandonedStep(t *testing.T) {
	tr := NewTracker(nil)

	tr.Begin("create managed identity", time.Minute)
	tr.Begin("grant registry pull", time.Minute)

	all := tr.Steps()
	if len(all) != 2 {
		t.Fatalf("steps = %d, want 2", len(all))
	}
	if all[0].Status != StatusError {
		t.Errorf("abandoned step status = %v, want error", all[0].Status)
	}
	if got := tr.Current(); got != "grant registry pull" {
		t.Errorf("Current() = %q", got)
	}
}

func TestTrackerDoubleFinishIsIgnored(t *testing.T) {
	tr := NewTracker(nil)

	tr.Begin("build application image", time.Minute)
	tr.Fail("build failed")
	tr.Succeed("should not overwrite")

	all := tr.Steps()
	if all[0].Status != StatusError || all[0].Detail != "build failed" {
		t.Errorf("step = %+v; a second finish must not overwrite", all[0])
	}
}

func TestTrackerInfoAndComplete(t *testing.T) {
	rep := &mockReporter{}
	tr := NewTracker(rep)

	tr.Info("no step open, dropped")
	tr.Begin("apply database schema", time.Minute)
	tr.Info("applying schema.sql")
	tr.Succeed("done")
	tr.Complete()

	if len(rep.infos) != 1 || rep.infos[0] != "applying schema.sql" {
		t.Errorf("infos = %v", rep.infos)
	}
	if len(rep.completed) != 1 || len(rep.completed[0]) != 1 {
		t.Errorf("completed = %v", rep.completed)
	}
}

func TestStatusValidation(t *testing.T) {
	for _, s := range []Status{StatusNotStarted, StatusStarted, StatusRetrying, StatusSuccess, StatusError} {
		if err := s.Validate(); err != nil {
			t.Errorf("Validate(%s) = %v", s, err)
		}
	}
	if err := Status("exploded").Validate(); err == nil {
		t.Error("expected invalid status to be rejected")
	}

	if StatusStarted.IsTerminal() || StatusRetrying.IsTerminal() {
		t.Error("open statuses must not be terminal")
	}
	if !StatusSuccess.IsTerminal() || !StatusError.IsTerminal() {
		t.Error("success and error are terminal")
	}
}
