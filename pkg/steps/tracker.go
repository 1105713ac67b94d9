package steps

import (
	"time"
)

// Reporter receives step lifecycle notifications. The core never prints or
// prompts; presentation layers (CLI renderer, log sink, dashboard) implement
// Reporter and decide how to surface progress.
type Reporter interface {
	// OnStep fires on every step status transition.
	OnStep(step Step)

	// OnRetry fires once per retry of the open step.
	OnRetry(step Step, attempt int, cause string)

	// OnInfo fires for side annotations that are not status transitions.
	OnInfo(step Step, detail string)

	// OnComplete fires once when the run ends, with every step in its final
	// state.
	OnComplete(steps []Step)
}

// NopReporter discards all notifications.
type NopReporter struct{}

// OnStep implements Reporter.
func (NopReporter) OnStep(Step) {}

// OnRetry implements Reporter.
func (NopReporter) OnRetry(Step, int, string) {}

// OnInfo implements Reporter.
func (NopReporter) OnInfo(Step, string) {}

// OnComplete implements Reporter.
func (NopReporter) OnComplete([]Step) {}

// Tracker holds the ordered steps of one run and the current-step pointer.
// The model is strictly sequential: exactly one step is open at a time, so
// an error escaping several calls deep is still attributed to the right
// named step. Tracker is not safe for concurrent use and does not need to
// be; the orchestration is single-threaded.
type Tracker struct {
	steps    []Step
	current  int // index into steps, -1 when no step is open
	reporter Reporter
	now      func() time.Time
}

// NewTracker creates a tracker reporting to reporter. A nil reporter is
// replaced with NopReporter.
func NewTracker(reporter Reporter) *Tracker {
	if reporter == nil {
		reporter = NopReporter{}
	}
	return &Tracker{current: -1, reporter: reporter, now: time.Now}
}

// Begin opens a new step. The previous step must have reached a terminal
// status; a Begin while a step is open closes it as errored first, so a
// missing Fail cannot orphan the pointer.
func (t *Tracker) Begin(name string, estimate time.Duration) {
	if t.current >= 0 && !t.steps[t.current].Status.IsTerminal() {
		t.Fail("step abandoned without a terminal status")
	}

	t.steps = append(t.steps, Step{
		Name:      name,
		Status:    StatusStarted,
		Estimate:  estimate,
		StartedAt: t.now(),
	})
	t.current = len(t.steps) - 1
	t.reporter.OnStep(t.steps[t.current])
}

// Retrying marks the open step as waiting to retry. It is a loop back to
// Started on the next attempt, not a terminal state.
func (t *Tracker) Retrying(detail string) {
	if t.current < 0 {
		return
	}
	s := &t.steps[t.current]
	s.Status = StatusRetrying
	s.Detail = detail
	s.Retries++
	t.reporter.OnRetry(*s, s.Retries, detail)
	s.Status = StatusStarted
}

// Succeed closes the open step successfully.
func (t *Tracker) Succeed(detail string) {
	t.finish(StatusSuccess, detail)
}

// Fail closes the open step with an error.
func (t *Tracker) Fail(detail string) {
	t.finish(StatusError, detail)
}

// Info emits a side annotation on the open step without changing its state.
func (t *Tracker) Info(detail string) {
	if t.current < 0 {
		return
	}
	t.reporter.OnInfo(t.steps[t.current], detail)
}

// Current returns the name of the open step, or "" when none is open. A
// non-empty result after a run means a Begin never reached a terminal
// status; failure reports use this for attribution.
func (t *Tracker) Current() string {
	if t.current < 0 || t.steps[t.current].Status.IsTerminal() {
		return ""
	}
	return t.steps[t.current].Name
}

// Steps returns a copy of all steps recorded so far.
func (t *Tracker) Steps() []Step {
	out := make([]Step, len(t.steps))
	copy(out, t.steps)
	return out
}

// Complete announces the end of the run to the reporter.
func (t *Tracker) Complete() {
	t.reporter.OnComplete(t.Steps())
}

func (t *Tracker) finish(status Status, detail string) {
	if t.current < 0 {
		return
	}
	s := &t.steps[t.current]
	if s.Status.IsTerminal() {
		return
	}
	s.Status = status
	s.Detail = detail
	s.Elapsed = t.now().Sub(s.StartedAt)
	t.reporter.OnStep(*s)
}
