package telemetry

import (
	"fmt"
	"time"

	"github.com/stackpilot/stackpilot/pkg/steps"
)

// timeRound trims sub-100ms noise from operator-facing durations.
const timeRound = 100 * time.Millisecond

// StepReporter surfaces step progress through the structured logger and, when
// enabled, the metrics collector. It is the default presentation layer for
// the core's step callbacks; richer front ends implement steps.Reporter
// themselves.
type StepReporter struct {
	logger  *Logger
	metrics *Metrics
}

// NewStepReporter creates a reporter writing to logger, recording to metrics
// when metrics is non-nil.
func NewStepReporter(logger *Logger, metrics *Metrics) *StepReporter {
	return &StepReporter{logger: logger, metrics: metrics}
}

// OnStep implements steps.Reporter.
func (r *StepReporter) OnStep(step steps.Step) {
	l := r.logger.WithStep(step.Name)
	switch step.Status {
	case steps.StatusStarted:
		if step.Estimate > 0 {
			l.Infof("starting (up to %s)", step.Estimate)
		} else {
			l.Info("starting")
		}
	case steps.StatusSuccess:
		detail := step.Detail
		if detail == "" {
			detail = "done"
		}
		l.Infof("%s (%s)", detail, step.Elapsed.Round(timeRound))
		if r.metrics != nil {
			r.metrics.RecordStep(step.Name, string(step.Status), step.Elapsed)
		}
	case steps.StatusError:
		l.Errorf("failed: %s", step.Detail)
		if r.metrics != nil {
			r.metrics.RecordStep(step.Name, string(step.Status), step.Elapsed)
		}
	}
}

// OnRetry implements steps.Reporter.
func (r *StepReporter) OnRetry(step steps.Step, attempt int, cause string) {
	r.logger.WithStep(step.Name).Warnf("retrying (attempt %d): %s", attempt, cause)
	if r.metrics != nil {
		r.metrics.RecordRetry(step.Name)
	}
}

// OnInfo implements steps.Reporter.
func (r *StepReporter) OnInfo(step steps.Step, detail string) {
	r.logger.WithStep(step.Name).Info(detail)
}

// OnComplete implements steps.Reporter.
func (r *StepReporter) OnComplete(all []steps.Step) {
	succeeded, failed := 0, 0
	for _, s := range all {
		switch s.Status {
		case steps.StatusSuccess:
			succeeded++
		case steps.StatusError:
			failed++
		}
	}
	r.logger.Info(fmt.Sprintf("run complete: %d step(s) succeeded, %d failed", succeeded, failed))
}
