package orchestrate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackpilot/stackpilot/pkg/config"
	"github.com/stackpilot/stackpilot/pkg/failure"
	"github.com/stackpilot/stackpilot/pkg/retry"
	"github.com/stackpilot/stackpilot/pkg/steps"
	"github.com/stackpilot/stackpilot/pkg/stores"
	"github.com/stackpilot/stackpilot/pkg/telemetry"
)

// Context carries everything one run threads through its steps. There is no
// global mutable state: two runs with different Contexts do not interfere.
type Context struct {
	// RunID uniquely identifies this run in logs and the store.
	RunID string

	// Config is the validated deployment descriptor.
	Config *config.Deployment

	// ConfigPath is where Config was loaded from; the external validator
	// runs against this file.
	ConfigPath string

	// Names are the derived resource names for this deployment.
	Names *Names

	// Tracker records per-step progress for this run.
	Tracker *steps.Tracker

	// Logger is the run-scoped logger.
	Logger *telemetry.Logger

	// LogPath is the command transcript file, surfaced on failure.
	LogPath string

	// State accumulates created resource identifiers for rollback.
	State State
}

// NewContext builds a run context: derives and validates every resource name
// up front so an unsalvageable name fails before anything is provisioned.
func NewContext(cfg *config.Deployment, configPath string, tracker *steps.Tracker, logger *telemetry.Logger, logPath string) (*Context, error) {
	names, err := DeriveNames(cfg)
	if err != nil {
		return nil, err
	}
	runID := uuid.New().String()
	return &Context{
		RunID:      runID,
		Config:     cfg,
		ConfigPath: configPath,
		Names:      names,
		Tracker:    tracker,
		Logger:     logger.WithRunID(runID).WithProject(cfg.Project),
		LogPath:    logPath,
	}, nil
}

// Rough operator-facing duration estimates per step kind.
const (
	estQuick    = 30 * time.Second
	estCreate   = 2 * time.Minute
	estBuild    = 5 * time.Minute
	estWait     = 4 * time.Minute
	estDatabase = 5 * time.Minute
)

// Sequencer drives deployment runs through the control plane, one step at a
// time on the caller's goroutine. Concurrency never reorders steps; waiting
// is always a retry loop, never a second goroutine.
type Sequencer struct {
	plane   ControlPlane
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	store   stores.Store
	prober  *HealthProber

	// preserve disables rollback deletion on failure.
	preserve bool

	// stepPolicy governs retries of ordinary provisioning commands.
	// Propagation and health waits derive their own policies from config.
	stepPolicy retry.Policy

	now func() time.Time
}

// SequencerOption configures a Sequencer.
type SequencerOption func(*Sequencer)

// WithStore enables run-history persistence.
func WithStore(store stores.Store) SequencerOption {
	return func(s *Sequencer) { s.store = store }
}

// WithTracer enables span emission per run and step.
func WithTracer(tracer *telemetry.Tracer) SequencerOption {
	return func(s *Sequencer) { s.tracer = tracer }
}

// WithProber overrides the HTTP health prober.
func WithProber(p *HealthProber) SequencerOption {
	return func(s *Sequencer) { s.prober = p }
}

// WithPreserve leaves partial resources in place when a run fails.
func WithPreserve(preserve bool) SequencerOption {
	return func(s *Sequencer) { s.preserve = preserve }
}

// WithStepPolicy overrides the retry policy for provisioning commands.
func WithStepPolicy(p retry.Policy) SequencerOption {
	return func(s *Sequencer) { s.stepPolicy = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) SequencerOption {
	return func(s *Sequencer) { s.now = now }
}

// NewSequencer creates a Sequencer.
func NewSequencer(plane ControlPlane, logger *telemetry.Logger, metrics *telemetry.Metrics, opts ...SequencerOption) *Sequencer {
	s := &Sequencer{
		plane:      plane,
		logger:     logger.NewComponentLogger("sequencer"),
		metrics:    metrics,
		prober:     NewHealthProber(10 * time.Second),
		stepPolicy: retry.Backoff(3, 10*time.Second, time.Minute),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// propagationPolicy is the backoff for eventual-consistency joins, taken
// from the descriptor's retry overrides.
func propagationPolicy(cfg *config.Deployment) retry.Policy {
	return retry.Backoff(cfg.Retry.PropagationAttempts, cfg.Retry.BaseDelay.Std(), cfg.Retry.MaxDelay.Std())
}

// healthPolicy bounds the readiness wait by wall clock rather than count:
// app cold starts vary too much for a useful attempt budget.
func healthPolicy(cfg *config.Deployment) retry.Policy {
	p := retry.Within(cfg.Health.Timeout.Std(), 10*time.Second)
	p.Jitter = true
	return p
}

// step runs one tracked, retried, traced step. fn returns the success detail
// shown to the operator. The returned error carries the step name.
func (s *Sequencer) step(ctx context.Context, rc *Context, name string, estimate time.Duration, policy retry.Policy, fn func(ctx context.Context) (string, error)) error {
	rc.Tracker.Begin(name, estimate)
	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.StartStepSpan(ctx, name)
		defer span.End()
	}
	err := s.attempt(ctx, rc, name, policy, fn)
	if span != nil {
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}
	}
	return err
}

func (s *Sequencer) attempt(ctx context.Context, rc *Context, name string, policy retry.Policy, fn func(ctx context.Context) (string, error)) error {
	var detail string
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		d, err := fn(ctx)
		if err != nil {
			return err
		}
		detail = d
		return nil
	}, func(attempt int, delay time.Duration, err error) {
		rc.Tracker.Retrying(fmt.Sprintf("attempt %d failed, retrying in %s: %v", attempt, delay.Round(time.Second), err))
	})
	if err != nil {
		s.metrics.RecordError(string(failure.ClassOf(err)))
		rc.Tracker.Fail(err.Error())
		return fmt.Errorf("%s: %w", name, err)
	}
	rc.Tracker.Succeed(detail)
	return nil
}
