package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for stackpilot runs.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Step metrics
	stepsExecuted *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	stepRetries   *prometheus.CounterVec

	// Command metrics
	commandsRun     *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec

	// Error metrics
	errorsByClass *prometheus.CounterVec

	// Rollback metrics
	rollbacks *prometheus.CounterVec

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of orchestration runs started",
			},
			[]string{"kind"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of orchestration runs completed",
			},
			[]string{"kind", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of orchestration runs in seconds",
				Buckets:   buckets,
			},
			[]string{"kind", "status"},
		),

		stepsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_executed_total",
				Help:      "Total number of orchestration steps executed",
			},
			[]string{"step", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of orchestration steps in seconds",
				Buckets:   buckets,
			},
			[]string{"step"},
		),
		stepRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_retries_total",
				Help:      "Total number of retries per step",
			},
			[]string{"step"},
		),

		commandsRun: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_run_total",
				Help:      "Total number of external commands run",
			},
			[]string{"binary", "outcome"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Duration of external command invocations in seconds",
				Buckets:   buckets,
			},
			[]string{"binary"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of classified errors",
			},
			[]string{"class"},
		),

		rollbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollbacks_total",
				Help:      "Total number of rollback actions",
			},
			[]string{"action"},
		),
	}

	collectors := []prometheus.Collector{
		m.runsStarted, m.runsCompleted, m.runDuration,
		m.stepsExecuted, m.stepDuration, m.stepRetries,
		m.commandsRun, m.commandDuration,
		m.errorsByClass, m.rollbacks,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

// Serve starts the metrics HTTP endpoint. It returns immediately; the
// listener runs until Shutdown.
func (m *Metrics) Serve() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	m.server = &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		_ = m.server.ListenAndServe()
	}()
	return nil
}

// Shutdown stops the metrics endpoint.
func (m *Metrics) Shutdown() error {
	if m.server == nil {
		return nil
	}
	return m.server.Close()
}

// RecordRunStarted records the start of an orchestration run.
func (m *Metrics) RecordRunStarted(kind string) {
	if !m.config.Enabled {
		return
	}
	m.runsStarted.WithLabelValues(kind).Inc()
}

// RecordRunCompleted records a finished run with its duration.
func (m *Metrics) RecordRunCompleted(kind, status string, duration time.Duration) {
	if !m.config.Enabled {
		return
	}
	m.runsCompleted.WithLabelValues(kind, status).Inc()
	m.runDuration.WithLabelValues(kind, status).Observe(duration.Seconds())
}

// RecordStep records a finished step with its duration.
func (m *Metrics) RecordStep(step, status string, duration time.Duration) {
	if !m.config.Enabled {
		return
	}
	m.stepsExecuted.WithLabelValues(step, status).Inc()
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordRetry records one retry of a step.
func (m *Metrics) RecordRetry(step string) {
	if !m.config.Enabled {
		return
	}
	m.stepRetries.WithLabelValues(step).Inc()
}

// RecordCommand records one external command invocation.
func (m *Metrics) RecordCommand(binary string, ok bool, duration time.Duration) {
	if !m.config.Enabled {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "err"
	}
	m.commandsRun.WithLabelValues(binary, outcome).Inc()
	m.commandDuration.WithLabelValues(binary).Observe(duration.Seconds())
}

// RecordError records a classified error.
func (m *Metrics) RecordError(class string) {
	if !m.config.Enabled {
		return
	}
	m.errorsByClass.WithLabelValues(class).Inc()
}

// RecordRollback records a rollback action ("delete" or "preserve").
func (m *Metrics) RecordRollback(action string) {
	if !m.config.Enabled {
		return
	}
	m.rollbacks.WithLabelValues(action).Inc()
}
