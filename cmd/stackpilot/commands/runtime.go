package commands

import (
	"context"
	"fmt"

	"github.com/stackpilot/stackpilot/pkg/cliexec"
	"github.com/stackpilot/stackpilot/pkg/cloudcli"
	"github.com/stackpilot/stackpilot/pkg/config"
	"github.com/stackpilot/stackpilot/pkg/orchestrate"
	"github.com/stackpilot/stackpilot/pkg/steps"
	"github.com/stackpilot/stackpilot/pkg/stores"
	"github.com/stackpilot/stackpilot/pkg/telemetry"
)

// runtime wires the collaborators one command invocation needs: descriptor,
// telemetry, command transcript, control plane, store, sequencer.
type runtime struct {
	cfg     *config.Deployment
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	store   stores.Store
	cmdLog  *cliexec.Log
	plane   orchestrate.ControlPlane
	seq     *orchestrate.Sequencer
}

func newRuntime(ctx context.Context, preserve bool) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = buildVersion
	tcfg.Environment = cfg.Environment
	if verbose {
		tcfg.Logging.Level = "debug"
	}
	if jsonOutput {
		tcfg.Logging.Format = "json"
	}
	if metricsListen != "" {
		tcfg.Metrics.Enabled = true
		tcfg.Metrics.ListenAddress = metricsListen
	}
	if traceExporter != "" {
		tcfg.Tracing.Enabled = true
		tcfg.Tracing.Exporter = traceExporter
	}
	if err := tcfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := telemetry.NewLogger(tcfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	metrics, err := telemetry.NewMetrics(tcfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("configure metrics: %w", err)
	}
	if err := metrics.Serve(); err != nil {
		return nil, fmt.Errorf("start metrics endpoint: %w", err)
	}
	tracer, err := telemetry.NewTracer(tcfg.Tracing, tcfg.ServiceName, tcfg.ServiceVersion, tcfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("configure tracing: %w", err)
	}

	cmdLog, err := cliexec.OpenLog(commandLog)
	if err != nil {
		return nil, fmt.Errorf("open command transcript: %w", err)
	}
	runner := cliexec.NewExecRunner(cmdLog, logger.NewComponentLogger("exec").Zerolog())
	runner.Observe(metrics)
	plane := cloudcli.New(runner,
		cloudcli.WithCloudBin(cloudBin),
		cloudcli.WithSQLBin(sqlBin),
		cloudcli.WithValidatorBin(validatorBin),
	)

	var store stores.Store
	if !noStore {
		st, err := stores.NewSQLiteStore(stores.Config{Path: storePath})
		if err != nil {
			return nil, err
		}
		if err := st.Init(ctx); err != nil {
			return nil, fmt.Errorf("open run history: %w", err)
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("migrate run history: %w", err)
		}
		store = st
	}

	opts := []orchestrate.SequencerOption{
		orchestrate.WithTracer(tracer),
		orchestrate.WithPreserve(preserve),
	}
	if store != nil {
		opts = append(opts, orchestrate.WithStore(store))
	}
	seq := orchestrate.NewSequencer(plane, logger, metrics, opts...)

	return &runtime{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
		store:   store,
		cmdLog:  cmdLog,
		plane:   plane,
		seq:     seq,
	}, nil
}

// newRunContext builds the per-run context with a console step reporter.
func (r *runtime) newRunContext() (*orchestrate.Context, error) {
	reporter := telemetry.NewStepReporter(r.logger, r.metrics)
	tracker := steps.NewTracker(reporter)
	return orchestrate.NewContext(r.cfg, configPath, tracker, r.logger, r.cmdLog.Path())
}

// reload re-reads the deployment descriptor, for long-lived commands that
// react to descriptor edits.
func (r *runtime) reload() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	r.cfg = cfg
	return nil
}

func (r *runtime) close(ctx context.Context) {
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.WithError(err).Warn("closing run history")
		}
	}
	if err := r.cmdLog.Close(); err != nil {
		r.logger.WithError(err).Warn("closing command transcript")
	}
	if err := r.tracer.Shutdown(ctx); err != nil {
		r.logger.WithError(err).Warn("flushing traces")
	}
	if err := r.metrics.Shutdown(); err != nil {
		r.logger.WithError(err).Warn("stopping metrics endpoint")
	}
}

// reportFailure is the single top-level failure handler: last-open step,
// cause, and where the command transcript lives.
func (r *runtime) reportFailure(rc *orchestrate.Context, err error) {
	log := r.logger
	if step := rc.Tracker.Current(); step != "" {
		log = log.WithStep(step)
	} else {
		for _, st := range rc.Tracker.Steps() {
			if st.Status == steps.StatusError {
				log = log.WithStep(st.Name)
			}
		}
	}
	log.WithError(err).Errorf("run failed, command transcript at %s", rc.LogPath)
}
