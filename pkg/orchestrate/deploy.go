package orchestrate

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stackpilot/stackpilot/pkg/failure"
	"github.com/stackpilot/stackpilot/pkg/retry"
	"github.com/stackpilot/stackpilot/pkg/stores"
	"github.com/stackpilot/stackpilot/pkg/telemetry"
)

// Step names, in creation order. Tests and the status command key off these.
const (
	StepValidate          = "validate configuration"
	StepCreateGroup       = "create resource group"
	StepCreateRegistry    = "create container registry"
	StepBuildImage        = "build application image"
	StepCreateIdentity    = "create managed identity"
	StepWaitIdentity      = "wait for identity visibility"
	StepGrantPull         = "grant registry pull"
	StepCreateDatabase    = "create sql server and database"
	StepApplySchema       = "apply database schema"
	StepCreateEnvironment = "create app environment"
	StepDeployApp         = "deploy application"
	StepWaitHealthy       = "wait for application health"
	StepRecordSummary     = "record deployment summary"

	StepDiscoverStack = "discover existing stack"
	StepUpdateImage   = "update application image"
	StepDeleteStack   = "delete stack"
)

// once is the policy for steps where retrying cannot help, such as running
// the configuration validator.
var once = retry.Attempts(1, 0)

// Deploy runs the full creation plan: thirteen ordered steps from
// configuration validation through the persisted summary. On failure the
// rollback coordinator decides exactly once whether to delete the aggregate
// or preserve it, and the error is returned for the top-level handler.
func (s *Sequencer) Deploy(ctx context.Context, rc *Context) (*Summary, error) {
	started := s.now()
	s.beginRun(ctx, rc, stores.RunKindCreate, started)

	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.StartRunSpan(ctx, rc.RunID, string(stores.RunKindCreate))
		defer span.End()
	}

	summary, err := s.create(ctx, rc, started)
	if err != nil {
		rc.State.FailureReason = err.Error()
		status := s.rollback(ctx, rc)
		s.finishRun(ctx, rc, stores.RunKindCreate, started, status, err)
		if span != nil {
			telemetry.RecordError(span, err)
		}
		return nil, err
	}

	rc.Tracker.Complete()
	s.finishRun(ctx, rc, stores.RunKindCreate, started, stores.RunStatusSucceeded, nil)
	if span != nil {
		telemetry.RecordSuccess(span)
	}
	return summary, nil
}

func (s *Sequencer) create(ctx context.Context, rc *Context, started time.Time) (*Summary, error) {
	cfg := rc.Config
	names := rc.Names

	// Secrets are resolved before anything is provisioned so a missing
	// password cannot strand a half-built stack.
	adminPassword, err := cfg.AdminPassword()
	if err != nil {
		return nil, err
	}

	if err := s.step(ctx, rc, StepValidate, estQuick, once, func(ctx context.Context) (string, error) {
		if err := s.plane.ValidateConfig(ctx, rc.ConfigPath); err != nil {
			return "", err
		}
		return "descriptor accepted", nil
	}); err != nil {
		return nil, err
	}

	if err := s.step(ctx, rc, StepCreateGroup, estCreate, s.stepPolicy, func(ctx context.Context) (string, error) {
		tags := map[string]string{"project": cfg.Project, "environment": cfg.Environment}
		for k, v := range cfg.Tags {
			tags[k] = v
		}
		id, err := s.plane.CreateGroup(ctx, GroupSpec{
			Name:     names.Group,
			Location: cfg.Location,
			Tags:     tags,
		})
		if err != nil {
			return "", err
		}
		rc.State.GroupName = names.Group
		rc.State.GroupID = id
		return names.Group, nil
	}); err != nil {
		return nil, err
	}

	var registry *Registry
	if err := s.step(ctx, rc, StepCreateRegistry, estCreate, s.stepPolicy, func(ctx context.Context) (string, error) {
		reg, err := s.plane.CreateRegistry(ctx, names.Group, names.Registry)
		if err != nil {
			return "", err
		}
		registry = reg
		rc.State.Refs.Registry = *reg
		rc.State.Image = cfg.ImageRef(reg.LoginServer)
		return reg.LoginServer, nil
	}); err != nil {
		return nil, err
	}

	if err := s.step(ctx, rc, StepBuildImage, estBuild, s.stepPolicy, func(ctx context.Context) (string, error) {
		image := fmt.Sprintf("%s:%s", cfg.Image.Name, cfg.Image.Tag)
		if err := s.plane.BuildImage(ctx, registry.Name, image, cfg.Image.ContextDir); err != nil {
			return "", err
		}
		return rc.State.Image, nil
	}); err != nil {
		return nil, err
	}

	var identity *Identity
	if err := s.step(ctx, rc, StepCreateIdentity, estCreate, s.stepPolicy, func(ctx context.Context) (string, error) {
		id, err := s.plane.CreateIdentity(ctx, names.Group, names.Identity)
		if err != nil {
			return "", err
		}
		identity = id
		return id.Name, nil
	}); err != nil {
		return nil, err
	}

	// Identity creation and directory lookup are independently consistent
	// subsystems. Everything that consumes the principal waits here once
	// instead of each discovering the lag on its own.
	if err := s.waitStep(ctx, rc, StepWaitIdentity, estWait, "identity visible in directory",
		func(ctx context.Context, onRetry retry.OnRetry) error {
			return retry.Poll(ctx, propagationPolicy(cfg), func(ctx context.Context) (bool, error) {
				return s.plane.IdentityVisible(ctx, identity.PrincipalID)
			}, onRetry)
		}); err != nil {
		return nil, err
	}

	// The grant can still hit authorization-cache lag after the directory
	// answers, so it keeps the propagation budget rather than the command one.
	if err := s.step(ctx, rc, StepGrantPull, estWait, propagationPolicy(cfg), func(ctx context.Context) (string, error) {
		if err := s.plane.GrantRegistryPull(ctx, identity.PrincipalID, registry.ID); err != nil {
			return "", err
		}
		return "pull granted on " + names.Registry, nil
	}); err != nil {
		return nil, err
	}

	if err := s.step(ctx, rc, StepCreateDatabase, estDatabase, s.stepPolicy, func(ctx context.Context) (string, error) {
		fqdn, err := s.plane.CreateDatabase(ctx, DatabaseSpec{
			Group:         names.Group,
			Server:        names.SQLServer,
			Database:      names.Database,
			Location:      cfg.Location,
			AdminUser:     cfg.Database.AdminUser,
			AdminPassword: adminPassword,
		})
		if err != nil {
			return "", err
		}
		rc.State.DatabaseFQDN = fqdn
		return fqdn, nil
	}); err != nil {
		return nil, err
	}

	if cfg.Database.SchemaPath != "" {
		if err := s.step(ctx, rc, StepApplySchema, estQuick, s.stepPolicy, func(ctx context.Context) (string, error) {
			spec := DatabaseSpec{
				Database:      names.Database,
				AdminUser:     cfg.Database.AdminUser,
				AdminPassword: adminPassword,
			}
			if err := s.plane.ApplySchema(ctx, spec, rc.State.DatabaseFQDN, cfg.Database.SchemaPath); err != nil {
				return "", err
			}
			return "applied " + cfg.Database.SchemaPath, nil
		}); err != nil {
			return nil, err
		}
	} else {
		rc.Logger.Info("no schema file configured, skipping schema step")
	}

	if err := s.step(ctx, rc, StepCreateEnvironment, estCreate, s.stepPolicy, func(ctx context.Context) (string, error) {
		if _, err := s.plane.CreateEnvironment(ctx, names.Group, names.Environment, cfg.Location); err != nil {
			return "", err
		}
		return names.Environment, nil
	}); err != nil {
		return nil, err
	}

	var appURL string
	if err := s.step(ctx, rc, StepDeployApp, estCreate, s.stepPolicy, func(ctx context.Context) (string, error) {
		url, err := s.plane.DeployApp(ctx, AppSpec{
			Group:       names.Group,
			Environment: names.Environment,
			Name:        names.App,
			Image:       rc.State.Image,
			IdentityID:  identity.ID,
			Registry:    registry.LoginServer,
			TargetPort:  cfg.Image.Port,
		})
		if err != nil {
			return "", err
		}
		appURL = url
		rc.State.Refs.App = names.App
		rc.State.Refs.AppURL = url
		return url, nil
	}); err != nil {
		return nil, err
	}

	healthURL := appURL + cfg.Health.Path
	if err := s.waitStep(ctx, rc, StepWaitHealthy, estWait, "application answering on "+cfg.Health.Path,
		func(ctx context.Context, onRetry retry.OnRetry) error {
			return s.prober.Wait(ctx, healthURL, healthPolicy(cfg), onRetry)
		}); err != nil {
		return nil, err
	}

	summary := &Summary{
		RunID:          rc.RunID,
		Kind:           stores.RunKindCreate,
		Project:        cfg.Project,
		Group:          names.Group,
		RegistryServer: registry.LoginServer,
		Image:          rc.State.Image,
		DatabaseFQDN:   rc.State.DatabaseFQDN,
		AppURL:         appURL,
		LogPath:        rc.LogPath,
		Elapsed:        s.now().Sub(started),
	}
	if err := s.step(ctx, rc, StepRecordSummary, estQuick, once, func(ctx context.Context) (string, error) {
		if s.store == nil {
			return "run history disabled", nil
		}
		if err := s.store.UpsertDeployment(ctx, summary.Record()); err != nil {
			return "", err
		}
		return "summary recorded for " + cfg.Project, nil
	}); err != nil {
		return nil, err
	}
	summary.Steps = rc.Tracker.Steps()
	return summary, nil
}

// waitStep is step's variant for consistency joins: the closure owns its own
// poll loop instead of being re-run under the command policy.
func (s *Sequencer) waitStep(ctx context.Context, rc *Context, name string, estimate time.Duration, detail string, run func(ctx context.Context, onRetry retry.OnRetry) error) error {
	rc.Tracker.Begin(name, estimate)
	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.StartStepSpan(ctx, name)
		defer span.End()
	}
	err := run(ctx, func(attempt int, delay time.Duration, pollErr error) {
		rc.Tracker.Retrying(fmt.Sprintf("attempt %d, next check in %s: %v", attempt, delay.Round(time.Second), pollErr))
	})
	if err != nil {
		err = fmt.Errorf("%s: %w", name, err)
		s.metrics.RecordError(string(failure.ClassOf(err)))
		rc.Tracker.Fail(err.Error())
		if span != nil {
			telemetry.RecordError(span, err)
		}
		return err
	}
	rc.Tracker.Succeed(detail)
	if span != nil {
		telemetry.RecordSuccess(span)
	}
	return nil
}

// rollback runs the failure coordinator once and maps its outcome to a
// terminal run status.
func (s *Sequencer) rollback(ctx context.Context, rc *Context) stores.RunStatus {
	rb := NewRollback(s.plane, rc.Logger, s.metrics)
	rb.Preserve = s.preserve
	switch res := rb.OnFailure(ctx, &rc.State); res.Action {
	case RollbackDeleted:
		return stores.RunStatusRolledBack
	case RollbackPreserved:
		return stores.RunStatusPreserved
	default:
		return stores.RunStatusFailed
	}
}

func (s *Sequencer) beginRun(ctx context.Context, rc *Context, kind stores.RunKind, started time.Time) {
	s.metrics.RecordRunStarted(string(kind))
	rc.Logger.WithField("kind", string(kind)).Info("run started")
	if s.store == nil {
		return
	}
	run := &stores.Run{
		ID:        rc.RunID,
		Project:   rc.Config.Project,
		Kind:      kind,
		Status:    stores.RunStatusRunning,
		StartedAt: started,
		LogPath:   rc.LogPath,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		rc.Logger.WithError(err).Warn("could not record run start")
	}
}

func (s *Sequencer) finishRun(ctx context.Context, rc *Context, kind stores.RunKind, started time.Time, status stores.RunStatus, runErr error) {
	elapsed := s.now().Sub(started)
	s.metrics.RecordRunCompleted(string(kind), string(status), elapsed)
	log := rc.Logger.WithField("status", string(status)).WithField("elapsed", elapsed.Round(time.Second).String())
	if runErr != nil {
		log.WithError(runErr).Error("run finished")
	} else {
		log.Info("run finished")
	}
	if s.store == nil {
		return
	}
	var msg *string
	if runErr != nil {
		m := runErr.Error()
		msg = &m
	}
	if err := s.store.UpdateRunStatus(ctx, rc.RunID, status, msg); err != nil {
		rc.Logger.WithError(err).Warn("could not record run status")
	}
	if err := s.store.SaveSteps(ctx, rc.RunID, runSteps(rc)); err != nil {
		rc.Logger.WithError(err).Warn("could not record run steps")
	}
}

func runSteps(rc *Context) []stores.RunStep {
	tracked := rc.Tracker.Steps()
	rows := make([]stores.RunStep, 0, len(tracked))
	for i, st := range tracked {
		row := stores.RunStep{
			RunID:     rc.RunID,
			Position:  i + 1,
			Name:      st.Name,
			Status:    string(st.Status),
			Retries:   st.Retries,
			ElapsedMS: st.Elapsed.Milliseconds(),
		}
		if st.Detail != "" {
			d := st.Detail
			row.Detail = &d
		}
		if !st.StartedAt.IsZero() {
			t := st.StartedAt
			row.StartedAt = &t
		}
		rows = append(rows, row)
	}
	return rows
}
