package orchestrate

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stackpilot/stackpilot/pkg/retry"
	"github.com/stackpilot/stackpilot/pkg/stores"
	"github.com/stackpilot/stackpilot/pkg/telemetry"
)

// Update runs the idempotent update plan against an already-provisioned
// stack. It creates nothing: the stack is rediscovered by tag, the new image
// version is built, and exactly one mutation swaps the app's image
// reference. A failed update never triggers rollback; the running stack is
// left as it was.
func (s *Sequencer) Update(ctx context.Context, rc *Context) (*Summary, error) {
	started := s.now()
	s.beginRun(ctx, rc, stores.RunKindUpdate, started)

	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.StartRunSpan(ctx, rc.RunID, string(stores.RunKindUpdate))
		defer span.End()
	}

	summary, err := s.update(ctx, rc, started)
	if err != nil {
		s.finishRun(ctx, rc, stores.RunKindUpdate, started, stores.RunStatusFailed, err)
		if span != nil {
			telemetry.RecordError(span, err)
		}
		return nil, err
	}

	rc.Tracker.Complete()
	s.finishRun(ctx, rc, stores.RunKindUpdate, started, stores.RunStatusSucceeded, nil)
	if span != nil {
		telemetry.RecordSuccess(span)
	}
	return summary, nil
}

func (s *Sequencer) update(ctx context.Context, rc *Context, started time.Time) (*Summary, error) {
	cfg := rc.Config

	if err := s.step(ctx, rc, StepValidate, estQuick, once, func(ctx context.Context) (string, error) {
		if err := s.plane.ValidateConfig(ctx, rc.ConfigPath); err != nil {
			return "", err
		}
		return "descriptor accepted", nil
	}); err != nil {
		return nil, err
	}

	var refs *StackRefs
	if err := s.step(ctx, rc, StepDiscoverStack, estQuick, s.stepPolicy, func(ctx context.Context) (string, error) {
		r, err := s.plane.DiscoverStack(ctx, cfg.Project)
		if err != nil {
			return "", err
		}
		refs = r
		return fmt.Sprintf("found group %s, app %s", r.Group, r.App), nil
	}); err != nil {
		return nil, err
	}

	imageRef := cfg.ImageRef(refs.Registry.LoginServer)
	if err := s.step(ctx, rc, StepBuildImage, estBuild, s.stepPolicy, func(ctx context.Context) (string, error) {
		image := fmt.Sprintf("%s:%s", cfg.Image.Name, cfg.Image.Tag)
		if err := s.plane.BuildImage(ctx, refs.Registry.Name, image, cfg.Image.ContextDir); err != nil {
			return "", err
		}
		return imageRef, nil
	}); err != nil {
		return nil, err
	}

	if err := s.step(ctx, rc, StepUpdateImage, estCreate, s.stepPolicy, func(ctx context.Context) (string, error) {
		if err := s.plane.UpdateAppImage(ctx, refs.Group, refs.App, imageRef); err != nil {
			return "", err
		}
		return refs.App + " now running " + imageRef, nil
	}); err != nil {
		return nil, err
	}

	if refs.AppURL != "" {
		healthURL := refs.AppURL + cfg.Health.Path
		if err := s.waitStep(ctx, rc, StepWaitHealthy, estWait, "application answering on "+cfg.Health.Path,
			func(ctx context.Context, onRetry retry.OnRetry) error {
				return s.prober.Wait(ctx, healthURL, healthPolicy(cfg), onRetry)
			}); err != nil {
			return nil, err
		}
	} else {
		rc.Logger.Warn("stack has no ingress URL, skipping health wait")
	}

	summary := &Summary{
		RunID:          rc.RunID,
		Kind:           stores.RunKindUpdate,
		Project:        cfg.Project,
		Group:          refs.Group,
		RegistryServer: refs.Registry.LoginServer,
		Image:          imageRef,
		AppURL:         refs.AppURL,
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

// Destroy tears the stack down: one asynchronous delete of the aggregate,
// the same call the rollback coordinator uses. Completion is not awaited.
func (s *Sequencer) Destroy(ctx context.Context, rc *Context) error {
	started := s.now()
	s.beginRun(ctx, rc, stores.RunKindDestroy, started)

	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.StartRunSpan(ctx, rc.RunID, string(stores.RunKindDestroy))
		defer span.End()
	}

	err := s.step(ctx, rc, StepDeleteStack, estQuick, s.stepPolicy, func(ctx context.Context) (string, error) {
		refs, err := s.plane.DiscoverStack(ctx, rc.Config.Project)
		if err != nil {
			return "", err
		}
		if err := s.plane.DeleteGroupAsync(ctx, refs.Group); err != nil {
			return "", err
		}
		return "delete issued for " + refs.Group, nil
	})
	if err != nil {
		s.finishRun(ctx, rc, stores.RunKindDestroy, started, stores.RunStatusFailed, err)
		if span != nil {
			telemetry.RecordError(span, err)
		}
		return err
	}

	rc.Tracker.Complete()
	s.finishRun(ctx, rc, stores.RunKindDestroy, started, stores.RunStatusSucceeded, nil)
	if span != nil {
		telemetry.RecordSuccess(span)
	}
	return nil
}
