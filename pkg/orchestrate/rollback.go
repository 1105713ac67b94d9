package orchestrate

import (
	"context"

	"github.com/stackpilot/stackpilot/pkg/telemetry"
)

// RollbackAction identifies what the coordinator did after a failed run.
type RollbackAction string

const (
	// RollbackDeleted means one asynchronous delete of the aggregate was
	// issued. Completion is not awaited.
	RollbackDeleted RollbackAction = "deleted"

	// RollbackPreserved means partial resources were intentionally left in
	// place for inspection.
	RollbackPreserved RollbackAction = "preserved"

	// RollbackNone means nothing had been created yet, so there was nothing
	// to act on.
	RollbackNone RollbackAction = "none"
)

// RollbackResult reports the single rollback decision made for a failed run.
type RollbackResult struct {
	// Action is what was decided.
	Action RollbackAction

	// Group is the aggregate the action applied to, empty for RollbackNone.
	Group string

	// Err is set when the delete request itself could not be issued. The
	// aggregate is then reported as preserved so the operator knows manual
	// cleanup is needed.
	Err error
}

// Rollback decides and executes cleanup after a failed run. It acts at most
// once per run and only on the top-level aggregate: children are removed
// transitively by the control plane, never enumerated here.
type Rollback struct {
	plane   ControlPlane
	logger  *telemetry.Logger
	metrics *telemetry.Metrics

	// Preserve disables deletion, leaving partial resources in place.
	Preserve bool

	fired bool
}

// NewRollback creates a rollback coordinator for one run.
func NewRollback(plane ControlPlane, logger *telemetry.Logger, metrics *telemetry.Metrics) *Rollback {
	return &Rollback{plane: plane, logger: logger, metrics: metrics}
}

// OnFailure runs the rollback decision for the failed run described by
// state. Calling it again on the same coordinator is a no-op reporting
// RollbackNone.
func (r *Rollback) OnFailure(ctx context.Context, state *State) RollbackResult {
	if r.fired {
		return RollbackResult{Action: RollbackNone}
	}
	r.fired = true

	if state.GroupName == "" {
		r.logger.Info("nothing provisioned, no rollback needed")
		return RollbackResult{Action: RollbackNone}
	}
	if r.Preserve {
		r.logger.WithField("group", state.GroupName).
			Warn("preserving partial resources for inspection")
		r.metrics.RecordRollback(string(RollbackPreserved))
		return RollbackResult{Action: RollbackPreserved, Group: state.GroupName}
	}

	r.logger.WithField("group", state.GroupName).
		Info("rolling back: deleting aggregate and everything under it")
	if err := r.plane.DeleteGroupAsync(ctx, state.GroupName); err != nil {
		r.logger.WithError(err).WithField("group", state.GroupName).
			Error("rollback delete could not be issued, resources preserved")
		r.metrics.RecordRollback(string(RollbackPreserved))
		return RollbackResult{Action: RollbackPreserved, Group: state.GroupName, Err: err}
	}
	r.metrics.RecordRollback(string(RollbackDeleted))
	return RollbackResult{Action: RollbackDeleted, Group: state.GroupName}
}
