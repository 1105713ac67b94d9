// Package orchestrate sequences long-running provisioning operations into
// complete deployment runs. The sequencer owns the ordered create plan and
// the idempotent update plan, drives every external operation through the
// ControlPlane boundary with classified-error retries, tracks per-step
// progress, and on failure hands the rollback coordinator a single
// delete-or-preserve decision over the top-level aggregate.
//
// Everything runs on the caller's goroutine. Waiting on eventual
// consistency (identity propagation, app readiness) is a bounded retry
// loop, never a background goroutine.
package orchestrate
