// Package cliexec runs external control-plane commands and records every
// invocation in an append-only log.
package cliexec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Invocation is the immutable record of one external command run.
type Invocation struct {
	// Argv is the full argument vector, binary first.
	Argv []string `json:"argv"`

	// ExitCode is the command's exit code; 0 means success.
	ExitCode int `json:"exit_code"`

	// Output is combined stdout and stderr. Interleave order between the
	// two streams is not guaranteed; downstream consumers pattern-match the
	// blob as a whole.
	Output string `json:"output"`

	// Timestamp is when the command was started.
	Timestamp time.Time `json:"timestamp"`

	// Duration is how long the command ran.
	Duration time.Duration `json:"duration"`
}

// OK reports whether the command exited zero.
func (i *Invocation) OK() bool {
	return i.ExitCode == 0
}

// String renders the argv for logging.
func (i *Invocation) String() string {
	return strings.Join(i.Argv, " ")
}

// Runner executes one external command to completion. Implementations never
// return an error for a non-zero exit; callers decide what an exit code
// means. The error return covers spawn failures only (binary missing,
// fork failure).
type Runner interface {
	Run(ctx context.Context, argv []string) (*Invocation, error)
}

// CommandObserver receives one sample per finished command.
type CommandObserver interface {
	RecordCommand(binary string, ok bool, duration time.Duration)
}

// ExecRunner runs commands through os/exec with ambient authentication
// context (the invoking user's environment and credential cache).
type ExecRunner struct {
	log      *Log
	logger   zerolog.Logger
	observer CommandObserver
}

// NewExecRunner creates a runner that appends every invocation to cmdLog.
// cmdLog may be nil, in which case invocations are only logged structurally.
func NewExecRunner(cmdLog *Log, logger zerolog.Logger) *ExecRunner {
	return &ExecRunner{log: cmdLog, logger: logger}
}

// Observe registers an observer notified after every command. A nil observer
// disables notification.
func (r *ExecRunner) Observe(obs CommandObserver) {
	r.observer = obs
}

// Run executes argv, blocking until exit, and records the invocation.
func (r *ExecRunner) Run(ctx context.Context, argv []string) (*Invocation, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty argument vector")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	start := time.Now()
	err := cmd.Run()
	inv := &Invocation{
		Argv:      argv,
		Output:    combined.String(),
		Timestamp: start,
		Duration:  time.Since(start),
	}

	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			// Spawn failure: no process ran, nothing to record an exit for.
			return nil, fmt.Errorf("failed to execute %s: %w", argv[0], err)
		}
		inv.ExitCode = exitErr.ExitCode()
	}

	r.record(inv)
	return inv, nil
}

func (r *ExecRunner) record(inv *Invocation) {
	evt := r.logger.Debug()
	if !inv.OK() {
		evt = r.logger.Warn()
	}
	evt.Str("command", inv.String()).
		Int("exit_code", inv.ExitCode).
		Dur("duration", inv.Duration).
		Msg("command finished")

	if r.log != nil {
		if err := r.log.Append(inv); err != nil {
			r.logger.Error().Err(err).Msg("failed to append to command log")
		}
	}
	if r.observer != nil {
		r.observer.RecordCommand(inv.Argv[0], inv.OK(), inv.Duration)
	}
}
