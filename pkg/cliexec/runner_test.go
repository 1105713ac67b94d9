package cliexec

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testRunner(t *testing.T) (*ExecRunner, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "commands.log")
	cmdLog, err := OpenLog(logPath)
	if err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	t.Cleanup(func() { cmdLog.Close() })
	return NewExecRunner(cmdLog, zerolog.Nop()), logPath
}

func TestRunCapturesCombinedOutput(t *testing.T) {
	r, _ := testRunner(t)

	inv, err := r.Run(context.Background(), []string{"sh", "-c", "echo out; echo err 1>&2"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !inv.OK() {
		t.Errorf("exit code = %d, want 0", inv.ExitCode)
	}
	if !strings.Contains(inv.Output, "out") || !strings.Contains(inv.Output, "err") {
		t.Errorf("Output = %q, want both streams", inv.Output)
	}
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	r, _ := testRunner(t)

	inv, err := r.Run(context.Background(), []string{"sh", "-c", "echo doomed; exit 3"})
	if err != nil {
		t.Fatalf("Run: %v; a non-zero exit is an invocation, not an error", err)
	}
	if inv.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", inv.ExitCode)
	}
	if inv.OK() {
		t.Error("OK() must be false for a non-zero exit")
	}
	if !strings.Contains(inv.Output, "doomed") {
		t.Errorf("Output = %q", inv.Output)
	}
}

func TestRunSpawnFailure(t *testing.T) {
	r, _ := testRunner(t)

	inv, err := r.Run(context.Background(), []string{"definitely-not-a-binary-4bf1"})
	if err == nil {
		t.Fatal("expected a spawn error for a missing binary")
	}
	if inv != nil {
		t.Errorf("invocation = %+v, want nil on spawn failure", inv)
	}
}

func TestRunRejectsEmptyArgv(t *testing.T) {
	r, _ := testRunner(t)
	if _, err := r.Run(context.Background(), nil); err == nil {
		t.Fatal("expected an error for an empty argument vector")
	}
}

func TestLogFormat(t *testing.T) {
	r, logPath := testRunner(t)

	if _, err := r.Run(context.Background(), []string{"sh", "-c", "echo hello"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := r.Run(context.Background(), []string{"sh", "-c", "exit 1"}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("log lines = %d (%q), want 3", len(lines), lines)
	}

	// Header: RFC3339 timestamp, outcome marker, argv.
	fields := strings.SplitN(lines[0], " ", 3)
	if len(fields) != 3 {
		t.Fatalf("header = %q", lines[0])
	}
	if _, err := time.Parse(time.RFC3339, fields[0]); err != nil {
		t.Errorf("timestamp %q is not RFC3339: %v", fields[0], err)
	}
	if fields[1] != "OK" {
		t.Errorf("marker = %q, want OK", fields[1])
	}
	if fields[2] != "sh -c echo hello" {
		t.Errorf("argv = %q", fields[2])
	}
	if lines[1] != "hello" {
		t.Errorf("output line = %q", lines[1])
	}
	if !strings.Contains(lines[2], " ERR ") {
		t.Errorf("second header = %q, want ERR marker", lines[2])
	}
}

// Mock observer for testing.
type mockObserver struct {
	samples []struct {
		binary string
		ok     bool
	}
}

func (m *mockObserver) RecordCommand(binary string, ok bool, duration time.Duration) {
	m.samples = append(m.samples, struct {
		binary string
		ok     bool
	}{binary, ok})
}

func TestRunNotifiesObserver(t *testing.T) {
	r, _ := testRunner(t)
	obs := &mockObserver{}
	r.Observe(obs)

	if _, err := r.Run(context.Background(), []string{"sh", "-c", "true"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := r.Run(context.Background(), []string{"sh", "-c", "exit 1"}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(obs.samples) != 2 {
		t.Fatalf("samples = %d, want 2", len(obs.samples))
	}
	if obs.samples[0].binary != "sh" || !obs.samples[0].ok {
		t.Errorf("first sample = %+v", obs.samples[0])
	}
	if obs.samples[1].ok {
		t.Error("second sample reported ok for exit 1")
	}
}
