package cliexec

import (
	"fmt"
	"os"
	"time"
)

// Log is the append-only command log. The file is opened once and flushed
// after every record so a crash mid-run leaves a usable partial log. The log
// is written only by the single orchestration goroutine and is consumed by
// humans and diagnostics, never re-parsed by the orchestrator.
type Log struct {
	file *os.File
	path string
}

// OpenLog opens (or creates) the command log at path in append mode.
func OpenLog(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open command log: %w", err)
	}
	return &Log{file: f, path: path}, nil
}

// Path returns the log file location for user-facing failure reports.
func (l *Log) Path() string {
	return l.path
}

// Append writes one record: a header line with timestamp, outcome marker and
// argv, followed by the raw combined output.
func (l *Log) Append(inv *Invocation) error {
	marker := "OK"
	if !inv.OK() {
		marker = "ERR"
	}

	header := fmt.Sprintf("%s %s %s\n", inv.Timestamp.Format(time.RFC3339), marker, inv.String())
	if _, err := l.file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write log header: %w", err)
	}
	if len(inv.Output) > 0 {
		out := inv.Output
		if out[len(out)-1] != '\n' {
			out += "\n"
		}
		if _, err := l.file.WriteString(out); err != nil {
			return fmt.Errorf("failed to write command output: %w", err)
		}
	}
	return l.file.Sync()
}

// Close closes the underlying file.
func (l *Log) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
