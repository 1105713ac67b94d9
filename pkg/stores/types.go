package stores

import (
	"context"
	"errors"
	"time"
)

// Sentinel lookup errors, matched with errors.Is.
var (
	ErrRunNotFound        = errors.New("run not found")
	ErrDeploymentNotFound = errors.New("no deployment recorded")
)

// RunKind distinguishes full creation runs from idempotent update runs.
type RunKind string

const (
	RunKindCreate  RunKind = "create"
	RunKindUpdate  RunKind = "update"
	RunKindDestroy RunKind = "destroy"
)

// RunStatus represents the status of an orchestration run.
type RunStatus string

const (
	RunStatusRunning    RunStatus = "running"
	RunStatusSucceeded  RunStatus = "succeeded"
	RunStatusFailed     RunStatus = "failed"
	RunStatusRolledBack RunStatus = "rolled_back"
	RunStatusPreserved  RunStatus = "preserved"
)

// Run is the persisted record of one orchestration run.
type Run struct {
	ID          string     `json:"id"`
	Project     string     `json:"project"`
	Kind        RunKind    `json:"kind"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	LogPath     string     `json:"log_path"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// RunStep is the persisted record of one step within a run.
type RunStep struct {
	ID        int64      `json:"id"`
	RunID     string     `json:"run_id"`
	Position  int        `json:"position"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	Detail    *string    `json:"detail,omitempty"`
	Retries   int        `json:"retries"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	ElapsedMS int64      `json:"elapsed_ms"`
}

// DeploymentRecord is the terminal artifact of a successful run: the
// identifiers and endpoints an operator needs afterwards.
type DeploymentRecord struct {
	Project        string    `json:"project"`
	RunID          string    `json:"run_id"`
	Kind           RunKind   `json:"kind"`
	GroupName      string    `json:"group_name"`
	RegistryServer string    `json:"registry_server"`
	AppURL         string    `json:"app_url"`
	DatabaseFQDN   string    `json:"database_fqdn"`
	Image          string    `json:"image"`
	ElapsedMS      int64     `json:"elapsed_ms"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Store defines the interface for the run-history persistence layer.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRunStatus(ctx context.Context, id string, status RunStatus, errMsg *string) error
	ListRuns(ctx context.Context, project string, limit int) ([]*Run, error)

	// Step operations
	SaveSteps(ctx context.Context, runID string, steps []RunStep) error
	ListSteps(ctx context.Context, runID string) ([]*RunStep, error)

	// Deployment summary operations
	UpsertDeployment(ctx context.Context, rec *DeploymentRecord) error
	GetDeployment(ctx context.Context, project string) (*DeploymentRecord, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
