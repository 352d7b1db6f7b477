package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// JobCreate carries the fields for CreateJob.
type JobCreate struct {
	Name           string
	ScheduleCron   *string
	RunnerCfg      RunnerConfig
	MaxConcurrency int
	MisfirePolicy  MisfirePolicy
}

// JobUpdate is a partial update. Nil pointer = keep the current value.
// ScheduleCron is three-valued: nil = keep, Valid=false = clear the schedule,
// Valid=true = replace it.
type JobUpdate struct {
	Name           *string
	ScheduleCron   *sql.NullString
	RunnerCfg      *RunnerConfig
	MaxConcurrency *int
	MisfirePolicy  *MisfirePolicy
}

// JobStore is the scheduler's read/insert surface.
type JobStore interface {
	// ListEnabledCronJobs returns every non-deleted enabled job that has a cron
	// schedule, fully hydrated. Rows with an unparseable runner config or
	// misfire policy are logged and skipped.
	ListEnabledCronJobs(ctx context.Context) ([]JobSpec, error)

	// InsertJobRunIfMissing inserts a queued run for (jobID, scheduledFor).
	// Returns true iff a row was inserted; false means the key already existed.
	// Atomic and race-free across concurrent schedulers.
	InsertJobRunIfMissing(ctx context.Context, jobID uuid.UUID, scheduledFor time.Time) (bool, error)
}

// RunStore is the worker's surface.
type RunStore interface {
	// ClaimJobRuns atomically moves up to limit due queued runs to running for
	// workerID, building and attaching a config snapshot to each inside the
	// same transaction. Concurrent claimers receive disjoint sets.
	ClaimJobRuns(ctx context.Context, workerID uuid.UUID, limit int) ([]JobRun, error)

	// UpdateJobRunState transitions a run; finished_at is set iff newState is
	// terminal. No-op when the run does not exist.
	UpdateJobRunState(ctx context.Context, runID uuid.UUID, newState RunState, exitCode *int, output, errorOutput *string) error
}

// WorkerStore covers heartbeats, reclaim, leader election and identity rows.
type WorkerStore interface {
	// Heartbeat upserts the worker row by id and refreshes last_seen.
	Heartbeat(ctx context.Context, rec WorkerRecord) error

	// ReclaimDeadWorkersJobs requeues running runs whose worker has not
	// heartbeated within deadAfterSecs. Returns the number of runs requeued.
	// Idempotent, safe to race from many workers.
	ReclaimDeadWorkersJobs(ctx context.Context, deadAfterSecs int) (int64, error)

	// AmILeader tries to take the scheduler advisory lock without blocking.
	// The lock sticks to this store handle until the process or its database
	// connection dies, so at most one node is leader at any instant.
	AmILeader(ctx context.Context) (bool, error)

	InsertWorker(ctx context.Context, id uuid.UUID, displayName, hostname, version string, restartCount int) error
	LookupWorker(ctx context.Context, id uuid.UUID) (*WorkerRecord, error)

	// IncrRestartCount bumps restart_count, records the running version and
	// returns the new count.
	IncrRestartCount(ctx context.Context, id uuid.UUID, version string) (int, error)

	ListWorkers(ctx context.Context) ([]WorkerRecord, error)
}

// AdminStore is the CRUD surface consumed by the operator-facing collaborator
// (CLI today, HTTP API elsewhere). The core loops never call it.
type AdminStore interface {
	HealthCheck(ctx context.Context) error

	GetJob(ctx context.Context, jobID uuid.UUID) (*JobSpec, error)
	CreateJob(ctx context.Context, c JobCreate) (*JobSpec, error)
	ListJobs(ctx context.Context) ([]JobSpec, error)

	// UpdateJob applies a partial update. Changing the schedule or runner
	// config invalidates (deletes) the job's still-queued runs.
	UpdateJob(ctx context.Context, jobID uuid.UUID, upd JobUpdate) (*JobSpec, error)

	// DeleteJob soft-deletes the job and deletes its still-queued runs.
	DeleteJob(ctx context.Context, jobID uuid.UUID) error

	// SetJobEnabled flips the flag; disabling deletes still-queued runs.
	SetJobEnabled(ctx context.Context, jobID uuid.UUID, enabled bool) error
	EnableJob(ctx context.Context, jobID uuid.UUID) error
	DisableJob(ctx context.Context, jobID uuid.UUID) error

	SetJobEnvVars(ctx context.Context, jobID uuid.UUID, vars []EnvVar) error
	GetJobEnvVars(ctx context.Context, jobID uuid.UUID) ([]EnvVar, error)

	// CreateAdhocRun inserts a queued run for now with the snapshot already
	// attached, so the job can be edited or deleted without affecting it.
	CreateAdhocRun(ctx context.Context, jobID uuid.UUID) (*JobRun, error)

	// CancelRun transitions queued -> cancelled only. A run in any other state
	// yields ErrValidation.
	CancelRun(ctx context.Context, runID uuid.UUID) error

	ListRecentRuns(ctx context.Context, f RunFilter) ([]JobRun, error)

	CreateSharedConfig(ctx context.Context, name string, meta SharedConfigMeta) (*SharedConfig, error)
	GetSharedConfig(ctx context.Context, id uuid.UUID) (*SharedConfig, error)
	ListSharedConfigs(ctx context.Context) ([]SharedConfig, error)
	DeleteSharedConfig(ctx context.Context, id uuid.UUID) error

	CreateUser(ctx context.Context, username, passwordHash string, role UserRole) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	CountUsers(ctx context.Context) (int, error)
}

// Store is the complete contract any backend must satisfy.
type Store interface {
	JobStore
	RunStore
	WorkerStore
	AdminStore
}
