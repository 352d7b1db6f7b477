package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunState is the lifecycle state of a JobRun.
type RunState string

const (
	RunQueued    RunState = "queued"
	RunRunning   RunState = "running"
	RunSucceeded RunState = "succeeded"
	RunFailed    RunState = "failed"
	RunCancelled RunState = "cancelled"
)

// Terminal reports whether the state never transitions again.
func (s RunState) Terminal() bool {
	switch s {
	case RunSucceeded, RunFailed, RunCancelled:
		return true
	}
	return false
}

// ParseRunState parses the stored state column.
func ParseRunState(s string) (RunState, error) {
	switch RunState(s) {
	case RunQueued, RunRunning, RunSucceeded, RunFailed, RunCancelled:
		return RunState(s), nil
	}
	return "", fmt.Errorf("%w: invalid run state: %q", ErrInvalidInput, s)
}

// JobRun is one materialized execution of a job. (job_id, scheduled_for) is
// unique: it is the idempotency key the scheduler inserts against.
type JobRun struct {
	ID           uuid.UUID                 `json:"id"`
	JobID        uuid.UUID                 `json:"jobId"`
	ScheduledFor time.Time                 `json:"scheduledFor"`
	State        RunState                  `json:"state"`
	WorkerID     *uuid.UUID                `json:"workerId,omitempty"`
	ExitCode     *int                      `json:"exitCode,omitempty"`
	QueuedAt     time.Time                 `json:"queuedAt"`
	StartedAt    *time.Time                `json:"startedAt,omitempty"`
	FinishedAt   *time.Time                `json:"finishedAt,omitempty"`
	Snapshot     *ExecutableConfigSnapshot `json:"snapshot,omitempty"`
	Output       *string                   `json:"output,omitempty"`
	ErrorOutput  *string                   `json:"errorOutput,omitempty"`
}

// ExecutableConfigSnapshot is a self-contained copy of everything a worker
// needs to execute a run. It is built at claim time from the live job
// definition and never changes afterwards, so later job edits cannot
// retroactively change what a run executed.
type ExecutableConfigSnapshot struct {
	Name    *string      `json:"name,omitempty"`
	JobName string       `json:"jobName"`
	Meta    SnapshotMeta `json:"meta"`
}

// SnapshotMeta is the dereferenced runner configuration: shared connection
// configs are inlined, env vars are inlined, nothing needs a further lookup.
type SnapshotMeta struct {
	Type string `json:"type"`

	// shell
	Command    string `json:"command,omitempty"`
	WorkingDir string `json:"workingDir,omitempty"`

	// shell / python / node
	Env map[string]string `json:"env,omitempty"`

	// http
	Method  string            `json:"method,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    *string           `json:"body,omitempty"`

	// pgsql / mysql, inlined from the referenced SharedConfig
	Host           string `json:"host,omitempty"`
	Port           int    `json:"port,omitempty"`
	Username       string `json:"username,omitempty"`
	PasswordSecret string `json:"passwordSecret,omitempty"`
	Database       string `json:"database,omitempty"`
	Query          string `json:"query,omitempty"`

	// python / node
	Module       string `json:"module,omitempty"`
	ClassName    string `json:"className,omitempty"`
	FunctionName string `json:"functionName,omitempty"`

	TimeoutSec *int `json:"timeoutSec,omitempty"`
}

// CommandRunOutput is the executor's view of a finished run.
type CommandRunOutput struct {
	ExitCode    int
	Output      *string
	ErrorOutput *string
}

// RunFilter narrows ListRecentRuns. Nil fields are ignored.
type RunFilter struct {
	Limit    *int
	Before   *time.Time
	After    *time.Time
	JobID    *uuid.UUID
	WorkerID *uuid.UUID
}
