package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

// queryer abstracts *sql.DB and *sql.Tx so snapshot construction and scan
// helpers work inside and outside a transaction.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const jobColumns = "id, name, schedule_cron, enabled, runner_cfg, max_concurrency, misfire_policy, created_at, deleted_at"

func scanJobRow(row rowScanner) (*store.JobSpec, error) {
	var j store.JobSpec
	var runnerJSON []byte
	var misfire string

	err := row.Scan(&j.ID, &j.Name, &j.ScheduleCron, &j.Enabled, &runnerJSON,
		&j.MaxConcurrency, &misfire, &j.CreatedAt, &j.DeletedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(runnerJSON, &j.RunnerCfg); err != nil {
		return nil, fmt.Errorf("%w: job %s runner config: %v", store.ErrDatabase, j.ID, err)
	}
	if err := j.RunnerCfg.Validate(); err != nil {
		return nil, fmt.Errorf("job %s: %w", j.ID, err)
	}
	j.MisfirePolicy, err = store.ParseMisfirePolicy(misfire)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", j.ID, err)
	}
	return &j, nil
}

const runColumns = "id, job_id, scheduled_for, state, worker_id, exit_code, queued_at, started_at, finished_at, config_snapshot, output, error_output"

func scanRunRow(row rowScanner) (*store.JobRun, error) {
	var r store.JobRun
	var state string
	var snapshotJSON []byte

	err := row.Scan(&r.ID, &r.JobID, &r.ScheduledFor, &state, &r.WorkerID, &r.ExitCode,
		&r.QueuedAt, &r.StartedAt, &r.FinishedAt, &snapshotJSON, &r.Output, &r.ErrorOutput)
	if err != nil {
		return nil, err
	}

	r.State, err = store.ParseRunState(state)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", r.ID, err)
	}
	if snapshotJSON != nil {
		var snap store.ExecutableConfigSnapshot
		if err := json.Unmarshal(snapshotJSON, &snap); err != nil {
			return nil, fmt.Errorf("%w: run %s snapshot: %v", store.ErrDatabase, r.ID, err)
		}
		r.Snapshot = &snap
	}
	return &r, nil
}

const workerColumns = "id, display_name, hostname, last_seen, capacity, restart_count, version, active"

func scanWorkerRow(row rowScanner) (*store.WorkerRecord, error) {
	var w store.WorkerRecord
	err := row.Scan(&w.ID, &w.DisplayName, &w.Hostname, &w.LastSeen,
		&w.Capacity, &w.RestartCount, &w.Version, &w.Active)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func newRowID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
