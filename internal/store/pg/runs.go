package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

const defaultRunListLimit = 500

// ClaimJobRuns moves up to limit due queued runs to running for workerID.
// One transaction: SKIP LOCKED keeps concurrent claimers on disjoint rows,
// and the config snapshot is built against the same locked view of the job.
// Any snapshot failure rolls back the whole claim so no run is half-taken.
func (s *PGStore) ClaimJobRuns(ctx context.Context, workerID uuid.UUID, limit int) ([]store.JobRun, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, dbErr(err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT jr.id, jr.job_id, jr.scheduled_for, jr.queued_at,
		        j.id, j.name, j.schedule_cron, j.enabled, j.runner_cfg,
		        j.max_concurrency, j.misfire_policy, j.created_at, j.deleted_at
		 FROM job_runs jr
		 JOIN jobs j ON j.id = jr.job_id
		 WHERE jr.state = 'queued'
		   AND jr.scheduled_for <= now()
		   AND j.enabled = true
		   AND j.deleted_at IS NULL
		 ORDER BY jr.scheduled_for
		 LIMIT $1
		 FOR UPDATE OF jr SKIP LOCKED`,
		limit)
	if err != nil {
		return nil, dbErr(err)
	}

	type pending struct {
		run store.JobRun
		job store.JobSpec
	}
	var picked []pending
	for rows.Next() {
		var p pending
		var runnerJSON []byte
		var misfire string
		err := rows.Scan(&p.run.ID, &p.run.JobID, &p.run.ScheduledFor, &p.run.QueuedAt,
			&p.job.ID, &p.job.Name, &p.job.ScheduleCron, &p.job.Enabled, &runnerJSON,
			&p.job.MaxConcurrency, &misfire, &p.job.CreatedAt, &p.job.DeletedAt)
		if err != nil {
			rows.Close()
			return nil, dbErr(err)
		}
		if err := json.Unmarshal(runnerJSON, &p.job.RunnerCfg); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: job %s runner config: %v", store.ErrDatabase, p.job.ID, err)
		}
		p.job.MisfirePolicy, err = store.ParseMisfirePolicy(misfire)
		if err != nil {
			rows.Close()
			return nil, err
		}
		picked = append(picked, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, dbErr(err)
	}
	rows.Close()

	now := nowUTC()
	var claimed []store.JobRun
	for _, p := range picked {
		snap, err := buildSnapshot(ctx, tx, &p.job)
		if err != nil {
			return nil, err
		}
		snapJSON, err := json.Marshal(snap)
		if err != nil {
			return nil, fmt.Errorf("%w: encode snapshot for run %s: %v", store.ErrDatabase, p.run.ID, err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE job_runs
			 SET state = 'running', worker_id = $2, started_at = $3, config_snapshot = $4
			 WHERE id = $1`,
			p.run.ID, workerID, now, snapJSON)
		if err != nil {
			return nil, dbErr(err)
		}

		r := p.run
		r.State = store.RunRunning
		wid := workerID
		r.WorkerID = &wid
		started := now
		r.StartedAt = &started
		r.Snapshot = snap
		claimed = append(claimed, r)
	}

	if err := tx.Commit(); err != nil {
		return nil, dbErr(err)
	}
	return claimed, nil
}

// UpdateJobRunState transitions a run and records its outcome. finished_at is
// set exactly when the new state is terminal.
func (s *PGStore) UpdateJobRunState(ctx context.Context, runID uuid.UUID, newState store.RunState, exitCode *int, output, errorOutput *string) error {
	var err error
	if newState.Terminal() {
		_, err = s.db.ExecContext(ctx,
			`UPDATE job_runs
			 SET state = $2, exit_code = $3, output = $4, error_output = $5, finished_at = now()
			 WHERE id = $1`,
			runID, string(newState), exitCode, output, errorOutput)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE job_runs
			 SET state = $2, exit_code = $3, output = $4, error_output = $5
			 WHERE id = $1`,
			runID, string(newState), exitCode, output, errorOutput)
	}
	if err != nil {
		return dbErr(err)
	}
	return nil
}

// CreateAdhocRun queues an immediate run with the snapshot attached up front,
// so the run stays executable even if the job is edited or deleted before a
// worker picks it up.
func (s *PGStore) CreateAdhocRun(ctx context.Context, jobID uuid.UUID) (*store.JobRun, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	snap, err := buildSnapshot(ctx, s.db, job)
	if err != nil {
		return nil, err
	}
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("%w: encode snapshot: %v", store.ErrDatabase, err)
	}

	id := newRowID()
	now := nowUTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO job_runs (id, job_id, scheduled_for, state, config_snapshot)
		 VALUES ($1, $2, $3, 'queued', $4)`,
		id, jobID, now, snapJSON)
	if err != nil {
		return nil, dbErr(err)
	}
	return s.getRun(ctx, id)
}

// CancelRun cancels a run iff it is still queued. Running runs keep running:
// there is no cross-node kill channel, so claiming wins the race.
func (s *PGStore) CancelRun(ctx context.Context, runID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_runs SET state = 'cancelled', finished_at = now()
		 WHERE id = $1 AND state = 'queued'`, runID)
	if err != nil {
		return dbErr(err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	run, err := s.getRun(ctx, runID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: run %s is %s, only queued runs can be cancelled",
		store.ErrValidation, runID, run.State)
}

func (s *PGStore) getRun(ctx context.Context, runID uuid.UUID) (*store.JobRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM job_runs WHERE id = $1`, runID)
	run, err := scanRunRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", store.ErrNotFound, runID)
	}
	if err != nil {
		return nil, dbErr(err)
	}
	return run, nil
}

// ListRecentRuns returns runs newest first, narrowed by the filter.
func (s *PGStore) ListRecentRuns(ctx context.Context, f store.RunFilter) ([]store.JobRun, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.JobID != nil {
		where = append(where, "job_id = "+arg(*f.JobID))
	}
	if f.WorkerID != nil {
		where = append(where, "worker_id = "+arg(*f.WorkerID))
	}
	if f.Before != nil {
		where = append(where, "scheduled_for < "+arg(f.Before.UTC()))
	}
	if f.After != nil {
		where = append(where, "scheduled_for > "+arg(f.After.UTC()))
	}

	q := `SELECT ` + runColumns + ` FROM job_runs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := defaultRunListLimit
	if f.Limit != nil && *f.Limit > 0 {
		limit = *f.Limit
	}
	q += " ORDER BY scheduled_for DESC LIMIT " + arg(limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var runs []store.JobRun
	for rows.Next() {
		run, err := scanRunRow(rows)
		if err != nil {
			return nil, dbErr(err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}
