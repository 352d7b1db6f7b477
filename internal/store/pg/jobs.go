package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

// ListEnabledCronJobs returns every live enabled job that has a cron schedule.
// Rows whose stored runner config or misfire policy no longer parses are
// logged and skipped so one bad row cannot stall the whole scheduler.
func (s *PGStore) ListEnabledCronJobs(ctx context.Context) ([]store.JobSpec, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE enabled = true AND schedule_cron IS NOT NULL AND deleted_at IS NULL`)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var jobs []store.JobSpec
	for rows.Next() {
		job, err := scanJobRow(rows)
		if err != nil {
			slog.Warn("skipping unreadable job row", "error", err)
			continue
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr(err)
	}
	return jobs, nil
}

// InsertJobRunIfMissing materializes a queued run for (jobID, scheduledFor).
// The unique key makes this idempotent across concurrent schedulers: exactly
// one caller observes true.
func (s *PGStore) InsertJobRunIfMissing(ctx context.Context, jobID uuid.UUID, scheduledFor time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO job_runs (id, job_id, scheduled_for, state)
		 VALUES ($1, $2, $3, 'queued')
		 ON CONFLICT (job_id, scheduled_for) DO NOTHING`,
		newRowID(), jobID, scheduledFor.UTC())
	if err != nil {
		return false, dbErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbErr(err)
	}
	return n == 1, nil
}

// GetJob returns a live job by id.
func (s *PGStore) GetJob(ctx context.Context, jobID uuid.UUID) (*store.JobSpec, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND deleted_at IS NULL`, jobID)
	job, err := scanJobRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: job %s", store.ErrNotFound, jobID)
	}
	if err != nil {
		return nil, dbErr(err)
	}
	return job, nil
}

// CreateJob validates and inserts a new job.
func (s *PGStore) CreateJob(ctx context.Context, c store.JobCreate) (*store.JobSpec, error) {
	if c.Name == "" {
		return nil, fmt.Errorf("%w: job name is required", store.ErrInvalidInput)
	}
	if err := c.RunnerCfg.Validate(); err != nil {
		return nil, err
	}
	if c.ScheduleCron != nil {
		if err := store.ValidateCron(*c.ScheduleCron); err != nil {
			return nil, err
		}
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 1
	}
	if c.MisfirePolicy.Kind == "" {
		c.MisfirePolicy = store.MisfirePolicy{Kind: store.MisfireSkip}
	}

	runnerJSON, err := json.Marshal(c.RunnerCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: encode runner config: %v", store.ErrInvalidInput, err)
	}

	id := newRowID()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, name, schedule_cron, runner_type, runner_cfg, max_concurrency, misfire_policy)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, c.Name, c.ScheduleCron, c.RunnerCfg.Type, runnerJSON, c.MaxConcurrency, c.MisfirePolicy.String())
	if err != nil {
		return nil, dbErr(err)
	}
	return s.GetJob(ctx, id)
}

// ListJobs returns all live jobs, newest first.
func (s *PGStore) ListJobs(ctx context.Context) ([]store.JobSpec, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var jobs []store.JobSpec
	for rows.Next() {
		job, err := scanJobRow(rows)
		if err != nil {
			slog.Warn("skipping unreadable job row", "error", err)
			continue
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// UpdateJob applies a partial update. ScheduleCron follows three-valued
// semantics: nil keeps the current value, Valid=false clears it, Valid=true
// replaces it. A change to the schedule or runner config invalidates the
// job's still-queued runs in the same transaction.
func (s *PGStore) UpdateJob(ctx context.Context, jobID uuid.UUID, upd store.JobUpdate) (*store.JobSpec, error) {
	if upd.RunnerCfg != nil {
		if err := upd.RunnerCfg.Validate(); err != nil {
			return nil, err
		}
	}
	if upd.ScheduleCron != nil && upd.ScheduleCron.Valid {
		if err := store.ValidateCron(upd.ScheduleCron.String); err != nil {
			return nil, err
		}
	}
	if upd.MaxConcurrency != nil && *upd.MaxConcurrency <= 0 {
		return nil, fmt.Errorf("%w: maxConcurrency must be positive", store.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, dbErr(err)
	}
	defer tx.Rollback()

	scheduleSpecified := upd.ScheduleCron != nil
	var scheduleValue *string
	if scheduleSpecified && upd.ScheduleCron.Valid {
		scheduleValue = &upd.ScheduleCron.String
	}
	var runnerJSON []byte
	var runnerType *string
	if upd.RunnerCfg != nil {
		runnerJSON, err = json.Marshal(upd.RunnerCfg)
		if err != nil {
			return nil, fmt.Errorf("%w: encode runner config: %v", store.ErrInvalidInput, err)
		}
		runnerType = &upd.RunnerCfg.Type
	}
	var misfire *string
	if upd.MisfirePolicy != nil {
		m := upd.MisfirePolicy.String()
		misfire = &m
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE jobs SET
			name = COALESCE($2, name),
			schedule_cron = CASE WHEN $3 = false THEN schedule_cron ELSE $4::text END,
			runner_type = COALESCE($5, runner_type),
			runner_cfg = COALESCE($6, runner_cfg),
			max_concurrency = COALESCE($7, max_concurrency),
			misfire_policy = COALESCE($8, misfire_policy)
		 WHERE id = $1 AND deleted_at IS NULL`,
		jobID, upd.Name, scheduleSpecified, scheduleValue, runnerType, runnerJSON, upd.MaxConcurrency, misfire)
	if err != nil {
		return nil, dbErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: job %s", store.ErrNotFound, jobID)
	}

	// Edits to the schedule or the runner config make queued runs stale.
	if scheduleSpecified || upd.RunnerCfg != nil {
		if err := deleteQueuedRuns(ctx, tx, jobID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, dbErr(err)
	}
	return s.GetJob(ctx, jobID)
}

// DeleteJob soft-deletes the job and invalidates its queued runs. Historical
// and in-flight runs are preserved.
func (s *PGStore) DeleteJob(ctx context.Context, jobID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbErr(err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE jobs SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, jobID)
	if err != nil {
		return dbErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: job %s", store.ErrNotFound, jobID)
	}
	if err := deleteQueuedRuns(ctx, tx, jobID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return dbErr(err)
	}
	return nil
}

// SetJobEnabled flips the flag; disabling a job invalidates its queued runs.
func (s *PGStore) SetJobEnabled(ctx context.Context, jobID uuid.UUID, enabled bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbErr(err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE jobs SET enabled = $2 WHERE id = $1 AND deleted_at IS NULL`, jobID, enabled)
	if err != nil {
		return dbErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: job %s", store.ErrNotFound, jobID)
	}
	if !enabled {
		if err := deleteQueuedRuns(ctx, tx, jobID); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return dbErr(err)
	}
	return nil
}

func (s *PGStore) EnableJob(ctx context.Context, jobID uuid.UUID) error {
	return s.SetJobEnabled(ctx, jobID, true)
}

func (s *PGStore) DisableJob(ctx context.Context, jobID uuid.UUID) error {
	return s.SetJobEnabled(ctx, jobID, false)
}

func deleteQueuedRuns(ctx context.Context, tx *sql.Tx, jobID uuid.UUID) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM job_runs WHERE job_id = $1 AND state = 'queued'`, jobID)
	if err != nil {
		return dbErr(err)
	}
	return nil
}

// SetJobEnvVars replaces the job's env var set.
func (s *PGStore) SetJobEnvVars(ctx context.Context, jobID uuid.UUID, vars []store.EnvVar) error {
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbErr(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM job_env_vars WHERE job_id = $1`, jobID); err != nil {
		return dbErr(err)
	}
	for _, v := range vars {
		if v.Key == "" {
			return fmt.Errorf("%w: env var key is required", store.ErrInvalidInput)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO job_env_vars (job_id, key, value) VALUES ($1, $2, $3)`,
			jobID, v.Key, v.Value); err != nil {
			return dbErr(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return dbErr(err)
	}
	return nil
}

// GetJobEnvVars returns the job's env vars sorted by key.
func (s *PGStore) GetJobEnvVars(ctx context.Context, jobID uuid.UUID) ([]store.EnvVar, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM job_env_vars WHERE job_id = $1 ORDER BY key`, jobID)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var vars []store.EnvVar
	for rows.Next() {
		var v store.EnvVar
		if err := rows.Scan(&v.Key, &v.Value); err != nil {
			return nil, dbErr(err)
		}
		vars = append(vars, v)
	}
	return vars, rows.Err()
}
