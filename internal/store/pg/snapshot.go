package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

// buildSnapshot freezes a job into a self-contained snapshot: shared configs
// are dereferenced and inlined, env vars are inlined. Runs inside the claim
// transaction so the snapshot matches the job row just locked.
func buildSnapshot(ctx context.Context, q queryer, job *store.JobSpec) (*store.ExecutableConfigSnapshot, error) {
	snap := &store.ExecutableConfigSnapshot{
		JobName: job.Name,
		Meta: store.SnapshotMeta{
			Type:       job.RunnerCfg.Type,
			TimeoutSec: job.RunnerCfg.TimeoutSec,
		},
	}

	switch job.RunnerCfg.Type {
	case store.RunnerShell:
		snap.Meta.Command = job.RunnerCfg.Command
		snap.Meta.WorkingDir = job.RunnerCfg.WorkingDir
		env, err := loadEnvVars(ctx, q, job)
		if err != nil {
			return nil, err
		}
		snap.Meta.Env = env

	case store.RunnerHTTP:
		snap.Meta.Method = job.RunnerCfg.Method
		snap.Meta.URL = job.RunnerCfg.URL
		snap.Meta.Headers = job.RunnerCfg.Headers
		snap.Meta.Body = job.RunnerCfg.Body

	case store.RunnerPgSQL, store.RunnerMySQL:
		cfg, err := loadLiveSharedConfig(ctx, q, job)
		if err != nil {
			return nil, err
		}
		snap.Name = &cfg.Name
		snap.Meta.Host = cfg.Meta.Host
		snap.Meta.Port = cfg.Meta.Port
		snap.Meta.Username = cfg.Meta.Username
		snap.Meta.PasswordSecret = cfg.Meta.PasswordSecret
		snap.Meta.Database = cfg.Meta.Database
		snap.Meta.Query = job.RunnerCfg.Query

	case store.RunnerPython:
		snap.Meta.Module = job.RunnerCfg.Module
		snap.Meta.ClassName = job.RunnerCfg.ClassName
		env, err := loadEnvVars(ctx, q, job)
		if err != nil {
			return nil, err
		}
		snap.Meta.Env = env

	case store.RunnerNode:
		snap.Meta.Module = job.RunnerCfg.Module
		snap.Meta.FunctionName = job.RunnerCfg.FunctionName
		env, err := loadEnvVars(ctx, q, job)
		if err != nil {
			return nil, err
		}
		snap.Meta.Env = env

	default:
		return nil, fmt.Errorf("%w: job %s: unknown runner type %q", store.ErrValidation, job.ID, job.RunnerCfg.Type)
	}

	return snap, nil
}

func loadEnvVars(ctx context.Context, q queryer, job *store.JobSpec) (map[string]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT key, value FROM job_env_vars WHERE job_id = $1`, job.ID)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var env map[string]string
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, dbErr(err)
		}
		if env == nil {
			env = make(map[string]string)
		}
		env[k] = v
	}
	return env, rows.Err()
}

// loadLiveSharedConfig resolves the job's ConfigID reference. A missing or
// soft-deleted config is a validation failure: the claim must not proceed on
// credentials the operator removed.
func loadLiveSharedConfig(ctx context.Context, q queryer, job *store.JobSpec) (*store.SharedConfig, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, meta, created_at, deleted_at FROM shared_configs WHERE id = $1`,
		job.RunnerCfg.ConfigID)

	var cfg store.SharedConfig
	var metaJSON []byte
	err := row.Scan(&cfg.ID, &cfg.Name, &metaJSON, &cfg.CreatedAt, &cfg.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: job %s references missing shared config %s",
			store.ErrValidation, job.ID, job.RunnerCfg.ConfigID)
	}
	if err != nil {
		return nil, dbErr(err)
	}
	if cfg.DeletedAt != nil {
		return nil, fmt.Errorf("%w: job %s references deleted shared config %s",
			store.ErrValidation, job.ID, cfg.ID)
	}
	if err := json.Unmarshal(metaJSON, &cfg.Meta); err != nil {
		return nil, fmt.Errorf("%w: shared config %s meta: %v", store.ErrDatabase, cfg.ID, err)
	}
	return &cfg, nil
}
