package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

// CreateSharedConfig validates and stores a reusable connection config.
func (s *PGStore) CreateSharedConfig(ctx context.Context, name string, meta store.SharedConfigMeta) (*store.SharedConfig, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: shared config name is required", store.ErrInvalidInput)
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("%w: encode meta: %v", store.ErrInvalidInput, err)
	}

	id := newRowID()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO shared_configs (id, name, meta) VALUES ($1, $2, $3)`,
		id, name, metaJSON)
	if err != nil {
		return nil, dbErr(err)
	}
	return s.GetSharedConfig(ctx, id)
}

// GetSharedConfig returns a live shared config by id.
func (s *PGStore) GetSharedConfig(ctx context.Context, id uuid.UUID) (*store.SharedConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, meta, created_at, deleted_at
		 FROM shared_configs WHERE id = $1 AND deleted_at IS NULL`, id)

	var cfg store.SharedConfig
	var metaJSON []byte
	err := row.Scan(&cfg.ID, &cfg.Name, &metaJSON, &cfg.CreatedAt, &cfg.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: shared config %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, dbErr(err)
	}
	if err := json.Unmarshal(metaJSON, &cfg.Meta); err != nil {
		return nil, fmt.Errorf("%w: shared config %s meta: %v", store.ErrDatabase, id, err)
	}
	return &cfg, nil
}

// ListSharedConfigs returns all live shared configs, newest first.
func (s *PGStore) ListSharedConfigs(ctx context.Context) ([]store.SharedConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, meta, created_at, deleted_at
		 FROM shared_configs WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var configs []store.SharedConfig
	for rows.Next() {
		var cfg store.SharedConfig
		var metaJSON []byte
		if err := rows.Scan(&cfg.ID, &cfg.Name, &metaJSON, &cfg.CreatedAt, &cfg.DeletedAt); err != nil {
			return nil, dbErr(err)
		}
		if err := json.Unmarshal(metaJSON, &cfg.Meta); err != nil {
			return nil, fmt.Errorf("%w: shared config %s meta: %v", store.ErrDatabase, cfg.ID, err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// DeleteSharedConfig soft-deletes a shared config. Jobs that still reference
// it will fail at claim time rather than run with removed credentials.
func (s *PGStore) DeleteSharedConfig(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE shared_configs SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return dbErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: shared config %s", store.ErrNotFound, id)
	}
	return nil
}
