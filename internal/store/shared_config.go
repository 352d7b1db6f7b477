package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SharedConfig holds connection details referenced by pgsql/mysql runners, so
// several jobs can share one database target. Deletion is soft: a snapshot
// built against a deleted config fails the claim instead of silently using
// stale credentials.
type SharedConfig struct {
	ID        uuid.UUID        `json:"id"`
	Name      string           `json:"name"`
	Meta      SharedConfigMeta `json:"meta"`
	CreatedAt time.Time        `json:"createdAt"`
	DeletedAt *time.Time       `json:"deletedAt,omitempty"`
}

// SharedConfigMeta is the per-type payload, discriminated by Type.
type SharedConfigMeta struct {
	Type string `json:"type"` // pgsql, mysql or shell

	// pgsql / mysql
	Host           string `json:"host,omitempty"`
	Port           int    `json:"port,omitempty"`
	Username       string `json:"username,omitempty"`
	PasswordSecret string `json:"passwordSecret,omitempty"`
	Database       string `json:"database,omitempty"`

	// shell
	Env map[string]string `json:"env,omitempty"`
}

// Validate checks the meta payload for its type.
func (m *SharedConfigMeta) Validate() error {
	switch m.Type {
	case RunnerPgSQL, RunnerMySQL:
		if m.Host == "" || m.Port <= 0 || m.Database == "" {
			return fmt.Errorf("%w: %s shared config requires host, port and database", ErrInvalidInput, m.Type)
		}
	case RunnerShell:
		// env may be empty
	default:
		return fmt.Errorf("%w: unknown shared config type: %q", ErrInvalidInput, m.Type)
	}
	return nil
}
