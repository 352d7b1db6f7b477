package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

// schedulerLeaderLockKey is the well-known advisory lock key for scheduler
// leader election. All nodes contend for the same key; the session holding it
// is the leader until its connection drops.
const schedulerLeaderLockKey = 134037

// PGStore implements store.Store backed by Postgres.
type PGStore struct {
	db *sql.DB

	// leaderConn pins the advisory leader lock to one pooled connection.
	// Guarded by mu; nil while this node is not leader.
	mu         sync.Mutex
	leaderConn *sql.Conn
}

var _ store.Store = (*PGStore)(nil)

// New opens a connection pool and runs embedded migrations.
func New(dsn string) (*PGStore, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrDatabase, err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &PGStore{db: db}, nil
}

// NewWithDB wraps an existing pool without running migrations. Used by tests.
func NewWithDB(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Close releases the leader connection (dropping the advisory lock) and the pool.
func (s *PGStore) Close() error {
	s.mu.Lock()
	if s.leaderConn != nil {
		s.leaderConn.Close()
		s.leaderConn = nil
	}
	s.mu.Unlock()
	return s.db.Close()
}

// HealthCheck verifies the database is reachable.
func (s *PGStore) HealthCheck(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("%w: %v", store.ErrDatabase, err)
	}
	return nil
}

// dbErr classifies a driver error into the store taxonomy. Unique violations
// become ErrConflict, everything else ErrDatabase.
func dbErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
	}
	return fmt.Errorf("%w: %v", store.ErrDatabase, err)
}
