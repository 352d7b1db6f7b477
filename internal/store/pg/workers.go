package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

// Heartbeat upserts the worker row and refreshes last_seen. Capacity, version
// and display name ride along so operators always see current values.
func (s *PGStore) Heartbeat(ctx context.Context, rec store.WorkerRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workers (id, display_name, hostname, last_seen, capacity, restart_count, version, active)
		 VALUES ($1, $2, $3, now(), $4, $5, $6, true)
		 ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			hostname = EXCLUDED.hostname,
			last_seen = now(),
			capacity = EXCLUDED.capacity,
			version = EXCLUDED.version,
			active = true`,
		rec.ID, rec.DisplayName, rec.Hostname, rec.Capacity, rec.RestartCount, rec.Version)
	if err != nil {
		return dbErr(err)
	}
	return nil
}

// ReclaimDeadWorkersJobs requeues running runs owned by workers whose last
// heartbeat is older than deadAfterSecs. Reclaimed runs lose their worker
// assignment and start time but keep their snapshot, so the next claimer
// re-executes the same frozen config.
func (s *PGStore) ReclaimDeadWorkersJobs(ctx context.Context, deadAfterSecs int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_runs
		 SET state = 'queued', worker_id = NULL, started_at = NULL
		 WHERE state = 'running'
		   AND worker_id IN (
			SELECT id FROM workers
			WHERE last_seen < now() - ($1::bigint || ' seconds')::interval
		   )`,
		deadAfterSecs)
	if err != nil {
		return 0, dbErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbErr(err)
	}
	return n, nil
}

// AmILeader attempts to take the scheduler advisory lock without blocking.
// The lock is session-scoped, so it is held on a dedicated pooled connection
// pinned for the life of the store. Once acquired, later calls only verify
// the pinned connection is still alive; losing it surrenders leadership and
// the next call contends again.
func (s *PGStore) AmILeader(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.leaderConn != nil {
		if err := s.leaderConn.PingContext(ctx); err == nil {
			return true, nil
		}
		s.leaderConn.Close()
		s.leaderConn = nil
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return false, dbErr(err)
	}
	var got bool
	if err := conn.QueryRowContext(ctx,
		`SELECT pg_try_advisory_lock($1)`, schedulerLeaderLockKey).Scan(&got); err != nil {
		conn.Close()
		return false, dbErr(err)
	}
	if !got {
		conn.Close()
		return false, nil
	}
	s.leaderConn = conn
	return true, nil
}

// InsertWorker registers a node identity on first boot. Capacity is left to
// the column default; the first heartbeat reports the configured value.
func (s *PGStore) InsertWorker(ctx context.Context, id uuid.UUID, displayName, hostname, version string, restartCount int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workers (id, display_name, hostname, last_seen, restart_count, version, active)
		 VALUES ($1, $2, $3, now(), $4, $5, true)`,
		id, displayName, hostname, restartCount, version)
	if err != nil {
		return dbErr(err)
	}
	return nil
}

// LookupWorker fetches a worker row by id.
func (s *PGStore) LookupWorker(ctx context.Context, id uuid.UUID) (*store.WorkerRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workerColumns+` FROM workers WHERE id = $1`, id)
	w, err := scanWorkerRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: worker %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, dbErr(err)
	}
	return w, nil
}

// IncrRestartCount bumps restart_count on reboot of a known identity and
// returns the new count.
func (s *PGStore) IncrRestartCount(ctx context.Context, id uuid.UUID, version string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`UPDATE workers
		 SET restart_count = restart_count + 1, version = $2, last_seen = now(), active = true
		 WHERE id = $1
		 RETURNING restart_count`,
		id, version).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: worker %s", store.ErrNotFound, id)
	}
	if err != nil {
		return 0, dbErr(err)
	}
	return count, nil
}

// ListWorkers returns all known worker identities, most recently seen first.
func (s *PGStore) ListWorkers(ctx context.Context) ([]store.WorkerRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workerColumns+` FROM workers ORDER BY last_seen DESC`)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var workers []store.WorkerRecord
	for rows.Next() {
		w, err := scanWorkerRow(rows)
		if err != nil {
			return nil, dbErr(err)
		}
		workers = append(workers, *w)
	}
	return workers, rows.Err()
}
