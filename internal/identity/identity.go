// Package identity gives each node a durable worker identity: a UUID stored
// next to the node's data, protected by an exclusive file lock so two
// processes can never run as the same worker.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

const (
	idFileName = "worker-id"
	// maxSlots bounds the probe in multi-identity mode: worker-id.1 .. worker-id.99.
	maxSlots = 99
)

// ErrIdentityHeld means the identity file is locked by a live process and
// multi-identity mode is off.
var ErrIdentityHeld = errors.New("worker identity is held by another running process")

// Identity is an acquired node identity. The file lock is held until Release.
type Identity struct {
	ID          uuid.UUID
	DisplayName string
	// Slot is 0 for the primary identity, 1..99 in multi-identity mode.
	Slot int
	// Fresh is true when the id was minted this boot rather than read back.
	Fresh bool

	// path is the identity file backing this id, so a stale id can be
	// rewritten in place at registration time.
	path string
	lock *flock.Flock
}

// Release drops the file lock. The identity file itself stays for the next boot.
func (id *Identity) Release() {
	if id.lock != nil {
		id.lock.Unlock()
		id.lock = nil
	}
}

// Acquire locks and loads the node identity under dataDir. When the primary
// identity is held by a live process: in strict mode (allowMulti=false) it
// fails so the operator notices the double start; with allowMulti it probes
// numbered slots until a free one is found, minting a fresh id per new slot.
func Acquire(dataDir string, allowMulti bool) (*Identity, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	id, err := tryAcquireSlot(dataDir, 0)
	if err == nil || !errors.Is(err, ErrIdentityHeld) {
		return id, err
	}
	if !allowMulti {
		return nil, fmt.Errorf("%w: %s (set ALLOW_MULTI_ID=true to run extra workers on this host)",
			ErrIdentityHeld, filepath.Join(dataDir, idFileName))
	}
	for slot := 1; slot <= maxSlots; slot++ {
		id, err := tryAcquireSlot(dataDir, slot)
		if err == nil {
			slog.Info("primary identity held, using extra slot", "slot", slot, "id", id.ID)
			return id, nil
		}
		if !errors.Is(err, ErrIdentityHeld) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: all %d identity slots in use", ErrIdentityHeld, maxSlots)
}

func tryAcquireSlot(dataDir string, slot int) (*Identity, error) {
	path := filepath.Join(dataDir, idFileName)
	if slot > 0 {
		path = fmt.Sprintf("%s.%d", path, slot)
	}

	lk := flock.New(path + ".lock")
	locked, err := lk.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrIdentityHeld, path)
	}

	id, fresh, err := loadOrMint(path)
	if err != nil {
		lk.Unlock()
		return nil, err
	}
	return &Identity{
		ID:          id,
		DisplayName: DisplayName(id),
		Slot:        slot,
		Fresh:       fresh,
		path:        path,
		lock:        lk,
	}, nil
}

func loadOrMint(path string) (uuid.UUID, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return uuid.Nil, false, fmt.Errorf("read identity file %s: %w", path, err)
	}
	if err == nil {
		id, perr := uuid.Parse(strings.TrimSpace(string(raw)))
		if perr == nil {
			return id, false, nil
		}
		// A file we cannot parse is treated like no file at all.
		slog.Warn("identity file is corrupt, minting a new identity", "path", path, "error", perr)
	}
	id := uuid.New()
	if werr := os.WriteFile(path, []byte(id.String()+"\n"), 0o644); werr != nil {
		return uuid.Nil, false, fmt.Errorf("write identity file %s: %w", path, werr)
	}
	return id, true, nil
}

// Register reconciles the identity against the worker table and returns the
// restart count: a fresh id inserts a row, a reused id bumps restart_count.
// A reused id whose row was lost (wiped database) is replaced with a freshly
// minted one, persisted to the identity file, and registered as new.
func Register(ctx context.Context, st store.WorkerStore, id *Identity, hostname, version string) (int, error) {
	if !id.Fresh {
		count, err := st.IncrRestartCount(ctx, id.ID, version)
		if err == nil {
			slog.Info("worker identity restored", "id", id.ID, "name", id.DisplayName, "restarts", count)
			return count, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return 0, err
		}
		fresh := uuid.New()
		slog.Warn("stored identity unknown to the database, minting a new one",
			"stale", id.ID, "id", fresh)
		if id.path != "" {
			if werr := os.WriteFile(id.path, []byte(fresh.String()+"\n"), 0o644); werr != nil {
				return 0, fmt.Errorf("write identity file %s: %w", id.path, werr)
			}
		}
		id.ID = fresh
		id.DisplayName = DisplayName(fresh)
		id.Fresh = true
	}
	if err := st.InsertWorker(ctx, id.ID, id.DisplayName, hostname, version, 1); err != nil {
		return 0, err
	}
	slog.Info("worker identity registered", "id", id.ID, "name", id.DisplayName)
	return 1, nil
}
