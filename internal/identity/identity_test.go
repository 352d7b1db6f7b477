package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

func TestAcquireMintsAndReuses(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir, false)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !first.Fresh {
		t.Error("first acquire should mint a fresh id")
	}
	if first.Slot != 0 {
		t.Errorf("slot = %d, want 0", first.Slot)
	}
	id := first.ID
	first.Release()

	second, err := Acquire(dir, false)
	if err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}
	defer second.Release()
	if second.Fresh {
		t.Error("second acquire should reuse the stored id")
	}
	if second.ID != id {
		t.Errorf("id changed across restarts: %s -> %s", id, second.ID)
	}
}

func TestStrictModeRefusesSecondInstance(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir, false)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer first.Release()

	if _, err := Acquire(dir, false); !errors.Is(err, ErrIdentityHeld) {
		t.Fatalf("second strict acquire: got %v, want ErrIdentityHeld", err)
	}
}

func TestMultiModeProbesSlots(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir, true)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer first.Release()

	second, err := Acquire(dir, true)
	if err != nil {
		t.Fatalf("multi acquire: %v", err)
	}
	defer second.Release()
	if second.Slot != 1 {
		t.Errorf("slot = %d, want 1", second.Slot)
	}
	if second.ID == first.ID {
		t.Error("slots must have distinct ids")
	}

	third, err := Acquire(dir, true)
	if err != nil {
		t.Fatalf("third acquire: %v", err)
	}
	defer third.Release()
	if third.Slot != 2 {
		t.Errorf("slot = %d, want 2", third.Slot)
	}
}

func TestCorruptIdentityFileIsReplaced(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, idFileName)
	if err := os.WriteFile(path, []byte("not-a-uuid\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	id, err := Acquire(dir, false)
	if err != nil {
		t.Fatalf("Acquire over corrupt file: %v", err)
	}
	defer id.Release()
	if !id.Fresh {
		t.Error("corrupt file should yield a freshly minted id")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(raw)); got != id.ID.String() {
		t.Errorf("rewritten identity file holds %q, want %s", got, id.ID)
	}
}

func TestDisplayNameIsDeterministic(t *testing.T) {
	id := uuid.New()
	if DisplayName(id) != DisplayName(id) {
		t.Error("display name not stable for one id")
	}
	name := DisplayName(uuid.MustParse("00000000-0000-0000-0000-000000000000"))
	if name != fmt.Sprintf("%s-%s-00", nameAdjectives[0], nameNouns[0]) {
		t.Errorf("zero uuid name = %q", name)
	}
}

// fakeRegistry drives Register without a database.
type fakeRegistry struct {
	store.WorkerStore
	rows     map[uuid.UUID]int
	inserted int
}

func (f *fakeRegistry) IncrRestartCount(_ context.Context, id uuid.UUID, _ string) (int, error) {
	if n, ok := f.rows[id]; ok {
		f.rows[id] = n + 1
		return n + 1, nil
	}
	return 0, fmt.Errorf("%w: worker %s", store.ErrNotFound, id)
}

func (f *fakeRegistry) InsertWorker(_ context.Context, id uuid.UUID, _, _, _ string, restartCount int) error {
	f.rows[id] = restartCount
	f.inserted++
	return nil
}

func TestRegister(t *testing.T) {
	reg := &fakeRegistry{rows: make(map[uuid.UUID]int)}
	id := &Identity{ID: uuid.New(), DisplayName: "calm-otter-01", Fresh: true}

	count, err := Register(context.Background(), reg, id, "host1", "v1")
	if err != nil {
		t.Fatalf("Register fresh: %v", err)
	}
	if count != 1 || reg.inserted != 1 {
		t.Fatalf("fresh register: count=%d inserted=%d", count, reg.inserted)
	}

	// Reboot with the same identity bumps the restart count.
	id.Fresh = false
	count, err = Register(context.Background(), reg, id, "host1", "v2")
	if err != nil {
		t.Fatalf("Register reused: %v", err)
	}
	if count != 2 {
		t.Fatalf("restart count = %d, want 2", count)
	}

	// A reused id whose row vanished (wiped database) is replaced, not
	// resurrected: a new id is minted, registered and written back to the
	// identity file.
	dir := t.TempDir()
	path := filepath.Join(dir, idFileName)
	stale := uuid.New()
	if err := os.WriteFile(path, []byte(stale.String()+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	wiped := &Identity{ID: stale, DisplayName: DisplayName(stale), Fresh: false, path: path}
	count, err = Register(context.Background(), reg, wiped, "host1", "v2")
	if err != nil {
		t.Fatalf("Register after wipe: %v", err)
	}
	if count != 1 || reg.inserted != 2 {
		t.Fatalf("wipe register: count=%d inserted=%d", count, reg.inserted)
	}
	if wiped.ID == stale {
		t.Error("stale id was reused instead of replaced")
	}
	if wiped.DisplayName != DisplayName(wiped.ID) {
		t.Error("display name not derived from the new id")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(raw)); got != wiped.ID.String() {
		t.Errorf("identity file holds %q, want %s", got, wiped.ID)
	}
}
