package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

type finished struct {
	runID       uuid.UUID
	state       store.RunState
	exitCode    *int
	errorOutput *string
}

type fakeWorkerStore struct {
	mu         sync.Mutex
	queued     []store.JobRun
	claimLimit []int
	// beatFails makes the next N heartbeats return an error.
	beatFails  int
	heartbeats int
	reclaims   int
	finishes   []finished
}

func (f *fakeWorkerStore) ClaimJobRuns(_ context.Context, workerID uuid.UUID, limit int) ([]store.JobRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimLimit = append(f.claimLimit, limit)
	n := limit
	if n > len(f.queued) {
		n = len(f.queued)
	}
	claimed := f.queued[:n]
	f.queued = f.queued[n:]
	for i := range claimed {
		claimed[i].State = store.RunRunning
		claimed[i].WorkerID = &workerID
	}
	return claimed, nil
}

func (f *fakeWorkerStore) UpdateJobRunState(_ context.Context, runID uuid.UUID, state store.RunState, exitCode *int, _, errorOutput *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finishes = append(f.finishes, finished{runID, state, exitCode, errorOutput})
	return nil
}

func (f *fakeWorkerStore) Heartbeat(context.Context, store.WorkerRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	if f.beatFails > 0 {
		f.beatFails--
		return errors.New("connection reset")
	}
	return nil
}

func (f *fakeWorkerStore) ReclaimDeadWorkersJobs(context.Context, int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reclaims++
	return 0, nil
}

// scriptedRunner maps run snapshot commands to canned outcomes.
type scriptedRunner struct {
	block chan struct{} // when set, Execute waits until closed
	run   func(snap *store.ExecutableConfigSnapshot) (store.CommandRunOutput, error)
}

func (r *scriptedRunner) Execute(_ context.Context, snap *store.ExecutableConfigSnapshot) (store.CommandRunOutput, error) {
	if r.block != nil {
		<-r.block
	}
	if r.run != nil {
		return r.run(snap)
	}
	return store.CommandRunOutput{}, nil
}

func queuedRun(command string) store.JobRun {
	return store.JobRun{
		ID:           uuid.New(),
		JobID:        uuid.New(),
		ScheduledFor: time.Now().UTC(),
		State:        store.RunQueued,
		Snapshot: &store.ExecutableConfigSnapshot{
			JobName: "test",
			Meta:    store.SnapshotMeta{Type: store.RunnerShell, Command: command},
		},
	}
}

func newTestWorker(fs *fakeWorkerStore, r Runner, capacity int) *Worker {
	return New(fs, r, Config{
		WorkerID:          uuid.New(),
		DisplayName:       "test-worker",
		Capacity:          capacity,
		HeartbeatInterval: time.Hour,
	})
}

func TestOutcomeMapping(t *testing.T) {
	fs := &fakeWorkerStore{}
	ok := queuedRun("ok")
	bad := queuedRun("bad")
	broken := queuedRun("broken")
	fs.queued = []store.JobRun{ok, bad, broken}

	r := &scriptedRunner{run: func(snap *store.ExecutableConfigSnapshot) (store.CommandRunOutput, error) {
		switch snap.Meta.Command {
		case "ok":
			return store.CommandRunOutput{ExitCode: 0}, nil
		case "bad":
			return store.CommandRunOutput{ExitCode: 2}, nil
		default:
			return store.CommandRunOutput{}, errors.New("binary not found")
		}
	}}

	w := newTestWorker(fs, r, 4)
	w.Tick(context.Background(), time.Now())
	w.wg.Wait()

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.finishes) != 3 {
		t.Fatalf("recorded %d outcomes, want 3", len(fs.finishes))
	}
	byID := make(map[uuid.UUID]finished)
	for _, f := range fs.finishes {
		byID[f.runID] = f
	}

	if f := byID[ok.ID]; f.state != store.RunSucceeded || f.exitCode == nil || *f.exitCode != 0 {
		t.Errorf("exit 0: got %+v, want succeeded/0", f)
	}
	if f := byID[bad.ID]; f.state != store.RunFailed || f.exitCode == nil || *f.exitCode != 2 {
		t.Errorf("exit 2: got %+v, want failed/2", f)
	}
	if f := byID[broken.ID]; f.state != store.RunFailed || f.exitCode != nil || f.errorOutput == nil {
		t.Errorf("launch error: got %+v, want failed with nil exit code and an error message", f)
	}
}

func TestMissingSnapshotFailsRun(t *testing.T) {
	fs := &fakeWorkerStore{}
	run := queuedRun("ok")
	run.Snapshot = nil
	fs.queued = []store.JobRun{run}

	w := newTestWorker(fs, &scriptedRunner{}, 1)
	w.Tick(context.Background(), time.Now())
	w.wg.Wait()

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.finishes) != 1 {
		t.Fatalf("recorded %d outcomes, want 1", len(fs.finishes))
	}
	f := fs.finishes[0]
	if f.state != store.RunFailed || f.exitCode != nil {
		t.Fatalf("got %+v, want failed with nil exit code", f)
	}
	if f.errorOutput == nil || *f.errorOutput != "No config snapshot found" {
		t.Fatalf("errorOutput = %v, want snapshot message", f.errorOutput)
	}
}

func TestClaimRespectsCapacity(t *testing.T) {
	fs := &fakeWorkerStore{}
	fs.queued = []store.JobRun{queuedRun("a"), queuedRun("b"), queuedRun("c")}

	block := make(chan struct{})
	w := newTestWorker(fs, &scriptedRunner{block: block}, 2)

	now := time.Now()
	w.Tick(context.Background(), now)

	// Both slots are occupied by blocked runs; the next tick must not claim.
	waitFor(t, func() bool { return w.inFlight.Load() == 2 })
	w.Tick(context.Background(), now)

	fs.mu.Lock()
	limits := append([]int(nil), fs.claimLimit...)
	fs.mu.Unlock()
	if len(limits) != 1 || limits[0] != 2 {
		t.Fatalf("claim limits = %v, want [2]", limits)
	}

	close(block)
	w.wg.Wait()

	// Freed capacity picks up the remaining run.
	w.Tick(context.Background(), now)
	w.wg.Wait()
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.finishes) != 3 {
		t.Fatalf("finished %d runs, want 3", len(fs.finishes))
	}
}

func TestHeartbeatCadence(t *testing.T) {
	fs := &fakeWorkerStore{}
	w := New(fs, &scriptedRunner{}, Config{
		WorkerID:          uuid.New(),
		Capacity:          1,
		HeartbeatInterval: 2 * time.Second,
	})

	start := time.Now()
	w.Tick(context.Background(), start)
	w.Tick(context.Background(), start.Add(200*time.Millisecond))
	w.Tick(context.Background(), start.Add(400*time.Millisecond))
	w.Tick(context.Background(), start.Add(2*time.Second))

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.heartbeats != 2 {
		t.Fatalf("heartbeats = %d, want 2", fs.heartbeats)
	}
	// Reclaim rides the heartbeat cadence.
	if fs.reclaims != 2 {
		t.Fatalf("reclaims = %d, want 2", fs.reclaims)
	}
}

func TestHeartbeatRetriesAfterFailure(t *testing.T) {
	fs := &fakeWorkerStore{beatFails: 1}
	w := New(fs, &scriptedRunner{}, Config{
		WorkerID:          uuid.New(),
		Capacity:          1,
		HeartbeatInterval: 2 * time.Second,
	})

	start := time.Now()
	w.Tick(context.Background(), start)                           // fails
	w.Tick(context.Background(), start.Add(200*time.Millisecond)) // retried, succeeds
	w.Tick(context.Background(), start.Add(400*time.Millisecond)) // cadence satisfied, quiet

	fs.mu.Lock()
	defer fs.mu.Unlock()
	// A failed heartbeat must be retried on the very next tick, not after a
	// full heartbeat interval.
	if fs.heartbeats != 2 {
		t.Fatalf("heartbeats = %d, want 2", fs.heartbeats)
	}
	// Reclaim only follows a heartbeat that actually landed.
	if fs.reclaims != 1 {
		t.Fatalf("reclaims = %d, want 1", fs.reclaims)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
