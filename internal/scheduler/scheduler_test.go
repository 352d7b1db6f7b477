package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

// fakeStore records materialized runs in memory with the same (job, time)
// idempotency key as the real store.
type fakeStore struct {
	mu       sync.Mutex
	leader   bool
	jobs     []store.JobSpec
	inserted map[string]bool
	listErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{leader: true, inserted: make(map[string]bool)}
}

func (f *fakeStore) AmILeader(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leader, nil
}

func (f *fakeStore) ListEnabledCronJobs(context.Context) ([]store.JobSpec, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs, f.listErr
}

func (f *fakeStore) InsertJobRunIfMissing(_ context.Context, jobID uuid.UUID, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%s@%s", jobID, at.UTC().Format(time.RFC3339))
	if f.inserted[key] {
		return false, nil
	}
	f.inserted[key] = true
	return true, nil
}

func (f *fakeStore) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserted)
}

func cronJob(expr string, policy store.MisfirePolicy) store.JobSpec {
	return store.JobSpec{
		ID:            uuid.New(),
		Name:          "job-" + expr,
		ScheduleCron:  &expr,
		Enabled:       true,
		RunnerCfg:     store.RunnerConfig{Type: store.RunnerShell, Command: "true"},
		MisfirePolicy: policy,
	}
}

func TestTickMaterializesWindow(t *testing.T) {
	fs := newFakeStore()
	fs.jobs = []store.JobSpec{cronJob("* * * * *", store.MisfirePolicy{Kind: store.MisfireSkip})}
	s := New(fs, Config{Window: time.Minute})

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := s.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	// Minute boundary: 12:00 and 12:01 both fall in the inclusive window.
	if got := fs.runCount(); got != 2 {
		t.Fatalf("materialized %d runs, want 2", got)
	}
}

func TestTickIsIdempotent(t *testing.T) {
	fs := newFakeStore()
	fs.jobs = []store.JobSpec{cronJob("* * * * *", store.MisfirePolicy{Kind: store.MisfireSkip})}
	s := New(fs, Config{Window: time.Minute})

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := s.Tick(context.Background(), now); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
	}
	if got := fs.runCount(); got != 2 {
		t.Fatalf("materialized %d runs after repeated ticks, want 2", got)
	}
}

func TestNonLeaderDoesNothing(t *testing.T) {
	fs := newFakeStore()
	fs.leader = false
	fs.jobs = []store.JobSpec{cronJob("* * * * *", store.MisfirePolicy{Kind: store.MisfireSkip})}
	s := New(fs, Config{Window: time.Minute})

	if err := s.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := fs.runCount(); got != 0 {
		t.Fatalf("non-leader materialized %d runs", got)
	}
}

func TestBadScheduleSkipsJobOnly(t *testing.T) {
	fs := newFakeStore()
	bad := "NOT A CRON"
	fs.jobs = []store.JobSpec{
		{ID: uuid.New(), Name: "bad", ScheduleCron: &bad, Enabled: true},
		cronJob("* * * * *", store.MisfirePolicy{Kind: store.MisfireSkip}),
	}
	s := New(fs, Config{Window: time.Minute})

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := s.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := fs.runCount(); got != 2 {
		t.Fatalf("good job materialized %d runs, want 2", got)
	}
}

func TestCatchUpRunsOncePerLeadership(t *testing.T) {
	fs := newFakeStore()
	fs.jobs = []store.JobSpec{cronJob("0 * * * *", store.MisfirePolicy{Kind: store.MisfireRunAll})}
	s := New(fs, Config{Window: time.Minute, CatchUp: true, CatchUpLookback: 3 * time.Hour})

	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	if err := s.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	// run_all over [-3h, now): 10:00, 11:00, 12:00. Nothing due in the
	// forward window (next hourly fire is 13:00).
	if got := fs.runCount(); got != 3 {
		t.Fatalf("catch-up materialized %d runs, want 3", got)
	}

	// Second tick must not replay the catch-up pass.
	if err := s.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := fs.runCount(); got != 3 {
		t.Fatalf("catch-up replayed: %d runs", got)
	}

	// Losing and regaining leadership re-arms it.
	fs.mu.Lock()
	fs.leader = false
	fs.mu.Unlock()
	s.Tick(context.Background(), now)
	if s.caughtUp {
		t.Fatal("caughtUp not reset on leadership loss")
	}
}

func TestCatchUpSkipPolicyMaterializesNothing(t *testing.T) {
	fs := newFakeStore()
	fs.jobs = []store.JobSpec{cronJob("0 * * * *", store.MisfirePolicy{Kind: store.MisfireSkip})}
	s := New(fs, Config{Window: time.Minute, CatchUp: true, CatchUpLookback: 3 * time.Hour})

	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	if err := s.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := fs.runCount(); got != 0 {
		t.Fatalf("skip policy materialized %d runs", got)
	}
}
