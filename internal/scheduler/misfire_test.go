package scheduler

import (
	"testing"
	"time"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

func TestApplyMisfirePolicy(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	missed := []time.Time{
		now.Add(-30 * time.Minute),
		now.Add(-20 * time.Minute),
		now.Add(-10 * time.Minute),
	}

	t.Run("skip drops everything", func(t *testing.T) {
		got := ApplyMisfirePolicy(store.MisfirePolicy{Kind: store.MisfireSkip}, missed, now)
		if len(got) != 0 {
			t.Fatalf("got %v, want none", got)
		}
	})

	t.Run("run_all keeps everything", func(t *testing.T) {
		got := ApplyMisfirePolicy(store.MisfirePolicy{Kind: store.MisfireRunAll}, missed, now)
		if len(got) != 3 {
			t.Fatalf("got %d times, want 3", len(got))
		}
	})

	t.Run("coalesce keeps only the latest", func(t *testing.T) {
		got := ApplyMisfirePolicy(store.MisfirePolicy{Kind: store.MisfireCoalesce}, missed, now)
		if len(got) != 1 || !got[0].Equal(missed[2]) {
			t.Fatalf("got %v, want [%v]", got, missed[2])
		}
	})

	t.Run("run_immediately schedules for now", func(t *testing.T) {
		got := ApplyMisfirePolicy(store.MisfirePolicy{Kind: store.MisfireRunImmediately}, missed, now)
		if len(got) != 1 || !got[0].Equal(now) {
			t.Fatalf("got %v, want [%v]", got, now)
		}
	})

	t.Run("run_if_late_within filters by age", func(t *testing.T) {
		p := store.MisfirePolicy{Kind: store.MisfireRunIfLateWithin, LateWindow: 15 * time.Minute}
		got := ApplyMisfirePolicy(p, missed, now)
		if len(got) != 1 || !got[0].Equal(missed[2]) {
			t.Fatalf("got %v, want [%v]", got, missed[2])
		}

		// Window boundary is inclusive.
		p.LateWindow = 20 * time.Minute
		got = ApplyMisfirePolicy(p, missed, now)
		if len(got) != 2 {
			t.Fatalf("got %v, want the two newest", got)
		}
	})

	t.Run("no missed times", func(t *testing.T) {
		got := ApplyMisfirePolicy(store.MisfirePolicy{Kind: store.MisfireRunAll}, nil, now)
		if got != nil {
			t.Fatalf("got %v, want nil", got)
		}
	})
}
