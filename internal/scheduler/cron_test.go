package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

func mustUTC(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts.UTC()
}

func TestFireTimesEveryMinuteInclusiveWindow(t *testing.T) {
	from := mustUTC(t, "2025-06-01T12:00:00Z")
	to := from.Add(5 * time.Minute)

	fires, err := FireTimesBetween("* * * * *", from, to)
	if err != nil {
		t.Fatalf("FireTimesBetween: %v", err)
	}
	// Both endpoints land on minute boundaries, so 12:00 through 12:05.
	if len(fires) != 6 {
		t.Fatalf("got %d fire times, want 6: %v", len(fires), fires)
	}
	for i, f := range fires {
		want := from.Add(time.Duration(i) * time.Minute)
		if !f.Equal(want) {
			t.Errorf("fires[%d] = %v, want %v", i, f, want)
		}
	}
}

func TestFireTimesHourlyIncludesBothEndpoints(t *testing.T) {
	from := mustUTC(t, "2025-06-01T10:00:00Z")
	to := mustUTC(t, "2025-06-01T11:00:00Z")

	fires, err := FireTimesBetween("0 * * * *", from, to)
	if err != nil {
		t.Fatalf("FireTimesBetween: %v", err)
	}
	if len(fires) != 2 || !fires[0].Equal(from) || !fires[1].Equal(to) {
		t.Fatalf("got %v, want [%v %v]", fires, from, to)
	}
}

func TestFireTimesWeeklyAcrossMonthBoundary(t *testing.T) {
	// Thursday evening through early Monday: exactly one Monday midnight.
	from := mustUTC(t, "2025-01-30T23:00:00Z")
	to := mustUTC(t, "2025-02-03T01:00:00Z")

	fires, err := FireTimesBetween("0 0 * * Mon", from, to)
	if err != nil {
		t.Fatalf("FireTimesBetween: %v", err)
	}
	want := mustUTC(t, "2025-02-03T00:00:00Z")
	if len(fires) != 1 || !fires[0].Equal(want) {
		t.Fatalf("got %v, want [%v]", fires, want)
	}
}

func TestFireTimesSubSecondWindowTruncation(t *testing.T) {
	// Offsets inside a second collapse onto the same whole-second window.
	from := mustUTC(t, "2025-06-01T12:00:00Z").Add(300 * time.Millisecond)
	to := mustUTC(t, "2025-06-01T12:01:00Z").Add(700 * time.Millisecond)

	fires, err := FireTimesBetween("* * * * *", from, to)
	if err != nil {
		t.Fatalf("FireTimesBetween: %v", err)
	}
	if len(fires) != 2 {
		t.Fatalf("got %d fire times, want 2: %v", len(fires), fires)
	}
}

func TestFireTimesEmptyWindow(t *testing.T) {
	from := mustUTC(t, "2025-06-01T12:00:30Z")
	fires, err := FireTimesBetween("0 * * * *", from, from.Add(time.Second))
	if err != nil {
		t.Fatalf("FireTimesBetween: %v", err)
	}
	if len(fires) != 0 {
		t.Fatalf("got %v, want none", fires)
	}

	fires, err = FireTimesBetween("* * * * *", from, from.Add(-time.Minute))
	if err != nil {
		t.Fatalf("inverted window: %v", err)
	}
	if len(fires) != 0 {
		t.Fatalf("inverted window produced %v", fires)
	}
}

func TestFireTimesRejectsInvalidExpression(t *testing.T) {
	now := time.Now()
	_, err := FireTimesBetween("NOT A CRON", now, now.Add(time.Minute))
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
}
