package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParseMisfirePolicy(t *testing.T) {
	cases := []struct {
		in   string
		want MisfirePolicy
	}{
		{"skip", MisfirePolicy{Kind: MisfireSkip}},
		{"run_immediately", MisfirePolicy{Kind: MisfireRunImmediately}},
		{"coalesce", MisfirePolicy{Kind: MisfireCoalesce}},
		{"run_all", MisfirePolicy{Kind: MisfireRunAll}},
		{"run_if_late_within(300)", MisfirePolicy{Kind: MisfireRunIfLateWithin, LateWindow: 5 * time.Minute}},
		{"run_if_late_within(0)", MisfirePolicy{Kind: MisfireRunIfLateWithin}},
	}
	for _, tc := range cases {
		got, err := ParseMisfirePolicy(tc.in)
		if err != nil {
			t.Fatalf("ParseMisfirePolicy(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseMisfirePolicy(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
		if got.String() != tc.in {
			t.Errorf("String() = %q, want %q", got.String(), tc.in)
		}
	}
}

func TestParseMisfirePolicyRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "sometimes", "run_if_late_within()", "run_if_late_within(-5)", "run_if_late_within(abc)"} {
		if _, err := ParseMisfirePolicy(in); err == nil {
			t.Errorf("ParseMisfirePolicy(%q) succeeded, want error", in)
		}
	}
}

func TestRunnerConfigValidate(t *testing.T) {
	valid := []RunnerConfig{
		{Type: RunnerShell, Command: "echo hi"},
		{Type: RunnerHTTP, Method: "GET", URL: "https://example.com/ping"},
		{Type: RunnerPgSQL, ConfigID: uuid.New(), Query: "SELECT 1"},
		{Type: RunnerMySQL, ConfigID: uuid.New(), Query: "SELECT 1"},
		{Type: RunnerPython, Module: "tasks", ClassName: "Cleanup"},
		{Type: RunnerNode, Module: "tasks", FunctionName: "cleanup"},
	}
	for _, rc := range valid {
		if err := rc.Validate(); err != nil {
			t.Errorf("Validate(%s) = %v, want nil", rc.Type, err)
		}
	}

	invalid := []RunnerConfig{
		{Type: "ftp"},
		{Type: RunnerShell},
		{Type: RunnerHTTP, Method: "GET"},
		{Type: RunnerHTTP, Method: "GET", URL: "not a url"},
		{Type: RunnerPgSQL, Query: "SELECT 1"},
		{Type: RunnerMySQL, ConfigID: uuid.New()},
		{Type: RunnerPython, Module: "tasks"},
		{Type: RunnerNode, FunctionName: "cleanup"},
	}
	for _, rc := range invalid {
		if err := rc.Validate(); err == nil {
			t.Errorf("Validate(%+v) succeeded, want error", rc)
		}
	}
}

func TestValidateCron(t *testing.T) {
	for _, expr := range []string{"* * * * *", "0 * * * *", "0 0 * * Mon", "*/5 2 1 * *"} {
		if err := ValidateCron(expr); err != nil {
			t.Errorf("ValidateCron(%q) = %v, want nil", expr, err)
		}
	}
	if err := ValidateCron("NOT A CRON"); err == nil {
		t.Error("ValidateCron accepted garbage")
	}
}

func TestRunStateTerminal(t *testing.T) {
	terminal := map[RunState]bool{
		RunQueued:    false,
		RunRunning:   false,
		RunSucceeded: true,
		RunFailed:    true,
		RunCancelled: true,
	}
	for state, want := range terminal {
		if got := state.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %t, want %t", state, got, want)
		}
	}
	if _, err := ParseRunState("exploded"); err == nil {
		t.Error("ParseRunState accepted unknown state")
	}
}
