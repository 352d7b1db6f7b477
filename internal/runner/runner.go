// Package runner executes frozen config snapshots. Every runner reports a
// unix-style exit code: 0 for success, anything else for failure. Errors are
// reserved for failures to even start the work.
package runner

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

// maxCapturedOutput bounds how much stdout/stderr/body is persisted per run.
const maxCapturedOutput = 64 * 1024

// Exec dispatches snapshots to the per-type runners.
type Exec struct {
	httpClient *http.Client
}

func New() *Exec {
	return &Exec{
		// Safety cap for http jobs with no timeout_sec of their own. Jobs
		// that set timeout_sec get a tighter deadline via the run context.
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Execute runs one snapshot to completion and returns its outcome.
func (e *Exec) Execute(ctx context.Context, snap *store.ExecutableConfigSnapshot) (store.CommandRunOutput, error) {
	ctx, cancel := withSnapshotTimeout(ctx, snap)
	defer cancel()

	switch snap.Meta.Type {
	case store.RunnerShell:
		return runShell(ctx, snap)
	case store.RunnerHTTP:
		return e.runHTTP(ctx, snap)
	case store.RunnerPgSQL, store.RunnerMySQL:
		return runSQL(ctx, snap)
	case store.RunnerPython:
		return runPython(ctx, snap)
	case store.RunnerNode:
		return runNode(ctx, snap)
	}
	return store.CommandRunOutput{}, fmt.Errorf("%w: unknown runner type: %q", store.ErrExecution, snap.Meta.Type)
}

func withSnapshotTimeout(ctx context.Context, snap *store.ExecutableConfigSnapshot) (context.Context, context.CancelFunc) {
	if snap.Meta.TimeoutSec != nil && *snap.Meta.TimeoutSec > 0 {
		return context.WithTimeout(ctx, time.Duration(*snap.Meta.TimeoutSec)*time.Second)
	}
	return context.WithCancel(ctx)
}

func truncate(b []byte) *string {
	if len(b) == 0 {
		return nil
	}
	if len(b) > maxCapturedOutput {
		b = b[:maxCapturedOutput]
	}
	s := string(b)
	return &s
}
