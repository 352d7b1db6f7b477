package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nextlevelbuilder/dromio/internal/store"
	"github.com/nextlevelbuilder/dromio/internal/tracing"
)

// Store is the slice of the backing store the worker needs.
type Store interface {
	store.RunStore

	Heartbeat(ctx context.Context, rec store.WorkerRecord) error
	ReclaimDeadWorkersJobs(ctx context.Context, deadAfterSecs int) (int64, error)
}

// Runner executes one frozen config snapshot to completion.
type Runner interface {
	Execute(ctx context.Context, snap *store.ExecutableConfigSnapshot) (store.CommandRunOutput, error)
}

// Config tunes the worker loop. Identity fields come from the durable
// node identity, not from flags.
type Config struct {
	WorkerID     uuid.UUID
	DisplayName  string
	Hostname     string
	Capacity     int
	RestartCount int
	Version      string

	TickInterval      time.Duration
	HeartbeatInterval time.Duration
	// DeadAfterSecs is how stale a peer's heartbeat must be before its running
	// runs are reclaimed.
	DeadAfterSecs int
}

func (c *Config) withDefaults() {
	if c.Capacity <= 0 {
		c.Capacity = 4
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 200 * time.Millisecond
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 2 * time.Second
	}
	if c.DeadAfterSecs <= 0 {
		c.DeadAfterSecs = 30
	}
}

// Worker claims due runs and executes them on a bounded pool of goroutines.
type Worker struct {
	store  Store
	runner Runner
	cfg    Config
	log    *slog.Logger

	inFlight atomic.Int64
	wg       sync.WaitGroup

	lastBeat time.Time
}

func New(st Store, r Runner, cfg Config) *Worker {
	cfg.withDefaults()
	return &Worker{
		store:  st,
		runner: r,
		cfg:    cfg,
		log:    slog.With("component", "worker", "worker", cfg.DisplayName),
	}
}

// Run ticks until ctx is cancelled, then waits for in-flight runs to finish.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker loop started",
		"capacity", w.cfg.Capacity, "tick", w.cfg.TickInterval, "heartbeat", w.cfg.HeartbeatInterval)

	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	for {
		w.Tick(ctx, time.Now())
		select {
		case <-ctx.Done():
			w.log.Info("worker loop stopping, draining in-flight runs", "inFlight", w.inFlight.Load())
			w.wg.Wait()
			w.log.Info("worker loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one worker pass: heartbeat and reclaim on the heartbeat cadence,
// then claim up to the free capacity and launch each claimed run.
func (w *Worker) Tick(ctx context.Context, now time.Time) {
	if now.Sub(w.lastBeat) >= w.cfg.HeartbeatInterval {
		err := w.store.Heartbeat(ctx, store.WorkerRecord{
			ID:           w.cfg.WorkerID,
			DisplayName:  w.cfg.DisplayName,
			Hostname:     w.cfg.Hostname,
			Capacity:     w.cfg.Capacity,
			RestartCount: w.cfg.RestartCount,
			Version:      w.cfg.Version,
		})
		if err != nil {
			// lastBeat stays put so the very next tick retries.
			w.log.Error("heartbeat failed", "error", err)
		} else {
			w.lastBeat = now
			if n, err := w.store.ReclaimDeadWorkersJobs(ctx, w.cfg.DeadAfterSecs); err != nil {
				w.log.Error("reclaim failed", "error", err)
			} else if n > 0 {
				w.log.Warn("requeued runs from dead workers", "count", n)
			}
		}
	}

	free := w.cfg.Capacity - int(w.inFlight.Load())
	if free <= 0 {
		return
	}
	runs, err := w.store.ClaimJobRuns(ctx, w.cfg.WorkerID, free)
	if err != nil {
		w.log.Error("claim failed", "error", err)
		return
	}
	for _, run := range runs {
		run := run
		w.inFlight.Add(1)
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer w.inFlight.Add(-1)
			w.execute(ctx, run)
		}()
	}
}

// execute runs one claimed run and records its terminal state. Exit code 0 is
// success; any other exit code, a launch failure or a missing snapshot is a
// failure.
func (w *Worker) execute(ctx context.Context, run store.JobRun) {
	log := w.log.With("run", run.ID, "job", run.JobID)
	ctx, span := tracing.Tracer().Start(ctx, "worker.run")
	span.SetAttributes(
		attribute.String("run.id", run.ID.String()),
		attribute.String("job.id", run.JobID.String()),
	)
	defer span.End()

	if run.Snapshot == nil {
		msg := "No config snapshot found"
		log.Error("run has no snapshot")
		span.SetStatus(codes.Error, msg)
		w.finish(ctx, run.ID, store.RunFailed, nil, nil, &msg)
		return
	}
	span.SetAttributes(attribute.String("run.type", run.Snapshot.Meta.Type))

	log.Info("run started", "type", run.Snapshot.Meta.Type, "scheduledFor", run.ScheduledFor)
	out, err := w.runner.Execute(ctx, run.Snapshot)
	if err != nil {
		msg := err.Error()
		log.Error("run launch failed", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		w.finish(ctx, run.ID, store.RunFailed, nil, out.Output, &msg)
		return
	}

	code := out.ExitCode
	span.SetAttributes(attribute.Int("run.exit_code", code))
	if code == 0 {
		log.Info("run succeeded")
		span.SetStatus(codes.Ok, "")
		w.finish(ctx, run.ID, store.RunSucceeded, &code, out.Output, out.ErrorOutput)
		return
	}
	log.Warn("run failed", "exitCode", code)
	span.SetStatus(codes.Error, "nonzero exit code")
	w.finish(ctx, run.ID, store.RunFailed, &code, out.Output, out.ErrorOutput)
}

func (w *Worker) finish(ctx context.Context, runID uuid.UUID, state store.RunState, code *int, output, errorOutput *string) {
	// Use a detached context so a node shutdown still records the outcome.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := w.store.UpdateJobRunState(ctx, runID, state, code, output, errorOutput); err != nil {
		w.log.Error("recording run outcome failed", "run", runID, "state", state, "error", err)
	}
}
