package scheduler

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nextlevelbuilder/dromio/internal/store"
	"github.com/nextlevelbuilder/dromio/internal/tracing"
)

// Store is the slice of the backing store the scheduler needs.
type Store interface {
	store.JobStore

	// AmILeader reports whether this node currently holds the scheduler lease.
	AmILeader(ctx context.Context) (bool, error)
}

// Config tunes the scheduler loop.
type Config struct {
	// TickInterval is the cadence of scheduling passes.
	TickInterval time.Duration
	// Window is how far ahead each pass materializes runs.
	Window time.Duration
	// CatchUp enables a one-shot pass on leadership acquisition that applies
	// each job's misfire policy to fire times missed while no scheduler ran.
	CatchUp bool
	// CatchUpLookback bounds how far back the catch-up pass searches.
	CatchUpLookback time.Duration
}

func (c *Config) withDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = 2 * time.Second
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.CatchUpLookback <= 0 {
		c.CatchUpLookback = time.Hour
	}
}

// Scheduler materializes job runs from cron schedules. Every node runs one;
// the advisory leader lock makes all but one a standby.
type Scheduler struct {
	store Store
	cfg   Config
	log   *slog.Logger

	caughtUp bool
}

func New(st Store, cfg Config) *Scheduler {
	cfg.withDefaults()
	return &Scheduler{
		store: st,
		cfg:   cfg,
		log:   slog.With("component", "scheduler"),
	}
}

// Run ticks until ctx is cancelled. The interval is jittered a few percent so
// a fleet restarted together does not tick in lockstep against the database.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler loop started", "tick", s.cfg.TickInterval, "window", s.cfg.Window)
	for {
		if err := s.Tick(ctx, time.Now()); err != nil {
			s.log.Error("scheduler tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.log.Info("scheduler loop stopped")
			return ctx.Err()
		case <-time.After(jitter(s.cfg.TickInterval)):
		}
	}
}

// Tick runs one scheduling pass. Non-leaders return immediately. Per-job
// failures are logged and do not abort the pass.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	leader, err := s.store.AmILeader(ctx)
	if err != nil {
		return err
	}
	if !leader {
		s.caughtUp = false
		return nil
	}

	ctx, span := tracing.Tracer().Start(ctx, "scheduler.tick")
	defer span.End()

	jobs, err := s.store.ListEnabledCronJobs(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(attribute.Int("jobs.enabled", len(jobs)))

	if s.cfg.CatchUp && !s.caughtUp {
		s.catchUp(ctx, jobs, now)
		s.caughtUp = true
	}

	for _, job := range jobs {
		if job.ScheduleCron == nil {
			continue
		}
		fires, err := FireTimesBetween(*job.ScheduleCron, now, now.Add(s.cfg.Window))
		if err != nil {
			s.log.Warn("skipping job with bad schedule", "job", job.ID, "cron", *job.ScheduleCron, "error", err)
			continue
		}
		s.materialize(ctx, job, fires)
	}
	return nil
}

// catchUp applies each job's misfire policy to fire times missed before now.
func (s *Scheduler) catchUp(ctx context.Context, jobs []store.JobSpec, now time.Time) {
	from := now.Add(-s.cfg.CatchUpLookback)
	for _, job := range jobs {
		if job.ScheduleCron == nil {
			continue
		}
		missed, err := FireTimesBetween(*job.ScheduleCron, from, now.Add(-time.Second))
		if err != nil {
			s.log.Warn("skipping catch-up for job with bad schedule", "job", job.ID, "error", err)
			continue
		}
		due := ApplyMisfirePolicy(job.MisfirePolicy, missed, now)
		if len(due) > 0 {
			s.log.Info("materializing missed runs", "job", job.ID, "policy", job.MisfirePolicy.String(),
				"missed", len(missed), "materializing", len(due))
		}
		s.materialize(ctx, job, due)
	}
}

func (s *Scheduler) materialize(ctx context.Context, job store.JobSpec, fires []time.Time) {
	for _, at := range fires {
		inserted, err := s.store.InsertJobRunIfMissing(ctx, job.ID, at)
		if err != nil {
			s.log.Error("materializing run failed", "job", job.ID, "scheduledFor", at, "error", err)
			continue
		}
		if inserted {
			s.log.Debug("run materialized", "job", job.ID, "scheduledFor", at)
		}
	}
}

// jitter spreads d by ±3%.
func jitter(d time.Duration) time.Duration {
	f := 0.97 + 0.06*rand.Float64()
	return time.Duration(float64(d) * f)
}
