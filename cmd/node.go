package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/dromio/internal/bootstrap"
	"github.com/nextlevelbuilder/dromio/internal/identity"
	"github.com/nextlevelbuilder/dromio/internal/runner"
	"github.com/nextlevelbuilder/dromio/internal/scheduler"
	"github.com/nextlevelbuilder/dromio/internal/tracing"
	"github.com/nextlevelbuilder/dromio/internal/worker"
)

// newNodeCmd builds `dromio node`: the long-running process combining a
// standby scheduler and a worker. Run one per host; the cluster needs no
// designated roles.
func newNodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Run a dromio node (scheduler standby + worker)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, cfg, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			stopTracing, err := tracing.Setup(ctx, tracing.Config{
				Endpoint: cfg.Tracing.OTLPEndpoint,
				Protocol: cfg.Tracing.OTLPProtocol,
				Insecure: cfg.Tracing.OTLPInsecure,
			}, version)
			if err != nil {
				return err
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := stopTracing(flushCtx); err != nil {
					slog.Warn("trace flush failed", "error", err)
				}
			}()

			id, err := identity.Acquire(cfg.DataDir, cfg.AllowMultiID)
			if err != nil {
				return err
			}
			defer id.Release()

			hostname, _ := os.Hostname()
			restarts, err := identity.Register(ctx, st, id, hostname, version)
			if err != nil {
				return err
			}
			slog.Info("node starting", "worker", id.DisplayName, "id", id.ID,
				"hostname", hostname, "restarts", restarts, "version", version)

			if err := bootstrap.SeedAdminUser(ctx, st); err != nil {
				slog.Warn("admin seed failed", "error", err)
			}

			sched := scheduler.New(st, scheduler.Config{
				TickInterval:    cfg.Scheduler.TickInterval,
				Window:          cfg.Scheduler.Window,
				CatchUp:         cfg.Scheduler.CatchUp,
				CatchUpLookback: cfg.Scheduler.CatchUpLookback,
			})
			wrk := worker.New(st, runner.New(), worker.Config{
				WorkerID:          id.ID,
				DisplayName:       id.DisplayName,
				Hostname:          hostname,
				Capacity:          cfg.Worker.Capacity,
				RestartCount:      restarts,
				Version:           version,
				TickInterval:      cfg.Worker.TickInterval,
				HeartbeatInterval: cfg.Worker.HeartbeatInterval,
				DeadAfterSecs:     cfg.Worker.DeadAfterSecs,
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return sched.Run(gctx) })
			g.Go(func() error { return wrk.Run(gctx) })

			err = g.Wait()
			if errors.Is(err, context.Canceled) {
				slog.Info("node stopped")
				return nil
			}
			return err
		},
	}
	return cmd
}

// newMigrateCmd builds `dromio migrate`: apply schema migrations and exit.
// `dromio node` migrates on boot anyway; this exists for init containers and
// CI pipelines that migrate before rolling nodes.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			return st.Close()
		},
	}
}
