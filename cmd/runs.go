package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and control job runs",
	}
	cmd.AddCommand(
		newRunsListCmd(),
		newRunsTriggerCmd(),
		newRunsCancelCmd(),
	)
	return cmd
}

func newRunsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
	}
	f := cmd.Flags()
	f.Int("limit", 50, "max rows")
	f.String("job", "", "filter by job id")
	f.String("worker", "", "filter by worker id")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		var filter store.RunFilter
		limit, _ := f.GetInt("limit")
		filter.Limit = &limit
		if raw, _ := f.GetString("job"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				return fmt.Errorf("invalid job id: %w", err)
			}
			filter.JobID = &id
		}
		if raw, _ := f.GetString("worker"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				return fmt.Errorf("invalid worker id: %w", err)
			}
			filter.WorkerID = &id
		}

		runs, err := st.ListRecentRuns(cmd.Context(), filter)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tJOB\tSCHEDULED\tSTATE\tEXIT\tDURATION")
		for _, r := range runs {
			exit := "-"
			if r.ExitCode != nil {
				exit = fmt.Sprintf("%d", *r.ExitCode)
			}
			dur := "-"
			if r.StartedAt != nil && r.FinishedAt != nil {
				dur = r.FinishedAt.Sub(*r.StartedAt).Round(time.Millisecond).String()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.JobID, r.ScheduledFor.Format(time.RFC3339), r.State, exit, dur)
		}
		return w.Flush()
	}
	return cmd
}

func newRunsTriggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <job-id>",
		Short: "Queue an immediate ad-hoc run of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			st, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			run, err := st.CreateAdhocRun(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Println(run.ID)
			return nil
		},
	}
}

func newRunsCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel a queued run (running runs cannot be cancelled)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			st, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()
			return st.CancelRun(cmd.Context(), id)
		},
	}
}
