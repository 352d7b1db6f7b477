package cmd

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage job definitions",
	}
	cmd.AddCommand(
		newJobsCreateCmd(),
		newJobsListCmd(),
		newJobsGetCmd(),
		newJobsUpdateCmd(),
		newJobsDeleteCmd(),
		newJobsEnableCmd(),
		newJobsDisableCmd(),
		newJobsEnvCmd(),
	)
	return cmd
}

// runnerFlagSet registers the flags shared by create and update and returns a
// builder that assembles a RunnerConfig from them.
func runnerFlagSet(cmd *cobra.Command) func() (*store.RunnerConfig, error) {
	f := cmd.Flags()
	f.String("type", "", "runner type: shell, http, pgsql, mysql, python, node")
	f.String("command", "", "shell command line")
	f.String("workdir", "", "shell working directory")
	f.String("method", "GET", "http method")
	f.String("url", "", "http url")
	f.StringArray("header", nil, "http header, key=value, repeatable")
	f.String("body", "", "http request body")
	f.String("config-id", "", "shared config id for pgsql/mysql")
	f.String("query", "", "sql statement for pgsql/mysql")
	f.String("module", "", "python/node module")
	f.String("class", "", "python entry-point class")
	f.String("function", "", "node entry-point function")
	f.Int("timeout", 0, "execution timeout in seconds (0 = none)")

	return func() (*store.RunnerConfig, error) {
		if !f.Changed("type") {
			return nil, nil
		}
		rc := &store.RunnerConfig{}
		rc.Type, _ = f.GetString("type")
		rc.Command, _ = f.GetString("command")
		rc.WorkingDir, _ = f.GetString("workdir")
		rc.Method, _ = f.GetString("method")
		rc.URL, _ = f.GetString("url")
		rc.Query, _ = f.GetString("query")
		rc.Module, _ = f.GetString("module")
		rc.ClassName, _ = f.GetString("class")
		rc.FunctionName, _ = f.GetString("function")

		if headers, _ := f.GetStringArray("header"); len(headers) > 0 {
			rc.Headers = make(map[string]string, len(headers))
			for _, h := range headers {
				k, v, ok := strings.Cut(h, "=")
				if !ok {
					return nil, fmt.Errorf("invalid header %q, want key=value", h)
				}
				rc.Headers[k] = v
			}
		}
		if f.Changed("body") {
			body, _ := f.GetString("body")
			rc.Body = &body
		}
		if cfgID, _ := f.GetString("config-id"); cfgID != "" {
			id, err := uuid.Parse(cfgID)
			if err != nil {
				return nil, fmt.Errorf("invalid config-id: %w", err)
			}
			rc.ConfigID = id
		}
		if timeout, _ := f.GetInt("timeout"); timeout > 0 {
			rc.TimeoutSec = &timeout
		}
		return rc, rc.Validate()
	}
}

func newJobsCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a job",
	}
	buildRunner := runnerFlagSet(cmd)
	f := cmd.Flags()
	f.String("name", "", "job name")
	f.String("cron", "", "5-field cron schedule (empty = ad-hoc only)")
	f.Int("max-concurrency", 1, "advisory concurrency limit")
	f.String("misfire", "skip", "misfire policy: skip, run_if_late_within(N), run_immediately, coalesce, run_all")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("type")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		rc, err := buildRunner()
		if err != nil {
			return err
		}
		c := store.JobCreate{RunnerCfg: *rc}
		c.Name, _ = f.GetString("name")
		c.MaxConcurrency, _ = f.GetInt("max-concurrency")
		if cron, _ := f.GetString("cron"); cron != "" {
			c.ScheduleCron = &cron
		}
		misfire, _ := f.GetString("misfire")
		if c.MisfirePolicy, err = store.ParseMisfirePolicy(misfire); err != nil {
			return err
		}

		job, err := st.CreateJob(cmd.Context(), c)
		if err != nil {
			return err
		}
		return printJSON(job)
	}
	return cmd
}

func newJobsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			jobs, err := st.ListJobs(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tCRON\tENABLED\tMISFIRE")
			for _, j := range jobs {
				cron := "-"
				if j.ScheduleCron != nil {
					cron = *j.ScheduleCron
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
					j.ID, j.Name, j.RunnerCfg.Type, cron, j.Enabled, j.MisfirePolicy)
			}
			return w.Flush()
		},
	}
}

func newJobsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show a job",
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

			job, err := st.GetJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(job)
		},
	}
}

func newJobsUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <job-id>",
		Short: "Update a job (changing the schedule or runner drops its queued runs)",
		Args:  cobra.ExactArgs(1),
	}
	buildRunner := runnerFlagSet(cmd)
	f := cmd.Flags()
	f.String("name", "", "new job name")
	f.String("cron", "", "new cron schedule")
	f.Bool("clear-cron", false, "remove the schedule, making the job ad-hoc only")
	f.Int("max-concurrency", 0, "new advisory concurrency limit")
	f.String("misfire", "", "new misfire policy")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return err
		}
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		var upd store.JobUpdate
		if upd.RunnerCfg, err = buildRunner(); err != nil {
			return err
		}
		if f.Changed("name") {
			name, _ := f.GetString("name")
			upd.Name = &name
		}
		switch {
		case f.Changed("clear-cron"):
			upd.ScheduleCron = &sql.NullString{}
		case f.Changed("cron"):
			cron, _ := f.GetString("cron")
			upd.ScheduleCron = &sql.NullString{String: cron, Valid: true}
		}
		if f.Changed("max-concurrency") {
			mc, _ := f.GetInt("max-concurrency")
			upd.MaxConcurrency = &mc
		}
		if f.Changed("misfire") {
			raw, _ := f.GetString("misfire")
			p, err := store.ParseMisfirePolicy(raw)
			if err != nil {
				return err
			}
			upd.MisfirePolicy = &p
		}

		job, err := st.UpdateJob(cmd.Context(), id, upd)
		if err != nil {
			return err
		}
		return printJSON(job)
	}
	return cmd
}

func newJobsDeleteCmd() *cobra.Command {
	return jobActionCmd("delete", "Delete a job (history is kept)", func(cmd *cobra.Command, id uuid.UUID) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()
		return st.DeleteJob(cmd.Context(), id)
	})
}

func newJobsEnableCmd() *cobra.Command {
	return jobActionCmd("enable", "Enable a job", func(cmd *cobra.Command, id uuid.UUID) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()
		return st.EnableJob(cmd.Context(), id)
	})
}

func newJobsDisableCmd() *cobra.Command {
	return jobActionCmd("disable", "Disable a job (drops its queued runs)", func(cmd *cobra.Command, id uuid.UUID) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()
		return st.DisableJob(cmd.Context(), id)
	})
}

func jobActionCmd(verb, short string, run func(*cobra.Command, uuid.UUID) error) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <job-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			return run(cmd, id)
		},
	}
}

func newJobsEnvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Manage a job's environment variables",
	}

	set := &cobra.Command{
		Use:   "set <job-id> KEY=VALUE...",
		Short: "Replace the job's env vars",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			var vars []store.EnvVar
			for _, kv := range args[1:] {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid env var %q, want KEY=VALUE", kv)
				}
				vars = append(vars, store.EnvVar{Key: k, Value: v})
			}
			st, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()
			return st.SetJobEnvVars(cmd.Context(), id, vars)
		},
	}

	list := &cobra.Command{
		Use:   "list <job-id>",
		Short: "Show the job's env vars",
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

			vars, err := st.GetJobEnvVars(cmd.Context(), id)
			if err != nil {
				return err
			}
			for _, v := range vars {
				fmt.Printf("%s=%s\n", v.Key, v.Value)
			}
			return nil
		},
	}

	cmd.AddCommand(set, list)
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
