// Package cmd implements the dromio CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/dromio/internal/config"
	"github.com/nextlevelbuilder/dromio/internal/store/pg"
)

var version = "dev"

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// NewRootCmd builds the root command with every subcommand registered.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dromio",
		Short: "Dromio - distributed job scheduler",
		Long: `Dromio schedules cron jobs into a shared Postgres database and executes
them across a fleet of worker nodes. Every node is identical: leader election
decides which one materializes runs.

Examples:
  dromio node
  dromio jobs create --name backup --cron "0 3 * * *" --type shell --command "pg_dump mydb"
  dromio runs list --limit 20
  dromio workers list`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newNodeCmd(),
		newMigrateCmd(),
		newJobsCmd(),
		newRunsCmd(),
		newWorkersCmd(),
		newConfigsCmd(),
		newUsersCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the config file")

	return rootCmd
}

// loadConfig reads the effective config honoring the --config flag and
// installs the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.SetupLogger()
	return cfg, nil
}

// openStore connects to the cluster database, migrating it to the current
// schema first.
func openStore(cmd *cobra.Command) (*pg.PGStore, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	st, err := pg.New(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return st, cfg, nil
}
