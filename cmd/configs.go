package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

func newConfigsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configs",
		Short: "Manage shared connection configs for pgsql/mysql jobs",
	}
	cmd.AddCommand(
		newConfigsCreateCmd(),
		newConfigsListCmd(),
		newConfigsDeleteCmd(),
	)
	return cmd
}

func newConfigsCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a shared config",
	}
	f := cmd.Flags()
	f.String("name", "", "config name")
	f.String("type", "", "config type: pgsql or mysql")
	f.String("host", "", "database host")
	f.Int("port", 0, "database port")
	f.String("user", "", "database user")
	f.String("password-secret", "", "name of the env var holding the password on worker nodes")
	f.String("database", "", "database name")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("type")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		var meta store.SharedConfigMeta
		meta.Type, _ = f.GetString("type")
		meta.Host, _ = f.GetString("host")
		meta.Port, _ = f.GetInt("port")
		meta.Username, _ = f.GetString("user")
		meta.PasswordSecret, _ = f.GetString("password-secret")
		meta.Database, _ = f.GetString("database")

		name, _ := f.GetString("name")
		cfg, err := st.CreateSharedConfig(cmd.Context(), name, meta)
		if err != nil {
			return err
		}
		fmt.Println(cfg.ID)
		return nil
	}
	return cmd
}

func newConfigsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List shared configs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			configs, err := st.ListSharedConfigs(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tTARGET")
			for _, c := range configs {
				target := fmt.Sprintf("%s@%s:%d/%s", c.Meta.Username, c.Meta.Host, c.Meta.Port, c.Meta.Database)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Meta.Type, target)
			}
			return w.Flush()
		},
	}
}

func newConfigsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <config-id>",
		Short: "Delete a shared config (jobs still referencing it will fail to claim)",
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
			return st.DeleteSharedConfig(cmd.Context(), id)
		},
	}
}
