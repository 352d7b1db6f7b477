package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage operator accounts",
	}
	cmd.AddCommand(
		newUsersCreateCmd(),
		newUsersListCmd(),
		newUsersDeleteCmd(),
		newUsersPasswdCmd(),
	)
	return cmd
}

func newUsersCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create an operator account",
		Args:  cobra.ExactArgs(1),
	}
	f := cmd.Flags()
	f.String("password", "", "account password")
	f.String("role", string(store.RoleViewer), "role: admin, tenant, operator or viewer")
	cmd.MarkFlagRequired("password")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		password, _ := f.GetString("password")
		roleRaw, _ := f.GetString("role")
		role, err := store.ParseUserRole(roleRaw)
		if err != nil {
			return err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		user, err := st.CreateUser(cmd.Context(), args[0], string(hash), role)
		if err != nil {
			return err
		}
		fmt.Println(user.ID)
		return nil
	}
	return cmd
}

func newUsersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List operator accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			users, err := st.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSERNAME\tROLE\tCREATED")
			for _, u := range users {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.Username, u.Role, u.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func newUsersDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete an operator account",
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
			return st.DeleteUser(cmd.Context(), id)
		},
	}
}

func newUsersPasswdCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passwd <username>",
		Short: "Change an account password",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().String("password", "", "new password")
	cmd.MarkFlagRequired("password")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		user, err := st.GetUserByUsername(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return st.UpdatePassword(cmd.Context(), user.ID, string(hash))
	}
	return cmd
}
