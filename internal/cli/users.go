package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/plaenen/shopcore/internal/users"
	"github.com/plaenen/shopcore/pkg/cqrs"
)

// passwordEnv supplies the password to "users register" when --password is omitted.
const passwordEnv = "SHOPCORE_PASSWORD"

func newUsersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "users",
		Aliases: []string{"user"},
		Short:   "Register, activate and inspect accounts",
	}
	cmd.AddCommand(
		newUsersRegisterCmd(opts),
		newUsersActivateCmd(opts),
		newUsersShowCmd(opts),
	)
	return cmd
}

func newUsersRegisterCmd(opts *rootOptions) *cobra.Command {
	var (
		password    string
		acceptTerms bool
	)
	cmd := &cobra.Command{
		Use:   "register EMAIL",
		Short: "Register an inactive account and send its activation token",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
		if password == "" {
			password = os.Getenv(passwordEnv)
		}
		u, err := cqrs.DispatchAs[users.UserView](cmd.Context(), e.app.Commands, users.RegisterUserCommand{
			Email:       args[0],
			Password:    password,
			AcceptTerms: acceptTerms,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), u)
	})
	cmd.Flags().StringVar(&password, "password", "", "Account password (default $"+passwordEnv+")")
	cmd.Flags().BoolVar(&acceptTerms, "accept-terms", false, "Accept the terms of service")
	return cmd
}

func newUsersActivateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "activate TOKEN",
		Short: "Activate the account owning an activation token",
		Args:  cobra.ExactArgs(1),
		RunE: opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			u, err := cqrs.DispatchAs[users.UserView](cmd.Context(), e.app.Commands, users.ActivateUserCommand{Token: args[0]})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), u)
		}),
	}
}

func newUsersShowCmd(opts *rootOptions) *cobra.Command {
	var byEmail bool
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show an account by ID, or by email with --email",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
		q := users.DisplayUserQuery{ID: args[0]}
		if byEmail {
			q = users.DisplayUserQuery{Email: args[0]}
		}
		u, err := cqrs.DispatchAs[users.UserView](cmd.Context(), e.app.Queries, q)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), u)
	})
	cmd.Flags().BoolVar(&byEmail, "email", false, "Look the account up by email address")
	return cmd
}
