package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/app"
)

func newUsersCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage operator accounts",
	}
	cmd.AddCommand(newUsersCreateCommand(opts))
	cmd.AddCommand(newUsersConfirmCommand(opts))
	return cmd
}

func newUsersCreateCommand(opts *RootOptions) *cobra.Command {
	var (
		email, password, phone string
		confirmed              bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an operator account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				user, err := rt.Backend.CreateUser(ctx, email, password, phone, confirmed)
				if err != nil {
					return fmt.Errorf("create %s: %w", email, err)
				}
				return opts.emit(cmd.OutOrStdout(), user, func(w io.Writer) {
					state := "unconfirmed"
					if user.ConfirmedAt != nil {
						state = "confirmed"
					}
					fmt.Fprintf(w, "created %s (%s, %s)\n", user.Email, user.ID, state)
				})
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email (required)")
	cmd.Flags().StringVar(&password, "password", "", "account password (required)")
	cmd.Flags().StringVar(&phone, "phone", "", "operator phone, used as the dashboard fallback")
	cmd.Flags().BoolVar(&confirmed, "confirmed", false, "mark the address as confirmed")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newUsersConfirmCommand(opts *RootOptions) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Confirm an operator's email address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Backend.ConfirmUser(ctx, email); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "confirmed %s\n", email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email (required)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
