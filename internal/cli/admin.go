package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hollis-dev/basalt/internal/auth"
	"github.com/hollis-dev/basalt/internal/records"
	"github.com/hollis-dev/basalt/internal/schema"
)

// NewAdminCommand groups admin account management.
func NewAdminCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin accounts",
	}
	cmd.AddCommand(newAdminCreateCommand(opts))
	cmd.AddCommand(newAdminListCommand(opts))
	cmd.AddCommand(newAdminDeleteCommand(opts))
	return cmd
}

func newAdminCreateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create <email> <password>",
		Short: "Create an admin account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

			app, err := OpenApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			rec, err := app.Flows.Register(cmd.Context(), schema.AdminCollectionName, args[0], args[1], nil)
			if err != nil {
				_ = out.Error(ErrCodeAuth, err.Error(), nil)
				return WrapExitError(ExitFailure, "admin create", err)
			}
			return out.Success(fmt.Sprintf("created admin %s (%s)", args[0], rec.ID))
		},
	}
}

func newAdminListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List admin accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

			app, err := OpenApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Records.List(cmd.Context(), schema.AdminCollectionName,
				records.ListOptions{Sort: "created"}, auth.Admin())
			if err != nil {
				_ = out.Error(ErrCodeAuth, err.Error(), nil)
				return WrapExitError(ExitFailure, "admin list", err)
			}

			if opts.Format == "json" {
				type adminRow struct {
					ID    string `json:"id"`
					Email string `json:"email"`
				}
				rows := make([]adminRow, 0, len(res.Items))
				for _, rec := range res.Items {
					email, _ := rec.Data[schema.AuthFieldEmail].(string)
					rows = append(rows, adminRow{ID: rec.ID, Email: email})
				}
				return out.Success(rows)
			}
			for _, rec := range res.Items {
				fmt.Fprintf(cmd.OutOrStdout(), "%-40s %v\n", rec.ID, rec.Data[schema.AuthFieldEmail])
			}
			return nil
		},
	}
}

func newAdminDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an admin account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

			app, err := OpenApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Records.Delete(cmd.Context(), schema.AdminCollectionName, args[0], auth.Admin()); err != nil {
				_ = out.Error(ErrCodeAuth, err.Error(), nil)
				return WrapExitError(ExitFailure, "admin delete", err)
			}
			return out.Success("deleted admin " + args[0])
		},
	}
}
