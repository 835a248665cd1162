package cli

import (
	"github.com/spf13/cobra"
)

// NewBackupCommand snapshots the database with VACUUM INTO.
func NewBackupCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <dest.db>",
		Short: "Write a consistent snapshot of the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

			app, err := OpenApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Store.Backup(cmd.Context(), args[0]); err != nil {
				_ = out.Error(ErrCodeGeneric, err.Error(), nil)
				return WrapExitError(ExitFailure, "backup", err)
			}
			return out.Success("backup written to " + args[0])
		},
	}
}
