package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hollis-dev/basalt/internal/migrate"
)

// NewMigrateCommand applies all pending migrations.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

			app, err := OpenApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := app.Manager.Migrate(cmd.Context())
			if err != nil {
				_ = out.Error(ErrCodeMigration, err.Error(), nil)
				return WrapExitError(ExitFailure, "migrate", err)
			}
			return out.Success(fmt.Sprintf("applied %d migration(s)", n))
		},
	}
}

// NewRollbackCommand reverts the most recent migration, or several
// with --steps.
func NewRollbackCommand(opts *RootOptions) *cobra.Command {
	var steps int
	var all bool

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Revert the most recently applied migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

			if all && cmd.Flags().Changed("steps") {
				return NewExitError(ExitCommandError, "--all and --steps are mutually exclusive")
			}

			app, err := OpenApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if all {
				if _, err := app.Manager.RollbackAll(cmd.Context()); err != nil {
					_ = out.Error(ErrCodeMigration, err.Error(), nil)
					return WrapExitError(ExitFailure, "rollback", err)
				}
				return out.Success("rolled back all applied migrations")
			}

			for i := 0; i < steps; i++ {
				if err := app.Manager.Rollback(cmd.Context()); err != nil {
					_ = out.Error(ErrCodeMigration, err.Error(), nil)
					return WrapExitError(ExitFailure, "rollback", err)
				}
			}
			return out.Success(fmt.Sprintf("rolled back %d migration(s)", steps))
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")
	cmd.Flags().BoolVar(&all, "all", false, "revert every applied migration")
	return cmd
}

// NewResetCommand rolls everything back and reapplies from scratch.
func NewResetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Roll back every migration and reapply from scratch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

			app, err := OpenApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Manager.Reset(cmd.Context()); err != nil {
				_ = out.Error(ErrCodeMigration, err.Error(), nil)
				return WrapExitError(ExitFailure, "reset", err)
			}
			return out.Success("reset complete")
		},
	}
}

// NewStatusCommand prints every migration with its ledger state.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration ledger status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

			app, err := OpenApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			entries, err := app.Manager.Status(cmd.Context())
			if err != nil {
				_ = out.Error(ErrCodeMigration, err.Error(), nil)
				return WrapExitError(ExitFailure, "status", err)
			}

			if opts.Format == "json" {
				return out.Success(entries)
			}
			for _, e := range entries {
				mark := "pending"
				if e.Applied {
					mark = "applied " + e.AppliedAt.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-30s %s\n", e.Version, e.Name, mark)
			}
			return nil
		},
	}
}

// NewMakeMigrationCommand scaffolds a new migration source file.
func NewMakeMigrationCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "makemigration <name>",
		Short: "Scaffold a new migration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

			path, err := migrate.Scaffold(viper.GetString("migrations_dir"), args[0], time.Now())
			if err != nil {
				_ = out.Error(ErrCodeGeneric, err.Error(), nil)
				return WrapExitError(ExitCommandError, "makemigration", err)
			}
			return out.Success("created " + path)
		},
	}
}
