package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hollis-dev/basalt/internal/auth"
	"github.com/hollis-dev/basalt/internal/compiler"
	"github.com/hollis-dev/basalt/internal/schema"
)

// NewCollectionsCommand groups collection administration.
func NewCollectionsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "Inspect and manage collection definitions",
	}
	cmd.AddCommand(newCollectionsListCommand(opts))
	cmd.AddCommand(newCollectionsShowCommand(opts))
	cmd.AddCommand(newCollectionsApplyCommand(opts))
	cmd.AddCommand(newCollectionsExportCommand(opts))
	cmd.AddCommand(newCollectionsDropCommand(opts))
	return cmd
}

func newCollectionsListCommand(opts *RootOptions) *cobra.Command {
	var system bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

			app, err := OpenApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			cols := app.Registry.List(system)
			if opts.Format == "json" {
				return out.Success(cols)
			}
			for _, col := range cols {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-6s %d field(s)\n", col.Name, col.Kind, len(col.Fields))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&system, "system", false, "include system collections")
	return cmd
}

func newCollectionsShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show one collection definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

			app, err := OpenApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			col, err := app.Registry.Get(args[0])
			if err != nil {
				_ = out.Error(ErrCodeNotFound, err.Error(), nil)
				return WrapExitError(ExitCommandError, "show", err)
			}

			pretty, err := json.MarshalIndent(col, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(pretty))
			return nil
		},
	}
}

// newCollectionsApplyCommand compiles CUE definitions and registers
// new collections. Existing collections of the same name are left
// untouched unless --update is set, in which case rules and added
// fields are patched in.
func newCollectionsApplyCommand(opts *RootOptions) *cobra.Command {
	var update bool

	cmd := &cobra.Command{
		Use:   "apply <file.cue>",
		Short: "Apply collection definitions from a CUE file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

			cols, err := compiler.CompileFile(args[0])
			if err != nil {
				_ = out.Error(ErrCodeCompile, err.Error(), nil)
				return WrapExitError(ExitFailure, "apply", err)
			}
			if err := compiler.ValidateAll(cols); err != nil {
				_ = out.Error(ErrCodeCompile, err.Error(), nil)
				return WrapExitError(ExitFailure, "apply", err)
			}

			app, err := OpenApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			created, patched := 0, 0
			for _, col := range cols {
				existing, err := app.Registry.Get(col.Name)
				if err == nil {
					if !update {
						out.VerboseLog("skipping existing collection %q", col.Name)
						continue
					}
					rules := col.Rules
					if _, err := app.Registry.Update(cmd.Context(), existing.ID, schema.CollectionPatch{
						Rules:     &rules,
						AddFields: newFields(existing, col),
					}); err != nil {
						_ = out.Error(ErrCodeSchema, err.Error(), nil)
						return WrapExitError(ExitFailure, "apply", err)
					}
					patched++
					continue
				}
				if !schema.IsNotFound(err) {
					return err
				}
				if _, err := app.Registry.Create(cmd.Context(), col); err != nil {
					_ = out.Error(ErrCodeSchema, err.Error(), nil)
					return WrapExitError(ExitFailure, "apply", err)
				}
				created++
			}
			return out.Success(fmt.Sprintf("created %d, updated %d collection(s)", created, patched))
		},
	}

	cmd.Flags().BoolVar(&update, "update", false, "patch collections that already exist")
	return cmd
}

// newFields returns the fields of def that existing does not have.
func newFields(existing, def *schema.Collection) []schema.Field {
	var out []schema.Field
	for _, f := range def.Fields {
		if _, ok := existing.FieldByID(f.ID); !ok {
			out = append(out, f)
		}
	}
	return out
}

func newCollectionsExportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export all collection definitions as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := OpenApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			data, err := app.Store.ExportCollections(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "export", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newCollectionsDropCommand(opts *RootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "drop <name>",
		Short: "Drop a collection and all of its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

			if !force {
				return NewExitError(ExitCommandError, "drop removes every record in the collection; pass --force to confirm")
			}

			app, err := OpenApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Records.DropCollection(cmd.Context(), args[0], auth.Admin()); err != nil {
				_ = out.Error(ErrCodeSchema, err.Error(), nil)
				return WrapExitError(ExitFailure, "drop", err)
			}
			return out.Success(fmt.Sprintf("dropped %q", args[0]))
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "confirm the destructive drop")
	return cmd
}
