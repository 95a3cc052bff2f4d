package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RollbackOptions holds flags for the rollback command.
type RollbackOptions struct {
	*RootOptions
	App     string
	Version int
}

// NewRollbackCommand creates the rollback command.
func NewRollbackCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RollbackOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Replace the specification store with a snapshot",
		Long: `Replace the app's current specification store wholesale with the
contents of a version snapshot. The replacement runs in a single
transaction: all current entries are deleted and every entry embedded
in the snapshot is reinserted.

Example:
  loom rollback --db ./loom.db --app shop --version 3`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollback(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.App, "app", "", "application id (required)")
	cmd.Flags().IntVar(&opts.Version, "version", 0, "version number to restore (required)")
	_ = cmd.MarkFlagRequired("app")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}

func runRollback(opts *RollbackOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.RollbackToVersion(cmd.Context(), opts.App, opts.Version); err != nil {
		return WrapExitError(ExitCommandError, "rollback failed", err)
	}

	if opts.Format == "json" {
		return out.Success(map[string]any{"app_id": opts.App, "version": opts.Version})
	}
	fmt.Fprintf(out.Writer, "app %s restored to version %d\n", opts.App, opts.Version)
	return nil
}
