package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// VersionsOptions holds flags for the versions command.
type VersionsOptions struct {
	*RootOptions
	App string
}

// NewVersionsCommand creates the versions command.
func NewVersionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VersionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List version snapshots for an app",
		Long: `List the app's version snapshots: one per successfully applied
operation, numbered sequentially with no gaps.

Example:
  loom versions --db ./loom.db --app shop`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersions(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.App, "app", "", "application id (required)")
	_ = cmd.MarkFlagRequired("app")

	return cmd
}

func runVersions(opts *VersionsOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	snaps, err := st.ListSnapshots(cmd.Context(), opts.App)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list snapshots", err)
	}

	if opts.Format == "json" {
		return out.Success(snaps)
	}

	if len(snaps) == 0 {
		fmt.Fprintf(out.Writer, "no versions for app %s\n", opts.App)
		return nil
	}
	for _, snap := range snaps {
		fmt.Fprintf(out.Writer, "version %d  operation %s  %s\n",
			snap.VersionNumber, snap.OperationID, snap.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
