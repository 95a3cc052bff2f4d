package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/loom/internal/expand"
	"github.com/roach88/loom/internal/spec"
)

// ExpandOptions holds flags for the expand command.
type ExpandOptions struct {
	*RootOptions
	App       string
	Operation string

	// IDGen allows overriding id generation (for testing).
	IDGen spec.IDGenerator
}

// NewExpandCommand creates the expand command.
func NewExpandCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExpandOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Expand pending operations into steps",
		Long: `Materialize raw step descriptors into pending steps, one step per
descriptor, preserving order. Idempotent: operations that already have
steps are skipped.

Example:
  loom expand --db ./loom.db --app shop
  loom expand --db ./loom.db --operation 0190b2c4-...`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpand(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.App, "app", "", "expand all pending operations for this app")
	cmd.Flags().StringVar(&opts.Operation, "operation", "", "expand one operation by id")
	cmd.MarkFlagsOneRequired("app", "operation")
	cmd.MarkFlagsMutuallyExclusive("app", "operation")

	return cmd
}

func runExpand(opts *ExpandOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	idGen := opts.IDGen
	if idGen == nil {
		idGen = spec.UUIDv7Generator{}
	}
	ex := expand.New(st, idGen)

	ctx := cmd.Context()
	var result expand.Result
	if opts.Operation != "" {
		result, err = ex.ExpandOperation(ctx, opts.Operation)
	} else {
		result, err = ex.ExpandPending(ctx, opts.App)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "expansion failed", err)
	}

	if opts.Format == "json" {
		return out.Success(result)
	}
	fmt.Fprintf(out.Writer, "%d steps created across %d operations\n",
		result.StepsCreated, len(result.OperationIDs))
	return nil
}
