package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/loom/internal/spec"
	"github.com/roach88/loom/internal/store"
)

// ResetOptions holds flags for the reset command.
type ResetOptions struct {
	*RootOptions
	Step      string
	Operation string
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Return failed work to pending for retry",
		Long: `Return failed work to pending so the run loop picks it up again;
nothing else re-runs a failed step.

With --step, one step is reset by id. Siblings that were failed with a
"not run" message because of it stay failed and need their own reset.
With --operation, the operation and every failed step under it are
reset together.

Examples:
  loom reset --db ./loom.db --step 0198a1b2-...
  loom reset --db ./loom.db --operation 0198a1b2-...`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Step, "step", "", "step id to reset")
	cmd.Flags().StringVar(&opts.Operation, "operation", "", "operation id whose failed steps to reset")
	cmd.MarkFlagsOneRequired("step", "operation")
	cmd.MarkFlagsMutuallyExclusive("step", "operation")

	return cmd
}

func runReset(opts *ResetOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.Operation != "" {
		return resetOperation(opts, cmd, st, out)
	}
	return resetStep(opts, cmd, st, out)
}

func resetStep(opts *ResetOptions, cmd *cobra.Command, st *store.Store, out *OutputFormatter) error {
	ctx := cmd.Context()

	step, err := st.GetStep(ctx, opts.Step)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load step", err)
	}

	if err := st.ResetStep(ctx, step.ID); err != nil {
		return WrapExitError(ExitCommandError, "failed to reset step", err)
	}

	// The owning operation moved to failed with the step; put it back
	// so the run loop will claim the retried step. An operation still
	// pending or processing needs no reset.
	if err := st.ResetOperation(ctx, step.OperationID); err != nil && !errors.Is(err, store.ErrInvalidTransition) {
		return WrapExitError(ExitCommandError, "failed to reset operation", err)
	}

	if opts.Format == "json" {
		return out.Success(map[string]any{
			"step_id":      step.ID,
			"operation_id": step.OperationID,
			"status":       "pending",
		})
	}
	fmt.Fprintf(out.Writer, "step %s reset to pending (operation %s)\n", step.ID, step.OperationID)
	return nil
}

func resetOperation(opts *ResetOptions, cmd *cobra.Command, st *store.Store, out *OutputFormatter) error {
	ctx := cmd.Context()

	op, err := st.GetOperation(ctx, opts.Operation)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load operation", err)
	}

	steps, err := st.StepsForOperation(ctx, op.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load steps", err)
	}

	resetIDs := []string{}
	for _, step := range steps {
		if step.Status != spec.StatusFailed {
			continue
		}
		if err := st.ResetStep(ctx, step.ID); err != nil {
			return WrapExitError(ExitCommandError, "failed to reset step", err)
		}
		resetIDs = append(resetIDs, step.ID)
	}

	if err := st.ResetOperation(ctx, op.ID); err != nil && !errors.Is(err, store.ErrInvalidTransition) {
		return WrapExitError(ExitCommandError, "failed to reset operation", err)
	}

	if opts.Format == "json" {
		return out.Success(map[string]any{
			"operation_id": op.ID,
			"steps_reset":  resetIDs,
			"status":       "pending",
		})
	}
	fmt.Fprintf(out.Writer, "operation %s reset to pending (%d step(s))\n", op.ID, len(resetIDs))
	return nil
}
