package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/loom/internal/spec"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	App       string
	Operation string
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show operation and step statuses",
		Long: `Show the status of an app's operations and their steps.

Example:
  loom status --db ./loom.db --app shop
  loom status --db ./loom.db --app shop --operation 0190b2c4-...`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.App, "app", "", "application id (required)")
	cmd.Flags().StringVar(&opts.Operation, "operation", "", "limit to one operation by id")
	_ = cmd.MarkFlagRequired("app")

	return cmd
}

// operationStatus pairs an operation with its steps for output.
type operationStatus struct {
	Operation spec.Operation `json:"operation"`
	Steps     []spec.Step    `json:"steps"`
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()

	var ops []spec.Operation
	if opts.Operation != "" {
		op, err := st.GetOperation(ctx, opts.Operation)
		if err != nil {
			return WrapExitError(ExitCommandError, "operation not found", err)
		}
		ops = []spec.Operation{op}
	} else {
		ops, err = st.ListOperations(ctx, opts.App)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list operations", err)
		}
	}

	statuses := make([]operationStatus, 0, len(ops))
	for _, op := range ops {
		steps, err := st.StepsForOperation(ctx, op.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list steps", err)
		}
		statuses = append(statuses, operationStatus{Operation: op, Steps: steps})
	}

	if opts.Format == "json" {
		return out.Success(statuses)
	}

	for _, s := range statuses {
		fmt.Fprintf(out.Writer, "operation %s [%s] %q\n", s.Operation.ID, s.Operation.Status, s.Operation.Intent)
		if s.Operation.ErrorMessage != "" {
			fmt.Fprintf(out.Writer, "  error: %s\n", s.Operation.ErrorMessage)
		}
		if s.Operation.AppliedAt != nil {
			fmt.Fprintf(out.Writer, "  applied at: %s\n", s.Operation.AppliedAt.Format("2006-01-02 15:04:05"))
		}
		for _, step := range s.Steps {
			line := fmt.Sprintf("  step %d [%s] %s %s", step.Index, step.Status, step.Kind, step.Target)
			if step.ErrorMessage != "" {
				line += " - " + step.ErrorMessage
			}
			fmt.Fprintln(out.Writer, line)
		}
	}
	if len(statuses) == 0 {
		fmt.Fprintf(out.Writer, "no operations for app %s\n", opts.App)
	}
	return nil
}
