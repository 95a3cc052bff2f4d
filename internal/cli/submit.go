package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/loom/internal/executor"
	"github.com/roach88/loom/internal/expand"
	"github.com/roach88/loom/internal/runner"
	"github.com/roach88/loom/internal/spec"
	"github.com/roach88/loom/internal/validate"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	App string
	Run bool

	// IDGen allows overriding id generation (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGen spec.IDGenerator
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit <intent-file>",
		Short: "Submit an intent batch and expand it into steps",
		Long: `Submit a declarative intent batch (YAML or JSON) for an app.

The batch is checked against the intent schema, validated against the
current specification store (advisory - warnings do not block), stored
as a pending operation, and expanded into steps. With --run, the steps
are executed to completion.

Example:
  loom submit --db ./loom.db --app shop ./intents/add-orders.yaml
  loom submit --db ./loom.db --app shop --run ./intents/add-orders.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.App, "app", "", "application id (required)")
	cmd.Flags().BoolVar(&opts.Run, "run", false, "run all steps after expanding")
	_ = cmd.MarkFlagRequired("app")

	return cmd
}

// submitReport is the submit command's output payload.
type submitReport struct {
	OperationID  string   `json:"operation_id"`
	StepsCreated int      `json:"steps_created"`
	Warnings     []string `json:"warnings,omitempty"`
	Applied      int      `json:"applied,omitempty"`
	Failed       int      `json:"failed,omitempty"`
}

func runSubmit(opts *SubmitOptions, path string, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	file, err := LoadIntentFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load intent file", err)
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	idGen := opts.IDGen
	if idGen == nil {
		idGen = spec.UUIDv7Generator{}
	}

	ctx := cmd.Context()

	// Advisory validation: warnings are reported, never blocking.
	// The executor re-validates independently at execution time.
	validation, err := validate.New(st).ValidateBatch(ctx, opts.App, file.Operations)
	if err != nil {
		return WrapExitError(ExitCommandError, "validation failed", err)
	}

	op := spec.Operation{
		ID:       idGen.NewID(),
		AppID:    opts.App,
		Intent:   file.Intent,
		RawSteps: file.Operations,
		Status:   spec.StatusPending,
	}
	if err := st.CreateOperation(ctx, op); err != nil {
		return WrapExitError(ExitCommandError, "failed to create operation", err)
	}

	expansion, err := expand.New(st, idGen).ExpandOperation(ctx, op.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to expand operation", err)
	}

	report := submitReport{
		OperationID:  op.ID,
		StepsCreated: expansion.StepsCreated,
		Warnings:     validation.Errors,
	}

	if opts.Run {
		outcomes, err := runner.New(st, executor.New(st, idGen)).RunAll(ctx, opts.App)
		if err != nil {
			return WrapExitError(ExitCommandError, "run failed", err)
		}
		for _, o := range outcomes {
			switch o.Kind {
			case runner.OutcomeApplied:
				report.Applied++
			case runner.OutcomeFailed:
				report.Failed++
			}
		}
	}

	if opts.Format == "json" {
		if err := out.Success(report); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out.Writer, "operation %s: %d steps created\n", report.OperationID, report.StepsCreated)
		for _, w := range report.Warnings {
			fmt.Fprintf(out.Writer, "warning: %s\n", w)
		}
		if opts.Run {
			fmt.Fprintf(out.Writer, "applied %d, failed %d\n", report.Applied, report.Failed)
		}
	}

	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d steps failed", report.Failed))
	}
	return nil
}
