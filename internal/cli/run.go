package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/loom/internal/executor"
	"github.com/roach88/loom/internal/runner"
	"github.com/roach88/loom/internal/spec"
)

// RunOptions holds flags for the run and step commands.
type RunOptions struct {
	*RootOptions
	App string

	// IDGen allows overriding id generation (for testing).
	IDGen spec.IDGenerator
}

// NewRunCommand creates the run command: execute steps until done.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run all pending steps for an app",
		Long: `Claim and execute pending steps for an app, one at a time in
ascending index order, until none remain. Failed steps are recorded
and skipped over; unrelated pending work keeps running.

Example:
  loom run --db ./loom.db --app shop`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSteps(opts, cmd, false)
		},
	}

	cmd.Flags().StringVar(&opts.App, "app", "", "application id (required)")
	_ = cmd.MarkFlagRequired("app")

	return cmd
}

// NewStepCommand creates the step command: execute exactly one step.
func NewStepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "step",
		Short: "Run exactly one pending step for an app",
		Long: `Claim and execute at most one pending step for an app.

Prints "done" when no pending steps remain. Useful for stepping
through an operation while inspecting the store between mutations.

Example:
  loom step --db ./loom.db --app shop`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSteps(opts, cmd, true)
		},
	}

	cmd.Flags().StringVar(&opts.App, "app", "", "application id (required)")
	_ = cmd.MarkFlagRequired("app")

	return cmd
}

// runReport is the run/step command output payload.
type runReport struct {
	Outcomes []runner.Outcome `json:"outcomes"`
	Applied  int              `json:"applied"`
	Failed   int              `json:"failed"`
	Done     bool             `json:"done"`
}

func runSteps(opts *RunOptions, cmd *cobra.Command, single bool) error {
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
	r := runner.New(st, executor.New(st, idGen))

	ctx := cmd.Context()
	report := runReport{Outcomes: []runner.Outcome{}}

	if single {
		outcome, err := r.RunOne(ctx, opts.App)
		if err != nil {
			return WrapExitError(ExitCommandError, "step failed", err)
		}
		if outcome.Kind == runner.OutcomeDone {
			report.Done = true
		} else {
			report.Outcomes = append(report.Outcomes, outcome)
		}
	} else {
		outcomes, err := r.RunAll(ctx, opts.App)
		if err != nil {
			return WrapExitError(ExitCommandError, "run failed", err)
		}
		report.Outcomes = outcomes
		report.Done = true
	}

	for _, o := range report.Outcomes {
		switch o.Kind {
		case runner.OutcomeApplied:
			report.Applied++
		case runner.OutcomeFailed:
			report.Failed++
		}
	}

	if opts.Format == "json" {
		if err := out.Success(report); err != nil {
			return err
		}
	} else {
		for _, o := range report.Outcomes {
			if o.Kind == runner.OutcomeApplied {
				fmt.Fprintf(out.Writer, "applied step %d (%s) %s\n", o.Step.Index, o.Step.Kind, o.Step.Target)
			} else {
				fmt.Fprintf(out.Writer, "failed step %d (%s): %s\n", o.Step.Index, o.Step.Kind, o.Error)
			}
		}
		if report.Done {
			fmt.Fprintln(out.Writer, "done")
		}
	}

	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d steps failed", report.Failed))
	}
	return nil
}
