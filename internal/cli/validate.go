package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/loom/internal/validate"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	App string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <intent-file>",
		Short: "Validate an intent file without submitting it",
		Long: `Check an intent file against the schema and the current
specification store without creating an operation. Referential checks
(duplicate models, missing pages) run against the store for the given
app, so a file that validates clean here can still fail at execution
time if the store changes in between.

Example:
  loom validate ./intents/orders.yaml --db ./loom.db --app shop`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.App, "app", "", "application id (required)")
	_ = cmd.MarkFlagRequired("app")

	return cmd
}

type validateReport struct {
	Intent string   `json:"intent"`
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command, path string) error {
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

	result, err := validate.New(st).ValidateBatch(cmd.Context(), opts.App, file.Operations)
	if err != nil {
		return WrapExitError(ExitCommandError, "validation failed to run", err)
	}

	report := validateReport{Intent: file.Intent, Valid: result.Valid, Errors: result.Errors}

	if opts.Format == "json" {
		if err := out.Success(report); err != nil {
			return err
		}
	} else {
		if result.Valid {
			fmt.Fprintf(out.Writer, "intent %q: %d operation(s) valid\n", file.Intent, len(file.Operations))
		} else {
			fmt.Fprintf(out.Writer, "intent %q: invalid\n", file.Intent)
			for _, msg := range result.Errors {
				fmt.Fprintf(out.Writer, "  %s\n", msg)
			}
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(result.Errors)))
	}
	return nil
}
