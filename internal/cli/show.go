package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/loom/internal/render"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	App string
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the rendered specification bundle for an app",
		Long: `Aggregate the app's specification entries into the bundle the
rendering layer consumes: pages, data models, components, permissions,
and theme.

Example:
  loom show --db ./loom.db --app shop --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.App, "app", "", "application id (required)")
	_ = cmd.MarkFlagRequired("app")

	return cmd
}

func runShow(opts *ShowOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	bundle, err := render.NewReader(st).Bundle(cmd.Context(), opts.App)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build bundle", err)
	}

	if opts.Format == "json" {
		return out.Success(bundle)
	}

	fmt.Fprintf(out.Writer, "app %s\n", bundle.AppID)
	printSection(out, "pages", keysOf(bundle.Pages))
	printSection(out, "data models", keysOf(bundle.DataModels))
	printSection(out, "components", keysOf(bundle.Components))
	printSection(out, "permission rulesets", keysOf(bundle.Permissions))
	if bundle.Theme != nil {
		fmt.Fprintf(out.Writer, "theme: %v\n", bundle.Theme)
	}
	return nil
}

func printSection(out *OutputFormatter, label string, keys []string) {
	fmt.Fprintf(out.Writer, "%s (%d):\n", label, len(keys))
	for _, k := range keys {
		fmt.Fprintf(out.Writer, "  %s\n", k)
	}
}

func keysOf(m map[string]map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
