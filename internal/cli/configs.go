package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cohort/internal/config"
)

// NewConfigsCommand creates the configs command.
func NewConfigsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "configs [name]",
		Short: "List session configs",
		Long: `List the session configs in the manifest with their apps and the
participant-count divisor each one requires.

Examples:
  cohort configs
  cohort configs public_goods --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigs(rootOpts, args, cmd)
		},
	}
}

func runConfigs(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	reg, err := opts.loadRegistry()
	if err != nil {
		return formatter.Fail("failed to load manifest", err)
	}

	names := reg.ConfigNames()
	if len(args) == 1 {
		names = args
	}
	summaries := make([]config.Summary, 0, len(names))
	for _, name := range names {
		s, err := reg.Summary(name)
		if err != nil {
			return formatter.Fail("failed to describe session config", err)
		}
		summaries = append(summaries, s)
	}

	if formatter.Format == "json" {
		return formatter.Success(summaries)
	}
	w := formatter.Writer
	for i, s := range summaries {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s (%s)\n", s.DisplayName, s.Name)
		apps := make([]string, len(s.Apps))
		for j, a := range s.Apps {
			apps[j] = a.Name
		}
		fmt.Fprintf(w, "  apps: %s\n", strings.Join(apps, ", "))
		fmt.Fprintf(w, "  participants: multiple of %d\n", s.Divisor)
		if s.Doc != "" {
			fmt.Fprintf(w, "  %s\n", s.Doc)
		}
	}
	return nil
}
