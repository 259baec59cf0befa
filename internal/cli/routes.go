package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// RouteEntry is one row of the routes command output.
type RouteEntry struct {
	Participant string `json:"participant"`
	Index       int    `json:"index"`
	App         string `json:"app"`
	Page        string `json:"page"`
	URL         string `json:"url"`
}

// RoutesOptions holds flags for the routes command.
type RoutesOptions struct {
	*RootOptions
	Participant string
}

// NewRoutesCommand creates the routes command.
func NewRoutesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RoutesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "routes <session-code>",
		Short: "Show the page routing table of a session",
		Long: `Show every participant's page sequence, indexed from 1, as built
when the session was created.

Examples:
  cohort routes k3x9q2ab
  cohort routes k3x9q2ab --participant p7w2m4zz --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoutes(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Participant, "participant", "", "only this participant code")

	return cmd
}

func runRoutes(opts *RoutesOptions, code string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	svc, err := opts.open(false)
	if err != nil {
		return formatter.Fail("failed to open database", err)
	}
	defer svc.Close()

	sess, err := svc.store.SessionByCode(ctx, code)
	if err != nil {
		return formatter.Fail("failed to load session", err)
	}
	participants, err := svc.store.Participants(ctx, sess.ID)
	if err != nil {
		return formatter.Fail("failed to load participants", err)
	}

	entries := []RouteEntry{}
	found := opts.Participant == ""
	for _, p := range participants {
		if opts.Participant != "" && p.Code != opts.Participant {
			continue
		}
		found = true
		routes, err := svc.store.PageRoutes(ctx, p.ID)
		if err != nil {
			return formatter.Fail("failed to load routes", err)
		}
		for _, r := range routes {
			entries = append(entries, RouteEntry{
				Participant: p.Code,
				Index:       r.PageIndex,
				App:         r.AppName,
				Page:        r.PageName,
				URL:         r.URL,
			})
		}
	}
	if !found {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("participant %q is not in session %s", opts.Participant, code), nil)
		return NewExitError(ExitCommandError, "participant not found")
	}

	if formatter.Format == "json" {
		return formatter.Success(entries)
	}
	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PARTICIPANT\tINDEX\tAPP\tPAGE\tURL")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", e.Participant, e.Index, e.App, e.Page, e.URL)
	}
	return tw.Flush()
}
