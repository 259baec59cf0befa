package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cohort/internal/progress"
)

// AdvanceOptions holds flags for the advance command.
type AdvanceOptions struct {
	*RootOptions

	// Submitter overrides the HTTP submitter (for testing).
	Submitter progress.Submitter
}

// AdvanceResult is the advance command's output.
type AdvanceResult struct {
	Session      string   `json:"session"`
	Outcome      string   `json:"outcome"`
	PageIndex    int      `json:"page_index,omitempty"`
	Participants []string `json:"participants"`
}

// NewAdvanceCommand creates the advance command.
func NewAdvanceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AdvanceOptions{RootOptions: rootOpts}

	return &cobra.Command{
		Use:   "advance <session-code>",
		Short: "Push the slowest participants forward one page",
		Long: `Advance the participants in last place.

If anyone has not opened their start link yet, they are started and
nothing else happens. Otherwise every participant at the lowest page index
has their current page submitted for them on the page server at
--base-url. Run it again to move the next tier.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdvance(opts, args[0], cmd)
		},
	}
}

func runAdvance(opts *AdvanceOptions, code string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	svc, err := opts.open(false)
	if err != nil {
		return formatter.Fail("failed to open database", err)
	}
	defer svc.Close()

	adv, err := svc.tracker(opts.Submitter).AdvanceLaggards(commandContext(cmd), code)
	if err != nil {
		return formatter.Fail("failed to advance participants", err)
	}

	result := AdvanceResult{
		Session:      code,
		Outcome:      adv.Outcome.String(),
		PageIndex:    adv.PageIndex,
		Participants: adv.Participants,
	}
	if result.Participants == nil {
		result.Participants = []string{}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	w := formatter.Writer
	switch adv.Outcome {
	case progress.StartedUnvisited:
		fmt.Fprintf(w, "Started %d unvisited participant(s): %s\n", len(adv.Participants), strings.Join(adv.Participants, ", "))
	case progress.ResubmittedLaggards:
		fmt.Fprintf(w, "Advanced %d participant(s) from page %d: %s\n", len(adv.Participants), adv.PageIndex, strings.Join(adv.Participants, ", "))
	default:
		fmt.Fprintln(w, "Every participant has finished")
	}
	return nil
}
