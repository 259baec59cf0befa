package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cohort/internal/model"
	"github.com/roach88/cohort/internal/progress"
)

// SessionInfo is one row of the session listing.
type SessionInfo struct {
	Code         string `json:"code"`
	Config       string `json:"config"`
	Label        string `json:"label,omitempty"`
	Category     string `json:"category,omitempty"`
	Participants int    `json:"participants"`
	CreatedAt    string `json:"created_at"`
	Started      bool   `json:"started"`
	Archived     bool   `json:"archived,omitempty"`
}

// ParticipantStatus is one row of a session's status.
type ParticipantStatus struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Page   string `json:"page"`
}

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	All bool
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status [session-code]",
		Short: "List sessions or show participant status",
		Long: `Without arguments, list sessions, newest first. With a session code,
show each participant's status and page position.

Examples:
  cohort status
  cohort status --all
  cohort status k3x9q2ab`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runSessionStatus(opts, args[0], cmd)
			}
			return runListSessions(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "include archived sessions")

	return cmd
}

func runListSessions(opts *StatusOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	svc, err := opts.open(false)
	if err != nil {
		return formatter.Fail("failed to open database", err)
	}
	defer svc.Close()

	sessions, err := svc.store.Sessions(ctx, opts.All)
	if err != nil {
		return formatter.Fail("failed to list sessions", err)
	}
	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		counts, err := svc.store.CountEntities(ctx, s.ID)
		if err != nil {
			return formatter.Fail("failed to count participants", err)
		}
		infos = append(infos, SessionInfo{
			Code:         s.Code,
			Config:       s.ConfigName,
			Label:        s.Label,
			Category:     string(s.SpecialCategory),
			Participants: counts.Participants,
			CreatedAt:    s.CreatedAt.UTC().Format(time.RFC3339),
			Started:      s.TimeStarted != nil,
			Archived:     s.Archived,
		})
	}

	if formatter.Format == "json" {
		return formatter.Success(infos)
	}
	if len(infos) == 0 {
		fmt.Fprintln(formatter.Writer, "No sessions")
		return nil
	}
	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tCONFIG\tLABEL\tPARTICIPANTS\tCREATED\tSTARTED")
	for _, s := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%t\n", s.Code, s.Config, s.Label, s.Participants, s.CreatedAt, s.Started)
	}
	return tw.Flush()
}

func runSessionStatus(opts *StatusOptions, code string, cmd *cobra.Command) error {
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

	rows := make([]ParticipantStatus, len(participants))
	counts := map[model.StatusKind]int{}
	for i, p := range participants {
		st := progress.Status(p)
		counts[st.Kind]++
		rows[i] = ParticipantStatus{Code: p.Code, Name: p.Name(), Status: st.String(), Page: p.CurrentPage()}
	}

	if formatter.Format == "json" {
		return formatter.Success(rows)
	}
	fmt.Fprintf(formatter.Writer, "Session %s (%s): %d playing, %d waiting, %d not started\n",
		sess.Code, sess.ConfigName, counts[model.Playing], counts[model.Waiting], counts[model.NotStarted])
	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Name, r.Code, r.Page, r.Status)
	}
	return tw.Flush()
}
