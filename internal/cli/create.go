package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cohort/internal/model"
	"github.com/roach88/cohort/internal/session"
)

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	Participants int
	Label        string
	Category     string
	Room         string
	Marketplace  bool
	PreCreateID  string
	Comment      string
}

// CreatedSession is the create command's result.
type CreatedSession struct {
	Code         string   `json:"code"`
	Config       string   `json:"config"`
	Participants int      `json:"participants"`
	Marketplace  int      `json:"marketplace_participants,omitempty"`
	PreCreateID  string   `json:"pre_create_id"`
	Room         string   `json:"room,omitempty"`
	StartURLs    []string `json:"start_urls"`
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <config>",
		Short: "Create a session from a session config",
		Long: `Create a session: participants, subsessions, players, groups and the
page routing table, all in one transaction.

The participant count must be a multiple of the config's divisor (see
"cohort configs"). Demo, bots and test sessions may omit it. With
--marketplace the count is the number of workers advertised; extra slots
are created using COHORT_SPARE_MULTIPLIER.

Examples:
  cohort create public_goods -n 12
  cohort create public_goods --category demo
  cohort create public_goods -n 10 --marketplace --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Participants, "participants", "n", 0, "number of participants")
	cmd.Flags().StringVar(&opts.Label, "label", "", "session label")
	cmd.Flags().StringVar(&opts.Category, "category", "", "special category (demo|bots|test)")
	cmd.Flags().StringVar(&opts.Room, "room", "", "room to bind the session to")
	cmd.Flags().BoolVar(&opts.Marketplace, "marketplace", false, "recruit participants from the worker marketplace")
	cmd.Flags().StringVar(&opts.PreCreateID, "pre-create-id", "", "correlation id for asynchronous creation")
	cmd.Flags().StringVar(&opts.Comment, "comment", "", "free-form comment")

	return cmd
}

func runCreate(opts *CreateOptions, configName string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	category, err := model.ParseSpecialCategory(opts.Category)
	if err != nil {
		return formatter.Fail("invalid category", err)
	}

	svc, err := opts.open(true)
	if err != nil {
		return formatter.Fail("failed to open", err)
	}
	defer svc.Close()

	sess, err := svc.factory().CreateSession(ctx, configName, session.CreateOptions{
		ParticipantCount: opts.Participants,
		Label:            opts.Label,
		SpecialCategory:  category,
		PreCreateID:      opts.PreCreateID,
		Room:             opts.Room,
		ForMarketplace:   opts.Marketplace,
		Comment:          opts.Comment,
	})
	if err != nil {
		return formatter.Fail("failed to create session", err)
	}

	participants, err := svc.store.Participants(ctx, sess.ID)
	if err != nil {
		return formatter.Fail("failed to read participants", err)
	}
	result := CreatedSession{
		Code:         sess.Code,
		Config:       sess.ConfigName,
		Participants: len(participants),
		PreCreateID:  sess.PreCreateID,
		Room:         opts.Room,
		StartURLs:    make([]string, len(participants)),
	}
	if sess.IsForMarketplace() {
		result.Marketplace = sess.MarketplaceNumParticipants
	}
	for i, p := range participants {
		result.StartURLs[i] = svc.settings.BaseURL + p.StartURL()
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	w := formatter.Writer
	fmt.Fprintf(w, "Created session %s (%s) with %d participants\n", result.Code, result.Config, result.Participants)
	if result.Marketplace > 0 {
		fmt.Fprintf(w, "Marketplace workers: %d\n", result.Marketplace)
	}
	for _, u := range result.StartURLs {
		fmt.Fprintf(w, "  %s\n", u)
	}
	return nil
}
