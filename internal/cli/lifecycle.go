package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-code>...",
		Short: "Delete sessions and everything they own",
		Long: `Delete sessions. Participants, subsessions, players, page routes and
room bindings are removed with them.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			svc, err := rootOpts.open(false)
			if err != nil {
				return formatter.Fail("failed to open database", err)
			}
			defer svc.Close()

			ctx := commandContext(cmd)
			for _, code := range args {
				sess, err := svc.store.SessionByCode(ctx, code)
				if err != nil {
					return formatter.Fail("failed to delete session", err)
				}
				participants, err := svc.store.Participants(ctx, sess.ID)
				if err != nil {
					return formatter.Fail("failed to delete session", err)
				}
				if err := svc.store.DeleteSession(ctx, code); err != nil {
					return formatter.Fail("failed to delete session", err)
				}
				for _, p := range participants {
					svc.locks.Forget(p.Code)
				}
			}

			if formatter.Format == "json" {
				return formatter.Success(map[string]any{"deleted": args})
			}
			fmt.Fprintf(formatter.Writer, "Deleted %d session(s)\n", len(args))
			return nil
		},
	}
}

// NewArchiveCommand creates the archive command.
func NewArchiveCommand(rootOpts *RootOptions) *cobra.Command {
	var unarchive bool

	cmd := &cobra.Command{
		Use:           "archive <session-code>...",
		Short:         "Hide sessions from the default listing",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			svc, err := rootOpts.open(false)
			if err != nil {
				return formatter.Fail("failed to open database", err)
			}
			defer svc.Close()

			ctx := commandContext(cmd)
			for _, code := range args {
				if err := svc.store.SetArchived(ctx, code, !unarchive); err != nil {
					return formatter.Fail("failed to archive session", err)
				}
			}

			if formatter.Format == "json" {
				return formatter.Success(map[string]any{"archived": !unarchive, "sessions": args})
			}
			verb := "Archived"
			if unarchive {
				verb = "Unarchived"
			}
			fmt.Fprintf(formatter.Writer, "%s %d session(s)\n", verb, len(args))
			return nil
		},
	}

	cmd.Flags().BoolVar(&unarchive, "undo", false, "unarchive instead")

	return cmd
}
