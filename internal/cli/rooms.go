package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cohort/internal/store"
)

// RoomInfo is one room of the rooms command output.
type RoomInfo struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Session     string   `json:"session,omitempty"`
	Links       []string `json:"links"`
}

// NewRoomsCommand creates the rooms command.
func NewRoomsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms [name]",
		Short: "List rooms, their bound session and participant links",
		Long: `List the rooms in the manifest with the session currently bound to
each and the links participants use to enter it. Rooms with a guest list
get one link per label; with use_secure_urls each link carries a hash
derived from COHORT_SECRET_KEY.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRooms(rootOpts, args, cmd)
		},
	}
}

func runRooms(opts *RootOptions, args []string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	svc, err := opts.open(true)
	if err != nil {
		return formatter.Fail("failed to open", err)
	}
	defer svc.Close()

	rooms := svc.registry.Rooms()
	if len(args) == 1 {
		room, err := svc.registry.Room(args[0])
		if err != nil {
			return formatter.Fail("failed to find room", err)
		}
		rooms = rooms[:0:0]
		rooms = append(rooms, room)
	}

	infos := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		info := RoomInfo{Name: room.Name, DisplayName: room.DisplayName}

		sess, err := svc.store.RoomSession(ctx, room.Name)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return formatter.Fail("failed to read room binding", err)
		default:
			info.Session = sess.Code
		}

		links, err := room.ParticipantLinks(svc.settings.SecretKey)
		if err != nil {
			return formatter.Fail("failed to build room links", err)
		}
		for _, link := range links {
			info.Links = append(info.Links, svc.settings.BaseURL+link)
		}
		infos = append(infos, info)
	}

	if formatter.Format == "json" {
		return formatter.Success(infos)
	}
	w := formatter.Writer
	for i, r := range infos {
		if i > 0 {
			fmt.Fprintln(w)
		}
		session := r.Session
		if session == "" {
			session = "(none)"
		}
		fmt.Fprintf(w, "%s (%s), session %s\n", r.DisplayName, r.Name, session)
		for _, link := range r.Links {
			fmt.Fprintf(w, "  %s\n", link)
		}
	}
	return nil
}
