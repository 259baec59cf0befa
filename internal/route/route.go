// Package route builds the per-participant page routing table: for every
// participant, the ordered pages they will visit across all apps and rounds,
// keyed by absolute page index.
package route

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/roach88/cohort/internal/app"
	"github.com/roach88/cohort/internal/model"
	"github.com/roach88/cohort/internal/store"
)

// PageURL is the address of one page visit. The trailing index makes the
// URL unique per visit even when a page repeats across rounds.
func PageURL(participantCode, appName, pageName string, index int) string {
	return fmt.Sprintf("/p/%s/%s/%s/%d/", participantCode, appName, pageName, index)
}

// OutOfRangeURL is where a participant lands after their last page when no
// marketplace submission is pending.
func OutOfRangeURL(participantCode string) string {
	return fmt.Sprintf("/p/%s/shared/OutOfRangeNotification/", participantCode)
}

// Plan computes the routing table without touching storage. players must
// hold every player of the session; each participant's players are walked
// in (app position, round) order regardless of input order. It returns the
// routes in (participant, index) order and each participant's max index.
func Plan(apps *app.Registry, participants []*model.Participant, players []*model.Player) ([]model.PageRoute, map[int64]int, error) {
	byParticipant := make(map[int64][]*model.Player, len(participants))
	for _, pl := range players {
		byParticipant[pl.ParticipantID] = append(byParticipant[pl.ParticipantID], pl)
	}

	var routes []model.PageRoute
	maxIndex := make(map[int64]int, len(participants))
	for _, p := range participants {
		path := byParticipant[p.ID]
		sortPath(path)

		index := 0
		for _, pl := range path {
			a, ok := apps.Lookup(pl.AppName)
			if !ok {
				return nil, nil, fmt.Errorf("route participant %s: app %q is not registered", p.Name(), pl.AppName)
			}
			for _, page := range a.PageSequence() {
				index++
				routes = append(routes, model.PageRoute{
					ParticipantID: p.ID,
					PageIndex:     index,
					AppName:       pl.AppName,
					PlayerID:      pl.ID,
					PageName:      page.Name,
					URL:           PageURL(p.Code, pl.AppName, page.Name, index),
				})
			}
		}
		maxIndex[p.ID] = index
	}
	return routes, maxIndex, nil
}

// sortPath orders one participant's players by (app position, round).
func sortPath(path []*model.Player) {
	slices.SortStableFunc(path, func(a, b *model.Player) int {
		if c := cmp.Compare(a.AppIndex, b.AppIndex); c != 0 {
			return c
		}
		return cmp.Compare(a.RoundNumber, b.RoundNumber)
	})
}

// Builder persists the routing table of a freshly created session.
type Builder struct {
	apps *app.Registry
}

// NewBuilder creates a Builder resolving page sequences from apps.
func NewBuilder(apps *app.Registry) *Builder {
	return &Builder{apps: apps}
}

// Build computes and stores the routing table for sess inside tx, and sets
// every participant's max page index. It must run exactly once per session,
// before any start URL is handed out.
func (b *Builder) Build(ctx context.Context, tx *store.Tx, sess *model.Session) error {
	participants, err := tx.Participants(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("build routes: %w", err)
	}
	players, err := tx.Players(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("build routes: %w", err)
	}

	routes, maxIndex, err := Plan(b.apps, participants, players)
	if err != nil {
		return fmt.Errorf("build routes: %w", err)
	}

	if err := tx.InsertPageRoutes(ctx, routes); err != nil {
		return fmt.Errorf("build routes: %w", err)
	}
	for _, p := range participants {
		if err := tx.SetMaxPageIndex(ctx, p.ID, maxIndex[p.ID]); err != nil {
			return fmt.Errorf("build routes: %w", err)
		}
	}
	return nil
}
