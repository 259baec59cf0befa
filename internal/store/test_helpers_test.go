package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/cohort/internal/model"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSessionValue builds an unsaved session with minimal fields.
func createTestSessionValue(code string) *model.Session {
	return &model.Session{
		Code:                       code,
		ConfigName:                 "cfg",
		Config:                     map[string]any{"name": "cfg", "app_sequence": []string{"app"}},
		ConfigHash:                 "hash",
		CreatedAt:                  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		MarketplaceNumParticipants: model.NotForMarketplace,
	}
}

// createTestSession writes a session with n participants, one app of the
// given rounds, one player per participant per round and a two-page route
// per player. It returns the session.
func createTestSession(t *testing.T, s *Store, code string, n, rounds int) *model.Session {
	t.Helper()
	ctx := context.Background()

	sess := createTestSessionValue(code)

	err := s.WithTx(ctx, func(ctx context.Context, tx *Tx) error {
		if err := tx.InsertSession(ctx, sess); err != nil {
			return err
		}
		participants := make([]*model.Participant, n)
		for i := range participants {
			participants[i] = &model.Participant{
				SessionID:   sess.ID,
				Code:        fmt.Sprintf("%s-p%d", code, i+1),
				IDInSession: i + 1,
				StartOrder:  i,
			}
		}
		if err := tx.InsertParticipants(ctx, participants); err != nil {
			return err
		}

		subs := make([]*model.Subsession, rounds)
		for r := range subs {
			subs[r] = &model.Subsession{SessionID: sess.ID, AppName: "app", RoundNumber: r + 1}
		}
		if err := tx.InsertSubsessions(ctx, subs); err != nil {
			return err
		}

		for _, p := range participants {
			var players []*model.Player
			for _, sub := range subs {
				players = append(players, &model.Player{
					SessionID:     sess.ID,
					SubsessionID:  sub.ID,
					ParticipantID: p.ID,
					AppName:       "app",
					RoundNumber:   sub.RoundNumber,
				})
			}
			if err := tx.InsertPlayers(ctx, players); err != nil {
				return err
			}
			var routes []model.PageRoute
			for _, pl := range players {
				for _, page := range []string{"Decide", "Results"} {
					idx := len(routes) + 1
					routes = append(routes, model.PageRoute{
						ParticipantID: p.ID,
						PageIndex:     idx,
						AppName:       "app",
						PlayerID:      pl.ID,
						PageName:      page,
						URL:           fmt.Sprintf("/p/%s/app/%s/%d/", p.Code, page, idx),
					})
				}
			}
			if err := tx.InsertPageRoutes(ctx, routes); err != nil {
				return err
			}
			if err := tx.SetMaxPageIndex(ctx, p.ID, len(routes)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("createTestSession() failed: %v", err)
	}
	return sess
}
