package progress

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohort/internal/app"
	"github.com/roach88/cohort/internal/config"
	"github.com/roach88/cohort/internal/lock"
	"github.com/roach88/cohort/internal/marketplace"
	"github.com/roach88/cohort/internal/model"
	"github.com/roach88/cohort/internal/route"
	"github.com/roach88/cohort/internal/session"
	"github.com/roach88/cohort/internal/store"
	"github.com/roach88/cohort/internal/testutil"
)

var testNow = time.Date(2026, 5, 12, 14, 0, 0, 0, time.UTC)

type fixture struct {
	store     *store.Store
	locks     *lock.ParticipantLocks
	submitter *testutil.RecordingSubmitter
	tracker   *Tracker
	session   *model.Session
}

// newFixture creates a session of n participants in one ungrouped app with
// 3 rounds of Decide, Results: 6 pages each.
func newFixture(t *testing.T, n int, createOpts session.CreateOptions, opts ...Option) *fixture {
	t.Helper()

	game := &app.Descriptor{
		AppName: "game",
		Rounds:  3,
		Pages:   []app.Page{{Name: "Decide"}, {Name: "Results"}},
	}
	apps, err := app.NewRegistry(game)
	require.NoError(t, err)
	reg, err := config.NewRegistry(apps, map[string]any{
		"participation_fee":             0,
		"real_world_currency_per_point": 1,
		"num_bots":                      n,
		"num_demo_participants":         n,
	}, []map[string]any{
		{"name": "game", "display_name": "Game", "app_sequence": []any{"game"}},
	}, nil)
	require.NoError(t, err)

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	locks := lock.NewParticipantLocks()
	mp := marketplace.Static{Multiplier: 1, SandboxMode: true}

	factory := session.NewFactory(reg, st, locks, session.WithLogger(logger), session.WithMarketplace(mp))
	createOpts.ParticipantCount = n
	sess, err := factory.CreateSession(context.Background(), "game", createOpts)
	require.NoError(t, err)

	submitter := &testutil.RecordingSubmitter{}
	base := []Option{
		WithClock(testutil.NewManualClock(testNow)),
		WithLogger(logger),
		WithMarketplace(mp),
	}
	return &fixture{
		store:     st,
		locks:     locks,
		submitter: submitter,
		tracker:   NewTracker(st, locks, submitter, append(base, opts...)...),
		session:   sess,
	}
}

func (fx *fixture) participants(t *testing.T) []*model.Participant {
	t.Helper()
	ps, err := fx.store.Participants(context.Background(), fx.session.ID)
	require.NoError(t, err)
	return ps
}

// place puts participants at the given page indices; 0 leaves one unvisited.
func (fx *fixture) place(t *testing.T, indices ...int) []*model.Participant {
	t.Helper()
	ps := fx.participants(t)
	require.Len(t, ps, len(indices))
	for i, idx := range indices {
		if idx == 0 {
			continue
		}
		ps[i].Visited = true
		ps[i].IndexInPages = idx
		require.NoError(t, fx.store.SaveProgress(context.Background(), ps[i]))
	}
	return ps
}

func TestAdvanceLaggards_StartsUnvisitedFirst(t *testing.T) {
	fx := newFixture(t, 5, session.CreateOptions{})
	ctx := context.Background()
	ps := fx.place(t, 2, 2, 0, 4, 2)

	adv, err := fx.tracker.AdvanceLaggards(ctx, fx.session.Code)
	require.NoError(t, err)
	assert.Equal(t, StartedUnvisited, adv.Outcome)
	assert.Equal(t, []string{ps[2].Code}, adv.Participants)
	assert.Empty(t, fx.submitter.URLs(), "no page is submitted while someone is unvisited")

	started, err := fx.store.ParticipantByCode(ctx, ps[2].Code)
	require.NoError(t, err)
	assert.True(t, started.Visited)
	assert.Equal(t, 1, started.IndexInPages)
	assert.Equal(t, "game", started.CurrentAppName)
	assert.Equal(t, "Decide", started.CurrentPageName)
	assert.Equal(t, 1, started.RoundNumber)
	assert.Equal(t, route.PageURL(started.Code, "game", "Decide", 1), started.CurrentFormPageURL)
	require.NotNil(t, started.TimeStarted)
	assert.True(t, testNow.Equal(*started.TimeStarted))

	sess, err := fx.store.SessionByCode(ctx, fx.session.Code)
	require.NoError(t, err)
	require.NotNil(t, sess.TimeStarted)
	assert.True(t, testNow.Equal(*sess.TimeStarted))

	// The next call moves on to the last-place tier, which now includes the
	// participant just started.
	adv, err = fx.tracker.AdvanceLaggards(ctx, fx.session.Code)
	require.NoError(t, err)
	assert.Equal(t, ResubmittedLaggards, adv.Outcome)
	assert.Equal(t, 1, adv.PageIndex)
	assert.Equal(t, []string{ps[2].Code}, adv.Participants)
}

func TestAdvanceLaggards_ResubmitsLastPlaceOnce(t *testing.T) {
	fx := newFixture(t, 5, session.CreateOptions{})
	ps := fx.place(t, 3, 3, 5, 6, 3)

	adv, err := fx.tracker.AdvanceLaggards(context.Background(), fx.session.Code)
	require.NoError(t, err)
	assert.Equal(t, ResubmittedLaggards, adv.Outcome)
	assert.Equal(t, 3, adv.PageIndex)
	assert.Equal(t, []string{ps[0].Code, ps[1].Code, ps[4].Code}, adv.Participants)

	want := []string{
		route.PageURL(ps[0].Code, "game", "Decide", 3),
		route.PageURL(ps[1].Code, "game", "Decide", 3),
		route.PageURL(ps[4].Code, "game", "Decide", 3),
	}
	slices.Sort(want)
	assert.Equal(t, want, fx.submitter.URLs())
}

func TestAdvanceLaggards_UsesCurrentFormPage(t *testing.T) {
	fx := newFixture(t, 2, session.CreateOptions{})
	ps := fx.place(t, 2, 4)
	ps[0].CurrentFormPageURL = "/p/custom/form/"
	require.NoError(t, fx.store.SaveProgress(context.Background(), ps[0]))

	_, err := fx.tracker.AdvanceLaggards(context.Background(), fx.session.Code)
	require.NoError(t, err)
	assert.Equal(t, []string{"/p/custom/form/"}, fx.submitter.URLs())
}

func TestAdvanceLaggards_SkipsFinished(t *testing.T) {
	fx := newFixture(t, 3, session.CreateOptions{})
	ps := fx.place(t, 7, 5, 7)

	adv, err := fx.tracker.AdvanceLaggards(context.Background(), fx.session.Code)
	require.NoError(t, err)
	assert.Equal(t, []string{ps[1].Code}, adv.Participants)

	fx.place(t, 7, 7, 7)
	adv, err = fx.tracker.AdvanceLaggards(context.Background(), fx.session.Code)
	require.NoError(t, err)
	assert.Equal(t, NothingToDo, adv.Outcome)
	assert.Len(t, fx.submitter.URLs(), 1)
}

func TestAdvanceLaggards_ErrorStatus(t *testing.T) {
	fx := newFixture(t, 3, session.CreateOptions{})
	ps := fx.place(t, 2, 2, 4)
	failing := route.PageURL(ps[1].Code, "game", "Results", 2)
	fx.submitter.StatusFor = map[string]int{failing: 500}

	_, err := fx.tracker.AdvanceLaggards(context.Background(), fx.session.Code)
	require.Error(t, err)
	assert.True(t, IsAdvancementFailed(err))

	var ae *AdvancementError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "P2", ae.Participant)
	assert.Equal(t, ps[1].Code, ae.Code)
	assert.Equal(t, 500, ae.StatusCode)
	assert.Contains(t, err.Error(), "status 500")

	// The other laggard was still submitted.
	assert.Len(t, fx.submitter.URLs(), 2)
}

func TestAdvanceLaggards_TransportError(t *testing.T) {
	fx := newFixture(t, 1, session.CreateOptions{})
	fx.place(t, 1)
	refused := errors.New("connection refused")
	fx.submitter.Err = refused

	_, err := fx.tracker.AdvanceLaggards(context.Background(), fx.session.Code)
	assert.True(t, IsAdvancementFailed(err))
	assert.ErrorIs(t, err, refused)
}

func TestAdvanceLaggards_Timeout(t *testing.T) {
	fx := newFixture(t, 1, session.CreateOptions{}, WithSubmitTimeout(20*time.Millisecond))
	ps := fx.place(t, 1)
	fx.submitter.Block = make(chan struct{})

	_, err := fx.tracker.AdvanceLaggards(context.Background(), fx.session.Code)
	assert.True(t, IsAdvancementFailed(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The lock was released.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, fx.locks.Lock(ctx, ps[0].Code))
	fx.locks.Unlock(ps[0].Code)
}

func TestAdvanceLaggards_UnknownSession(t *testing.T) {
	fx := newFixture(t, 1, session.CreateOptions{})
	_, err := fx.tracker.AdvanceLaggards(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestURLIShouldBeOn(t *testing.T) {
	fx := newFixture(t, 2, session.CreateOptions{})
	ctx := context.Background()
	ps := fx.participants(t)

	got, err := fx.tracker.URLIShouldBeOn(ctx, fx.session, ps[0])
	require.NoError(t, err)
	assert.Equal(t, "/InitializeParticipant/"+ps[0].Code, got)

	ps = fx.place(t, 4, 7)
	got, err = fx.tracker.URLIShouldBeOn(ctx, fx.session, ps[0])
	require.NoError(t, err)
	assert.Equal(t, route.PageURL(ps[0].Code, "game", "Results", 4), got)

	got, err = fx.tracker.URLIShouldBeOn(ctx, fx.session, ps[1])
	require.NoError(t, err)
	assert.Equal(t, route.OutOfRangeURL(ps[1].Code), got)
}

func TestURLIShouldBeOn_MarketplaceSubmit(t *testing.T) {
	fx := newFixture(t, 2, session.CreateOptions{ForMarketplace: true})
	ps := fx.place(t, 7, 7)
	ps[0].MarketplaceAssignmentID = "A1"

	got, err := fx.tracker.URLIShouldBeOn(context.Background(), fx.session, ps[0])
	require.NoError(t, err)
	assert.Equal(t, "https://workersandbox.mturk.com/mturk/externalSubmit?assignmentId=A1&extra_param=1", got)

	// Without an assignment there is nothing to submit to.
	got, err = fx.tracker.URLIShouldBeOn(context.Background(), fx.session, ps[1])
	require.NoError(t, err)
	assert.Equal(t, route.OutOfRangeURL(ps[1].Code), got)
}

func TestVisitStart_KeepsExistingStart(t *testing.T) {
	fx := newFixture(t, 1, session.CreateOptions{})
	ctx := context.Background()
	p := fx.participants(t)[0]

	earlier := testNow.Add(-time.Hour)
	p.TimeStarted = &earlier
	p.IndexInPages = 3
	require.NoError(t, fx.store.SaveProgress(ctx, p))
	require.NoError(t, fx.tracker.VisitStart(ctx, p))
	assert.True(t, p.Visited, "the caller's copy is refreshed")

	got, err := fx.store.ParticipantByCode(ctx, p.Code)
	require.NoError(t, err)
	assert.True(t, got.Visited)
	assert.Equal(t, 3, got.IndexInPages)
	assert.Equal(t, 2, got.RoundNumber)
	assert.True(t, earlier.Equal(*got.TimeStarted))
}

func TestVisitStart_AlreadyVisited(t *testing.T) {
	fx := newFixture(t, 1, session.CreateOptions{})
	ctx := context.Background()
	stale := fx.participants(t)[0]
	fx.place(t, 4)

	require.NoError(t, fx.tracker.VisitStart(ctx, stale))
	assert.Equal(t, 4, stale.IndexInPages)

	got, err := fx.store.ParticipantByCode(ctx, stale.Code)
	require.NoError(t, err)
	assert.Equal(t, 4, got.IndexInPages)
	assert.Nil(t, got.TimeStarted)
}

func TestStartUnvisited_ParticipantMovedOn(t *testing.T) {
	fx := newFixture(t, 2, session.CreateOptions{})
	ctx := context.Background()
	snapshot := fx.participants(t)

	// The first participant starts and reaches page 3 after the snapshot.
	fx.place(t, 3, 0)

	adv, err := fx.tracker.startUnvisited(ctx, snapshot)
	require.NoError(t, err)
	assert.Equal(t, []string{snapshot[1].Code}, adv.Participants)

	ps := fx.participants(t)
	assert.Equal(t, 3, ps[0].IndexInPages, "progress never goes backwards")
	assert.Equal(t, 1, ps[1].IndexInPages)
}

func TestAdvanceLaggards_WaitsForLockThenStartsFreshRow(t *testing.T) {
	fx := newFixture(t, 1, session.CreateOptions{})
	ctx := context.Background()
	p := fx.participants(t)[0]

	require.NoError(t, fx.locks.Lock(ctx, p.Code))
	done := make(chan error, 1)
	go func() {
		_, err := fx.tracker.AdvanceLaggards(ctx, fx.session.Code)
		done <- err
	}()

	// Whether the snapshot is taken before or after this write, the
	// participant must not be sent back to page 1.
	p.Visited = true
	p.IndexInPages = 3
	require.NoError(t, fx.store.SaveProgress(ctx, p))
	fx.locks.Unlock(p.Code)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("AdvanceLaggards did not return")
	}
	got, err := fx.store.ParticipantByCode(ctx, p.Code)
	require.NoError(t, err)
	assert.Equal(t, 3, got.IndexInPages)
}

func TestResubmit_SkipsParticipantWhoMovedOn(t *testing.T) {
	fx := newFixture(t, 2, session.CreateOptions{})
	ctx := context.Background()
	snapshot := fx.place(t, 2, 5)

	// The laggard submits page 2 themselves before the lock is free.
	fx.place(t, 3, 5)

	ok, err := fx.tracker.resubmit(ctx, fx.session, snapshot[0], 2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, fx.submitter.URLs())
}

func TestResubmit_UsesFreshPage(t *testing.T) {
	fx := newFixture(t, 1, session.CreateOptions{})
	ctx := context.Background()
	snapshot := fx.place(t, 2)

	fresh := *snapshot[0]
	fresh.CurrentFormPageURL = "/p/fresh/form/"
	require.NoError(t, fx.store.SaveProgress(ctx, &fresh))

	ok, err := fx.tracker.resubmit(ctx, fx.session, snapshot[0], 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"/p/fresh/form/"}, fx.submitter.URLs())
}

func TestStatus(t *testing.T) {
	assert.Equal(t, model.NotStarted, Status(&model.Participant{}).Kind)
	assert.Equal(t, "Waiting for P2", Status(&model.Participant{Visited: true, IsOnWaitPage: true, WaitingFor: "P2"}).String())
}
