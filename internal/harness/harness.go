package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/roach88/cohort/internal/config"
	"github.com/roach88/cohort/internal/lock"
	"github.com/roach88/cohort/internal/marketplace"
	"github.com/roach88/cohort/internal/model"
	"github.com/roach88/cohort/internal/progress"
	"github.com/roach88/cohort/internal/session"
	"github.com/roach88/cohort/internal/store"
	"github.com/roach88/cohort/internal/testutil"
)

// Epoch is the manual clock's fixed time in every run.
var Epoch = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and code sequence.
type Harness struct {
	store    *store.Store
	registry *config.Registry
	locks    *lock.ParticipantLocks
	factory  *session.Factory
	clock    *testutil.ManualClock
	market   marketplace.Source
	logger   *slog.Logger

	// current is the most recently created session.
	current *model.Session
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Load the manifest and open an in-memory store
// 2. Execute steps in order, checking each expect clause
// 3. Evaluate assertions against the final state
// 4. Snapshot the last session's participants
func Run(scenario *Scenario) (*Result, error) {
	reg, err := config.LoadRegistry(scenario.Manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	locks := lock.NewParticipantLocks()
	clk := testutil.NewManualClock(Epoch)
	market := marketplace.Static{Multiplier: 1.5, SandboxMode: true}

	h := &Harness{
		store:    st,
		registry: reg,
		locks:    locks,
		clock:    clk,
		market:   market,
		logger:   logger,
		factory: session.NewFactory(reg, st, locks,
			session.WithCodeGenerator(newSequence("c")),
			session.WithPreCreateIDGenerator(newSequence("pre-")),
			session.WithClock(clk),
			session.WithShuffle(func([]int) {}),
			session.WithMarketplace(market),
			session.WithLogger(logger),
		),
	}

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	actx := &AssertionContext{
		Store:   st,
		Ctx:     ctx,
		Session: h.current,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	if h.current != nil {
		final, err := snapshot(ctx, st, h.current)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot final state: %w", err)
		}
		result.Final = final
	}

	return result, nil
}

// executeStep runs one step, records its event and checks its expect
// clause. Only infrastructure failures are returned; step failures travel
// on the event.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	var (
		event Event
		err   error
	)
	switch {
	case step.Create != nil:
		event, err = h.create(ctx, step.Create)
	case len(step.Place) > 0:
		event, err = h.place(ctx, step.Place)
	case step.Advance != nil:
		event, err = h.advance(ctx, step.Advance)
	}
	if err != nil {
		return err
	}
	event.Step = i
	if event.err != nil {
		event.Error = errorCode(event.err)
	}
	result.AddEvent(event)

	h.logger.Info("step completed", "step", i, "kind", event.Kind, "outcome", event.Outcome, "error", event.Error)

	for _, msg := range checkExpect(i, step.Expect, event) {
		result.AddError(msg)
	}
	return nil
}

func (h *Harness) create(ctx context.Context, c *CreateStep) (Event, error) {
	event := Event{Kind: EventCreate}
	category, err := model.ParseSpecialCategory(c.Category)
	if err != nil {
		return event, err
	}

	sess, createErr := h.factory.CreateSession(ctx, c.Config, session.CreateOptions{
		ParticipantCount: c.Participants,
		Label:            c.Label,
		SpecialCategory:  category,
		Room:             c.Room,
		ForMarketplace:   c.Marketplace,
	})
	h.clock.Advance(time.Minute)
	if createErr != nil {
		event.err = createErr
		return event, nil
	}
	h.current = sess

	participants, err := h.store.Participants(ctx, sess.ID)
	if err != nil {
		return event, err
	}
	event.Session = sess.Code
	event.Outcome = "created"
	event.Participants = participantCodes(participants)
	return event, nil
}

// place moves participants to the given positions as if they had loaded
// those pages.
func (h *Harness) place(ctx context.Context, positions []int) (Event, error) {
	event := Event{Kind: EventPlace, Session: h.current.Code}
	participants, err := h.store.Participants(ctx, h.current.ID)
	if err != nil {
		return event, err
	}
	if len(positions) != len(participants) {
		return event, fmt.Errorf("place lists %d positions for %d participants", len(positions), len(participants))
	}

	for i, p := range participants {
		if positions[i] == 0 {
			continue
		}
		p.Visited = true
		p.IndexInPages = positions[i]
		p.CurrentFormPageURL, p.CurrentAppName, p.CurrentPageName = "", "", ""
		if p.IndexInPages <= p.MaxPageIndex {
			r, err := h.store.PageRoute(ctx, p.ID, p.IndexInPages)
			if err != nil {
				return event, err
			}
			p.CurrentFormPageURL, p.CurrentAppName, p.CurrentPageName = r.URL, r.AppName, r.PageName
			if p.RoundNumber, err = h.roundOf(ctx, p.ID, r.PlayerID); err != nil {
				return event, err
			}
		}
		if p.TimeStarted == nil {
			now := h.clock.Now()
			p.TimeStarted = &now
		}
		if err := h.store.SaveProgress(ctx, p); err != nil {
			return event, err
		}
		event.Participants = append(event.Participants, p.Code)
	}
	h.clock.Advance(time.Minute)
	event.Outcome = "placed"
	return event, nil
}

func (h *Harness) roundOf(ctx context.Context, participantID, playerID int64) (int, error) {
	players, err := h.store.PlayersOf(ctx, participantID)
	if err != nil {
		return 0, err
	}
	for _, pl := range players {
		if pl.ID == playerID {
			return pl.RoundNumber, nil
		}
	}
	return 0, fmt.Errorf("player %d of participant %d: %w", playerID, participantID, store.ErrNotFound)
}

func (h *Harness) advance(ctx context.Context, a *AdvanceStep) (Event, error) {
	event := Event{Kind: EventAdvance, Session: h.current.Code}
	participants, err := h.store.Participants(ctx, h.current.ID)
	if err != nil {
		return event, err
	}

	submitter := &testutil.RecordingSubmitter{StatusFor: map[string]int{}}
	tracker := progress.NewTracker(h.store, h.locks, submitter,
		progress.WithClock(h.clock),
		progress.WithMarketplace(h.market),
		progress.WithLogger(h.logger),
	)

	failing := make(map[int]bool, len(a.Fail))
	for _, id := range a.Fail {
		failing[id] = true
	}
	for _, p := range participants {
		if !failing[p.IDInSession] {
			continue
		}
		pageURL := p.CurrentFormPageURL
		if pageURL == "" {
			if pageURL, err = tracker.URLIShouldBeOn(ctx, h.current, p); err != nil {
				return event, err
			}
		}
		submitter.StatusFor[pageURL] = http.StatusInternalServerError
	}

	adv, advErr := tracker.AdvanceLaggards(ctx, h.current.Code)
	h.clock.Advance(time.Minute)
	event.Submitted = submitter.URLs()
	if advErr != nil {
		event.err = advErr
		return event, nil
	}
	event.Outcome = adv.Outcome.String()
	event.PageIndex = adv.PageIndex
	event.Participants = adv.Participants
	return event, nil
}

// checkExpect compares a step's event with its expect clause.
func checkExpect(i int, expect *Expect, event Event) []string {
	var errs []string
	err := event.err
	if expect == nil {
		if err != nil {
			errs = append(errs, fmt.Sprintf("step %d (%s): unexpected error: %v", i, event.Kind, err))
		}
		return errs
	}

	if expect.Error != event.Error {
		if expect.Error == "" {
			errs = append(errs, fmt.Sprintf("step %d (%s): unexpected error: %v", i, event.Kind, err))
		} else {
			errs = append(errs, fmt.Sprintf("step %d (%s): expected error %s, got %q", i, event.Kind, expect.Error, event.Error))
		}
	}
	if expect.Outcome != "" && expect.Outcome != event.Outcome {
		errs = append(errs, fmt.Sprintf("step %d (%s): expected outcome %s, got %q", i, event.Kind, expect.Outcome, event.Outcome))
	}
	if expect.PageIndex != 0 && expect.PageIndex != event.PageIndex {
		errs = append(errs, fmt.Sprintf("step %d (%s): expected page_index %d, got %d", i, event.Kind, expect.PageIndex, event.PageIndex))
	}
	if expect.Participants != nil && *expect.Participants != len(event.Participants) {
		errs = append(errs, fmt.Sprintf("step %d (%s): expected %d participants, got %d", i, event.Kind, *expect.Participants, len(event.Participants)))
	}
	return errs
}

// errorCode maps a step failure to the code the command line reports.
func errorCode(err error) string {
	switch {
	case session.IsGroupSizeMismatch(err):
		return "GROUP_SIZE_MISMATCH"
	case session.IsCreationFailed(err):
		return "SESSION_CREATION_FAILED"
	case progress.IsAdvancementFailed(err):
		return "ADVANCEMENT_FAILED"
	case config.IsNotFound(err), errors.Is(err, store.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, session.ErrParticipantCountRequired):
		return "PARTICIPANT_COUNT_REQUIRED"
	case config.IsConfigError(err):
		return string(config.ErrorCodeOf(err))
	default:
		return "ERROR"
	}
}

func snapshot(ctx context.Context, st *store.Store, sess *model.Session) ([]ParticipantState, error) {
	participants, err := st.Participants(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	out := make([]ParticipantState, len(participants))
	for i, p := range participants {
		out[i] = ParticipantState{
			IDInSession:  p.IDInSession,
			Code:         p.Code,
			Visited:      p.Visited,
			IndexInPages: p.IndexInPages,
			MaxPageIndex: p.MaxPageIndex,
			App:          p.CurrentAppName,
			Page:         p.CurrentPageName,
			Round:        p.RoundNumber,
			Status:       progress.Status(p).String(),
		}
	}
	return out, nil
}

func participantCodes(participants []*model.Participant) []string {
	out := make([]string, len(participants))
	for i, p := range participants {
		out[i] = p.Code
	}
	return out
}

// sequence generates prefix0001, prefix0002, ... so codes are stable
// across runs.
type sequence struct {
	mu     sync.Mutex
	prefix string
	n      int
}

func newSequence(prefix string) *sequence {
	return &sequence{prefix: prefix}
}

func (s *sequence) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s%04d", s.prefix, s.n)
}
