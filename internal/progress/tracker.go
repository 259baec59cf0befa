package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/cohort/internal/clock"
	"github.com/roach88/cohort/internal/lock"
	"github.com/roach88/cohort/internal/marketplace"
	"github.com/roach88/cohort/internal/model"
	"github.com/roach88/cohort/internal/route"
	"github.com/roach88/cohort/internal/store"
)

const (
	// DefaultSubmitTimeout bounds one forced resubmission.
	DefaultSubmitTimeout = 10 * time.Second

	maxConcurrentSubmits = 8
)

// Outcome says which kind of advancement a call performed.
type Outcome int

const (
	// NothingToDo means every participant is already past their last page.
	NothingToDo Outcome = iota
	// StartedUnvisited means participants who never opened their start link
	// were given a synthetic start visit. No page was submitted.
	StartedUnvisited
	// ResubmittedLaggards means the participants at the lowest page index
	// had their current page submitted for them.
	ResubmittedLaggards
)

func (o Outcome) String() string {
	switch o {
	case StartedUnvisited:
		return "started_unvisited"
	case ResubmittedLaggards:
		return "resubmitted_laggards"
	default:
		return "nothing_to_do"
	}
}

// Advancement is the result of one AdvanceLaggards call.
type Advancement struct {
	Outcome Outcome
	// PageIndex is the tier that was resubmitted.
	PageIndex int
	// Participants holds the codes acted on, in session order.
	Participants []string
}

// Tracker reads and moves participants' positions in their page sequence.
type Tracker struct {
	store         *store.Store
	locks         *lock.ParticipantLocks
	submitter     Submitter
	marketplace   marketplace.Source
	clock         clock.Clock
	submitTimeout time.Duration
	logger        *slog.Logger

	inflight singleflight.Group
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the clock used to stamp start times.
func WithClock(c clock.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithSubmitTimeout bounds each forced resubmission.
func WithSubmitTimeout(d time.Duration) Option {
	return func(t *Tracker) { t.submitTimeout = d }
}

// WithMarketplace sets the source used to build marketplace submit URLs.
func WithMarketplace(src marketplace.Source) Option {
	return func(t *Tracker) { t.marketplace = src }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// NewTracker creates a Tracker. locks must be the table the session factory
// registered participants in.
func NewTracker(s *store.Store, locks *lock.ParticipantLocks, submitter Submitter, opts ...Option) *Tracker {
	t := &Tracker{
		store:         s,
		locks:         locks,
		submitter:     submitter,
		marketplace:   marketplace.Static{Multiplier: 1, SandboxMode: true},
		clock:         clock.System{},
		submitTimeout: DefaultSubmitTimeout,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Status is the participant's coarse state.
func Status(p *model.Participant) model.Status {
	return model.StatusOf(p)
}

// VisitStart records a participant's first visit: the pointer moves to page
// 1 if it was 0, the current page is taken from the route table, and start
// times are stamped on the participant and, if unset, its session.
//
// The stored row is re-read under the participant's lock and left alone if
// it has visited already. p is refreshed from the store either way.
func (t *Tracker) VisitStart(ctx context.Context, p *model.Participant) error {
	_, err := t.startVisit(ctx, p)
	return err
}

// startVisit reports whether this call performed the start visit.
func (t *Tracker) startVisit(ctx context.Context, p *model.Participant) (bool, error) {
	var started bool
	err := t.locks.With(ctx, p.Code, func(ctx context.Context) error {
		fresh, err := t.store.ParticipantByCode(ctx, p.Code)
		if err != nil {
			return fmt.Errorf("visit start %s: %w", p.Code, err)
		}
		if !fresh.Visited {
			if started, err = t.visitStart(ctx, fresh); err != nil {
				return err
			}
			if !started {
				// Another process got there between the read and the write.
				if fresh, err = t.store.ParticipantByCode(ctx, p.Code); err != nil {
					return fmt.Errorf("visit start %s: %w", p.Code, err)
				}
			}
		}
		*p = *fresh
		return nil
	})
	return started, err
}

func (t *Tracker) visitStart(ctx context.Context, p *model.Participant) (bool, error) {
	now := t.clock.Now()

	p.Visited = true
	if p.IndexInPages == 0 {
		p.IndexInPages = 1
	}
	if p.IndexInPages <= p.MaxPageIndex {
		r, err := t.store.PageRoute(ctx, p.ID, p.IndexInPages)
		if err != nil {
			return false, fmt.Errorf("visit start %s: %w", p.Code, err)
		}
		round, err := t.roundOf(ctx, p.ID, r.PlayerID)
		if err != nil {
			return false, fmt.Errorf("visit start %s: %w", p.Code, err)
		}
		p.CurrentAppName = r.AppName
		p.CurrentPageName = r.PageName
		p.CurrentFormPageURL = r.URL
		p.RoundNumber = round
	}
	if p.TimeStarted == nil {
		p.TimeStarted = &now
	}

	ok, err := t.store.StartProgress(ctx, p)
	if err != nil || !ok {
		return false, err
	}
	return true, t.store.MarkSessionStarted(ctx, p.SessionID, now)
}

func (t *Tracker) roundOf(ctx context.Context, participantID, playerID int64) (int, error) {
	players, err := t.store.PlayersOf(ctx, participantID)
	if err != nil {
		return 0, err
	}
	for _, pl := range players {
		if pl.ID == playerID {
			return pl.RoundNumber, nil
		}
	}
	return 0, fmt.Errorf("player %d: %w", playerID, store.ErrNotFound)
}

// URLIShouldBeOn is where the participant belongs right now: the start link
// before the first visit, the routed page while pages remain, and after the
// last page either the marketplace submit address or the out-of-range page.
func (t *Tracker) URLIShouldBeOn(ctx context.Context, sess *model.Session, p *model.Participant) (string, error) {
	if !p.Visited {
		return p.StartURL(), nil
	}
	if p.IndexInPages <= p.MaxPageIndex {
		r, err := t.store.PageRoute(ctx, p.ID, p.IndexInPages)
		if err != nil {
			return "", err
		}
		return r.URL, nil
	}
	if sess.IsForMarketplace() && p.MarketplaceAssignmentID != "" {
		return t.marketplace.SubmitURL(sess.MarketplaceSandbox, p.MarketplaceAssignmentID), nil
	}
	return route.OutOfRangeURL(p.Code), nil
}

// AdvanceLaggards moves the slowest participants of a session one step.
//
// If anyone has never opened their start link, each of them gets a
// synthetic start visit and nothing else happens. Otherwise every
// participant at the lowest page index has that page submitted for them
// once. Concurrent calls for the same session share one run.
func (t *Tracker) AdvanceLaggards(ctx context.Context, sessionCode string) (*Advancement, error) {
	v, err, _ := t.inflight.Do(sessionCode, func() (any, error) {
		return t.advance(ctx, sessionCode)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Advancement), nil
}

func (t *Tracker) advance(ctx context.Context, sessionCode string) (*Advancement, error) {
	sess, err := t.store.SessionByCode(ctx, sessionCode)
	if err != nil {
		return nil, err
	}
	participants, err := t.store.Participants(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	var unvisited []*model.Participant
	for _, p := range participants {
		if !p.Visited {
			unvisited = append(unvisited, p)
		}
	}
	if len(unvisited) > 0 {
		adv, err := t.startUnvisited(ctx, unvisited)
		if err != nil || len(adv.Participants) > 0 {
			return adv, err
		}
		// Everyone in the snapshot started on their own meanwhile.
		if participants, err = t.store.Participants(ctx, sess.ID); err != nil {
			return nil, err
		}
	}

	laggards, index := lastPlace(participants)
	if len(laggards) == 0 {
		return &Advancement{Outcome: NothingToDo}, nil
	}

	// Positions are snapshotted above; each resubmission only takes its own
	// participant's lock and re-checks the position under it. One failure
	// does not cancel the others.
	submitted := make([]bool, len(laggards))
	var g errgroup.Group
	g.SetLimit(maxConcurrentSubmits)
	for i, p := range laggards {
		g.Go(func() error {
			ok, err := t.resubmit(ctx, sess, p, index)
			submitted[i] = ok
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var acted []*model.Participant
	for i, p := range laggards {
		if submitted[i] {
			acted = append(acted, p)
		}
	}
	t.logger.Info("advanced laggards", "session", sessionCode, "page_index", index, "participants", len(acted))
	return &Advancement{Outcome: ResubmittedLaggards, PageIndex: index, Participants: codes(acted)}, nil
}

func (t *Tracker) startUnvisited(ctx context.Context, unvisited []*model.Participant) (*Advancement, error) {
	var started []*model.Participant
	for _, p := range unvisited {
		ok, err := t.startVisit(ctx, p)
		if err != nil {
			return nil, err
		}
		if ok {
			started = append(started, p)
		}
	}
	t.logger.Info("started unvisited participants", "participants", len(started))
	return &Advancement{Outcome: StartedUnvisited, Participants: codes(started)}, nil
}

// lastPlace returns the participants at the lowest page index among those
// who still have a page to submit.
func lastPlace(participants []*model.Participant) ([]*model.Participant, int) {
	lowest := 0
	for _, p := range participants {
		if p.IndexInPages > p.MaxPageIndex {
			continue
		}
		if lowest == 0 || p.IndexInPages < lowest {
			lowest = p.IndexInPages
		}
	}
	if lowest == 0 {
		return nil, 0
	}

	var out []*model.Participant
	for _, p := range participants {
		if p.IndexInPages == lowest {
			out = append(out, p)
		}
	}
	return out, lowest
}

// resubmit submits the participant's current page if they are still at
// index, and reports whether it did.
func (t *Tracker) resubmit(ctx context.Context, sess *model.Session, p *model.Participant, index int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.submitTimeout)
	defer cancel()

	var (
		pageURL   string
		submitted bool
	)
	err := t.locks.With(ctx, p.Code, func(ctx context.Context) error {
		fresh, err := t.store.ParticipantByCode(ctx, p.Code)
		if err != nil {
			return err
		}
		if fresh.IndexInPages != index {
			t.logger.Debug("laggard moved on", "participant", fresh.Name(), "from", index, "to", fresh.IndexInPages)
			return nil
		}
		pageURL = fresh.CurrentFormPageURL
		if pageURL == "" {
			if pageURL, err = t.URLIShouldBeOn(ctx, sess, fresh); err != nil {
				return err
			}
		}
		status, err := t.submitter.Submit(ctx, pageURL)
		if err != nil {
			return err
		}
		if status >= 400 {
			return &AdvancementError{Participant: fresh.Name(), Code: fresh.Code, URL: pageURL, StatusCode: status}
		}
		submitted = true
		return nil
	})
	if err == nil {
		return submitted, nil
	}

	var ae *AdvancementError
	if !errors.As(err, &ae) {
		ae = &AdvancementError{Participant: p.Name(), Code: p.Code, URL: pageURL, Err: err}
	}
	t.logger.Error("advancement failed", "participant", ae.Participant, "code", ae.Code, "url", ae.URL, "status", ae.StatusCode, "error", ae.Err)
	return false, ae
}

func codes(participants []*model.Participant) []string {
	out := make([]string, len(participants))
	for i, p := range participants {
		out[i] = p.Code
	}
	return out
}
