package session

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/roach88/cohort/internal/clock"
	"github.com/roach88/cohort/internal/config"
	"github.com/roach88/cohort/internal/ids"
	"github.com/roach88/cohort/internal/lock"
	"github.com/roach88/cohort/internal/marketplace"
	"github.com/roach88/cohort/internal/model"
	"github.com/roach88/cohort/internal/route"
	"github.com/roach88/cohort/internal/store"
)

// maxCodeAttempts bounds collision retries when drawing random codes.
const maxCodeAttempts = 10

// versionCheckTimeout caps the best-effort version check.
const versionCheckTimeout = 2 * time.Second

// CreateOptions carries the per-request inputs of CreateSession.
type CreateOptions struct {
	// ParticipantCount is the number of slots. Zero derives it from the
	// special category. In marketplace mode it is the advertised worker
	// count, scaled up by the spare multiplier.
	ParticipantCount int

	Label           string
	SpecialCategory model.SpecialCategory

	// PreCreateID correlates an asynchronous creation request with its
	// result. Generated when empty.
	PreCreateID string

	// Room binds the session to a configured room.
	Room string

	ForMarketplace bool
	Comment        string
}

// VersionChecker is an optional best-effort check run before creation.
// Its failure is logged and never aborts creation.
type VersionChecker func(ctx context.Context) error

// Factory creates sessions.
type Factory struct {
	registry     *config.Registry
	store        *store.Store
	routes       *route.Builder
	locks        *lock.ParticipantLocks
	marketplace  marketplace.Source
	codes        ids.Generator
	preCreateIDs ids.Generator
	clock        clock.Clock
	shuffle      func([]int)
	versionCheck VersionChecker
	logger       *slog.Logger
}

// Option configures a Factory.
type Option func(*Factory)

// WithCodeGenerator sets the generator for session and participant codes.
func WithCodeGenerator(g ids.Generator) Option {
	return func(f *Factory) { f.codes = g }
}

// WithPreCreateIDGenerator sets the generator for correlation ids.
func WithPreCreateIDGenerator(g ids.Generator) Option {
	return func(f *Factory) { f.preCreateIDs = g }
}

// WithClock sets the clock used for creation timestamps.
func WithClock(c clock.Clock) Option {
	return func(f *Factory) { f.clock = c }
}

// WithShuffle replaces the start-order shuffle used when random_start_order
// is set.
func WithShuffle(shuffle func([]int)) Option {
	return func(f *Factory) { f.shuffle = shuffle }
}

// WithMarketplace sets the external participant source.
func WithMarketplace(src marketplace.Source) Option {
	return func(f *Factory) { f.marketplace = src }
}

// WithVersionCheck installs a best-effort version check.
func WithVersionCheck(check VersionChecker) Option {
	return func(f *Factory) { f.versionCheck = check }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(f *Factory) { f.logger = l }
}

// NewFactory creates a Factory. locks is shared with whatever serializes
// participant requests at runtime.
func NewFactory(registry *config.Registry, s *store.Store, locks *lock.ParticipantLocks, opts ...Option) *Factory {
	f := &Factory{
		registry:     registry,
		store:        s,
		routes:       route.NewBuilder(registry.Apps()),
		locks:        locks,
		marketplace:  marketplace.Static{Multiplier: 1, SandboxMode: true},
		codes:        ids.CodeGenerator{},
		preCreateIDs: ids.UUIDv7Generator{},
		clock:        clock.System{},
		shuffle: func(order []int) {
			rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateSession builds a complete session from the named config.
//
// Config lookup, participant count and group-size checks fail before any
// write. Everything after runs in one transaction; a failure there rolls
// back and returns a *CreationError.
func (f *Factory) CreateSession(ctx context.Context, configName string, opts CreateOptions) (*model.Session, error) {
	started := time.Now()

	cfg, err := f.registry.Config(configName)
	if err != nil {
		return nil, err
	}

	count, err := participantCount(cfg, opts)
	if err != nil {
		return nil, err
	}

	divisor, err := f.registry.MinimumMultiple(cfg)
	if err != nil {
		return nil, err
	}

	// Marketplace sessions check both the advertised worker count and the
	// slots it scales to.
	advertised := model.NotForMarketplace
	if opts.ForMarketplace {
		advertised = count
		if advertised%divisor != 0 {
			return nil, &GroupSizeError{Config: cfg.Name(), Count: advertised, Divisor: divisor}
		}
		if count, err = marketplace.Slots(f.marketplace, advertised); err != nil {
			return nil, err
		}
	}
	if count%divisor != 0 {
		return nil, &GroupSizeError{Config: cfg.Name(), Count: count, Divisor: divisor}
	}

	var room *config.Room
	if opts.Room != "" {
		if room, err = f.registry.Room(opts.Room); err != nil {
			return nil, err
		}
	}

	f.checkVersion(ctx)

	frozen := cfg.Map()
	hash, err := model.ConfigFingerprint(frozen)
	if err != nil {
		return nil, err
	}

	preCreateID := opts.PreCreateID
	if preCreateID == "" {
		preCreateID = f.preCreateIDs.Generate()
	}

	sess := &model.Session{
		ConfigName:                 cfg.Name(),
		Config:                     frozen,
		ConfigHash:                 hash,
		Label:                      opts.Label,
		SpecialCategory:            opts.SpecialCategory,
		PreCreateID:                preCreateID,
		CreatedAt:                  f.clock.Now(),
		MarketplaceNumParticipants: advertised,
		MarketplaceSandbox:         f.marketplace.Sandbox(),
		Comment:                    opts.Comment,
	}

	var participantCodes []string
	err = f.store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		codes, err := f.uniqueCodes(ctx, tx, "session", 1)
		if err != nil {
			return err
		}
		sess.Code = codes[0]
		if err := tx.InsertSession(ctx, sess); err != nil {
			return err
		}

		participants, err := f.createParticipants(ctx, tx, sess, cfg, count)
		if err != nil {
			return err
		}
		participantCodes = make([]string, len(participants))
		for i, p := range participants {
			participantCodes[i] = p.Code
		}

		for appIndex, appName := range cfg.AppSequence() {
			if err := f.createApp(ctx, tx, sess, appIndex, appName, participants); err != nil {
				return err
			}
		}

		if err := f.routes.Build(ctx, tx, sess); err != nil {
			return err
		}

		if room != nil {
			if err := tx.BindRoom(ctx, room.Name, sess.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		f.logger.Error("session creation failed", "config", cfg.Name(), "participants", count, "error", err)
		return nil, newCreationError(cfg.Name(), err)
	}

	// Lock records exist only for committed participants.
	f.locks.Register(participantCodes...)

	f.logger.Info("session created",
		"code", sess.Code,
		"config", cfg.Name(),
		"participants", count,
		"divisor", divisor,
		"marketplace_workers", advertised,
		"duration", time.Since(started),
	)
	return sess, nil
}

func participantCount(cfg *config.SessionConfig, opts CreateOptions) (int, error) {
	count := opts.ParticipantCount
	if count == 0 {
		switch opts.SpecialCategory {
		case model.CategoryDemo:
			count = cfg.NumDemoParticipants()
		case model.CategoryBots, model.CategoryTest:
			count = cfg.NumBots()
		default:
			return 0, ErrParticipantCountRequired
		}
	}
	if count < 1 {
		return 0, fmt.Errorf("participant count must be >= 1, got %d", count)
	}
	return count, nil
}

// createParticipants inserts participants 1..count. StartOrder is a
// permutation of 0..count-1, shuffled when the config asks for a random
// start order; it decides group composition without changing identities.
func (f *Factory) createParticipants(ctx context.Context, tx *store.Tx, sess *model.Session, cfg *config.SessionConfig, count int) ([]*model.Participant, error) {
	order := make([]int, count)
	for i := range order {
		order[i] = i
	}
	if cfg.RandomStartOrder() {
		f.shuffle(order)
	}

	codes, err := f.uniqueCodes(ctx, tx, "participant", count)
	if err != nil {
		return nil, err
	}

	participants := make([]*model.Participant, count)
	for i := range participants {
		participants[i] = &model.Participant{
			SessionID:   sess.ID,
			Code:        codes[i],
			IDInSession: i + 1,
			StartOrder:  order[i],
		}
	}
	if err := tx.InsertParticipants(ctx, participants); err != nil {
		return nil, err
	}
	return participants, nil
}

// createApp creates one app's subsessions and players, then runs the app's
// group formation and initialization once per subsession and persists the
// result before returning.
func (f *Factory) createApp(ctx context.Context, tx *store.Tx, sess *model.Session, appIndex int, appName string, participants []*model.Participant) error {
	a, err := f.registry.App(appName)
	if err != nil {
		return err
	}

	subsessions := make([]*model.Subsession, a.NumRounds())
	for i := range subsessions {
		subsessions[i] = &model.Subsession{
			SessionID:   sess.ID,
			AppName:     appName,
			AppIndex:    appIndex,
			RoundNumber: i + 1,
		}
	}
	if err := tx.InsertSubsessions(ctx, subsessions); err != nil {
		return err
	}

	byStartOrder := slices.Clone(participants)
	slices.SortFunc(byStartOrder, func(a, b *model.Participant) int {
		return cmp.Compare(a.StartOrder, b.StartOrder)
	})

	perSubsession := make([][]*model.Player, len(subsessions))
	var all []*model.Player
	for i, sub := range subsessions {
		players := make([]*model.Player, len(byStartOrder))
		for j, p := range byStartOrder {
			players[j] = &model.Player{
				SessionID:     sess.ID,
				SubsessionID:  sub.ID,
				ParticipantID: p.ID,
				AppName:       appName,
				AppIndex:      appIndex,
				RoundNumber:   sub.RoundNumber,
			}
		}
		perSubsession[i] = players
		all = append(all, players...)
	}
	if err := tx.InsertPlayers(ctx, all); err != nil {
		return err
	}

	for i, sub := range subsessions {
		players := perSubsession[i]
		if err := a.CreateGroups(ctx, sub, players); err != nil {
			return fmt.Errorf("app %s round %d: create groups: %w", appName, sub.RoundNumber, err)
		}
		if err := a.Initialize(ctx, sub, players); err != nil {
			return fmt.Errorf("app %s round %d: initialize: %w", appName, sub.RoundNumber, err)
		}
		if err := tx.SaveSubsessionResult(ctx, sub, players); err != nil {
			return err
		}
	}
	return nil
}

// uniqueCodes draws n codes that are distinct from each other and from every
// code of the given kind already in the store, redrawing collisions.
func (f *Factory) uniqueCodes(ctx context.Context, tx *store.Tx, kind string, n int) ([]string, error) {
	codes := make([]string, n)
	pending := make([]int, n)
	for i := range pending {
		pending[i] = i
	}

	for attempt := 0; attempt < maxCodeAttempts && len(pending) > 0; attempt++ {
		for _, i := range pending {
			codes[i] = f.codes.Generate()
		}

		candidates := make([]string, len(pending))
		for j, i := range pending {
			candidates[j] = codes[i]
		}
		inUse, err := tx.CodesInUse(ctx, kind, candidates)
		if err != nil {
			return nil, err
		}

		isPending := make(map[int]bool, len(pending))
		for _, i := range pending {
			isPending[i] = true
		}
		seen := make(map[string]bool, n)
		var retry []int
		for i, code := range codes {
			if seen[code] || (isPending[i] && inUse[code]) {
				retry = append(retry, i)
				continue
			}
			seen[code] = true
		}
		pending = retry
	}
	if len(pending) > 0 {
		return nil, fmt.Errorf("could not draw %d unique %s codes after %d attempts", n, kind, maxCodeAttempts)
	}
	return codes, nil
}

func (f *Factory) checkVersion(ctx context.Context) {
	if f.versionCheck == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, versionCheckTimeout)
	defer cancel()
	if err := f.versionCheck(ctx); err != nil {
		f.logger.Warn("version check failed", "error", err)
	}
}
