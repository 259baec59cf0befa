package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/cohort/internal/config"
	"github.com/roach88/cohort/internal/lock"
	"github.com/roach88/cohort/internal/marketplace"
	"github.com/roach88/cohort/internal/progress"
	"github.com/roach88/cohort/internal/session"
	"github.com/roach88/cohort/internal/store"
)

// services are the components a command works with. Each command opens
// only what it needs and closes the store when it returns.
type services struct {
	settings config.Settings
	registry *config.Registry
	store    *store.Store
	locks    *lock.ParticipantLocks
}

func (o *RootOptions) loadRegistry() (*config.Registry, error) {
	slog.Debug("loading manifest", "path", o.Settings.Manifest)
	return config.LoadRegistry(o.Settings.Manifest)
}

func (o *RootOptions) openStore() (*store.Store, error) {
	slog.Debug("opening database", "path", o.Settings.Database)
	return store.Open(o.Settings.Database)
}

// open loads the registry (when withRegistry) and opens the store.
func (o *RootOptions) open(withRegistry bool) (*services, error) {
	svc := &services{settings: o.Settings, locks: lock.NewParticipantLocks()}
	if withRegistry {
		reg, err := o.loadRegistry()
		if err != nil {
			return nil, err
		}
		svc.registry = reg
	}
	st, err := o.openStore()
	if err != nil {
		return nil, err
	}
	svc.store = st
	return svc, nil
}

func (s *services) Close() {
	if err := s.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

func (s *services) marketplace() marketplace.Source {
	return marketplace.Static{
		Multiplier:  s.settings.SpareParticipantsMultiplier,
		SandboxMode: s.settings.MarketplaceSandbox,
	}
}

func (s *services) factory() *session.Factory {
	return session.NewFactory(s.registry, s.store, s.locks,
		session.WithMarketplace(s.marketplace()),
		session.WithLogger(slog.Default()),
	)
}

func (s *services) tracker(submitter progress.Submitter) *progress.Tracker {
	if submitter == nil {
		submitter = progress.NewHTTPSubmitter(s.settings.BaseURL, s.settings.SubmitTimeout)
	}
	return progress.NewTracker(s.store, s.locks, submitter,
		progress.WithMarketplace(s.marketplace()),
		progress.WithSubmitTimeout(s.settings.SubmitTimeout),
		progress.WithLogger(slog.Default()),
	)
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute (as in tests).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
