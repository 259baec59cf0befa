// Package testutil holds deterministic fakes shared by package tests.
package testutil

import (
	"context"
	"sync"

	"github.com/roach88/cohort/internal/app"
	"github.com/roach88/cohort/internal/model"
)

// HookCall records one hook invocation.
type HookCall struct {
	Hook        string // "groups" or "init"
	Round       int
	PlayerCount int
}

// ScriptedApp is an app.Descriptor that records every hook call and can be
// told to fail.
type ScriptedApp struct {
	app.Descriptor

	GroupErr error
	InitErr  error

	mu    sync.Mutex
	calls []HookCall
}

var _ app.App = (*ScriptedApp)(nil)

func (a *ScriptedApp) CreateGroups(ctx context.Context, sub *model.Subsession, players []*model.Player) error {
	a.record("groups", sub, players)
	if a.GroupErr != nil {
		return a.GroupErr
	}
	return a.Descriptor.CreateGroups(ctx, sub, players)
}

func (a *ScriptedApp) Initialize(ctx context.Context, sub *model.Subsession, players []*model.Player) error {
	a.record("init", sub, players)
	if a.InitErr != nil {
		return a.InitErr
	}
	return a.Descriptor.Initialize(ctx, sub, players)
}

// Calls returns the hook calls in order.
func (a *ScriptedApp) Calls() []HookCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]HookCall, len(a.calls))
	copy(out, a.calls)
	return out
}

func (a *ScriptedApp) record(hook string, sub *model.Subsession, players []*model.Player) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, HookCall{Hook: hook, Round: sub.RoundNumber, PlayerCount: len(players)})
}
