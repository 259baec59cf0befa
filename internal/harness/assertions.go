package harness

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/roach88/cohort/internal/model"
	"github.com/roach88/cohort/internal/progress"
	"github.com/roach88/cohort/internal/store"
)

// AssertionContext provides context needed for assertion evaluation.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context

	// Session is the most recently created session, nil if none was.
	Session *model.Session
}

// EvaluateAssertions runs all assertions against the final state.
// Returns a list of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

// evaluateAssertion runs a single assertion.
func evaluateAssertion(result *Result, a Assertion, actx *AssertionContext) error {
	if a.Type == AssertEventCount {
		return assertEventCount(result.Events, a)
	}
	if actx == nil || actx.Store == nil || actx.Session == nil {
		return fmt.Errorf("no session was created")
	}

	switch a.Type {
	case AssertCounts:
		return assertCounts(actx, a.Expect)
	case AssertParticipant:
		return assertParticipant(actx, a.Participant, a.Expect)
	case AssertRoute:
		return assertRoute(actx, a.Participant, a.Index, a.Expect)
	case AssertGroups:
		return assertGroups(actx, a.App, a.Round, a.Groups)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// assertEventCount verifies how many events match a kind and, if given,
// an outcome or error code.
func assertEventCount(events []Event, a Assertion) error {
	count := 0
	for _, e := range events {
		if e.Kind != a.Kind {
			continue
		}
		if a.Outcome != "" && a.Outcome != e.Outcome && a.Outcome != e.Error {
			continue
		}
		count++
	}
	if count != a.Count {
		return fmt.Errorf("expected %d %s event(s), found %d", a.Count, a.Kind, count)
	}
	return nil
}

func assertCounts(actx *AssertionContext, expect map[string]any) error {
	counts, err := actx.Store.CountEntities(actx.Ctx, actx.Session.ID)
	if err != nil {
		return err
	}
	return matchFields(map[string]any{
		"participants": counts.Participants,
		"subsessions":  counts.Subsessions,
		"players":      counts.Players,
		"page_routes":  counts.PageRoutes,
	}, expect)
}

func assertParticipant(actx *AssertionContext, id int, expect map[string]any) error {
	p, err := participantByID(actx, id)
	if err != nil {
		return err
	}
	return matchFields(map[string]any{
		"code":                  p.Code,
		"label":                 p.Label,
		"visited":               p.Visited,
		"index_in_pages":        p.IndexInPages,
		"max_page_index":        p.MaxPageIndex,
		"start_order":           p.StartOrder,
		"current_app_name":      p.CurrentAppName,
		"current_page_name":     p.CurrentPageName,
		"current_form_page_url": p.CurrentFormPageURL,
		"round_number":          p.RoundNumber,
		"status":                progress.Status(p).String(),
	}, expect)
}

func assertRoute(actx *AssertionContext, id, index int, expect map[string]any) error {
	p, err := participantByID(actx, id)
	if err != nil {
		return err
	}
	r, err := actx.Store.PageRoute(actx.Ctx, p.ID, index)
	if err != nil {
		return err
	}
	return matchFields(map[string]any{
		"app":  r.AppName,
		"page": r.PageName,
		"url":  r.URL,
	}, expect)
}

// assertGroups compares the membership of every group in one app round.
func assertGroups(actx *AssertionContext, appName string, round int, want [][]int) error {
	participants, err := actx.Store.Participants(actx.Ctx, actx.Session.ID)
	if err != nil {
		return err
	}
	idInSession := make(map[int64]int, len(participants))
	for _, p := range participants {
		idInSession[p.ID] = p.IDInSession
	}

	players, err := actx.Store.Players(actx.Ctx, actx.Session.ID)
	if err != nil {
		return err
	}
	var inRound []*model.Player
	for _, pl := range players {
		if pl.AppName == appName && pl.RoundNumber == round {
			inRound = append(inRound, pl)
		}
	}
	if len(inRound) == 0 {
		return fmt.Errorf("no players in %s round %d", appName, round)
	}
	slices.SortFunc(inRound, func(a, b *model.Player) int {
		return cmp.Or(cmp.Compare(a.GroupNumber, b.GroupNumber), cmp.Compare(a.IDInGroup, b.IDInGroup))
	})

	var got [][]int
	for _, pl := range inRound {
		if pl.GroupNumber < 1 {
			return fmt.Errorf("%s round %d: player %d is not grouped", appName, round, idInSession[pl.ParticipantID])
		}
		for len(got) < pl.GroupNumber {
			got = append(got, nil)
		}
		got[pl.GroupNumber-1] = append(got[pl.GroupNumber-1], idInSession[pl.ParticipantID])
	}

	if !slices.EqualFunc(got, want, slices.Equal[[]int]) {
		return fmt.Errorf("groups of %s round %d: expected %v, got %v", appName, round, want, got)
	}
	return nil
}

func participantByID(actx *AssertionContext, id int) (*model.Participant, error) {
	participants, err := actx.Store.Participants(actx.Ctx, actx.Session.ID)
	if err != nil {
		return nil, err
	}
	for _, p := range participants {
		if p.IDInSession == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("participant %d: %w", id, store.ErrNotFound)
}

// matchFields performs a subset match: every expected key must exist in
// actual with an equal value.
func matchFields(actual, expect map[string]any) error {
	keys := make([]string, 0, len(expect))
	for k := range expect {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		got, ok := actual[k]
		if !ok {
			return fmt.Errorf("unknown field %q", k)
		}
		if !valuesEqual(got, expect[k]) {
			return fmt.Errorf("field %q: expected %v, got %v", k, expect[k], got)
		}
	}
	return nil
}

// valuesEqual compares a store value with a YAML-decoded one, which may
// carry integers as int, int64 or float64.
func valuesEqual(actual, expected any) bool {
	if a, ok := toInt64(actual); ok {
		if e, ok := toInt64(expected); ok {
			return a == e
		}
		return false
	}
	return actual == expected
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}
