package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cohort/internal/model"
)

// Snapshot captures a scenario's step events and final participant state.
// It is serialized as canonical JSON for deterministic comparison.
type Snapshot struct {
	ScenarioName string             `json:"scenario_name"`
	Events       []Event            `json:"events"`
	Final        []ParticipantState `json:"final,omitempty"`
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON
// serialization, which only handles plain maps, slices and scalars.
func (s *Snapshot) toCanonicalMap() map[string]any {
	events := make([]any, len(s.Events))
	for i, e := range s.Events {
		m := map[string]any{
			"step": e.Step,
			"kind": e.Kind,
		}
		if e.Session != "" {
			m["session"] = e.Session
		}
		if e.Outcome != "" {
			m["outcome"] = e.Outcome
		}
		if e.Error != "" {
			m["error"] = e.Error
		}
		if e.PageIndex != 0 {
			m["page_index"] = e.PageIndex
		}
		if len(e.Participants) > 0 {
			m["participants"] = e.Participants
		}
		if len(e.Submitted) > 0 {
			m["submitted"] = e.Submitted
		}
		events[i] = m
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"events":        events,
	}
	if len(s.Final) > 0 {
		final := make([]any, len(s.Final))
		for i, p := range s.Final {
			m := map[string]any{
				"id_in_session":  p.IDInSession,
				"code":           p.Code,
				"visited":        p.Visited,
				"index_in_pages": p.IndexInPages,
				"max_page_index": p.MaxPageIndex,
				"status":         p.Status,
			}
			if p.App != "" {
				m["current_app_name"] = p.App
			}
			if p.Page != "" {
				m["current_page_name"] = p.Page
			}
			if p.Round != 0 {
				m["round_number"] = p.Round
			}
			final[i] = m
		}
		result["final"] = final
	}
	return result
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an already computed result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := Snapshot{
		ScenarioName: scenarioName,
		Events:       result.Events,
		Final:        result.Final,
	}

	data, err := model.MarshalCanonical(snapshot.toCanonicalMap())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
