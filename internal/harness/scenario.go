package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario drives one or more sessions through creation and advancement
// and asserts on the resulting state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Manifest is the experiment manifest to load. Relative paths resolve
	// against the scenario file's directory.
	Manifest string `yaml:"manifest"`

	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one action of a scenario. Exactly one of Create, Place or
// Advance is set.
type Step struct {
	Create  *CreateStep  `yaml:"create,omitempty"`
	Place   []int        `yaml:"place,omitempty"`
	Advance *AdvanceStep `yaml:"advance,omitempty"`

	// Expect is checked against the step's outcome. If nil, the step must
	// merely not fail.
	Expect *Expect `yaml:"expect,omitempty"`
}

// CreateStep creates a session.
type CreateStep struct {
	Config       string `yaml:"config"`
	Participants int    `yaml:"participants,omitempty"`
	Label        string `yaml:"label,omitempty"`
	Category     string `yaml:"category,omitempty"`
	Room         string `yaml:"room,omitempty"`
	Marketplace  bool   `yaml:"marketplace,omitempty"`
}

// AdvanceStep advances the laggards of the current session.
type AdvanceStep struct {
	// Fail lists participants (by id_in_session) whose page submissions
	// are answered with a server error.
	Fail []int `yaml:"fail,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Error is the expected error code, e.g. GROUP_SIZE_MISMATCH. Empty
	// means the step must succeed.
	Error string `yaml:"error,omitempty"`

	// Outcome is the expected advancement outcome.
	Outcome string `yaml:"outcome,omitempty"`

	PageIndex int `yaml:"page_index,omitempty"`

	// Participants is the number of participants created or acted upon.
	Participants *int `yaml:"participants,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "counts": entity counts of the current session
	// - "participant": fields of one participant
	// - "route": one routing table entry
	// - "groups": group membership of one app round
	// - "event_count": number of matching step events
	Type string `yaml:"type"`

	// Participant is an id_in_session (used by participant and route).
	Participant int `yaml:"participant,omitempty"`

	// Index is the absolute page index (used by route).
	Index int `yaml:"index,omitempty"`

	// App and Round select a subsession (used by groups).
	App   string `yaml:"app,omitempty"`
	Round int    `yaml:"round,omitempty"`

	// Groups lists members by id_in_session, one list per group in group
	// number order, members in id_in_group order (used by groups).
	Groups [][]int `yaml:"groups,omitempty"`

	// Kind and Outcome select step events (used by event_count).
	Kind    string `yaml:"kind,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`

	// Count is the expected number of events (used by event_count).
	Count int `yaml:"count,omitempty"`

	// Expect contains expected field values. Subset match - only
	// specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertCounts      = "counts"
	AssertParticipant = "participant"
	AssertRoute       = "route"
	AssertGroups      = "groups"
	AssertEventCount  = "event_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Manifest != "" && !filepath.IsAbs(scenario.Manifest) {
		scenario.Manifest = filepath.Join(filepath.Dir(path), scenario.Manifest)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Manifest == "" {
		return fmt.Errorf("manifest is required")
	}
	if _, err := os.Stat(s.Manifest); os.IsNotExist(err) {
		return fmt.Errorf("manifest not found: %s", s.Manifest)
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	created := false
	for i, step := range s.Steps {
		set := 0
		if step.Create != nil {
			set++
		}
		if len(step.Place) > 0 {
			set++
		}
		if step.Advance != nil {
			set++
		}
		if set != 1 {
			return fmt.Errorf("steps[%d]: exactly one of create, place or advance is required", i)
		}

		switch {
		case step.Create != nil:
			if step.Create.Config == "" {
				return fmt.Errorf("steps[%d].create: config is required", i)
			}
			created = true
		case !created:
			return fmt.Errorf("steps[%d]: no session has been created yet", i)
		}

		for _, pos := range step.Place {
			if pos < 0 {
				return fmt.Errorf("steps[%d].place: positions must be non-negative", i)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertCounts:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for counts", index)
		}
	case AssertParticipant:
		if a.Participant < 1 {
			return fmt.Errorf("assertions[%d]: participant is required for participant", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for participant", index)
		}
	case AssertRoute:
		if a.Participant < 1 || a.Index < 1 {
			return fmt.Errorf("assertions[%d]: participant and index are required for route", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for route", index)
		}
	case AssertGroups:
		if a.App == "" || a.Round < 1 {
			return fmt.Errorf("assertions[%d]: app and round are required for groups", index)
		}
		if len(a.Groups) == 0 {
			return fmt.Errorf("assertions[%d]: groups is required for groups", index)
		}
	case AssertEventCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
