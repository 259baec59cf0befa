package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestRun_Pilot(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/pilot.yaml")
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Events, 4)
	assert.Equal(t, "c0001", result.Events[0].Session)
	assert.Equal(t, []string{"c0003"}, result.Events[2].Participants)
	assert.Equal(t, []string{
		"/p/c0003/public_goods/Contribute/1/",
		"/p/c0004/public_goods/Contribute/1/",
	}, result.Events[3].Submitted)

	require.Len(t, result.Final, 3)
	assert.Equal(t, "ResultsWaitPage", result.Final[0].Page)
	assert.Equal(t, "Playing", result.Final[1].Status)
}

func TestRun_FullStudy(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/full_study.yaml")
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Events, 5)
	assert.Equal(t, "GROUP_SIZE_MISMATCH", result.Events[0].Error)
	assert.Empty(t, result.Events[0].Session)

	failed := result.Events[3]
	assert.Equal(t, "ADVANCEMENT_FAILED", failed.Error)
	assert.Equal(t, []string{
		"/p/c0004/bargaining/Offer/7/",
		"/p/c0005/bargaining/Offer/7/",
	}, failed.Submitted, "the failing submission does not stop the other one")
}

func TestRun_ExpectMismatchFails(t *testing.T) {
	s := &Scenario{
		Name:        "wrong_expectations",
		Description: "Expectations that do not hold",
		Manifest:    filepath.Join("testdata", "manifest.yaml"),
		Steps: []Step{
			{Create: &CreateStep{Config: "public_goods", Participants: 3}, Expect: &Expect{Participants: intPtr(4)}},
			{Advance: &AdvanceStep{}, Expect: &Expect{Outcome: "resubmitted_laggards"}},
			{Create: &CreateStep{Config: "public_goods", Participants: 5}},
		},
		Assertions: []Assertion{
			{Type: AssertCounts, Expect: map[string]any{"participants": 5}},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "expected 4 participants, got 3")
	assert.Contains(t, result.Errors[1], "expected outcome resubmitted_laggards")
	assert.Contains(t, result.Errors[2], "unexpected error")
	assert.Contains(t, result.Errors[3], `field "participants": expected 5, got 3`)
}

func TestRun_ErrorCodes(t *testing.T) {
	tests := []struct {
		name   string
		create CreateStep
		want   string
	}{
		{"unknown config", CreateStep{Config: "nope", Participants: 3}, "NOT_FOUND"},
		{"unknown room", CreateStep{Config: "public_goods", Participants: 3, Room: "attic"}, "NOT_FOUND"},
		{"count required", CreateStep{Config: "public_goods"}, "PARTICIPANT_COUNT_REQUIRED"},
		{"group size", CreateStep{Config: "public_goods", Participants: 4}, "GROUP_SIZE_MISMATCH"},
		{"marketplace slots", CreateStep{Config: "full_study", Participants: 3, Marketplace: true}, "GROUP_SIZE_MISMATCH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Scenario{
				Name:        "errors",
				Description: "error codes",
				Manifest:    filepath.Join("testdata", "manifest.yaml"),
				Steps:       []Step{{Create: &tt.create, Expect: &Expect{Error: tt.want}}},
			}
			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Nil(t, result.Final)
		})
	}
}

func TestRun_DemoAndMarketplace(t *testing.T) {
	s := &Scenario{
		Name:        "categories",
		Description: "Derived and scaled participant counts",
		Manifest:    filepath.Join("testdata", "manifest.yaml"),
		Steps: []Step{
			{Create: &CreateStep{Config: "full_study", Category: "demo"}, Expect: &Expect{Participants: intPtr(6)}},
			// 12 advertised workers at 1.5x spare slots.
			{Create: &CreateStep{Config: "full_study", Participants: 12, Marketplace: true}, Expect: &Expect{Participants: intPtr(18)}},
			// 6 workers would need 9 slots.
			{Create: &CreateStep{Config: "full_study", Participants: 6, Marketplace: true}, Expect: &Expect{Error: "GROUP_SIZE_MISMATCH"}},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 3, len(result.Events))
	assert.Len(t, result.Final, 18)
}

func TestRun_BadManifest(t *testing.T) {
	_, err := Run(&Scenario{Manifest: filepath.Join("testdata", "missing.yaml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load manifest")
}

func TestRun_PlaceCountMismatch(t *testing.T) {
	s := &Scenario{
		Manifest: filepath.Join("testdata", "manifest.yaml"),
		Steps: []Step{
			{Create: &CreateStep{Config: "public_goods", Participants: 3}},
			{Place: []int{1, 1}},
		},
	}
	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "place lists 2 positions for 3 participants")
}
