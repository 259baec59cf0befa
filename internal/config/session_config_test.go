package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohort/internal/app"
	"github.com/roach88/cohort/internal/groupsize"
)

func testApps(t *testing.T) *app.Registry {
	t.Helper()
	apps, err := app.NewRegistry(
		&app.Descriptor{AppName: "survey", Rounds: 1, Pages: []app.Page{{Name: "Intro"}}},
		&app.Descriptor{AppName: "pairs", Rounds: 3, GroupSpec: groupsize.Of(2), Pages: []app.Page{{Name: "Decide"}}},
		&app.Descriptor{AppName: "trios", Rounds: 1, GroupSpec: groupsize.Of(3), Pages: []app.Page{{Name: "Decide"}}},
		&app.Descriptor{AppName: "quads", Rounds: 2, GroupSpec: groupsize.Of(4)},
		&app.Descriptor{AppName: "sixes", Rounds: 1, GroupSpec: groupsize.Of(6)},
		&app.Descriptor{AppName: "market", Rounds: 1, GroupSpec: groupsize.OfRoles(2, 3)},
	)
	require.NoError(t, err)
	return apps
}

var testDefaults = map[string]any{
	"participation_fee":             0.0,
	"real_world_currency_per_point": 1.0,
	"num_bots":                      0,
	"num_demo_participants":         0,
}

func rawConfig(name string, apps ...any) map[string]any {
	return map[string]any{
		"name":         name,
		"display_name": name,
		"app_sequence": apps,
	}
}

func TestValidate_MergesDefaults(t *testing.T) {
	raw := rawConfig("public_goods", "survey")
	raw["participation_fee"] = "5"
	raw["treatment"] = "high"

	cfg, err := Validate(raw, testDefaults, testApps(t))
	require.NoError(t, err)

	assert.Equal(t, "public_goods", cfg.Name())
	assert.Equal(t, []string{"survey"}, cfg.AppSequence())
	assert.Equal(t, "5.00", cfg.ParticipationFee().String())
	assert.Equal(t, "1.00000", cfg.RealWorldCurrencyPerPoint().String())
	assert.Equal(t, "", cfg.Doc())

	v, ok := cfg.Get("treatment")
	require.True(t, ok)
	assert.Equal(t, "high", v)
}

func TestValidate_DoesNotMutateInputs(t *testing.T) {
	raw := rawConfig("c1", "survey")
	defaults := map[string]any{
		"participation_fee":             0.0,
		"real_world_currency_per_point": 1.0,
		"num_bots":                      0,
		"num_demo_participants":         0,
		"nested":                        map[string]any{"k": 1},
	}

	cfg, err := Validate(raw, defaults, nil)
	require.NoError(t, err)

	m := cfg.Map()
	m["nested"].(map[string]any)["k"] = 2
	assert.Equal(t, 1, defaults["nested"].(map[string]any)["k"])
	_, hasDoc := raw["doc"]
	assert.False(t, hasDoc)
}

func TestValidate_MissingKey(t *testing.T) {
	raw := rawConfig("c1", "survey")
	delete(raw, "display_name")

	_, err := Validate(raw, testDefaults, nil)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Equal(t, ErrCodeMissingKey, ErrorCodeOf(err))
	assert.Contains(t, err.Error(), "display_name")
}

func TestValidate_InvalidNames(t *testing.T) {
	for _, name := range []string{"my config", "my-config", ""} {
		t.Run(name, func(t *testing.T) {
			_, err := Validate(rawConfig(name, "survey"), testDefaults, nil)
			require.Error(t, err)
			assert.Equal(t, ErrCodeInvalidName, ErrorCodeOf(err))
		})
	}
}

func TestValidate_AppSequence(t *testing.T) {
	tests := []struct {
		name string
		seq  any
		code ErrorCode
	}{
		{"empty", []any{}, ErrCodeEmptyAppSequence},
		{"duplicate", []any{"pairs", "survey", "pairs"}, ErrCodeDuplicateApp},
		{"not a list", "survey", ErrCodeInvalidValue},
		{"non-string entry", []any{"survey", 3}, ErrCodeInvalidValue},
		{"unknown", []any{"survey", "nope"}, ErrCodeUnknownApp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := rawConfig("c1")
			raw["app_sequence"] = tt.seq
			_, err := Validate(raw, testDefaults, testApps(t))
			require.Error(t, err)
			assert.Equal(t, tt.code, ErrorCodeOf(err))
		})
	}
}

func TestValidate_FixedPayAlias(t *testing.T) {
	defaults := map[string]any{
		"real_world_currency_per_point": 1.0,
		"num_bots":                      0,
		"num_demo_participants":         0,
	}
	raw := rawConfig("c1", "survey")
	raw["fixed_pay"] = 7.5

	cfg, err := Validate(raw, defaults, nil)
	require.NoError(t, err)
	assert.Equal(t, "7.50", cfg.ParticipationFee().String())

	_, ok := cfg.Get("fixed_pay")
	assert.False(t, ok)
}

func TestValidate_RateQuantized(t *testing.T) {
	raw := rawConfig("c1", "survey")
	raw["real_world_currency_per_point"] = 0.010000000000002

	cfg, err := Validate(raw, testDefaults, nil)
	require.NoError(t, err)
	assert.Equal(t, "0.01000", cfg.RealWorldCurrencyPerPoint().String())
	assert.Equal(t, "0.01000", cfg.Map()["real_world_currency_per_point"])
}

func TestValidate_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
	}{
		{"fee not numeric", "participation_fee", "lots"},
		{"negative bots", "num_bots", -1},
		{"fractional demo", "num_demo_participants", 1.5},
		{"random order not bool", "random_start_order", "yes"},
		{"display name not string", "display_name", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := rawConfig("c1", "survey")
			raw[tt.key] = tt.value
			_, err := Validate(raw, testDefaults, nil)
			require.Error(t, err)
			assert.Equal(t, ErrCodeInvalidValue, ErrorCodeOf(err))
		})
	}
}

func TestValidate_DocTrimmed(t *testing.T) {
	raw := rawConfig("c1", "survey")
	raw["doc"] = "\n  A study of trust.  \n"
	raw["random_start_order"] = true

	cfg, err := Validate(raw, testDefaults, nil)
	require.NoError(t, err)
	assert.Equal(t, "A study of trust.", cfg.Doc())
	assert.True(t, cfg.RandomStartOrder())
}
