package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings_Defaults(t *testing.T) {
	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "cohort.db", s.Database)
	assert.Equal(t, 2.0, s.SpareParticipantsMultiplier)
	assert.Equal(t, 10*time.Second, s.SubmitTimeout)
	assert.True(t, s.MarketplaceSandbox)
}

func TestLoadSettings_FromEnv(t *testing.T) {
	t.Setenv("COHORT_DB", "/tmp/x.db")
	t.Setenv("COHORT_SPARE_MULTIPLIER", "1.5")
	t.Setenv("COHORT_SUBMIT_TIMEOUT", "250ms")

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", s.Database)
	assert.Equal(t, 1.5, s.SpareParticipantsMultiplier)
	assert.Equal(t, 250*time.Millisecond, s.SubmitTimeout)
}

func TestLoadSettings_Invalid(t *testing.T) {
	t.Setenv("COHORT_SPARE_MULTIPLIER", "0.5")
	_, err := LoadSettings()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")

	t.Setenv("COHORT_SPARE_MULTIPLIER", "two")
	_, err = LoadSettings()
	require.Error(t, err)
}
