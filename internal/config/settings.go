package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Settings are process-level options read from the environment. CLI flags
// override them.
type Settings struct {
	Database string `env:"COHORT_DB" envDefault:"cohort.db"`
	Manifest string `env:"COHORT_MANIFEST" envDefault:"cohort.yaml"`
	BaseURL  string `env:"COHORT_BASE_URL" envDefault:"http://localhost:8000"`

	// SpareParticipantsMultiplier scales the worker count advertised on an
	// external marketplace into the number of slots created, to absorb
	// workers who drop out.
	SpareParticipantsMultiplier float64 `env:"COHORT_SPARE_MULTIPLIER" envDefault:"2"`
	MarketplaceSandbox          bool    `env:"COHORT_MARKETPLACE_SANDBOX" envDefault:"true"`

	SubmitTimeout time.Duration `env:"COHORT_SUBMIT_TIMEOUT" envDefault:"10s"`
	SecretKey     string        `env:"COHORT_SECRET_KEY"`
}

// LoadSettings parses Settings from environment variables.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	if s.SpareParticipantsMultiplier < 1 {
		return Settings{}, fmt.Errorf("parse env: COHORT_SPARE_MULTIPLIER must be >= 1, got %v", s.SpareParticipantsMultiplier)
	}
	return s, nil
}
