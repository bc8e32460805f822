package sweep

import (
	"time"

	"github.com/amrivadeneyra/lunari-sub001/internal/config"
)

// DefaultRatingPrompt is the assistant message appended when a
// conversation moves to AWAITING_RATING.
const DefaultRatingPrompt = "¿Qué tan efectiva fue esta conversación? Responde con una calificación del 1 al 5."

// Config controls sweep cadence, windows and batch sizes.
type Config struct {
	RunInterval           time.Duration
	HelpConfirmationAfter time.Duration
	InactivityAfter       time.Duration
	CandidateTimeout      time.Duration
	BatchSize             int
	RatingPrompt          string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:           time.Minute,
		HelpConfirmationAfter: 2 * time.Minute,
		InactivityAfter:       5 * time.Minute,
		CandidateTimeout:      5 * time.Second,
		BatchSize:             100,
		RatingPrompt:          DefaultRatingPrompt,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:           cfg.Sweep.RunInterval,
		HelpConfirmationAfter: cfg.Sweep.HelpConfirmationAfter,
		InactivityAfter:       cfg.Sweep.InactivityAfter,
		CandidateTimeout:      cfg.Sweep.CandidateTimeout,
		BatchSize:             cfg.Sweep.BatchSize,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.HelpConfirmationAfter <= 0 {
		c.HelpConfirmationAfter = defaults.HelpConfirmationAfter
	}
	if c.InactivityAfter <= 0 {
		c.InactivityAfter = defaults.InactivityAfter
	}
	if c.CandidateTimeout <= 0 {
		c.CandidateTimeout = defaults.CandidateTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.RatingPrompt == "" {
		c.RatingPrompt = defaults.RatingPrompt
	}
	return c
}
