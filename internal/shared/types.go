package shared

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns prefix followed by 32 lowercase hex characters.
func NewID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

type BackoffConfig struct {
	Initial     time.Duration `yaml:"initial"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		Initial:     time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 5,
	}
}

func NormalizeBackoff(cfg BackoffConfig) BackoffConfig {
	def := DefaultBackoff()
	if cfg.Initial <= 0 {
		cfg.Initial = def.Initial
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	return cfg
}

// Delay returns the wait before the given 1-based attempt: Initial doubled
// attempt-1 times, capped at MaxDelay.
func (b BackoffConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Initial
	for i := 1; i < attempt; i++ {
		d = MinDuration(d*2, b.MaxDelay)
		if d == b.MaxDelay {
			break
		}
	}
	return MinDuration(d, b.MaxDelay)
}

func MinDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
