package pool

import (
	"fmt"
	"time"
)

// Config tunes background validation and selection behavior for a
// Pool, independent of any one source's MaxPoolSize (which the
// connsource.Source itself carries, per §4.3/§4.4).
type Config struct {
	// MaxIdleTime evicts a pooled handle that has sat idle longer than
	// this, per §4.4.
	MaxIdleTime time.Duration

	// MaxLifetime evicts a pooled handle once it has existed longer
	// than this, regardless of use, per §4.4.
	MaxLifetime time.Duration

	// ValidationInterval is how often the background sweep runs.
	ValidationInterval time.Duration

	// Strategy selects among multiple candidate sources that can serve
	// the same logical role (e.g. a sharded or load-balanced target).
	Strategy Strategy

	// AcquireTimeout bounds how long Acquire waits for a slot before
	// returning a typed PoolExhausted error, per §4.4/§5. Zero means no
	// per-acquire deadline beyond whatever the caller's own ctx carries.
	AcquireTimeout time.Duration
}

// DefaultConfig returns conservative validation defaults.
func DefaultConfig() Config {
	return Config{
		MaxIdleTime:        10 * time.Minute,
		MaxLifetime:        time.Hour,
		ValidationInterval: 30 * time.Second,
		Strategy:           RoundRobin,
		AcquireTimeout:     30 * time.Second,
	}
}

// Validate reports a ConfigError-style wrapped error for any
// out-of-range setting, matching the teacher's config-validation
// idiom (see internal/database/postgres config.Validate()).
func (c Config) Validate() error {
	if c.MaxIdleTime < 0 {
		return fmt.Errorf("pool: MaxIdleTime must be non-negative, got %s", c.MaxIdleTime)
	}
	if c.MaxLifetime < 0 {
		return fmt.Errorf("pool: MaxLifetime must be non-negative, got %s", c.MaxLifetime)
	}
	if c.ValidationInterval <= 0 {
		return fmt.Errorf("pool: ValidationInterval must be positive, got %s", c.ValidationInterval)
	}
	if c.AcquireTimeout < 0 {
		return fmt.Errorf("pool: AcquireTimeout must be non-negative, got %s", c.AcquireTimeout)
	}
	return nil
}
