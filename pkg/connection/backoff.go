package connection

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff defaults.
const (
	// DefaultBaseDelay is the delay before the first reconnection attempt.
	DefaultBaseDelay = 1 * time.Second

	// DefaultMaxDelay is the ceiling for any single reconnection delay.
	DefaultMaxDelay = 30 * time.Second

	// DefaultMultiplier is the factor by which the delay grows per attempt.
	DefaultMultiplier = 1.5

	// DefaultMaxAttempts is the number of automatic attempts before giving up.
	DefaultMaxAttempts = 10

	// JitterFactor is the maximum symmetric jitter as a fraction of the delay.
	JitterFactor = 0.2

	// UnhealthyBaseFactor scales the base delay while the backend is unhealthy.
	UnhealthyBaseFactor = 2
)

// BackoffConfig configures reconnection delays.
type BackoffConfig struct {
	// BaseDelay is the first retry delay (default: 1s).
	BaseDelay time.Duration

	// MaxDelay caps every computed delay (default: 30s).
	MaxDelay time.Duration

	// Multiplier is the per-attempt growth factor (default: 1.5).
	Multiplier float64

	// Jitter enables +/-20% randomization of each delay.
	Jitter bool

	// MaxAttempts is the automatic attempt budget (default: 10).
	MaxAttempts int
}

// DefaultBackoffConfig returns the default backoff configuration.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Multiplier:  DefaultMultiplier,
		Jitter:      true,
		MaxAttempts: DefaultMaxAttempts,
	}
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = DefaultMultiplier
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// Backoff computes exponential reconnection delays.
type Backoff struct {
	mu sync.Mutex

	config BackoffConfig

	// Random source for jitter
	rng *rand.Rand
}

// NewBackoff creates a backoff calculator. Zero fields take their defaults.
func NewBackoff(cfg BackoffConfig) *Backoff {
	return &Backoff{
		config: cfg.withDefaults(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Config returns the effective configuration.
func (b *Backoff) Config() BackoffConfig {
	return b.config
}

// Base returns the base delay, doubled when the backend is unhealthy.
func (b *Backoff) Base(unhealthy bool) time.Duration {
	base := b.config.BaseDelay
	if unhealthy {
		base *= UnhealthyBaseFactor
	}
	return base
}

// Delay returns the delay for the given zero-based attempt count, without jitter.
func (b *Backoff) Delay(attempt int, unhealthy bool) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := b.Base(unhealthy)
	d := float64(base) * math.Pow(b.config.Multiplier, float64(attempt))
	if d > float64(b.config.MaxDelay) || math.IsInf(d, 1) {
		return b.config.MaxDelay
	}
	return time.Duration(d)
}

// Next returns the delay for the given attempt with jitter applied when enabled.
// The result is never below the (possibly doubled) base delay and never above
// the maximum delay.
func (b *Backoff) Next(attempt int, unhealthy bool) time.Duration {
	d := b.Delay(attempt, unhealthy)
	if !b.config.Jitter {
		return d
	}

	b.mu.Lock()
	r := b.rng.Float64()
	b.mu.Unlock()

	jittered := time.Duration(float64(d) * (1 + JitterFactor*(2*r-1)))
	if base := b.Base(unhealthy); jittered < base {
		jittered = base
	}
	if jittered > b.config.MaxDelay {
		jittered = b.config.MaxDelay
	}
	return jittered
}
