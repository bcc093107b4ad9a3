package client

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/tablefeed/tablefeed-go/pkg/connection"
	"github.com/tablefeed/tablefeed-go/pkg/health"
	"github.com/tablefeed/tablefeed-go/pkg/heartbeat"
	"github.com/tablefeed/tablefeed-go/pkg/log"
)

// Client defaults.
const (
	// DefaultConnectTimeout bounds how long Connect waits for an outcome.
	DefaultConnectTimeout = 15 * time.Second

	// DefaultAttemptTimeout bounds a single connection attempt, from the
	// liveness probe to the established subscription.
	DefaultAttemptTimeout = 15 * time.Second

	// DefaultTopicPrefix is prepended to the tenant key to form the
	// subscription destination.
	DefaultTopicPrefix = "/topic/notifications/"
)

// Config configures a Client.
type Config struct {
	// URL is the feed endpoint (ws://, wss:// or redis://).
	URL string

	// TopicPrefix forms the destination for a tenant as TopicPrefix+tenant.
	TopicPrefix string

	// LivenessPath is the REST liveness path probed on the backend derived
	// from URL. Empty disables the default checker; WithChecker overrides it.
	LivenessPath string

	// ConnectTimeout bounds how long Connect waits (default: 15s).
	ConnectTimeout time.Duration

	// AttemptTimeout bounds one connection attempt (default: 15s).
	AttemptTimeout time.Duration

	// Backoff configures reconnection delays.
	Backoff connection.BackoffConfig

	// Health configures the liveness prober.
	Health health.Config

	// Heartbeat configures the staleness monitor.
	Heartbeat heartbeat.Config

	// Logger is the optional operational logger. It is also used by the
	// prober and monitor when their own Logger is nil.
	Logger *slog.Logger

	// Trace receives protocol trace events. Nil disables tracing.
	Trace log.Logger
}

// DefaultConfig returns a Config with default timeouts, backoff, health and
// heartbeat settings. URL must still be set.
func DefaultConfig() Config {
	return Config{
		TopicPrefix:    DefaultTopicPrefix,
		LivenessPath:   health.DefaultLivenessPath,
		ConnectTimeout: DefaultConnectTimeout,
		AttemptTimeout: DefaultAttemptTimeout,
		Backoff:        connection.DefaultBackoffConfig(),
		Health:         health.DefaultConfig(),
		Heartbeat:      heartbeat.DefaultConfig(),
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: URL is required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch u.Scheme {
	case "ws", "wss", "redis", "rediss":
	default:
		return fmt.Errorf("%w: unsupported URL scheme %q", ErrInvalidConfig, u.Scheme)
	}
	if c.ConnectTimeout < 0 || c.AttemptTimeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	if c.Backoff.MaxDelay > 0 && c.Backoff.BaseDelay > c.Backoff.MaxDelay {
		return fmt.Errorf("%w: base delay %v exceeds max delay %v",
			ErrInvalidConfig, c.Backoff.BaseDelay, c.Backoff.MaxDelay)
	}
	return nil
}

// destination returns the subscription destination for tenant.
func (c *Config) destination(tenant string) string {
	return c.TopicPrefix + tenant
}

func (c Config) withDefaults() Config {
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultTopicPrefix
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}
	if c.Health.Logger == nil {
		c.Health.Logger = c.Logger
	}
	if c.Heartbeat.Logger == nil {
		c.Heartbeat.Logger = c.Logger
	}
	return c
}
