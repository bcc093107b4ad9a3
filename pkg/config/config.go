// Package config loads listener configuration from YAML files and the
// environment.
//
// Precedence, lowest first: Default, the YAML file, TABLEFEED_* environment
// variables, then command-line flags applied by the caller. Durations are
// written as Go duration strings ("15s", "1m30s").
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tablefeed/tablefeed-go/pkg/client"
	"github.com/tablefeed/tablefeed-go/pkg/connection"
	"github.com/tablefeed/tablefeed-go/pkg/credential"
	"github.com/tablefeed/tablefeed-go/pkg/health"
	"github.com/tablefeed/tablefeed-go/pkg/heartbeat"
	"github.com/tablefeed/tablefeed-go/pkg/log"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config is the on-disk listener configuration.
type Config struct {
	// URL is the feed endpoint. Empty with Discovery.Enabled resolves the
	// endpoint over mDNS.
	URL string `yaml:"url"`

	// Tenant is connected on startup when set.
	Tenant string `yaml:"tenant"`

	TopicPrefix    string   `yaml:"topic_prefix"`
	LivenessPath   string   `yaml:"liveness_path"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
	AttemptTimeout Duration `yaml:"attempt_timeout"`

	Credential CredentialConfig `yaml:"credential"`
	Backoff    BackoffConfig    `yaml:"backoff"`
	Health     HealthConfig     `yaml:"health"`
	Heartbeat  HeartbeatConfig  `yaml:"heartbeat"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`

	// TraceFile is the protocol trace output path. Empty disables tracing.
	TraceFile string `yaml:"trace_file"`

	// MetricsListen is the address serving /metrics. Empty disables it.
	MetricsListen string `yaml:"metrics_listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// CredentialConfig selects the token source. The first non-empty field of
// Token, File and Env wins.
type CredentialConfig struct {
	Token string `yaml:"token"`
	File  string `yaml:"file"`
	Env   string `yaml:"env"`
}

// BackoffConfig mirrors connection.BackoffConfig.
type BackoffConfig struct {
	BaseDelay   Duration `yaml:"base_delay"`
	MaxDelay    Duration `yaml:"max_delay"`
	Multiplier  float64  `yaml:"multiplier"`
	Jitter      *bool    `yaml:"jitter"`
	MaxAttempts int      `yaml:"max_attempts"`
}

// HealthConfig mirrors health.Config.
type HealthConfig struct {
	Timeout   Duration `yaml:"timeout"`
	Interval  Duration `yaml:"interval"`
	Threshold int      `yaml:"threshold"`
}

// HeartbeatConfig mirrors heartbeat.Config.
type HeartbeatConfig struct {
	CheckInterval Duration `yaml:"check_interval"`
	StaleTimeout  Duration `yaml:"stale_timeout"`
	MaxMissed     int      `yaml:"max_missed"`
}

// DiscoveryConfig controls mDNS endpoint discovery.
type DiscoveryConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Instance string   `yaml:"instance"`
	Timeout  Duration `yaml:"timeout"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cc := client.DefaultConfig()
	jitter := cc.Backoff.Jitter
	return Config{
		TopicPrefix:    cc.TopicPrefix,
		LivenessPath:   cc.LivenessPath,
		ConnectTimeout: Duration(cc.ConnectTimeout),
		AttemptTimeout: Duration(cc.AttemptTimeout),
		Credential:     CredentialConfig{Env: credential.DefaultEnvVar},
		Backoff: BackoffConfig{
			BaseDelay:   Duration(cc.Backoff.BaseDelay),
			MaxDelay:    Duration(cc.Backoff.MaxDelay),
			Multiplier:  cc.Backoff.Multiplier,
			Jitter:      &jitter,
			MaxAttempts: cc.Backoff.MaxAttempts,
		},
		Health: HealthConfig{
			Timeout:   Duration(cc.Health.Timeout),
			Interval:  Duration(cc.Health.Interval),
			Threshold: cc.Health.Threshold,
		},
		Heartbeat: HeartbeatConfig{
			CheckInterval: Duration(cc.Heartbeat.CheckInterval),
			StaleTimeout:  Duration(cc.Heartbeat.StaleTimeout),
			MaxMissed:     cc.Heartbeat.MaxMissed,
		},
		Discovery: DiscoveryConfig{Timeout: Duration(5 * time.Second)},
		LogLevel:  "info",
	}
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	return &cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	cfg, err := Parse(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
		}
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that the client cannot default on its own.
func (c *Config) Validate() error {
	if c.URL == "" && !c.Discovery.Enabled {
		return fmt.Errorf("%w: url is required unless discovery is enabled", ErrInvalid)
	}
	if c.Backoff.MaxAttempts < 0 {
		return fmt.Errorf("%w: backoff.max_attempts must not be negative", ErrInvalid)
	}
	if c.Backoff.Multiplier != 0 && c.Backoff.Multiplier < 1 {
		return fmt.Errorf("%w: backoff.multiplier must be at least 1", ErrInvalid)
	}
	if c.Health.Threshold < 0 || c.Heartbeat.MaxMissed < 0 {
		return fmt.Errorf("%w: thresholds must not be negative", ErrInvalid)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.URL != "" {
		cc := c.ClientConfig(nil, nil)
		if err := cc.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	return nil
}

// ClientConfig converts c to a client configuration.
func (c *Config) ClientConfig(logger *slog.Logger, trace log.Logger) client.Config {
	jitter := true
	if c.Backoff.Jitter != nil {
		jitter = *c.Backoff.Jitter
	}
	return client.Config{
		URL:            c.URL,
		TopicPrefix:    c.TopicPrefix,
		LivenessPath:   c.LivenessPath,
		ConnectTimeout: c.ConnectTimeout.Std(),
		AttemptTimeout: c.AttemptTimeout.Std(),
		Backoff: connection.BackoffConfig{
			BaseDelay:   c.Backoff.BaseDelay.Std(),
			MaxDelay:    c.Backoff.MaxDelay.Std(),
			Multiplier:  c.Backoff.Multiplier,
			Jitter:      jitter,
			MaxAttempts: c.Backoff.MaxAttempts,
		},
		Health: health.Config{
			Timeout:   c.Health.Timeout.Std(),
			Interval:  c.Health.Interval.Std(),
			Threshold: c.Health.Threshold,
		},
		Heartbeat: heartbeat.Config{
			CheckInterval: c.Heartbeat.CheckInterval.Std(),
			StaleTimeout:  c.Heartbeat.StaleTimeout.Std(),
			MaxMissed:     c.Heartbeat.MaxMissed,
		},
		Logger: logger,
		Trace:  trace,
	}
}

// Provider returns the credential provider selected by the configuration.
func (c CredentialConfig) Provider() credential.Provider {
	switch {
	case c.Token != "":
		return credential.NewStatic(c.Token)
	case c.File != "":
		return credential.NewFile(c.File)
	default:
		return credential.NewEnv(c.Env)
	}
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

// LoadError describes a configuration file that could not be loaded.
type LoadError struct {
	// File is the path that failed to load (empty for Parse).
	File string

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.File != "" {
		return e.File + ": " + msg
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}
