package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TABLEFEED_"

// LookupFunc looks up an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides fields from the process environment.
func (c *Config) ApplyEnv() error {
	return c.ApplyLookup(os.LookupEnv)
}

// ApplyLookup overrides fields from TABLEFEED_* variables returned by lookup.
// Unset variables leave the field unchanged.
func (c *Config) ApplyLookup(lookup LookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("URL", &c.URL)
	str("TENANT", &c.Tenant)
	str("TOPIC_PREFIX", &c.TopicPrefix)
	str("LIVENESS_PATH", &c.LivenessPath)
	str("TOKEN_FILE", &c.Credential.File)
	str("TRACE_FILE", &c.TraceFile)
	str("METRICS_LISTEN", &c.MetricsListen)
	str("LOG_LEVEL", &c.LogLevel)

	for name, dst := range map[string]*Duration{
		"CONNECT_TIMEOUT":  &c.ConnectTimeout,
		"ATTEMPT_TIMEOUT":  &c.AttemptTimeout,
		"BACKOFF_BASE":     &c.Backoff.BaseDelay,
		"BACKOFF_MAX":      &c.Backoff.MaxDelay,
		"HEALTH_INTERVAL":  &c.Health.Interval,
		"HEARTBEAT_STALE":  &c.Heartbeat.StaleTimeout,
		"DISCOVER_TIMEOUT": &c.Discovery.Timeout,
	} {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s: %v", ErrInvalid, EnvPrefix, name, err)
		}
		*dst = Duration(d)
	}

	if v, ok := lookup(EnvPrefix + "MAX_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sMAX_ATTEMPTS: %v", ErrInvalid, EnvPrefix, err)
		}
		c.Backoff.MaxAttempts = n
	}
	if v, ok := lookup(EnvPrefix + "DISCOVER"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %sDISCOVER: %v", ErrInvalid, EnvPrefix, err)
		}
		c.Discovery.Enabled = b
	}
	return nil
}
