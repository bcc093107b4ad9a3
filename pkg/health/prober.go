package health

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Prober defaults.
const (
	// DefaultProbeTimeout bounds a single probe.
	DefaultProbeTimeout = 5 * time.Second

	// DefaultInterval is the periodic probe interval.
	DefaultInterval = 30 * time.Second

	// DefaultThreshold is the number of consecutive failures before the
	// backend is declared unhealthy.
	DefaultThreshold = 3
)

// Checker performs a single liveness check.
type Checker interface {
	// Check returns nil when the backend answered successfully.
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context) error

// Check calls f(ctx).
func (f CheckerFunc) Check(ctx context.Context) error {
	return f(ctx)
}

// Config configures a Prober.
type Config struct {
	// Timeout bounds each probe (default: 5s).
	Timeout time.Duration

	// Interval is the periodic probe interval (default: 30s).
	Interval time.Duration

	// Threshold is the consecutive failure count that marks the backend
	// unhealthy (default: 3).
	Threshold int

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns the default prober configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:   DefaultProbeTimeout,
		Interval:  DefaultInterval,
		Threshold: DefaultThreshold,
	}
}

// State is a snapshot of the prober's health bookkeeping.
type State struct {
	Healthy             bool
	ConsecutiveFailures int
	LastSuccess         time.Time
	LastCheck           time.Time
	LastError           string
}

// Result describes the outcome of one probe.
type Result struct {
	OK                  bool
	Err                 error
	Latency             time.Duration
	ConsecutiveFailures int
	Healthy             bool
}

// Prober tracks backend health through repeated liveness checks.
type Prober struct {
	config  Config
	checker Checker

	mu                  sync.Mutex
	healthy             bool
	consecutiveFailures int
	lastSuccess         time.Time
	lastCheck           time.Time
	lastErr             error

	// gen discards results of probes started before the last Reset.
	gen uint64

	// Periodic loop
	running bool
	stopCh  chan struct{}

	// Callbacks
	onUnhealthy func()
	onResult    func(Result)
}

// NewProber creates a prober. Zero config fields take their defaults.
func NewProber(config Config, checker Checker) *Prober {
	if config.Timeout <= 0 {
		config.Timeout = DefaultProbeTimeout
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Threshold <= 0 {
		config.Threshold = DefaultThreshold
	}

	return &Prober{
		config:  config,
		checker: checker,
		healthy: true,
	}
}

// OnUnhealthy sets the callback fired when the threshold is reached.
func (p *Prober) OnUnhealthy(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onUnhealthy = fn
}

// OnResult sets a callback invoked after every recorded probe.
func (p *Prober) OnResult(fn func(Result)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onResult = fn
}

// Probe runs a single bounded check and records its outcome.
// It reports whether the check succeeded.
func (p *Prober) Probe(ctx context.Context) bool {
	p.mu.Lock()
	gen := p.gen
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	start := time.Now()
	err := p.checker.Check(ctx)
	latency := time.Since(start)

	return p.record(gen, err, latency)
}

func (p *Prober) record(gen uint64, err error, latency time.Duration) bool {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return err == nil
	}

	now := time.Now()
	p.lastCheck = now
	p.lastErr = err

	var fireUnhealthy bool
	if err == nil {
		p.consecutiveFailures = 0
		p.healthy = true
		p.lastSuccess = now
	} else {
		p.consecutiveFailures++
		if p.healthy && p.consecutiveFailures >= p.config.Threshold {
			p.healthy = false
			fireUnhealthy = true
		}
	}

	result := Result{
		OK:                  err == nil,
		Err:                 err,
		Latency:             latency,
		ConsecutiveFailures: p.consecutiveFailures,
		Healthy:             p.healthy,
	}
	onUnhealthy := p.onUnhealthy
	onResult := p.onResult
	p.mu.Unlock()

	if err != nil {
		p.debugLog("liveness probe failed",
			"error", err,
			"consecutiveFailures", result.ConsecutiveFailures,
			"healthy", result.Healthy)
	}

	if onResult != nil {
		onResult(result)
	}
	if fireUnhealthy && onUnhealthy != nil {
		onUnhealthy()
	}
	return err == nil
}

// StartPeriodic starts probing every interval. A zero interval uses the
// configured default. Calling StartPeriodic while running is a no-op.
func (p *Prober) StartPeriodic(interval time.Duration) {
	if interval <= 0 {
		interval = p.config.Interval
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	stopCh := p.stopCh
	p.mu.Unlock()

	go p.loop(interval, stopCh)
}

// StopPeriodic stops periodic probing. An in-flight probe completes within
// its own timeout.
func (p *Prober) StopPeriodic() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.running = false
	close(p.stopCh)
}

// IsRunning reports whether periodic probing is active.
func (p *Prober) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Prober) loop(interval time.Duration, stopCh chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.Probe(context.Background())
		}
	}
}

// Healthy reports the current health flag.
func (p *Prober) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthy
}

// MarkHealthy records an assumed-good backend, as after a successful connect.
func (p *Prober) MarkHealthy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = true
	p.consecutiveFailures = 0
}

// Reset clears all health state and discards in-flight probe results.
func (p *Prober) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.healthy = true
	p.consecutiveFailures = 0
	p.lastErr = nil
}

// State returns a snapshot of the health bookkeeping.
func (p *Prober) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := State{
		Healthy:             p.healthy,
		ConsecutiveFailures: p.consecutiveFailures,
		LastSuccess:         p.lastSuccess,
		LastCheck:           p.lastCheck,
	}
	if p.lastErr != nil {
		s.LastError = p.lastErr.Error()
	}
	return s
}

func (p *Prober) debugLog(msg string, args ...any) {
	if p.config.Logger != nil {
		p.config.Logger.Debug(msg, args...)
	}
}
