// Package heartbeat detects connections that report themselves open while no
// inbound traffic arrives.
//
// Every inbound frame, data or protocol heartbeat, is recorded as activity.
// A periodic check compares the time since the last activity against a
// staleness timeout. Each stale check increments a missed counter; when the
// counter reaches the configured ceiling the stale callback fires once and the
// monitor stays tripped until it is restarted.
//
// Worst-case detection delay with defaults:
// StaleTimeout + MaxMissed*CheckInterval = 45 + 3*15 = 90 seconds.
package heartbeat

import (
	"log/slog"
	"sync"
	"time"
)

// Heartbeat constants.
const (
	// DefaultCheckInterval is the interval between staleness checks.
	DefaultCheckInterval = 15 * time.Second

	// DefaultStaleTimeout is the inactivity period after which a check counts
	// as missed. It is larger than the negotiated heartbeat interval so one
	// lost beat is tolerated.
	DefaultStaleTimeout = 45 * time.Second

	// DefaultMaxMissed is the number of missed checks that trips the monitor.
	DefaultMaxMissed = 3
)

// Config configures a Monitor.
type Config struct {
	// CheckInterval is the interval between staleness checks.
	CheckInterval time.Duration

	// StaleTimeout is the inactivity period that makes a check stale.
	StaleTimeout time.Duration

	// MaxMissed is the number of stale checks that trips the monitor.
	MaxMissed int

	// Logger is the optional logger for debug output.
	Logger *slog.Logger
}

// DefaultConfig returns the default heartbeat configuration.
func DefaultConfig() Config {
	return Config{
		CheckInterval: DefaultCheckInterval,
		StaleTimeout:  DefaultStaleTimeout,
		MaxMissed:     DefaultMaxMissed,
	}
}

// DetectionDelay returns the worst-case time from the last activity until the
// monitor trips.
func (c Config) DetectionDelay() time.Duration {
	return c.StaleTimeout + c.CheckInterval*time.Duration(c.MaxMissed)
}

// State is a snapshot of the monitor's bookkeeping.
type State struct {
	Running      bool
	LastActivity time.Time
	MissedCount  int
	Tripped      bool
}

// Monitor tracks inbound activity on a live connection.
type Monitor struct {
	config Config

	// Callbacks
	onStale  func()
	onMissed func(missed int, idle time.Duration)

	// State
	lastActivity time.Time
	missed       int
	tripped      bool

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}

	// now is replaceable in tests.
	now func() time.Time
}

// NewMonitor creates a heartbeat monitor that calls onStale when the
// connection is declared stale.
func NewMonitor(config Config, onStale func()) *Monitor {
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultCheckInterval
	}
	if config.StaleTimeout <= 0 {
		config.StaleTimeout = DefaultStaleTimeout
	}
	if config.MaxMissed <= 0 {
		config.MaxMissed = DefaultMaxMissed
	}

	return &Monitor{
		config:  config,
		onStale: onStale,
		now:     time.Now,
	}
}

// SetMissedCallback sets a callback invoked on every stale check.
func (m *Monitor) SetMissedCallback(cb func(missed int, idle time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMissed = cb
}

// Config returns the effective configuration.
func (m *Monitor) Config() Config {
	return m.config
}

// RecordActivity marks an inbound frame and resets the missed counter.
func (m *Monitor) RecordActivity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastActivity = m.now()
	m.missed = 0
}

// Start begins periodic checks every checkInterval (zero uses the configured
// interval). Starting counts as activity. Start while running is a no-op.
func (m *Monitor) Start(checkInterval time.Duration) {
	if checkInterval <= 0 {
		checkInterval = m.config.CheckInterval
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.tripped = false
	m.missed = 0
	m.lastActivity = m.now()
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	go m.loop(checkInterval, stopCh)
}

// Stop halts periodic checks. It is safe to call when not running.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.running = false
	m.missed = 0
	close(m.stopCh)
}

// IsRunning returns true if monitoring is active.
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// State returns a snapshot of the monitor.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		Running:      m.running,
		LastActivity: m.lastActivity,
		MissedCount:  m.missed,
		Tripped:      m.tripped,
	}
}

// IdleFor returns the time since the last recorded activity.
func (m *Monitor) IdleFor() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastActivity.IsZero() {
		return 0
	}
	return m.now().Sub(m.lastActivity)
}

func (m *Monitor) loop(interval time.Duration, stopCh chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.check()
		}
	}
}

// check evaluates staleness once.
func (m *Monitor) check() {
	m.mu.Lock()
	if !m.running || m.tripped {
		m.mu.Unlock()
		return
	}

	idle := m.now().Sub(m.lastActivity)
	if idle <= m.config.StaleTimeout {
		m.mu.Unlock()
		return
	}

	m.missed++
	missed := m.missed
	onMissed := m.onMissed

	var fire bool
	if m.missed >= m.config.MaxMissed {
		m.tripped = true
		fire = true
	}
	onStale := m.onStale
	m.mu.Unlock()

	m.debugLog("heartbeat missed", "missed", missed, "idle", idle, "tripped", fire)

	if onMissed != nil {
		onMissed(missed, idle)
	}
	if fire && onStale != nil {
		onStale()
	}
}

func (m *Monitor) debugLog(msg string, args ...any) {
	if m.config.Logger != nil {
		m.config.Logger.Debug(msg, args...)
	}
}
