package heartbeat

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.cur = c.cur.Add(d)
	c.mu.Unlock()
}

// newTestMonitor returns a monitor marked running without its ticker loop,
// so checks are driven explicitly.
func newTestMonitor(cfg Config, onStale func()) (*Monitor, *fakeClock) {
	clock := &fakeClock{cur: time.Unix(1700000000, 0)}
	m := NewMonitor(cfg, onStale)
	m.now = clock.Now
	m.running = true
	m.lastActivity = clock.Now()
	return m, clock
}

func TestConfigDefaults(t *testing.T) {
	config := DefaultConfig()

	if config.CheckInterval != DefaultCheckInterval {
		t.Errorf("CheckInterval = %v, want %v", config.CheckInterval, DefaultCheckInterval)
	}
	if config.StaleTimeout != DefaultStaleTimeout {
		t.Errorf("StaleTimeout = %v, want %v", config.StaleTimeout, DefaultStaleTimeout)
	}
	if config.MaxMissed != DefaultMaxMissed {
		t.Errorf("MaxMissed = %d, want %d", config.MaxMissed, DefaultMaxMissed)
	}
	if got := config.DetectionDelay(); got != 90*time.Second {
		t.Errorf("DetectionDelay = %v, want 90s", got)
	}

	m := NewMonitor(Config{}, nil)
	if m.Config() != config {
		t.Errorf("zero config not defaulted: %+v", m.Config())
	}
}

func TestMonitorTripsExactlyOnce(t *testing.T) {
	var staleCount atomic.Int32
	m, clock := newTestMonitor(Config{
		CheckInterval: 15 * time.Second,
		StaleTimeout:  45 * time.Second,
		MaxMissed:     3,
	}, func() { staleCount.Add(1) })

	// Within the timeout nothing is missed.
	clock.Advance(40 * time.Second)
	m.check()
	if m.State().MissedCount != 0 {
		t.Fatalf("MissedCount = %d before timeout, want 0", m.State().MissedCount)
	}

	for i := 1; i <= 3; i++ {
		clock.Advance(15 * time.Second)
		m.check()
	}
	if staleCount.Load() != 1 {
		t.Fatalf("stale fired %d times after 3 misses, want 1", staleCount.Load())
	}

	// Further windows do not fire again.
	for i := 0; i < 5; i++ {
		clock.Advance(15 * time.Second)
		m.check()
	}
	if staleCount.Load() != 1 {
		t.Errorf("stale fired %d times, want exactly 1", staleCount.Load())
	}
	if !m.State().Tripped {
		t.Error("Tripped = false after ceiling reached")
	}
}

func TestMonitorActivityResetsMissed(t *testing.T) {
	var staleCount atomic.Int32
	m, clock := newTestMonitor(Config{
		CheckInterval: 10 * time.Second,
		StaleTimeout:  20 * time.Second,
		MaxMissed:     3,
	}, func() { staleCount.Add(1) })

	clock.Advance(30 * time.Second)
	m.check()
	clock.Advance(10 * time.Second)
	m.check()
	if m.State().MissedCount != 2 {
		t.Fatalf("MissedCount = %d, want 2", m.State().MissedCount)
	}

	m.RecordActivity()
	if m.State().MissedCount != 0 {
		t.Errorf("MissedCount = %d after activity, want 0", m.State().MissedCount)
	}

	clock.Advance(10 * time.Second)
	m.check()
	if staleCount.Load() != 0 {
		t.Errorf("stale fired after activity reset")
	}
}

func TestMonitorNotEvaluatedWhenStopped(t *testing.T) {
	var staleCount atomic.Int32
	m, clock := newTestMonitor(Config{StaleTimeout: time.Second, MaxMissed: 1}, func() { staleCount.Add(1) })
	m.running = false

	clock.Advance(time.Hour)
	m.check()
	if staleCount.Load() != 0 || m.State().MissedCount != 0 {
		t.Errorf("stopped monitor evaluated staleness: %+v", m.State())
	}
}

func TestMonitorMissedCallback(t *testing.T) {
	var mu sync.Mutex
	var missed []int
	m, clock := newTestMonitor(Config{StaleTimeout: time.Second, MaxMissed: 2}, nil)
	m.SetMissedCallback(func(n int, idle time.Duration) {
		mu.Lock()
		missed = append(missed, n)
		mu.Unlock()
	})

	clock.Advance(2 * time.Second)
	m.check()
	m.check()

	mu.Lock()
	defer mu.Unlock()
	if len(missed) != 2 || missed[0] != 1 || missed[1] != 2 {
		t.Errorf("missed callbacks = %v, want [1 2]", missed)
	}
}

func TestMonitorLoop(t *testing.T) {
	stale := make(chan struct{}, 4)
	m := NewMonitor(Config{
		StaleTimeout: 20 * time.Millisecond,
		MaxMissed:    2,
	}, func() { stale <- struct{}{} })

	m.Start(10 * time.Millisecond)
	m.Start(10 * time.Millisecond) // no-op while running
	defer m.Stop()

	select {
	case <-stale:
	case <-time.After(time.Second):
		t.Fatal("monitor did not trip")
	}

	time.Sleep(60 * time.Millisecond)
	if len(stale) != 0 {
		t.Errorf("stale fired %d extra times", len(stale))
	}
}

func TestMonitorRestartClearsTrip(t *testing.T) {
	var staleCount atomic.Int32
	m := NewMonitor(Config{StaleTimeout: 10 * time.Millisecond, MaxMissed: 1}, func() { staleCount.Add(1) })

	m.Start(5 * time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	m.Stop()
	m.Stop() // idempotent

	if staleCount.Load() != 1 {
		t.Fatalf("first run fired %d times, want 1", staleCount.Load())
	}
	if m.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}

	m.Start(5 * time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	m.Stop()

	if staleCount.Load() != 2 {
		t.Errorf("second run fired %d total, want 2", staleCount.Load())
	}
}

func TestMonitorKeptAliveByActivity(t *testing.T) {
	var staleCount atomic.Int32
	m := NewMonitor(Config{StaleTimeout: 100 * time.Millisecond, MaxMissed: 1}, func() { staleCount.Add(1) })

	m.Start(5 * time.Millisecond)
	for i := 0; i < 10; i++ {
		time.Sleep(10 * time.Millisecond)
		m.RecordActivity()
	}
	m.Stop()

	if staleCount.Load() != 0 {
		t.Errorf("stale fired %d times despite activity", staleCount.Load())
	}
	if m.IdleFor() > time.Second {
		t.Errorf("IdleFor = %v, want small", m.IdleFor())
	}
}
