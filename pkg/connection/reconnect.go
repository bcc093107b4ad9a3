package connection

import (
	"log/slog"
	"sync"
	"time"
)

// AttemptState is a snapshot of the scheduler's attempt bookkeeping.
type AttemptState struct {
	// AttemptCount is the number of delays scheduled since the last reset.
	AttemptCount int

	// MaxAttempts is the configured attempt budget.
	MaxAttempts int

	// LastDisconnect is when the most recent attempt was scheduled.
	LastDisconnect time.Time

	// NextDelay is the most recently scheduled delay.
	NextDelay time.Duration

	// Pending reports whether a reconnection timer is armed.
	Pending bool
}

// FireFunc is invoked when a scheduled delay elapses.
type FireFunc func(tenant string)

// Scheduler drives delayed reconnection attempts.
type Scheduler struct {
	mu sync.Mutex

	backoff *Backoff

	// Attempt bookkeeping
	attempts       int
	lastDisconnect time.Time
	nextDelay      time.Duration

	// Pending timer. gen invalidates timers that fire after Reset or Stop.
	timer *time.Timer
	gen   uint64

	fire       FireFunc
	unhealthy  func() bool
	onSchedule func(attempt int, delay time.Duration)

	logger *slog.Logger
}

// NewScheduler creates a scheduler that calls fire after each scheduled delay.
func NewScheduler(cfg BackoffConfig, fire FireFunc) *Scheduler {
	return &Scheduler{
		backoff: NewBackoff(cfg),
		fire:    fire,
	}
}

// SetHealthFunc sets the function consulted for backend health. While it
// reports unhealthy the base delay is doubled.
func (s *Scheduler) SetHealthFunc(healthy func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unhealthy = func() bool { return !healthy() }
}

// OnSchedule sets a callback invoked each time an attempt is scheduled.
func (s *Scheduler) OnSchedule(fn func(attempt int, delay time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSchedule = fn
}

// SetLogger sets the optional operational logger.
func (s *Scheduler) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// ScheduleNext arms a timer for the next attempt on tenant and returns the
// delay. It returns false without scheduling once the attempt budget is spent.
func (s *Scheduler) ScheduleNext(tenant string) (time.Duration, bool) {
	s.mu.Lock()

	limit := s.backoff.Config().MaxAttempts
	if s.attempts >= limit {
		s.mu.Unlock()
		s.debugLog("reconnect budget exhausted", "tenant", tenant, "attempts", limit)
		return 0, false
	}

	unhealthy := s.unhealthy != nil && s.unhealthy()
	delay := s.backoff.Next(s.attempts, unhealthy)

	s.attempts++
	s.lastDisconnect = time.Now()
	s.nextDelay = delay

	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(delay, func() { s.expire(gen, tenant) })

	attempt := s.attempts
	onSchedule := s.onSchedule
	s.mu.Unlock()

	s.debugLog("reconnect scheduled",
		"tenant", tenant,
		"attempt", attempt,
		"delay", delay,
		"unhealthy", unhealthy)

	if onSchedule != nil {
		onSchedule(attempt, delay)
	}
	return delay, true
}

// expire runs when a timer elapses. Timers superseded by Reset, Stop or a
// newer ScheduleNext are ignored.
func (s *Scheduler) expire(gen uint64, tenant string) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	fire := s.fire
	s.mu.Unlock()

	if fire != nil {
		fire(tenant)
	}
}

// Reset cancels any pending timer and clears the attempt count.
// Call this after a successful connection or an explicit disconnect.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	s.attempts = 0
	s.nextDelay = 0
}

// Stop cancels any pending timer and freezes the attempt count at the
// maximum, so no automatic attempt is scheduled until Reset.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	s.attempts = s.backoff.Config().MaxAttempts
}

// Cancel disarms a pending timer without touching the attempt count.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

func (s *Scheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

// Attempts returns the number of attempts scheduled since the last reset.
func (s *Scheduler) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Exhausted reports whether the attempt budget is spent.
func (s *Scheduler) Exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts >= s.backoff.Config().MaxAttempts
}

// State returns a snapshot of the attempt bookkeeping.
func (s *Scheduler) State() AttemptState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return AttemptState{
		AttemptCount:   s.attempts,
		MaxAttempts:    s.backoff.Config().MaxAttempts,
		LastDisconnect: s.lastDisconnect,
		NextDelay:      s.nextDelay,
		Pending:        s.timer != nil,
	}
}

func (s *Scheduler) debugLog(msg string, args ...any) {
	s.mu.Lock()
	logger := s.logger
	s.mu.Unlock()
	if logger != nil {
		logger.Debug(msg, args...)
	}
}
