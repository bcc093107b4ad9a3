// Package connection provides the connection status model and the
// reconnection scheduler for the tablefeed client.
//
// This package handles:
//   - The ConnectionStatus enum shared by the client and its observers
//   - Exponential backoff with a ceiling and optional symmetric jitter
//   - Scheduling of delayed reconnection attempts with an attempt budget
//
// # Reconnection Strategy
//
// When a connection is lost abnormally, the next attempt waits:
//
//	delay = min(maxDelay, baseDelay * multiplier^attemptCount)
//
// The attempt count is incremented when the delay is scheduled, so the first
// retry waits baseDelay. With the defaults (1s, x1.5, 30s cap) the sequence is
// 1s, 1.5s, 2.25s, 3.375s ... 30s.
//
// While the backend is reported unhealthy the base delay is doubled before the
// formula is applied.
//
// # Jitter
//
// When enabled, jitter perturbs the delay symmetrically:
//
//	actual_delay = delay * (1 + random(-0.2, +0.2)), floored at the base delay
//
// # Attempt Budget
//
// Once MaxAttempts delays have been scheduled, ScheduleNext refuses to schedule
// another attempt. The caller is expected to report a failed status. Stop
// freezes the budget at its maximum until Reset is called.
package connection
