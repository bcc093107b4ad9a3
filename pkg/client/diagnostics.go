package client

import (
	"time"

	"github.com/tablefeed/tablefeed-go/pkg/connection"
)

// Diagnostics is a read-only snapshot of the client's internal state.
type Diagnostics struct {
	Status       connection.Status
	Tenant       string
	ConnectionID string
	Subscribed   bool
	Callbacks    int

	// Reconnection
	AttemptCount     int
	MaxAttempts      int
	NextDelay        time.Duration
	ReconnectPending bool
	LastDisconnect   time.Time

	// Health
	Healthy             bool
	ConsecutiveFailures int
	LastProbe           time.Time
	LastProbeError      string

	// Heartbeat
	MissedHeartbeats  int
	SinceLastActivity time.Duration

	// Counters since the client was created.
	Sessions     uint64
	Delivered    uint64
	DecodeErrors uint64

	LastError string
}

// Diagnostics returns a snapshot of counters for operational visibility.
// It takes no client lock and is safe to call from a status observer.
func (c *Client) Diagnostics() Diagnostics {
	snap := c.published.Load()
	d := Diagnostics{
		Status:       c.Status(),
		Tenant:       snap.tenant,
		ConnectionID: snap.connID,
		Subscribed:   snap.subscribed,
	}
	if snap.lastErr != nil {
		d.LastError = snap.lastErr.Error()
	}

	if d.Tenant != "" {
		d.Callbacks = c.registry.Count(d.Tenant)
	}

	attempts := c.scheduler.State()
	d.AttemptCount = attempts.AttemptCount
	d.MaxAttempts = attempts.MaxAttempts
	d.NextDelay = attempts.NextDelay
	d.ReconnectPending = attempts.Pending
	d.LastDisconnect = attempts.LastDisconnect

	hs := c.prober.State()
	d.Healthy = hs.Healthy
	d.ConsecutiveFailures = hs.ConsecutiveFailures
	d.LastProbe = hs.LastCheck
	d.LastProbeError = hs.LastError

	hb := c.monitor.State()
	d.MissedHeartbeats = hb.MissedCount
	if hb.Running {
		d.SinceLastActivity = c.monitor.IdleFor()
	}

	d.Sessions = c.sessions.Load()
	d.Delivered = c.delivered.Load()
	d.DecodeErrors = c.decodeErrors.Load()
	return d
}
