package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tablefeed/tablefeed-go/pkg/connection"
	"github.com/tablefeed/tablefeed-go/pkg/log"
	"github.com/tablefeed/tablefeed-go/pkg/transport"
)

// attempt runs one connection attempt: liveness probe (before the first
// session only), credential lookup, transport open and tenant subscription.
func (c *Client) attempt(s session) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.AttemptTimeout)
	defer cancel()

	c.mu.Lock()
	if s.epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	c.cancelAttempt = cancel
	probeFirst := !c.established && c.checker != nil
	c.mu.Unlock()

	if probeFirst && !c.prober.Probe(ctx) {
		c.mu.Lock()
		if s.epoch == c.epoch {
			c.serverDownLocked(s)
		}
		c.mu.Unlock()
		return
	}

	token, err := c.token(ctx)
	if err != nil {
		c.mu.Lock()
		var release func()
		if s.epoch == c.epoch {
			release = c.failLocked(s, err)
		}
		c.mu.Unlock()
		if release != nil {
			release()
		}
		return
	}

	headers := transport.Headers{transport.HeaderAuthorization: "Bearer " + token}
	conn, err := c.dialer.Open(ctx, c.config.URL, headers, c.callbacks(s))

	c.mu.Lock()
	if s.epoch != c.epoch {
		c.mu.Unlock()
		if conn != nil {
			conn.Deactivate()
		}
		return
	}
	c.cancelAttempt = nil

	if err != nil {
		var release func()
		if transport.IsNonRetryable(err) {
			release = c.failLocked(s, err)
		} else {
			c.logWarn("connection attempt failed", "tenant", s.tenant, "error", err)
			release = c.lostLocked(s, "open failed: "+err.Error())
		}
		c.mu.Unlock()
		release()
		return
	}

	c.conn = conn
	if c.registry.Has(s.tenant) {
		if err := c.subscribeLocked(s); err != nil {
			var release func()
			if transport.IsNonRetryable(err) {
				release = c.failLocked(s, err)
			} else {
				release = c.lostLocked(s, "subscribe failed: "+err.Error())
			}
			c.mu.Unlock()
			release()
			return
		}
	}

	c.established = true
	c.sessions.Add(1)
	c.scheduler.Reset()
	c.prober.MarkHealthy()
	c.monitor.Start(c.config.Heartbeat.CheckInterval)
	if c.checker != nil {
		c.prober.StartPeriodic(c.config.Health.Interval)
	}
	c.setStatusLocked(connection.StatusConnected, "session open")
	c.mu.Unlock()
}

// token fetches the bearer token. An empty token counts as absent.
func (c *Client) token(ctx context.Context) (string, error) {
	if c.creds == nil {
		return "", ErrNoCredential
	}
	token, err := c.creds.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCredential, err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

// callbacks binds transport callbacks to session s.
func (c *Client) callbacks(s session) transport.Callbacks {
	return transport.Callbacks{
		OnFrame: func(f transport.Frame) { c.handleFrame(s, f) },
		OnError: func(err error) { c.handleError(s, err) },
		OnClose: func(code int, reason string) { c.handleClose(s, code, reason) },
	}
}

// reconnect is called by the scheduler when a backoff delay elapses.
func (c *Client) reconnect(tenant string) {
	c.mu.Lock()
	if c.closed || c.tenant != tenant ||
		(c.status != connection.StatusReconnecting && c.status != connection.StatusServerDown) {
		c.mu.Unlock()
		return
	}
	s := c.beginLocked("reconnect delay elapsed")
	c.mu.Unlock()

	c.attempt(s)
}

// lostLocked handles a retryable loss: the session is torn down and the
// scheduler arms the next attempt. When the budget is spent the client
// moves to FAILED instead.
func (c *Client) lostLocked(s session, reason string) func() {
	release := c.teardownLocked()

	delay, ok := c.scheduler.ScheduleNext(s.tenant)
	if !ok {
		c.prober.StopPeriodic()
		c.lastErr = ErrRetriesExhausted
		c.setStatusLocked(connection.StatusFailed, "reconnect attempts exhausted")
		return release
	}

	c.traceReconnect(s, delay, reason)
	c.setStatusLocked(connection.StatusReconnecting, reason)
	return release
}

// failLocked handles a non-retryable failure. Automatic retries stop until
// Connect or ForceReconnect.
func (c *Client) failLocked(s session, err error) func() {
	release := c.teardownLocked()
	c.scheduler.Stop()
	c.prober.StopPeriodic()
	c.established = false
	c.lastErr = err

	c.logWarn("connection failed", "tenant", s.tenant, "error", err)
	c.traceError(s, log.LayerClient, err, "connect")
	c.setStatusLocked(connection.StatusFailed, err.Error())
	return release
}

// serverDownLocked handles a failed liveness probe before the first session.
// Probing continues on the backoff schedule. Once the budget is spent the
// client stays SERVER_DOWN with no retry pending until the next Connect.
func (c *Client) serverDownLocked(s session) {
	c.cancelAttempt = nil
	c.nextEpochLocked()
	c.lastErr = ErrServerDown

	if delay, ok := c.scheduler.ScheduleNext(s.tenant); ok {
		c.traceReconnect(s, delay, "server down")
	}
	c.setStatusLocked(connection.StatusServerDown, "liveness probe failed")
}

func (c *Client) handleFrame(s session, f transport.Frame) {
	c.mu.Lock()
	current := s.epoch == c.epoch
	c.mu.Unlock()
	if !current {
		return
	}

	c.monitor.RecordActivity()

	if f.Kind == transport.FrameHeartbeat {
		c.emit(s, log.Event{
			Direction: log.DirectionIn,
			Layer:     log.LayerTransport,
			Category:  log.CategoryControl,
			Control:   &log.ControlEvent{Type: log.ControlHeartbeat},
		})
		return
	}
	c.emit(s, log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerTransport,
		Category:  log.CategoryMessage,
		Frame:     log.NewFrameEvent(f.Kind.String(), f.Destination, f.Body),
	})
}

// handleError reacts to errors reported by the transport. Authentication
// errors end the session without retry; anything else is logged and left
// to the close callback.
func (c *Client) handleError(s session, err error) {
	c.mu.Lock()
	if s.epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	if !transport.IsNonRetryable(err) {
		c.mu.Unlock()
		c.logWarn("transport error", "tenant", s.tenant, "error", err)
		c.traceError(s, log.LayerTransport, err, "session")
		return
	}
	release := c.failLocked(s, err)
	c.mu.Unlock()
	release()
}

// handleClose routes a transport closure: normal closure disconnects,
// anything else reconnects.
func (c *Client) handleClose(s session, code int, reason string) {
	c.mu.Lock()
	if s.epoch != c.epoch {
		c.mu.Unlock()
		return
	}

	c.emit(s, log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerTransport,
		Category:  log.CategoryControl,
		Control:   &log.ControlEvent{Type: log.ControlClose, CloseCode: code, Reason: reason},
	})

	var release func()
	if transport.IsNormalClosure(code) {
		release = c.teardownLocked()
		c.scheduler.Reset()
		c.prober.StopPeriodic()
		c.established = false
		c.lastErr = nil
		c.setStatusLocked(connection.StatusDisconnected, fmt.Sprintf("closed normally (%d)", code))
	} else {
		release = c.lostLocked(s, fmt.Sprintf("closed abnormally (%d): %s", code, reason))
	}
	c.mu.Unlock()
	release()
}

// handleStale is called by the heartbeat monitor.
func (c *Client) handleStale() {
	c.forceReconnectLive("heartbeat stale")
}

// handleUnhealthy is called by the prober when the failure threshold is
// reached. Only a live session reacts; before the first session the
// pre-connect probe decides.
func (c *Client) handleUnhealthy() {
	c.forceReconnectLive("backend unhealthy")
}

// forceReconnectLive tears down a CONNECTED session and hands it to the
// scheduler. It does nothing in any other status.
func (c *Client) forceReconnectLive(reason string) {
	c.mu.Lock()
	if c.status != connection.StatusConnected {
		c.mu.Unlock()
		return
	}
	s := session{epoch: c.epoch, id: c.connID, tenant: c.tenant}
	c.logWarn("forcing reconnect", "tenant", s.tenant, "reason", reason)
	release := c.lostLocked(s, reason)
	c.mu.Unlock()
	release()
}

// LastError returns the error behind the current FAILED or SERVER_DOWN
// status, or nil.
func (c *Client) LastError() error {
	return c.published.Load().lastErr
}

// IsAuthError reports whether err is an authentication or permission error.
func IsAuthError(err error) bool {
	var ae *transport.AuthError
	return errors.As(err, &ae)
}
