package client

import (
	"errors"
	"time"

	"github.com/tablefeed/tablefeed-go/pkg/health"
	"github.com/tablefeed/tablefeed-go/pkg/log"
	"github.com/tablefeed/tablefeed-go/pkg/transport"
)

// emit stamps ev with the session identity and sends it to the trace.
func (c *Client) emit(s session, ev log.Event) {
	ev.Timestamp = time.Now()
	ev.ConnectionID = s.id
	ev.Tenant = s.tenant
	ev.URL = c.config.URL
	c.trace.Log(ev)
}

// current returns the identity of the current session. Callers must not hold
// the lock.
func (c *Client) current() session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return session{epoch: c.epoch, id: c.connID, tenant: c.tenant}
}

func (c *Client) traceSubscription(tenant, state, reason string) {
	c.emit(session{id: c.connID, tenant: tenant}, log.Event{
		Direction: log.DirectionOut,
		Layer:     log.LayerClient,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySubscription,
			NewState: state,
			Reason:   reason,
		},
	})
}

func (c *Client) traceReconnect(s session, delay time.Duration, reason string) {
	c.debugLog("reconnect scheduled", "tenant", s.tenant, "delay", delay, "reason", reason)
	c.emit(s, log.Event{
		Layer:    log.LayerClient,
		Category: log.CategoryControl,
		Control: &log.ControlEvent{
			Type:    log.ControlReconnect,
			Attempt: c.scheduler.Attempts(),
			Delay:   delay,
			Reason:  reason,
		},
	})
}

func (c *Client) traceError(s session, layer log.Layer, err error, context string) {
	data := &log.ErrorEventData{
		Layer:   layer,
		Message: err.Error(),
		Context: context,
	}
	var ae *transport.AuthError
	if errors.As(err, &ae) {
		code := ae.Status
		data.Code = &code
	}
	c.emit(s, log.Event{
		Layer:    layer,
		Category: log.CategoryError,
		Error:    data,
	})
}

// traceHealth is the prober's result hook.
func (c *Client) traceHealth(r health.Result) {
	ev := &log.HealthEvent{
		OK:                  r.OK,
		Healthy:             r.Healthy,
		ConsecutiveFailures: r.ConsecutiveFailures,
		Latency:             r.Latency,
	}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	c.emit(c.current(), log.Event{
		Layer:    log.LayerClient,
		Category: log.CategoryHealth,
		Health:   ev,
	})
}

// traceMissed is the heartbeat monitor's missed-check hook.
func (c *Client) traceMissed(missed int, idle time.Duration) {
	c.emit(c.current(), log.Event{
		Layer:    log.LayerClient,
		Category: log.CategoryControl,
		Control: &log.ControlEvent{
			Type:   log.ControlHeartbeatMissed,
			Missed: missed,
			Reason: "idle " + idle.Round(time.Millisecond).String(),
		},
	})
}
