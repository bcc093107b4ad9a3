package client

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tablefeed/tablefeed-go/pkg/connection"
	"github.com/tablefeed/tablefeed-go/pkg/credential"
	"github.com/tablefeed/tablefeed-go/pkg/health"
	"github.com/tablefeed/tablefeed-go/pkg/heartbeat"
	"github.com/tablefeed/tablefeed-go/pkg/log"
	"github.com/tablefeed/tablefeed-go/pkg/notification"
	"github.com/tablefeed/tablefeed-go/pkg/subscription"
	"github.com/tablefeed/tablefeed-go/pkg/transport"
)

// Client maintains a feed session for one tenant and delivers decoded
// notifications to registered callbacks.
type Client struct {
	config Config
	creds  credential.Provider
	dialer transport.Dialer

	registry  *subscription.Registry
	scheduler *connection.Scheduler
	prober    *health.Prober
	monitor   *heartbeat.Monitor
	checker   health.Checker
	trace     log.Logger
	logger    *slog.Logger
	newConnID func() string

	// statusValue and published mirror state for lock-free reads, so
	// status observers may call Status, Tenant, LastError and Diagnostics.
	statusValue atomic.Uint32
	published   atomic.Pointer[snapshot]

	mu     sync.Mutex
	status connection.Status
	tenant string

	// epoch identifies the current attempt or session. Callbacks carrying an
	// older epoch are ignored.
	epoch  uint64
	connID string

	// liveEpoch mirrors epoch for the delivery path.
	liveEpoch atomic.Uint64

	conn   transport.Conn
	sub    transport.Subscription

	// established is set once a session opened since the last Connect to a
	// new tenant, Disconnect or normal closure. Until then every attempt
	// starts with a liveness probe.
	established bool

	cancelAttempt context.CancelFunc
	lastErr       error
	changed       chan struct{}
	observers     []*statusObserver
	closed        bool

	// Counters for diagnostics.
	delivered    atomic.Uint64
	decodeErrors atomic.Uint64
	sessions     atomic.Uint64
}

// snapshot is the part of the locked state readable without c.mu.
type snapshot struct {
	tenant     string
	connID     string
	subscribed bool
	lastErr    error
}

// session identifies one connection attempt. Transport callbacks capture it.
type session struct {
	epoch  uint64
	id     string
	tenant string
}

// New creates a client. It does not connect.
func New(cfg Config, creds credential.Provider, dialer transport.Dialer, opts ...Option) *Client {
	cfg = cfg.withDefaults()

	c := &Client{
		config:    cfg,
		creds:     creds,
		dialer:    dialer,
		registry:  subscription.NewRegistry(),
		trace:     log.OrNoop(cfg.Trace),
		logger:    cfg.Logger,
		newConnID: uuid.NewString,
		status:    connection.StatusDisconnected,
		changed:   make(chan struct{}),
	}
	c.published.Store(&snapshot{})
	for _, opt := range opts {
		opt(c)
	}
	if c.checker == nil {
		c.checker = defaultChecker(cfg)
	}

	if c.logger != nil {
		c.registry.SetLogger(c.logger)
	}

	c.scheduler = connection.NewScheduler(cfg.Backoff, c.reconnect)
	c.scheduler.SetLogger(c.logger)

	if c.checker != nil {
		c.prober = health.NewProber(cfg.Health, c.checker)
	} else {
		c.prober = health.NewProber(cfg.Health, health.CheckerFunc(func(context.Context) error { return nil }))
	}
	c.prober.OnUnhealthy(c.handleUnhealthy)
	c.prober.OnResult(c.traceHealth)
	c.scheduler.SetHealthFunc(c.prober.Healthy)

	c.monitor = heartbeat.NewMonitor(cfg.Heartbeat, c.handleStale)
	c.monitor.SetMissedCallback(c.traceMissed)

	return c
}

// defaultChecker derives a liveness checker from the feed URL. WebSocket
// feeds are probed over REST; Redis feeds with PING.
func defaultChecker(cfg Config) health.Checker {
	if cfg.LivenessPath == "" || cfg.URL == "" {
		return nil
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil
	}
	switch u.Scheme {
	case "redis", "rediss":
		rc, err := transport.NewRedisChecker(cfg.URL)
		if err != nil {
			return nil
		}
		return rc
	}
	base, err := health.BaseURLFromFeed(cfg.URL)
	if err != nil {
		return nil
	}
	return health.NewHTTPChecker(base, cfg.LivenessPath)
}

// Registry returns the subscription registry.
func (c *Client) Registry() *subscription.Registry {
	return c.registry
}

// Status returns the current connection status.
func (c *Client) Status() connection.Status {
	return connection.Status(c.statusValue.Load())
}

// IsActive reports whether a session is open.
func (c *Client) IsActive() bool {
	return c.Status() == connection.StatusConnected
}

// Tenant returns the tenant key of the current or last session.
func (c *Client) Tenant() string {
	return c.published.Load().tenant
}

// publishLocked refreshes the lock-free snapshot. Call it after changing
// tenant, connID, sub or lastErr.
func (c *Client) publishLocked() {
	c.published.Store(&snapshot{
		tenant:     c.tenant,
		connID:     c.connID,
		subscribed: c.sub != nil,
		lastErr:    c.lastErr,
	})
}

// Connect starts a session for tenant and waits until it is connected, has
// failed, the server is reported down, ctx ends or ConnectTimeout elapses.
// Ending ctx or timing out only stops the wait; background reconnection
// continues. Connecting to the tenant already connected is a no-op; a
// different tenant tears the current session down first.
func (c *Client) Connect(ctx context.Context, tenant string) error {
	if tenant == "" {
		return ErrEmptyTenant
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	var release func()
	sameTenant := c.tenant == tenant
	switch {
	case sameTenant && c.status == connection.StatusConnected:
		c.mu.Unlock()
		return nil

	case sameTenant && c.status == connection.StatusConnecting:
		// An attempt is already running; wait for it.

	default:
		if !sameTenant {
			release = c.teardownLocked()
			c.prober.StopPeriodic()
			c.prober.Reset()
			c.established = false
		}
		if sameTenant && c.status == connection.StatusReconnecting {
			c.scheduler.Cancel()
		} else {
			c.scheduler.Reset()
		}
		c.tenant = tenant
		c.lastErr = nil
		s := c.beginLocked("connect requested")
		go c.attempt(s)
	}
	c.mu.Unlock()

	if release != nil {
		release()
	}
	return c.await(ctx, tenant)
}

// await blocks until the connect outcome for tenant is known.
func (c *Client) await(ctx context.Context, tenant string) error {
	timer := time.NewTimer(c.config.ConnectTimeout)
	defer timer.Stop()

	for {
		c.mu.Lock()
		status, changed, lastErr := c.status, c.changed, c.lastErr
		current := c.tenant == tenant && !c.closed
		c.mu.Unlock()

		if !current {
			return ErrDisconnected
		}
		switch status {
		case connection.StatusConnected:
			return nil
		case connection.StatusFailed:
			if lastErr == nil {
				lastErr = ErrRetriesExhausted
			}
			return lastErr
		case connection.StatusServerDown:
			return ErrServerDown
		case connection.StatusDisconnected:
			return ErrDisconnected
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return ErrConnectTimeout
		}
	}
}

// Disconnect stops all timers, cancels any pending reconnection, closes the
// transport and resets attempt, health and heartbeat state. Registered
// callbacks are kept. It is idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	release := c.teardownLocked()
	c.scheduler.Reset()
	c.prober.StopPeriodic()
	c.prober.Reset()
	c.established = false
	c.lastErr = nil
	c.setStatusLocked(connection.StatusDisconnected, "disconnect requested")
	c.mu.Unlock()

	release()
}

// ForceReconnect disconnects and connects again with all counters reset.
// It leaves FAILED and SERVER_DOWN.
func (c *Client) ForceReconnect(ctx context.Context, tenant string) error {
	c.Disconnect()
	return c.Connect(ctx, tenant)
}

// Close disconnects and releases the client. Registered callbacks and
// observers are dropped; later Connect calls return ErrClosed.
func (c *Client) Close() error {
	c.Disconnect()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.observers = nil
	c.broadcastLocked()
	c.mu.Unlock()

	c.registry.Clear()

	if closer, ok := c.checker.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// AddSubscription registers cb for notifications of tenant and returns a
// function that removes exactly this registration. When tenant is the
// connected tenant and no transport subscription exists yet, one is made
// immediately. Removing the last callback for the connected tenant drops the
// transport subscription.
func (c *Client) AddSubscription(tenant string, cb subscription.Callback) func() {
	remove := c.registry.Add(tenant, cb)

	c.mu.Lock()
	if c.status == connection.StatusConnected && c.tenant == tenant && c.sub == nil && c.conn != nil {
		s := session{epoch: c.epoch, id: c.connID, tenant: tenant}
		if err := c.subscribeLocked(s); err != nil {
			c.logWarn("late subscribe failed", "tenant", tenant, "error", err)
		}
	}
	c.mu.Unlock()

	return func() {
		remove()

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.sub != nil && c.tenant == tenant && !c.registry.Has(tenant) {
			c.unsubscribeLocked("no callbacks")
		}
	}
}

// beginLocked starts a new epoch in CONNECTING and returns its session.
func (c *Client) beginLocked(reason string) session {
	c.nextEpochLocked()
	c.connID = c.newConnID()
	c.setStatusLocked(connection.StatusConnecting, reason)
	return session{epoch: c.epoch, id: c.connID, tenant: c.tenant}
}

// nextEpochLocked invalidates every callback bound to the current epoch.
func (c *Client) nextEpochLocked() {
	c.epoch++
	c.liveEpoch.Store(c.epoch)
}

// teardownLocked ends the current epoch, stops the heartbeat monitor and
// detaches the transport. The returned function closes the transport and
// must be called without the lock held.
func (c *Client) teardownLocked() func() {
	c.nextEpochLocked()
	if c.cancelAttempt != nil {
		c.cancelAttempt()
		c.cancelAttempt = nil
	}
	c.monitor.Stop()

	conn, sub := c.conn, c.sub
	c.conn, c.sub = nil, nil
	c.publishLocked()
	if sub != nil {
		c.traceSubscription(c.tenant, "UNSUBSCRIBED", "session closed")
	}

	return func() {
		if sub != nil {
			if err := sub.Unsubscribe(); err != nil {
				c.debugLog("unsubscribe failed", "destination", sub.Destination(), "error", err)
			}
		}
		if conn != nil {
			if err := conn.Deactivate(); err != nil {
				c.debugLog("deactivate failed", "error", err)
			}
		}
	}
}

// setStatusLocked records a transition and notifies observers in order.
func (c *Client) setStatusLocked(status connection.Status, reason string) {
	c.publishLocked()

	old := c.status
	if old == status {
		return
	}
	c.status = status
	c.statusValue.Store(uint32(status))

	c.debugLog("status changed", "from", old, "to", status, "reason", reason, "tenant", c.tenant)
	c.emit(session{id: c.connID, tenant: c.tenant}, log.Event{
		Layer:    log.LayerClient,
		Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: old.String(),
			NewState: status.String(),
			Reason:   reason,
		},
	})

	for _, o := range c.observers {
		o.cb(status)
	}
	c.broadcastLocked()
}

// broadcastLocked wakes every goroutine waiting in await.
func (c *Client) broadcastLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// subscribeLocked creates the transport subscription for the session's tenant.
func (c *Client) subscribeLocked(s session) error {
	dest := c.config.destination(s.tenant)
	sub, err := c.conn.Subscribe(dest, func(body []byte) {
		c.deliver(s, body)
	})
	if err != nil {
		return err
	}
	c.sub = sub
	c.publishLocked()
	c.debugLog("subscribed", "tenant", s.tenant, "destination", dest)
	c.traceSubscription(s.tenant, "SUBSCRIBED", dest)
	return nil
}

func (c *Client) unsubscribeLocked(reason string) {
	sub := c.sub
	c.sub = nil
	c.publishLocked()
	if err := sub.Unsubscribe(); err != nil {
		c.debugLog("unsubscribe failed", "destination", sub.Destination(), "error", err)
	}
	c.traceSubscription(c.tenant, "UNSUBSCRIBED", reason)
}

// deliver decodes a raw payload and fans it out to the tenant's callbacks.
// Malformed payloads are logged and dropped. The epoch is checked again
// before every callback, so once Connect switches tenants or Disconnect
// runs, no further callback of the old session is invoked.
func (c *Client) deliver(s session, body []byte) {
	live := func() bool { return c.liveEpoch.Load() == s.epoch }
	if !live() {
		return
	}

	n, err := notification.Decode(body)
	if err != nil {
		c.decodeErrors.Add(1)
		c.logWarn("dropping malformed notification", "tenant", s.tenant, "error", err)
		c.emit(s, log.Event{
			Direction: log.DirectionIn,
			Layer:     log.LayerCodec,
			Category:  log.CategoryError,
			Error: &log.ErrorEventData{
				Layer:   log.LayerCodec,
				Message: err.Error(),
				Context: "decode notification",
			},
		})
		return
	}

	if !live() {
		return
	}
	delivered := c.registry.DispatchWhile(s.tenant, n, live)
	c.delivered.Add(1)
	c.emit(s, log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerCodec,
		Category:  log.CategoryMessage,
		Notification: &log.NotificationEvent{
			Kind:       n.Kind.String(),
			TenantCode: n.TenantCode,
			OrderID:    n.OrderID,
			TableID:    n.TableID,
			NewState:   n.NewState,
			SentAt:     n.Timestamp,
			Delivered:  delivered,
		},
	})
}

func (c *Client) debugLog(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Client) logWarn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
