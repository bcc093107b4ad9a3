package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/tablefeed/tablefeed-go/pkg/connection"
	"github.com/tablefeed/tablefeed-go/pkg/health"
	"github.com/tablefeed/tablefeed-go/pkg/heartbeat"
	"github.com/tablefeed/tablefeed-go/pkg/log"
	"github.com/tablefeed/tablefeed-go/pkg/transport"
)

// mockProvider is a testify mock of credential.Provider.
type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Token(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func tokenProvider(token string) *mockProvider {
	m := &mockProvider{}
	m.On("Token", mock.Anything).Return(token, nil)
	return m
}

// fakeDialer records Open calls and hands out fakeConns.
type fakeDialer struct {
	mu      sync.Mutex
	opens   int
	conns   []*fakeConn
	headers []transport.Headers
	openFn  func(ctx context.Context, n int) error
}

func (d *fakeDialer) Open(ctx context.Context, url string, headers transport.Headers, cb transport.Callbacks) (transport.Conn, error) {
	d.mu.Lock()
	d.opens++
	n := d.opens
	d.headers = append(d.headers, headers)
	fn := d.openFn
	d.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, n); err != nil {
			return nil, err
		}
	}

	conn := &fakeConn{
		cb:       cb,
		active:   make(map[string]bool),
		handlers: make(map[string]transport.MessageHandler),
	}
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

func (d *fakeDialer) setOpenFn(fn func(ctx context.Context, n int) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openFn = fn
}

func (d *fakeDialer) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func (d *fakeDialer) header(i int) transport.Headers {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.headers[i]
}

// fakeConn is an in-memory transport session. Handlers stay reachable after
// Unsubscribe so tests can simulate messages already in flight.
type fakeConn struct {
	cb transport.Callbacks

	mu          sync.Mutex
	active      map[string]bool
	handlers    map[string]transport.MessageHandler
	deactivated bool
}

func (c *fakeConn) Subscribe(destination string, handler transport.MessageHandler) (transport.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[destination] = true
	c.handlers[destination] = handler
	return &fakeSub{conn: c, destination: destination}, nil
}

func (c *fakeConn) Send(string, []byte) error { return nil }

func (c *fakeConn) Deactivate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deactivated = true
	return nil
}

func (c *fakeConn) subscribed(destination string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[destination]
}

func (c *fakeConn) isDeactivated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deactivated
}

func (c *fakeConn) publish(destination, body string) {
	c.mu.Lock()
	h := c.handlers[destination]
	c.mu.Unlock()

	if c.cb.OnFrame != nil {
		c.cb.OnFrame(transport.Frame{Kind: transport.FrameMessage, Destination: destination, Body: []byte(body)})
	}
	if h != nil {
		h([]byte(body))
	}
}

func (c *fakeConn) heartbeat() {
	if c.cb.OnFrame != nil {
		c.cb.OnFrame(transport.Frame{Kind: transport.FrameHeartbeat})
	}
}

func (c *fakeConn) close(code int, reason string) {
	if c.cb.OnClose != nil {
		c.cb.OnClose(code, reason)
	}
}

func (c *fakeConn) fail(err error) {
	if c.cb.OnError != nil {
		c.cb.OnError(err)
	}
}

type fakeSub struct {
	conn        *fakeConn
	destination string
}

func (s *fakeSub) Destination() string { return s.destination }

func (s *fakeSub) Unsubscribe() error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	delete(s.conn.active, s.destination)
	return nil
}

// toggleChecker fails while down is set.
type toggleChecker struct {
	down  atomic.Bool
	calls atomic.Int32
}

func (c *toggleChecker) Check(context.Context) error {
	c.calls.Add(1)
	if c.down.Load() {
		return fmt.Errorf("connection refused")
	}
	return nil
}

// statusRecorder collects every status an observer sees.
type statusRecorder struct {
	mu  sync.Mutex
	got []connection.Status
}

func recordStatuses(c *Client) *statusRecorder {
	r := &statusRecorder{}
	c.AddStatusCallback(func(s connection.Status) {
		r.mu.Lock()
		r.got = append(r.got, s)
		r.mu.Unlock()
	})
	return r
}

func (r *statusRecorder) all() []connection.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]connection.Status(nil), r.got...)
}

func (r *statusRecorder) contains(s connection.Status) bool {
	for _, got := range r.all() {
		if got == s {
			return true
		}
	}
	return false
}

// traceCapture is an in-memory trace logger.
type traceCapture struct {
	mu     sync.Mutex
	events []log.Event
}

func (t *traceCapture) Log(e log.Event) {
	t.mu.Lock()
	t.events = append(t.events, e)
	t.mu.Unlock()
}

func (t *traceCapture) all() []log.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]log.Event(nil), t.events...)
}

func (t *traceCapture) reconnectDelays() []time.Duration {
	var delays []time.Duration
	for _, e := range t.all() {
		if e.Control != nil && e.Control.Type == log.ControlReconnect {
			delays = append(delays, e.Control.Delay)
		}
	}
	return delays
}

// testConfig returns fast settings with no liveness checker and heartbeat
// checks effectively disabled.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.URL = "ws://feed.test/ws"
	cfg.LivenessPath = ""
	cfg.ConnectTimeout = 2 * time.Second
	cfg.AttemptTimeout = time.Second
	cfg.Backoff = connection.BackoffConfig{
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    50 * time.Millisecond,
		Multiplier:  1.5,
		MaxAttempts: 10,
	}
	cfg.Health = health.Config{Timeout: 100 * time.Millisecond, Interval: time.Hour, Threshold: 3}
	cfg.Heartbeat = heartbeat.Config{CheckInterval: time.Hour, StaleTimeout: time.Hour, MaxMissed: 3}
	return cfg
}

func destFor(tenant string) string {
	return DefaultTopicPrefix + tenant
}

func orderPayload(tenant, orderID string) string {
	return fmt.Sprintf(`{"type":"NEW_ORDER","orderId":%s,"tenantCode":%q,"timestamp":"2026-03-01T12:00:00Z"}`, orderID, tenant)
}

func sequentialIDs() func() string {
	var n atomic.Int32
	return func() string {
		return fmt.Sprintf("conn-%d", n.Add(1))
	}
}
