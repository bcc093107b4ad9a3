package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tablefeed/tablefeed-go/pkg/connection"
	"github.com/tablefeed/tablefeed-go/pkg/health"
	"github.com/tablefeed/tablefeed-go/pkg/heartbeat"
	"github.com/tablefeed/tablefeed-go/pkg/log"
	"github.com/tablefeed/tablefeed-go/pkg/notification"
	"github.com/tablefeed/tablefeed-go/pkg/transport"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestConnectDeliversNotifications(t *testing.T) {
	d := &fakeDialer{}
	creds := tokenProvider("tok")
	c := New(testConfig(), creds, d)
	defer c.Close()

	rec := recordStatuses(c)
	got := make(chan notification.Notification, 4)
	c.AddSubscription("acme", func(n notification.Notification) { got <- n })

	require.NoError(t, c.Connect(testContext(t), "acme"))
	assert.Equal(t, connection.StatusConnected, c.Status())
	assert.True(t, c.IsActive())

	conn := d.last()
	require.NotNil(t, conn)
	assert.True(t, conn.subscribed(destFor("acme")))
	assert.Equal(t, "Bearer tok", d.header(0)[transport.HeaderAuthorization])

	conn.publish(destFor("acme"), orderPayload("acme", "42"))

	select {
	case n := <-got:
		assert.Equal(t, "42", n.OrderID)
		assert.Equal(t, "acme", n.TenantCode)
		assert.Equal(t, notification.KindNewOrder, n.Kind)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}

	assert.Equal(t, []connection.Status{
		connection.StatusDisconnected,
		connection.StatusConnecting,
		connection.StatusConnected,
	}, rec.all())
	creds.AssertExpectations(t)
}

func TestConnectSameTenantIsNoop(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(), tokenProvider("tok"), d)
	defer c.Close()

	ctx := testContext(t)
	require.NoError(t, c.Connect(ctx, "acme"))
	require.NoError(t, c.Connect(ctx, "acme"))

	assert.Equal(t, 1, d.openCount())
	assert.Equal(t, connection.StatusConnected, c.Status())
}

func TestConnectDifferentTenantTearsDownPrevious(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(), tokenProvider("tok"), d)
	defer c.Close()

	var aCalls, bCalls atomic.Int32
	c.AddSubscription("tenantA", func(notification.Notification) { aCalls.Add(1) })
	c.AddSubscription("tenantB", func(notification.Notification) { bCalls.Add(1) })

	ctx := testContext(t)
	require.NoError(t, c.Connect(ctx, "tenantA"))
	connA := d.last()

	require.NoError(t, c.Connect(ctx, "tenantB"))
	connB := d.last()
	require.NotSame(t, connA, connB)

	assert.True(t, connA.isDeactivated())
	assert.False(t, connA.subscribed(destFor("tenantA")))
	assert.True(t, connB.subscribed(destFor("tenantB")))
	assert.Equal(t, "tenantB", c.Tenant())

	// A message already in flight on the old session is dropped.
	connA.publish(destFor("tenantA"), orderPayload("tenantA", "1"))
	connB.publish(destFor("tenantB"), orderPayload("tenantB", "2"))

	assert.Equal(t, int32(0), aCalls.Load())
	assert.Equal(t, int32(1), bCalls.Load())
}

func TestConnectWithoutCredentialFails(t *testing.T) {
	d := &fakeDialer{}
	creds := tokenProvider("")
	c := New(testConfig(), creds, d)
	defer c.Close()

	rec := recordStatuses(c)
	err := c.Connect(testContext(t), "acme")

	assert.ErrorIs(t, err, ErrNoCredential)
	assert.Equal(t, connection.StatusFailed, c.Status())
	assert.Equal(t, 0, d.openCount())
	assert.False(t, rec.contains(connection.StatusReconnecting))

	diag := c.Diagnostics()
	assert.Equal(t, diag.MaxAttempts, diag.AttemptCount, "scheduler must be stopped")
	assert.False(t, diag.ReconnectPending)
}

func TestConnectCredentialErrorFails(t *testing.T) {
	creds := &mockProvider{}
	creds.On("Token", mock.Anything).Return("", errors.New("keystore locked"))

	c := New(testConfig(), creds, &fakeDialer{})
	defer c.Close()

	err := c.Connect(testContext(t), "acme")
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.Equal(t, connection.StatusFailed, c.Status())
}

func TestAuthErrorNeverReconnects(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			d := &fakeDialer{}
			d.setOpenFn(func(context.Context, int) error {
				return &transport.AuthError{Status: status, Message: "rejected"}
			})
			c := New(testConfig(), tokenProvider("tok"), d)
			defer c.Close()

			rec := recordStatuses(c)
			err := c.Connect(testContext(t), "acme")

			var ae *transport.AuthError
			require.True(t, errors.As(err, &ae), "error = %v", err)
			assert.Equal(t, status, ae.Status)
			assert.True(t, IsAuthError(c.LastError()))
			assert.Equal(t, connection.StatusFailed, c.Status())

			time.Sleep(60 * time.Millisecond)
			assert.Equal(t, 1, d.openCount())
			assert.False(t, rec.contains(connection.StatusReconnecting))
		})
	}
}

func TestNormalClosureDoesNotReconnect(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(), tokenProvider("tok"), d)
	defer c.Close()

	require.NoError(t, c.Connect(testContext(t), "acme"))
	d.last().close(transport.CloseNormal, "bye")

	assert.Equal(t, connection.StatusDisconnected, c.Status())
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, d.openCount())
	assert.False(t, c.Diagnostics().ReconnectPending)
}

func TestAbnormalClosureReconnects(t *testing.T) {
	for _, code := range []int{transport.CloseAbnormal, transport.CloseNoStatus, transport.CloseGoingAway} {
		t.Run(fmt.Sprintf("code %d", code), func(t *testing.T) {
			d := &fakeDialer{}
			c := New(testConfig(), tokenProvider("tok"), d)
			defer c.Close()

			c.AddSubscription("acme", func(notification.Notification) {})
			rec := recordStatuses(c)

			require.NoError(t, c.Connect(testContext(t), "acme"))
			first := d.last()
			first.close(code, "")

			assert.Equal(t, connection.StatusReconnecting, c.Status())
			require.Eventually(t, func() bool {
				return c.Status() == connection.StatusConnected && d.openCount() == 2
			}, time.Second, 5*time.Millisecond)

			assert.True(t, rec.contains(connection.StatusReconnecting))
			assert.True(t, d.last().subscribed(destFor("acme")), "tenant not re-subscribed")
			assert.Equal(t, 0, c.Diagnostics().AttemptCount, "attempts not reset after connect")

			// The old session's late close is ignored.
			first.close(transport.CloseAbnormal, "late")
			assert.Equal(t, connection.StatusConnected, c.Status())
		})
	}
}

func TestBackoffDelaysAndExhaustion(t *testing.T) {
	cfg := testConfig()
	cfg.Backoff = connection.BackoffConfig{
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  1.5,
		MaxAttempts: 3,
	}
	trace := &traceCapture{}
	cfg.Trace = trace

	d := &fakeDialer{}
	c := New(cfg, tokenProvider("tok"), d)
	defer c.Close()

	require.NoError(t, c.Connect(testContext(t), "acme"))
	d.setOpenFn(func(context.Context, int) error { return errors.New("connection refused") })

	d.last().close(transport.CloseAbnormal, "")

	require.Eventually(t, func() bool {
		return c.Status() == connection.StatusFailed
	}, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, c.LastError(), ErrRetriesExhausted)
	assert.Equal(t, 4, d.openCount())
	assert.Equal(t, []time.Duration{
		10 * time.Millisecond,
		15 * time.Millisecond,
		22500 * time.Microsecond,
	}, trace.reconnectDelays())
}

func TestServerDownBeforeFirstSession(t *testing.T) {
	checker := &toggleChecker{}
	checker.down.Store(true)

	d := &fakeDialer{}
	c := New(testConfig(), tokenProvider("tok"), d, WithChecker(checker))
	defer c.Close()

	err := c.Connect(testContext(t), "acme")
	assert.ErrorIs(t, err, ErrServerDown)
	assert.Equal(t, connection.StatusServerDown, c.Status())
	assert.Equal(t, 0, d.openCount())

	// Probing continues on the backoff schedule.
	checker.down.Store(false)
	require.Eventually(t, func() bool {
		return c.Status() == connection.StatusConnected
	}, 2*time.Second, 5*time.Millisecond)
}

func TestUnhealthyBackendForcesReconnectNotServerDown(t *testing.T) {
	cfg := testConfig()
	cfg.Health = health.Config{Timeout: 100 * time.Millisecond, Interval: 20 * time.Millisecond, Threshold: 1}

	checker := &toggleChecker{}
	d := &fakeDialer{}
	c := New(cfg, tokenProvider("tok"), d, WithChecker(checker))
	defer c.Close()

	rec := recordStatuses(c)
	require.NoError(t, c.Connect(testContext(t), "acme"))
	assert.GreaterOrEqual(t, checker.calls.Load(), int32(1), "pre-connect probe")

	checker.down.Store(true)
	require.Eventually(t, func() bool { return d.openCount() >= 2 }, 2*time.Second, 5*time.Millisecond)

	c.Disconnect()
	assert.True(t, rec.contains(connection.StatusReconnecting))
	assert.False(t, rec.contains(connection.StatusServerDown), "live session demoted to SERVER_DOWN")
}

func TestStaleHeartbeatForcesReconnect(t *testing.T) {
	cfg := testConfig()
	cfg.Heartbeat = heartbeat.Config{CheckInterval: 10 * time.Millisecond, StaleTimeout: 60 * time.Millisecond, MaxMissed: 2}

	d := &fakeDialer{}
	c := New(cfg, tokenProvider("tok"), d)
	defer c.Close()

	rec := recordStatuses(c)
	require.NoError(t, c.Connect(testContext(t), "acme"))

	require.Eventually(t, func() bool { return d.openCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, rec.contains(connection.StatusReconnecting))
	assert.True(t, d.conn(0).isDeactivated())
}

func TestHeartbeatsKeepSessionAlive(t *testing.T) {
	cfg := testConfig()
	cfg.Heartbeat = heartbeat.Config{CheckInterval: 10 * time.Millisecond, StaleTimeout: 60 * time.Millisecond, MaxMissed: 2}

	d := &fakeDialer{}
	c := New(cfg, tokenProvider("tok"), d)
	defer c.Close()

	require.NoError(t, c.Connect(testContext(t), "acme"))
	conn := d.last()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				conn.heartbeat()
			}
		}
	}()

	time.Sleep(250 * time.Millisecond)
	close(stop)
	<-done

	assert.Equal(t, 1, d.openCount())
	assert.Equal(t, connection.StatusConnected, c.Status())
}

func TestMidSessionAuthErrorFails(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(), tokenProvider("tok"), d)
	defer c.Close()

	rec := recordStatuses(c)
	require.NoError(t, c.Connect(testContext(t), "acme"))
	conn := d.last()

	conn.fail(&transport.AuthError{Status: http.StatusUnauthorized, Message: "Token expired"})

	assert.Equal(t, connection.StatusFailed, c.Status())
	assert.True(t, conn.isDeactivated())
	assert.True(t, IsAuthError(c.LastError()))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, d.openCount())
	assert.False(t, rec.contains(connection.StatusReconnecting))

	// A retryable error does not change status.
	require.NoError(t, c.ForceReconnect(testContext(t), "acme"))
	d.last().fail(errors.New("decode frame: truncated"))
	assert.Equal(t, connection.StatusConnected, c.Status())
	assert.Equal(t, 2, d.openCount())
}

func TestForceReconnectLeavesFailed(t *testing.T) {
	d := &fakeDialer{}
	d.setOpenFn(func(_ context.Context, n int) error {
		if n == 1 {
			return &transport.AuthError{Status: http.StatusForbidden}
		}
		return nil
	})
	c := New(testConfig(), tokenProvider("tok"), d)
	defer c.Close()

	ctx := testContext(t)
	require.Error(t, c.Connect(ctx, "acme"))
	require.Equal(t, connection.StatusFailed, c.Status())

	require.NoError(t, c.ForceReconnect(ctx, "acme"))
	assert.Equal(t, connection.StatusConnected, c.Status())
	assert.Equal(t, 0, c.Diagnostics().AttemptCount)
}

func TestMalformedPayloadDroppedAndPanicsIsolated(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(), tokenProvider("tok"), d)
	defer c.Close()

	var good atomic.Int32
	c.AddSubscription("acme", func(notification.Notification) { panic("consumer bug") })
	c.AddSubscription("acme", func(notification.Notification) { good.Add(1) })

	require.NoError(t, c.Connect(testContext(t), "acme"))
	conn := d.last()

	conn.publish(destFor("acme"), `{not json`)
	conn.publish(destFor("acme"), `{"type":"NEW_ORDER","timestamp":"2026-03-01T12:00:00Z","orderId":1}`)
	assert.Equal(t, int32(0), good.Load())
	assert.Equal(t, uint64(2), c.Diagnostics().DecodeErrors)

	conn.publish(destFor("acme"), orderPayload("acme", "7"))
	assert.Equal(t, int32(1), good.Load())
	assert.Equal(t, connection.StatusConnected, c.Status())
	assert.Equal(t, uint64(1), c.Diagnostics().Delivered)
}

func TestLateSubscriptionAndLastRemoval(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(), tokenProvider("tok"), d)
	defer c.Close()

	require.NoError(t, c.Connect(testContext(t), "acme"))
	conn := d.last()
	assert.False(t, conn.subscribed(destFor("acme")), "subscribed with no callbacks")
	assert.False(t, c.Diagnostics().Subscribed)

	var calls atomic.Int32
	remove := c.AddSubscription("acme", func(notification.Notification) { calls.Add(1) })
	assert.True(t, conn.subscribed(destFor("acme")))
	assert.True(t, c.Diagnostics().Subscribed)

	conn.publish(destFor("acme"), orderPayload("acme", "1"))
	assert.Equal(t, int32(1), calls.Load())

	remove()
	remove()
	assert.False(t, conn.subscribed(destFor("acme")))
	assert.Equal(t, int32(1), calls.Load())
}

func TestUnsubscribeRemovesOnlyThatCallback(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(), tokenProvider("tok"), d)
	defer c.Close()

	var first, second, other atomic.Int32
	removeFirst := c.AddSubscription("acme", func(notification.Notification) { first.Add(1) })
	c.AddSubscription("acme", func(notification.Notification) { second.Add(1) })
	c.AddSubscription("globex", func(notification.Notification) { other.Add(1) })

	require.NoError(t, c.Connect(testContext(t), "acme"))
	removeFirst()

	d.last().publish(destFor("acme"), orderPayload("acme", "3"))
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(1), second.Load())
	assert.Equal(t, 1, c.Registry().Count("globex"))
	assert.True(t, d.last().subscribed(destFor("acme")))
}

func TestStatusCallbackRegistration(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(), tokenProvider("tok"), d)
	defer c.Close()

	var seen []connection.Status
	remove := c.AddStatusCallback(func(s connection.Status) { seen = append(seen, s) })
	require.Equal(t, []connection.Status{connection.StatusDisconnected}, seen)

	require.NoError(t, c.Connect(testContext(t), "acme"))
	late := recordStatuses(c)
	assert.Equal(t, []connection.Status{connection.StatusConnected}, late.all())

	remove()
	remove()
	n := len(seen)
	c.Disconnect()
	assert.Len(t, seen, n)
	assert.Equal(t, connection.StatusDisconnected, late.all()[1])
}

func TestConnectTimeoutKeepsTrying(t *testing.T) {
	cfg := testConfig()
	cfg.ConnectTimeout = 50 * time.Millisecond
	cfg.AttemptTimeout = 5 * time.Second

	d := &fakeDialer{}
	d.setOpenFn(func(ctx context.Context, _ int) error {
		<-ctx.Done()
		return ctx.Err()
	})
	c := New(cfg, tokenProvider("tok"), d)
	defer c.Close()

	err := c.Connect(context.Background(), "acme")
	assert.ErrorIs(t, err, ErrConnectTimeout)
	assert.Equal(t, connection.StatusConnecting, c.Status())

	c.Disconnect()
	assert.Equal(t, connection.StatusDisconnected, c.Status())
}

func TestAttemptTimeoutRoutesThroughReconnecting(t *testing.T) {
	cfg := testConfig()
	cfg.AttemptTimeout = 30 * time.Millisecond

	d := &fakeDialer{}
	d.setOpenFn(func(ctx context.Context, n int) error {
		if n == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	c := New(cfg, tokenProvider("tok"), d)
	defer c.Close()

	rec := recordStatuses(c)
	require.NoError(t, c.Connect(testContext(t), "acme"))
	assert.Equal(t, 2, d.openCount())
	assert.True(t, rec.contains(connection.StatusReconnecting))
}

func TestConnectContextCanceled(t *testing.T) {
	d := &fakeDialer{}
	d.setOpenFn(func(ctx context.Context, _ int) error {
		<-ctx.Done()
		return ctx.Err()
	})
	c := New(testConfig(), tokenProvider("tok"), d)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Connect(ctx, "acme"), context.DeadlineExceeded)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(), tokenProvider("tok"), d)

	rec := recordStatuses(c)
	require.NoError(t, c.Connect(testContext(t), "acme"))
	conn := d.last()

	c.Disconnect()
	c.Disconnect()

	assert.True(t, conn.isDeactivated())
	assert.Equal(t, connection.StatusDisconnected, c.Status())
	assert.Equal(t, []connection.Status{
		connection.StatusDisconnected,
		connection.StatusConnecting,
		connection.StatusConnected,
		connection.StatusDisconnected,
	}, rec.all())

	// Callbacks survive Disconnect; a close is ignored after it.
	conn.close(transport.CloseAbnormal, "")
	assert.Equal(t, connection.StatusDisconnected, c.Status())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Connect(testContext(t), "acme"), ErrClosed)
}

func TestConnectRejectsEmptyTenant(t *testing.T) {
	c := New(testConfig(), tokenProvider("tok"), &fakeDialer{})
	defer c.Close()
	assert.ErrorIs(t, c.Connect(testContext(t), ""), ErrEmptyTenant)
}

func TestDiagnosticsAndTrace(t *testing.T) {
	cfg := testConfig()
	trace := &traceCapture{}
	cfg.Trace = trace

	d := &fakeDialer{}
	c := New(cfg, tokenProvider("tok"), d, WithConnectionIDs(sequentialIDs()))
	defer c.Close()

	c.AddSubscription("acme", func(notification.Notification) {})
	require.NoError(t, c.Connect(testContext(t), "acme"))
	d.last().heartbeat()
	d.last().publish(destFor("acme"), orderPayload("acme", "9"))

	diag := c.Diagnostics()
	assert.Equal(t, connection.StatusConnected, diag.Status)
	assert.Equal(t, "acme", diag.Tenant)
	assert.Equal(t, "conn-1", diag.ConnectionID)
	assert.True(t, diag.Subscribed)
	assert.Equal(t, 1, diag.Callbacks)
	assert.True(t, diag.Healthy)
	assert.Equal(t, uint64(1), diag.Sessions)
	assert.Equal(t, uint64(1), diag.Delivered)
	assert.Zero(t, diag.MissedHeartbeats)

	var sawConnected, sawNotification, sawHeartbeat bool
	for _, e := range trace.all() {
		assert.Equal(t, "conn-1", e.ConnectionID)
		switch {
		case e.StateChange != nil && e.StateChange.NewState == "CONNECTED":
			sawConnected = true
		case e.Notification != nil:
			sawNotification = true
			assert.Equal(t, "9", e.Notification.OrderID)
			assert.Equal(t, 1, e.Notification.Delivered)
			assert.Equal(t, log.LayerCodec, e.Layer)
		case e.Control != nil && e.Control.Type == log.ControlHeartbeat:
			sawHeartbeat = true
		}
	}
	assert.True(t, sawConnected, "no CONNECTED state event")
	assert.True(t, sawNotification, "no notification event")
	assert.True(t, sawHeartbeat, "no heartbeat event")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid ws", func(c *Config) {}, false},
		{"valid redis", func(c *Config) { c.URL = "redis://localhost:6379/0" }, false},
		{"missing url", func(c *Config) { c.URL = "" }, true},
		{"http scheme", func(c *Config) { c.URL = "http://feed.test" }, true},
		{"base above max", func(c *Config) {
			c.Backoff.BaseDelay = time.Minute
			c.Backoff.MaxDelay = time.Second
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultChecker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "wss://feed.example.com/ws"
	hc, ok := defaultChecker(cfg).(*health.HTTPChecker)
	require.True(t, ok)
	assert.Equal(t, "https://feed.example.com"+health.DefaultLivenessPath, hc.URL())

	cfg.URL = "redis://localhost:6379"
	rc, ok := defaultChecker(cfg).(*transport.RedisChecker)
	require.True(t, ok)
	rc.Close()

	cfg.LivenessPath = ""
	assert.Nil(t, defaultChecker(cfg))
}

func TestStatusCallbackMayReadClientState(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(), tokenProvider("tok"), d)
	defer c.Close()

	var mu sync.Mutex
	var tenants []string
	var diags []Diagnostics
	registered := make(chan struct{})
	go func() {
		defer close(registered)
		c.AddStatusCallback(func(connection.Status) {
			tenant := c.Tenant()
			diag := c.Diagnostics()
			_ = c.LastError()
			mu.Lock()
			tenants = append(tenants, tenant)
			diags = append(diags, diag)
			mu.Unlock()
		})
	}()
	select {
	case <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("AddStatusCallback did not return")
	}

	done := make(chan error, 1)
	go func() { done <- c.Connect(testContext(t), "acme") }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "", tenants[0])
	assert.Contains(t, tenants, "acme")
	last := diags[len(diags)-1]
	assert.Equal(t, connection.StatusConnected, last.Status)
	assert.Equal(t, "acme", last.Tenant)
}

func TestServerDownPersistsWhenBudgetSpent(t *testing.T) {
	cfg := testConfig()
	cfg.Backoff = connection.BackoffConfig{
		BaseDelay:   5 * time.Millisecond,
		MaxDelay:    20 * time.Millisecond,
		Multiplier:  1.5,
		MaxAttempts: 2,
	}
	checker := &toggleChecker{}
	checker.down.Store(true)

	d := &fakeDialer{}
	c := New(cfg, tokenProvider("tok"), d, WithChecker(checker))
	defer c.Close()

	rec := recordStatuses(c)
	err := c.Connect(testContext(t), "acme")
	require.ErrorIs(t, err, ErrServerDown)

	require.Eventually(t, func() bool {
		diag := c.Diagnostics()
		return diag.AttemptCount == 2 && !diag.ReconnectPending
	}, 2*time.Second, 5*time.Millisecond)

	diag := c.Diagnostics()
	assert.Equal(t, connection.StatusServerDown, diag.Status)
	assert.Equal(t, 2, diag.MaxAttempts)
	assert.ErrorIs(t, c.LastError(), ErrServerDown)
	assert.False(t, rec.contains(connection.StatusFailed))
	assert.Equal(t, 0, d.openCount())

	// Connect starts a fresh budget.
	checker.down.Store(false)
	require.NoError(t, c.Connect(testContext(t), "acme"))
	assert.Equal(t, connection.StatusConnected, c.Status())
}

func TestTenantSwitchStopsInFlightDelivery(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(), tokenProvider("tok"), d)
	defer c.Close()

	ctx := testContext(t)
	var first, second atomic.Int32
	c.AddSubscription("tenantA", func(notification.Notification) {
		first.Add(1)
		assert.NoError(t, c.Connect(ctx, "tenantB"))
	})
	c.AddSubscription("tenantA", func(notification.Notification) { second.Add(1) })

	require.NoError(t, c.Connect(ctx, "tenantA"))
	d.last().publish(destFor("tenantA"), orderPayload("tenantA", "7"))

	assert.Equal(t, int32(1), first.Load())
	assert.Equal(t, int32(0), second.Load(), "tenantA callback ran after the switch")
	assert.Equal(t, "tenantB", c.Tenant())
	assert.Equal(t, connection.StatusConnected, c.Status())
}
