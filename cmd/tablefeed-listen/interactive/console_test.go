package interactive

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/tablefeed/tablefeed-go/pkg/client"
	"github.com/tablefeed/tablefeed-go/pkg/connection"
	"github.com/tablefeed/tablefeed-go/pkg/notification"
	"github.com/tablefeed/tablefeed-go/pkg/subscription"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) Status() connection.Status {
	return m.Called().Get(0).(connection.Status)
}

func (m *mockClient) Tenant() string {
	return m.Called().String(0)
}

func (m *mockClient) Connect(ctx context.Context, tenant string) error {
	return m.Called(ctx, tenant).Error(0)
}

func (m *mockClient) Disconnect() {
	m.Called()
}

func (m *mockClient) ForceReconnect(ctx context.Context, tenant string) error {
	return m.Called(ctx, tenant).Error(0)
}

func (m *mockClient) AddSubscription(tenant string, cb subscription.Callback) func() {
	return m.Called(tenant, cb).Get(0).(func())
}

func (m *mockClient) Diagnostics() client.Diagnostics {
	return m.Called().Get(0).(client.Diagnostics)
}

func newTestConsole(c Client) (*Console, *bytes.Buffer) {
	var out bytes.Buffer
	return newConsole(c, func(notification.Notification) {}, 0, &out), &out
}

func TestConnectSubscribesOnceAndConnects(t *testing.T) {
	m := &mockClient{}
	removed := 0
	m.On("AddSubscription", "acme", mock.Anything).Return(func() { removed++ }).Once()
	m.On("Connect", mock.Anything, "acme").Return(nil).Twice()

	con, out := newTestConsole(m)
	assert.False(t, con.Execute(context.Background(), "connect acme"))
	assert.False(t, con.Execute(context.Background(), "CONNECT acme"))

	assert.Contains(t, out.String(), "Connected to acme")
	m.AssertExpectations(t)

	con.Execute(context.Background(), "unsubscribe acme")
	assert.Equal(t, 1, removed)
	assert.Contains(t, out.String(), "Unsubscribed from acme")
}

func TestConnectFailureReportsStatus(t *testing.T) {
	m := &mockClient{}
	m.On("AddSubscription", "acme", mock.Anything).Return(func() {})
	m.On("Connect", mock.Anything, "acme").Return(errors.New("auth rejected"))
	m.On("Status").Return(connection.StatusFailed)

	con, out := newTestConsole(m)
	con.Execute(context.Background(), "connect acme")

	assert.Contains(t, out.String(), "Connect failed: auth rejected (status: FAILED)")
}

func TestUsageAndUnknownCommands(t *testing.T) {
	con, out := newTestConsole(&mockClient{})

	con.Execute(context.Background(), "connect")
	con.Execute(context.Background(), "subscribe a b")
	con.Execute(context.Background(), "unsubscribe nobody")
	con.Execute(context.Background(), "frobnicate")
	con.Execute(context.Background(), "   ")

	s := out.String()
	assert.Contains(t, s, "Usage: connect <tenant>")
	assert.Contains(t, s, "Usage: subscribe <tenant>")
	assert.Contains(t, s, "Not subscribed to nobody")
	assert.Contains(t, s, "Unknown command: frobnicate")
}

func TestReconnectRequiresTenant(t *testing.T) {
	m := &mockClient{}
	m.On("Tenant").Return("").Once()
	con, out := newTestConsole(m)
	con.Execute(context.Background(), "reconnect")
	assert.Contains(t, out.String(), "No tenant")

	m.On("Tenant").Return("acme")
	m.On("ForceReconnect", mock.Anything, "acme").Return(nil)
	con.Execute(context.Background(), "reconnect")
	assert.Contains(t, out.String(), "Reconnected to acme")
	m.AssertExpectations(t)
}

func TestStatusDiagAndQuit(t *testing.T) {
	m := &mockClient{}
	m.On("Tenant").Return("acme")
	m.On("Status").Return(connection.StatusReconnecting)
	m.On("Diagnostics").Return(client.Diagnostics{
		Status:           connection.StatusReconnecting,
		Tenant:           "acme",
		AttemptCount:     2,
		MaxAttempts:      10,
		ReconnectPending: true,
		LastError:        "closed abnormally",
	})
	m.On("Disconnect").Return()

	con, out := newTestConsole(m)
	con.Track("acme", func() {})

	con.Execute(context.Background(), "status")
	con.Execute(context.Background(), "diag")
	con.Execute(context.Background(), "disconnect")

	s := out.String()
	assert.Contains(t, s, "Status: RECONNECTING (tenant: acme)")
	assert.Contains(t, s, "Subscribed: acme")
	assert.Contains(t, s, "Reconnect attempts: 2/10")
	assert.Contains(t, s, "Last error:         closed abnormally")
	assert.Contains(t, s, "Disconnected")

	assert.True(t, con.Execute(context.Background(), "quit"))
	m.AssertExpectations(t)
}
