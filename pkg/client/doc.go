// Package client implements the tablefeed notification client.
//
// A Client keeps one long-lived feed session for one tenant at a time. It
// composes four cooperating parts:
//
//   - a connection state machine (Status, Connect, Disconnect)
//   - a reconnection scheduler with exponential backoff (pkg/connection)
//   - an active liveness prober (pkg/health)
//   - a passive heartbeat monitor (pkg/heartbeat)
//
// Consumers register callbacks per tenant with AddSubscription and status
// observers with AddStatusCallback. Both survive any number of reconnects.
//
// # Status Transitions
//
//	DISCONNECTED -> CONNECTING       Connect
//	CONNECTING   -> CONNECTED        transport open and tenant subscribed
//	CONNECTING   -> FAILED           no credential, or 401/403
//	CONNECTING   -> SERVER_DOWN      liveness probe fails before the first session
//	*            -> DISCONNECTED     normal closure (1000) or Disconnect
//	*            -> RECONNECTING     abnormal close, timeout, stale heartbeat, unhealthy backend
//	RECONNECTING -> CONNECTING       backoff delay elapsed
//	RECONNECTING -> FAILED           attempt budget spent
//
// A session that is already live is never demoted to SERVER_DOWN; an
// unhealthy backend forces it through RECONNECTING instead. An
// authentication error reported while connected moves the client to FAILED
// without retrying.
//
// # Observers
//
// Status observers run synchronously, in registration order, while the
// client's state lock is held. They may call Status, IsActive, Tenant,
// LastError and Diagnostics, which read a lock-free snapshot, but must not
// call Connect, Disconnect, ForceReconnect or AddStatusCallback.
// Notification callbacks run on the transport's receive goroutine without
// any client lock held.
//
// # Example
//
//	cfg := client.DefaultConfig()
//	cfg.URL = "wss://feed.example.com/ws"
//
//	c := client.New(cfg, credential.NewEnv(""), transport.NewWebSocketDialer())
//	defer c.Close()
//
//	c.AddSubscription("acme", func(n notification.Notification) {
//		fmt.Println(n.Kind, n.OrderID)
//	})
//	if err := c.Connect(ctx, "acme"); err != nil {
//		return err
//	}
package client
