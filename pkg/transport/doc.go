// Package transport provides the publish/subscribe connections the client
// drives.
//
// A Dialer opens a Conn and blocks until the session is usable. Inbound
// traffic, errors and closure are reported through Callbacks. Every inbound
// frame, including protocol heartbeats, is passed to Callbacks.OnFrame so the
// caller can track liveness; message payloads are additionally routed to the
// handler of the matching Subscription.
//
// # Implementations
//
//   - WebSocketDialer: STOMP 1.2 over a WebSocket, negotiating heart-beats and
//     sending Authorization in both the upgrade request and the CONNECT frame.
//   - RedisDialer: Redis pub/sub, with the bearer token as the password and
//     PING round-trips serving as heartbeat frames.
//
// # Close Codes
//
// Close codes follow RFC 6455. CloseNormal (1000) means the peer closed the
// session on purpose and no reconnection should follow. Any other code,
// including CloseNoStatus (1005) and CloseAbnormal (1006) which stand for the
// absence of a code, is treated as abnormal.
//
// # Error Classification
//
// Authentication and authorization failures are reported as *AuthError.
// IsNonRetryable tells callers when reconnecting cannot help.
package transport
