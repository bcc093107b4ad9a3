package connection

// Status represents the client connection status.
type Status uint8

const (
	// StatusDisconnected indicates no connection and no pending attempt.
	StatusDisconnected Status = iota

	// StatusConnecting indicates a connection attempt is in progress.
	StatusConnecting

	// StatusConnected indicates an open transport with the tenant subscribed.
	StatusConnected

	// StatusReconnecting indicates a reconnection attempt is scheduled.
	StatusReconnecting

	// StatusFailed indicates a non-retryable failure. No automatic retries
	// are scheduled until Connect or ForceReconnect is called again.
	StatusFailed

	// StatusServerDown indicates the backend failed its liveness probe while
	// establishing the initial session.
	StatusServerDown
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusConnecting:
		return "CONNECTING"
	case StatusConnected:
		return "CONNECTED"
	case StatusReconnecting:
		return "RECONNECTING"
	case StatusFailed:
		return "FAILED"
	case StatusServerDown:
		return "SERVER_DOWN"
	default:
		return "UNKNOWN"
	}
}
