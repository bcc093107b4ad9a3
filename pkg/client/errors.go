package client

import "errors"

// Client errors.
var (
	// ErrNoCredential is returned when the credential provider has no token.
	ErrNoCredential = errors.New("no credential available")

	// ErrServerDown is returned when the liveness probe fails before the
	// first session is established.
	ErrServerDown = errors.New("server down")

	// ErrConnectTimeout is returned when Connect gives up waiting. Background
	// reconnection continues.
	ErrConnectTimeout = errors.New("connect timeout")

	// ErrDisconnected is returned when the pending connect was ended by
	// Disconnect, a normal closure, or a connect for another tenant.
	ErrDisconnected = errors.New("disconnected")

	// ErrRetriesExhausted is reported when the reconnect budget is spent.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("client closed")

	// ErrEmptyTenant is returned when Connect is called without a tenant key.
	ErrEmptyTenant = errors.New("empty tenant key")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid configuration")
)
