package transport

import (
	"context"
)

// Headers are connection headers sent when a session is opened.
type Headers map[string]string

// Header names.
const (
	HeaderAuthorization = "Authorization"
)

// FrameKind classifies an inbound frame.
type FrameKind uint8

// Frame kinds.
const (
	FrameHeartbeat FrameKind = iota
	FrameMessage
	FrameReceipt
	FrameError
	FrameControl
)

// String returns the frame kind name.
func (k FrameKind) String() string {
	switch k {
	case FrameHeartbeat:
		return "HEARTBEAT"
	case FrameMessage:
		return "MESSAGE"
	case FrameReceipt:
		return "RECEIPT"
	case FrameError:
		return "ERROR"
	case FrameControl:
		return "CONTROL"
	default:
		return "UNKNOWN"
	}
}

// Frame is an inbound protocol frame as reported to Callbacks.OnFrame.
type Frame struct {
	Kind        FrameKind
	Destination string
	Body        []byte
}

// Callbacks receive connection lifecycle events. Callbacks are invoked from
// the connection's receive goroutine and are not called after Deactivate.
type Callbacks struct {
	// OnFrame is called for every inbound frame, heartbeats included.
	OnFrame func(Frame)

	// OnError is called for protocol or transport errors that do not by
	// themselves close the connection.
	OnError func(error)

	// OnClose is called once when the peer or the network ends the session.
	OnClose func(code int, reason string)
}

// MessageHandler receives the payload of messages for one subscription.
type MessageHandler func(body []byte)

// Dialer opens connections.
type Dialer interface {
	// Open connects to url and returns once the session is established or
	// has failed. Authentication failures are returned as *AuthError.
	Open(ctx context.Context, url string, headers Headers, cb Callbacks) (Conn, error)
}

// Conn is an open publish/subscribe session.
type Conn interface {
	// Subscribe starts delivery of messages for destination to handler.
	Subscribe(destination string, handler MessageHandler) (Subscription, error)

	// Send publishes body to destination.
	Send(destination string, body []byte) error

	// Deactivate closes the session normally. It is idempotent.
	Deactivate() error
}

// Subscription is an active destination subscription.
type Subscription interface {
	// Destination returns the subscribed destination.
	Destination() string

	// Unsubscribe stops delivery. It is idempotent.
	Unsubscribe() error
}
