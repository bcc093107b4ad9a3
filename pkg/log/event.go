package log

import (
	"time"
)

// Event is one trace record. CBOR encoding uses integer keys for
// compactness; exactly one payload pointer is normally set.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the connection epoch (UUID). Events recorded
	// between sessions carry the id of the last attempt.
	ConnectionID string `cbor:"2,keyasint"`

	// Direction of the traffic, for frame events.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event.
	Category Category `cbor:"5,keyasint"`

	// Tenant is the tenant key the client was serving.
	Tenant string `cbor:"6,keyasint,omitempty"`

	// URL is the feed endpoint.
	URL string `cbor:"7,keyasint,omitempty"`

	Frame        *FrameEvent        `cbor:"10,keyasint,omitempty"`
	Notification *NotificationEvent `cbor:"11,keyasint,omitempty"`
	StateChange  *StateChangeEvent  `cbor:"12,keyasint,omitempty"`
	Control      *ControlEvent      `cbor:"13,keyasint,omitempty"`
	Error        *ErrorEventData    `cbor:"14,keyasint,omitempty"`
	Health       *HealthEvent       `cbor:"15,keyasint,omitempty"`
}

// Direction indicates the direction of traffic.
type Direction uint8

const (
	// DirectionIn indicates inbound traffic.
	DirectionIn Direction = 0
	// DirectionOut indicates outbound traffic.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which part of the client captured the event.
type Layer uint8

const (
	// LayerTransport is the frame layer.
	LayerTransport Layer = 0
	// LayerCodec is the notification decoding layer.
	LayerCodec Layer = 1
	// LayerClient is the connection state machine.
	LayerClient Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerCodec:
		return "CODEC"
	case LayerClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a data frame or decoded notification.
	CategoryMessage Category = 0
	// CategoryControl indicates heartbeats, closes and reconnect scheduling.
	CategoryControl Category = 1
	// CategoryState indicates a status transition.
	CategoryState Category = 2
	// CategoryError indicates an error.
	CategoryError Category = 3
	// CategoryHealth indicates a liveness probe result.
	CategoryHealth Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	case CategoryHealth:
		return "HEALTH"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures a transport frame.
type FrameEvent struct {
	// Kind is the frame kind name (MESSAGE, HEARTBEAT, ...).
	Kind string `cbor:"1,keyasint"`

	// Destination the frame was addressed to, if any.
	Destination string `cbor:"2,keyasint,omitempty"`

	// Size is the body size in bytes.
	Size int `cbor:"3,keyasint"`

	// Data is the body (may be truncated for large frames).
	Data []byte `cbor:"4,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"5,keyasint,omitempty"`
}

// NotificationEvent captures a decoded notification and its fan-out.
type NotificationEvent struct {
	Kind       string    `cbor:"1,keyasint"`
	TenantCode string    `cbor:"2,keyasint"`
	OrderID    string    `cbor:"3,keyasint,omitempty"`
	TableID    string    `cbor:"4,keyasint,omitempty"`
	NewState   string    `cbor:"5,keyasint,omitempty"`
	SentAt     time.Time `cbor:"6,keyasint,omitempty"`

	// Delivered is the number of callbacks that completed.
	Delivered int `cbor:"7,keyasint"`
}

// StateChangeEvent captures a status transition.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a connection status change.
	StateEntityConnection StateEntity = 0
	// StateEntitySubscription indicates a tenant subscription change.
	StateEntitySubscription StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySubscription:
		return "SUBSCRIPTION"
	default:
		return "UNKNOWN"
	}
}

// ControlEvent captures liveness and reconnection control events.
type ControlEvent struct {
	// Type of control event.
	Type ControlType `cbor:"1,keyasint"`

	// Attempt is the reconnect attempt number (ControlReconnect).
	Attempt int `cbor:"2,keyasint,omitempty"`

	// Delay is the scheduled reconnect delay (ControlReconnect).
	Delay time.Duration `cbor:"3,keyasint,omitempty"`

	// Missed is the missed heartbeat count (ControlHeartbeatMissed).
	Missed int `cbor:"4,keyasint,omitempty"`

	// CloseCode is the transport close code (ControlClose).
	CloseCode int `cbor:"5,keyasint,omitempty"`

	// Reason is the close reason or trigger.
	Reason string `cbor:"6,keyasint,omitempty"`
}

// ControlType indicates the type of control event.
type ControlType uint8

const (
	// ControlHeartbeat is an inbound heartbeat frame.
	ControlHeartbeat ControlType = 0
	// ControlHeartbeatMissed is a stale heartbeat check.
	ControlHeartbeatMissed ControlType = 1
	// ControlClose is a transport closure.
	ControlClose ControlType = 2
	// ControlReconnect is a scheduled reconnection attempt.
	ControlReconnect ControlType = 3
)

// String returns the control type name.
func (c ControlType) String() string {
	switch c {
	case ControlHeartbeat:
		return "HEARTBEAT"
	case ControlHeartbeatMissed:
		return "HEARTBEAT_MISSED"
	case ControlClose:
		return "CLOSE"
	case ControlReconnect:
		return "RECONNECT"
	default:
		return "UNKNOWN"
	}
}

// HealthEvent captures a liveness probe result.
type HealthEvent struct {
	OK                  bool          `cbor:"1,keyasint"`
	Healthy             bool          `cbor:"2,keyasint"`
	ConsecutiveFailures int           `cbor:"3,keyasint"`
	Latency             time.Duration `cbor:"4,keyasint"`
	Error               string        `cbor:"5,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
