package notification

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Decode errors.
var (
	ErrMalformed    = errors.New("malformed payload")
	ErrMissingField = errors.New("missing required field")
	ErrInvalidField = errors.New("invalid field value")
)

// DecodeError describes why a payload was rejected.
type DecodeError struct {
	// Field is the offending JSON field, empty for whole-payload errors.
	Field string

	// Cause is one of ErrMalformed, ErrMissingField or ErrInvalidField,
	// possibly wrapping a lower-level error.
	Cause error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("notification: %v", e.Cause)
	}
	return fmt.Sprintf("notification: %s: %v", e.Field, e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

func missing(field string) error {
	return &DecodeError{Field: field, Cause: ErrMissingField}
}

func invalid(field string, format string, args ...any) error {
	return &DecodeError{
		Field: field,
		Cause: fmt.Errorf("%w: %s", ErrInvalidField, fmt.Sprintf(format, args...)),
	}
}

// wireNotification mirrors the payload. Identifier and timestamp fields stay
// raw so both string and number encodings can be accepted.
type wireNotification struct {
	OrderID       json.RawMessage `json:"orderId"`
	TableID       json.RawMessage `json:"tableId"`
	TenantCode    json.RawMessage `json:"tenantCode"`
	PreviousState *string         `json:"previousState"`
	NewState      *string         `json:"newState"`
	TableState    *string         `json:"tableState"`
	Type          *string         `json:"type"`
	Timestamp     json.RawMessage `json:"timestamp"`
}

// localDateTime is the zone-less layout some backends emit.
const localDateTime = "2006-01-02T15:04:05.999999999"

// Decode parses a raw payload into a Notification.
func Decode(data []byte) (Notification, error) {
	var w wireNotification
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return Notification{}, &DecodeError{Cause: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	if _, err := dec.Token(); err != io.EOF {
		return Notification{}, &DecodeError{Cause: fmt.Errorf("%w: trailing data after offset %d", ErrMalformed, dec.InputOffset())}
	}

	var n Notification
	var err error

	if n.TenantCode, err = identifier("tenantCode", w.TenantCode); err != nil {
		return Notification{}, err
	}
	if n.TenantCode == "" {
		return Notification{}, missing("tenantCode")
	}

	if w.Type == nil || *w.Type == "" {
		return Notification{}, missing("type")
	}
	kind, ok := ParseKind(*w.Type)
	if !ok {
		return Notification{}, invalid("type", "unknown kind %q", *w.Type)
	}
	n.Kind = kind

	if n.Timestamp, err = timestamp(w.Timestamp); err != nil {
		return Notification{}, err
	}

	if n.OrderID, err = identifier("orderId", w.OrderID); err != nil {
		return Notification{}, err
	}
	if n.TableID, err = identifier("tableId", w.TableID); err != nil {
		return Notification{}, err
	}

	if w.TableState != nil && *w.TableState != "" {
		ts, ok := ParseTableState(*w.TableState)
		if !ok {
			return Notification{}, invalid("tableState", "unknown table state %q", *w.TableState)
		}
		n.TableState = ts
	}
	if w.PreviousState != nil {
		n.PreviousState = *w.PreviousState
	}
	if w.NewState != nil {
		n.NewState = *w.NewState
	}

	switch {
	case kind.RequiresOrder() && n.OrderID == "":
		return Notification{}, missing("orderId")
	case kind == KindTableStatusUpdate && n.TableID == "":
		return Notification{}, missing("tableId")
	case kind == KindTableStatusUpdate && n.TableState == TableStateUnset:
		return Notification{}, missing("tableState")
	}

	return n, nil
}

// identifier returns a string or number field verbatim. Absent and null
// fields yield the empty string.
func identifier(field string, raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", invalid(field, "%v", err)
		}
		return s, nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var num json.Number
		if err := json.Unmarshal(raw, &num); err != nil {
			return "", invalid(field, "%v", err)
		}
		return string(raw), nil
	default:
		return "", invalid(field, "expected string or number, got %s", raw)
	}
}

func timestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, missing("timestamp")
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, invalid("timestamp", "%v", err)
		}
		if s == "" {
			return time.Time{}, missing("timestamp")
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, nil
		}
		if t, err := time.ParseInLocation(localDateTime, s, time.UTC); err == nil {
			return t, nil
		}
		return time.Time{}, invalid("timestamp", "unrecognized time %q", s)
	}

	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, invalid("timestamp", "expected epoch milliseconds, got %s", raw)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// Encode renders n in the payload format accepted by Decode. Identifiers are
// written as JSON strings and the timestamp as RFC 3339.
func Encode(n Notification) ([]byte, error) {
	w := struct {
		OrderID       string `json:"orderId,omitempty"`
		TableID       string `json:"tableId,omitempty"`
		TenantCode    string `json:"tenantCode"`
		PreviousState string `json:"previousState,omitempty"`
		NewState      string `json:"newState,omitempty"`
		TableState    string `json:"tableState,omitempty"`
		Type          string `json:"type"`
		Timestamp     string `json:"timestamp"`
	}{
		OrderID:       n.OrderID,
		TableID:       n.TableID,
		TenantCode:    n.TenantCode,
		PreviousState: n.PreviousState,
		NewState:      n.NewState,
		TableState:    n.TableState.String(),
		Type:          n.Kind.String(),
		Timestamp:     n.Timestamp.Format(time.RFC3339Nano),
	}
	return json.Marshal(w)
}
