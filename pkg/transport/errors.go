package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Close codes (RFC 6455 section 7.4.1).
const (
	// CloseNormal indicates an intentional, orderly closure.
	CloseNormal = 1000

	// CloseGoingAway indicates the peer is going away, e.g. server restart.
	CloseGoingAway = 1001

	// CloseNoStatus is reported when a close frame carried no code.
	CloseNoStatus = 1005

	// CloseAbnormal is reported when the connection dropped without a close
	// frame.
	CloseAbnormal = 1006
)

// IsNormalClosure reports whether code denotes an intentional closure that
// must not trigger a reconnection.
func IsNormalClosure(code int) bool {
	return code == CloseNormal
}

// Transport errors.
var (
	// ErrClosed is returned by operations on a deactivated connection.
	ErrClosed = errors.New("connection closed")

	// ErrHandshake indicates the session handshake failed for a reason other
	// than authentication.
	ErrHandshake = errors.New("handshake failed")
)

// AuthError reports that the backend rejected the credentials.
type AuthError struct {
	// Status is the HTTP-equivalent status, 401 or 403.
	Status int

	// Message is the backend's explanation, if any.
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("authentication rejected (%d %s)", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("authentication rejected (%d %s): %s", e.Status, http.StatusText(e.Status), e.Message)
}

// IsNonRetryable reports whether err is an authentication or permission
// failure that reconnecting cannot fix.
func IsNonRetryable(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// authMarkers are substrings of backend error messages that indicate
// rejected credentials. Matching is case-insensitive.
var authMarkers = []struct {
	marker string
	status int
}{
	{"403", http.StatusForbidden},
	{"forbidden", http.StatusForbidden},
	{"access denied", http.StatusForbidden},
	{"accessdenied", http.StatusForbidden},
	{"noperm", http.StatusForbidden},
	{"401", http.StatusUnauthorized},
	{"unauthorized", http.StatusUnauthorized},
	{"unauthenticated", http.StatusUnauthorized},
	{"invalid token", http.StatusUnauthorized},
	{"expired", http.StatusUnauthorized},
	{"noauth", http.StatusUnauthorized},
	{"wrongpass", http.StatusUnauthorized},
}

// classifyMessage returns an *AuthError when msg describes an authentication
// failure, and nil otherwise.
func classifyMessage(msg string) *AuthError {
	lower := strings.ToLower(msg)
	for _, m := range authMarkers {
		if strings.Contains(lower, m.marker) {
			return &AuthError{Status: m.status, Message: strings.TrimSpace(msg)}
		}
	}
	return nil
}

// authFromStatus returns an *AuthError for HTTP 401 and 403, and nil for any
// other status.
func authFromStatus(status int, msg string) *AuthError {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return &AuthError{Status: status, Message: msg}
	}
	return nil
}
