package discovery

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceType is the DNS-SD service type advertised by backends.
	ServiceType = "_tablefeed._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is used when an entry carries no port.
	DefaultPort = 8080

	// DefaultPath is the feed path assumed for websocket schemes.
	DefaultPath = "/ws"

	// DefaultScheme is assumed when the TXT record has no scheme.
	DefaultScheme = "ws"
)

// TXT record keys.
const (
	TXTKeyScheme  = "scheme"
	TXTKeyPath    = "path"
	TXTKeyVersion = "txtvers"
)

// BrowseTimeout is the default timeout for Locate.
const BrowseTimeout = 5 * time.Second

// MaxInstanceNameLen is the DNS label limit.
const MaxInstanceNameLen = 63

// Errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrUnsupportedScheme   = errors.New("unsupported scheme")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotFound            = errors.New("service not found")
)

// EndpointInfo is the information carried in a backend's TXT records.
type EndpointInfo struct {
	Scheme  string
	Path    string
	Version string
}

// Endpoint is a discovered backend.
type Endpoint struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	Scheme string
	Path   string
}

// URL returns the feed URL for the endpoint. The first IPv4 address is
// preferred over the host name because .local names do not always resolve
// outside the mDNS responder.
func (e *Endpoint) URL() string {
	host := strings.TrimSuffix(e.Host, ".")
	for _, addr := range e.Addresses {
		if ip := net.ParseIP(addr); ip != nil && ip.To4() != nil {
			host = addr
			break
		}
	}
	if host == "" && len(e.Addresses) > 0 {
		host = e.Addresses[0]
	}

	port := e.Port
	if port == 0 {
		port = DefaultPort
	}

	u := e.Scheme + "://" + net.JoinHostPort(host, strconv.Itoa(int(port)))
	if isWebSocket(e.Scheme) {
		u += e.Path
	}
	return u
}

func isWebSocket(scheme string) bool {
	return scheme == "ws" || scheme == "wss"
}
