package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// Timeout bounds Locate when the context has no deadline.
	// Default: 5 seconds.
	Timeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// Logger is the optional logger for debug output.
	Logger *slog.Logger
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Timeout: BrowseTimeout,
	}
}

// ServiceEntry is a resolved mDNS entry, independent of the mDNS library.
type ServiceEntry struct {
	Instance string
	Host     string
	Port     uint16
	Text     []string
	Addrs    []string
}

// ToEndpoint converts the entry to an Endpoint.
func (e *ServiceEntry) ToEndpoint() (*Endpoint, error) {
	info, err := DecodeEndpointTXT(StringsToTXTRecords(e.Text))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Instance, err)
	}
	return &Endpoint{
		InstanceName: e.Instance,
		Host:         e.Host,
		Port:         e.Port,
		Addresses:    append([]string(nil), e.Addrs...),
		Scheme:       info.Scheme,
		Path:         info.Path,
	}, nil
}

// browseFunc runs one browse and feeds entries until ctx ends.
type browseFunc func(ctx context.Context, entries, removed chan<- ServiceEntry) error

// Browser finds backends over mDNS.
type Browser struct {
	config BrowserConfig
	browse browseFunc

	mu      sync.Mutex
	cancels map[int]context.CancelFunc
	nextID  int
}

// NewBrowser creates a browser using zeroconf.
func NewBrowser(config BrowserConfig) *Browser {
	if config.Timeout <= 0 {
		config.Timeout = BrowseTimeout
	}
	b := &Browser{
		config:  config,
		cancels: make(map[int]context.CancelFunc),
	}
	b.browse = b.zeroconfBrowse
	return b
}

// Browse reports backends as they are found. Entries seen on several
// interfaces are merged and reported once. The channel closes when ctx ends
// or Stop is called.
func (b *Browser) Browse(ctx context.Context) (<-chan *Endpoint, error) {
	ctx, cancel := context.WithCancel(ctx)
	id := b.track(cancel)

	entries := make(chan ServiceEntry)
	removed := make(chan ServiceEntry)
	out := make(chan *Endpoint)

	go func() {
		defer b.untrack(id)
		b.aggregate(ctx, entries, removed, out)
	}()
	go func() {
		if err := b.browse(ctx, entries, removed); err != nil {
			b.debugLog("browse failed", "error", err)
			cancel()
		}
	}()

	return out, nil
}

// Locate returns the first backend whose instance name matches, or the first
// backend found when instance is empty.
func (b *Browser) Locate(ctx context.Context, instance string) (*Endpoint, error) {
	if instance != "" {
		if err := ValidateInstanceName(instance); err != nil {
			return nil, err
		}
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.Timeout)
		defer cancel()
	}

	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	for {
		select {
		case ep, ok := <-results:
			if !ok {
				if ctx.Err() != nil {
					return nil, fmt.Errorf("%w: %v", ErrNotFound, ctx.Err())
				}
				return nil, ErrNotFound
			}
			if instance == "" || ep.InstanceName == instance {
				return ep, nil
			}
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrNotFound, ctx.Err())
		}
	}
}

// Stop cancels all active browse operations.
func (b *Browser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, cancel := range b.cancels {
		cancel()
		delete(b.cancels, id)
	}
}

func (b *Browser) track(cancel context.CancelFunc) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.cancels[b.nextID] = cancel
	return b.nextID
}

func (b *Browser) untrack(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cancel, ok := b.cancels[id]; ok {
		cancel()
		delete(b.cancels, id)
	}
}

// aggregate merges entries by instance name and emits each backend once.
func (b *Browser) aggregate(ctx context.Context, entries, removed <-chan ServiceEntry, out chan<- *Endpoint) {
	defer close(out)

	seen := make(map[string]*Endpoint)
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			ep, err := entry.ToEndpoint()
			if err != nil {
				b.debugLog("ignoring entry", "error", err)
				continue
			}
			if existing, found := seen[ep.InstanceName]; found {
				existing.Addresses = mergeAddresses(existing.Addresses, ep.Addresses)
				continue
			}
			seen[ep.InstanceName] = ep
			emitted := *ep
			emitted.Addresses = append([]string(nil), ep.Addresses...)
			select {
			case out <- &emitted:
			case <-ctx.Done():
				return
			}

		case entry, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			if existing, found := seen[entry.Instance]; found {
				existing.Addresses = removeAddresses(existing.Addresses, entry.Addrs)
				if len(existing.Addresses) == 0 {
					delete(seen, entry.Instance)
				}
			}

		case <-ctx.Done():
			return
		}
	}
}

// zeroconfBrowse browses ServiceType and converts zeroconf entries.
func (b *Browser) zeroconfBrowse(ctx context.Context, entries, removed chan<- ServiceEntry) error {
	zEntries := make(chan *zeroconf.ServiceEntry)
	zRemoved := make(chan *zeroconf.ServiceEntry)

	go func() {
		for {
			select {
			case e, ok := <-zEntries:
				if !ok {
					return
				}
				select {
				case entries <- fromZeroconf(e):
				case <-ctx.Done():
					return
				}
			case e, ok := <-zRemoved:
				if !ok {
					zRemoved = nil
					continue
				}
				select {
				case removed <- fromZeroconf(e):
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return zeroconf.Browse(ctx, ServiceType, Domain, zEntries, zRemoved, b.browserOptions()...)
}

// browserOptions returns zeroconf client options based on config.
func (b *Browser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		} else {
			b.debugLog("unknown interface, browsing all", "interface", b.config.Interface, "error", err)
		}
	}
	return opts
}

func (b *Browser) debugLog(msg string, args ...any) {
	if b.config.Logger != nil {
		b.config.Logger.Debug(msg, args...)
	}
}

func fromZeroconf(e *zeroconf.ServiceEntry) ServiceEntry {
	addrs := make([]string, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
	for _, ip := range e.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range e.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return ServiceEntry{
		Instance: e.Instance,
		Host:     e.HostName,
		Port:     uint16(e.Port),
		Text:     e.Text,
		Addrs:    addrs,
	}
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses drops the given addresses from the list.
func removeAddresses(addresses, gone []string) []string {
	drop := make(map[string]bool, len(gone))
	for _, addr := range gone {
		drop[addr] = true
	}
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !drop[addr] {
			result = append(result, addr)
		}
	}
	return result
}
