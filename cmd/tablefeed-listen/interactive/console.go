// Package interactive provides the interactive command-line interface
// for tablefeed-listen.
package interactive

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/tablefeed/tablefeed-go/pkg/client"
	"github.com/tablefeed/tablefeed-go/pkg/connection"
	"github.com/tablefeed/tablefeed-go/pkg/subscription"
)

// Client is the part of *client.Client the console drives.
type Client interface {
	Status() connection.Status
	Tenant() string
	Connect(ctx context.Context, tenant string) error
	Disconnect()
	ForceReconnect(ctx context.Context, tenant string) error
	AddSubscription(tenant string, cb subscription.Callback) func()
	Diagnostics() client.Diagnostics
}

var _ Client = (*client.Client)(nil)

// Console handles interactive mode for tablefeed-listen.
type Console struct {
	client  Client
	handler subscription.Callback
	timeout time.Duration
	out     io.Writer
	rl      *readline.Instance

	mu            sync.Mutex
	subscriptions map[string]func()
}

// New creates a console reading from the terminal. handler receives the
// notifications of tenants subscribed from the console.
func New(c Client, handler subscription.Callback, connectTimeout time.Duration) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tablefeed> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	con := newConsole(c, handler, connectTimeout, rl.Stdout())
	con.rl = rl
	return con, nil
}

func newConsole(c Client, handler subscription.Callback, connectTimeout time.Duration, out io.Writer) *Console {
	if connectTimeout <= 0 {
		connectTimeout = client.DefaultConnectTimeout
	}
	return &Console{
		client:        c,
		handler:       handler,
		timeout:       connectTimeout,
		out:           out,
		subscriptions: make(map[string]func()),
	}
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.out
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if quit := c.Execute(ctx, line); quit {
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether the console should exit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "status", "s":
		c.cmdStatus()

	case "diag", "d":
		c.cmdDiag()

	case "connect", "c":
		c.cmdConnect(ctx, args)

	case "disconnect":
		c.client.Disconnect()
		fmt.Fprintln(c.out, "Disconnected")

	case "reconnect", "r":
		c.cmdReconnect(ctx)

	case "subscribe", "sub":
		c.cmdSubscribe(args)

	case "unsubscribe", "unsub":
		c.cmdUnsubscribe(args)

	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return true

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
tablefeed Commands:
  Connection:
    connect <tenant>      - Connect (or switch) to a tenant
    disconnect            - Close the session, keep subscriptions
    reconnect             - Force a fresh session for the current tenant

  Subscriptions:
    subscribe <tenant>    - Print notifications for a tenant
    unsubscribe <tenant>  - Stop printing notifications for a tenant

  General:
    status                - Show connection status
    diag                  - Show diagnostics
    help                  - Show this help
    quit                  - Exit`)
}

func (c *Console) cmdStatus() {
	tenant := c.client.Tenant()
	if tenant == "" {
		tenant = "-"
	}
	fmt.Fprintf(c.out, "Status: %s (tenant: %s)\n", c.client.Status(), tenant)

	c.mu.Lock()
	tenants := make([]string, 0, len(c.subscriptions))
	for t := range c.subscriptions {
		tenants = append(tenants, t)
	}
	c.mu.Unlock()
	sort.Strings(tenants)
	if len(tenants) > 0 {
		fmt.Fprintf(c.out, "Subscribed: %s\n", strings.Join(tenants, ", "))
	}
}

func (c *Console) cmdDiag() {
	d := c.client.Diagnostics()
	fmt.Fprintf(c.out, "  Status:             %s\n", d.Status)
	fmt.Fprintf(c.out, "  Tenant:             %s\n", d.Tenant)
	fmt.Fprintf(c.out, "  Connection ID:      %s\n", d.ConnectionID)
	fmt.Fprintf(c.out, "  Subscribed:         %v (%d callbacks)\n", d.Subscribed, d.Callbacks)
	fmt.Fprintf(c.out, "  Reconnect attempts: %d/%d\n", d.AttemptCount, d.MaxAttempts)
	if d.ReconnectPending {
		fmt.Fprintf(c.out, "  Next attempt in:    %v\n", d.NextDelay)
	}
	if !d.LastDisconnect.IsZero() {
		fmt.Fprintf(c.out, "  Last disconnect:    %s\n", d.LastDisconnect.Format(time.RFC3339))
	}
	fmt.Fprintf(c.out, "  Backend healthy:    %v (%d consecutive failures)\n", d.Healthy, d.ConsecutiveFailures)
	if d.LastProbeError != "" {
		fmt.Fprintf(c.out, "  Last probe error:   %s\n", d.LastProbeError)
	}
	fmt.Fprintf(c.out, "  Missed heartbeats:  %d\n", d.MissedHeartbeats)
	if d.SinceLastActivity > 0 {
		fmt.Fprintf(c.out, "  Idle for:           %v\n", d.SinceLastActivity.Round(time.Millisecond))
	}
	fmt.Fprintf(c.out, "  Sessions:           %d\n", d.Sessions)
	fmt.Fprintf(c.out, "  Delivered:          %d (%d decode errors)\n", d.Delivered, d.DecodeErrors)
	if d.LastError != "" {
		fmt.Fprintf(c.out, "  Last error:         %s\n", d.LastError)
	}
}

func (c *Console) cmdConnect(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: connect <tenant>")
		return
	}
	tenant := args[0]
	c.ensureSubscribed(tenant)

	connectCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Connect(connectCtx, tenant); err != nil {
		fmt.Fprintf(c.out, "Connect failed: %v (status: %s)\n", err, c.client.Status())
		return
	}
	fmt.Fprintf(c.out, "Connected to %s\n", tenant)
}

func (c *Console) cmdReconnect(ctx context.Context) {
	tenant := c.client.Tenant()
	if tenant == "" {
		fmt.Fprintln(c.out, "No tenant; use connect <tenant>")
		return
	}

	reconnectCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.ForceReconnect(reconnectCtx, tenant); err != nil {
		fmt.Fprintf(c.out, "Reconnect failed: %v (status: %s)\n", err, c.client.Status())
		return
	}
	fmt.Fprintf(c.out, "Reconnected to %s\n", tenant)
}

func (c *Console) cmdSubscribe(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: subscribe <tenant>")
		return
	}
	if !c.ensureSubscribed(args[0]) {
		fmt.Fprintf(c.out, "Already subscribed to %s\n", args[0])
		return
	}
	fmt.Fprintf(c.out, "Subscribed to %s\n", args[0])
}

func (c *Console) cmdUnsubscribe(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: unsubscribe <tenant>")
		return
	}
	c.mu.Lock()
	remove, ok := c.subscriptions[args[0]]
	delete(c.subscriptions, args[0])
	c.mu.Unlock()

	if !ok {
		fmt.Fprintf(c.out, "Not subscribed to %s\n", args[0])
		return
	}
	remove()
	fmt.Fprintf(c.out, "Unsubscribed from %s\n", args[0])
}

// ensureSubscribed registers the console handler for tenant once.
func (c *Console) ensureSubscribed(tenant string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subscriptions[tenant]; ok {
		return false
	}
	c.subscriptions[tenant] = c.client.AddSubscription(tenant, c.handler)
	return true
}

// Track records a subscription made outside the console so that unsubscribe
// can remove it.
func (c *Console) Track(tenant string, remove func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.subscriptions[tenant]; ok {
		prev()
	}
	c.subscriptions[tenant] = remove
}
