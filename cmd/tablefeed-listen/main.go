// Command tablefeed-listen connects to a notification feed and prints the
// notifications of one or more tenants.
//
// It wires the full client stack:
//   - YAML configuration with TABLEFEED_* environment overrides
//   - backend discovery over mDNS when no URL is configured
//   - websocket (STOMP) or Redis transport chosen by URL scheme
//   - protocol trace files readable with tablefeed-log
//   - Prometheus metrics
//   - an optional interactive console
//
// Usage:
//
//	tablefeed-listen [flags]
//
// Flags:
//
//	-config string       Configuration file path
//	-url string          Feed URL (ws://, wss://, redis://, rediss://)
//	-tenant string       Tenant to connect to on startup
//	-token-file string   Read the bearer token from this file
//	-discover            Locate the backend over mDNS
//	-instance string     mDNS instance name to connect to (default: first found)
//	-metrics string      Listen address for /metrics (e.g. :9100)
//	-trace string        Protocol trace output file (.flog)
//	-log-level string    Log level: debug, info, warn, error (default "info")
//	-interactive         Enable interactive command mode
//
// Examples:
//
//	# Listen to one tenant, token from TABLEFEED_TOKEN
//	tablefeed-listen -url wss://feed.example.com/ws -tenant acme
//
//	# Find the backend on the LAN and open the console
//	tablefeed-listen -discover -interactive
//
//	# Record a trace and expose metrics
//	tablefeed-listen -config listen.yaml -trace session.flog -metrics :9100
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tablefeed/tablefeed-go/cmd/tablefeed-listen/interactive"
	"github.com/tablefeed/tablefeed-go/pkg/client"
	"github.com/tablefeed/tablefeed-go/pkg/config"
	"github.com/tablefeed/tablefeed-go/pkg/connection"
	"github.com/tablefeed/tablefeed-go/pkg/discovery"
	tflog "github.com/tablefeed/tablefeed-go/pkg/log"
	"github.com/tablefeed/tablefeed-go/pkg/metrics"
	"github.com/tablefeed/tablefeed-go/pkg/notification"
	"github.com/tablefeed/tablefeed-go/pkg/transport"
)

// Flags holds the command-line options.
type Flags struct {
	ConfigFile  string
	URL         string
	Tenant      string
	TokenFile   string
	Discover    bool
	Instance    string
	Metrics     string
	Trace       string
	LogLevel    string
	Interactive bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path")
	flag.StringVar(&flags.URL, "url", "", "Feed URL (ws://, wss://, redis://, rediss://)")
	flag.StringVar(&flags.Tenant, "tenant", "", "Tenant to connect to on startup")
	flag.StringVar(&flags.TokenFile, "token-file", "", "Read the bearer token from this file")
	flag.BoolVar(&flags.Discover, "discover", false, "Locate the backend over mDNS")
	flag.StringVar(&flags.Instance, "instance", "", "mDNS instance name to connect to (default: first found)")
	flag.StringVar(&flags.Metrics, "metrics", "", "Listen address for /metrics (e.g. :9100)")
	flag.StringVar(&flags.Trace, "trace", "", "Protocol trace output file (.flog)")
	flag.StringVar(&flags.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Enable interactive command mode")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logOut := &switchWriter{w: os.Stderr}
	logger := newLogger(logOut, level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.URL == "" {
		ep, err := locate(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: discovery: %v\n", err)
			os.Exit(1)
		}
		cfg.URL = ep.URL()
		logger.Info("backend discovered", "instance", ep.InstanceName, "url", cfg.URL)
	}

	trace, closeTrace, err := openTrace(cfg.TraceFile, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeTrace()

	c, clientCfg, err := newClient(cfg, logger, trace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	var out io.Writer = os.Stdout
	var console *interactive.Console
	if flags.Interactive {
		console, err = interactive.New(c, func(n notification.Notification) { printNotification(console.Stdout(), n) }, clientCfg.ConnectTimeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		// Log output goes through readline so it does not clobber the prompt.
		out = console.Stdout()
		logOut.Set(out)
	}

	if cfg.MetricsListen != "" {
		go serveMetrics(ctx, cfg.MetricsListen, metrics.NewRegistry(c), logger)
	}

	if cfg.Tenant != "" {
		w := out
		remove := c.AddSubscription(cfg.Tenant, func(n notification.Notification) { printNotification(w, n) })
		if console != nil {
			console.Track(cfg.Tenant, remove)
		}

		connectCtx, connectCancel := context.WithTimeout(ctx, clientCfg.ConnectTimeout)
		err := c.Connect(connectCtx, cfg.Tenant)
		connectCancel()
		if err != nil {
			logger.Error("connect failed", "tenant", cfg.Tenant, "error", err, "status", c.Status().String())
			if !flags.Interactive && (errors.Is(err, client.ErrNoCredential) || client.IsAuthError(err)) {
				os.Exit(1)
			}
		}
	} else if !flags.Interactive {
		fmt.Fprintln(os.Stderr, "Error: no tenant given (use -tenant or the interactive console)")
		os.Exit(1)
	}

	if console != nil {
		go console.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig.String())
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	cancel()
}

// loadConfig applies, in order: defaults, the config file, the environment
// and explicitly set flags.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if flags.ConfigFile != "" {
		loaded, err := config.Load(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			cfg.URL = flags.URL
		case "tenant":
			cfg.Tenant = flags.Tenant
		case "token-file":
			cfg.Credential = config.CredentialConfig{File: flags.TokenFile}
		case "discover":
			cfg.Discovery.Enabled = flags.Discover
		case "instance":
			cfg.Discovery.Instance = flags.Instance
		case "metrics":
			cfg.MetricsListen = flags.Metrics
		case "trace":
			cfg.TraceFile = flags.Trace
		case "log-level":
			cfg.LogLevel = flags.LogLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// newClient builds the client for cfg and logs every status change.
func newClient(cfg *config.Config, logger *slog.Logger, trace tflog.Logger) (*client.Client, client.Config, error) {
	clientCfg := cfg.ClientConfig(logger, trace)
	if err := clientCfg.Validate(); err != nil {
		return nil, clientCfg, err
	}

	c := client.New(clientCfg, cfg.Credential.Provider(), dialerFor(cfg.URL))
	c.AddStatusCallback(func(s connection.Status) {
		logger.Info("status", "status", s.String(), "tenant", c.Tenant())
	})
	return c, clientCfg, nil
}

func newLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func locate(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*discovery.Endpoint, error) {
	browser := discovery.NewBrowser(discovery.BrowserConfig{
		Timeout: cfg.Discovery.Timeout.Std(),
		Logger:  logger,
	})
	defer browser.Stop()

	logger.Info("discovering backend", "service", discovery.ServiceType, "instance", cfg.Discovery.Instance)
	return browser.Locate(ctx, cfg.Discovery.Instance)
}

// openTrace opens the trace file and mirrors trace events to the debug log.
func openTrace(path string, logger *slog.Logger) (tflog.Logger, func(), error) {
	adapter := tflog.NewSlogAdapter(logger)
	if path == "" {
		return adapter, func() {}, nil
	}
	file, err := tflog.NewFileLogger(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open trace file: %w", err)
	}
	logger.Info("tracing", "file", file.Path())
	return tflog.NewMultiLogger(file, adapter), func() {
		if err := file.Close(); err != nil {
			logger.Warn("close trace file", "error", err)
		}
	}, nil
}

func dialerFor(rawURL string) transport.Dialer {
	if strings.HasPrefix(rawURL, "redis://") || strings.HasPrefix(rawURL, "rediss://") {
		return transport.NewRedisDialer()
	}
	return transport.NewWebSocketDialer()
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err)
	}
}

// switchWriter lets log output move to the console once it exists.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *switchWriter) Set(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

func printNotification(w io.Writer, n notification.Notification) {
	ts := n.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	var detail string
	switch {
	case n.OrderID != "":
		detail = "order " + n.OrderID
	case n.TableID != "":
		detail = fmt.Sprintf("table %s %s", n.TableID, n.TableState)
	}
	fmt.Fprintf(w, "%s [%s] %s %s\n", ts.Format("15:04:05.000"), n.TenantCode, n.Kind, detail)
}
