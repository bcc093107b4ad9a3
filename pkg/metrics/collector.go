// Package metrics exports a client's diagnostics snapshot as Prometheus
// metrics.
//
// The collector reads the snapshot on every scrape, so values are never
// stale and nothing runs between scrapes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tablefeed/tablefeed-go/pkg/client"
	"github.com/tablefeed/tablefeed-go/pkg/connection"
)

// Namespace prefixes every metric name.
const Namespace = "tablefeed"

// Source provides diagnostics snapshots. *client.Client satisfies it.
type Source interface {
	Diagnostics() client.Diagnostics
}

var _ Source = (*client.Client)(nil)

var statuses = []connection.Status{
	connection.StatusDisconnected,
	connection.StatusConnecting,
	connection.StatusConnected,
	connection.StatusReconnecting,
	connection.StatusFailed,
	connection.StatusServerDown,
}

// Collector implements prometheus.Collector over a Source.
type Collector struct {
	src Source

	status           *prometheus.Desc
	info             *prometheus.Desc
	attempts         *prometheus.Desc
	maxAttempts      *prometheus.Desc
	nextDelay        *prometheus.Desc
	reconnectPending *prometheus.Desc
	healthy          *prometheus.Desc
	probeFailures    *prometheus.Desc
	missedHeartbeats *prometheus.Desc
	idle             *prometheus.Desc
	callbacks        *prometheus.Desc
	sessions         *prometheus.Desc
	delivered        *prometheus.Desc
	decodeErrors     *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector reading from src.
func NewCollector(src Source) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(Namespace, "client", name), help, labels, nil)
	}
	return &Collector{
		src:              src,
		status:           desc("status", "Connection status, 1 for the current status.", "status"),
		info:             desc("info", "Current tenant and connection id.", "tenant", "connection_id"),
		attempts:         desc("reconnect_attempts", "Reconnect attempts since the last successful connection."),
		maxAttempts:      desc("reconnect_attempts_max", "Configured reconnect attempt budget."),
		nextDelay:        desc("reconnect_delay_seconds", "Delay of the most recently scheduled reconnect."),
		reconnectPending: desc("reconnect_pending", "1 while a reconnect timer is armed."),
		healthy:          desc("backend_healthy", "1 while the backend liveness check is considered healthy."),
		probeFailures:    desc("probe_consecutive_failures", "Consecutive failed liveness probes."),
		missedHeartbeats: desc("heartbeats_missed", "Consecutive stale heartbeat checks."),
		idle:             desc("idle_seconds", "Time since the last inbound frame on the live session."),
		callbacks:        desc("callbacks", "Notification callbacks registered for the current tenant."),
		sessions:         desc("sessions_total", "Sessions established since the client was created."),
		delivered:        desc("notifications_delivered_total", "Notifications decoded and dispatched."),
		decodeErrors:     desc("decode_errors_total", "Payloads dropped because they could not be decoded."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.status, c.info, c.attempts, c.maxAttempts, c.nextDelay,
		c.reconnectPending, c.healthy, c.probeFailures, c.missedHeartbeats,
		c.idle, c.callbacks, c.sessions, c.delivered, c.decodeErrors,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	d := c.src.Diagnostics()

	for _, s := range statuses {
		ch <- prometheus.MustNewConstMetric(c.status, prometheus.GaugeValue, boolValue(d.Status == s), s.String())
	}
	ch <- prometheus.MustNewConstMetric(c.info, prometheus.GaugeValue, 1, d.Tenant, d.ConnectionID)

	gauge := func(desc *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v)
	}
	gauge(c.attempts, float64(d.AttemptCount))
	gauge(c.maxAttempts, float64(d.MaxAttempts))
	gauge(c.nextDelay, d.NextDelay.Seconds())
	gauge(c.reconnectPending, boolValue(d.ReconnectPending))
	gauge(c.healthy, boolValue(d.Healthy))
	gauge(c.probeFailures, float64(d.ConsecutiveFailures))
	gauge(c.missedHeartbeats, float64(d.MissedHeartbeats))
	gauge(c.idle, d.SinceLastActivity.Seconds())
	gauge(c.callbacks, float64(d.Callbacks))

	counter := func(desc *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v))
	}
	counter(c.sessions, d.Sessions)
	counter(c.delivered, d.Delivered)
	counter(c.decodeErrors, d.DecodeErrors)
}

// NewRegistry returns a registry holding a collector for src plus the
// standard Go and process collectors.
func NewRegistry(src Source) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(src))
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
