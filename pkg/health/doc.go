// Package health implements active backend liveness probing.
//
// A Prober issues bounded-timeout probes through a Checker and tracks
// consecutive failures. The backend is declared unhealthy when the failure
// count reaches the configured threshold, and healthy again on the very next
// successful probe.
//
// # Probing Schedule
//
//   - Once before the first connection attempt of a session (fast-fail path)
//   - Periodically (default: 30 seconds) while connected or reconnecting
//
// # Defaults
//
//   - Probe timeout: 5 seconds
//   - Failure threshold: 3
//
// The unhealthy callback fires exactly once per healthy-to-unhealthy
// transition, on the probe that reaches the threshold.
package health
