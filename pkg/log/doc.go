// Package log provides a structured trace of feed client activity.
//
// The trace is separate from operational logging (slog). It is a
// machine-readable record of what the client saw and decided: inbound frames,
// decoded notifications, status transitions, health probe results, heartbeat
// misses, scheduled reconnects and errors. Every event carries the connection
// id of the session it belongs to, so one file can hold many reconnect
// epochs.
//
// # Basic Usage
//
//	// Development: trace to console via slog
//	cfg.Trace = log.NewSlogAdapter(slog.Default())
//
//	// Production: binary trace file
//	fl, _ := log.NewFileLogger("/var/log/tablefeed/listen.flog")
//	cfg.Trace = fl
//
//	// Both
//	cfg.Trace = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # Layers
//
//   - Transport: raw frames and heartbeats (FrameEvent, ControlEvent)
//   - Codec: decoded notifications and decode failures (NotificationEvent)
//   - Client: status transitions, health and reconnect decisions
//
// # File Format
//
// Trace files are a stream of CBOR-encoded events with integer keys, using
// the .flog extension. The tablefeed-log tool views and summarizes them.
package log
