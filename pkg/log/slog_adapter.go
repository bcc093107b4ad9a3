package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes trace events to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.Tenant != "" {
		attrs = append(attrs, slog.String("tenant", event.Tenant))
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.String("frame", event.Frame.Kind),
			slog.Int("frame_size", event.Frame.Size),
		)
		if event.Frame.Destination != "" {
			attrs = append(attrs, slog.String("destination", event.Frame.Destination))
		}
		if event.Frame.Truncated {
			attrs = append(attrs, slog.Bool("truncated", true))
		}
	case event.Notification != nil:
		n := event.Notification
		attrs = append(attrs,
			slog.String("kind", n.Kind),
			slog.String("tenant_code", n.TenantCode),
			slog.Int("delivered", n.Delivered),
		)
		if n.OrderID != "" {
			attrs = append(attrs, slog.String("order_id", n.OrderID))
		}
		if n.TableID != "" {
			attrs = append(attrs, slog.String("table_id", n.TableID))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Control != nil:
		c := event.Control
		attrs = append(attrs, slog.String("ctrl_type", c.Type.String()))
		switch c.Type {
		case ControlReconnect:
			attrs = append(attrs, slog.Int("attempt", c.Attempt), slog.Duration("delay", c.Delay))
		case ControlHeartbeatMissed:
			attrs = append(attrs, slog.Int("missed", c.Missed))
		case ControlClose:
			attrs = append(attrs, slog.Int("close_code", c.CloseCode))
		}
		if c.Reason != "" {
			attrs = append(attrs, slog.String("reason", c.Reason))
		}
	case event.Health != nil:
		h := event.Health
		attrs = append(attrs,
			slog.Bool("ok", h.OK),
			slog.Bool("healthy", h.Healthy),
			slog.Int("failures", h.ConsecutiveFailures),
			slog.Duration("latency", h.Latency),
		)
		if h.Error != "" {
			attrs = append(attrs, slog.String("error", h.Error))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *event.Error.Code))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "trace", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
