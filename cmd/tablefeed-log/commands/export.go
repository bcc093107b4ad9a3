package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/tablefeed/tablefeed-go/pkg/log"
)

// RunExport exports the trace file to the specified format. An empty output
// writes to stdout.
func RunExport(path, format, output string) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

var csvHeader = []string{"timestamp", "connection_id", "direction", "layer", "category", "tenant", "type", "detail"}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.ConnectionID,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			event.Tenant,
			eventType(event),
			csvDetail(event),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return cw.Error()
}

// csvDetail condenses the event payload into one column.
func csvDetail(event log.Event) string {
	switch {
	case event.Notification != nil:
		n := event.Notification
		if n.OrderID != "" {
			return n.Kind + " order=" + n.OrderID
		}
		if n.TableID != "" {
			return n.Kind + " table=" + n.TableID + " state=" + n.NewState
		}
		return n.Kind
	case event.StateChange != nil:
		return event.StateChange.OldState + "->" + event.StateChange.NewState
	case event.Control != nil:
		switch event.Control.Type {
		case log.ControlReconnect:
			return fmt.Sprintf("attempt=%d delay=%s", event.Control.Attempt, event.Control.Delay)
		case log.ControlHeartbeatMissed:
			return fmt.Sprintf("missed=%d", event.Control.Missed)
		case log.ControlClose:
			return fmt.Sprintf("code=%d %s", event.Control.CloseCode, event.Control.Reason)
		}
		return event.Control.Reason
	case event.Health != nil:
		return fmt.Sprintf("ok=%v failures=%d", event.Health.OK, event.Health.ConsecutiveFailures)
	case event.Error != nil:
		return event.Error.Message
	case event.Frame != nil:
		return fmt.Sprintf("%s %d bytes", event.Frame.Destination, event.Frame.Size)
	}
	return ""
}
