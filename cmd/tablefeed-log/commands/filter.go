package commands

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/tablefeed/tablefeed-go/pkg/log"
	"github.com/tablefeed/tablefeed-go/pkg/notification"
)

// FilterOptions selects the events the filter command keeps. Empty fields
// match everything.
type FilterOptions struct {
	Output string

	ConnID string
	Tenant string

	// TimeStart and TimeEnd are RFC3339 timestamps bounding [start, end).
	TimeStart string
	TimeEnd   string

	Layer     string
	Direction string
	Category  string

	// Kinds is a comma-separated list of notification kinds, parsed like
	// the feed's type field. Setting Kinds or OrderID keeps only decoded
	// notifications.
	Kinds   string
	OrderID string
}

// FilterResult summarizes a filter run.
type FilterResult struct {
	Kept   int
	ByKind map[string]int
}

func buildFilter(opts FilterOptions) (log.Filter, error) {
	f := log.Filter{
		ConnectionID: opts.ConnID,
		Tenant:       opts.Tenant,
		OrderID:      strings.TrimSpace(opts.OrderID),
	}

	var err error
	if f.TimeStart, err = optional(opts.TimeStart, timeBound("time-start")); err != nil {
		return f, err
	}
	if f.TimeEnd, err = optional(opts.TimeEnd, timeBound("time-end")); err != nil {
		return f, err
	}
	if f.Layer, err = optional(opts.Layer, parseLayer); err != nil {
		return f, err
	}
	if f.Direction, err = optional(opts.Direction, parseDirection); err != nil {
		return f, err
	}
	if f.Category, err = optional(opts.Category, parseCategory); err != nil {
		return f, err
	}
	if f.Kinds, err = parseKinds(opts.Kinds); err != nil {
		return f, err
	}
	return f, nil
}

// optional parses s unless it is empty.
func optional[T any](s string, parse func(string) (T, error)) (*T, error) {
	if s == "" {
		return nil, nil
	}
	v, err := parse(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func timeBound(flag string) func(string) (time.Time, error) {
	return func(s string) (time.Time, error) {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return t, fmt.Errorf("invalid %s: %w", flag, err)
		}
		return t, nil
	}
}

// parseKinds returns the canonical names of a comma-separated kind list.
func parseKinds(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var kinds []string
	for _, part := range strings.Split(s, ",") {
		k, ok := notification.ParseKind(part)
		if !ok {
			return nil, fmt.Errorf("unknown notification kind %q", strings.TrimSpace(part))
		}
		if name := k.String(); !slices.Contains(kinds, name) {
			kinds = append(kinds, name)
		}
	}
	return kinds, nil
}

// FilterTrace copies the events of path matching opts to opts.Output.
func FilterTrace(path string, opts FilterOptions) (FilterResult, error) {
	res := FilterResult{ByKind: make(map[string]int)}

	filter, err := buildFilter(opts)
	if err != nil {
		return res, err
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return res, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	out, err := log.NewFileLogger(opts.Output)
	if err != nil {
		return res, fmt.Errorf("failed to create output logger: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			out.Close()
			return res, fmt.Errorf("failed to read event: %w", err)
		}
		out.Log(event)
		res.Kept++
		if event.Notification != nil {
			res.ByKind[event.Notification.Kind]++
		}
	}

	if err := out.Close(); err != nil {
		return res, fmt.Errorf("failed to close output: %w", err)
	}
	return res, nil
}

// RunFilter runs FilterTrace and prints the kept count and the notifications
// kept per kind to w.
func RunFilter(path string, opts FilterOptions, w io.Writer) error {
	res, err := FilterTrace(path, opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Filtered %d events to %s\n", res.Kept, opts.Output)
	for _, kind := range slices.Sorted(maps.Keys(res.ByKind)) {
		fmt.Fprintf(w, "  %-26s %d\n", kind, res.ByKind[kind])
	}
	return nil
}
