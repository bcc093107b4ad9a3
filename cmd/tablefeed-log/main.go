// Command tablefeed-log views and analyzes protocol trace files.
//
// Trace files are written by tablefeed-listen with the -trace flag, or by any
// client configured with a log.FileLogger.
//
// Usage:
//
//	tablefeed-log <command> [flags] <file.flog>
//
// Commands:
//
//	view     View trace file in human-readable format
//	export   Export trace file to JSONL or CSV format
//	filter   Filter trace file and write to new file
//	stats    Show statistics about the trace file
//
// Examples:
//
//	# View all events
//	tablefeed-log view session.flog
//
//	# View only reconnection and heartbeat events
//	tablefeed-log view --category control session.flog
//
//	# View one tenant's decoded notifications
//	tablefeed-log view --layer codec --tenant acme session.flog
//
//	# Export to CSV
//	tablefeed-log export --format csv -o session.csv session.flog
//
//	# Keep one connection epoch
//	tablefeed-log filter --conn-id abc12345-... -o epoch.flog session.flog
//
//	# Follow one order through the feed
//	tablefeed-log filter --order-id 4711 --kind new_order,dish_update -o order.flog session.flog
//
//	# Show statistics
//	tablefeed-log stats session.flog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tablefeed/tablefeed-go/cmd/tablefeed-log/commands"
)

const usage = `tablefeed-log - tablefeed Trace Analyzer

Usage:
  tablefeed-log <command> [flags] <file.flog>

Commands:
  view     View trace file in human-readable format
  export   Export trace file to JSONL or CSV format
  filter   Filter trace file and write to new file
  stats    Show statistics about the trace file

Use "tablefeed-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// newFlagSet returns a flag set whose usage text starts with header.
func newFlagSet(name, header string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, header)
		fs.PrintDefaults()
	}
	return fs
}

// pathArg parses args and returns the single trace file argument.
func pathArg(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs := newFlagSet("view", `tablefeed-log view - View trace file in human-readable format

Usage:
  tablefeed-log view [flags] <file.flog>

Flags:
`)
	layer := fs.String("layer", "", "Filter by layer (transport, codec, client)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, control, state, error, health)")
	tenant := fs.String("tenant", "", "Filter by tenant")

	path := pathArg(fs, args)

	filter := commands.ViewFilter{Tenant: *tenant}
	if *layer != "" {
		l, err := commands.ParseLayerFlag(*layer)
		if err != nil {
			fail(err)
		}
		filter.Layer = &l
	}
	if *direction != "" {
		d, err := commands.ParseDirectionFlag(*direction)
		if err != nil {
			fail(err)
		}
		filter.Direction = &d
	}
	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			fail(err)
		}
		filter.Category = &c
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := newFlagSet("export", `tablefeed-log export - Export trace file to JSONL or CSV format

Usage:
  tablefeed-log export [flags] <file.flog>

Flags:
`)
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	path := pathArg(fs, args)
	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := newFlagSet("filter", `tablefeed-log filter - Filter trace file and write to new file

Usage:
  tablefeed-log filter [flags] <file.flog>

Flags:
`)
	output := fs.String("o", "", "Output file (required)")
	connID := fs.String("conn-id", "", "Filter by connection ID")
	tenant := fs.String("tenant", "", "Filter by tenant")
	timeStart := fs.String("time-start", "", "Filter by start time (RFC3339)")
	timeEnd := fs.String("time-end", "", "Filter by end time (RFC3339)")
	layer := fs.String("layer", "", "Filter by layer (transport, codec, client)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, control, state, error, health)")
	kinds := fs.String("kind", "", "Keep notifications of these kinds (comma-separated, e.g. new_order,payment_update)")
	orderID := fs.String("order-id", "", "Keep notifications for this order")

	path := pathArg(fs, args)
	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	opts := commands.FilterOptions{
		Output:    *output,
		ConnID:    *connID,
		Tenant:    *tenant,
		TimeStart: *timeStart,
		TimeEnd:   *timeEnd,
		Layer:     *layer,
		Direction: *direction,
		Category:  *category,
		Kinds:     *kinds,
		OrderID:   *orderID,
	}
	if err := commands.RunFilter(path, opts, os.Stdout); err != nil {
		fail(err)
	}
}

func runStats(args []string) {
	fs := newFlagSet("stats", `tablefeed-log stats - Show statistics about the trace file

Usage:
  tablefeed-log stats <file.flog>

`)
	path := pathArg(fs, args)
	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
