package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/labsweep/internal/datalog"
	"github.com/banshee-data/labsweep/internal/monitoring"
)

func listLogs(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", defaultDB, "Log database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := datalog.Open(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	logs, err := store.Logs(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tENTRIES\tCREATED\tTAGS")
	for _, l := range logs {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", l.Name, l.Entries, l.CreatedAt.Local().Format(time.DateTime), strings.Join(l.Tags, ", "))
	}
	return tw.Flush()
}

func exportLog(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", defaultDB, "Log database path")
	name := fs.String("log", "", "Name of the log to export")
	out := fs.String("out", "", "CSV output file (defaults to stdout)")
	summary := fs.String("summary", "", "Optional per-entry summary CSV file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("export: -log is required")
	}

	store, err := datalog.Open(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	lg, err := store.OpenLog(ctx, *name)
	if err != nil {
		return err
	}
	entries, err := lg.Entries(ctx)
	if err != nil {
		return err
	}

	if err := writeTo(*out, stdout, func(w io.Writer) error {
		return datalog.WriteCSV(w, lg, entries)
	}); err != nil {
		return err
	}
	if *summary != "" {
		if err := writeTo(*summary, stdout, func(w io.Writer) error {
			return datalog.WriteSummaryCSV(w, lg, entries)
		}); err != nil {
			return err
		}
	}
	monitoring.Logf("exported %s: %d of %d entries", lg.Name(), len(entries), lg.Capacity())
	return nil
}

// writeTo runs write against path, or against fallback when path is empty.
func writeTo(path string, fallback io.Writer, write func(io.Writer) error) error {
	if path == "" {
		return write(fallback)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func migrateDB(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", defaultDB, "Log database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("migrate: expected one of up, down or version")
	}

	store, err := datalog.OpenUnmigrated(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	switch fs.Arg(0) {
	case "up":
		err = store.MigrateUp()
	case "down":
		err = store.MigrateDown()
	case "version":
	default:
		return fmt.Errorf("migrate: unknown action %q", fs.Arg(0))
	}
	if err != nil {
		return err
	}

	version, dirty, err := store.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "schema version %d", version)
	if dirty {
		fmt.Fprint(stdout, " (dirty)")
	}
	fmt.Fprintln(stdout)
	return nil
}
