// Command labsweep runs parameter sweeps defined in JSON and manages the
// resulting log database.
//
//	labsweep [-log-level ops] run -config exp.json [-db labsweep.db] [-dry-run] [-async]
//	labsweep list [-db labsweep.db]
//	labsweep export -log name [-out data.csv] [-summary stats.csv]
//	labsweep serve [-listen :7070] [-workers 4]
//	labsweep migrate up|down|version
//	labsweep version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/labsweep/internal/monitoring"
	"github.com/banshee-data/labsweep/internal/version"
)

const defaultDB = "labsweep.db"

var errUsage = errors.New("usage: labsweep [-log-level off|ops|diag|trace] run|list|export|serve|migrate|version [flags]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("labsweep: %v", err)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("labsweep", flag.ContinueOnError)
	fs.SetOutput(stderr)
	logLevel := fs.String("log-level", "ops", "Log streams to enable: off, ops, diag or trace")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := monitoring.Configure(*logLevel, stderr); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return errUsage
	}
	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "run":
		return runSweep(ctx, cmdArgs, stdout, stderr)
	case "list":
		return listLogs(ctx, cmdArgs, stdout, stderr)
	case "export":
		return exportLog(ctx, cmdArgs, stdout, stderr)
	case "serve":
		return serve(ctx, cmdArgs, stderr)
	case "migrate":
		return migrateDB(cmdArgs, stdout, stderr)
	case "version":
		_, err := fmt.Fprintln(stdout, version.String())
		return err
	}
	return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
}
