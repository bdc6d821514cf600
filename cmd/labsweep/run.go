package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/labsweep/internal/config"
	"github.com/banshee-data/labsweep/internal/datalog"
	"github.com/banshee-data/labsweep/internal/demo"
	"github.com/banshee-data/labsweep/internal/instrument"
	"github.com/banshee-data/labsweep/internal/monitoring"
	"github.com/banshee-data/labsweep/internal/param"
	"github.com/banshee-data/labsweep/internal/remote"
	"github.com/banshee-data/labsweep/internal/sweep"
)

func runSweep(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Experiment definition (.json)")
	dbPath := fs.String("db", defaultDB, "Log database path")
	name := fs.String("name", "", "Base log name (overrides the config name)")
	dryRun := fs.Bool("dry-run", false, "Run the sweep without writing a log")
	async := fs.Bool("async", false, "Submit every point before collecting results")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return fmt.Errorf("run: -config is required")
	}

	exp, err := config.LoadExperiment(*configPath)
	if err != nil {
		return err
	}
	template, err := exp.ParameterSet()
	if err != nil {
		return err
	}

	opts := sweep.Options{
		LogName: exp.Name,
		Comment: exp.Comment,
		Tags:    exp.Tags,
		Fields:  exp.FieldDescriptors(),
	}
	if *name != "" {
		opts.LogName = *name
	}

	var backend sweep.Backend
	if !*dryRun {
		store, err := datalog.Open(*dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		backend = store
	}

	procs, err := buildProcedure(exp.Procedure, *async)
	if err != nil {
		return err
	}
	defer procs.close()

	monitoring.Logf("sweeping %d points from %s", template.TotalIterations(), *configPath)

	sw := sweep.New(backend, opts)
	var report *sweep.Report
	if procs.async != nil {
		batch, err := sw.Submit(ctx, procs.async, template)
		if err != nil {
			return err
		}
		report, err = sw.Collect(ctx, batch)
		if err != nil {
			return err
		}
	} else {
		report, err = sw.Run(ctx, procs.sync, template)
		if err != nil {
			return err
		}
	}
	return printReport(stdout, report)
}

// procedures holds whichever form of the configured procedure will be run.
type procedures struct {
	sync    sweep.Procedure
	async   sweep.AsyncProcedure
	closers []func() error
}

func (p *procedures) close() {
	for _, c := range p.closers {
		if err := c(); err != nil {
			monitoring.Logf("close procedure: %v", err)
		}
	}
}

func buildProcedure(cfg config.ProcedureConfig, async bool) (*procedures, error) {
	procs := &procedures{}
	switch cfg.Kind {
	case config.KindProduct:
		if async {
			exec := remote.NewLocalExecutor(demo.Product{}, cfg.GetWorkers())
			procs.async = remote.NewProcedure(exec, demo.Product{}.Name())
		} else {
			procs.sync = demo.Product{}
		}
	case config.KindRemote:
		conn, err := remote.Dial(cfg.Target)
		if err != nil {
			return nil, err
		}
		procs.async = remote.NewProcedure(remote.NewClient(conn), "Remote")
		procs.closers = append(procs.closers, conn.Close)
	case config.KindSerial:
		if async {
			return nil, fmt.Errorf("procedure kind %q cannot run with -async", cfg.Kind)
		}
		inst, err := instrument.OpenSerial(cfg.Device, cfg.GetSerial())
		if err != nil {
			return nil, err
		}
		procs.sync = boundedProcedure{Instrument: inst, timeout: cfg.GetTimeout()}
		procs.closers = append(procs.closers, inst.Close)
	default:
		return nil, fmt.Errorf("unknown procedure kind %q", cfg.Kind)
	}
	return procs, nil
}

// boundedProcedure limits each instrument exchange to timeout.
type boundedProcedure struct {
	*instrument.Instrument
	timeout time.Duration
}

func (b boundedProcedure) Run(ctx context.Context, point *param.Set) (*param.Set, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.Instrument.Run(ctx, point)
}

// printReport writes one row per entry with the mean and standard deviation
// of every scalar field.
func printReport(w io.Writer, report *sweep.Report) error {
	if report.LogName != "" {
		fmt.Fprintf(w, "log %s\n", report.LogName)
	}
	steps := make([]string, len(report.Steps))
	for i, s := range report.Steps {
		steps[i] = fmt.Sprintf("%s[%d]", s.Name, len(s.Values))
	}
	fmt.Fprintf(w, "steps %s, %d entries\n\n", strings.Join(steps, " "), len(report.Entries))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "entry\tpoint\tfield\tmean\tstddev")
	for _, e := range report.Entries {
		point := make([]string, len(e.Values))
		for i, v := range e.Values {
			point[i] = param.FormatValue(v)
		}
		for _, f := range e.Trace.Fields {
			if f.Vector {
				fmt.Fprintf(tw, "%v\t%s\t%s\t%d vectors\t\n", e.Index, strings.Join(point, ","), f.Name, len(f.Vectors))
				continue
			}
			mean, std := stat.MeanStdDev(f.Scalars, nil)
			if len(f.Scalars) < 2 {
				std = 0
			}
			fmt.Fprintf(tw, "%v\t%s\t%s\t%.6g\t%.6g\n", e.Index, strings.Join(point, ","), f.Name, mean, std)
		}
	}
	return tw.Flush()
}
