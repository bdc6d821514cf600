package main

import (
	"context"
	"flag"
	"io"

	"github.com/banshee-data/labsweep/internal/demo"
	"github.com/banshee-data/labsweep/internal/monitoring"
	"github.com/banshee-data/labsweep/internal/remote"
)

// serve runs the demo procedure as a remote executor until ctx is done.
func serve(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	listen := fs.String("listen", ":7070", "gRPC listen address")
	workers := fs.Int("workers", 4, "Points evaluated in parallel per job")
	if err := fs.Parse(args); err != nil {
		return err
	}

	host := remote.NewHost(*listen, remote.NewLocalExecutor(demo.Product{}, *workers))
	if err := host.Start(); err != nil {
		return err
	}
	monitoring.Logf("serving %s on %s", demo.Product{}.Name(), host.Addr())

	<-ctx.Done()
	monitoring.Logf("shutting down executor...")
	host.Stop()
	return nil
}
