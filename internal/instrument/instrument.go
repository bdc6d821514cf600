// Package instrument drives a line-oriented bench instrument over a serial
// port as a sweep procedure: each point is sent as a MEAS request and the
// OK reply becomes the result.
package instrument

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/labsweep/internal/param"
	"github.com/banshee-data/labsweep/internal/sweep"
)

// Port is the minimal interface needed for an instrument connection. It
// allows tests to run without serial hardware.
type Port interface {
	io.ReadWriter
	io.Closer
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// timeoutPort is implemented by serial.Port. A read that times out returns
// zero bytes and a nil error.
type timeoutPort interface {
	io.Reader
	SetReadTimeout(t time.Duration) error
}

// timeoutReader turns a per-read timeout into an absolute deadline.
type timeoutReader struct {
	port     timeoutPort
	deadline time.Time
}

func (r *timeoutReader) Read(p []byte) (int, error) {
	for {
		timeout := serial.NoTimeout
		if !r.deadline.IsZero() {
			timeout = time.Until(r.deadline)
			if timeout <= 0 {
				return 0, os.ErrDeadlineExceeded
			}
		}
		if err := r.port.SetReadTimeout(timeout); err != nil {
			return 0, fmt.Errorf("set read timeout: %w", err)
		}
		n, err := r.port.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
	}
}

// Ensure Instrument implements sweep.Procedure.
var _ sweep.Procedure = (*Instrument)(nil)

// Instrument is a sweep.Procedure backed by a serial instrument. Requests
// are serialised; one is in flight at a time.
type Instrument struct {
	name string
	port Port

	mu      sync.Mutex
	reader  *bufio.Reader
	timeout *timeoutReader
}

// New wraps an open port.
func New(name string, port Port) *Instrument {
	in := &Instrument{name: name, port: port}
	src := io.Reader(port)
	if _, ok := port.(deadliner); !ok {
		if rt, ok := port.(timeoutPort); ok {
			in.timeout = &timeoutReader{port: rt}
			src = in.timeout
		}
	}
	in.reader = bufio.NewReader(src)
	return in
}

// OpenSerial opens the serial device at path.
func OpenSerial(path string, opts PortOptions) (*Instrument, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	opsf("opened %s at %d baud", path, mode.BaudRate)
	return New(filepath.Base(path), port), nil
}

// Name implements sweep.Named.
func (in *Instrument) Name() string { return in.name }

// Run sends one point and waits for the reply. A context deadline bounds
// the exchange when the port supports deadlines or read timeouts.
func (in *Instrument) Run(ctx context.Context, point *param.Set) (*param.Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	deadline, _ := ctx.Deadline()
	if d, ok := in.port.(deadliner); ok {
		if err := d.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("set deadline: %w", err)
		}
	} else if in.timeout != nil {
		in.timeout.deadline = deadline
	}

	cmd := FormatCommand(point)
	tracef("%s <- %q", in.name, cmd)
	if _, err := io.WriteString(in.port, cmd); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	line, err := in.reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	tracef("%s -> %q", in.name, line)
	return ParseResponse(line)
}

// Close closes the port.
func (in *Instrument) Close() error {
	return in.port.Close()
}
