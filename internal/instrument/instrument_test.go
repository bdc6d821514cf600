package instrument

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/banshee-data/labsweep/internal/param"
	"github.com/banshee-data/labsweep/internal/sweep"
)

// fakeDevice answers each MEAS line with reply(line).
func fakeDevice(t *testing.T, reply func(cmd string) string) *Instrument {
	t.Helper()
	host, device := net.Pipe()
	t.Cleanup(func() {
		host.Close()
		device.Close()
	})

	go func() {
		r := bufio.NewReader(device)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			if _, err := device.Write([]byte(reply(strings.TrimSpace(line)) + "\n")); err != nil {
				return
			}
		}
	}()
	return New("fake", host)
}

func TestPortOptions_Normalize(t *testing.T) {
	testCases := []struct {
		name      string
		input     PortOptions
		expected  PortOptions
		expectErr bool
	}{
		{
			name:     "defaults",
			input:    PortOptions{},
			expected: PortOptions{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		{
			name:     "long parity",
			input:    PortOptions{BaudRate: 115200, DataBits: 7, StopBits: 2, Parity: "even"},
			expected: PortOptions{BaudRate: 115200, DataBits: 7, StopBits: 2, Parity: "E"},
		},
		{name: "bad data bits", input: PortOptions{DataBits: 9}, expectErr: true},
		{name: "bad stop bits", input: PortOptions{StopBits: 3}, expectErr: true},
		{name: "bad parity", input: PortOptions{Parity: "mark"}, expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.input.Normalize()
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, &serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.OddParity,
		StopBits: serial.TwoStopBits,
	}, mode)

	mode, err = PortOptions{}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, serial.NoParity, mode.Parity)
}

func TestFormatCommand(t *testing.T) {
	point := param.MustSet(
		param.New("vbias", 1.5, "V"),
		param.New("mode", "fast", ""),
		param.New("window", []float64{0.25, 2}, "", param.Iterated(false)),
	)
	assert.Equal(t, "MEAS vbias=1.5 mode=fast window=0.25,2\n", FormatCommand(point))

	single := param.MustSet(param.New("window", []float64{3}, "", param.Iterated(false)))
	assert.Equal(t, "MEAS window=3,\n", FormatCommand(single))
}

func TestParseResponse(t *testing.T) {
	res, err := ParseResponse("OK current[A]=1e-06 trace=1,2,3 label=dark\r\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"current", "trace", "label"}, res.Names())

	current, _ := res.Get("current")
	assert.Equal(t, "A", current.Units())
	assert.Equal(t, 1e-06, current.Value())
	assert.False(t, current.IsIterated())

	tr, _ := res.Get("trace")
	assert.True(t, tr.IsIterated())
	assert.Equal(t, []float64{1, 2, 3}, tr.Value())

	label, _ := res.Get("label")
	assert.Equal(t, "dark", label.Value())

	res, err = ParseResponse("OK trace=7, gain=7")
	require.NoError(t, err)
	tr, _ = res.Get("trace")
	assert.Equal(t, []float64{7}, tr.Value())
	gain, _ := res.Get("gain")
	assert.Equal(t, 7.0, gain.Value())

	_, err = ParseResponse("ERR overrange")
	require.ErrorIs(t, err, ErrInstrument)
	assert.Contains(t, err.Error(), "overrange")

	_, err = ParseResponse("HELLO")
	require.Error(t, err)

	_, err = ParseResponse("OK novalue")
	require.Error(t, err)
}

func TestInstrument_RunsOneDimensionalSweep(t *testing.T) {
	inst := fakeDevice(t, func(cmd string) string {
		// Echo vbias doubled as the measured current.
		for _, tok := range strings.Fields(cmd)[1:] {
			if v, ok := strings.CutPrefix(tok, "vbias="); ok {
				return "OK current[A]=" + map[string]string{"0": "0", "1": "2", "2": "4"}[v]
			}
		}
		return "ERR no vbias"
	})

	set := param.MustSet(param.New("vbias", []float64{0, 1, 2}, "V"))
	res, err := sweep.OneDimensional(context.Background(), inst, set)
	require.NoError(t, err)

	current, ok := res.Trace.Field("current")
	require.True(t, ok)
	assert.Equal(t, []float64{0, 2, 4}, current.Scalars)
	assert.Equal(t, "A", current.Units)
	assert.Equal(t, "fake", inst.Name())
}

func TestInstrument_ErrorReply(t *testing.T) {
	inst := fakeDevice(t, func(string) string { return "ERR interlock open" })

	_, err := inst.Run(context.Background(), param.MustSet(param.New("x", 1.0, "")))
	require.ErrorIs(t, err, ErrInstrument)
}

func TestInstrument_DeadlineFromContext(t *testing.T) {
	host, device := net.Pipe()
	defer host.Close()
	defer device.Close()

	// The device reads the request but never answers.
	go func() {
		r := bufio.NewReader(device)
		r.ReadString('\n')
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New("mute", host).Run(ctx, param.MustSet(param.New("x", 1.0, "")))
	require.Error(t, err)
}

// timeoutOnlyPort behaves like serial.Port: it has no SetDeadline and a
// read that times out returns 0, nil. It never answers.
type timeoutOnlyPort struct {
	mu       sync.Mutex
	timeout  time.Duration
	timeouts []time.Duration
	closed   chan struct{}
}

func newTimeoutOnlyPort() *timeoutOnlyPort {
	return &timeoutOnlyPort{timeout: serial.NoTimeout, closed: make(chan struct{})}
}

func (p *timeoutOnlyPort) SetReadTimeout(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = d
	p.timeouts = append(p.timeouts, d)
	return nil
}

func (p *timeoutOnlyPort) Read([]byte) (int, error) {
	p.mu.Lock()
	d := p.timeout
	p.mu.Unlock()

	var expired <-chan time.Time
	if d >= 0 {
		expired = time.After(d)
	}
	select {
	case <-expired:
		return 0, nil
	case <-p.closed:
		return 0, io.EOF
	}
}

func (p *timeoutOnlyPort) Write(b []byte) (int, error) { return len(b), nil }

func (p *timeoutOnlyPort) Close() error {
	close(p.closed)
	return nil
}

func TestInstrument_ReadTimeoutFromContext(t *testing.T) {
	port := newTimeoutOnlyPort()
	defer port.Close()
	inst := New("mute", port)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := inst.Run(ctx, param.MustSet(param.New("x", 1.0, "")))
		done <- err
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, os.ErrDeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the context deadline")
	}

	port.mu.Lock()
	defer port.mu.Unlock()
	require.NotEmpty(t, port.timeouts)
	assert.LessOrEqual(t, port.timeouts[0], 50*time.Millisecond)
	assert.Greater(t, port.timeouts[0], time.Duration(0))
}

func TestInstrument_ReadTimeoutClearedWithoutDeadline(t *testing.T) {
	port := newTimeoutOnlyPort()
	inst := New("mute", port)

	done := make(chan error, 1)
	go func() {
		_, err := inst.Run(context.Background(), param.MustSet(param.New("x", 1.0, "")))
		done <- err
	}()

	require.Eventually(t, func() bool {
		port.mu.Lock()
		defer port.mu.Unlock()
		return len(port.timeouts) > 0
	}, time.Second, 5*time.Millisecond)

	port.mu.Lock()
	assert.Equal(t, serial.NoTimeout, port.timeouts[0])
	port.mu.Unlock()

	require.NoError(t, port.Close())
	require.ErrorIs(t, <-done, io.EOF)
}

func TestInstrument_CancelledContext(t *testing.T) {
	inst := fakeDevice(t, func(string) string { return "OK y=1" })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := inst.Run(ctx, param.MustSet(param.New("x", 1.0, "")))
	require.ErrorIs(t, err, context.Canceled)
}
