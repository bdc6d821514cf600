package monitoring

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/banshee-data/labsweep/internal/datalog"
	"github.com/banshee-data/labsweep/internal/instrument"
	"github.com/banshee-data/labsweep/internal/remote"
	"github.com/banshee-data/labsweep/internal/sweep"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Level selects how many log streams are enabled. Each level includes the
// ones below it.
type Level int

const (
	LevelOff Level = iota
	LevelOps
	LevelDiag
	LevelTrace
)

// ParseLevel parses off, ops, diag or trace.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return LevelOff, nil
	case "", "ops":
		return LevelOps, nil
	case "diag":
		return LevelDiag, nil
	case "trace":
		return LevelTrace, nil
	}
	return LevelOff, fmt.Errorf("unknown log level %q: expected off, ops, diag or trace", s)
}

func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelOps:
		return "ops"
	case LevelDiag:
		return "diag"
	case LevelTrace:
		return "trace"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// Configure points the ops, diag and trace streams of every engine package
// at w, enabling those at or below level. LevelOff silences them and Logf.
func Configure(level string, w io.Writer) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	var ops, diag, trace io.Writer
	if lvl >= LevelOps {
		ops = w
	}
	if lvl >= LevelDiag {
		diag = w
	}
	if lvl >= LevelTrace {
		trace = w
	}

	sweep.SetLogWriters(ops, diag, trace)
	datalog.SetLogWriters(ops, diag, trace)
	remote.SetLogWriters(ops, diag, trace)
	instrument.SetLogWriters(ops, diag, trace)

	if ops == nil {
		SetLogger(nil)
	} else {
		l := log.New(ops, "", log.LstdFlags)
		SetLogger(l.Printf)
	}
	return nil
}
