package datalog

import (
	"io"
	"log"
)

var (
	opsLogger  *log.Logger
	diagLogger *log.Logger
)

// SetLogWriters configures the logging streams for the datalog package.
// The package emits nothing high-frequency, so the trace writer is
// accepted for symmetry and ignored. Pass nil to disable a stream.
func SetLogWriters(ops, diag, _ io.Writer) {
	opsLogger = newLogger("[datalog] ", ops)
	diagLogger = newLogger("[datalog] ", diag)
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

func opsf(format string, args ...any) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

func diagf(format string, args ...any) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}
