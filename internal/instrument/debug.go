package instrument

import (
	"io"
	"log"
)

var (
	opsLogger   *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures the logging streams for the instrument package.
// The diag writer is ignored; wire traffic goes to trace. Pass nil to
// disable a stream.
func SetLogWriters(ops, _, trace io.Writer) {
	opsLogger = newLogger("[instrument] ", ops)
	traceLogger = newLogger("[instrument] ", trace)
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

func tracef(format string, args ...any) {
	if traceLogger != nil {
		traceLogger.Printf(format, args...)
	}
}
