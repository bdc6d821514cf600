package sweep

import (
	"context"

	"github.com/banshee-data/labsweep/internal/param"
	"github.com/banshee-data/labsweep/internal/trace"
)

// Namer resolves a base log name to one not yet used by the backend.
type Namer interface {
	UniqueName(ctx context.Context, base string) (string, error)
}

// Backend stores sweep logs. One implementation exists in this module:
// datalog.Store, which persists logs to SQLite. Tests use in-memory fakes.
type Backend interface {
	Namer

	// CreateLog opens a new log. Steps are in backend order: steps[0] is
	// the trace axis, the remaining entries are outer axes with steps[1]
	// varying fastest between entries.
	CreateLog(ctx context.Context, name string, fields []param.FieldDescriptor, steps []param.StepDescriptor) (Log, error)
}

// Log is one open sweep log.
type Log interface {
	// Name returns the resolved log name.
	Name() string

	// AddEntry appends one trace. Entries are appended in outer-grid order.
	AddEntry(ctx context.Context, tr trace.Trace) error

	// SetComment records the free-form log comment.
	SetComment(ctx context.Context, comment string) error

	// SetTags records the log tags.
	SetTags(ctx context.Context, tags []string) error
}
