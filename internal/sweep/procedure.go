package sweep

import (
	"context"
	"fmt"
	"strings"

	"github.com/banshee-data/labsweep/internal/param"
)

// Procedure evaluates one fully resolved point. The point it receives has
// no iterated parameters left; the returned set becomes one row of a trace.
//
// Sweeper.Run calls Run once before the sweep with every swept parameter at
// its first domain value, to learn the result schema. Implementations must
// tolerate that extra call or the caller must set Options.Fields.
type Procedure interface {
	Run(ctx context.Context, point *param.Set) (*param.Set, error)
}

// ProcedureFunc adapts a function to Procedure.
type ProcedureFunc func(ctx context.Context, point *param.Set) (*param.Set, error)

// Run calls f.
func (f ProcedureFunc) Run(ctx context.Context, point *param.Set) (*param.Set, error) {
	return f(ctx, point)
}

// Handle identifies a submitted point until it is collected. Its concrete
// type belongs to the AsyncProcedure that issued it.
type Handle any

// AsyncProcedure splits evaluation into a non-blocking Submit and a
// blocking Collect. Collect must return results for the point the handle
// was issued for, whatever order handles are collected in.
type AsyncProcedure interface {
	Submit(ctx context.Context, point *param.Set) (Handle, error)
	Collect(ctx context.Context, h Handle) (*param.Set, error)
}

// BatchSubmitter is implemented by async procedures that can submit a whole
// 1-D sweep as one unit of work. Handles are returned in point order.
type BatchSubmitter interface {
	SubmitBatch(ctx context.Context, points []*param.Set) ([]Handle, error)
}

// Named is implemented by procedures that report a display name. The name
// is used for the default log name and the first log tag.
type Named interface {
	Name() string
}

func procedureName(p any) string {
	if n, ok := p.(Named); ok && n.Name() != "" {
		return n.Name()
	}
	name := strings.TrimLeft(fmt.Sprintf("%T", p), "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
