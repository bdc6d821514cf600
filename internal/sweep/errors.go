package sweep

import (
	"errors"
	"fmt"

	"github.com/banshee-data/labsweep/internal/param"
)

var (
	// ErrInvalidArity is returned when a sweep gets the wrong number of
	// iterated parameters.
	ErrInvalidArity = errors.New("sweep: invalid number of iterated parameters")
	// ErrProcedureFailure matches any *PointError.
	ErrProcedureFailure = errors.New("sweep: procedure failed")
	// ErrSweepInProgress is returned when a Sweeper is asked to run while
	// another sweep on it is still running.
	ErrSweepInProgress = errors.New("sweep: sweep already in progress")
)

// PointError reports the point at which a procedure failed. Index is the
// grid coordinate in declaration order, inner axis last.
type PointError struct {
	Index []int
	Point *param.Set
	Err   error
}

func (e *PointError) Error() string {
	point := "<nil>"
	if e.Point != nil {
		point = e.Point.String()
	}
	return fmt.Sprintf("sweep: procedure failed at %v (%s): %v", e.Index, point, e.Err)
}

func (e *PointError) Unwrap() error { return e.Err }

// Is makes every PointError match ErrProcedureFailure.
func (e *PointError) Is(target error) bool { return target == ErrProcedureFailure }
