// Package trace folds the per-point results of a 1-D sweep into a
// columnar trace: one column per result field, one row per point.
package trace

import (
	"errors"
	"fmt"

	"github.com/banshee-data/labsweep/internal/param"
)

var (
	// ErrEmptyTrace is returned when there are no results to fold.
	ErrEmptyTrace = errors.New("trace: no results to fold")
	// ErrSchemaMismatch is returned when results disagree on field names
	// or order, or a scalar field holds a non-numeric value.
	ErrSchemaMismatch = errors.New("trace: result schema mismatch")
)

// Field is one folded column. Scalar fields fill Scalars; vector fields
// keep each point's sequence in Vectors.
type Field struct {
	Name    string    `json:"name"`
	Units   string    `json:"units"`
	Vector  bool      `json:"vector"`
	Scalars []float64 `json:"scalars,omitempty"`
	Vectors []any     `json:"vectors,omitempty"`
}

// Len returns the number of points in the column.
func (f Field) Len() int {
	if f.Vector {
		return len(f.Vectors)
	}
	return len(f.Scalars)
}

// Trace is the folded result of one 1-D sweep.
type Trace struct {
	Fields []Field `json:"fields"`
}

// Field returns the column with the given name.
func (t Trace) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Names returns the column names in result declaration order.
func (t Trace) Names() []string {
	out := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		out[i] = f.Name
	}
	return out
}

// Len returns the number of points, taken from the first column.
func (t Trace) Len() int {
	if len(t.Fields) == 0 {
		return 0
	}
	return t.Fields[0].Len()
}

// Fold combines results in sweep order. Every result must carry the same
// field names in the same order as the first; that first result also fixes
// which fields are vectors. Scalar fields must be numeric.
func Fold(results []*param.Set) (Trace, error) {
	if len(results) == 0 {
		return Trace{}, ErrEmptyTrace
	}
	first := results[0]
	if first == nil {
		return Trace{}, fmt.Errorf("%w: point 0 has no result", ErrSchemaMismatch)
	}

	fields := make([]Field, first.Len())
	for i, p := range first.Params() {
		fields[i] = Field{Name: p.Name(), Units: p.Units(), Vector: p.IsIterated()}
		if fields[i].Vector {
			fields[i].Vectors = make([]any, 0, len(results))
		} else {
			fields[i].Scalars = make([]float64, 0, len(results))
		}
	}

	for k, res := range results {
		if res == nil {
			return Trace{}, fmt.Errorf("%w: point %d has no result", ErrSchemaMismatch, k)
		}
		if res.Len() != len(fields) {
			return Trace{}, fmt.Errorf("%w: point %d has %d fields, want %d", ErrSchemaMismatch, k, res.Len(), len(fields))
		}
		for i := range fields {
			p := res.At(i)
			f := &fields[i]
			if p.Name() != f.Name {
				return Trace{}, fmt.Errorf("%w: point %d field %d is %q, want %q", ErrSchemaMismatch, k, i, p.Name(), f.Name)
			}
			if f.Vector {
				f.Vectors = append(f.Vectors, p.Value())
				continue
			}
			x, ok := param.ToFloat64(p.Value())
			if !ok {
				return Trace{}, fmt.Errorf("%w: point %d field %q holds %T, want a number", ErrSchemaMismatch, k, f.Name, p.Value())
			}
			f.Scalars = append(f.Scalars, x)
		}
	}
	return Trace{Fields: fields}, nil
}
