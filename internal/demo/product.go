// Package demo provides a built-in procedure for trying sweeps without
// hardware. It multiplies every input value and echoes the inputs back as a
// vector.
package demo

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/labsweep/internal/param"
	"github.com/banshee-data/labsweep/internal/sweep"
)

// ErrNotConstant is returned when a point still carries an iterated
// parameter.
var ErrNotConstant = errors.New("demo: point has an iterated parameter")

var _ sweep.Procedure = Product{}

// Product returns two fields for a point of n numeric parameters:
//
//	product  scalar, the product of all values
//	vector   the n values in declaration order
type Product struct{}

// Name implements sweep.Named.
func (Product) Name() string { return "Product" }

// Run implements sweep.Procedure.
func (Product) Run(ctx context.Context, point *param.Set) (*param.Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	product := 1.0
	vector := make([]float64, 0, point.Len())
	for _, p := range point.Params() {
		if p.IsIterated() {
			return nil, fmt.Errorf("%w: %s", ErrNotConstant, p.Name())
		}
		x, ok := param.ToFloat64(p.Value())
		if !ok {
			return nil, fmt.Errorf("demo: parameter %s is not numeric: %s", p.Name(), param.FormatValue(p.Value()))
		}
		product *= x
		vector = append(vector, x)
	}

	return param.NewSet(
		param.New("product", product, ""),
		param.New("vector", vector, "", param.Iterated(true)),
	)
}
