package sweep

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// maxDomainValues bounds generated domains so that a mistyped range
// cannot allocate without limit.
const maxDomainValues = 100000

// RangeSpec is an inclusive "min:max:step" range.
type RangeSpec struct {
	Min  float64
	Max  float64
	Step float64
}

// ParseRangeSpec parses "min:max:step". Step must be positive.
func ParseRangeSpec(s string) (RangeSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return RangeSpec{}, fmt.Errorf("invalid range format %q: expected min:max:step", s)
	}

	var vals [3]float64
	for i, label := range []string{"min", "max", "step"} {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return RangeSpec{}, fmt.Errorf("invalid %s value %q: %w", label, parts[i], err)
		}
		vals[i] = v
	}

	if vals[2] <= 0 {
		return RangeSpec{}, fmt.Errorf("step must be positive, got %g", vals[2])
	}
	return RangeSpec{Min: vals[0], Max: vals[1], Step: vals[2]}, nil
}

// Values expands the range.
func (r RangeSpec) Values() ([]float64, error) {
	return GenerateRange(r.Min, r.Max, r.Step)
}

// GenerateRange returns min, min+step, ... up to and including max. Each
// value is computed from its index so rounding error does not accumulate.
// An empty range (min > max) yields nil.
func GenerateRange(min, max, step float64) ([]float64, error) {
	if step <= 0 || math.IsNaN(step) {
		return nil, fmt.Errorf("step must be positive, got %g", step)
	}
	if min > max {
		return nil, nil
	}

	span := (max - min) / step
	if span+1 > maxDomainValues {
		return nil, fmt.Errorf("range %g:%g:%g would generate more than %d values", min, max, step, maxDomainValues)
	}
	// Tolerate a last value that lands a hair past max.
	count := int(math.Floor(span+1e-9)) + 1

	out := make([]float64, count)
	for i := range out {
		out[i] = min + float64(i)*step
	}
	out[count-1] = math.Min(out[count-1], max)
	return out, nil
}

// Linspace returns num evenly spaced values over [start, stop], both ends
// included.
func Linspace(start, stop float64, num int) ([]float64, error) {
	switch {
	case num < 0:
		return nil, fmt.Errorf("linspace count must not be negative, got %d", num)
	case num > maxDomainValues:
		return nil, fmt.Errorf("linspace count %d exceeds %d", num, maxDomainValues)
	case num == 0:
		return nil, nil
	case num == 1:
		return []float64{start}, nil
	}
	return floats.Span(make([]float64, num), start, stop), nil
}

// ParseParamList parses either a "min:max:step" range or a comma-separated
// list of values.
func ParseParamList(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	if strings.Contains(s, ":") {
		spec, err := ParseRangeSpec(s)
		if err != nil {
			return nil, err
		}
		return spec.Values()
	}
	return ParseCSVFloat64s(s)
}

// ParseCSVFloat64s parses a comma-separated list of floats. Empty items are
// skipped.
func ParseCSVFloat64s(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
