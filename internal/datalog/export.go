package datalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/labsweep/internal/param"
	"github.com/banshee-data/labsweep/internal/trace"
)

// outerColumns returns the outer steps in declaration order (slowest
// first) with the backend-order position each came from.
func outerColumns(steps []param.StepDescriptor) ([]string, []int) {
	if len(steps) < 2 {
		return nil, nil
	}
	names := make([]string, 0, len(steps)-1)
	pos := make([]int, 0, len(steps)-1)
	for k := len(steps) - 1; k >= 1; k-- {
		names = append(names, steps[k].Name)
		pos = append(pos, k)
	}
	return names, pos
}

// outerValues returns the outer step values of an entry in declaration order.
func outerValues(steps []param.StepDescriptor, entry int) ([]string, error) {
	coords, err := EntryCoordinates(steps, entry)
	if err != nil {
		return nil, err
	}
	_, pos := outerColumns(steps)
	out := make([]string, len(pos))
	for i, k := range pos {
		out[i] = formatCell(steps[k].Values[coords[k-1]])
	}
	return out, nil
}

// WriteCSV writes every point of every entry as one row: the outer step
// values in declaration order, the trace-axis value, then each field.
// Vector fields expand into name[i] columns, padded to the widest vector.
func WriteCSV(w io.Writer, lg *Log, entries []trace.Trace) error {
	steps := lg.Steps()
	fields := lg.Fields()
	outerNames, _ := outerColumns(steps)

	widths := make([]int, len(fields))
	for _, tr := range entries {
		for i, f := range tr.Fields {
			if !f.Vector {
				continue
			}
			for _, v := range f.Vectors {
				widths[i] = max(widths[i], len(param.Elements(v)))
			}
		}
	}

	header := append([]string(nil), outerNames...)
	if len(steps) > 0 {
		header = append(header, steps[0].Name)
	}
	for i, f := range fields {
		if !f.Vector {
			header = append(header, f.Name)
			continue
		}
		for j := 0; j < widths[i]; j++ {
			header = append(header, fmt.Sprintf("%s[%d]", f.Name, j))
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for e, tr := range entries {
		outer, err := outerValues(steps, e)
		if err != nil {
			return err
		}
		if len(tr.Fields) != len(fields) {
			return fmt.Errorf("%w: entry %d has %d fields, log has %d", ErrFieldMismatch, e, len(tr.Fields), len(fields))
		}
		for p := 0; p < tr.Len(); p++ {
			row := append([]string(nil), outer...)
			if len(steps) > 0 && p < len(steps[0].Values) {
				row = append(row, formatCell(steps[0].Values[p]))
			}
			for i, f := range tr.Fields {
				if !f.Vector {
					row = append(row, formatCell(f.Scalars[p]))
					continue
				}
				elems := param.Elements(f.Vectors[p])
				for j := 0; j < widths[i]; j++ {
					cell := ""
					if j < len(elems) {
						cell = formatCell(elems[j])
					}
					row = append(row, cell)
				}
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummaryCSV writes one row per entry: the outer step values followed
// by the mean and standard deviation of each scalar field along the trace.
func WriteSummaryCSV(w io.Writer, lg *Log, entries []trace.Trace) error {
	steps := lg.Steps()
	outerNames, _ := outerColumns(steps)

	var scalars []int
	header := append([]string(nil), outerNames...)
	for i, f := range lg.Fields() {
		if f.Vector {
			continue
		}
		scalars = append(scalars, i)
		header = append(header, f.Name+"_mean", f.Name+"_stddev")
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for e, tr := range entries {
		row, err := outerValues(steps, e)
		if err != nil {
			return err
		}
		for _, i := range scalars {
			if i >= len(tr.Fields) {
				return fmt.Errorf("%w: entry %d has %d fields", ErrFieldMismatch, e, len(tr.Fields))
			}
			mean, stddev := meanStddev(tr.Fields[i].Scalars)
			row = append(row, formatCell(mean), formatCell(stddev))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// meanStddev returns the sample mean and standard deviation. A single
// value has zero deviation.
func meanStddev(xs []float64) (float64, float64) {
	switch len(xs) {
	case 0:
		return 0, 0
	case 1:
		return xs[0], 0
	}
	return stat.MeanStdDev(xs, nil)
}

func formatCell(v any) string {
	if x, ok := v.(float64); ok {
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	return param.FormatValue(v)
}
