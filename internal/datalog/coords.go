package datalog

import (
	"fmt"

	"github.com/banshee-data/labsweep/internal/param"
)

// EntryCapacity is the number of entries a log with the given backend-order
// steps holds: the product of the outer step lengths.
func EntryCapacity(steps []param.StepDescriptor) int {
	if len(steps) == 0 {
		return 1
	}
	total := 1
	for _, st := range steps[1:] {
		total *= len(st.Values)
	}
	return total
}

// EntryCoordinates maps an entry number to its position along each outer
// step. The result has one index per steps[1:], in that order; steps[1]
// varies fastest from one entry to the next.
func EntryCoordinates(steps []param.StepDescriptor, entry int) ([]int, error) {
	capacity := EntryCapacity(steps)
	if entry < 0 || entry >= capacity {
		return nil, fmt.Errorf("%w: entry %d outside [0,%d)", ErrShape, entry, capacity)
	}
	if len(steps) == 0 {
		return nil, nil
	}
	outer := steps[1:]
	coords := make([]int, len(outer))
	rem := entry
	for k, st := range outer {
		n := len(st.Values)
		coords[k] = rem % n
		rem /= n
	}
	return coords, nil
}
