package sweep

import "github.com/banshee-data/labsweep/internal/param"

// Point is one coordinate of the outer grid. Index and Values line up with
// the grid axes in declaration order.
type Point struct {
	Index  []int
	Values []any
}

// Grid enumerates the Cartesian product of parameter domains. The first
// axis varies slowest and the last fastest. A grid with no axes has
// exactly one (empty) point.
type Grid struct {
	names   []string
	domains [][]any
}

// NewGrid builds a grid over the domains of axes.
func NewGrid(axes ...param.Parameter) *Grid {
	g := &Grid{
		names:   make([]string, len(axes)),
		domains: make([][]any, len(axes)),
	}
	for i, p := range axes {
		g.names[i] = p.Name()
		g.domains[i] = p.Domain()
	}
	return g
}

// Names returns the axis names.
func (g *Grid) Names() []string { return g.names }

// Size returns the number of points.
func (g *Grid) Size() int {
	total := 1
	for _, d := range g.domains {
		total *= len(d)
	}
	return total
}

// Point decodes the n-th point. Index and Values come from the same
// decoding so they cannot drift apart.
func (g *Grid) Point(n int) Point {
	pt := Point{
		Index:  make([]int, len(g.domains)),
		Values: make([]any, len(g.domains)),
	}
	repeat := 1
	for dim := len(g.domains) - 1; dim >= 0; dim-- {
		cycle := len(g.domains[dim])
		i := (n / repeat) % cycle
		pt.Index[dim] = i
		pt.Values[dim] = g.domains[dim][i]
		repeat *= cycle
	}
	return pt
}

// Each calls fn for every point in order, stopping at the first error.
func (g *Grid) Each(fn func(n int, pt Point) error) error {
	for n := 0; n < g.Size(); n++ {
		if err := fn(n, g.Point(n)); err != nil {
			return err
		}
	}
	return nil
}
