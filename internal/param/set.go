package param

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
)

var (
	// ErrDuplicateName is returned when a set would hold two parameters
	// with the same name.
	ErrDuplicateName = errors.New("param: duplicate parameter name")
	// ErrNotFound is returned when a named parameter is not in the set.
	ErrNotFound = errors.New("param: parameter not found")
	// ErrNotSequence is returned for an iterated parameter whose value is
	// not a sequence.
	ErrNotSequence = errors.New("param: iterated value is not a sequence")
)

// Set is an ordered collection of uniquely named parameters. Declaration
// order is significant: it fixes loop nesting, backend step order and
// result field order.
//
// A *Set is mutable through SetValue. Use With or Clone to derive an
// independent set.
type Set struct {
	params []Parameter
	index  map[string]int
}

// NewSet builds a set from params in the given order.
func NewSet(params ...Parameter) (*Set, error) {
	s := &Set{
		params: make([]Parameter, 0, len(params)),
		index:  make(map[string]int, len(params)),
	}
	for _, p := range params {
		if err := s.Add(p); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// MustSet is like NewSet but panics on error. It is intended for fixed,
// literal parameter lists.
func MustSet(params ...Parameter) *Set {
	s, err := NewSet(params...)
	if err != nil {
		panic(err)
	}
	return s
}

// Add appends p to the set.
func (s *Set) Add(p Parameter) error {
	if err := p.validate(); err != nil {
		return err
	}
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if _, ok := s.index[p.name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateName, p.name)
	}
	s.index[p.name] = len(s.params)
	s.params = append(s.params, p)
	return nil
}

// Len returns the number of parameters.
func (s *Set) Len() int { return len(s.params) }

// At returns the i-th parameter in declaration order.
func (s *Set) At(i int) Parameter { return s.params[i] }

// Get looks up a parameter by name.
func (s *Set) Get(name string) (Parameter, bool) {
	i, ok := s.index[name]
	if !ok {
		return Parameter{}, false
	}
	return s.params[i], true
}

// Lookup is Get with an ErrNotFound error for missing names.
func (s *Set) Lookup(name string) (Parameter, error) {
	p, ok := s.Get(name)
	if !ok {
		return Parameter{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return p, nil
}

// Float64 returns the named parameter's value as a float64.
func (s *Set) Float64(name string) (float64, error) {
	p, err := s.Lookup(name)
	if err != nil {
		return 0, err
	}
	v, ok := ToFloat64(p.value)
	if !ok {
		return 0, fmt.Errorf("param: %q is %T, not numeric", name, p.value)
	}
	return v, nil
}

// Params returns a copy of the parameters in declaration order.
func (s *Set) Params() []Parameter {
	out := make([]Parameter, len(s.params))
	copy(out, s.params)
	return out
}

// Names returns the parameter names in declaration order.
func (s *Set) Names() []string {
	out := make([]string, len(s.params))
	for i, p := range s.params {
		out[i] = p.name
	}
	return out
}

// Values returns every parameter's value in declaration order.
func (s *Set) Values() []any {
	out := make([]any, len(s.params))
	for i, p := range s.params {
		out[i] = p.Value()
	}
	return out
}

// SetValue replaces the value of the named parameter in place. The
// iterated flag is recomputed unless an Iterated option is given.
func (s *Set) SetValue(name string, v any, opts ...Option) error {
	i, ok := s.index[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return s.SetValueAt(i, v, opts...)
}

// SetValueAt replaces the value of the i-th parameter in place.
func (s *Set) SetValueAt(i int, v any, opts ...Option) error {
	if i < 0 || i >= len(s.params) {
		return fmt.Errorf("%w: index %d out of range [0,%d)", ErrNotFound, i, len(s.params))
	}
	next := s.params[i].WithValue(v, opts...)
	if err := next.validate(); err != nil {
		return err
	}
	s.params[i] = next
	return nil
}

// With returns a copy of the set with the named parameter's value replaced.
// The receiver is left untouched.
func (s *Set) With(name string, v any, opts ...Option) (*Set, error) {
	c := s.Clone()
	if err := c.SetValue(name, v, opts...); err != nil {
		return nil, err
	}
	return c, nil
}

// Clone returns an independent deep copy of the set.
func (s *Set) Clone() *Set {
	c := &Set{
		params: make([]Parameter, len(s.params)),
		index:  make(map[string]int, len(s.params)),
	}
	for i, p := range s.params {
		p.value = cloneValue(p.value)
		c.params[i] = p
		c.index[p.name] = i
	}
	return c
}

// Iterables returns the iterated parameters in declaration order.
func (s *Set) Iterables() *Set {
	return s.filter(func(p Parameter) bool { return p.iterated })
}

// Constants returns the non-iterated parameters in declaration order.
func (s *Set) Constants() *Set {
	return s.filter(func(p Parameter) bool { return !p.iterated })
}

func (s *Set) filter(keep func(Parameter) bool) *Set {
	out := &Set{index: make(map[string]int)}
	for _, p := range s.params {
		if !keep(p) {
			continue
		}
		p.value = cloneValue(p.value)
		out.index[p.name] = len(out.params)
		out.params = append(out.params, p)
	}
	return out
}

// TotalIterations is the product of the domain lengths of every iterated
// parameter, or 1 when none are iterated.
func (s *Set) TotalIterations() int {
	total := 1
	for _, p := range s.params {
		if p.iterated {
			total *= len(p.Domain())
		}
	}
	return total
}

// MetadataSummary renders a table with one row per parameter: name, value
// and units. Iterated parameters show "iterated" in place of their domain.
// The output depends only on the set's contents.
func (s *Set) MetadataSummary() string {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "name\tvalue\tunits")
	for _, p := range s.params {
		value := "iterated"
		if !p.iterated {
			value = FormatValue(p.value)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.name, value, p.units)
	}
	tw.Flush()
	return buf.String()
}

// String renders the set as space-separated name=value pairs.
func (s *Set) String() string {
	parts := make([]string, len(s.params))
	for i, p := range s.params {
		parts[i] = p.String()
	}
	return strings.Join(parts, " ")
}
