package param

import "fmt"

// DefaultUnits is recorded for parameters declared without units.
const DefaultUnits = "n.u."

// Parameter is a named, unit-tagged value. An iterated parameter holds an
// ordered domain to sweep; a non-iterated one holds a single value (which
// may itself be a sequence, such as a vector-valued result).
type Parameter struct {
	name     string
	value    any
	units    string
	iterated bool
}

// Option adjusts a Parameter at construction time.
type Option func(*Parameter)

// Iterated overrides the default iterated flag, which is true exactly when
// the value is a sequence.
func Iterated(iterated bool) Option {
	return func(p *Parameter) {
		p.iterated = iterated
	}
}

// New builds a parameter. Empty units become DefaultUnits.
func New(name string, value any, units string, opts ...Option) Parameter {
	if units == "" {
		units = DefaultUnits
	}
	p := Parameter{
		name:     name,
		value:    cloneValue(value),
		units:    units,
		iterated: IsSequence(value),
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

func (p Parameter) Name() string     { return p.name }
func (p Parameter) Units() string    { return p.units }
func (p Parameter) IsIterated() bool { return p.iterated }

// Value returns a copy of the stored value.
func (p Parameter) Value() any { return cloneValue(p.value) }

// Domain returns the values an iterated parameter sweeps over, or nil for a
// non-iterated parameter.
func (p Parameter) Domain() []any {
	if !p.iterated {
		return nil
	}
	return Elements(p.value)
}

// WithValue returns a copy holding v. The iterated flag is recomputed from v
// unless an Iterated option is given.
func (p Parameter) WithValue(v any, opts ...Option) Parameter {
	next := New(p.name, v, p.units)
	for _, opt := range opts {
		opt(&next)
	}
	return next
}

func (p Parameter) validate() error {
	if p.name == "" {
		return fmt.Errorf("param: empty parameter name")
	}
	if p.iterated && !IsSequence(p.value) {
		return fmt.Errorf("%w: %q holds %T", ErrNotSequence, p.name, p.value)
	}
	return nil
}

func (p Parameter) String() string {
	if p.iterated {
		return fmt.Sprintf("%s=iterated%s", p.name, FormatValue(p.value))
	}
	return fmt.Sprintf("%s=%s", p.name, FormatValue(p.value))
}
