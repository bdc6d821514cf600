package sweep

import (
	"context"
	"fmt"
	"sync"

	"github.com/banshee-data/labsweep/internal/param"
	"github.com/banshee-data/labsweep/internal/trace"
)

// Options configure the log a Sweeper creates.
type Options struct {
	// LogName is the base log name. It defaults to "<procedure>_sweep" and
	// is always passed through the backend's Namer.
	LogName string
	// Comment is prepended to the parameter metadata summary.
	Comment string
	// Tags are appended after the generated tags.
	Tags []string
	// Fields declares the result schema up front. When set, the N-D sweep
	// skips its probe evaluation.
	Fields []param.FieldDescriptor
}

// Sweeper runs N-D sweeps and streams their traces to a Backend. A nil
// backend disables logging; the Report is still returned.
type Sweeper struct {
	backend Backend
	opts    Options

	mu    sync.RWMutex
	state State
}

// New returns a Sweeper logging to backend.
func New(backend Backend, opts Options) *Sweeper {
	return &Sweeper{
		backend: backend,
		opts:    opts,
		state:   State{Status: StatusIdle},
	}
}

// Result is the outcome of a 1-D sweep: per-point results in domain order
// and their folded trace.
type Result struct {
	Results []*param.Set
	Trace   trace.Trace
}

// Entry is one appended trace and the outer coordinate it was taken at.
// Index and Values are in declaration order.
type Entry struct {
	Index  []int
	Values []any
	Trace  trace.Trace
}

// Report summarises a completed N-D sweep.
type Report struct {
	LogName string
	Fields  []param.FieldDescriptor
	Steps   []param.StepDescriptor
	Entries []Entry
}

// OneDimensional runs proc once per value of the single iterated parameter
// in set, in domain order, and folds the results. The set is not modified.
func OneDimensional(ctx context.Context, proc Procedure, set *param.Set) (*Result, error) {
	return runInner(ctx, proc, set, nil)
}

func runInner(ctx context.Context, proc Procedure, set *param.Set, outer []int) (*Result, error) {
	iters := set.Iterables()
	if iters.Len() != 1 {
		return nil, fmt.Errorf("%w: 1-D sweep needs exactly one, got %d", ErrInvalidArity, iters.Len())
	}
	axis := iters.At(0)
	domain := axis.Domain()

	results := make([]*param.Set, 0, len(domain))
	for i, v := range domain {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		point, err := set.With(axis.Name(), v, param.Iterated(false))
		if err != nil {
			return nil, err
		}
		tracef("run %s", point)
		res, err := proc.Run(ctx, point)
		if err != nil {
			index := append(append([]int(nil), outer...), i)
			return nil, &PointError{Index: index, Point: point, Err: err}
		}
		results = append(results, res)
	}

	tr, err := trace.Fold(results)
	if err != nil {
		return nil, fmt.Errorf("fold %q sweep: %w", axis.Name(), err)
	}
	return &Result{Results: results, Trace: tr}, nil
}

// Run performs an N-D sweep. The last-declared iterated parameter is the
// trace axis; the others form the outer grid, first-declared slowest. One
// trace is appended to the log per outer point, in grid order.
//
// Unless Options.Fields is set, proc is first evaluated once with every
// iterated parameter at its first value to learn the result schema.
func (s *Sweeper) Run(ctx context.Context, proc Procedure, template *param.Set) (report *Report, err error) {
	p, err := newPlan(template)
	if err != nil {
		return nil, err
	}
	if err := s.begin(p.grid.Size()); err != nil {
		return nil, err
	}
	defer func() { s.finish(err) }()

	name := procedureName(proc)
	opsf("starting %s sweep: %d entries x %d points", name, p.grid.Size(), len(p.inner.Domain()))

	fields := s.opts.Fields
	if fields == nil && s.backend != nil {
		if fields, err = p.probe(ctx, proc); err != nil {
			opsf("%s probe failed: %v", name, err)
			return nil, err
		}
	}

	report, lg, err := s.open(ctx, name, p, fields)
	if err != nil {
		return nil, err
	}

	err = p.grid.Each(func(n int, pt Point) error {
		if err := p.apply(pt); err != nil {
			return err
		}
		res, err := runInner(ctx, proc, p.working, pt.Index)
		if err != nil {
			return err
		}
		return s.append(ctx, lg, report, pt, res.Trace)
	})
	if err != nil {
		opsf("%s sweep failed: %v", name, err)
		return nil, err
	}
	opsf("%s sweep complete: %d entries", name, len(report.Entries))
	return report, nil
}

func (s *Sweeper) open(ctx context.Context, procName string, p *plan, fields []param.FieldDescriptor) (*Report, Log, error) {
	report := &Report{
		Fields: fields,
		Steps:  p.template.StepDescriptors(),
	}
	if s.backend == nil {
		return report, nil, nil
	}

	base := s.opts.LogName
	if base == "" {
		base = procName + "_sweep"
	}
	name, err := s.backend.UniqueName(ctx, base)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve log name %q: %w", base, err)
	}
	lg, err := s.backend.CreateLog(ctx, name, fields, report.Steps)
	if err != nil {
		return nil, nil, fmt.Errorf("create log %q: %w", name, err)
	}
	if err := lg.SetComment(ctx, s.comment(p)); err != nil {
		return nil, nil, fmt.Errorf("set comment on %q: %w", name, err)
	}
	if err := lg.SetTags(ctx, s.tags(procName, p)); err != nil {
		return nil, nil, fmt.Errorf("set tags on %q: %w", name, err)
	}

	report.LogName = lg.Name()
	s.setLogName(report.LogName)
	opsf("logging to %q", report.LogName)
	return report, lg, nil
}

func (s *Sweeper) comment(p *plan) string {
	summary := p.template.MetadataSummary()
	if s.opts.Comment == "" {
		return summary
	}
	return s.opts.Comment + "\n\n" + summary
}

func (s *Sweeper) tags(procName string, p *plan) []string {
	tags := make([]string, 0, 1+len(p.axes)+len(s.opts.Tags))
	tags = append(tags, procName)
	for _, axis := range p.axes {
		tags = append(tags, fmt.Sprintf("loop on [%s]", axis.Name()))
	}
	return append(tags, s.opts.Tags...)
}

func (s *Sweeper) append(ctx context.Context, lg Log, report *Report, pt Point, tr trace.Trace) error {
	if lg != nil {
		if err := lg.AddEntry(ctx, tr); err != nil {
			return fmt.Errorf("append entry %v to %q: %w", pt.Index, lg.Name(), err)
		}
	}
	if report.Fields == nil {
		report.Fields = traceFields(tr)
	}
	report.Entries = append(report.Entries, Entry{Index: pt.Index, Values: pt.Values, Trace: tr})
	s.advance(pt.Index)
	diagf("entry %d/%d at %v", len(report.Entries), s.State().TotalEntries, pt.Index)
	return nil
}

func traceFields(tr trace.Trace) []param.FieldDescriptor {
	out := make([]param.FieldDescriptor, len(tr.Fields))
	for i, f := range tr.Fields {
		out[i] = param.FieldDescriptor{Name: f.Name, Units: f.Units, Vector: f.Vector}
	}
	return out
}

// plan holds the traversal of one N-D sweep: the untouched template, a
// working copy whose outer parameters are overwritten per grid point, and
// the outer grid itself.
type plan struct {
	template *param.Set
	working  *param.Set
	axes     []param.Parameter
	inner    param.Parameter
	grid     *Grid
}

func newPlan(template *param.Set) (*plan, error) {
	if template == nil {
		return nil, fmt.Errorf("%w: nil parameter set", ErrInvalidArity)
	}
	axes := template.Iterables().Params()
	if len(axes) == 0 {
		return nil, fmt.Errorf("%w: sweep needs at least one", ErrInvalidArity)
	}
	for _, axis := range axes {
		if len(axis.Domain()) == 0 {
			return nil, fmt.Errorf("%w: parameter %q has an empty domain", trace.ErrEmptyTrace, axis.Name())
		}
	}
	return &plan{
		template: template.Clone(),
		working:  template.Clone(),
		axes:     axes,
		inner:    axes[len(axes)-1],
		grid:     NewGrid(axes[:len(axes)-1]...),
	}, nil
}

// apply fixes the outer parameters of the working copy at pt.
func (p *plan) apply(pt Point) error {
	for i, name := range p.grid.Names() {
		if err := p.working.SetValue(name, pt.Values[i], param.Iterated(false)); err != nil {
			return err
		}
	}
	return nil
}

// probe evaluates proc once with every iterated parameter at its first
// value and reports the result schema.
func (p *plan) probe(ctx context.Context, proc Procedure) ([]param.FieldDescriptor, error) {
	point := p.template.Clone()
	index := make([]int, len(p.axes))
	for _, axis := range p.axes {
		if err := point.SetValue(axis.Name(), axis.Domain()[0], param.Iterated(false)); err != nil {
			return nil, err
		}
	}
	tracef("probe %s", point)
	res, err := proc.Run(ctx, point)
	if err != nil {
		return nil, fmt.Errorf("probe result schema: %w", &PointError{Index: index, Point: point, Err: err})
	}
	if res == nil {
		return nil, fmt.Errorf("probe result schema: %w: no result", trace.ErrSchemaMismatch)
	}
	return res.FieldDescriptors(), nil
}
