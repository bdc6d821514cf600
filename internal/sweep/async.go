package sweep

import (
	"context"
	"fmt"

	"github.com/banshee-data/labsweep/internal/param"
	"github.com/banshee-data/labsweep/internal/trace"
)

// JobState tracks one submitted point.
type JobState string

const (
	JobPending   JobState = "pending"
	JobCollected JobState = "collected"
	JobFailed    JobState = "failed"
)

// PendingPoint is one submitted inner point.
type PendingPoint struct {
	Input  *param.Set
	Handle Handle
	State  JobState
}

// Submission is one outer grid point whose 1-D sweep has been submitted.
// Snapshot is the parameter set in effect at submission time, with the
// trace axis still iterated.
type Submission struct {
	Index    []int
	Values   []any
	Snapshot *param.Set
	Points   []PendingPoint
}

// Batch is the ordered record of an asynchronous sweep between Submit and
// Collect.
type Batch struct {
	Submissions []Submission

	proc AsyncProcedure
	name string
	plan *plan
}

// Pending returns the number of points not yet collected.
func (b *Batch) Pending() int {
	n := 0
	for _, sub := range b.Submissions {
		for _, pp := range sub.Points {
			if pp.State == JobPending {
				n++
			}
		}
	}
	return n
}

// Submit walks the outer grid and submits every point without waiting for
// results. Procedures implementing BatchSubmitter receive each 1-D sweep
// as one batch.
func (s *Sweeper) Submit(ctx context.Context, proc AsyncProcedure, template *param.Set) (*Batch, error) {
	p, err := newPlan(template)
	if err != nil {
		return nil, err
	}
	b := &Batch{
		Submissions: make([]Submission, 0, p.grid.Size()),
		proc:        proc,
		name:        procedureName(proc),
		plan:        p,
	}

	err = p.grid.Each(func(n int, pt Point) error {
		if err := p.apply(pt); err != nil {
			return err
		}
		snapshot := p.working.Clone()
		inputs, err := innerPoints(snapshot, p.inner.Name())
		if err != nil {
			return err
		}
		handles, err := submitAll(ctx, proc, inputs, pt.Index)
		if err != nil {
			return err
		}
		sub := Submission{
			Index:    pt.Index,
			Values:   pt.Values,
			Snapshot: snapshot,
			Points:   make([]PendingPoint, len(inputs)),
		}
		for i := range inputs {
			sub.Points[i] = PendingPoint{Input: inputs[i], Handle: handles[i], State: JobPending}
		}
		b.Submissions = append(b.Submissions, sub)
		diagf("submitted entry %d/%d at %v", n+1, p.grid.Size(), pt.Index)
		return nil
	})
	if err != nil {
		opsf("%s submission failed: %v", b.name, err)
		return nil, err
	}
	opsf("submitted %s sweep: %d entries", b.name, len(b.Submissions))
	return b, nil
}

func innerPoints(snapshot *param.Set, inner string) ([]*param.Set, error) {
	axis, err := snapshot.Lookup(inner)
	if err != nil {
		return nil, err
	}
	domain := axis.Domain()
	points := make([]*param.Set, len(domain))
	for i, v := range domain {
		pt, err := snapshot.With(inner, v, param.Iterated(false))
		if err != nil {
			return nil, err
		}
		points[i] = pt
	}
	return points, nil
}

func submitAll(ctx context.Context, proc AsyncProcedure, inputs []*param.Set, outer []int) ([]Handle, error) {
	if bs, ok := proc.(BatchSubmitter); ok {
		handles, err := bs.SubmitBatch(ctx, inputs)
		if err != nil {
			return nil, &PointError{Index: append([]int(nil), outer...), Point: inputs[0], Err: err}
		}
		if len(handles) != len(inputs) {
			return nil, fmt.Errorf("batch submit at %v returned %d handles for %d points", outer, len(handles), len(inputs))
		}
		return handles, nil
	}

	handles := make([]Handle, len(inputs))
	for i, in := range inputs {
		tracef("submit %s", in)
		h, err := proc.Submit(ctx, in)
		if err != nil {
			return nil, &PointError{Index: append(append([]int(nil), outer...), i), Point: in, Err: err}
		}
		handles[i] = h
	}
	return handles, nil
}

// Collect gathers the results of a submitted batch in submission order,
// folds each 1-D sweep and appends it to a new log. The log schema comes
// from Options.Fields or, failing that, from the first collected result.
// The resulting log matches what Run produces for the same inputs.
func (s *Sweeper) Collect(ctx context.Context, b *Batch) (report *Report, err error) {
	if err := s.begin(len(b.Submissions)); err != nil {
		return nil, err
	}
	defer func() { s.finish(err) }()

	var lg Log
	for i := range b.Submissions {
		sub := &b.Submissions[i]
		results := make([]*param.Set, len(sub.Points))
		for j := range sub.Points {
			pp := &sub.Points[j]
			res, err := b.proc.Collect(ctx, pp.Handle)
			if err != nil {
				pp.State = JobFailed
				index := append(append([]int(nil), sub.Index...), j)
				opsf("%s collect failed at %v: %v", b.name, index, err)
				return nil, &PointError{Index: index, Point: pp.Input, Err: err}
			}
			pp.State = JobCollected
			results[j] = res
		}

		tr, err := trace.Fold(results)
		if err != nil {
			return nil, fmt.Errorf("fold entry %v: %w", sub.Index, err)
		}

		if report == nil {
			fields := s.opts.Fields
			if fields == nil {
				fields = results[0].FieldDescriptors()
			}
			if report, lg, err = s.open(ctx, b.name, b.plan, fields); err != nil {
				return nil, err
			}
		}
		if err := s.append(ctx, lg, report, Point{Index: sub.Index, Values: sub.Values}, tr); err != nil {
			return nil, err
		}
	}
	opsf("%s sweep collected: %d entries", b.name, len(b.Submissions))
	return report, nil
}
