package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/banshee-data/labsweep/internal/param"
	"github.com/banshee-data/labsweep/internal/sweep"
)

// Ensure Procedure implements the asynchronous sweep contracts.
var (
	_ sweep.AsyncProcedure = (*Procedure)(nil)
	_ sweep.BatchSubmitter = (*Procedure)(nil)
)

// Procedure adapts an Executor to sweep.AsyncProcedure. Each 1-D sweep is
// submitted as one job; a job's results are fetched once and handed out
// per point. Executors that implement Release are told to forget a job
// once every point is collected or the job has failed.
type Procedure struct {
	exec Executor
	name string

	mu      sync.Mutex
	fetched map[string]*fetchedJob
}

type fetchedJob struct {
	results   []*param.Set
	remaining int
}

// releaser is implemented by executors that hold finished jobs until told
// to forget them.
type releaser interface {
	Release(id string)
}

// handle is the sweep.Handle issued by Procedure.
type handle struct {
	job   Job
	index int
	size  int
}

// NewProcedure wraps exec. The name is used for log naming and tags.
func NewProcedure(exec Executor, name string) *Procedure {
	return &Procedure{
		exec:    exec,
		name:    name,
		fetched: make(map[string]*fetchedJob),
	}
}

// Name implements sweep.Named.
func (p *Procedure) Name() string { return p.name }

// Submit sends a single point as a one-payload job.
func (p *Procedure) Submit(ctx context.Context, point *param.Set) (sweep.Handle, error) {
	handles, err := p.SubmitBatch(ctx, []*param.Set{point})
	if err != nil {
		return nil, err
	}
	return handles[0], nil
}

// SubmitBatch sends points as one job.
func (p *Procedure) SubmitBatch(ctx context.Context, points []*param.Set) ([]sweep.Handle, error) {
	job, err := p.exec.SubmitBatch(ctx, points)
	if err != nil {
		return nil, err
	}
	handles := make([]sweep.Handle, len(points))
	for i := range points {
		handles[i] = handle{job: job, index: i, size: len(points)}
	}
	return handles, nil
}

// Collect blocks until the handle's job is done and returns the result for
// the handle's point.
func (p *Procedure) Collect(ctx context.Context, h sweep.Handle) (*param.Set, error) {
	hd, ok := h.(handle)
	if !ok {
		return nil, fmt.Errorf("remote: foreign handle %T", h)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	id := hd.job.ID()
	fj, ok := p.fetched[id]
	if !ok {
		results, err := hd.job.FetchResults(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.release(id)
			}
			return nil, err
		}
		if len(results) != hd.size {
			return nil, fmt.Errorf("remote: job %s returned %d results for %d payloads", id, len(results), hd.size)
		}
		fj = &fetchedJob{results: results, remaining: hd.size}
		p.fetched[id] = fj
	}

	res := fj.results[hd.index]
	fj.remaining--
	if fj.remaining <= 0 {
		delete(p.fetched, id)
		p.release(id)
	}
	return res, nil
}

func (p *Procedure) release(id string) {
	if r, ok := p.exec.(releaser); ok {
		r.Release(id)
	}
}
