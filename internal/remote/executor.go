package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/labsweep/internal/param"
	"github.com/banshee-data/labsweep/internal/sweep"
)

// ErrJobNotFound is returned for an unknown or already released job ID.
var ErrJobNotFound = errors.New("remote: job not found")

// Executor accepts batches of points for deferred evaluation.
type Executor interface {
	SubmitBatch(ctx context.Context, payloads []*param.Set) (Job, error)
}

// Job is one submitted batch. FetchResults blocks until every payload has
// been evaluated and returns results in payload order.
type Job interface {
	ID() string
	Ready() bool
	FetchResults(ctx context.Context) ([]*param.Set, error)
}

// LocalExecutor evaluates batches in-process with a bounded worker pool.
type LocalExecutor struct {
	proc    sweep.Procedure
	workers int

	mu   sync.Mutex
	jobs map[string]*localJob
}

// NewLocalExecutor runs proc for every submitted payload, at most workers
// at a time. Workers below 1 mean 1.
func NewLocalExecutor(proc sweep.Procedure, workers int) *LocalExecutor {
	return &LocalExecutor{
		proc:    proc,
		workers: max(workers, 1),
		jobs:    make(map[string]*localJob),
	}
}

// SubmitBatch starts evaluating payloads and returns immediately. The job
// keeps running after ctx is cancelled; only its values are inherited.
func (e *LocalExecutor) SubmitBatch(ctx context.Context, payloads []*param.Set) (Job, error) {
	inputs := make([]*param.Set, len(payloads))
	for i, p := range payloads {
		if p == nil {
			return nil, fmt.Errorf("remote: payload %d is nil", i)
		}
		inputs[i] = p.Clone()
	}

	job := &localJob{id: uuid.NewString(), done: make(chan struct{})}
	e.mu.Lock()
	e.jobs[job.id] = job
	e.mu.Unlock()

	diagf("job %s: %d payloads submitted", job.id, len(inputs))
	go job.run(context.WithoutCancel(ctx), e.proc, inputs, e.workers)
	return job, nil
}

// Job looks up a submitted job.
func (e *LocalExecutor) Job(id string) (Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, nil
}

// Release forgets a job. Further lookups fail with ErrJobNotFound.
func (e *LocalExecutor) Release(id string) {
	e.mu.Lock()
	delete(e.jobs, id)
	e.mu.Unlock()
}

type localJob struct {
	id   string
	done chan struct{}

	results []*param.Set
	err     error
}

func (j *localJob) run(ctx context.Context, proc sweep.Procedure, inputs []*param.Set, workers int) {
	defer close(j.done)

	results := make([]*param.Set, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			res, err := proc.Run(gctx, in)
			if err != nil {
				return fmt.Errorf("payload %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		opsf("job %s failed: %v", j.id, err)
		j.err = err
		return
	}
	j.results = results
	diagf("job %s: %d results ready", j.id, len(results))
}

func (j *localJob) ID() string { return j.id }

func (j *localJob) Ready() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

func (j *localJob) FetchResults(ctx context.Context) ([]*param.Set, error) {
	select {
	case <-j.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if j.err != nil {
		return nil, j.err
	}
	return j.results, nil
}
