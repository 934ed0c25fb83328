package sim

import (
	"context"
	"sync"

	"github.com/san-kum/pkpdsim/internal/dynamo"
)

// Job is one independent run of an ensemble.
type Job struct {
	System   dynamo.System
	Initial  dynamo.State
	Schedule Schedule
}

// Ensemble runs independent jobs concurrently. Each worker gets its own
// integrator from newIntegrator since integrators keep scratch state.
type Ensemble struct {
	newIntegrator func() dynamo.Integrator
	workers       int
}

func NewEnsemble(newIntegrator func() dynamo.Integrator, workers int) *Ensemble {
	if workers < 1 {
		workers = 1
	}
	return &Ensemble{newIntegrator: newIntegrator, workers: workers}
}

// Run returns results in job order. The first error (in job order) is returned.
func (e *Ensemble) Run(ctx context.Context, jobs []Job, cfg Config) ([]*Result, error) {
	results := make([]*Result, len(jobs))
	errs := make([]error, len(jobs))

	idx := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := New(e.newIntegrator())
			for i := range idx {
				results[i], errs[i] = s.Run(ctx, jobs[i].System, jobs[i].Initial, jobs[i].Schedule, cfg)
			}
		}()
	}

	for i := range jobs {
		idx <- i
	}
	close(idx)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}
