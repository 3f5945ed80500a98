package optimization

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// BatchJob is one independent run: its own universe, window and regulariser.
type BatchJob struct {
	Name      string
	Assets    int
	Relatives [][]float64
	Epsilon   float64
}

// BatchResult holds the allocation table of a BatchJob.
type BatchResult struct {
	Name    string
	Weights [][]float64
}

// WeightsBatch runs independent jobs in parallel, at most parallelism at a time
// (unbounded when parallelism <= 0). Each job owns its accumulated state, so runs
// never share anything but the stateless solver. Results keep the order of jobs.
// The first failing job cancels the rest.
func (e *Engine) WeightsBatch(ctx context.Context, jobs []BatchJob, parallelism int) ([]BatchResult, error) {
	results := make([]BatchResult, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			weights, err := e.Weights(gctx, job.Assets, job.Relatives, job.Epsilon)
			if err != nil {
				return fmt.Errorf("job %q: %w", job.Name, err)
			}
			results[i] = BatchResult{Name: job.Name, Weights: weights}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
