package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/docuflow/docuflow/pkg/models"
)

// Pool runs multiple task submissions concurrently against one
// orchestrator. The tier manager underneath is the shared quota
// authority, so concurrent workflows contend for the same counters
// exactly as they would from independent callers.
type Pool struct {
	orchestrator *Orchestrator
	concurrency  int
}

// NewPool creates a pool with the given concurrency limit; limits
// below one are treated as one.
func NewPool(o *Orchestrator, concurrency int) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{orchestrator: o, concurrency: concurrency}
}

// Run submits every task and returns results in task order. Each task
// gets a structured result even when its workflow is rejected, so the
// slice always matches the input one to one.
func (p *Pool) Run(ctx context.Context, tasks []*models.Task) []*models.ExecutionResult {
	results := make([]*models.ExecutionResult, len(tasks))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.concurrency)
	for i, task := range tasks {
		i, task := i, task
		group.Go(func() error {
			results[i] = p.orchestrator.Submit(groupCtx, task)
			return nil
		})
	}
	// Submit never returns an error; results carry all failures.
	_ = group.Wait()
	return results
}
