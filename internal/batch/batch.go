// Package batch drives independent engine runs concurrently. Runs are
// isolated: each owns its cost accumulator and artifact list inside the
// engine, so the only coordination here is the worker pool itself.
package batch

import (
	"context"
	"sync"

	"github.com/danshapiro/hive/internal/engine"
	"github.com/danshapiro/hive/internal/run"
	"github.com/danshapiro/hive/internal/workorder"
)

type Runner struct {
	Engine *engine.Engine

	// Concurrency caps in-flight runs. Values below 1 mean 4.
	Concurrency int
}

// Run executes every order and returns results in input order. There is no
// ordering guarantee between runs while they execute, only in the returned
// slice.
func (r *Runner) Run(ctx context.Context, orders []*workorder.WorkOrder) []run.WorkResult {
	workers := r.Concurrency
	if workers < 1 {
		workers = 4
	}
	if workers > len(orders) {
		workers = len(orders)
	}

	type job struct {
		idx   int
		order *workorder.WorkOrder
	}

	jobs := make(chan job)
	results := make([]run.WorkResult, len(orders))
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for j := range jobs {
			results[j.idx] = r.Engine.Execute(ctx, j.order)
		}
	}

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go worker()
	}
	for idx, order := range orders {
		jobs <- job{idx: idx, order: order}
	}
	close(jobs)
	wg.Wait()

	return results
}
