// Package batch runs one graph over many inputs concurrently.
package batch

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/relayworks/relay"
)

// Runner executes a graph once per input with a bounded worker pool. Each
// run gets its own state, so inputs never observe each other.
type Runner struct {
	executor       *relay.Executor
	maxConcurrency int
	failFast       bool
}

// Option configures a runner.
type Option func(*Runner)

// WithConcurrency sets the maximum concurrent runs.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxConcurrency = n
		}
	}
}

// WithExecutor sets the executor used for each run.
func WithExecutor(e *relay.Executor) Option {
	return func(r *Runner) {
		r.executor = e
	}
}

// WithFailFast stops scheduling new runs after the first failed result.
// In-flight runs still finish.
func WithFailFast() Option {
	return func(r *Runner) {
		r.failFast = true
	}
}

// NewRunner creates a runner. The default pool is 10 workers.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		executor:       relay.New(),
		maxConcurrency: 10,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the graph once per input and returns the results in input
// order. A failed run is reported through its Result, not as an error;
// the returned error is non-nil only when the context is canceled or
// fail-fast tripped.
func (r *Runner) Run(ctx context.Context, g *relay.Graph, inputs []map[string]any) ([]*relay.Result, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	eg, ctx := errgroup.WithContext(ctx)
	results := make([]*relay.Result, len(inputs))
	var mu sync.Mutex

	work := make(chan int, len(inputs))
	for i := range inputs {
		work <- i
	}
	close(work)

	workers := r.maxConcurrency
	if workers > len(inputs) {
		workers = len(inputs)
	}
	for w := 0; w < workers; w++ {
		eg.Go(func() error {
			for idx := range work {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}

				result := r.executor.Run(ctx, g, inputs[idx])
				mu.Lock()
				results[idx] = result
				mu.Unlock()

				if r.failFast && !result.Success {
					return fmt.Errorf("input %d: %w", idx, result.Err())
				}
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Summary aggregates a batch's results.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
}

// Summarize counts successes and failures. Inputs never scheduled (after a
// fail-fast stop) have nil results and count as neither.
func Summarize(results []*relay.Result) Summary {
	s := Summary{}
	for _, result := range results {
		if result == nil {
			continue
		}
		s.Total++
		if result.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}
