package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxSteps bounds how many nodes a single execution may visit.
// Cycles are legal in the edge model, so runaway loops whose conditions
// never release are cut off here rather than looping forever.
const DefaultMaxSteps = 1000

type options struct {
	retry          Retry
	timeout        time.Duration
	maxSteps       int
	logger         Logger
	onNodeComplete func(node string, rec Record)
	onError        func(err error)
}

// Option configures an Executor.
type Option func(*options)

// WithRetry sets the retry policy applied to nodes without their own
// override.
func WithRetry(r Retry) Option {
	return func(o *options) {
		o.retry = r
	}
}

// WithMaxRetries adjusts only the retry count of the active policy.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		o.retry.MaxRetries = n
	}
}

// WithTimeout sets an overall wall-clock budget for each run. On expiry the
// run stops advancing, is marked failed with a timeout error, and returns
// the partial state and history accumulated so far.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithMaxSteps overrides DefaultMaxSteps. Zero disables the cap.
func WithMaxSteps(n int) Option {
	return func(o *options) {
		o.maxSteps = n
	}
}

// WithLogger attaches a logger to the executor.
func WithLogger(l Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// OnNodeComplete registers a callback fired synchronously after each node
// attempt-group, successful or not. The callback is a passive observer and
// must not mutate the run's state.
func OnNodeComplete(fn func(node string, rec Record)) Option {
	return func(o *options) {
		o.onNodeComplete = fn
	}
}

// OnError registers a callback fired when a run terminates with a failure.
func OnError(fn func(err error)) Option {
	return func(o *options) {
		o.onError = fn
	}
}

// Executor drives executions of immutable graphs. An Executor is stateless
// between runs and safe for concurrent use.
type Executor struct {
	opts options
}

// New creates an executor.
func New(opts ...Option) *Executor {
	o := options{
		retry:    DefaultRetry(),
		maxSteps: DefaultMaxSteps,
		logger:   nopLogger{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Executor{opts: o}
}

// Run executes the graph from its entry node with the given initial data.
// Ordinary failures (exhausted retries, fatal node errors, dead ends,
// timeouts) are captured into the returned Result rather than returned as
// Go errors, so the caller always gets final state and history to inspect.
func (e *Executor) Run(ctx context.Context, g *Graph, initial map[string]any) *Result {
	start := time.Now()
	res := &Result{
		ExecutionID: uuid.NewString(),
		Graph:       g.Name(),
	}
	state := newState(initial)
	res.FinalState = state

	if e.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.timeout)
		defer cancel()
	}

	e.opts.logger.Debug(ctx, "starting execution",
		"graph", g.Name(), "execution", res.ExecutionID, "entry", g.Entry())

	current := g.Entry()
	for steps := 0; ; steps++ {
		if ctx.Err() != nil {
			e.fail(ctx, res, NodeError{
				Node:    current,
				Kind:    KindTimeout,
				Message: fmt.Sprintf("execution stopped at node %q: %v", current, ctx.Err()),
			})
			break
		}
		if e.opts.maxSteps > 0 && steps >= e.opts.maxSteps {
			e.fail(ctx, res, NodeError{
				Node:    current,
				Kind:    KindStepLimit,
				Message: fmt.Sprintf("step limit %d reached at node %q", e.opts.maxSteps, current),
			})
			break
		}

		node, ok := g.Node(current)
		if !ok {
			e.fail(ctx, res, NodeError{
				Node:    current,
				Kind:    KindUnknownNode,
				Message: fmt.Sprintf("node %q not found in graph", current),
			})
			break
		}

		e.opts.logger.Debug(ctx, "executing node", "graph", g.Name(), "node", current)
		rec, out, fatal := e.runNode(ctx, node, state)
		state.record(rec)
		if e.opts.onNodeComplete != nil {
			e.opts.onNodeComplete(current, rec)
		}

		if fatal != nil {
			e.fail(ctx, res, NodeError{Node: current, Kind: KindFatal, Message: fatal.Error()})
			break
		}
		if !out.Success {
			kind := KindNode
			if ctx.Err() != nil {
				kind = KindTimeout
			}
			e.fail(ctx, res, NodeError{Node: current, Kind: kind, Message: rec.Error})
			break
		}

		state.apply(out.Patch)
		res.NodesExecuted = append(res.NodesExecuted, current)

		if g.IsExit(current) {
			res.Success = true
			e.opts.logger.Debug(ctx, "execution finished",
				"graph", g.Name(), "execution", res.ExecutionID, "exit", current)
			break
		}

		next, ok := g.next(current, state.data)
		if !ok {
			e.fail(ctx, res, NodeError{
				Node:    current,
				Kind:    KindDeadEnd,
				Message: fmt.Sprintf("dead end: no qualifying edge out of node %q", current),
			})
			break
		}
		current = next
	}

	res.Duration = time.Since(start)
	return res
}

// runNode executes one node with retries. It returns the attempt-group
// record, the final outcome, and a non-nil error only for fatal failures.
func (e *Executor) runNode(ctx context.Context, n *Node, s *State) (Record, Outcome, error) {
	policy := e.opts.retry
	if n.retry != nil {
		policy = *n.retry
	}

	rec := Record{Node: n.id}
	start := time.Now()

	var out Outcome
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				rec.Retries = attempt - 1
				rec.Duration = time.Since(start)
				rec.Error = ctx.Err().Error()
				return rec, Outcome{Success: false, Error: rec.Error}, nil
			case <-time.After(policy.backoff(attempt - 1)):
			}
		}

		var err error
		out, err = n.run(ctx, s)
		rec.Retries = attempt
		rec.Duration = time.Since(start)

		if err != nil {
			rec.Error = err.Error()
			return rec, Outcome{}, err
		}
		if out.Success {
			rec.Error = ""
			return rec, out, nil
		}

		rec.Error = out.Error
		if rec.Error == "" {
			rec.Error = "node reported failure"
		}
		if attempt >= policy.MaxRetries {
			return rec, out, nil
		}
		e.opts.logger.Debug(ctx, "retrying node",
			"node", n.id, "attempt", attempt+1, "error", rec.Error)
	}
}

func (e *Executor) fail(ctx context.Context, res *Result, ne NodeError) {
	res.Errors = append(res.Errors, ne)
	e.opts.logger.Error(ctx, "execution failed",
		"graph", res.Graph, "execution", res.ExecutionID,
		"node", ne.Node, "kind", string(ne.Kind), "error", ne.Message)
	if e.opts.onError != nil {
		e.opts.onError(ne)
	}
}
