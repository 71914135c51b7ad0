package relay_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relayworks/relay"
)

// linearGraph builds a -> b -> c with c as the only exit.
func linearGraph(t *testing.T, patches map[string]map[string]any) *relay.Graph {
	t.Helper()
	g, err := relay.NewBuilder("linear").
		Add(passNode("a", patches["a"])).
		Add(passNode("b", patches["b"])).
		Add(passNode("c", patches["c"])).
		Connect("a", "b").
		Connect("b", "c").
		Exit("c").
		Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	return g
}

func TestRunHappyPath(t *testing.T) {
	g := linearGraph(t, map[string]map[string]any{
		"a": {"step": "a", "from_a": 1},
		"b": {"step": "b", "from_b": 2},
		"c": {"step": "c"},
	})

	ex := relay.New()
	res := ex.Run(context.Background(), g, map[string]any{"seed": true})

	if !res.Success {
		t.Fatalf("Run() success = false, errors = %v", res.Errors)
	}
	if res.ExecutionID == "" {
		t.Error("ExecutionID is empty")
	}
	if res.Duration <= 0 {
		t.Error("Duration not recorded")
	}

	wantOrder := []string{"a", "b", "c"}
	if len(res.NodesExecuted) != len(wantOrder) {
		t.Fatalf("NodesExecuted = %v, want %v", res.NodesExecuted, wantOrder)
	}
	for i, id := range wantOrder {
		if res.NodesExecuted[i] != id {
			t.Fatalf("NodesExecuted = %v, want %v", res.NodesExecuted, wantOrder)
		}
	}

	data := res.FinalState.Data()
	// Later patches win on key collision: "step" was written by all three.
	if data["step"] != "c" {
		t.Errorf("data[step] = %v, want c (later patch overrides)", data["step"])
	}
	if data["seed"] != true || data["from_a"] != 1 || data["from_b"] != 2 {
		t.Errorf("data = %v, want union of initial data and all patches", data)
	}

	hist := res.FinalState.History()
	if len(hist) != 3 {
		t.Fatalf("History() = %d records, want 3", len(hist))
	}
	for _, rec := range hist {
		if rec.Retries != 0 || rec.Error != "" {
			t.Errorf("record %+v, want no retries and no error", rec)
		}
	}
}

func TestRunRetriesThenSucceeds(t *testing.T) {
	const maxRetries = 3
	failures := maxRetries - 1

	attempts := 0
	flaky := relay.NewNode("flaky", relay.Transform, func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
		attempts++
		if attempts <= failures {
			return relay.Outcome{Success: false, Error: "upstream unavailable"}, nil
		}
		return relay.Outcome{Success: true, Patch: map[string]any{"done": true}}, nil
	})

	g, err := relay.NewBuilder("flaky").Add(flaky).Exit("flaky").Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	ex := relay.New(relay.WithRetry(relay.Fixed(maxRetries, time.Millisecond)))
	res := ex.Run(context.Background(), g, nil)

	if !res.Success {
		t.Fatalf("Run() success = false, errors = %v", res.Errors)
	}
	if len(res.NodesExecuted) != 1 || res.NodesExecuted[0] != "flaky" {
		t.Errorf("NodesExecuted = %v, want exactly one entry for flaky", res.NodesExecuted)
	}
	hist := res.FinalState.History()
	if len(hist) != 1 {
		t.Fatalf("History() = %d records, want 1", len(hist))
	}
	if hist[0].Retries != failures {
		t.Errorf("Retries = %d, want %d", hist[0].Retries, failures)
	}
	if hist[0].Error != "" {
		t.Errorf("Error = %q, want empty after eventual success", hist[0].Error)
	}
}

func TestRunExhaustsRetries(t *testing.T) {
	broken := relay.NewNode("broken", relay.Transform, func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
		return relay.Outcome{Success: false, Error: "always down"}, nil
	})

	g, err := relay.NewBuilder("broken").
		Add(broken).
		Add(passNode("after", map[string]any{"reached": true})).
		Connect("broken", "after").
		Exit("after").
		Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	ex := relay.New(relay.WithRetry(relay.Fixed(2, time.Millisecond)))
	res := ex.Run(context.Background(), g, nil)

	if res.Success {
		t.Fatal("Run() success = true, want false")
	}
	if len(res.Errors) != 1 {
		t.Fatalf("Errors = %v, want one entry", res.Errors)
	}
	if res.Errors[0].Node != "broken" || res.Errors[0].Kind != relay.KindNode {
		t.Errorf("Errors[0] = %+v, want node=broken kind=%s", res.Errors[0], relay.KindNode)
	}
	if len(res.NodesExecuted) != 0 {
		t.Errorf("NodesExecuted = %v, want empty: execution must not proceed past the failure", res.NodesExecuted)
	}
	if _, ok := res.FinalState.Get("reached"); ok {
		t.Error("downstream node ran after an exhausted-retries failure")
	}

	hist := res.FinalState.History()
	if len(hist) != 1 || hist[0].Retries != 2 || hist[0].Error != "always down" {
		t.Errorf("History() = %+v, want one record with 2 retries and the final error", hist)
	}
}

func TestRunFatalError(t *testing.T) {
	boom := errors.New("corrupt input")
	calls := 0
	fatal := relay.NewNode("fatal", relay.Transform, func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
		calls++
		return relay.Outcome{}, boom
	})

	g, err := relay.NewBuilder("fatal").Add(fatal).Exit("fatal").Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	ex := relay.New(relay.WithRetry(relay.Fixed(5, time.Millisecond)))
	res := ex.Run(context.Background(), g, nil)

	if res.Success {
		t.Fatal("Run() success = true, want false")
	}
	if calls != 1 {
		t.Errorf("node called %d times, want 1: fatal errors are never retried", calls)
	}
	if res.Errors[0].Kind != relay.KindFatal {
		t.Errorf("Errors[0].Kind = %s, want %s", res.Errors[0].Kind, relay.KindFatal)
	}
	hist := res.FinalState.History()
	if len(hist) != 1 || hist[0].Retries != 0 {
		t.Errorf("History() = %+v, want one record with Retries == 0", hist)
	}
}

func TestRunDeadEnd(t *testing.T) {
	g, err := relay.NewBuilder("dead-end").
		Add(passNode("a", map[string]any{"visited_a": true})).
		Add(passNode("b", map[string]any{"visited_b": true})).
		Add(passNode("exit", nil)).
		Connect("a", "b").
		Connect("b", "exit", relay.EdgeWhen(relay.DataTruthy("never_set"))).
		Exit("exit").
		Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	res := relay.New().Run(context.Background(), g, nil)

	if res.Success {
		t.Fatal("Run() success = true, want false")
	}
	if res.Errors[0].Kind != relay.KindDeadEnd || res.Errors[0].Node != "b" {
		t.Errorf("Errors[0] = %+v, want dead end at b", res.Errors[0])
	}
	// Partial progress stays inspectable.
	data := res.FinalState.Data()
	if data["visited_a"] != true || data["visited_b"] != true {
		t.Errorf("data = %v, want patches from all prior successful nodes", data)
	}
}

func TestEdgeSelection(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want []string
	}{
		{
			// The conditional edge does not qualify, so the unconditional
			// edge is taken even though the conditional one has lower
			// priority.
			name: "unconditional fallback when condition is unset",
			data: map[string]any{},
			want: []string{"a", "b", "c"},
		},
		{
			name: "conditional edge wins when it qualifies",
			data: map[string]any{"skip": true},
			want: []string{"a", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := relay.NewBuilder("routing").
				Add(passNode("a", nil)).
				Add(passNode("b", nil)).
				Add(passNode("c", nil)).
				Connect("a", "b", relay.EdgePriority(1)).
				Connect("a", "c", relay.EdgePriority(0), relay.EdgeWhen(relay.DataEquals("skip", true))).
				Connect("b", "c").
				Exit("c").
				Build()
			if err != nil {
				t.Fatalf("Build() error: %v", err)
			}

			res := relay.New().Run(context.Background(), g, tt.data)
			if !res.Success {
				t.Fatalf("Run() success = false, errors = %v", res.Errors)
			}
			if len(res.NodesExecuted) != len(tt.want) {
				t.Fatalf("NodesExecuted = %v, want %v", res.NodesExecuted, tt.want)
			}
			for i := range tt.want {
				if res.NodesExecuted[i] != tt.want[i] {
					t.Fatalf("NodesExecuted = %v, want %v", res.NodesExecuted, tt.want)
				}
			}
		})
	}
}

func TestEdgePriorityOrder(t *testing.T) {
	build := func(reversed bool) *relay.Graph {
		b := relay.NewBuilder("priority").
			Add(passNode("a", nil)).
			Add(passNode("hi", nil)).
			Add(passNode("lo", nil)).
			Exit("hi", "lo")
		cond := relay.EdgeWhen(relay.DataTruthy("go"))
		if reversed {
			b.Connect("a", "lo", relay.EdgePriority(1), cond)
			b.Connect("a", "hi", relay.EdgePriority(5), cond)
		} else {
			b.Connect("a", "hi", relay.EdgePriority(5), cond)
			b.Connect("a", "lo", relay.EdgePriority(1), cond)
		}
		g, err := b.Build()
		if err != nil {
			t.Fatalf("Build() error: %v", err)
		}
		return g
	}

	for _, reversed := range []bool{false, true} {
		res := relay.New().Run(context.Background(), build(reversed), map[string]any{"go": true})
		if !res.Success {
			t.Fatalf("Run() failed: %v", res.Errors)
		}
		last := res.NodesExecuted[len(res.NodesExecuted)-1]
		if last != "hi" {
			t.Errorf("reversed=%v: took edge to %q, want highest priority edge regardless of definition order", reversed, last)
		}
	}
}

func TestEdgePriorityTieKeepsDefinitionOrder(t *testing.T) {
	cond := relay.EdgeWhen(relay.DataTruthy("go"))
	g, err := relay.NewBuilder("tie").
		Add(passNode("a", nil)).
		Add(passNode("first", nil)).
		Add(passNode("second", nil)).
		Connect("a", "first", relay.EdgePriority(3), cond).
		Connect("a", "second", relay.EdgePriority(3), cond).
		Exit("first", "second").
		Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	for i := 0; i < 10; i++ {
		res := relay.New().Run(context.Background(), g, map[string]any{"go": true})
		if !res.Success {
			t.Fatalf("Run() failed: %v", res.Errors)
		}
		if last := res.NodesExecuted[len(res.NodesExecuted)-1]; last != "first" {
			t.Fatalf("tie broken to %q, want stable definition order", last)
		}
	}
}

func TestRunTimeout(t *testing.T) {
	slow := relay.NewNode("slow", relay.Transform, func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
		select {
		case <-time.After(5 * time.Second):
			return relay.Outcome{Success: true}, nil
		case <-ctx.Done():
			return relay.Outcome{Success: false, Error: ctx.Err().Error()}, nil
		}
	})

	g, err := relay.NewBuilder("slow").
		Add(passNode("a", map[string]any{"started": true})).
		Add(slow).
		Connect("a", "slow").
		Exit("slow").
		Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	ex := relay.New(relay.WithTimeout(20 * time.Millisecond))
	res := ex.Run(context.Background(), g, nil)

	if res.Success {
		t.Fatal("Run() success = true, want false")
	}
	if res.Errors[0].Kind != relay.KindTimeout {
		t.Errorf("Errors[0].Kind = %s, want %s", res.Errors[0].Kind, relay.KindTimeout)
	}
	if got, _ := res.FinalState.Get("started"); got != true {
		t.Error("partial state from nodes before the timeout is missing")
	}
}

func TestRunStepLimit(t *testing.T) {
	g, err := relay.NewBuilder("cycle").
		Add(passNode("a", nil)).
		Add(passNode("b", nil)).
		Add(passNode("exit", nil)).
		Connect("a", "b").
		Connect("b", "a").
		Connect("b", "exit", relay.EdgePriority(1), relay.EdgeWhen(relay.DataTruthy("never"))).
		Exit("exit").
		Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	ex := relay.New(relay.WithMaxSteps(10))
	res := ex.Run(context.Background(), g, nil)

	if res.Success {
		t.Fatal("Run() success = true, want false")
	}
	if res.Errors[0].Kind != relay.KindStepLimit {
		t.Errorf("Errors[0].Kind = %s, want %s", res.Errors[0].Kind, relay.KindStepLimit)
	}
	if len(res.NodesExecuted) != 10 {
		t.Errorf("NodesExecuted = %d nodes, want exactly the step cap", len(res.NodesExecuted))
	}
}

func TestHooks(t *testing.T) {
	var mu sync.Mutex
	var completed []string
	var failures []error

	broken := relay.NewNode("broken", relay.Transform, func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
		return relay.Outcome{Success: false, Error: "nope"}, nil
	})
	g, err := relay.NewBuilder("hooks").
		Add(passNode("a", nil)).
		Add(broken).
		Connect("a", "broken").
		Exit("broken").
		Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	ex := relay.New(
		relay.WithRetry(relay.Fixed(1, time.Millisecond)),
		relay.OnNodeComplete(func(node string, rec relay.Record) {
			mu.Lock()
			completed = append(completed, node)
			mu.Unlock()
		}),
		relay.OnError(func(err error) {
			mu.Lock()
			failures = append(failures, err)
			mu.Unlock()
		}),
	)
	res := ex.Run(context.Background(), g, nil)

	if res.Success {
		t.Fatal("Run() success = true, want false")
	}
	if len(completed) != 2 || completed[0] != "a" || completed[1] != "broken" {
		t.Errorf("OnNodeComplete fired for %v, want [a broken]", completed)
	}
	if len(failures) != 1 {
		t.Fatalf("OnError fired %d times, want 1", len(failures))
	}
	var ne relay.NodeError
	if !errors.As(failures[0], &ne) || ne.Node != "broken" {
		t.Errorf("OnError got %v, want NodeError for broken", failures[0])
	}
}

func TestConcurrentRunsAreIsolated(t *testing.T) {
	// Each node copies its input marker forward; runs with different seeds
	// must never observe each other's data.
	echo := relay.NewNode("echo", relay.Transform, func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
		seed, _ := s.Get("seed")
		return relay.Outcome{Success: true, Patch: map[string]any{"echoed": seed}}, nil
	})
	g, err := relay.NewBuilder("shared").Add(echo).Exit("echo").Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	ex := relay.New()
	const n = 32
	results := make([]*relay.Result, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = ex.Run(context.Background(), g, map[string]any{"seed": i})
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i, res := range results {
		if !res.Success {
			t.Fatalf("run %d failed: %v", i, res.Errors)
		}
		if got, _ := res.FinalState.Get("echoed"); got != i {
			t.Errorf("run %d echoed %v, want %d", i, got, i)
		}
		if seen[res.ExecutionID] {
			t.Errorf("duplicate execution id %q", res.ExecutionID)
		}
		seen[res.ExecutionID] = true
	}
}
