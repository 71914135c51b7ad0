package middleware_test

import (
	"context"
	"testing"

	"github.com/relayworks/relay"
	"github.com/relayworks/relay/middleware"
)

func okNode(patch map[string]any) relay.NodeFunc {
	return func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
		return relay.Outcome{Success: true, Patch: patch}, nil
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) middleware.Middleware {
		return func(fn relay.NodeFunc) relay.NodeFunc {
			return func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
				order = append(order, name)
				return fn(ctx, s)
			}
		}
	}

	fn := middleware.Chain(tag("outer"), tag("inner"))(okNode(nil))
	if _, err := fn(context.Background(), relay.NewState(nil)); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Errorf("expected outer before inner, got %v", order)
	}
}

func TestApply(t *testing.T) {
	calls := 0
	count := func(fn relay.NodeFunc) relay.NodeFunc {
		return func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
			calls++
			return fn(ctx, s)
		}
	}

	fn := middleware.Apply(okNode(nil), count, count)
	if _, err := fn(context.Background(), relay.NewState(nil)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected both middlewares to run, got %d calls", calls)
	}
}

func TestRecover(t *testing.T) {
	fn := middleware.Recover()(func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
		panic("boom")
	})

	out, err := fn(context.Background(), relay.NewState(nil))
	if err != nil {
		t.Fatalf("expected the panic to become a transient failure, got error %v", err)
	}
	if out.Success {
		t.Fatal("expected a failed outcome")
	}
	if out.Error != "panic: boom" {
		t.Errorf("unexpected error message: %q", out.Error)
	}
}

func TestMetrics(t *testing.T) {
	collector := middleware.NewCollector()

	ok := middleware.Metrics(collector, "parse")(okNode(nil))
	bad := middleware.Metrics(collector, "parse")(func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
		return relay.Outcome{Success: false, Error: "nope"}, nil
	})

	state := relay.NewState(nil)
	for i := 0; i < 3; i++ {
		if _, err := ok(context.Background(), state); err != nil {
			t.Fatalf("run: %v", err)
		}
	}
	if _, err := bad(context.Background(), state); err != nil {
		t.Fatalf("run: %v", err)
	}

	stats := collector.Stats()["parse"]
	if stats.Calls != 4 {
		t.Errorf("expected 4 calls, got %d", stats.Calls)
	}
	if stats.Failures != 1 {
		t.Errorf("expected 1 failure, got %d", stats.Failures)
	}
}

func TestLoggingPassesThrough(t *testing.T) {
	fn := middleware.Apply(
		okNode(map[string]any{"ok": true}),
		middleware.Logging(relay.NewStdLogger(nil), "intake"),
	)

	out, err := fn(context.Background(), relay.NewState(nil))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Patch["ok"] != true {
		t.Errorf("logging middleware altered the outcome: %v", out)
	}
}
