package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/relayworks/relay"
)

// MetricsCollector receives node execution measurements.
type MetricsCollector interface {
	RecordCall(node string, duration time.Duration, failed bool)
}

// Metrics reports each call of a node function to a collector.
func Metrics(collector MetricsCollector, node string) Middleware {
	return func(fn relay.NodeFunc) relay.NodeFunc {
		return func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
			start := time.Now()
			out, err := fn(ctx, s)
			collector.RecordCall(node, time.Since(start), err != nil || !out.Success)
			return out, err
		}
	}
}

// NodeStats is the accumulated view of one node's calls.
type NodeStats struct {
	Calls    int
	Failures int
	Total    time.Duration
}

// Collector is an in-memory MetricsCollector safe for concurrent runs.
type Collector struct {
	mu    sync.Mutex
	stats map[string]NodeStats
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{stats: make(map[string]NodeStats)}
}

// RecordCall implements MetricsCollector.
func (c *Collector) RecordCall(node string, duration time.Duration, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats[node]
	s.Calls++
	s.Total += duration
	if failed {
		s.Failures++
	}
	c.stats[node] = s
}

// Stats returns a snapshot of the collected stats per node.
func (c *Collector) Stats() map[string]NodeStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]NodeStats, len(c.stats))
	for k, v := range c.stats {
		out[k] = v
	}
	return out
}
