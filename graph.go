package relay

import (
	"context"
	"fmt"
	"sort"
)

// NodeType tags a node's role in a graph. The tag is informational: the
// executor treats all types the same, and exit detection is driven by the
// graph's exit set rather than by Sink.
type NodeType string

// The closed set of node types.
const (
	Source    NodeType = "source"
	Transform NodeType = "transform"
	Decision  NodeType = "decision"
	Sink      NodeType = "sink"
)

// Outcome is what a node's function reports back to the executor.
//
// Success false with an Error message marks a transient failure: the
// executor retries the node according to the active retry policy before
// giving up. A fatal failure is signalled by returning a non-nil error from
// the NodeFunc instead; fatal failures are never retried.
type Outcome struct {
	Success bool

	// Patch is shallow-merged into the run's data on success. A key present
	// in the patch replaces the prior value wholesale; nested maps are not
	// merged recursively.
	Patch map[string]any

	// Error describes the transient failure when Success is false.
	Error string
}

// NodeFunc is the unit of work attached to a node. It receives the run's
// current state and reports an Outcome. A non-nil returned error is fatal:
// it aborts the whole execution immediately without further retries.
//
// A NodeFunc may be invoked more than once per execution when it reports
// transient failures, so it should be safe to retry or guard its own side
// effects against duplication.
type NodeFunc func(ctx context.Context, s *State) (Outcome, error)

// Predicate guards an edge. It is evaluated against the run's current data
// and must not mutate it.
type Predicate func(data map[string]any) bool

// Node is a single named step in a graph. Nodes are constructed once at
// graph build time and never mutated afterwards.
type Node struct {
	id    string
	name  string
	typ   NodeType
	run   NodeFunc
	retry *Retry
}

// NodeOption configures a Node.
type NodeOption func(*Node)

// WithName sets a human-readable label. Defaults to the node id.
func WithName(name string) NodeOption {
	return func(n *Node) {
		n.name = name
	}
}

// WithNodeRetry overrides the executor's retry policy for this node.
func WithNodeRetry(r Retry) NodeOption {
	return func(n *Node) {
		n.retry = &r
	}
}

// NewNode creates a node with the given id, type and function.
func NewNode(id string, typ NodeType, run NodeFunc, opts ...NodeOption) *Node {
	n := &Node{
		id:   id,
		name: id,
		typ:  typ,
		run:  run,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ID returns the node's identifier.
func (n *Node) ID() string { return n.id }

// Name returns the node's human-readable label.
func (n *Node) Name() string { return n.name }

// Type returns the node's type tag.
func (n *Node) Type() NodeType { return n.typ }

// Edge is a directed link between two node ids. An Edge with a nil
// Condition is unconditionally eligible. Among edges sharing the same From,
// higher Priority edges are considered first; ties keep definition order.
type Edge struct {
	From      string
	To        string
	Label     string
	Condition Predicate
	Priority  int
}

// Graph is the immutable definition of a workflow: nodes, edges, one entry
// node and a set of exit nodes. A Graph is safe to share across concurrent
// executions.
type Graph struct {
	name  string
	nodes map[string]*Node
	edges []Edge
	entry string
	exits map[string]struct{}

	// out holds outgoing edges per node, sorted by descending priority with
	// definition order as the stable tiebreak.
	out map[string][]Edge
}

// Name returns the graph's identifier, used in logging and results.
func (g *Graph) Name() string { return g.name }

// Entry returns the id of the node where execution starts.
func (g *Graph) Entry() string { return g.entry }

// Node looks up a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// IsExit reports whether reaching id ends an execution successfully.
func (g *Graph) IsExit(id string) bool {
	_, ok := g.exits[id]
	return ok
}

// NodeIDs returns the ids of all nodes, sorted.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Edges returns a copy of the graph's edge list in definition order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// next selects the successor of from against the given data: the first
// conditional edge (in priority order) whose condition holds, else the
// first unconditional edge, else no successor.
func (g *Graph) next(from string, data map[string]any) (string, bool) {
	var fallback string
	haveFallback := false
	for _, e := range g.out[from] {
		if e.Condition == nil {
			if !haveFallback {
				fallback = e.To
				haveFallback = true
			}
			continue
		}
		if e.Condition(data) {
			return e.To, true
		}
	}
	return fallback, haveFallback
}

// EdgeOption configures an edge added through Builder.Connect.
type EdgeOption func(*Edge)

// EdgeLabel tags the edge with a label.
func EdgeLabel(label string) EdgeOption {
	return func(e *Edge) {
		e.Label = label
	}
}

// EdgePriority sets the edge's priority. Higher priorities are evaluated
// first among edges leaving the same node.
func EdgePriority(p int) EdgeOption {
	return func(e *Edge) {
		e.Priority = p
	}
}

// EdgeWhen guards the edge with a predicate over the run's data.
func EdgeWhen(p Predicate) EdgeOption {
	return func(e *Edge) {
		e.Condition = p
	}
}

// Builder assembles a Graph. Structural problems are collected and reported
// once, by Build, as a *DefinitionError.
type Builder struct {
	name  string
	nodes map[string]*Node
	edges []Edge
	entry string
	exits []string
	dupes []string
}

// NewBuilder creates a builder for a graph with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:  name,
		nodes: make(map[string]*Node),
	}
}

// Add registers a node. The first node added becomes the entry node unless
// Entry is called explicitly.
func (b *Builder) Add(n *Node) *Builder {
	if _, exists := b.nodes[n.ID()]; exists {
		b.dupes = append(b.dupes, n.ID())
		return b
	}
	if len(b.nodes) == 0 && b.entry == "" {
		b.entry = n.ID()
	}
	b.nodes[n.ID()] = n
	return b
}

// Connect adds a directed edge between two node ids.
func (b *Builder) Connect(from, to string, opts ...EdgeOption) *Builder {
	e := Edge{From: from, To: to}
	for _, opt := range opts {
		opt(&e)
	}
	b.edges = append(b.edges, e)
	return b
}

// Entry sets the node where execution starts.
func (b *Builder) Entry(id string) *Builder {
	b.entry = id
	return b
}

// Exit marks one or more nodes as exit nodes.
func (b *Builder) Exit(ids ...string) *Builder {
	b.exits = append(b.exits, ids...)
	return b
}

// Build validates the definition and returns an immutable Graph. It fails
// with a *DefinitionError when the entry node or any edge endpoint does not
// exist, when the exit set is empty or references unknown nodes, or when a
// node id was registered twice.
func (b *Builder) Build() (*Graph, error) {
	if len(b.dupes) > 0 {
		return nil, &DefinitionError{Graph: b.name, Reason: fmt.Sprintf("duplicate node ids %v", b.dupes)}
	}
	if b.entry == "" {
		return nil, &DefinitionError{Graph: b.name, Reason: "no entry node defined"}
	}
	if _, ok := b.nodes[b.entry]; !ok {
		return nil, &DefinitionError{Graph: b.name, Reason: fmt.Sprintf("entry node %q not found", b.entry)}
	}
	if len(b.exits) == 0 {
		return nil, &DefinitionError{Graph: b.name, Reason: "no exit nodes defined"}
	}

	exits := make(map[string]struct{}, len(b.exits))
	for _, id := range b.exits {
		if _, ok := b.nodes[id]; !ok {
			return nil, &DefinitionError{Graph: b.name, Reason: fmt.Sprintf("exit node %q not found", id)}
		}
		exits[id] = struct{}{}
	}

	for _, e := range b.edges {
		if _, ok := b.nodes[e.From]; !ok {
			return nil, &DefinitionError{Graph: b.name, Reason: fmt.Sprintf("edge references unknown node %q", e.From)}
		}
		if _, ok := b.nodes[e.To]; !ok {
			return nil, &DefinitionError{Graph: b.name, Reason: fmt.Sprintf("edge %s -> %s references unknown node %q", e.From, e.To, e.To)}
		}
	}

	g := &Graph{
		name:  b.name,
		nodes: make(map[string]*Node, len(b.nodes)),
		edges: make([]Edge, len(b.edges)),
		entry: b.entry,
		exits: exits,
		out:   make(map[string][]Edge),
	}
	for id, n := range b.nodes {
		g.nodes[id] = n
	}
	copy(g.edges, b.edges)

	for _, e := range g.edges {
		g.out[e.From] = append(g.out[e.From], e)
	}
	for from := range g.out {
		sort.SliceStable(g.out[from], func(i, j int) bool {
			return g.out[from][i].Priority > g.out[from][j].Priority
		})
	}

	return g, nil
}
