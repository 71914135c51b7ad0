package relay

import "fmt"

// ErrorKind classifies the run-time failures recorded in a Result.
type ErrorKind string

const (
	// KindNode marks a transient node failure that exhausted its retries.
	KindNode ErrorKind = "node"

	// KindFatal marks a fatal node error, never retried.
	KindFatal ErrorKind = "fatal"

	// KindUnknownNode marks a routing failure: the current node id is not in
	// the graph's node set.
	KindUnknownNode ErrorKind = "unknown_node"

	// KindDeadEnd marks a non-exit node with no qualifying outgoing edge.
	KindDeadEnd ErrorKind = "dead_end"

	// KindTimeout marks a run that exceeded its overall wall-clock budget.
	KindTimeout ErrorKind = "timeout"

	// KindStepLimit marks a run that exceeded the executor's step cap,
	// usually a cycle whose edge conditions never release.
	KindStepLimit ErrorKind = "step_limit"
)

// NodeError is one entry in Result.Errors. It names the node the run was at
// when the failure occurred.
type NodeError struct {
	Node    string
	Kind    ErrorKind
	Message string
}

func (e NodeError) Error() string {
	return fmt.Sprintf("relay: node %q: %s (%s)", e.Node, e.Message, e.Kind)
}

// DefinitionError reports an invalid graph definition at construction time.
// Unlike run-time failures, definition errors are a programmer error class
// and are surfaced immediately by Builder.Build.
type DefinitionError struct {
	Graph  string
	Reason string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("relay: invalid graph %q: %s", e.Graph, e.Reason)
}
