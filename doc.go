// Package relay is a small directed-graph workflow executor.
//
// A workflow is declared as an immutable Graph: a registry of named nodes,
// a list of conditional edges, one entry node and one or more exit nodes.
// An Executor walks the graph from the entry node, invoking each node's
// function against a shared mutable State, retrying transient failures with
// backoff, recording per-node history, and stopping at an exit node or on
// an unrecoverable error.
//
// Failure handling is deliberately structured: ordinary run-time failures
// (a node giving up after retries, a dead end, a timeout) never escape
// Executor.Run as a Go error. They are captured into the returned Result
// together with the partial state and history accumulated so far, so the
// caller always has something to inspect. Only invalid graph definitions
// are surfaced eagerly, at construction time.
//
// Graphs are safe to share: any number of executions of the same Graph may
// run concurrently, each with its own State.
package relay
