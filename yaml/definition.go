// Package yaml loads relay graph definitions from YAML documents.
//
// A definition names its nodes and edges declaratively; node behavior comes
// from builders registered on a Loader by type (see the builtin package for
// the standard set). Documents are checked twice before a graph is built:
// once against a JSON schema for shape, then structurally by Validate.
package yaml

import (
	"fmt"
	"time"

	"github.com/relayworks/relay"
)

// GraphDefinition is the top-level YAML document model.
type GraphDefinition struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description,omitempty"`
	Version     string           `yaml:"version,omitempty"`
	Entry       string           `yaml:"entry"`
	Exits       []string         `yaml:"exits"`
	Nodes       []NodeDefinition `yaml:"nodes"`
	Edges       []EdgeDefinition `yaml:"edges"`
	Metadata    map[string]any   `yaml:"metadata,omitempty"`
}

// NodeDefinition declares one node. Type selects a registered builder;
// Role is the node's semantic tag and defaults to transform.
type NodeDefinition struct {
	ID     string           `yaml:"id"`
	Name   string           `yaml:"name,omitempty"`
	Role   string           `yaml:"role,omitempty"`
	Type   string           `yaml:"type"`
	Config map[string]any   `yaml:"config,omitempty"`
	Retry  *RetryDefinition `yaml:"retry,omitempty"`
}

// RetryDefinition overrides the executor's retry policy for one node.
type RetryDefinition struct {
	MaxRetries int     `yaml:"max_retries"`
	Delay      string  `yaml:"delay,omitempty"`
	MaxDelay   string  `yaml:"max_delay,omitempty"`
	Multiplier float64 `yaml:"multiplier,omitempty"`
	Jitter     bool    `yaml:"jitter,omitempty"`
}

// Policy converts the definition into a relay retry policy.
func (r *RetryDefinition) Policy() (relay.Retry, error) {
	out := relay.Retry{
		MaxRetries: r.MaxRetries,
		Multiplier: r.Multiplier,
		Jitter:     r.Jitter,
	}
	if r.Delay != "" {
		d, err := time.ParseDuration(r.Delay)
		if err != nil {
			return relay.Retry{}, fmt.Errorf("parse retry delay: %w", err)
		}
		out.Delay = d
	}
	if r.MaxDelay != "" {
		d, err := time.ParseDuration(r.MaxDelay)
		if err != nil {
			return relay.Retry{}, fmt.Errorf("parse retry max_delay: %w", err)
		}
		out.MaxDelay = d
	}
	return out, nil
}

// EdgeDefinition declares one directed edge.
type EdgeDefinition struct {
	From     string          `yaml:"from"`
	To       string          `yaml:"to"`
	Label    string          `yaml:"label,omitempty"`
	Priority int             `yaml:"priority,omitempty"`
	When     *WhenDefinition `yaml:"when,omitempty"`
}

// WhenDefinition guards an edge with a JSONPath test against the run's
// data. Without Equals the edge qualifies when any match is truthy; with
// Equals it qualifies when any match equals the given value.
type WhenDefinition struct {
	Path   string `yaml:"path"`
	Equals any    `yaml:"equals,omitempty"`
}

// Predicate compiles the condition.
func (w *WhenDefinition) Predicate() (relay.Predicate, error) {
	if w.Equals != nil {
		return relay.PathEquals(w.Path, w.Equals)
	}
	return relay.PathTruthy(w.Path)
}

var validRoles = map[string]relay.NodeType{
	"":          relay.Transform,
	"source":    relay.Source,
	"transform": relay.Transform,
	"decision":  relay.Decision,
	"sink":      relay.Sink,
}

// NodeType maps the declared role onto the closed node type set.
func (n *NodeDefinition) NodeType() (relay.NodeType, error) {
	t, ok := validRoles[n.Role]
	if !ok {
		return "", fmt.Errorf("node %q: unknown role %q", n.ID, n.Role)
	}
	return t, nil
}

// Validate performs structural checks beyond the document schema:
// referential integrity of edges, exit and entry membership, id uniqueness.
func (d *GraphDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("graph name is required")
	}
	if len(d.Nodes) == 0 {
		return fmt.Errorf("graph %q has no nodes", d.Name)
	}
	if d.Entry == "" {
		return fmt.Errorf("graph %q has no entry node", d.Name)
	}
	if len(d.Exits) == 0 {
		return fmt.Errorf("graph %q has no exit nodes", d.Name)
	}

	ids := make(map[string]bool, len(d.Nodes))
	for i := range d.Nodes {
		n := &d.Nodes[i]
		if n.ID == "" {
			return fmt.Errorf("graph %q: node %d has no id", d.Name, i)
		}
		if ids[n.ID] {
			return fmt.Errorf("graph %q: duplicate node id %q", d.Name, n.ID)
		}
		ids[n.ID] = true
		if n.Type == "" {
			return fmt.Errorf("graph %q: node %q has no type", d.Name, n.ID)
		}
		if _, err := n.NodeType(); err != nil {
			return fmt.Errorf("graph %q: %w", d.Name, err)
		}
	}

	if !ids[d.Entry] {
		return fmt.Errorf("graph %q: entry node %q is not defined", d.Name, d.Entry)
	}
	for _, exit := range d.Exits {
		if !ids[exit] {
			return fmt.Errorf("graph %q: exit node %q is not defined", d.Name, exit)
		}
	}
	for _, e := range d.Edges {
		if !ids[e.From] {
			return fmt.Errorf("graph %q: edge references unknown node %q", d.Name, e.From)
		}
		if !ids[e.To] {
			return fmt.Errorf("graph %q: edge %s -> %s references unknown node %q", d.Name, e.From, e.To, e.To)
		}
		if e.When != nil && e.When.Path == "" {
			return fmt.Errorf("graph %q: edge %s -> %s has a when clause without a path", d.Name, e.From, e.To)
		}
	}
	return nil
}
