package yaml

import (
	"fmt"
	"io"

	"github.com/relayworks/relay"
)

// NodeBuilder turns a node definition into the function the node will run.
// Builders are registered on a Loader keyed by the definition's type.
type NodeBuilder func(def *NodeDefinition) (relay.NodeFunc, error)

// Loader builds executable graphs from parsed definitions.
type Loader struct {
	parser   *Parser
	registry map[string]NodeBuilder
}

// NewLoader creates a loader with an empty builder registry.
func NewLoader() *Loader {
	return &Loader{
		parser:   NewParser(),
		registry: make(map[string]NodeBuilder),
	}
}

// RegisterNodeType registers a builder for a node type.
func (l *Loader) RegisterNodeType(nodeType string, builder NodeBuilder) {
	l.registry[nodeType] = builder
}

// Load parses and builds a graph from a reader.
func (l *Loader) Load(r io.Reader) (*relay.Graph, error) {
	def, err := l.parser.Parse(r)
	if err != nil {
		return nil, err
	}
	return l.LoadDefinition(def)
}

// LoadFile parses and builds a graph from a YAML file.
func (l *Loader) LoadFile(filename string) (*relay.Graph, error) {
	def, err := l.parser.ParseFile(filename)
	if err != nil {
		return nil, err
	}
	return l.LoadDefinition(def)
}

// LoadString parses and builds a graph from a YAML string.
func (l *Loader) LoadString(s string) (*relay.Graph, error) {
	def, err := l.parser.ParseString(s)
	if err != nil {
		return nil, err
	}
	return l.LoadDefinition(def)
}

// LoadDefinition builds a graph from an already parsed definition.
func (l *Loader) LoadDefinition(def *GraphDefinition) (*relay.Graph, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph definition: %w", err)
	}

	b := relay.NewBuilder(def.Name)
	for i := range def.Nodes {
		node, err := l.buildNode(&def.Nodes[i])
		if err != nil {
			return nil, fmt.Errorf("build node %q: %w", def.Nodes[i].ID, err)
		}
		b.Add(node)
	}

	for _, e := range def.Edges {
		opts := []relay.EdgeOption{relay.EdgePriority(e.Priority)}
		if e.Label != "" {
			opts = append(opts, relay.EdgeLabel(e.Label))
		}
		if e.When != nil {
			p, err := e.When.Predicate()
			if err != nil {
				return nil, fmt.Errorf("edge %s -> %s: %w", e.From, e.To, err)
			}
			opts = append(opts, relay.EdgeWhen(p))
		}
		b.Connect(e.From, e.To, opts...)
	}

	b.Entry(def.Entry)
	b.Exit(def.Exits...)
	return b.Build()
}

func (l *Loader) buildNode(def *NodeDefinition) (*relay.Node, error) {
	builder, ok := l.registry[def.Type]
	if !ok {
		return nil, fmt.Errorf("unknown node type %q", def.Type)
	}

	fn, err := builder(def)
	if err != nil {
		return nil, err
	}

	typ, err := def.NodeType()
	if err != nil {
		return nil, err
	}

	var opts []relay.NodeOption
	if def.Name != "" {
		opts = append(opts, relay.WithName(def.Name))
	}
	if def.Retry != nil {
		policy, err := def.Retry.Policy()
		if err != nil {
			return nil, err
		}
		opts = append(opts, relay.WithNodeRetry(policy))
	}

	return relay.NewNode(def.ID, typ, fn, opts...), nil
}
