package builtin

import (
	"fmt"
	"sort"

	"github.com/relayworks/relay"
	"github.com/relayworks/relay/yaml"
)

// NodeBuilder creates node functions and provides metadata.
type NodeBuilder interface {
	Metadata() NodeMetadata
	Build(def *yaml.NodeDefinition) (relay.NodeFunc, error)
}

// Registry manages the built-in node types.
type Registry struct {
	builders map[string]NodeBuilder
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[string]NodeBuilder),
	}
}

// Register adds a node builder under its metadata type.
func (r *Registry) Register(builder NodeBuilder) {
	meta := builder.Metadata()
	r.builders[meta.Type] = builder
}

// Get returns a builder by type.
func (r *Registry) Get(nodeType string) (NodeBuilder, bool) {
	builder, exists := r.builders[nodeType]
	return builder, exists
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.builders))
	for t := range r.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// All returns all registered builders.
func (r *Registry) All() map[string]NodeBuilder {
	return r.builders
}

// RegisterAll registers the standard node set with a YAML loader and
// returns the backing registry. Every builder is wrapped so its config is
// validated against the type's schema before the node is built.
func RegisterAll(loader *yaml.Loader, verbose bool) *Registry {
	registry := NewRegistry()

	registry.Register(&EchoBuilder{Verbose: verbose})
	registry.Register(&DelayBuilder{Verbose: verbose})
	registry.Register(&TemplateBuilder{Verbose: verbose})
	registry.Register(&JSONPathBuilder{Verbose: verbose})
	registry.Register(&ValidateBuilder{Verbose: verbose})
	registry.Register(&HTTPBuilder{Verbose: verbose})
	registry.Register(&ScriptBuilder{Verbose: verbose})

	for _, builder := range registry.All() {
		meta := builder.Metadata()
		loader.RegisterNodeType(meta.Type, validatingBuilder(builder))
	}

	return registry
}

// validatingBuilder wraps a builder with config schema validation.
func validatingBuilder(builder NodeBuilder) yaml.NodeBuilder {
	return func(def *yaml.NodeDefinition) (relay.NodeFunc, error) {
		meta := builder.Metadata()
		if err := ValidateNodeConfig(&meta, def.Config); err != nil {
			return nil, fmt.Errorf("config validation failed for node %q: %w", def.ID, err)
		}
		return builder.Build(def)
	}
}
