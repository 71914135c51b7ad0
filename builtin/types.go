// Package builtin provides the standard node types that can be declared in
// YAML graph definitions: passthrough and timing nodes, data shaping with
// templates and JSONPath, schema validation, HTTP calls, and sandboxed Lua
// scripts.
package builtin

// NodeMetadata describes a registered node type.
type NodeMetadata struct {
	// Type is the name used in YAML definitions.
	Type string

	// Category groups node types (core, data, io, script).
	Category string

	// Description is a one-line summary.
	Description string

	// ConfigSchema is a JSON schema the node's config must satisfy.
	ConfigSchema map[string]any

	// Examples document typical configurations.
	Examples []Example

	// Since records the release that introduced the type.
	Since string
}

// Example is one documented configuration of a node type.
type Example struct {
	Name        string
	Description string
	Config      map[string]any
}
