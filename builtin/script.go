package builtin

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/Shopify/go-lua"

	"github.com/relayworks/relay"
	"github.com/relayworks/relay/yaml"
)

// ScriptBuilder builds Lua script nodes. The script defines a run(data)
// function that receives the run's data as a table and returns a table
// patched back into the data. Scripts run in a sandbox without file or
// process access.
type ScriptBuilder struct {
	Verbose bool
}

// Metadata returns the node metadata.
func (b *ScriptBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "script",
		Category:    "script",
		Description: "Runs a sandboxed Lua script against the data",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"source": map[string]any{
					"type":        "string",
					"description": "Inline Lua source defining run(data)",
				},
				"file": map[string]any{
					"type":        "string",
					"description": "Path to a Lua file defining run(data)",
				},
			},
		},
		Examples: []Example{
			{
				Name: "Derive a flag from the data",
				Config: map[string]any{
					"source": "function run(data)\n  return {needs_review = data.confidence < 0.8}\nend",
				},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates a script node function from a definition. The source is
// syntax checked at build time so a broken script fails the load, not the
// run.
func (b *ScriptBuilder) Build(def *yaml.NodeDefinition) (relay.NodeFunc, error) {
	source, _ := def.Config["source"].(string)
	if file, ok := def.Config["file"].(string); ok && file != "" {
		if source != "" {
			return nil, fmt.Errorf("source and file are mutually exclusive")
		}
		content, err := os.ReadFile(file) //nolint:gosec // Path comes from the graph definition
		if err != nil {
			return nil, fmt.Errorf("read script: %w", err)
		}
		source = string(content)
	}
	if source == "" {
		return nil, fmt.Errorf("source or file is required")
	}

	if err := checkScript(source); err != nil {
		return nil, err
	}

	return func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
		if b.Verbose {
			log.Printf("[%s] running script", def.ID)
		}
		patch, err := runScript(source, s.Data())
		if err != nil {
			return relay.Outcome{Success: false, Error: err.Error()}, nil
		}
		return relay.Outcome{Success: true, Patch: patch}, nil
	}, nil
}

// checkScript loads the script and verifies it defines run.
func checkScript(source string) error {
	l := lua.NewState()
	setupSandbox(l)
	if err := lua.DoString(l, source); err != nil {
		return fmt.Errorf("invalid script: %w", err)
	}
	l.Global("run")
	if l.TypeOf(-1) != lua.TypeFunction {
		l.Pop(1)
		return fmt.Errorf("script must define run(data)")
	}
	l.Pop(1)
	return nil
}

// runScript executes the script's run function in a fresh interpreter so
// concurrent runs never share Lua state.
func runScript(source string, data map[string]any) (map[string]any, error) {
	l := lua.NewState()
	setupSandbox(l)

	if err := lua.DoString(l, source); err != nil {
		return nil, fmt.Errorf("script error: %w", err)
	}

	l.Global("run")
	pushValue(l, data)
	if err := l.ProtectedCall(1, 1, 0); err != nil {
		return nil, fmt.Errorf("run error: %w", err)
	}

	result := pullValue(l, -1)
	l.Pop(1)

	switch patch := result.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return patch, nil
	default:
		return nil, fmt.Errorf("run must return a table, got %T", result)
	}
}
