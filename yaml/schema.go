package yaml

import (
	"encoding/json"
	"fmt"
	"strings"

	goyaml "github.com/goccy/go-yaml"
	"github.com/xeipuuv/gojsonschema"
)

// documentSchema is the JSON schema every graph definition document must
// satisfy before unmarshaling. Structural cross-references (edge endpoints,
// entry/exit membership) are checked afterwards by GraphDefinition.Validate.
var documentSchema = map[string]any{
	"type":     "object",
	"required": []string{"name", "entry", "exits", "nodes"},
	"properties": map[string]any{
		"name":        map[string]any{"type": "string", "minLength": 1},
		"description": map[string]any{"type": "string"},
		"version":     map[string]any{"type": "string"},
		"entry":       map[string]any{"type": "string", "minLength": 1},
		"exits": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items":    map[string]any{"type": "string", "minLength": 1},
		},
		"nodes": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type":     "object",
				"required": []string{"id", "type"},
				"properties": map[string]any{
					"id":   map[string]any{"type": "string", "minLength": 1},
					"name": map[string]any{"type": "string"},
					"role": map[string]any{
						"type": "string",
						"enum": []string{"source", "transform", "decision", "sink"},
					},
					"type":   map[string]any{"type": "string", "minLength": 1},
					"config": map[string]any{"type": "object"},
					"retry": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"max_retries": map[string]any{"type": "integer", "minimum": 0},
							"delay":       map[string]any{"type": "string"},
							"max_delay":   map[string]any{"type": "string"},
							"multiplier":  map[string]any{"type": "number"},
							"jitter":      map[string]any{"type": "boolean"},
						},
					},
				},
			},
		},
		"edges": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []string{"from", "to"},
				"properties": map[string]any{
					"from":     map[string]any{"type": "string", "minLength": 1},
					"to":       map[string]any{"type": "string", "minLength": 1},
					"label":    map[string]any{"type": "string"},
					"priority": map[string]any{"type": "integer"},
					"when": map[string]any{
						"type":     "object",
						"required": []string{"path"},
						"properties": map[string]any{
							"path": map[string]any{"type": "string", "minLength": 1},
						},
					},
				},
			},
		},
		"metadata": map[string]any{"type": "object"},
	},
}

// ValidateDocument checks raw YAML against the definition schema.
func ValidateDocument(data []byte) error {
	var doc any
	if err := goyaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse YAML: %w", err)
	}

	// gojsonschema wants JSON-shaped input; round-trip the decoded document
	// so YAML-specific types are normalized.
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("normalize document: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(documentSchema),
		gojsonschema.NewBytesLoader(docJSON),
	)
	if err != nil {
		return fmt.Errorf("validate document: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid graph definition: %s", strings.Join(msgs, "; "))
	}
	return nil
}
