package builtin

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateNodeConfig validates a node configuration against the type's
// schema. Types without a schema accept any configuration.
func ValidateNodeConfig(meta *NodeMetadata, config map[string]any) error {
	if len(meta.ConfigSchema) == 0 {
		return nil
	}

	configJSON, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(meta.ConfigSchema),
		gojsonschema.NewBytesLoader(configJSON),
	)
	if err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}

// gojsonschemaValidate runs a schema over an already marshaled subject and
// collects the violations instead of failing.
func gojsonschemaValidate(schema map[string]any, subjectJSON []byte) (validationResult, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewBytesLoader(subjectJSON),
	)
	if err != nil {
		return validationResult{}, fmt.Errorf("validate: %w", err)
	}
	violations := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, e.String())
	}
	return validationResult{valid: result.Valid(), violations: violations}, nil
}
