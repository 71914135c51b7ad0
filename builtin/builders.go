package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/relayworks/relay"
	"github.com/relayworks/relay/yaml"
)

// outputKey is the data key a node patches its result under. Defaults to
// the node id.
func outputKey(def *yaml.NodeDefinition) string {
	if key, ok := def.Config["output"].(string); ok && key != "" {
		return key
	}
	return def.ID
}

// EchoBuilder builds echo nodes.
type EchoBuilder struct {
	Verbose bool
}

// Metadata returns the node metadata.
func (b *EchoBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "echo",
		Category:    "core",
		Description: "Patches a fixed message into the data",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{
					"type":        "string",
					"description": "Message to output",
					"default":     "hello from echo",
				},
				"output": map[string]any{
					"type":        "string",
					"description": "Data key to patch (defaults to the node id)",
				},
			},
		},
		Examples: []Example{
			{
				Name:   "Simple echo",
				Config: map[string]any{"message": "intake started"},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates an echo node function from a definition.
func (b *EchoBuilder) Build(def *yaml.NodeDefinition) (relay.NodeFunc, error) {
	message := "hello from echo"
	if msg, ok := def.Config["message"].(string); ok {
		message = msg
	}
	key := outputKey(def)

	return func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
		if b.Verbose {
			log.Printf("[%s] echo: %s", def.ID, message)
		}
		return relay.Outcome{Success: true, Patch: map[string]any{key: message}}, nil
	}, nil
}

// DelayBuilder builds delay nodes.
type DelayBuilder struct {
	Verbose bool
}

// Metadata returns the node metadata.
func (b *DelayBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "delay",
		Category:    "core",
		Description: "Waits for a duration before continuing",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"duration": map[string]any{
					"type":        "string",
					"description": "Duration to wait (e.g. '1s', '500ms')",
					"default":     "1s",
				},
			},
		},
		Examples: []Example{
			{
				Name:   "Short delay",
				Config: map[string]any{"duration": "500ms"},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates a delay node function from a definition.
func (b *DelayBuilder) Build(def *yaml.NodeDefinition) (relay.NodeFunc, error) {
	duration := time.Second
	if durStr, ok := def.Config["duration"].(string); ok {
		d, err := time.ParseDuration(durStr)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", durStr, err)
		}
		duration = d
	}

	return func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
		if b.Verbose {
			log.Printf("[%s] delaying for %v", def.ID, duration)
		}
		select {
		case <-time.After(duration):
			return relay.Outcome{Success: true}, nil
		case <-ctx.Done():
			return relay.Outcome{}, ctx.Err()
		}
	}, nil
}

// TemplateBuilder builds template rendering nodes.
type TemplateBuilder struct {
	Verbose bool
}

// Metadata returns the node metadata.
func (b *TemplateBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "template",
		Category:    "data",
		Description: "Renders a Go template against the data",
		ConfigSchema: map[string]any{
			"type":     "object",
			"required": []string{"template"},
			"properties": map[string]any{
				"template": map[string]any{
					"type":        "string",
					"description": "Go template rendered with the run's data",
				},
				"output": map[string]any{"type": "string"},
			},
		},
		Examples: []Example{
			{
				Name:   "Greeting",
				Config: map[string]any{"template": "Invoice {{.invoice_id}} for {{.customer}}"},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates a template node function from a definition.
func (b *TemplateBuilder) Build(def *yaml.NodeDefinition) (relay.NodeFunc, error) {
	tmplStr, ok := def.Config["template"].(string)
	if !ok || tmplStr == "" {
		return nil, fmt.Errorf("template is required")
	}
	tmpl, err := template.New(def.ID).Parse(tmplStr)
	if err != nil {
		return nil, fmt.Errorf("invalid template: %w", err)
	}
	key := outputKey(def)

	return func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, s.Data()); err != nil {
			return relay.Outcome{Success: false, Error: fmt.Sprintf("render template: %v", err)}, nil
		}
		if b.Verbose {
			log.Printf("[%s] rendered %d bytes", def.ID, buf.Len())
		}
		return relay.Outcome{Success: true, Patch: map[string]any{key: buf.String()}}, nil
	}, nil
}

// JSONPathBuilder builds JSONPath extraction nodes.
type JSONPathBuilder struct {
	Verbose bool
}

// Metadata returns the node metadata.
func (b *JSONPathBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "jsonpath",
		Category:    "data",
		Description: "Extracts a value from the data using a JSONPath expression",
		ConfigSchema: map[string]any{
			"type":     "object",
			"required": []string{"path"},
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "JSONPath expression evaluated against the data",
				},
				"multiple": map[string]any{
					"type":        "boolean",
					"description": "Patch all matches as an array instead of the first match",
				},
				"default": map[string]any{
					"description": "Value patched when nothing matches",
				},
				"output": map[string]any{"type": "string"},
			},
		},
		Examples: []Example{
			{
				Name:   "Pull the total out of extracted fields",
				Config: map[string]any{"path": "$.fields.total", "output": "total"},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates a jsonpath node function from a definition.
func (b *JSONPathBuilder) Build(def *yaml.NodeDefinition) (relay.NodeFunc, error) {
	pathStr, ok := def.Config["path"].(string)
	if !ok || pathStr == "" {
		return nil, fmt.Errorf("path is required")
	}
	expr, err := jp.ParseString(pathStr)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath expression: %w", err)
	}

	multiple, _ := def.Config["multiple"].(bool)
	defaultValue := def.Config["default"]
	key := outputKey(def)

	return func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
		results := expr.Get(s.Data())
		if b.Verbose {
			log.Printf("[%s] jsonpath %q found %d matches", def.ID, pathStr, len(results))
		}

		var value any
		switch {
		case len(results) == 0 && defaultValue != nil:
			value = defaultValue
		case len(results) == 0 && multiple:
			value = []any{}
		case len(results) == 0:
			value = nil
		case multiple:
			value = results
		default:
			value = results[0]
		}
		return relay.Outcome{Success: true, Patch: map[string]any{key: value}}, nil
	}, nil
}

// ValidateBuilder builds schema validation nodes.
type ValidateBuilder struct {
	Verbose bool
}

// Metadata returns the node metadata.
func (b *ValidateBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "validate",
		Category:    "data",
		Description: "Checks the data against a JSON schema and patches the verdict",
		ConfigSchema: map[string]any{
			"type":     "object",
			"required": []string{"schema"},
			"properties": map[string]any{
				"schema": map[string]any{
					"type":        "object",
					"description": "JSON schema the selected value must satisfy",
				},
				"source": map[string]any{
					"type":        "string",
					"description": "JSONPath selecting the value to validate (defaults to the whole data)",
				},
				"output": map[string]any{"type": "string"},
			},
		},
		Examples: []Example{
			{
				Name: "Require extracted totals",
				Config: map[string]any{
					"source": "$.fields",
					"schema": map[string]any{"type": "object", "required": []string{"total"}},
				},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates a validate node function from a definition.
func (b *ValidateBuilder) Build(def *yaml.NodeDefinition) (relay.NodeFunc, error) {
	schema, ok := def.Config["schema"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("schema is required")
	}

	var source jp.Expr
	if src, ok := def.Config["source"].(string); ok && src != "" {
		expr, err := jp.ParseString(src)
		if err != nil {
			return nil, fmt.Errorf("invalid source expression: %w", err)
		}
		source = expr
	}
	key := outputKey(def)

	return func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
		var subject any = s.Data()
		if source != nil {
			matches := source.Get(s.Data())
			if len(matches) > 0 {
				subject = matches[0]
			} else {
				subject = nil
			}
		}

		subjectJSON, err := json.Marshal(subject)
		if err != nil {
			return relay.Outcome{Success: false, Error: fmt.Sprintf("marshal subject: %v", err)}, nil
		}
		result, err := gojsonschemaValidate(schema, subjectJSON)
		if err != nil {
			return relay.Outcome{Success: false, Error: err.Error()}, nil
		}

		if b.Verbose {
			log.Printf("[%s] validation valid=%v violations=%d", def.ID, result.valid, len(result.violations))
		}
		return relay.Outcome{Success: true, Patch: map[string]any{
			key: map[string]any{
				"valid":      result.valid,
				"violations": result.violations,
			},
		}}, nil
	}, nil
}

type validationResult struct {
	valid      bool
	violations []string
}

// HTTPBuilder builds HTTP request nodes.
type HTTPBuilder struct {
	Verbose bool

	// Client overrides the default HTTP client, mainly for tests.
	Client *http.Client
}

// Metadata returns the node metadata.
func (b *HTTPBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "http",
		Category:    "io",
		Description: "Calls an HTTP endpoint and patches the decoded response",
		ConfigSchema: map[string]any{
			"type":     "object",
			"required": []string{"url"},
			"properties": map[string]any{
				"url":    map[string]any{"type": "string"},
				"method": map[string]any{"type": "string", "default": "GET"},
				"headers": map[string]any{
					"type": "object",
					"additionalProperties": map[string]any{
						"type": "string",
					},
				},
				"body_from": map[string]any{
					"type":        "string",
					"description": "Data key whose value is sent as the JSON request body",
				},
				"timeout": map[string]any{"type": "string", "default": "30s"},
				"output":  map[string]any{"type": "string"},
			},
		},
		Examples: []Example{
			{
				Name:   "Fetch document metadata",
				Config: map[string]any{"url": "https://ocr.internal/v1/status"},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates an http node function from a definition. Transport errors
// and non-2xx responses are reported as transient failures so the node can
// be retried.
func (b *HTTPBuilder) Build(def *yaml.NodeDefinition) (relay.NodeFunc, error) {
	url, ok := def.Config["url"].(string)
	if !ok || url == "" {
		return nil, fmt.Errorf("url is required")
	}
	method := http.MethodGet
	if m, ok := def.Config["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}
	headers := map[string]string{}
	if h, ok := def.Config["headers"].(map[string]any); ok {
		for k, v := range h {
			if s, ok := v.(string); ok {
				headers[k] = s
			}
		}
	}
	bodyFrom, _ := def.Config["body_from"].(string)

	timeout := 30 * time.Second
	if t, ok := def.Config["timeout"].(string); ok {
		d, err := time.ParseDuration(t)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", t, err)
		}
		timeout = d
	}

	client := b.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	key := outputKey(def)

	return func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
		var body io.Reader
		if bodyFrom != "" {
			value, _ := s.Get(bodyFrom)
			payload, err := json.Marshal(value)
			if err != nil {
				return relay.Outcome{}, fmt.Errorf("marshal request body: %w", err)
			}
			body = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return relay.Outcome{}, fmt.Errorf("build request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		if b.Verbose {
			log.Printf("[%s] %s %s", def.ID, method, url)
		}
		resp, err := client.Do(req)
		if err != nil {
			return relay.Outcome{Success: false, Error: fmt.Sprintf("request failed: %v", err)}, nil
		}
		defer func() { _ = resp.Body.Close() }()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return relay.Outcome{Success: false, Error: fmt.Sprintf("read response: %v", err)}, nil
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return relay.Outcome{Success: false, Error: fmt.Sprintf("unexpected status %d", resp.StatusCode)}, nil
		}

		var decoded any
		if strings.Contains(resp.Header.Get("Content-Type"), "json") {
			if err := json.Unmarshal(raw, &decoded); err != nil {
				return relay.Outcome{Success: false, Error: fmt.Sprintf("decode response: %v", err)}, nil
			}
		} else {
			decoded = string(raw)
		}
		return relay.Outcome{Success: true, Patch: map[string]any{key: decoded}}, nil
	}, nil
}
