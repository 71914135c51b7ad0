package builtin

import (
	"strings"
	"testing"

	"github.com/relayworks/relay/yaml"
)

func TestScriptBuilder(t *testing.T) {
	builder := &ScriptBuilder{}
	fn, err := builder.Build(&yaml.NodeDefinition{
		ID: "triage",
		Config: map[string]any{
			"source": `
function run(data)
  return {needs_review = data.confidence < 0.8}
end`,
		},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	out := runFunc(t, fn, map[string]any{"confidence": 0.6})
	if !out.Success {
		t.Fatalf("expected success, got error %q", out.Error)
	}
	if out.Patch["needs_review"] != true {
		t.Errorf("expected needs_review true, got %v", out.Patch)
	}

	out = runFunc(t, fn, map[string]any{"confidence": 0.95})
	if out.Patch["needs_review"] != false {
		t.Errorf("expected needs_review false, got %v", out.Patch)
	}
}

func TestScriptBuilderHelpers(t *testing.T) {
	builder := &ScriptBuilder{}
	fn, err := builder.Build(&yaml.NodeDefinition{
		ID: "clean",
		Config: map[string]any{
			"source": `
function run(data)
  return {subject = str_trim(data.subject), tagged = str_contains(data.subject, "invoice")}
end`,
		},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	out := runFunc(t, fn, map[string]any{"subject": "  invoice 42  "})
	if out.Patch["subject"] != "invoice 42" {
		t.Errorf("expected trimmed subject, got %q", out.Patch["subject"])
	}
	if out.Patch["tagged"] != true {
		t.Errorf("expected tagged true, got %v", out.Patch["tagged"])
	}
}

func TestScriptBuilderRequiresRun(t *testing.T) {
	builder := &ScriptBuilder{}
	_, err := builder.Build(&yaml.NodeDefinition{
		ID:     "bad",
		Config: map[string]any{"source": "x = 1"},
	})
	if err == nil {
		t.Fatal("expected build to fail")
	}
	if !strings.Contains(err.Error(), "run(data)") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestScriptBuilderRejectsBrokenSyntax(t *testing.T) {
	builder := &ScriptBuilder{}
	if _, err := builder.Build(&yaml.NodeDefinition{
		ID:     "bad",
		Config: map[string]any{"source": "function run(data"},
	}); err == nil {
		t.Fatal("expected build to fail")
	}
}

func TestScriptBuilderSandbox(t *testing.T) {
	builder := &ScriptBuilder{}
	fn, err := builder.Build(&yaml.NodeDefinition{
		ID: "escape",
		Config: map[string]any{
			"source": `
function run(data)
  return {blocked = os.execute == nil and require == nil}
end`,
		},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	out := runFunc(t, fn, nil)
	if out.Patch["blocked"] != true {
		t.Error("expected dangerous functions to be stripped")
	}
}

func TestScriptBuilderNonTableReturn(t *testing.T) {
	builder := &ScriptBuilder{}
	fn, err := builder.Build(&yaml.NodeDefinition{
		ID: "bad",
		Config: map[string]any{
			"source": `
function run(data)
  return 42
end`,
		},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	out := runFunc(t, fn, nil)
	if out.Success {
		t.Fatal("expected a failed outcome")
	}
	if !strings.Contains(out.Error, "table") {
		t.Errorf("unexpected error: %q", out.Error)
	}
}
