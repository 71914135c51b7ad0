package yaml

import (
	"fmt"
	"io"
	"os"

	goyaml "github.com/goccy/go-yaml"
)

// Parser parses YAML graph definitions.
type Parser struct{}

// NewParser creates a parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse reads a graph definition from a reader. The raw document is first
// validated against the definition schema so mistakes are reported with
// field paths instead of surfacing later as zero values.
func (p *Parser) Parse(r io.Reader) (*GraphDefinition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	return p.ParseBytes(data)
}

// ParseBytes parses a graph definition from raw YAML.
func (p *Parser) ParseBytes(data []byte) (*GraphDefinition, error) {
	if err := ValidateDocument(data); err != nil {
		return nil, err
	}
	var def GraphDefinition
	if err := goyaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	return &def, nil
}

// ParseFile parses a graph definition from a file.
func (p *Parser) ParseFile(filename string) (*GraphDefinition, error) {
	data, err := os.ReadFile(filename) // #nosec G304 - user-provided workflow file
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return p.ParseBytes(data)
}

// ParseString parses a graph definition from a string.
func (p *Parser) ParseString(s string) (*GraphDefinition, error) {
	return p.ParseBytes([]byte(s))
}

// Marshal renders a definition back to YAML.
func (p *Parser) Marshal(def *GraphDefinition) ([]byte, error) {
	out, err := goyaml.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("marshal definition: %w", err)
	}
	return out, nil
}
