package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parser parses JSON or YAML workflow definitions into Graph structures.
type Parser struct {
	// Strict disallows unknown fields in the input document.
	Strict bool
}

// NewParser creates a new parser.
func NewParser() *Parser {
	return &Parser{}
}

// NewStrictParser creates a new parser with strict mode enabled.
func NewStrictParser() *Parser {
	return &Parser{Strict: true}
}

// Parse parses a JSON document into a Graph.
func (p *Parser) Parse(data []byte) (*Graph, error) {
	var g Graph
	decoder := json.NewDecoder(bytes.NewReader(data))
	if p.Strict {
		decoder.DisallowUnknownFields()
	}
	if err := decoder.Decode(&g); err != nil {
		return nil, fmt.Errorf("failed to parse workflow definition: %w", err)
	}
	fillEdgeIDs(&g)
	return &g, nil
}

// ParseYAML parses a YAML document into a Graph.
func (p *Parser) ParseYAML(data []byte) (*Graph, error) {
	var g Graph
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(p.Strict)
	if err := decoder.Decode(&g); err != nil {
		return nil, fmt.Errorf("failed to parse workflow definition: %w", err)
	}
	fillEdgeIDs(&g)
	return &g, nil
}

// ParseFile parses a file into a Graph, selecting JSON or YAML by extension.
func (p *Parser) ParseFile(filename string) (*Graph, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return p.ParseYAML(data)
	default:
		return p.Parse(data)
	}
}

// ParseString parses a JSON string into a Graph.
func (p *Parser) ParseString(s string) (*Graph, error) {
	return p.Parse([]byte(s))
}

func fillEdgeIDs(g *Graph) {
	for i := range g.Edges {
		if g.Edges[i].ID == "" {
			g.Edges[i].ID = fmt.Sprintf("edge_%d", i)
		}
	}
	for i := range g.DataEdges {
		if g.DataEdges[i].ID == "" {
			g.DataEdges[i].ID = fmt.Sprintf("data_edge_%d", i)
		}
	}
}

// ToJSON serializes a Graph to indented JSON.
func ToJSON(g *Graph) ([]byte, error) {
	return json.MarshalIndent(g, "", "  ")
}

// ToYAML serializes a Graph to YAML.
func ToYAML(g *Graph) ([]byte, error) {
	return yaml.Marshal(g)
}

// WriteToFile writes a Graph to a file, selecting JSON or YAML by extension.
func WriteToFile(g *Graph, filename string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = ToYAML(g)
	default:
		data, err = ToJSON(g)
	}
	if err != nil {
		return fmt.Errorf("failed to serialize workflow: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", filename, err)
	}
	return nil
}
