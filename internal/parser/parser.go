// Package parser turns pipeline YAML into typed pipeline documents,
// validates them, and builds the stage DAG. All validation failures are
// ConfigurationErrors raised before any task is dispatched.
package parser

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pkg/pipeline"
	"gopkg.in/yaml.v3"
)

// Parser converts raw pipeline YAML into typed documents.
type Parser struct {
	logger *slog.Logger
}

// New creates a Parser with the given logger.
func New(logger *slog.Logger) *Parser {
	return &Parser{logger: logger.With("component", "parser")}
}

// Parse decodes a pipeline document. Unknown fields are rejected so
// typos in stage directives surface at load time, not mid-run.
func (p *Parser) Parse(data []byte) (*pipeline.Pipeline, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc pipeline.Pipeline
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}
	if doc.Name == "" {
		return nil, fmt.Errorf("pipeline document missing name")
	}
	p.logger.Debug("parsed pipeline", "name", doc.Name,
		"channels", len(doc.Channels), "stages", len(doc.Stages))
	return &doc, nil
}

// ParseFile reads and parses a pipeline document from disk.
func (p *Parser) ParseFile(path string) (*pipeline.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline %s: %w", path, err)
	}
	doc, err := p.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}
