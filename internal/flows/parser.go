// Package flows loads flow definition documents.
package flows

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"flowkit/pkg/models"
)

// Source supplies the parsed flow document.
type Source interface {
	// Load reads and parses the document.
	Load(ctx context.Context) (*models.FlowDocument, error)
	// Name describes where the document comes from, for messages.
	Name() string
}

// ParseError describes a document that could not be decoded.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse decodes a YAML flow document. Unknown validation types and
// malformed rules are rejected here rather than at run time.
func Parse(data []byte, source string) (*models.FlowDocument, error) {
	var doc models.FlowDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &models.FlowDocument{}, nil
		}
		return nil, &ParseError{Source: source, Err: err}
	}

	seen := make(map[string]bool, len(doc.Flows))
	for i, f := range doc.Flows {
		if f.Name == "" {
			return nil, &ParseError{Source: source, Err: fmt.Errorf("flow #%d has no name", i+1)}
		}
		if seen[f.Name] {
			return nil, &ParseError{Source: source, Err: fmt.Errorf("duplicate flow name %q", f.Name)}
		}
		seen[f.Name] = true
	}
	return &doc, nil
}
