// Package models defines the domain models for the flowkit service
package models

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultMaxTokens is used when a step does not set max_tokens
	DefaultMaxTokens = 512
	// DefaultTemperature is used when a step does not set temperature
	DefaultTemperature = 0.3
)

// FlowDocument is the parsed contents of a flow definition file.
type FlowDocument struct {
	Flows []Flow `json:"flows" yaml:"flows"`
}

// Find returns the flow with the exact given name, or nil.
func (d *FlowDocument) Find(name string) *Flow {
	if d == nil {
		return nil
	}
	for i := range d.Flows {
		if d.Flows[i].Name == name {
			return &d.Flows[i]
		}
	}
	return nil
}

// Flow is a named, strictly linear sequence of steps.
type Flow struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []Step `json:"steps" yaml:"steps"`
}

// Step is one prompt-generate-validate unit within a flow.
type Step struct {
	ID          string          `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string          `json:"name,omitempty" yaml:"name,omitempty"`
	Prompt      string          `json:"prompt" yaml:"prompt"`
	Validation  *ValidationRule `json:"validation,omitempty" yaml:"validation,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty" yaml:"temperature,omitempty"`
}

// Identifier returns the id used to report this step: id, then name.
func (s Step) Identifier() string {
	if s.ID != "" {
		return s.ID
	}
	return s.Name
}

// MaxTokensOrDefault returns max_tokens, or DefaultMaxTokens when unset.
func (s Step) MaxTokensOrDefault() int {
	if s.MaxTokens == nil {
		return DefaultMaxTokens
	}
	return *s.MaxTokens
}

// TemperatureOrDefault returns temperature, or DefaultTemperature when unset.
func (s Step) TemperatureOrDefault() float64 {
	if s.Temperature == nil {
		return DefaultTemperature
	}
	return *s.Temperature
}

// ValidationType tags the variant of a ValidationRule
type ValidationType string

const (
	ValidationRegex           ValidationType = "regex"
	ValidationLength          ValidationType = "length"
	ValidationContains        ValidationType = "contains"
	ValidationExternalCommand ValidationType = "external_command"
)

// ErrUnknownValidationType is returned when a document names a rule type
// outside the supported set.
var ErrUnknownValidationType = errors.New("unknown validation type")

// ParseValidationType maps a document tag onto a ValidationType.
func ParseValidationType(s string) (ValidationType, error) {
	switch t := ValidationType(strings.TrimSpace(s)); t {
	case ValidationRegex, ValidationLength, ValidationContains, ValidationExternalCommand:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownValidationType, s)
	}
}

// ValidationRule is a declarative check applied to a step's output. The
// rule payload is kept in its textual form; each variant interprets it.
type ValidationRule struct {
	Type         ValidationType `json:"type" yaml:"type"`
	Rule         string         `json:"rule" yaml:"rule"`
	ErrorMessage string         `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	// HaltOnFailure stops the run when this rule fails. It is read by the
	// orchestrator only.
	HaltOnFailure bool `json:"halt_on_failure,omitempty" yaml:"halt_on_failure,omitempty"`
	// ContinueOnFailure is accepted for older flow files. It only restates
	// the default and may not be combined with HaltOnFailure.
	ContinueOnFailure bool `json:"continue_on_failure,omitempty" yaml:"continue_on_failure,omitempty"`
}

// UnmarshalYAML rejects unknown tags and non-scalar payloads while the
// document is parsed.
func (r *ValidationRule) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Type              string    `yaml:"type"`
		Rule              yaml.Node `yaml:"rule"`
		ErrorMessage      string    `yaml:"error_message"`
		HaltOnFailure     bool      `yaml:"halt_on_failure"`
		ContinueOnFailure bool      `yaml:"continue_on_failure"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	t, err := ParseValidationType(raw.Type)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}

	switch raw.Rule.Kind {
	case 0, yaml.ScalarNode:
	default:
		return fmt.Errorf("line %d: %s rule must be a scalar value", raw.Rule.Line, t)
	}

	if raw.HaltOnFailure && raw.ContinueOnFailure {
		return fmt.Errorf("line %d: halt_on_failure and continue_on_failure are mutually exclusive", value.Line)
	}

	*r = ValidationRule{
		Type:              t,
		Rule:              raw.Rule.Value,
		ErrorMessage:      raw.ErrorMessage,
		HaltOnFailure:     raw.HaltOnFailure,
		ContinueOnFailure: raw.ContinueOnFailure,
	}
	return nil
}

// FlowSummary is the listing view of a flow.
type FlowSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Steps       int    `json:"steps"`
}

// Summarize builds the listing view of every flow in the document.
func (d *FlowDocument) Summarize() []FlowSummary {
	if d == nil {
		return []FlowSummary{}
	}
	out := make([]FlowSummary, 0, len(d.Flows))
	for _, f := range d.Flows {
		out = append(out, FlowSummary{Name: f.Name, Description: f.Description, Steps: len(f.Steps)})
	}
	return out
}
