// Package orchestrator executes flows: it renders each step's prompt, calls
// the selected backend, validates the output and chains it into the next
// step.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flowkit/internal/backends"
	"flowkit/pkg/models"
)

// ErrFlowNotFound is matched by every FlowNotFoundError.
var ErrFlowNotFound = errors.New("flow not found")

// FlowNotFoundError is returned when the requested flow is absent from the
// loaded document. It is the only error Run returns for a started run.
// Cause is set when the document itself could not be loaded.
type FlowNotFoundError struct {
	Name   string
	Source string
	Cause  error
}

func (e *FlowNotFoundError) Error() string {
	msg := fmt.Sprintf("flow %q not found", e.Name)
	if e.Source != "" {
		msg += " in " + e.Source
	}
	if e.Cause != nil {
		msg += ": flow document unavailable: " + e.Cause.Error()
	}
	return msg
}

func (e *FlowNotFoundError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrFlowNotFound.
func (e *FlowNotFoundError) Is(target error) bool {
	return target == ErrFlowNotFound
}

// FlowSource supplies the parsed flow document.
type FlowSource interface {
	Load(ctx context.Context) (*models.FlowDocument, error)
	Name() string
}

// BackendSelector maps a model identifier onto a backend.
type BackendSelector interface {
	Select(model string) backends.Backend
}

// StepValidator applies a validation rule to a step output.
type StepValidator interface {
	Validate(ctx context.Context, output string, rule models.ValidationRule) models.ValidationResult
}

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// RunInput names the flow to run and the values it is rendered with.
type RunInput struct {
	FlowName        string            `json:"flow_name"`
	TargetModel     string            `json:"target_model,omitempty"`
	ContextFilePath string            `json:"context_file_path,omitempty"`
	Variables       map[string]string `json:"variables,omitempty"`
}

// Orchestrator runs flows. It holds no per-run state, so independent runs
// may execute concurrently.
type Orchestrator struct {
	source       FlowSource
	selector     BackendSelector
	validator    StepValidator
	defaultModel string
	contextDir   string
	logger       Logger
}

// New creates an Orchestrator.
func New(source FlowSource, selector BackendSelector, validator StepValidator, logger Logger) *Orchestrator {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Orchestrator{
		source:     source,
		selector:   selector,
		validator:  validator,
		contextDir: ".",
		logger:     logger,
	}
}

// WithContextDir sets the directory context files are resolved in.
func (o *Orchestrator) WithContextDir(dir string) *Orchestrator {
	if dir != "" {
		o.contextDir = dir
	}
	return o
}

// WithDefaultModel sets the model used when a run does not name one.
func (o *Orchestrator) WithDefaultModel(model string) *Orchestrator {
	o.defaultModel = model
	return o
}

// ResolveModel returns the model a run with the given target would use.
func (o *Orchestrator) ResolveModel(target string) string {
	switch {
	case target != "":
		return target
	case o.defaultModel != "":
		return o.defaultModel
	default:
		return backends.DummyModel
	}
}

// LoadFlows returns the flow document, or an empty one when it cannot be
// read or parsed.
func (o *Orchestrator) LoadFlows(ctx context.Context) *models.FlowDocument {
	doc, _ := o.loadFlows(ctx)
	return doc
}

// loadFlows is LoadFlows that also reports why the document is empty.
func (o *Orchestrator) loadFlows(ctx context.Context) (*models.FlowDocument, error) {
	doc, err := o.source.Load(ctx)
	if err != nil {
		o.logger.Warn("flow document unavailable, treating as empty", "source", o.source.Name(), "error", err)
		return &models.FlowDocument{}, err
	}
	if doc == nil {
		return &models.FlowDocument{}, nil
	}
	return doc, nil
}

// Run executes the named flow step by step. Validation failures, backend
// errors and cancellation are recorded in the result; the returned error is
// non-nil only when the flow does not exist.
func (o *Orchestrator) Run(ctx context.Context, in RunInput) (*models.OrchestrationResult, error) {
	start := time.Now()
	model := o.ResolveModel(in.TargetModel)

	doc, loadErr := o.loadFlows(ctx)
	flow := doc.Find(in.FlowName)
	if flow == nil {
		return nil, &FlowNotFoundError{Name: in.FlowName, Source: o.source.Name(), Cause: loadErr}
	}

	backend := o.selector.Select(model)
	tmpl := newTemplate(in.Variables, o.readContext(in.ContextFilePath))

	logger := o.logger
	logger.Info("flow run started", "flow", flow.Name, "model", model, "steps", len(flow.Steps))

	result := &models.OrchestrationResult{
		FlowName:      flow.Name,
		TargetModel:   model,
		StepsExecuted: make([]models.StepResult, 0, len(flow.Steps)),
	}
	finish := func(success bool, final *string) (*models.OrchestrationResult, error) {
		result.Success = success
		result.FinalOutput = final
		result.TotalDurationMs = time.Since(start).Milliseconds()
		logger.Info("flow run finished", "flow", flow.Name, "success", success,
			"steps", len(result.StepsExecuted), "duration_ms", result.TotalDurationMs)
		return result, nil
	}

	previous := ""
	for i, step := range flow.Steps {
		stepID := step.Identifier()

		if err := ctx.Err(); err != nil {
			result.StepsExecuted = append(result.StepsExecuted, models.StepResult{StepID: stepID, Error: err.Error()})
			logger.Warn("flow run cancelled", "flow", flow.Name, "step", i, "error", err)
			return finish(false, nil)
		}

		prompt := tmpl.render(step.Prompt, previous, i == 0)
		logger.Debug("executing step", "flow", flow.Name, "step", i, "id", stepID)

		completion, err := backend.GenerateCompletion(ctx, prompt, backends.GenerationOptions{
			MaxTokens:   step.MaxTokensOrDefault(),
			Temperature: step.TemperatureOrDefault(),
		})
		if err != nil {
			result.StepsExecuted = append(result.StepsExecuted, models.StepResult{StepID: stepID, Error: err.Error()})
			logger.Warn("backend call failed", "flow", flow.Name, "step", i, "error", err)
			return finish(false, nil)
		}

		var validation *models.ValidationResult
		if step.Validation != nil {
			v := o.validator.Validate(ctx, completion.Content, *step.Validation)
			validation = &v
			if !v.Passed {
				logger.Debug("step validation failed", "flow", flow.Name, "step", i, "error", v.Error)
				if step.Validation.HaltOnFailure {
					result.StepsExecuted = append(result.StepsExecuted, models.StepResult{
						StepID:     stepID,
						Output:     completion.Content,
						Validation: validation,
					})
					return finish(false, nil)
				}
			}
		}

		tokens := completion.TokensUsed
		result.StepsExecuted = append(result.StepsExecuted, models.StepResult{
			StepID:     stepID,
			Output:     completion.Content,
			Tokens:     &tokens,
			Validation: validation,
		})
		previous = completion.Content
	}

	return finish(true, &previous)
}
