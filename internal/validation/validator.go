// Package validation checks step outputs against declarative rules.
package validation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"flowkit/internal/config"
	"flowkit/pkg/models"
)

// DisabledMessage is reported for every external_command rule while the
// security switch is off.
const DisabledMessage = "External command validation is disabled (ALLOW_EXTERNAL_COMMANDS=false)"

// Validator applies validation rules to step outputs. It is safe for
// concurrent use.
type Validator struct {
	allowExternalCommands bool
	runner                CommandRunner
}

// New creates a Validator. A nil runner selects a ShellRunner with the
// default timeout.
func New(allowExternalCommands bool, runner CommandRunner) *Validator {
	if runner == nil {
		runner = NewShellRunner(DefaultCommandTimeout)
	}
	return &Validator{
		allowExternalCommands: allowExternalCommands,
		runner:                runner,
	}
}

// NewFromConfig creates a Validator from the validation configuration.
// External commands always run under DefaultCommandTimeout.
func NewFromConfig(cfg config.ValidationConfig) *Validator {
	return New(cfg.AllowExternalCommands, NewShellRunner(DefaultCommandTimeout))
}

// Validate evaluates output against rule. It never panics and never
// returns an error: every problem becomes a failed result.
func (v *Validator) Validate(ctx context.Context, output string, rule models.ValidationRule) (result models.ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			result = models.ValidationResult{Error: fmt.Sprintf("Validation error: %v", r)}
		}
	}()

	var err error
	switch rule.Type {
	case models.ValidationRegex:
		result, err = validateRegex(output, rule)
	case models.ValidationLength:
		result, err = validateLength(output, rule)
	case models.ValidationContains:
		result = validateContains(output, rule)
	case models.ValidationExternalCommand:
		result = v.validateExternal(ctx, output, rule)
	default:
		return models.ValidationResult{Error: "Unknown validation type"}
	}
	if err != nil {
		return models.ValidationResult{Error: "Validation error: " + err.Error()}
	}
	return result
}

func validateRegex(output string, rule models.ValidationRule) (models.ValidationResult, error) {
	re, err := regexp.Compile(rule.Rule)
	if err != nil {
		return models.ValidationResult{}, err
	}
	if !re.MatchString(output) {
		return fail(rule, fmt.Sprintf("Output does not match pattern: %s", rule.Rule)), nil
	}
	return pass(), nil
}

func validateLength(output string, rule models.ValidationRule) (models.ValidationResult, error) {
	minLength, err := strconv.Atoi(strings.TrimSpace(rule.Rule))
	if err != nil {
		return models.ValidationResult{}, fmt.Errorf("length rule must be an integer, got %q", rule.Rule)
	}
	if minLength < 0 {
		return models.ValidationResult{}, errors.New("length rule must not be negative")
	}
	if n := utf8.RuneCountInString(output); n < minLength {
		return fail(rule, fmt.Sprintf("Output length %d is below minimum %d", n, minLength)), nil
	}
	return pass(), nil
}

func validateContains(output string, rule models.ValidationRule) models.ValidationResult {
	if !strings.Contains(output, rule.Rule) {
		return fail(rule, fmt.Sprintf("Output does not contain required text: %q", rule.Rule))
	}
	return pass()
}

func (v *Validator) validateExternal(ctx context.Context, output string, rule models.ValidationRule) models.ValidationResult {
	if !v.allowExternalCommands {
		return models.ValidationResult{Error: DisabledMessage}
	}
	if err := v.runner.Run(ctx, rule.Rule, output); err != nil {
		return fail(rule, "External validation failed: "+err.Error())
	}
	return pass()
}

func pass() models.ValidationResult {
	return models.ValidationResult{Passed: true}
}

func fail(rule models.ValidationRule, fallback string) models.ValidationResult {
	if rule.ErrorMessage != "" {
		return models.ValidationResult{Error: rule.ErrorMessage}
	}
	return models.ValidationResult{Error: fallback}
}
