package validation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"flowkit/internal/config"
	"flowkit/pkg/models"
)

// MockRunner satisfies CommandRunner
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, command, stdin string) error {
	args := m.Called(ctx, command, stdin)
	return args.Error(0)
}

func rule(t models.ValidationType, payload string) models.ValidationRule {
	return models.ValidationRule{Type: t, Rule: payload}
}

func TestValidateBuiltinRules(t *testing.T) {
	v := New(true, new(MockRunner))
	ctx := context.Background()

	tests := []struct {
		name      string
		output    string
		rule      models.ValidationRule
		passed    bool
		errorText string
	}{
		{"contains pass", "hello world", rule(models.ValidationContains, "world"), true, ""},
		{"contains fail", "hello world", rule(models.ValidationContains, "xyz"), false, `Output does not contain required text: "xyz"`},
		{"contains is case sensitive", "hello world", rule(models.ValidationContains, "World"), false, "World"},
		{"length pass", "hello world", rule(models.ValidationLength, "5"), true, ""},
		{"length fail", "hi", rule(models.ValidationLength, "10"), false, "Output length 2 is below minimum 10"},
		{"length exact", "héllo", rule(models.ValidationLength, "5"), true, ""},
		{"length not numeric", "hi", rule(models.ValidationLength, "ten"), false, "Validation error"},
		{"length negative", "hi", rule(models.ValidationLength, "-1"), false, "Validation error"},
		{"regex pass", "hello world", rule(models.ValidationRegex, "wor.d"), true, ""},
		{"regex fail", "hello world", rule(models.ValidationRegex, "xyz"), false, "Output does not match pattern: xyz"},
		{"regex malformed", "hello", rule(models.ValidationRegex, "(["), false, "Validation error"},
		{"unknown type", "hello", rule("json_schema", "{}"), false, "Unknown validation type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(ctx, tt.output, tt.rule)
			assert.Equal(t, tt.passed, res.Passed)
			if tt.passed {
				assert.Empty(t, res.Error)
			} else {
				assert.NotEmpty(t, res.Error)
				assert.Contains(t, res.Error, tt.errorText)
			}
		})
	}
}

func TestValidateCustomErrorMessage(t *testing.T) {
	v := New(true, nil)
	r := models.ValidationRule{Type: models.ValidationContains, Rule: "xyz", ErrorMessage: "needs xyz"}

	res := v.Validate(context.Background(), "hello", r)
	assert.Equal(t, models.ValidationResult{Passed: false, Error: "needs xyz"}, res)
}

func TestValidateIsIdempotent(t *testing.T) {
	v := New(true, nil)
	r := rule(models.ValidationRegex, "^h")
	first := v.Validate(context.Background(), "hello", r)
	second := v.Validate(context.Background(), "hello", r)
	assert.Equal(t, first, second)
}

func TestValidateExternalCommand(t *testing.T) {
	ctx := context.Background()

	t.Run("passes output on stdin", func(t *testing.T) {
		runner := new(MockRunner)
		runner.On("Run", mock.Anything, "grep -q ok", "all ok").Return(nil)

		res := New(true, runner).Validate(ctx, "all ok", rule(models.ValidationExternalCommand, "grep -q ok"))
		assert.True(t, res.Passed)
		runner.AssertExpectations(t)
	})

	t.Run("failure uses detail", func(t *testing.T) {
		runner := new(MockRunner)
		runner.On("Run", mock.Anything, "lint", "code").Return(errors.New("exit 2"))

		res := New(true, runner).Validate(ctx, "code", rule(models.ValidationExternalCommand, "lint"))
		assert.False(t, res.Passed)
		assert.Equal(t, "External validation failed: exit 2", res.Error)
	})

	t.Run("disabled switch wins over exit status", func(t *testing.T) {
		runner := new(MockRunner)
		r := models.ValidationRule{Type: models.ValidationExternalCommand, Rule: "true", ErrorMessage: "custom"}

		res := New(false, runner).Validate(ctx, "anything", r)
		assert.False(t, res.Passed)
		assert.Equal(t, DisabledMessage, res.Error)
		runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
	})
}

type panicRunner struct{}

func (panicRunner) Run(context.Context, string, string) error {
	panic("boom")
}

func TestValidateRecoversFromPanics(t *testing.T) {
	res := New(true, panicRunner{}).Validate(context.Background(), "x", rule(models.ValidationExternalCommand, "cmd"))
	assert.False(t, res.Passed)
	assert.Equal(t, "Validation error: boom", res.Error)
}

func TestNewFromConfig(t *testing.T) {
	v := NewFromConfig(config.ValidationConfig{AllowExternalCommands: false})
	assert.False(t, v.allowExternalCommands)

	runner, ok := v.runner.(*ShellRunner)
	require.True(t, ok)
	assert.Equal(t, DefaultCommandTimeout, runner.Timeout)
}
