// Package backends turns prompts into generated text. Each provider family
// has its own Backend; the Selector picks one from a model identifier.
package backends

import (
	"context"
)

// Backend generates a completion for a prompt.
//
// The built-in backends never return an error: missing credentials and
// transport failures degrade to a deterministic fallback completion.
type Backend interface {
	GenerateCompletion(ctx context.Context, prompt string, opts GenerationOptions) (*Completion, error)
	ModelName() string
}

// GenerationOptions controls one completion request.
type GenerationOptions struct {
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// Completion is the generated text for one request.
type Completion struct {
	Content    string `json:"content"`
	TokensUsed int    `json:"tokens_used"`
	Model      string `json:"model"`
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

// truncate returns the first n characters of s.
func truncate(s string, n int) (string, bool) {
	count := 0
	for i := range s {
		if count == n {
			return s[:i], true
		}
		count++
	}
	return s, false
}
