package backends

import (
	"context"
	"unicode/utf8"
)

// DummyModel is the model name reported by the echo backend.
const DummyModel = "dummy"

// DummyBackend echoes the prompt back. It is the fallback whenever no real
// backend can be used.
type DummyBackend struct{}

// NewDummyBackend creates a DummyBackend.
func NewDummyBackend() *DummyBackend {
	return &DummyBackend{}
}

// ModelName returns the model identifier.
func (b *DummyBackend) ModelName() string {
	return DummyModel
}

// GenerateCompletion echoes the first 200 characters of the prompt and
// estimates one token per four characters, capped at 1000.
func (b *DummyBackend) GenerateCompletion(_ context.Context, prompt string, _ GenerationOptions) (*Completion, error) {
	head, cut := truncate(prompt, 200)
	content := "ECHO: " + head
	if cut {
		content += "..."
	}

	tokens := (utf8.RuneCountInString(content) + 3) / 4
	if tokens > 1000 {
		tokens = 1000
	}

	return &Completion{
		Content:    content,
		TokensUsed: tokens,
		Model:      b.ModelName(),
	}, nil
}
