package backends

import (
	"context"
	"errors"

	"github.com/tidwall/gjson"
)

const openAIBaseURL = "https://api.openai.com"

// OpenAIBackend generates completions with OpenAI's chat models.
type OpenAIBackend struct {
	*providerClient
}

// NewOpenAIBackend creates an OpenAIBackend.
func NewOpenAIBackend(opts ProviderOptions) (*OpenAIBackend, error) {
	c, err := newProviderClient("openai", openAIBaseURL, "gpt-4", opts)
	if err != nil {
		return nil, err
	}
	return &OpenAIBackend{providerClient: c}, nil
}

// ModelName returns the OpenAI model identifier.
func (b *OpenAIBackend) ModelName() string {
	return b.model
}

type openAIRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

// GenerateCompletion calls chat completions, or returns the fallback
// completion without a credential or on failure.
func (b *OpenAIBackend) GenerateCompletion(ctx context.Context, prompt string, opts GenerationOptions) (*Completion, error) {
	if !b.hasCredential() {
		b.logger.Warn("no API key configured, returning fallback response", "provider", b.provider)
		return b.fallback(prompt), nil
	}

	req := openAIRequest{
		Model:       b.model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
	}
	headers := map[string]string{"Authorization": "Bearer " + b.apiKey}

	body, err := b.postJSON(ctx, b.endpoint("/v1/chat/completions"), headers, req)
	if err != nil {
		return b.degrade(prompt, err), nil
	}

	parsed := gjson.ParseBytes(body)
	text := parsed.Get("choices.0.message.content")
	if !text.Exists() {
		return b.degrade(prompt, errors.New("response has no choices")), nil
	}

	return &Completion{
		Content:    text.String(),
		TokensUsed: int(parsed.Get("usage.total_tokens").Int()),
		Model:      b.model,
	}, nil
}
