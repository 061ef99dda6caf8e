package backends

import (
	"context"
	"errors"

	"github.com/tidwall/gjson"
)

const (
	claudeBaseURL    = "https://api.anthropic.com"
	claudeAPIVersion = "2023-06-01"
)

// ClaudeBackend generates completions with Anthropic's Claude models.
type ClaudeBackend struct {
	*providerClient
}

// NewClaudeBackend creates a ClaudeBackend.
func NewClaudeBackend(opts ProviderOptions) (*ClaudeBackend, error) {
	c, err := newProviderClient("claude", claudeBaseURL, "claude", opts)
	if err != nil {
		return nil, err
	}
	return &ClaudeBackend{providerClient: c}, nil
}

// ModelName returns the Claude model identifier.
func (b *ClaudeBackend) ModelName() string {
	return b.model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

// GenerateCompletion calls the Messages API, or returns the fallback
// completion without a credential or on failure.
func (b *ClaudeBackend) GenerateCompletion(ctx context.Context, prompt string, opts GenerationOptions) (*Completion, error) {
	if !b.hasCredential() {
		b.logger.Warn("no API key configured, returning fallback response", "provider", b.provider)
		return b.fallback(prompt), nil
	}

	req := claudeRequest{
		Model:       b.model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
	}
	headers := map[string]string{
		"x-api-key":         b.apiKey,
		"anthropic-version": claudeAPIVersion,
	}

	body, err := b.postJSON(ctx, b.endpoint("/v1/messages"), headers, req)
	if err != nil {
		return b.degrade(prompt, err), nil
	}

	parsed := gjson.ParseBytes(body)
	text := parsed.Get(`content.#(type=="text").text`)
	if !text.Exists() {
		return b.degrade(prompt, errors.New("response has no text content")), nil
	}

	usage := parsed.Get("usage")
	return &Completion{
		Content:    text.String(),
		TokensUsed: int(usage.Get("input_tokens").Int() + usage.Get("output_tokens").Int()),
		Model:      b.model,
	}, nil
}
