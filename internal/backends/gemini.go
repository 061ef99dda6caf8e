package backends

import (
	"context"
	"errors"
	"net/url"

	"github.com/tidwall/gjson"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiBackend generates completions with Google's Gemini models.
type GeminiBackend struct {
	*providerClient
}

// NewGeminiBackend creates a GeminiBackend.
func NewGeminiBackend(opts ProviderOptions) (*GeminiBackend, error) {
	c, err := newProviderClient("gemini", geminiBaseURL, "gemini", opts)
	if err != nil {
		return nil, err
	}
	return &GeminiBackend{providerClient: c}, nil
}

// ModelName returns the Gemini model identifier.
func (b *GeminiBackend) ModelName() string {
	return b.model
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		MaxOutputTokens int     `json:"maxOutputTokens"`
		Temperature     float64 `json:"temperature"`
	} `json:"generationConfig"`
}

// GenerateCompletion calls generateContent, or returns the fallback
// completion without a credential or on failure.
func (b *GeminiBackend) GenerateCompletion(ctx context.Context, prompt string, opts GenerationOptions) (*Completion, error) {
	if !b.hasCredential() {
		b.logger.Warn("no API key configured, returning fallback response", "provider", b.provider)
		return b.fallback(prompt), nil
	}

	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	req.GenerationConfig.MaxOutputTokens = opts.MaxTokens
	req.GenerationConfig.Temperature = opts.Temperature

	endpoint := b.endpoint("/v1beta/models/" + url.PathEscape(b.model) + ":generateContent")
	body, err := b.postJSON(ctx, endpoint, map[string]string{"x-goog-api-key": b.apiKey}, req)
	if err != nil {
		return b.degrade(prompt, err), nil
	}

	parsed := gjson.ParseBytes(body)
	text := parsed.Get("candidates.0.content.parts.0.text")
	if !text.Exists() {
		return b.degrade(prompt, errors.New("response has no candidate text")), nil
	}

	return &Completion{
		Content:    text.String(),
		TokensUsed: int(parsed.Get("usageMetadata.totalTokenCount").Int()),
		Model:      b.model,
	}, nil
}
