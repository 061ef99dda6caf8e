package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 512

// ProviderOptions configures one HTTP-backed provider backend.
type ProviderOptions struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
	Logger  Logger
}

// providerClient is the shared plumbing of the HTTP-backed backends: the
// credential, endpoint, fallback response and JSON POST.
type providerClient struct {
	provider string
	apiKey   string
	model    string
	baseURL  *url.URL
	client   *http.Client
	logger   Logger
}

func newProviderClient(provider, defaultBaseURL, defaultModel string, opts ProviderOptions) (*providerClient, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		raw = defaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s base url: %w", provider, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid %s base url %q: scheme must be http or https", provider, raw)
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}

	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	return &providerClient{
		provider: provider,
		apiKey:   opts.APIKey,
		model:    model,
		baseURL:  base,
		client:   client,
		logger:   logger,
	}, nil
}

func (c *providerClient) hasCredential() bool {
	return strings.TrimSpace(c.apiKey) != ""
}

// fallback is the deterministic placeholder completion used without a
// usable provider response.
func (c *providerClient) fallback(prompt string) *Completion {
	head, _ := truncate(prompt, 200)
	return &Completion{
		Content:    c.provider + "-fallback: " + head,
		TokensUsed: 0,
		Model:      c.model,
	}
}

// endpoint joins path onto the base URL.
func (c *providerClient) endpoint(path string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

// postJSON sends body as JSON and returns the raw response body of a 200.
func (c *providerClient) postJSON(ctx context.Context, endpoint string, headers map[string]string, body any) ([]byte, error) {
	requestBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet, _ := truncate(string(respBody), maxErrorBody)
		return nil, fmt.Errorf("%s API error: status code %d: %s", c.provider, resp.StatusCode, snippet)
	}
	return respBody, nil
}

// degrade logs a failed call and returns the fallback completion.
func (c *providerClient) degrade(prompt string, err error) *Completion {
	c.logger.Warn("provider call failed, returning fallback response",
		"provider", c.provider, "model", c.model, "error", err)
	return c.fallback(prompt)
}
