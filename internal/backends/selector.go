package backends

import (
	"net/http"
	"strings"

	"flowkit/internal/config"
)

// Factory constructs a backend for one provider family.
type Factory func(opts ProviderOptions) (Backend, error)

// route maps model-name prefixes onto a provider family.
type route struct {
	family   string
	prefixes []string
	factory  Factory
}

// Selector maps model identifiers onto backends. It holds only immutable
// configuration and is safe for concurrent use.
type Selector struct {
	routes []route
	cfg    config.LLMConfig
	client *http.Client
	logger Logger
}

// NewSelector creates a Selector for the built-in provider families.
func NewSelector(cfg config.LLMConfig, logger Logger) *Selector {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Selector{
		cfg:    cfg,
		logger: logger,
		routes: []route{
			{family: "gemini", prefixes: []string{"gemini"}, factory: func(o ProviderOptions) (Backend, error) {
				return NewGeminiBackend(o)
			}},
			{family: "claude", prefixes: []string{"claude"}, factory: func(o ProviderOptions) (Backend, error) {
				return NewClaudeBackend(o)
			}},
			{family: "openai", prefixes: []string{"gpt", "openai"}, factory: func(o ProviderOptions) (Backend, error) {
				return NewOpenAIBackend(o)
			}},
		},
	}
}

// WithHTTPClient makes every constructed backend share client.
func (s *Selector) WithHTTPClient(client *http.Client) *Selector {
	s.client = client
	return s
}

// Family returns the provider family for a model identifier, or "" when no
// prefix matches.
func (s *Selector) Family(model string) string {
	if r := s.match(model); r != nil {
		return r.family
	}
	return ""
}

// Select returns the backend for model. It never fails: unknown
// identifiers and construction errors yield the DummyBackend.
func (s *Selector) Select(model string) Backend {
	r := s.match(model)
	if r == nil {
		return NewDummyBackend()
	}

	provider := s.provider(r.family)
	backend, err := r.factory(ProviderOptions{
		APIKey:  provider.APIKey,
		Model:   strings.TrimSpace(model),
		BaseURL: provider.BaseURL,
		Timeout: s.cfg.Timeout,
		Client:  s.client,
		Logger:  s.logger,
	})
	if err != nil || backend == nil {
		s.logger.Warn("backend construction failed, falling back to dummy backend",
			"family", r.family, "model", model, "error", err)
		return NewDummyBackend()
	}
	return backend
}

func (s *Selector) match(model string) *route {
	m := strings.ToLower(strings.TrimSpace(model))
	if m == "" {
		return nil
	}
	for i := range s.routes {
		for _, prefix := range s.routes[i].prefixes {
			if strings.HasPrefix(m, prefix) {
				return &s.routes[i]
			}
		}
	}
	return nil
}

func (s *Selector) provider(family string) config.ProviderConfig {
	switch family {
	case "gemini":
		return s.cfg.Gemini
	case "claude":
		return s.cfg.Claude
	case "openai":
		return s.cfg.OpenAI
	default:
		return config.ProviderConfig{}
	}
}
