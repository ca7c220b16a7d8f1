package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dotsetgreg/dotfuzz/pkg/config"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderCompatible = "compatible"
)

// Supported lists the values generator.provider accepts.
func Supported() []string {
	return []string{ProviderCompatible, ProviderOpenAI, ProviderOpenRouter}
}

// Name is cfg's provider in canonical form; an empty setting means openrouter.
func Name(cfg *config.Config) string {
	if cfg == nil {
		return ProviderOpenRouter
	}
	name := strings.ToLower(strings.TrimSpace(cfg.Generator.Provider))
	if name == "" {
		return ProviderOpenRouter
	}
	return name
}

// endpoint is a provider section of the config resolved to something a
// Client can talk to.
type endpoint struct {
	base         string
	defaultModel string
	proxy        string
	auth         AuthStrategy
	header       http.Header
}

func resolve(cfg *config.Config) (string, endpoint, error) {
	name := Name(cfg)
	if cfg == nil {
		return name, endpoint{}, errors.New("config is required")
	}

	var (
		ep  endpoint
		err error
	)
	switch name {
	case ProviderOpenRouter:
		ep, err = openRouterEndpoint(cfg.Providers.OpenRouter)
	case ProviderOpenAI:
		ep, err = openAIEndpoint(cfg.Providers.OpenAI)
	case ProviderCompatible:
		ep, err = compatibleEndpoint(cfg.Providers.Compatible, cfg.Generator.Model)
	default:
		err = fmt.Errorf("unsupported provider %q: supported providers are %s", name, strings.Join(Supported(), ", "))
	}
	if err != nil {
		return name, endpoint{}, err
	}
	return name, ep, nil
}

// New builds the client for cfg's generator: the selected provider's
// endpoint and credentials, plus the model, max_tokens, temperature and
// timeouts from the generator section.
func New(cfg *config.Config) (*Client, error) {
	name, ep, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	gen := cfg.Generator
	model := strings.TrimSpace(gen.Model)
	if model == "" {
		model = ep.defaultModel
	}
	httpClient, err := newHTTPClient(ep.proxy, max(cfg.GenerationTimeout(), cfg.ProbeTimeout()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	return &Client{
		provider:    name,
		url:         strings.TrimRight(strings.TrimSpace(ep.base), "/") + "/chat/completions",
		model:       model,
		maxTokens:   gen.MaxTokens,
		temperature: gen.Temperature,
		auth:        ep.auth,
		header:      ep.header,
		http:        httpClient,
	}, nil
}

// Status is what cfg's provider section amounts to, without contacting the
// provider.
type Status struct {
	Provider string
	Mode     string // auth mode; empty when Err is set
	Err      error  // why no client can be built
}

func (s Status) Configured() bool {
	return s.Err == nil
}

// CredentialStatus checks that cfg selects a known provider with usable
// credentials.
func CredentialStatus(cfg *config.Config) Status {
	name, ep, err := resolve(cfg)
	if err != nil {
		return Status{Provider: name, Err: err}
	}
	return Status{Provider: name, Mode: ep.auth.Mode()}
}

func withDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

// headerOf keeps only the non-empty values.
func headerOf(pairs ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(pairs); i += 2 {
		if v := strings.TrimSpace(pairs[i+1]); v != "" {
			h.Set(pairs[i], v)
		}
	}
	return h
}
