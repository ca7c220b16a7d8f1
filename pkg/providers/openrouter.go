package providers

import (
	"errors"
	"strings"

	"github.com/dotsetgreg/dotfuzz/pkg/config"
)

const (
	defaultOpenRouterAPIBase = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel   = "x-ai/grok-4.1-fast"
)

// OpenRouter attributes traffic by these headers on its activity page.
const (
	openRouterReferer = "https://github.com/dotsetgreg/dotfuzz"
	openRouterTitle   = "dotfuzz"
)

func openRouterEndpoint(c config.OpenRouterConfig) (endpoint, error) {
	key := strings.TrimSpace(c.APIKey)
	if key == "" {
		return endpoint{}, errors.New("OpenRouter API key is required (set providers.openrouter.api_key or DOTFUZZ_PROVIDERS_OPENROUTER_API_KEY)")
	}
	return endpoint{
		base:         withDefault(c.APIBase, defaultOpenRouterAPIBase),
		defaultModel: defaultOpenRouterModel,
		proxy:        c.Proxy,
		auth:         NewAPIKeyAuth(NewStaticTokenSource(key, "providers.openrouter.api_key")),
		header:       headerOf("HTTP-Referer", openRouterReferer, "X-Title", openRouterTitle),
	}, nil
}
