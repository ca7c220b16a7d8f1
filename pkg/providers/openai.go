package providers

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dotsetgreg/dotfuzz/pkg/config"
)

const (
	defaultOpenAIAPIBase = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-5-mini"
)

// openAIEndpoint accepts exactly one credential: a Platform API key or an
// OAuth token file that must already exist.
func openAIEndpoint(c config.OpenAIConfig) (endpoint, error) {
	key := strings.TrimSpace(c.APIKey)
	tokenFile := strings.TrimSpace(c.OAuthTokenFile)

	var auth AuthStrategy
	switch {
	case key != "" && tokenFile != "":
		return endpoint{}, errors.New("multiple OpenAI credential sources configured (providers.openai.api_key, providers.openai.oauth_token_file); set exactly one")
	case key != "":
		auth = NewAPIKeyAuth(NewStaticTokenSource(key, "providers.openai.api_key"))
	case tokenFile != "":
		resolved := expandHome(tokenFile)
		if _, err := os.Stat(resolved); err != nil {
			return endpoint{}, fmt.Errorf("OpenAI OAuth token file not accessible at %s: %w", resolved, err)
		}
		auth = NewTokenFileAuth(resolved)
	default:
		return endpoint{}, errors.New("OpenAI credentials are required (set providers.openai.api_key or providers.openai.oauth_token_file)")
	}

	return endpoint{
		base:         withDefault(c.APIBase, defaultOpenAIAPIBase),
		defaultModel: defaultOpenAIModel,
		proxy:        c.Proxy,
		auth:         auth,
		header:       headerOf("OpenAI-Organization", c.Organization, "OpenAI-Project", c.Project),
	}, nil
}
