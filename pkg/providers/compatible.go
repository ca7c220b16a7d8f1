package providers

import (
	"errors"
	"strings"

	"github.com/dotsetgreg/dotfuzz/pkg/config"
)

// compatibleEndpoint has no built-in endpoint or model; both come from config.
func compatibleEndpoint(c config.CompatibleConfig, model string) (endpoint, error) {
	if strings.TrimSpace(c.APIBase) == "" {
		return endpoint{}, errors.New("compatible provider needs providers.compatible.api_base (or DOTFUZZ_PROVIDERS_COMPATIBLE_API_BASE)")
	}
	key := strings.TrimSpace(c.APIKey)
	if key == "" {
		return endpoint{}, errors.New("compatible provider needs providers.compatible.api_key (or DOTFUZZ_PROVIDERS_COMPATIBLE_API_KEY)")
	}
	if strings.TrimSpace(model) == "" {
		return endpoint{}, errors.New("compatible provider needs generator.model")
	}
	return endpoint{
		base:  c.APIBase,
		proxy: c.Proxy,
		auth:  NewAPIKeyAuth(NewStaticTokenSource(key, "providers.compatible.api_key")),
	}, nil
}
