package providers

import "strings"

func augmentProviderError(providerName, message string) string {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return msg
	}

	lower := strings.ToLower(msg)
	switch providerName {
	case ProviderOpenAI:
		if strings.Contains(lower, "incorrect api key provided") {
			return msg + " Hint: provider openai expects a Platform API key in providers.openai.api_key."
		}
	case ProviderOpenRouter:
		if strings.Contains(lower, "insufficient credits") || strings.Contains(lower, "requires more credits") {
			return msg + " Hint: the OpenRouter account is out of credits; the fuzzer will keep falling back to the default command."
		}
	}

	if strings.Contains(lower, "model") && (strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist")) {
		return msg + " Hint: check generator.model against the models this endpoint serves."
	}
	return msg
}
