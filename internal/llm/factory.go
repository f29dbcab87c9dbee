package llm

import (
	"fmt"
	"net/http"
	"strings"
)

// ProviderSettings carries the resolved configuration for one provider. The
// caller supplies an http.Client that already injects credentials; this
// package never sees raw secrets.
type ProviderSettings struct {
	Name    string
	Kind    ProviderKind
	Model   string
	BaseURL string
}

// NewProvider creates a provider from settings. The httpClient handles
// authentication and may be nil for providers reachable without it.
func NewProvider(settings ProviderSettings, httpClient *http.Client) (Provider, error) {
	switch settings.Kind {
	case KindAnthropic:
		return NewAnthropicProvider(settings.Name, settings.Model, settings.BaseURL, httpClient), nil
	case KindOpenAI:
		return NewOpenAIProvider(settings.Name, settings.Model, settings.BaseURL, httpClient), nil
	case KindGemini:
		return NewGeminiProvider(settings.Name, settings.Model, httpClient), nil
	case KindOpenAICompat:
		if settings.BaseURL == "" {
			return nil, fmt.Errorf("provider %q requires a base URL", settings.Name)
		}
		return NewOpenAICompatProvider(settings.Name, settings.Model, settings.BaseURL, httpClient), nil
	default:
		return nil, fmt.Errorf("unknown provider kind: %s", settings.Kind)
	}
}

// ParseProviderModel parses "provider" or "provider:model" from a flag value.
func ParseProviderModel(s string) (provider, model string, err error) {
	provider, model, _ = strings.Cut(s, ":")
	provider = strings.TrimSpace(provider)
	model = strings.TrimSpace(model)
	if provider == "" {
		return "", "", fmt.Errorf("invalid provider format: %q", s)
	}
	return provider, model, nil
}
