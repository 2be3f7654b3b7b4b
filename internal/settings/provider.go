package settings

import "strings"

type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
)

// Providers lists every supported provider in display order.
var Providers = []Provider{ProviderOpenAI, ProviderAnthropic, ProviderGoogle}

var defaultBaseURLs = map[Provider]string{
	ProviderOpenAI:    "https://api.openai.com/v1",
	ProviderAnthropic: "https://api.anthropic.com",
	ProviderGoogle:    "https://generativelanguage.googleapis.com/v1beta/openai",
}

// DefaultBaseURL returns the built-in endpoint of a provider.
func DefaultBaseURL(p Provider) string {
	return defaultBaseURLs[p]
}

// ParseProvider accepts a provider name in any case.
func ParseProvider(name string) (Provider, bool) {
	p := Provider(strings.ToLower(strings.TrimSpace(name)))
	_, ok := defaultBaseURLs[p]
	return p, ok
}

// inferProvider guesses the provider from a model id alone.
func inferProvider(modelID string) (Provider, bool) {
	id := strings.TrimPrefix(strings.ToLower(modelID), "models/")
	switch {
	case strings.HasPrefix(id, "claude"):
		return ProviderAnthropic, true
	case strings.HasPrefix(id, "gemini"), strings.HasPrefix(id, "gemma"):
		return ProviderGoogle, true
	case strings.HasPrefix(id, "gpt"), strings.HasPrefix(id, "chatgpt"),
		strings.HasPrefix(id, "o1"), strings.HasPrefix(id, "o3"), strings.HasPrefix(id, "o4"):
		return ProviderOpenAI, true
	}
	return "", false
}
