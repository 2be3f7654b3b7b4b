package settings

// fetchedMaxTokens is assumed for models learned from a provider listing.
const fetchedMaxTokens = 4096

// ModelConfig describes a model the user can chat with.
type ModelConfig struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	DisplayName    string   `json:"display_name"`
	Provider       Provider `json:"provider"`
	MaxTokens      int      `json:"max_tokens"`
	SupportsImages bool     `json:"supports_images"`
	SupportsFiles  bool     `json:"supports_files"`
	Enabled        bool     `json:"enabled"`
}

// catalog is the built-in model list.
var catalog = []ModelConfig{
	{ID: "gpt-4o", Name: "gpt-4o", DisplayName: "GPT-4o", Provider: ProviderOpenAI, MaxTokens: 16384, SupportsImages: true, SupportsFiles: true},
	{ID: "gpt-4o-mini", Name: "gpt-4o-mini", DisplayName: "GPT-4o mini", Provider: ProviderOpenAI, MaxTokens: 16384, SupportsImages: true, SupportsFiles: true},
	{ID: "gpt-4", Name: "gpt-4", DisplayName: "GPT-4", Provider: ProviderOpenAI, MaxTokens: 8192},
	{ID: "claude-3-5-sonnet-latest", Name: "claude-3-5-sonnet-latest", DisplayName: "Claude 3.5 Sonnet", Provider: ProviderAnthropic, MaxTokens: 8192, SupportsImages: true, SupportsFiles: true},
	{ID: "claude-3-opus", Name: "claude-3-opus-20240229", DisplayName: "Claude 3 Opus", Provider: ProviderAnthropic, MaxTokens: 4096, SupportsImages: true, SupportsFiles: true},
	{ID: "claude-3-haiku", Name: "claude-3-haiku-20240307", DisplayName: "Claude 3 Haiku", Provider: ProviderAnthropic, MaxTokens: 4096, SupportsImages: true},
	{ID: "gemini-1.5-pro", Name: "gemini-1.5-pro", DisplayName: "Gemini 1.5 Pro", Provider: ProviderGoogle, MaxTokens: 8192, SupportsImages: true, SupportsFiles: true},
	{ID: "gemini-1.5-flash", Name: "gemini-1.5-flash", DisplayName: "Gemini 1.5 Flash", Provider: ProviderGoogle, MaxTokens: 8192, SupportsImages: true},
}

// defaultEnabled are the models a fresh install starts with.
var defaultEnabled = []string{"gpt-4o", "gpt-4o-mini", "claude-3-5-sonnet-latest", "gemini-1.5-pro"}

// Catalog returns a copy of the built-in models.
func Catalog() []ModelConfig {
	out := make([]ModelConfig, len(catalog))
	copy(out, catalog)
	return out
}

// FromRemote builds a config for a model id reported by a provider.
func FromRemote(p Provider, id string) ModelConfig {
	return ModelConfig{
		ID:          id,
		Name:        id,
		DisplayName: id,
		Provider:    p,
		MaxTokens:   fetchedMaxTokens,
	}
}
