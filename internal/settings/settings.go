package settings

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

const (
	DefaultModelID  = "gpt-4o"
	DefaultFontSize = 14
	MinFontSize     = 10
	MaxFontSize     = 32
)

var (
	ErrUnknownModel    = errors.New("unknown model")
	ErrModelNotEnabled = errors.New("model is not enabled")
	ErrLastModel       = errors.New("cannot disable the last enabled model")
	ErrUnknownProvider = errors.New("unknown provider")
)

// Settings is the persisted application settings document.
type Settings struct {
	SelectedModelID string                     `json:"selected_model_id"`
	FontSize        int                        `json:"font_size"`
	EnabledModels   []string                   `json:"enabled_models"`
	AutoSave        bool                       `json:"auto_save"`
	APIKeys         map[Provider]string        `json:"api_keys,omitempty"`
	Endpoints       map[Provider]string        `json:"endpoints,omitempty"`
	FetchedModels   map[Provider][]ModelConfig `json:"fetched_models,omitempty"`
}

// Default returns the settings of a fresh install.
func Default() *Settings {
	return &Settings{
		SelectedModelID: DefaultModelID,
		FontSize:        DefaultFontSize,
		EnabledModels:   slices.Clone(defaultEnabled),
		AutoSave:        true,
		APIKeys:         map[Provider]string{},
		Endpoints:       map[Provider]string{},
		FetchedModels:   map[Provider][]ModelConfig{},
	}
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	out := *s
	out.EnabledModels = slices.Clone(s.EnabledModels)
	out.APIKeys = cloneMap(s.APIKeys)
	out.Endpoints = cloneMap(s.Endpoints)
	out.FetchedModels = make(map[Provider][]ModelConfig, len(s.FetchedModels))
	for p, models := range s.FetchedModels {
		out.FetchedModels[p] = slices.Clone(models)
	}
	return &out
}

func cloneMap(in map[Provider]string) map[Provider]string {
	out := make(map[Provider]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// normalize repairs a document read from disk: deduplicated enabled
// models, a valid selection and a clamped font size.
func (s *Settings) normalize() {
	if s.APIKeys == nil {
		s.APIKeys = map[Provider]string{}
	}
	if s.Endpoints == nil {
		s.Endpoints = map[Provider]string{}
	}
	if s.FetchedModels == nil {
		s.FetchedModels = map[Provider][]ModelConfig{}
	}
	s.SetFontSize(s.FontSize)

	enabled := make([]string, 0, len(s.EnabledModels))
	for _, id := range s.EnabledModels {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(enabled, id) {
			enabled = append(enabled, id)
		}
	}
	if len(enabled) == 0 {
		enabled = slices.Clone(defaultEnabled)
	}
	s.EnabledModels = enabled

	if !s.IsEnabled(s.SelectedModelID) {
		s.SelectedModelID = s.EnabledModels[0]
	}
}

// SetFontSize clamps size into the supported range. Zero means default.
func (s *Settings) SetFontSize(size int) {
	switch {
	case size == 0:
		size = DefaultFontSize
	case size < MinFontSize:
		size = MinFontSize
	case size > MaxFontSize:
		size = MaxFontSize
	}
	s.FontSize = size
}

func (s *Settings) IsEnabled(modelID string) bool {
	return slices.Contains(s.EnabledModels, modelID)
}

// SelectModel makes modelID the default for new sessions.
func (s *Settings) SelectModel(modelID string) error {
	if !s.IsEnabled(modelID) {
		return fmt.Errorf("%w: %s", ErrModelNotEnabled, modelID)
	}
	s.SelectedModelID = modelID
	return nil
}

// SetModelEnabled toggles a model. Disabling the selected model moves the
// selection to another enabled model in the same call; the last enabled
// model cannot be disabled.
func (s *Settings) SetModelEnabled(modelID string, enabled bool) error {
	if _, ok := s.Model(modelID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}

	if enabled {
		if !s.IsEnabled(modelID) {
			s.EnabledModels = append(s.EnabledModels, modelID)
		}
		return nil
	}

	idx := slices.Index(s.EnabledModels, modelID)
	if idx < 0 {
		return nil
	}
	if len(s.EnabledModels) == 1 {
		return ErrLastModel
	}
	s.EnabledModels = slices.Delete(s.EnabledModels, idx, idx+1)
	if s.SelectedModelID == modelID {
		s.SelectedModelID = s.EnabledModels[0]
	}
	return nil
}

func (s *Settings) SetAPIKey(p Provider, key string) error {
	if _, ok := defaultBaseURLs[p]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, p)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		delete(s.APIKeys, p)
		return nil
	}
	s.APIKeys[p] = key
	return nil
}

func (s *Settings) APIKey(p Provider) string {
	return s.APIKeys[p]
}

// SetEndpoint overrides a provider's base URL. An empty url restores the
// default.
func (s *Settings) SetEndpoint(p Provider, url string) error {
	if _, ok := defaultBaseURLs[p]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, p)
	}
	url = strings.TrimSuffix(strings.TrimSpace(url), "/")
	if url == "" {
		delete(s.Endpoints, p)
		return nil
	}
	s.Endpoints[p] = url
	return nil
}

// BaseURL returns the endpoint override for p or its default.
func (s *Settings) BaseURL(p Provider) string {
	if url := s.Endpoints[p]; url != "" {
		return url
	}
	return DefaultBaseURL(p)
}

// SetFetchedModels replaces the dynamically listed models of a provider.
func (s *Settings) SetFetchedModels(p Provider, models []ModelConfig) {
	s.FetchedModels[p] = slices.Clone(models)
}

// AvailableModels merges the built-in catalog with fetched models. A
// built-in entry wins over a fetched one with the same id. Enabled is
// filled from the enabled set.
func (s *Settings) AvailableModels() []ModelConfig {
	seen := make(map[string]bool, len(catalog))
	out := make([]ModelConfig, 0, len(catalog))
	for _, m := range catalog {
		seen[m.ID] = true
		out = append(out, m)
	}

	var fetched []ModelConfig
	for _, p := range Providers {
		for _, m := range s.FetchedModels[p] {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			fetched = append(fetched, m)
		}
	}
	sort.Slice(fetched, func(i, j int) bool {
		return fetched[i].ID < fetched[j].ID
	})
	out = append(out, fetched...)

	for i := range out {
		out[i].Enabled = s.IsEnabled(out[i].ID)
	}
	return out
}

// EnabledModelConfigs returns the available models that are enabled.
func (s *Settings) EnabledModelConfigs() []ModelConfig {
	var out []ModelConfig
	for _, m := range s.AvailableModels() {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// Model looks up a model by id among the available models.
func (s *Settings) Model(modelID string) (ModelConfig, bool) {
	for _, m := range s.AvailableModels() {
		if m.ID == modelID {
			return m, true
		}
	}
	return ModelConfig{}, false
}

// ProviderForModel resolves which provider serves modelID, falling back
// to the shape of the id for models missing from the catalog.
func (s *Settings) ProviderForModel(modelID string) (Provider, bool) {
	if m, ok := s.Model(modelID); ok {
		return m.Provider, true
	}
	return inferProvider(modelID)
}
