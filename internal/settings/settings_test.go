package settings

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSelectionIsEnabled(t *testing.T) {
	s := Default()
	assert.True(t, s.IsEnabled(s.SelectedModelID))
	assert.True(t, s.AutoSave)
	assert.Equal(t, DefaultFontSize, s.FontSize)
}

func TestDisablingSelectedModelReassignsSelection(t *testing.T) {
	s := Default()
	require.NoError(t, s.SelectModel("gpt-4o-mini"))

	require.NoError(t, s.SetModelEnabled("gpt-4o-mini", false))

	assert.False(t, s.IsEnabled("gpt-4o-mini"))
	assert.NotEqual(t, "gpt-4o-mini", s.SelectedModelID)
	assert.True(t, s.IsEnabled(s.SelectedModelID))
}

func TestDisablingLastModelIsRejected(t *testing.T) {
	s := Default()
	s.EnabledModels = []string{"gpt-4"}
	s.SelectedModelID = "gpt-4"

	assert.ErrorIs(t, s.SetModelEnabled("gpt-4", false), ErrLastModel)
	assert.Equal(t, []string{"gpt-4"}, s.EnabledModels)
	assert.Equal(t, "gpt-4", s.SelectedModelID)
}

func TestSelectModelRequiresEnabled(t *testing.T) {
	s := Default()
	assert.ErrorIs(t, s.SelectModel("claude-3-opus"), ErrModelNotEnabled)

	require.NoError(t, s.SetModelEnabled("claude-3-opus", true))
	require.NoError(t, s.SelectModel("claude-3-opus"))
	assert.Equal(t, "claude-3-opus", s.SelectedModelID)

	assert.ErrorIs(t, s.SetModelEnabled("no-such-model", true), ErrUnknownModel)
}

func TestAvailableModelsMergesFetched(t *testing.T) {
	s := Default()
	s.SetFetchedModels(ProviderOpenAI, []ModelConfig{
		FromRemote(ProviderOpenAI, "gpt-4o"), // duplicates the catalog entry
		FromRemote(ProviderOpenAI, "o1-mini"),
	})
	s.SetFetchedModels(ProviderGoogle, []ModelConfig{FromRemote(ProviderGoogle, "gemini-2.0-flash")})
	require.NoError(t, s.SetModelEnabled("o1-mini", true))

	models := s.AvailableModels()
	count := map[string]int{}
	for _, m := range models {
		count[m.ID]++
	}
	assert.Equal(t, 1, count["gpt-4o"])
	assert.Equal(t, len(Catalog())+2, len(models))

	m, ok := s.Model("gpt-4o")
	require.True(t, ok)
	assert.Equal(t, "GPT-4o", m.DisplayName, "catalog entry wins")

	m, ok = s.Model("o1-mini")
	require.True(t, ok)
	assert.True(t, m.Enabled)
	assert.Equal(t, ProviderOpenAI, m.Provider)

	var enabledIDs []string
	for _, m := range s.EnabledModelConfigs() {
		enabledIDs = append(enabledIDs, m.ID)
	}
	assert.Contains(t, enabledIDs, "o1-mini")
	assert.NotContains(t, enabledIDs, "gemini-2.0-flash")
}

func TestProviderForModel(t *testing.T) {
	s := Default()
	tests := map[string]Provider{
		"claude-3-opus":          ProviderAnthropic,
		"gpt-4":                  ProviderOpenAI,
		"gemini-1.5-pro":         ProviderGoogle,
		"claude-3-7-sonnet-2025": ProviderAnthropic,
		"models/gemini-exp":      ProviderGoogle,
		"o3-mini":                ProviderOpenAI,
	}
	for id, want := range tests {
		got, ok := s.ProviderForModel(id)
		assert.True(t, ok, id)
		assert.Equal(t, want, got, id)
	}

	_, ok := s.ProviderForModel("llama-3-70b")
	assert.False(t, ok)
}

func TestEndpointsAndKeys(t *testing.T) {
	s := Default()
	assert.Equal(t, "https://api.openai.com/v1", s.BaseURL(ProviderOpenAI))

	require.NoError(t, s.SetEndpoint(ProviderOpenAI, " http://localhost:8080/v1/ "))
	assert.Equal(t, "http://localhost:8080/v1", s.BaseURL(ProviderOpenAI))
	require.NoError(t, s.SetEndpoint(ProviderOpenAI, ""))
	assert.Equal(t, DefaultBaseURL(ProviderOpenAI), s.BaseURL(ProviderOpenAI))

	require.NoError(t, s.SetAPIKey(ProviderAnthropic, "  sk-ant-key  "))
	assert.Equal(t, "sk-ant-key", s.APIKey(ProviderAnthropic))
	require.NoError(t, s.SetAPIKey(ProviderAnthropic, ""))
	assert.Empty(t, s.APIKey(ProviderAnthropic))

	assert.ErrorIs(t, s.SetAPIKey("mistral", "k"), ErrUnknownProvider)
	assert.ErrorIs(t, s.SetEndpoint("mistral", "http://x"), ErrUnknownProvider)
}

func TestFontSizeClamp(t *testing.T) {
	s := Default()
	s.SetFontSize(2)
	assert.Equal(t, MinFontSize, s.FontSize)
	s.SetFontSize(99)
	assert.Equal(t, MaxFontSize, s.FontSize)
	s.SetFontSize(18)
	assert.Equal(t, 18, s.FontSize)
}

func TestCloneIsDeep(t *testing.T) {
	s := Default()
	require.NoError(t, s.SetAPIKey(ProviderOpenAI, "sk-original"))
	c := s.Clone()

	require.NoError(t, c.SetAPIKey(ProviderOpenAI, "sk-changed"))
	c.EnabledModels[0] = "changed"

	assert.Equal(t, "sk-original", s.APIKey(ProviderOpenAI))
	assert.NotEqual(t, "changed", s.EnabledModels[0])
}

func TestStoreMissingFileUsesDefaults(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "settings.json"))
	assert.Equal(t, Default(), store.Load())
}

func TestStoreCorruptFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	assert.Equal(t, Default(), NewStore(path).Load())
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	store := NewStore(path)

	s := Default()
	require.NoError(t, s.SetAPIKey(ProviderOpenAI, "sk-abc"))
	require.NoError(t, s.SetEndpoint(ProviderGoogle, "http://localhost:9000"))
	s.SetFetchedModels(ProviderOpenAI, []ModelConfig{FromRemote(ProviderOpenAI, "gpt-4.1")})
	require.NoError(t, s.SetModelEnabled("gpt-4.1", true))
	require.NoError(t, s.SelectModel("gpt-4.1"))
	require.NoError(t, store.Save(s))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := store.Load()
	assert.Equal(t, s, loaded)
}

func TestStoreLoadRepairsSelection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	doc := `{"selected_model_id": "gone", "enabled_models": ["gpt-4", "gpt-4", " "], "font_size": 3}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))

	s := NewStore(path).Load()
	assert.Equal(t, []string{"gpt-4"}, s.EnabledModels)
	assert.Equal(t, "gpt-4", s.SelectedModelID)
	assert.Equal(t, MinFontSize, s.FontSize)
	assert.NotNil(t, s.APIKeys)
}

func TestWatcherReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store := NewStore(path)

	var (
		mu     sync.Mutex
		latest *Settings
	)
	w, err := NewWatcher(store, func(s *Settings) {
		mu.Lock()
		defer mu.Unlock()
		latest = s
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	wg := w.Run(ctx)
	defer func() {
		cancel()
		wg.Wait()
	}()

	s := Default()
	s.SetFontSize(20)
	require.NoError(t, store.Save(s))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return latest != nil && latest.FontSize == 20
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStoreReadReportsProblems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store := NewStore(path)

	_, err := store.Read()
	assert.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, os.WriteFile(path, []byte(`{"api_keys": {`), 0600))
	_, err = store.Read()
	assert.ErrorContains(t, err, "failed to parse settings")
}

func TestWatcherKeepsSettingsOnBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store := NewStore(path)
	s := Default()
	require.NoError(t, s.SetAPIKey(ProviderOpenAI, "sk-live"))
	require.NoError(t, store.Save(s))

	var (
		mu       sync.Mutex
		received []*Settings
	)
	w, err := NewWatcher(store, func(s *Settings) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, s)
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	wg := w.Run(ctx)
	defer func() {
		cancel()
		wg.Wait()
	}()

	require.NoError(t, os.WriteFile(path, []byte(`{"api_keys": {"openai": "sk-li`), 0600))
	time.Sleep(5 * settleInterval)

	s.SetFontSize(20)
	require.NoError(t, store.Save(s))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) > 0 && received[len(received)-1].FontSize == 20
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, cfg := range received {
		assert.Equal(t, "sk-live", cfg.APIKey(ProviderOpenAI))
	}
}
