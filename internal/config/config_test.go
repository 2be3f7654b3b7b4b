package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gennadis/llmchat/internal/settings"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{EnvLogLevel, EnvSimulate, "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GOOGLE_API_KEY"} {
		// Setenv restores the variable after the test; unset it so a
		// .env file may provide it.
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "settings.json"), cfg.SettingsFile)
	assert.Equal(t, filepath.Join(dir, "sessions.db"), cfg.DatabaseFile)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 120*time.Second, cfg.ResourceTimeout)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
	assert.False(t, cfg.Simulate)
	assert.Empty(t, cfg.ProviderKeys)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)
	doc := `
log_level = "warn"
database_file = "/var/lib/llmchat/chat.db"
request_timeout = "10s"
resource_timeout = "1m"
requests_per_minute = 20
simulate_delay = "250ms"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(doc), 0600))

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LLMCHAT_SIMULATE=true\n"), 0600))
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv("ANTHROPIC_API_KEY", " sk-ant-env ")

	cfg, err := Load(envFile, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, "/var/lib/llmchat/chat.db", cfg.DatabaseFile)
	assert.Equal(t, filepath.Join(dir, "settings.json"), cfg.SettingsFile)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, time.Minute, cfg.ResourceTimeout)
	assert.Equal(t, 20, cfg.RequestsPerMinute)
	assert.Equal(t, 250*time.Millisecond, cfg.SimulateDelay)
	assert.True(t, cfg.Simulate)
	assert.Equal(t, map[settings.Provider]string{settings.ProviderAnthropic: "sk-ant-env"}, cfg.ProviderKeys)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)
	doc := `
log_level = "chatty"
request_timeout = "0s"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(doc), 0600))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log level")
	assert.Contains(t, err.Error(), "request_timeout")
}

func TestLoadRejectsBadSimulateFlag(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDataDir, t.TempDir())
	t.Setenv(EnvSimulate, "maybe")

	_, err := Load()
	assert.ErrorContains(t, err, EnvSimulate)
}

func TestSeedKeys(t *testing.T) {
	cfg := Default(t.TempDir())
	cfg.ProviderKeys[settings.ProviderOpenAI] = "sk-env-openai"
	cfg.ProviderKeys[settings.ProviderGoogle] = "env-google"

	s := settings.Default()
	require.NoError(t, s.SetAPIKey(settings.ProviderGoogle, "stored-google"))

	assert.True(t, cfg.SeedKeys(s))
	assert.Equal(t, "sk-env-openai", s.APIKey(settings.ProviderOpenAI))
	assert.Equal(t, "stored-google", s.APIKey(settings.ProviderGoogle))

	assert.False(t, cfg.SeedKeys(s))
}
