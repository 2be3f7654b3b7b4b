package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/gennadis/llmchat/internal/settings"
)

const (
	defaultDirName         = ".llmchat"
	configFileName         = "config.toml"
	defaultSettingsFile    = "settings.json"
	defaultDatabaseFile    = "sessions.db"
	defaultRequestTimeout  = 30 * time.Second
	defaultResourceTimeout = 120 * time.Second
	defaultSimulateDelay   = time.Second
)

// Environment variables read by Load.
const (
	EnvDataDir  = "LLMCHAT_DATA_DIR"
	EnvLogLevel = "LLMCHAT_LOG_LEVEL"
	EnvSimulate = "LLMCHAT_SIMULATE"
)

// providerKeyEnv maps providers to the variables that may carry their keys.
var providerKeyEnv = map[settings.Provider]string{
	settings.ProviderOpenAI:    "OPENAI_API_KEY",
	settings.ProviderAnthropic: "ANTHROPIC_API_KEY",
	settings.ProviderGoogle:    "GOOGLE_API_KEY",
}

// Config is the runtime configuration of the application.
type Config struct {
	DataDir      string `toml:"-"`
	SettingsFile string `toml:"settings_file"`
	DatabaseFile string `toml:"database_file"`
	LogLevel     string `toml:"log_level"`

	RequestTimeout    time.Duration `toml:"request_timeout"`
	ResourceTimeout   time.Duration `toml:"resource_timeout"`
	RequestsPerMinute int           `toml:"requests_per_minute"`

	// Simulate answers offline instead of calling providers.
	Simulate      bool          `toml:"simulate"`
	SimulateDelay time.Duration `toml:"simulate_delay"`

	// ProviderKeys holds keys found in the environment.
	ProviderKeys map[settings.Provider]string `toml:"-"`
}

func Default(dataDir string) *Config {
	return &Config{
		DataDir:         dataDir,
		LogLevel:        "info",
		RequestTimeout:  defaultRequestTimeout,
		ResourceTimeout: defaultResourceTimeout,
		SimulateDelay:   defaultSimulateDelay,
		ProviderKeys:    map[settings.Provider]string{},
	}
}

// Load builds the configuration from defaults, <data dir>/config.toml and
// the environment, in that order. Variables in envFiles are loaded into
// the environment first without overriding what is already set; missing
// files are skipped.
func Load(envFiles ...string) (*Config, error) {
	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	dataDir := os.Getenv(EnvDataDir)
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not determine home directory: %w", err)
		}
		dataDir = filepath.Join(home, defaultDirName)
	}

	cfg := Default(dataDir)
	path := filepath.Join(dataDir, configFileName)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.LogLevel = level
	}
	if simulate := os.Getenv(EnvSimulate); simulate != "" {
		on, err := strconv.ParseBool(simulate)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvSimulate, simulate, err)
		}
		c.Simulate = on
	}
	for p, name := range providerKeyEnv {
		if key := strings.TrimSpace(os.Getenv(name)); key != "" {
			c.ProviderKeys[p] = key
		}
	}
	return nil
}

// resolvePaths places relative file names inside the data directory.
func (c *Config) resolvePaths() {
	if c.SettingsFile == "" {
		c.SettingsFile = defaultSettingsFile
	}
	if c.DatabaseFile == "" {
		c.DatabaseFile = defaultDatabaseFile
	}
	if !filepath.IsAbs(c.SettingsFile) {
		c.SettingsFile = filepath.Join(c.DataDir, c.SettingsFile)
	}
	if !filepath.IsAbs(c.DatabaseFile) {
		c.DatabaseFile = filepath.Join(c.DataDir, c.DatabaseFile)
	}
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout))
	}
	if c.ResourceTimeout < c.RequestTimeout {
		errs = append(errs, fmt.Errorf("resource_timeout %s is shorter than request_timeout %s", c.ResourceTimeout, c.RequestTimeout))
	}
	if c.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("requests_per_minute must not be negative, got %d", c.RequestsPerMinute))
	}
	if c.SimulateDelay < 0 {
		errs = append(errs, fmt.Errorf("simulate_delay must not be negative, got %s", c.SimulateDelay))
	}
	return errors.Join(errs...)
}

// Level is the slog level named by LogLevel.
func (c *Config) Level() slog.Level {
	level, _ := ParseLevel(c.LogLevel)
	return level
}

func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}

// SeedKeys copies keys from the environment into s for providers that
// have none stored. It reports whether s changed.
func (c *Config) SeedKeys(s *settings.Settings) bool {
	changed := false
	for p, key := range c.ProviderKeys {
		if s.APIKey(p) != "" {
			continue
		}
		if err := s.SetAPIKey(p, key); err == nil {
			changed = true
		}
	}
	return changed
}
