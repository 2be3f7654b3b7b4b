package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Store reads and writes the settings document.
type Store struct {
	path string
}

// NewStore creates a settings store backed by the JSON file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the settings. A missing or unreadable file yields defaults;
// it is never an error for the caller.
func (s *Store) Load() *Settings {
	cfg, err := s.Read()
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("settings file absent, using defaults", slog.String("path", s.path))
		return Default()
	}
	if err != nil {
		slog.Warn("Failed to load settings, using defaults", "error", err, slog.String("path", s.path))
		return Default()
	}
	return cfg
}

// Read is Load without the fallback: it fails when the file is missing
// or does not parse.
func (s *Store) Read() (*Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	cfg.normalize()

	slog.Debug("loaded settings",
		slog.String("path", s.path),
		slog.String("selected_model", cfg.SelectedModelID),
		slog.Int("enabled_models", len(cfg.EnabledModels)),
	)
	return cfg, nil
}

// Save writes the settings atomically, readable only by the owner since
// the document holds API keys.
func (s *Store) Save(cfg *Settings) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := writeFileAtomic(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	slog.Debug("saved settings", slog.String("path", s.path))
	return nil
}

// writeFileAtomic writes to a temp file in the target directory, syncs it
// and renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	ok := false
	defer func() {
		if !ok {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	ok = true
	return nil
}
