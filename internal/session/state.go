package session

import (
	"sync"

	"github.com/gennadis/llmchat/internal/chat"
	"github.com/gennadis/llmchat/internal/settings"
)

// State is the application state shared by the lifecycle manager and the
// orchestrator. Its mutex serializes every mutation of sessions, messages
// and settings.
type State struct {
	mu       sync.Mutex
	settings *settings.Settings
	current  *chat.Session
	sessions []*chat.Session
}

func NewState(cfg *settings.Settings) *State {
	if cfg == nil {
		cfg = settings.Default()
	}
	return &State{
		settings: cfg,
		sessions: []*chat.Session{},
	}
}

// Settings returns a copy of the current settings.
func (s *State) Settings() *settings.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Clone()
}

// SelectedModelID is the model new sessions start with.
func (s *State) SelectedModelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.SelectedModelID
}

// UpdateSettings applies fn to the live settings. When fn fails the
// settings are left untouched.
func (s *State) UpdateSettings(fn func(cfg *settings.Settings) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft := s.settings.Clone()
	if err := fn(draft); err != nil {
		return err
	}
	s.settings = draft
	return nil
}

// ReplaceSettings swaps in settings loaded from elsewhere.
func (s *State) ReplaceSettings(cfg *settings.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = cfg
}
