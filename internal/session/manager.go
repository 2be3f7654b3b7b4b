// Package session owns the lifecycle of chat sessions: creation,
// selection, deletion, pruning of empty sessions and ordering.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/gennadis/llmchat/internal/chat"
)

var (
	ErrUnknownSession = errors.New("session is not managed")
	ErrEmptyTitle     = errors.New("session title is empty")
)

// Manager creates, selects, deletes and prunes sessions. The session list
// it exposes is always sorted by UpdatedAt, most recent first.
type Manager struct {
	state *State
	store Store
	now   func() time.Time

	onPersistError func(error)
	onChange       []func()

	// failures reported under the state lock, delivered by notify
	pending []error
}

func NewManager(state *State, store Store) *Manager {
	return &Manager{
		state: state,
		store: store,
		now:   time.Now,
	}
}

// OnPersistError registers a callback for non-fatal storage failures.
// In-memory state is never rolled back when one occurs. The callback runs
// outside the state lock, before the OnChange callbacks.
func (m *Manager) OnPersistError(fn func(error)) {
	m.onPersistError = fn
}

// OnChange registers a callback run after every mutation, outside the
// state lock.
func (m *Manager) OnChange(fn func()) {
	m.onChange = append(m.onChange, fn)
}

// Load attaches the manager to the store: fetches stored sessions, sweeps
// empty ones left by an abnormal exit and restores the active session.
func (m *Manager) Load(ctx context.Context) error {
	fetched, err := m.store.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}

	m.state.mu.Lock()
	m.state.sessions = fetched
	m.state.current = nil
	m.sortLocked()

	pruned := m.pruneAllLocked(ctx)

	changed := false
	for _, s := range m.state.sessions {
		if !s.Active {
			continue
		}
		if m.state.current == nil {
			m.state.current = s
			continue
		}
		s.Active = false
		changed = true
	}
	if pruned > 0 || changed {
		m.persistLocked(ctx)
	}
	count := len(m.state.sessions)
	m.state.mu.Unlock()

	slog.Debug("sessions loaded",
		slog.Int("count", count),
		slog.Int("pruned", pruned),
	)
	m.notify()
	return nil
}

// Sessions returns the managed sessions, most recently updated first.
// The slice is a copy; the sessions are live and must be read through
// View while other goroutines may mutate them.
func (m *Manager) Sessions() []*chat.Session {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	return slices.Clone(m.state.sessions)
}

// Current returns the selected session, or nil in the no-session state.
func (m *Manager) Current() *chat.Session {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	return m.state.current
}

// View runs fn with the state lock held, for consistent reads.
func (m *Manager) View(fn func(sessions []*chat.Session, current *chat.Session)) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	fn(m.state.sessions, m.state.current)
}

// CreateSession starts a new active session at the top of the list. An
// empty current session is pruned first. An empty modelID means the
// selected model from settings.
func (m *Manager) CreateSession(ctx context.Context, modelID string) *chat.Session {
	m.state.mu.Lock()
	m.pruneIfEmptyLocked(ctx, m.state.current)
	s := m.createLocked(ctx, modelID)
	m.persistLocked(ctx)
	m.state.mu.Unlock()

	slog.Debug("session created",
		slog.String("id", s.ID),
		slog.String("model", s.ModelID),
	)
	m.notify()
	return s
}

func (m *Manager) createLocked(ctx context.Context, modelID string) *chat.Session {
	if modelID == "" {
		modelID = m.state.settings.SelectedModelID
	}
	s := chat.NewSession(modelID, m.now())

	m.deactivateAllLocked()
	s.Active = true
	m.state.sessions = append([]*chat.Session{s}, m.state.sessions...)
	m.state.current = s
	m.sortLocked()

	if err := m.store.Insert(ctx, s); err != nil {
		m.reportLocked("insert session", err)
	}
	return s
}

// SelectSession makes target the current session, pruning the previous
// one if it never received a message.
func (m *Manager) SelectSession(ctx context.Context, target *chat.Session) error {
	m.state.mu.Lock()
	if !m.managedLocked(target) {
		m.state.mu.Unlock()
		return ErrUnknownSession
	}
	if m.state.current != target {
		m.pruneIfEmptyLocked(ctx, m.state.current)
	}
	m.deactivateAllLocked()
	target.Active = true
	m.state.current = target
	m.persistLocked(ctx)
	m.state.mu.Unlock()

	slog.Debug("session selected", slog.String("id", target.ID))
	m.notify()
	return nil
}

// DeleteSession removes s and its messages. Deleting the current session
// selects the next most recent one, or creates a fresh session when none
// remain.
func (m *Manager) DeleteSession(ctx context.Context, s *chat.Session) error {
	m.state.mu.Lock()
	if !m.managedLocked(s) {
		m.state.mu.Unlock()
		return ErrUnknownSession
	}
	wasCurrent := m.state.current == s
	m.removeLocked(ctx, s)

	if wasCurrent {
		if len(m.state.sessions) > 0 {
			next := m.state.sessions[0]
			m.deactivateAllLocked()
			next.Active = true
			m.state.current = next
		} else {
			m.createLocked(ctx, "")
		}
	}
	m.persistLocked(ctx)
	m.state.mu.Unlock()

	slog.Debug("session deleted",
		slog.String("id", s.ID),
		slog.String("title", s.Title),
	)
	m.notify()
	return nil
}

// PruneIfEmpty silently deletes s when it has no messages. It reports
// whether s was deleted.
func (m *Manager) PruneIfEmpty(ctx context.Context, s *chat.Session) bool {
	m.state.mu.Lock()
	pruned := m.pruneIfEmptyLocked(ctx, s)
	if pruned {
		m.persistLocked(ctx)
	}
	m.state.mu.Unlock()

	if pruned {
		m.notify()
	}
	return pruned
}

func (m *Manager) pruneIfEmptyLocked(ctx context.Context, s *chat.Session) bool {
	if s == nil || !s.IsEmpty() || !m.managedLocked(s) {
		return false
	}
	m.removeLocked(ctx, s)
	slog.Debug("empty session pruned", slog.String("id", s.ID))
	return true
}

// PruneAllEmptySessions deletes every session without messages and
// returns how many were removed.
func (m *Manager) PruneAllEmptySessions(ctx context.Context) int {
	m.state.mu.Lock()
	pruned := m.pruneAllLocked(ctx)
	if pruned > 0 {
		m.persistLocked(ctx)
	}
	m.state.mu.Unlock()

	if pruned > 0 {
		m.notify()
	}
	return pruned
}

func (m *Manager) pruneAllLocked(ctx context.Context) int {
	var empty []*chat.Session
	for _, s := range m.state.sessions {
		if s.IsEmpty() {
			empty = append(empty, s)
		}
	}
	for _, s := range empty {
		m.removeLocked(ctx, s)
	}
	return len(empty)
}

// PrepareNewChat enters the no-session state, pruning the current
// session if it is empty. The next submit creates a session.
func (m *Manager) PrepareNewChat(ctx context.Context) {
	m.state.mu.Lock()
	m.pruneIfEmptyLocked(ctx, m.state.current)
	m.deactivateAllLocked()
	m.state.current = nil
	m.persistLocked(ctx)
	m.state.mu.Unlock()

	m.notify()
}

// UpdateTimestamp bumps UpdatedAt of s and re-sorts the list.
func (m *Manager) UpdateTimestamp(ctx context.Context, s *chat.Session) {
	// The callback cannot fail.
	_ = m.Update(ctx, s, func(*chat.Session) error { return nil })
}

// Rename sets an explicit title.
func (m *Manager) Rename(ctx context.Context, s *chat.Session, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	return m.Update(ctx, s, func(s *chat.Session) error {
		s.Title = title
		return nil
	})
}

// Update applies fn to s under the state lock. When fn succeeds the
// timestamp is bumped, order re-established and the change persisted.
// A session no longer managed (deleted meanwhile) is still mutated but
// not persisted.
func (m *Manager) Update(ctx context.Context, s *chat.Session, fn func(s *chat.Session) error) error {
	return m.apply(ctx, s, fn, true)
}

// Apply is Update without the timestamp bump, for changes that leave the
// message list and title alone.
func (m *Manager) Apply(ctx context.Context, s *chat.Session, fn func(s *chat.Session) error) error {
	return m.apply(ctx, s, fn, false)
}

func (m *Manager) apply(ctx context.Context, s *chat.Session, fn func(s *chat.Session) error, touch bool) error {
	m.state.mu.Lock()
	if err := fn(s); err != nil {
		m.state.mu.Unlock()
		return err
	}
	if touch {
		s.Touch(m.now())
	}
	if m.managedLocked(s) {
		m.sortLocked()
		m.persistLocked(ctx)
	} else {
		slog.Debug("update applied to detached session", slog.String("id", s.ID))
	}
	m.state.mu.Unlock()

	m.notify()
	return nil
}

func (m *Manager) removeLocked(ctx context.Context, s *chat.Session) {
	idx := slices.Index(m.state.sessions, s)
	if idx < 0 {
		return
	}
	m.state.sessions = slices.Delete(m.state.sessions, idx, idx+1)
	if m.state.current == s {
		m.state.current = nil
	}
	s.Active = false
	if err := m.store.Delete(ctx, s); err != nil {
		m.reportLocked("delete session", err)
	}
}

func (m *Manager) managedLocked(s *chat.Session) bool {
	return s != nil && slices.Contains(m.state.sessions, s)
}

func (m *Manager) deactivateAllLocked() {
	for _, s := range m.state.sessions {
		s.Active = false
	}
}

// sortLocked orders sessions by UpdatedAt descending. The sort is stable
// so a freshly inserted session stays ahead of one with an equal stamp.
func (m *Manager) sortLocked() {
	sort.SliceStable(m.state.sessions, func(i, j int) bool {
		return m.state.sessions[i].UpdatedAt.After(m.state.sessions[j].UpdatedAt)
	})
}

func (m *Manager) persistLocked(ctx context.Context) {
	if err := m.store.Save(ctx); err != nil {
		m.reportLocked("save sessions", err)
	}
}

func (m *Manager) reportLocked(op string, err error) {
	slog.Warn("Failed to persist sessions", "error", err, slog.String("op", op))
	m.pending = append(m.pending, fmt.Errorf("%s: %w", op, err))
}

// notify delivers pending persistence failures and change callbacks. It
// must be called without the state lock.
func (m *Manager) notify() {
	m.state.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.state.mu.Unlock()

	if m.onPersistError != nil {
		for _, err := range pending {
			m.onPersistError(err)
		}
	}
	for _, fn := range m.onChange {
		fn()
	}
}
