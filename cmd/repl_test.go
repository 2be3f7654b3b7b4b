package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gennadis/llmchat/internal/chat"
	"github.com/gennadis/llmchat/internal/client"
	"github.com/gennadis/llmchat/internal/conversation"
	"github.com/gennadis/llmchat/internal/session"
	"github.com/gennadis/llmchat/internal/settings"
)

type nopStore struct{}

func (nopStore) Insert(context.Context, *chat.Session) error       { return nil }
func (nopStore) Delete(context.Context, *chat.Session) error       { return nil }
func (nopStore) FetchAll(context.Context) ([]*chat.Session, error) { return nil, nil }
func (nopStore) Save(context.Context) error                        { return nil }

type fakeKeys struct{}

func (fakeKeys) TestAPIKey(_ context.Context, _, apiKey string) client.KeyCheck {
	if apiKey == "" {
		return client.KeyCheck{Err: client.ErrMissingAPIKey}
	}
	return client.KeyCheck{Valid: true, Models: []client.Model{{ID: "gpt-4o"}}}
}

func newTestREPL(t *testing.T, input string) (*repl, *bytes.Buffer) {
	t.Helper()
	state := session.NewState(settings.Default())
	manager := session.NewManager(state, nopStore{})
	store := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"))
	chatClient := client.NewChatClient(client.NewClient())
	out := &bytes.Buffer{}
	return &repl{
		state:         state,
		manager:       manager,
		orchestrator:  conversation.NewOrchestrator(manager, &conversation.Simulated{}),
		refresher:     conversation.NewModelRefresher(chatClient, state, store),
		keys:          fakeKeys{},
		settingsStore: store,
		in:            strings.NewReader(input),
		out:           out,
	}, out
}

func TestREPLConversation(t *testing.T) {
	r, out := newTestREPL(t, "hello there\n/rename Greetings\n/new\nsecond chat\n/list\n/switch 2\n/quit\nignored\n")

	require.NoError(t, r.run(context.Background()))

	sessions := r.manager.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, "second chat", sessions[0].Title)
	assert.Equal(t, "Greetings", sessions[1].Title)
	assert.Same(t, sessions[1], r.manager.Current())

	text := out.String()
	assert.Contains(t, strings.ToLower(text), "simulat")
	assert.Contains(t, text, "== Greetings")
	assert.Contains(t, text, "user: hello there")
	assert.NotContains(t, text, "ignored")
}

func TestREPLCommands(t *testing.T) {
	r, out := newTestREPL(t, "/switch 3\n/regen\n/model claude-3-haiku\n/test openai\n/test mistral\n/bogus\n")

	require.NoError(t, r.run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "Error: no chat number 3")
	assert.Contains(t, text, "Error: no chat is open")
	assert.Contains(t, text, "New chats will use claude-3-haiku.")
	assert.Contains(t, text, "openai key  is not usable")
	assert.Contains(t, text, `unknown provider "mistral"`)
	assert.Contains(t, text, "unknown command /bogus")

	assert.Equal(t, "claude-3-haiku", r.state.SelectedModelID())
	assert.Equal(t, "claude-3-haiku", r.settingsStore.Load().SelectedModelID)
}
