package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "sk-test-abcdefghijklmnopqrstuvwxyz"

func newTestChatClient() *ChatClient {
	return NewChatClient(NewClient())
}

func TestSendChatRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer "+testKey, r.Header.Get("Authorization"))

		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Equal(t, "gpt-4", raw["model"])
		assert.EqualValues(t, 256, raw["max_tokens"])
		assert.NotContains(t, raw, "temperature")
		assert.NotContains(t, raw, "stream")

		io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hi!"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7}
		}`)
	}))
	defer server.Close()

	maxTokens := 256
	resp, err := newTestChatClient().SendChatRequest(context.Background(), server.URL+"/v1/", testKey, ChatRequest{
		Model:     "gpt-4",
		Messages:  []ChatMessage{{Role: RoleUser, Content: "hello"}},
		MaxTokens: &maxTokens,
	})
	require.NoError(t, err)
	assert.Equal(t, "hi!", resp.Content())
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestSendChatRequestMissingKeyMakesNoCall(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	c := newTestChatClient()
	_, err := c.SendChatRequest(context.Background(), server.URL, "", ChatRequest{Model: "gpt-4"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = c.FetchModels(context.Background(), server.URL, "   ")
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	assert.Zero(t, calls.Load())
}

func TestSendChatRequestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		check  func(t *testing.T, err error)
	}{
		{http.StatusUnauthorized, func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrUnauthorized) }},
		{http.StatusTooManyRequests, func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrRateLimited) }},
		{http.StatusForbidden, func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrQuotaExceeded) }},
		{http.StatusBadGateway, func(t *testing.T, err error) {
			var serverErr *ServerError
			require.True(t, errors.As(err, &serverErr))
			assert.Equal(t, http.StatusBadGateway, serverErr.Code)
			assert.Equal(t, "upstream exploded", serverErr.Detail)
		}},
		{http.StatusBadRequest, func(t *testing.T, err error) {
			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, http.StatusBadRequest, statusErr.Code)
		}},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, `{"error": {"message": "upstream exploded"}}`)
			}))
			defer server.Close()

			_, err := newTestChatClient().SendChatRequest(context.Background(), server.URL, testKey, ChatRequest{Model: "gpt-4"})
			require.Error(t, err)
			tt.check(t, err)
			assert.NotEmpty(t, Describe(err))
		})
	}
}

func TestUnauthorizedKeepsStatusDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestChatClient().SendChatRequest(context.Background(), server.URL, testKey, ChatRequest{Model: "gpt-4"})

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
}

func TestSendChatRequestNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id": "x", "choices": []}`)
	}))
	defer server.Close()

	_, err := newTestChatClient().SendChatRequest(context.Background(), server.URL, testKey, ChatRequest{Model: "gpt-4"})
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestFetchModelsFiltersAndSorts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/models", r.URL.Path)
		assert.Equal(t, "Bearer "+testKey, r.Header.Get("Authorization"))
		io.WriteString(w, `{"object": "list", "data": [
			{"id": "gpt-4", "object": "model"},
			{"id": "text-embedding-3", "object": "model"},
			{"id": "gemini-1.5-pro", "object": "model"},
			{"id": "whisper-1", "object": "model"}
		]}`)
	}))
	defer server.Close()

	models, err := newTestChatClient().FetchModels(context.Background(), server.URL, testKey)
	require.NoError(t, err)

	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"gemini-1.5-pro", "gpt-4"}, ids)
}

func TestIsChatModel(t *testing.T) {
	chat := []string{"gpt-4o", "claude-3-opus-20240229", "models/gemini-1.5-flash", "o1-mini", "o3", "chatgpt-4o-latest"}
	notChat := []string{"text-embedding-3-large", "whisper-1", "tts-1-hd", "dall-e-3", "gpt-4o-audio-preview", "gpt-image-1", "omni-moderation-latest", "babbage-002"}

	for _, id := range chat {
		assert.True(t, IsChatModel(id), id)
	}
	for _, id := range notChat {
		assert.False(t, IsChatModel(id), id)
	}
}

func TestTestAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{"object": "list", "data": [{"id": "gpt-4o"}]}`)
	}))
	defer server.Close()

	c := newTestChatClient()

	ok := c.TestAPIKey(context.Background(), server.URL, testKey)
	assert.True(t, ok.Valid)
	assert.NoError(t, ok.Err)
	require.Len(t, ok.Models, 1)

	bad := c.TestAPIKey(context.Background(), server.URL, "sk-wrong-key-000000")
	assert.False(t, bad.Valid)
	assert.ErrorIs(t, bad.Err, ErrUnauthorized)
	assert.Empty(t, bad.Models)

	missing := c.TestAPIKey(context.Background(), server.URL, "")
	assert.False(t, missing.Valid)
	assert.ErrorIs(t, missing.Err, ErrMissingAPIKey)
}
