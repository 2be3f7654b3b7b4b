package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
)

type ChatModelRole string

const (
	RoleSystem    ChatModelRole = "system"
	RoleUser      ChatModelRole = "user"
	RoleAssistant ChatModelRole = "assistant"
)

type ChatMessage struct {
	Role    ChatModelRole `json:"role"`
	Content string        `json:"content"`
}

// ChatRequest is the OpenAI-compatible chat completions body. Optional
// fields are omitted when nil.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	Stream      *bool         `json:"stream,omitempty"`
}

type ChatResponse struct {
	ID      string               `json:"id"`
	Object  string               `json:"object"`
	Created int64                `json:"created"`
	Model   string               `json:"model"`
	Choices []ChatResponseChoice `json:"choices"`
	Usage   *ChatResponseUsage   `json:"usage,omitempty"`
}

type ChatResponseChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type ChatResponseUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Content returns the first choice's text.
func (r *ChatResponse) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// KeyCheck is the outcome of TestAPIKey.
type KeyCheck struct {
	Valid  bool
	Err    error
	Models []Model
}

// chatMarkers appear in ids of chat-capable models, chatPrefixes start
// them. nonChatMarkers mark embedding, audio and image generation models.
var (
	chatMarkers    = []string{"gpt", "claude", "gemini", "chat"}
	chatPrefixes   = []string{"o1", "o3", "o4"}
	nonChatMarkers = []string{"embedding", "whisper", "tts", "audio", "dall-e", "image", "transcribe", "moderation", "realtime"}
)

// ChatClient talks to an OpenAI-compatible provider endpoint.
type ChatClient struct {
	client *Client
}

func NewChatClient(c *Client) *ChatClient {
	return &ChatClient{client: c}
}

// SendChatRequest posts a chat completion. An empty apiKey fails with
// ErrMissingAPIKey before any network I/O.
func (c *ChatClient) SendChatRequest(ctx context.Context, baseURL, apiKey string, request ChatRequest) (*ChatResponse, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}

	chatResp := ChatResponse{}
	err := c.client.Request(ctx, http.MethodPost, endpoint(baseURL, "chat/completions"), authHeaders(apiKey), request, &chatResp)
	if err != nil {
		slog.Error("Failed to send completion request", "error", err, slog.String("model", request.Model))
		return nil, translate(err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}
	return &chatResp, nil
}

// FetchModels lists the provider's chat-capable models sorted by id.
func (c *ChatClient) FetchModels(ctx context.Context, baseURL, apiKey string) ([]Model, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}

	list := ModelList{}
	if err := c.client.Request(ctx, http.MethodGet, endpoint(baseURL, "models"), authHeaders(apiKey), nil, &list); err != nil {
		slog.Error("Failed to fetch models", "error", err, slog.String("base_url", baseURL))
		return nil, translate(err)
	}

	models := FilterChatModels(list.Data)
	slog.Debug("fetched models",
		slog.String("base_url", baseURL),
		slog.Int("raw", len(list.Data)),
		slog.Int("chat", len(models)),
	)
	return models, nil
}

// TestAPIKey probes a key by listing models. It never returns an error;
// failures are reported in the result.
func (c *ChatClient) TestAPIKey(ctx context.Context, baseURL, apiKey string) KeyCheck {
	models, err := c.FetchModels(ctx, baseURL, apiKey)
	if err != nil {
		return KeyCheck{Valid: false, Err: err}
	}
	return KeyCheck{Valid: true, Models: models}
}

// FilterChatModels keeps models whose id looks chat-capable, sorted by id.
func FilterChatModels(models []Model) []Model {
	filtered := make([]Model, 0, len(models))
	for _, m := range models {
		if IsChatModel(m.ID) {
			filtered = append(filtered, m)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].ID < filtered[j].ID
	})
	return filtered
}

// IsChatModel reports whether a model id names a chat model.
func IsChatModel(id string) bool {
	id = strings.ToLower(id)
	for _, marker := range nonChatMarkers {
		if strings.Contains(id, marker) {
			return false
		}
	}
	// Google lists models as "models/gemini-...".
	id = strings.TrimPrefix(id, "models/")
	for _, prefix := range chatPrefixes {
		if strings.HasPrefix(id, prefix) {
			return true
		}
	}
	for _, marker := range chatMarkers {
		if strings.Contains(id, marker) {
			return true
		}
	}
	return false
}

func endpoint(baseURL, path string) string {
	return strings.TrimSuffix(strings.TrimSpace(baseURL), "/") + "/" + path
}
