package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/gennadis/llmchat/internal/chat"
	"github.com/gennadis/llmchat/internal/client"
	"github.com/gennadis/llmchat/internal/session"
)

// ErrNoProvider is returned when no provider serves the session's model.
var ErrNoProvider = errors.New("no provider serves this model")

// Reply is a resolved assistant answer.
type Reply struct {
	Content string
	Tokens  int
}

// Responder produces the answer to the last message of history.
type Responder interface {
	Respond(ctx context.Context, modelID string, history []client.ChatMessage) (Reply, error)
}

// chatCompleter is the part of client.ChatClient a CompletionResponder needs.
type chatCompleter interface {
	SendChatRequest(ctx context.Context, baseURL, apiKey string, request client.ChatRequest) (*client.ChatResponse, error)
}

// CompletionResponder answers through the provider serving the model,
// with the endpoint and key from the current settings.
type CompletionResponder struct {
	client      chatCompleter
	state       *session.State
	temperature *float64
}

func NewCompletionResponder(c *client.ChatClient, state *session.State) *CompletionResponder {
	return &CompletionResponder{client: c, state: state}
}

// WithTemperature sets the sampling temperature sent with every request.
func (r *CompletionResponder) WithTemperature(t float64) *CompletionResponder {
	r.temperature = &t
	return r
}

func (r *CompletionResponder) Respond(ctx context.Context, modelID string, history []client.ChatMessage) (Reply, error) {
	cfg := r.state.Settings()

	provider, ok := cfg.ProviderForModel(modelID)
	if !ok {
		return Reply{}, fmt.Errorf("%w: %s", ErrNoProvider, modelID)
	}

	request := client.ChatRequest{
		Model:       modelID,
		Messages:    history,
		Temperature: r.temperature,
	}
	if model, ok := cfg.Model(modelID); ok {
		if model.Name != "" {
			request.Model = model.Name
		}
		if model.MaxTokens > 0 {
			maxTokens := model.MaxTokens
			request.MaxTokens = &maxTokens
		}
	}

	slog.Debug("requesting completion",
		slog.String("provider", string(provider)),
		slog.String("model", request.Model),
		slog.Int("messages", len(history)),
		slog.String("key", client.MaskKey(cfg.APIKey(provider))),
	)
	resp, err := r.client.SendChatRequest(ctx, cfg.BaseURL(provider), cfg.APIKey(provider), request)
	if err != nil {
		return Reply{}, err
	}

	reply := Reply{Content: resp.Content()}
	if resp.Usage != nil {
		reply.Tokens = resp.Usage.TotalTokens
	}
	return reply, nil
}

// simulatedReplies are the canned answers of the offline responder.
var simulatedReplies = []string{
	"This is a simulated response. Configure an API key to talk to a real model.",
	"I'm running in simulation mode, so this answer did not come from a provider.",
	"Simulated reply: your message was received.",
}

// Simulated answers without network access after a fixed delay.
type Simulated struct {
	Delay time.Duration
}

func NewSimulated() *Simulated {
	return &Simulated{Delay: time.Second}
}

func (s *Simulated) Respond(ctx context.Context, _ string, history []client.ChatMessage) (Reply, error) {
	timer := time.NewTimer(s.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	case <-timer.C:
	}

	content := simulatedReplies[rand.Intn(len(simulatedReplies))]
	if n := len(history); n > 0 && history[n-1].Role == client.RoleUser {
		content = fmt.Sprintf("%s\n\n> %s", content, chat.TitleFrom(history[n-1].Content))
	}
	return Reply{Content: content}, nil
}

// toChatMessages converts session messages into the wire form.
func toChatMessages(messages []*chat.Message) []client.ChatMessage {
	out := make([]client.ChatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, client.ChatMessage{
			Role:    roleOf(m.Sender),
			Content: m.Content,
		})
	}
	return out
}

func roleOf(sender chat.Sender) client.ChatModelRole {
	switch sender {
	case chat.SenderAssistant:
		return client.RoleAssistant
	case chat.SenderSystem:
		return client.RoleSystem
	default:
		return client.RoleUser
	}
}

var (
	_ Responder = (*CompletionResponder)(nil)
	_ Responder = (*Simulated)(nil)
)
