package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gennadis/llmchat/internal/chat"
	"github.com/gennadis/llmchat/internal/client"
	"github.com/gennadis/llmchat/internal/conversation"
	"github.com/gennadis/llmchat/internal/session"
	"github.com/gennadis/llmchat/internal/settings"
)

const helpText = `Commands:
  /new             start a new chat
  /list            list chats
  /switch N        open chat N
  /delete N        delete chat N
  /rename TITLE    rename the current chat
  /regen           regenerate the last answer
  /retry           resend the last failed message
  /models          list enabled models
  /model ID        use model ID for new chats
  /refresh         fetch model lists from providers
  /test PROVIDER   check the API key of a provider
  /help            show this help
  /quit            exit
Anything else is sent to the current chat.`

// keyTester checks API keys.
type keyTester interface {
	TestAPIKey(ctx context.Context, baseURL, apiKey string) client.KeyCheck
}

type repl struct {
	state         *session.State
	manager       *session.Manager
	orchestrator  *conversation.Orchestrator
	refresher     *conversation.ModelRefresher
	keys          keyTester
	settingsStore *settings.Store

	in  io.Reader
	out io.Writer
}

var errQuit = errors.New("quit")

func (r *repl) run(ctx context.Context) error {
	reader := bufio.NewReader(r.in)
	fmt.Fprintln(r.out, "Type a message, or /help for commands.")

	for {
		fmt.Fprint(r.out, r.prompt())
		line, err := reader.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			if execErr := r.exec(ctx, line); errors.Is(execErr, errQuit) {
				return nil
			} else if execErr != nil {
				fmt.Fprintln(r.out, "Error:", execErr)
			}
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(r.out)
			return nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (r *repl) prompt() string {
	title := "new chat"
	if s := r.manager.Current(); s != nil {
		r.manager.View(func([]*chat.Session, *chat.Session) { title = s.Title })
	}
	return fmt.Sprintf("[%s] > ", title)
}

func (r *repl) exec(ctx context.Context, line string) error {
	if !strings.HasPrefix(line, "/") {
		return r.submit(ctx, line)
	}

	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch command {
	case "/quit", "/exit":
		return errQuit
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/new":
		r.manager.PrepareNewChat(ctx)
		fmt.Fprintln(r.out, "Started a new chat.")
	case "/list":
		r.list()
	case "/switch":
		s, err := r.pick(arg)
		if err != nil {
			return err
		}
		if err := r.manager.SelectSession(ctx, s); err != nil {
			return err
		}
		r.show(s)
	case "/delete":
		s, err := r.pick(arg)
		if err != nil {
			return err
		}
		if err := r.manager.DeleteSession(ctx, s); err != nil {
			return err
		}
		fmt.Fprintln(r.out, "Deleted.")
	case "/rename":
		s := r.manager.Current()
		if s == nil {
			return errors.New("no chat is open")
		}
		return r.manager.Rename(ctx, s, arg)
	case "/regen":
		s := r.manager.Current()
		if s == nil {
			return errors.New("no chat is open")
		}
		return r.answered(s, r.orchestrator.Regenerate(ctx, s))
	case "/retry":
		s := r.manager.Current()
		if s == nil {
			return errors.New("no chat is open")
		}
		failed := r.orchestrator.LastFailed(s)
		if failed == nil {
			return errors.New("nothing to retry")
		}
		return r.answered(s, r.orchestrator.Resend(ctx, s, failed))
	case "/models":
		r.models()
	case "/model":
		return r.selectModel(arg)
	case "/refresh":
		counts, err := r.refresher.Refresh(ctx)
		for p, n := range counts {
			fmt.Fprintf(r.out, "%s: %d chat models\n", p, n)
		}
		return err
	case "/test":
		return r.testKey(ctx, arg)
	default:
		return fmt.Errorf("unknown command %s, try /help", command)
	}
	return nil
}

func (r *repl) submit(ctx context.Context, input string) error {
	if !r.orchestrator.CanSend(input) {
		return conversation.ErrBusy
	}
	s, err := r.orchestrator.Submit(ctx, r.manager.Current(), input)
	if s == nil {
		return err
	}
	return r.answered(s, err)
}

// answered prints the last answer of s, or the reason it failed.
func (r *repl) answered(s *chat.Session, err error) error {
	var respErr *conversation.ResponseError
	if errors.As(err, &respErr) {
		fmt.Fprintf(r.out, "! %s Use /retry to send it again.\n", respErr.Error())
		return nil
	}
	if err != nil {
		return err
	}

	r.manager.View(func([]*chat.Session, *chat.Session) {
		if m := s.LastAssistant(); m != nil {
			fmt.Fprintf(r.out, "%s\n", m.Content)
		}
	})
	return nil
}

func (r *repl) list() {
	r.manager.View(func(sessions []*chat.Session, current *chat.Session) {
		if len(sessions) == 0 {
			fmt.Fprintln(r.out, "No chats yet.")
			return
		}
		for i, s := range sessions {
			marker := " "
			if s == current {
				marker = "*"
			}
			fmt.Fprintf(r.out, "%s %2d. %-40s %-24s %3d msgs  %s\n",
				marker, i+1, s.Title, s.ModelID, len(s.Messages), s.UpdatedAt.Format("2006-01-02 15:04"))
		}
	})
}

// pick resolves a 1-based position in the session list.
func (r *repl) pick(arg string) (*chat.Session, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("expected a chat number, got %q", arg)
	}
	sessions := r.manager.Sessions()
	if n < 1 || n > len(sessions) {
		return nil, fmt.Errorf("no chat number %d", n)
	}
	return sessions[n-1], nil
}

func (r *repl) show(s *chat.Session) {
	r.manager.View(func([]*chat.Session, *chat.Session) {
		fmt.Fprintf(r.out, "== %s (%s)\n", s.Title, s.ModelID)
		for _, m := range s.Messages {
			status := ""
			if m.Status != chat.StatusSent {
				status = fmt.Sprintf(" [%s]", m.Status)
			}
			fmt.Fprintf(r.out, "%s%s: %s\n", m.Sender, status, m.Content)
		}
	})
}

func (r *repl) models() {
	cfg := r.state.Settings()
	for _, m := range cfg.EnabledModelConfigs() {
		marker := " "
		if m.ID == cfg.SelectedModelID {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %-28s %-10s %s\n", marker, m.ID, m.Provider, m.DisplayName)
	}
}

func (r *repl) selectModel(id string) error {
	err := r.state.UpdateSettings(func(cfg *settings.Settings) error {
		if !cfg.IsEnabled(id) {
			if err := cfg.SetModelEnabled(id, true); err != nil {
				return err
			}
		}
		return cfg.SelectModel(id)
	})
	if err != nil {
		return err
	}
	if err := r.settingsStore.Save(r.state.Settings()); err != nil {
		return fmt.Errorf("model selected but settings were not saved: %w", err)
	}
	fmt.Fprintf(r.out, "New chats will use %s.\n", id)
	return nil
}

func (r *repl) testKey(ctx context.Context, name string) error {
	p, ok := settings.ParseProvider(name)
	if !ok {
		return fmt.Errorf("unknown provider %q", name)
	}
	cfg := r.state.Settings()
	check := r.keys.TestAPIKey(ctx, cfg.BaseURL(p), cfg.APIKey(p))
	if !check.Valid {
		fmt.Fprintf(r.out, "%s key %s is not usable: %s\n", p, client.MaskKey(cfg.APIKey(p)), client.Describe(check.Err))
		return nil
	}
	fmt.Fprintf(r.out, "%s key %s works, %d chat models available.\n", p, client.MaskKey(cfg.APIKey(p)), len(check.Models))
	return nil
}
