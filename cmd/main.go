package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"

	"github.com/gennadis/llmchat/internal/client"
	"github.com/gennadis/llmchat/internal/config"
	"github.com/gennadis/llmchat/internal/conversation"
	"github.com/gennadis/llmchat/internal/session"
	"github.com/gennadis/llmchat/internal/settings"
	"github.com/gennadis/llmchat/storage"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %s", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()})))

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		log.Fatalf("Failed to create data dir: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	settingsStore := settings.NewStore(cfg.SettingsFile)
	appSettings := settingsStore.Load()
	if cfg.SeedKeys(appSettings) {
		if err := settingsStore.Save(appSettings); err != nil {
			slog.Warn("Failed to save settings", "error", err)
		}
	}
	state := session.NewState(appSettings)

	var watching *sync.WaitGroup
	watcher, err := settings.NewWatcher(settingsStore, state.ReplaceSettings)
	if err != nil {
		slog.Warn("Settings will not be reloaded on change", "error", err)
	} else {
		watching = watcher.Run(ctx)
	}

	db, err := storage.NewSqliteDB(cfg.DatabaseFile)
	if err != nil {
		log.Fatalf("Failed to open database: %s", err)
	}
	defer db.Close()

	store, err := storage.NewStore(ctx, db)
	if err != nil {
		log.Fatalf("Failed to create storage: %s", err)
	}

	manager := session.NewManager(state, store)
	manager.OnPersistError(func(err error) {
		fmt.Fprintf(os.Stderr, "warning: changes were not saved: %s\n", err)
	})
	if err := manager.Load(ctx); err != nil {
		log.Fatalf("Failed to load sessions: %s", err)
	}

	chatClient := client.NewChatClient(client.NewClient(
		client.WithTimeouts(cfg.RequestTimeout, cfg.ResourceTimeout),
		client.WithRateLimit(cfg.RequestsPerMinute),
	))

	var responder conversation.Responder = conversation.NewCompletionResponder(chatClient, state)
	if cfg.Simulate {
		responder = &conversation.Simulated{Delay: cfg.SimulateDelay}
		slog.Info("Simulation mode: answers are not sent to providers")
	}

	r := &repl{
		state:         state,
		manager:       manager,
		orchestrator:  conversation.NewOrchestrator(manager, responder),
		refresher:     conversation.NewModelRefresher(chatClient, state, settingsStore),
		keys:          chatClient,
		settingsStore: settingsStore,
		in:            os.Stdin,
		out:           os.Stdout,
	}
	if err := r.run(ctx); err != nil {
		slog.Error("Input failed", "error", err)
	}

	stop()
	if watching != nil {
		watching.Wait()
	}
}
