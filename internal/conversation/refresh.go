package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/gennadis/llmchat/internal/client"
	"github.com/gennadis/llmchat/internal/session"
	"github.com/gennadis/llmchat/internal/settings"
)

// modelLister is the part of client.ChatClient a ModelRefresher needs.
type modelLister interface {
	FetchModels(ctx context.Context, baseURL, apiKey string) ([]client.Model, error)
}

// ModelRefresher updates the fetched model lists of every provider that
// has an API key.
type ModelRefresher struct {
	client modelLister
	state  *session.State
	store  *settings.Store
}

func NewModelRefresher(c *client.ChatClient, state *session.State, store *settings.Store) *ModelRefresher {
	return &ModelRefresher{client: c, state: state, store: store}
}

// Refresh queries providers concurrently and returns how many chat models
// each reported. A failing provider keeps its previous list and its error
// is joined into the result; the others are still applied and saved.
func (r *ModelRefresher) Refresh(ctx context.Context) (map[settings.Provider]int, error) {
	cfg := r.state.Settings()

	type result struct {
		provider settings.Provider
		models   []client.Model
		err      error
	}
	var keyed []settings.Provider
	for _, p := range settings.Providers {
		if cfg.APIKey(p) != "" {
			keyed = append(keyed, p)
		}
	}
	results := make([]result, len(keyed))

	var g errgroup.Group
	for i, p := range keyed {
		i, p := i, p
		g.Go(func() error {
			models, err := r.client.FetchModels(ctx, cfg.BaseURL(p), cfg.APIKey(p))
			results[i] = result{provider: p, models: models, err: err}
			return nil
		})
	}
	_ = g.Wait()

	counts := make(map[settings.Provider]int, len(results))
	var errs []error
	err := r.state.UpdateSettings(func(cfg *settings.Settings) error {
		for _, res := range results {
			if res.err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", res.provider, res.err))
				continue
			}
			configs := make([]settings.ModelConfig, 0, len(res.models))
			for _, m := range res.models {
				configs = append(configs, settings.FromRemote(res.provider, m.ID))
			}
			cfg.SetFetchedModels(res.provider, configs)
			counts[res.provider] = len(configs)
		}
		return nil
	})
	if err != nil {
		return counts, err
	}

	if len(counts) > 0 {
		if err := r.store.Save(r.state.Settings()); err != nil {
			slog.Warn("Failed to save settings", "error", err)
			errs = append(errs, err)
		}
	}

	slog.Debug("model lists refreshed",
		slog.Int("providers", len(keyed)),
		slog.Int("failed", len(errs)),
	)
	return counts, errors.Join(errs...)
}
