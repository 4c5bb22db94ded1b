// Package app wires configuration into running components and implements
// the ingestion run.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/deusflow/technews/internal/api"
	"github.com/deusflow/technews/internal/cache"
	"github.com/deusflow/technews/internal/config"
	"github.com/deusflow/technews/internal/enrich"
	"github.com/deusflow/technews/internal/feed"
	"github.com/deusflow/technews/internal/gemini"
	"github.com/deusflow/technews/internal/ratelimit"
	"github.com/deusflow/technews/internal/retry"
	"github.com/deusflow/technews/internal/rss"
	"github.com/deusflow/technews/internal/scraper"
	"github.com/deusflow/technews/internal/storage"
	"github.com/deusflow/technews/internal/summarize"
	"github.com/deusflow/technews/internal/syndication"
	"github.com/deusflow/technews/internal/telegram"
	"github.com/deusflow/technews/internal/translate"
)

// App holds every long-lived component built from a Config.
type App struct {
	Config   *config.Config
	Store    storage.Store
	Cache    cache.Backend
	Queue    *enrich.Queue
	Pipeline *Pipeline
	Feeds    *feed.Builder
	API      *api.Server

	summarizer *summarize.Chain
	budget     *ratelimit.Budget
	kv         *storage.PostgresKV
	closers    []func() error
	log        *slog.Logger
}

// Build connects the store and cache and assembles the pipeline. Missing
// AI keys or Telegram credentials disable those features instead of
// failing.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{Config: cfg, log: log}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Store = store

	backend, err := a.openCache(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Cache = backend

	feeds, err := rss.LoadFeeds(cfg.FeedsConfigPath)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("load feeds: %w", err)
	}

	providers, err := a.providers(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.budget = ratelimit.NewBudget(map[string]int{
		"gemini": cfg.MaxGeminiRequests,
		"openai": cfg.MaxOpenAIRequests,
	}, 0, 0)
	a.summarizer = summarize.NewChain(providers, log,
		summarize.WithCache(backend, cfg.CacheTTL()),
		summarize.WithBudget(a.budget),
		summarize.WithTimeout(cfg.AITimeout),
	)

	httpRetry := retry.RetryConfig{MaxAttempts: cfg.RetryAttempts, Delay: cfg.RetryDelay, Backoff: true}
	fetcher := rss.NewFetcher(rss.Options{
		Concurrency: cfg.IngestConcurrency,
		Timeout:     cfg.FetchTimeout,
		Retry:       httpRetry,
		UserAgent:   cfg.UserAgent,
	}, log)
	pages := scraper.New(log,
		scraper.WithTimeout(cfg.ScrapeTimeout),
		scraper.WithRetry(httpRetry),
		scraper.WithUserAgent(cfg.UserAgent),
	)

	a.Queue = enrich.NewQueue(context.WithoutCancel(ctx), cfg.EnrichWorkers, cfg.EnrichBuffer, log)

	deps := Deps{
		Feeds:      feeds,
		Fetcher:    fetcher,
		Store:      store,
		Summarizer: a.summarizer,
		Scraper:    pages,
		Queue:      a.Queue,
		Syndicator: syndication.NewWriter(cfg.OutputDir, cfg.Site, store, log),
		Log:        log,
	}
	if cfg.TranslationEnabled() {
		deps.Translator = a.translator(backend)
	}
	if cfg.TelegramEnabled() {
		poster, err := telegram.NewPoster(cfg.TelegramToken, cfg.TelegramChatID, log)
		if err != nil {
			log.Error("telegram disabled", "error", err)
		} else {
			deps.Publisher = poster
		}
	}

	a.Pipeline = NewPipeline(deps, Options{
		UpsertBatch:       cfg.UpsertBatchSize,
		ScrapeImages:      cfg.ScrapeImages,
		ScrapeMaxArticles: cfg.ScrapeMaxArticles,
		TranslateFrom:     cfg.TranslateSource,
		TranslateTo:       cfg.TranslateTarget,
		TelegramMaxPosts:  cfg.TelegramMaxPosts,
	})
	a.Feeds = feed.NewBuilder(store, feed.Options{
		Location:         cfg.Location(),
		ClusterThreshold: cfg.ClusterThreshold,
		RescoreClusters:  cfg.RescoreClusters,
	}, log)
	a.API = api.New(store, a.Feeds, cfg.OutputDir, log)

	log.Info("application ready",
		"store", cfg.StoreDriver,
		"cache", cfg.CacheDriver,
		"feeds", len(feeds),
		"ai_providers", len(providers),
		"translation", deps.Translator != nil,
		"telegram", deps.Publisher != nil,
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context) (storage.Store, error) {
	cfg := a.Config
	switch cfg.StoreDriver {
	case config.StorePostgres:
		s, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL, a.log)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		a.kv = s.KV()
		a.closers = append(a.closers, s.Close)
		return s, nil
	case config.StoreMongo:
		s, err := storage.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			return nil, fmt.Errorf("open mongo store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	default:
		s := storage.NewMemoryStore(cfg.StorePath)
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("load memory store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	}
}

func (a *App) openCache(ctx context.Context) (cache.Backend, error) {
	cfg := a.Config
	switch cfg.CacheDriver {
	case config.CacheRedis:
		r, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, "technews:")
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, r.Close)
		return r, nil
	case config.CachePostgres:
		if a.kv == nil {
			return nil, errors.New("postgres cache requires the postgres store")
		}
		return a.kv, nil
	default:
		m := cache.NewMemory(10 * time.Minute)
		a.closers = append(a.closers, func() error { m.Close(); return nil })
		return m, nil
	}
}

// providers returns the configured AI providers, Gemini first.
func (a *App) providers(ctx context.Context) ([]summarize.Provider, error) {
	cfg := a.Config
	var out []summarize.Provider
	if cfg.GeminiAPIKey != "" {
		g, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		out = append(out, g)
	}
	if cfg.OpenAIAPIKey != "" {
		out = append(out, summarize.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel))
	}
	if len(out) == 0 {
		a.log.Warn("no AI provider configured, summaries use the extractive fallback")
	}
	return out, nil
}

func (a *App) translator(backend cache.Backend) *translate.Service {
	cfg := a.Config
	ts := []translate.Translator{translate.NewGoogle(&http.Client{Timeout: cfg.FetchTimeout})}
	if cfg.OpenAIAPIKey != "" {
		ts = append(ts, translate.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel))
	}
	return translate.NewService(a.log, backend, cfg.CacheTTL(), ts...)
}

// Ingest runs the pipeline once with a fresh AI budget. Expired postgres
// cache rows are purged first.
func (a *App) Ingest(ctx context.Context) (RunReport, error) {
	a.budget.Reset()
	if a.kv != nil && a.Config.CacheDriver == config.CachePostgres {
		if n, err := a.kv.Cleanup(ctx); err != nil {
			a.log.Warn("cache cleanup failed", "error", err)
		} else if n > 0 {
			a.log.Debug("expired cache rows removed", "rows", n)
		}
	}
	rep, err := a.Pipeline.Run(ctx)
	a.log.Debug("ai budget", "usage", a.budget.Stats())
	return rep, err
}

// Backfill queues company extraction for stored articles without any.
func (a *App) Backfill(ctx context.Context, limit int) (int, error) {
	return enrich.Backfill(ctx, a.Queue, a.Store, limit)
}

// SummaryStats reports provider usage since start.
func (a *App) SummaryStats() summarize.Stats {
	if a.summarizer == nil {
		return summarize.Stats{}
	}
	return a.summarizer.Stats()
}

// Close drains the enrichment queue and releases connections in reverse
// order of opening.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Queue != nil {
		if err := a.Queue.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain enrichment queue: %w", err))
		}
		st := a.Queue.Stats()
		a.log.Info("enrichment queue closed",
			"submitted", st.Submitted,
			"succeeded", st.Succeeded,
			"failed", st.Failed,
			"dropped", st.Dropped,
		)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
