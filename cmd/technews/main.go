package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/deusflow/technews/internal/app"
	"github.com/deusflow/technews/internal/companies"
	"github.com/deusflow/technews/internal/config"
	"github.com/deusflow/technews/internal/logger"
	"github.com/deusflow/technews/internal/news"
	"github.com/deusflow/technews/internal/ui"
)

const usage = `usage: technews <command> [flags]

commands:
  ingest     run one ingestion pass and print its report
  serve      start the HTTP API, optionally ingesting on an interval
  preview    print the weekly feed for an interest profile
  backfill   queue company extraction for stored articles without companies
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	start := time.Now()
	switch cmd {
	case "ingest":
		err = runIngest(ctx, cfg, logger.Component("ingest"))
	case "serve":
		err = runServe(ctx, cfg, logger.Component("serve"))
	case "preview":
		err = runPreview(ctx, cfg, logger.Component("preview"), args)
	case "backfill":
		err = runBackfill(ctx, cfg, logger.Component("backfill"), args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
	logger.Info("command finished", "command", cmd, "duration", time.Since(start).Round(time.Millisecond))
}

// shutdown closes a with a bounded drain time.
func shutdown(a *app.App, cfg *config.Config, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		log.Error("shutdown incomplete", "error", err)
	}
}

func runIngest(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer shutdown(a, cfg, log)

	rep, err := a.Ingest(ctx)
	if err != nil {
		return err
	}
	log.Debug("summarizer totals", "stats", a.SummaryStats())
	return ui.RenderRun(os.Stdout, rep.RunStats, rep.FeedErrorMessages())
}

func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer shutdown(a, cfg, log)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	loopDone := make(chan struct{})
	if cfg.IngestInterval > 0 {
		go func() {
			defer close(loopDone)
			ingestLoop(ctx, a, cfg.IngestInterval, log)
		}()
	} else {
		close(loopDone)
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	cancel()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	err = srv.Shutdown(shutdownCtx)
	// The store must outlive a running ingestion.
	select {
	case <-loopDone:
	case <-shutdownCtx.Done():
	}
	return err
}

// ingestLoop runs ingestion at start and then every interval until ctx ends.
// Runs never overlap because they execute on this goroutine.
func ingestLoop(ctx context.Context, a *app.App, every time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if _, err := a.Ingest(ctx); err != nil && ctx.Err() == nil {
			log.Error("scheduled ingestion failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runPreview(ctx context.Context, cfg *config.Config, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	categories := fs.String("categories", "", "comma-separated categories (ai, startups, dev, product, research)")
	keywords := fs.String("keywords", "", "comma-separated keywords")
	slugs := fs.String("companies", "", "comma-separated company slugs: "+strings.Join(companies.Slugs(), ", "))
	if err := fs.Parse(args); err != nil {
		return err
	}

	var in news.UserInterests
	for _, raw := range splitList(*categories) {
		c, ok := news.ParseCategory(raw)
		if !ok {
			return fmt.Errorf("unknown category %q", raw)
		}
		in.Categories = append(in.Categories, c)
	}
	in.Keywords = splitList(*keywords)
	for _, slug := range splitList(*slugs) {
		slug = strings.ToLower(slug)
		if !companies.Known(slug) {
			log.Warn("unknown company slug never matches", "company", slug)
		}
		in.Companies = append(in.Companies, slug)
	}

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer shutdown(a, cfg, log)

	weeks, err := a.Feeds.MyFeed(ctx, in, time.Now())
	if err != nil {
		return err
	}
	return ui.RenderFeed(os.Stdout, weeks)
}

func runBackfill(ctx context.Context, cfg *config.Config, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
	limit := fs.Int("limit", 500, "maximum number of articles to queue; submission waits for queue space")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer shutdown(a, cfg, log)

	n, err := a.Backfill(ctx, *limit)
	if err != nil {
		return err
	}
	log.Info("company backfill queued", "articles", n)
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
