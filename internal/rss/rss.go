package rss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"

	"github.com/deusflow/technews/internal/retry"
)

// Feed is one configured source.
type Feed struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Category string `yaml:"category"`
}

// FeedsConfig is YAML config structure
// feeds:
//   - name: TechCrunch
//     url: https://...
//     category: startups
type FeedsConfig struct {
	Feeds []Feed `yaml:"feeds"`
}

// LoadFeeds reads the feed list from a YAML file. Entries without a URL
// are rejected; a missing name defaults to the URL host.
func LoadFeeds(path string) ([]Feed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg FeedsConfig
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode feeds: %w", err)
	}
	for i := range cfg.Feeds {
		fd := &cfg.Feeds[i]
		fd.URL = strings.TrimSpace(fd.URL)
		if fd.URL == "" {
			return nil, fmt.Errorf("feed %d: url is required", i)
		}
		if fd.Name == "" {
			if u, err := url.Parse(fd.URL); err == nil && u.Host != "" {
				fd.Name = strings.TrimPrefix(u.Host, "www.")
			} else {
				fd.Name = fd.URL
			}
		}
	}
	return cfg.Feeds, nil
}

// Item is a raw feed entry, in feed order, before cleaning.
type Item struct {
	Feed        Feed
	Title       string
	Link        string
	Description string
	Content     string
	Published   *time.Time
	ImageURL    string
	Categories  []string
}

// SourceError records the failure of one feed; it never aborts a run.
type SourceError struct {
	Feed Feed
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("feed %s (%s): %v", e.Feed.Name, e.Feed.URL, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Result is the outcome of fetching one feed.
type Result struct {
	Feed  Feed
	Items []Item
	Err   *SourceError
}

const (
	DefaultConcurrency = 4
	MaxConcurrency     = 5
	DefaultTimeout     = 15 * time.Second
)

// Options configures a Fetcher. Zero values select the defaults.
type Options struct {
	Concurrency int
	Timeout     time.Duration
	Retry       retry.RetryConfig
	UserAgent   string
	Client      *http.Client
}

// Fetcher downloads and parses feeds with a bounded worker pool. One feed
// is handled by one worker, so a source never sees concurrent requests.
type Fetcher struct {
	client      *http.Client
	concurrency int
	timeout     time.Duration
	retry       retry.RetryConfig
	userAgent   string
	log         *slog.Logger
}

func NewFetcher(opts Options, log *slog.Logger) *Fetcher {
	f := &Fetcher{
		client:      opts.Client,
		concurrency: opts.Concurrency,
		timeout:     opts.Timeout,
		retry:       opts.Retry,
		userAgent:   opts.UserAgent,
		log:         log.With("component", "rss"),
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	if f.concurrency <= 0 {
		f.concurrency = DefaultConcurrency
	}
	f.concurrency = min(f.concurrency, MaxConcurrency)
	if f.timeout <= 0 {
		f.timeout = DefaultTimeout
	}
	if f.retry.MaxAttempts == 0 {
		f.retry = retry.Default
	}
	if f.userAgent == "" {
		f.userAgent = "technews/1.0 (+https://github.com/deusflow/technews)"
	}
	return f
}

// FetchAll fetches every feed and returns one Result per feed, in the order
// of feeds.
func (f *Fetcher) FetchAll(ctx context.Context, feeds []Feed) []Result {
	results := make([]Result, len(feeds))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(f.concurrency, len(feeds)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = f.fetchResult(ctx, feeds[i])
			}
		}()
	}

	for i := range feeds {
		select {
		case jobs <- i:
		case <-ctx.Done():
			for j := i; j < len(feeds); j++ {
				results[j] = Result{Feed: feeds[j], Err: &SourceError{Feed: feeds[j], Err: ctx.Err()}}
			}
			close(jobs)
			wg.Wait()
			return results
		}
	}
	close(jobs)
	wg.Wait()

	ok := 0
	for _, r := range results {
		if r.Err == nil {
			ok++
		}
	}
	f.log.Info("processed rss feeds", "ok", ok, "total", len(feeds))
	return results
}

func (f *Fetcher) fetchResult(ctx context.Context, feed Feed) Result {
	items, err := f.Fetch(ctx, feed)
	if err != nil {
		f.log.Warn("feed failed", "source", feed.Name, "url", feed.URL, "error", err)
		return Result{Feed: feed, Err: &SourceError{Feed: feed, Err: err}}
	}
	f.log.Debug("feed loaded", "source", feed.Name, "items", len(items))
	return Result{Feed: feed, Items: items}
}

// Fetch downloads one feed with timeout and retry. 4xx answers and
// unparseable bodies are not retried.
func (f *Fetcher) Fetch(ctx context.Context, feed Feed) ([]Item, error) {
	cfg := f.retry
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		f.log.Warn("retrying feed", "source", feed.Name, "attempt", attempt, "wait", wait, "error", err)
	}

	var parsed *gofeed.Feed
	err := retry.WithRetry(ctx, cfg, func() error {
		var err error
		parsed, err = f.fetchOnce(ctx, feed.URL)
		return err
	})
	if err != nil {
		return nil, err
	}
	return convert(feed, parsed), nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get feed: %w", err)
	}
	defer resp.Body.Close()

	if err := retry.CheckStatus(resp); err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("read feed: %w", ctx.Err())
		}
		return nil, retry.Permanent(fmt.Errorf("parse feed: %w", err))
	}
	return feed, nil
}

func convert(feed Feed, parsed *gofeed.Feed) []Item {
	items := make([]Item, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		if it == nil {
			continue
		}
		item := Item{
			Feed:        feed,
			Title:       it.Title,
			Link:        strings.TrimSpace(it.Link),
			Description: it.Description,
			Content:     it.Content,
			Categories:  it.Categories,
		}
		switch {
		case it.PublishedParsed != nil:
			item.Published = it.PublishedParsed
		case it.UpdatedParsed != nil:
			item.Published = it.UpdatedParsed
		}
		item.ImageURL = imageOf(it)
		items = append(items, item)
	}
	return items
}

func imageOf(it *gofeed.Item) string {
	if it.Image != nil && it.Image.URL != "" {
		return it.Image.URL
	}
	for _, enc := range it.Enclosures {
		if enc != nil && enc.URL != "" && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}
