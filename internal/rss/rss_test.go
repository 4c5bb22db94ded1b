package rss

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deusflow/technews/internal/retry"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Example Tech</title>
  <link>https://example.com</link>
  <description>Tech news</description>
  <item>
    <title>OpenAI launches GPT-5</title>
    <link>https://example.com/gpt5</link>
    <description>&lt;p&gt;OpenAI unveiled its next model.&lt;/p&gt;</description>
    <pubDate>Mon, 10 Mar 2025 09:00:00 +0000</pubDate>
    <enclosure url="https://example.com/gpt5.jpg" type="image/jpeg" length="1000"/>
  </item>
  <item>
    <title>Second story</title>
    <link>https://example.com/second</link>
    <description>Another one.</description>
  </item>
</channel>
</rss>`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastFetcher(client *http.Client) *Fetcher {
	return NewFetcher(Options{
		Timeout: 2 * time.Second,
		Retry:   retry.RetryConfig{MaxAttempts: 3, Delay: time.Millisecond, Backoff: true},
		Client:  client,
	}, quietLogger())
}

func TestLoadFeeds(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "feeds.yaml")
	content := `feeds:
  - name: TechCrunch
    url: https://techcrunch.com/feed/
    category: startups
  - url: https://www.theverge.com/rss/index.xml
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	feeds, err := LoadFeeds(path)
	if err != nil {
		t.Fatalf("LoadFeeds: %v", err)
	}
	if len(feeds) != 2 || feeds[0].Category != "startups" || feeds[1].Name != "theverge.com" {
		t.Fatalf("feeds = %+v", feeds)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(bad, []byte("feeds:\n  - name: nourl\n"), 0o644)
	if _, err := LoadFeeds(bad); err == nil {
		t.Fatal("expected error for feed without url")
	}
}

func TestFetchParsesItemsInOrder(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = io.WriteString(w, sampleRSS)
	}))
	defer srv.Close()

	items, err := fastFetcher(srv.Client()).Fetch(context.Background(), Feed{Name: "ex", URL: srv.URL, Category: "ai"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items", len(items))
	}
	first := items[0]
	if first.Title != "OpenAI launches GPT-5" || first.Link != "https://example.com/gpt5" {
		t.Fatalf("first item = %+v", first)
	}
	if first.Published == nil || first.Published.Day() != 10 {
		t.Fatalf("published = %v", first.Published)
	}
	if first.ImageURL != "https://example.com/gpt5.jpg" || first.Feed.Category != "ai" {
		t.Fatalf("image/feed = %q %+v", first.ImageURL, first.Feed)
	}
	if items[1].Published != nil {
		t.Fatal("second item has no date")
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, sampleRSS)
	}))
	defer srv.Close()

	items, err := fastFetcher(srv.Client()).Fetch(context.Background(), Feed{URL: srv.URL})
	if err != nil || len(items) != 2 || calls.Load() != 3 {
		t.Fatalf("err=%v items=%d calls=%d", err, len(items), calls.Load())
	}
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := fastFetcher(srv.Client()).Fetch(context.Background(), Feed{URL: srv.URL})
	if !errors.Is(err, retry.ErrPermanent) || calls.Load() != 1 {
		t.Fatalf("err=%v calls=%d", err, calls.Load())
	}
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/good", func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, sampleRSS) })
	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "not xml at all {") })
	mux.HandleFunc("/gone", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusGone) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	feeds := []Feed{
		{Name: "good", URL: srv.URL + "/good"},
		{Name: "broken", URL: srv.URL + "/broken"},
		{Name: "gone", URL: srv.URL + "/gone"},
		{Name: "good2", URL: srv.URL + "/good"},
	}
	results := fastFetcher(srv.Client()).FetchAll(context.Background(), feeds)
	if len(results) != 4 {
		t.Fatalf("got %d results", len(results))
	}
	for i, want := range []bool{true, false, false, true} {
		if ok := results[i].Err == nil; ok != want {
			t.Errorf("result %d (%s): ok=%v err=%v", i, results[i].Feed.Name, ok, results[i].Err)
		}
		if results[i].Feed.Name != feeds[i].Name {
			t.Errorf("result %d out of order", i)
		}
	}
	var se *SourceError
	if !errors.As(results[2].Err, &se) || se.Feed.Name != "gone" {
		t.Fatalf("expected SourceError for gone, got %v", results[2].Err)
	}
}

func TestNewFetcherClampsConcurrency(t *testing.T) {
	t.Parallel()

	if f := NewFetcher(Options{Concurrency: 50}, quietLogger()); f.concurrency != MaxConcurrency {
		t.Fatalf("concurrency = %d", f.concurrency)
	}
	if f := NewFetcher(Options{}, quietLogger()); f.concurrency != DefaultConcurrency || f.timeout != DefaultTimeout {
		t.Fatalf("defaults = %d %v", f.concurrency, f.timeout)
	}
}
