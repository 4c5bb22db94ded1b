package scraper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/deusflow/technews/internal/retry"
)

const articleHTML = `<!doctype html>
<html><head>
<title>Fallback title</title>
<meta property="og:title" content="Apple unveils Vision Pro 2">
<meta property="og:image" content="/img/vision.jpg">
</head>
<body>
<article>
<h1>Apple unveils Vision Pro 2</h1>
<p>Apple today announced the second generation of its headset with a lighter frame.</p>
<p>The device ships next month in the United States and several other markets.</p>
<p>Pricing starts lower than the original model according to the company.</p>
<p>short</p>
</article>
</body></html>`

func newTestScraper(c *http.Client) *Scraper {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithClient(c),
		WithTimeout(2*time.Second),
		WithRetry(retry.RetryConfig{MaxAttempts: 2, Delay: time.Millisecond}),
	)
}

func TestExtractFullArticle(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, articleHTML)
	}))
	defer srv.Close()

	got, err := newTestScraper(srv.Client()).ExtractFullArticle(context.Background(), srv.URL+"/news/vision")
	if err != nil {
		t.Fatalf("ExtractFullArticle: %v", err)
	}
	if got.Title != "Apple unveils Vision Pro 2" {
		t.Errorf("title = %q", got.Title)
	}
	if got.ImageURL != srv.URL+"/img/vision.jpg" {
		t.Errorf("image = %q", got.ImageURL)
	}
	if strings.Count(got.Content, "\n\n") != 2 || strings.Contains(got.Content, "short") {
		t.Errorf("content = %q", got.Content)
	}
}

func TestImageURLFallbacks(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/twitter", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `<html><head><meta name="twitter:image" content="https://cdn.example.com/t.png"></head></html>`)
	})
	mux.HandleFunc("/none", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `<html><head><meta property="og:image" content="javascript:alert(1)"></head></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := newTestScraper(srv.Client())
	if got, err := s.ImageURL(context.Background(), srv.URL+"/twitter"); err != nil || got != "https://cdn.example.com/t.png" {
		t.Errorf("twitter image = %q, %v", got, err)
	}
	if got, err := s.ImageURL(context.Background(), srv.URL+"/none"); err != nil || got != "" {
		t.Errorf("unsafe image = %q, %v", got, err)
	}
}

func TestNotFoundIsPermanent(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	_, err := newTestScraper(srv.Client()).ExtractFullArticle(context.Background(), srv.URL)
	if !errors.Is(err, retry.ErrPermanent) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}
