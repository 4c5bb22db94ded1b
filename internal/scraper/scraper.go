package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/technews/internal/retry"
)

// DefaultTimeout bounds one page download.
const DefaultTimeout = 10 * time.Second

// maxBodyBytes caps how much HTML is parsed per page.
const maxBodyBytes = 4 << 20

// ArticleContent is what we extract from an article page.
type ArticleContent struct {
	URL      string
	Title    string
	Content  string
	ImageURL string
}

// Scraper downloads article pages and extracts text and the preview image.
type Scraper struct {
	client    *http.Client
	timeout   time.Duration
	retry     retry.RetryConfig
	userAgent string
	log       *slog.Logger
}

type Option func(*Scraper)

func WithClient(c *http.Client) Option { return func(s *Scraper) { s.client = c } }
func WithTimeout(d time.Duration) Option { return func(s *Scraper) { s.timeout = d } }
func WithRetry(cfg retry.RetryConfig) Option { return func(s *Scraper) { s.retry = cfg } }
func WithUserAgent(ua string) Option { return func(s *Scraper) { s.userAgent = ua } }

func New(log *slog.Logger, opts ...Option) *Scraper {
	s := &Scraper{
		client:    &http.Client{},
		timeout:   DefaultTimeout,
		retry:     retry.Default,
		userAgent: "technews/1.0 (+https://github.com/deusflow/technews)",
		log:       log.With("component", "scraper"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ExtractFullArticle downloads pageURL and extracts title, text and image.
func (s *Scraper) ExtractFullArticle(ctx context.Context, pageURL string) (*ArticleContent, error) {
	var doc *goquery.Document
	cfg := s.retry
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		s.log.Debug("retrying page", "url", pageURL, "attempt", attempt, "wait", wait, "error", err)
	}
	err := retry.WithRetry(ctx, cfg, func() error {
		var err error
		doc, err = s.load(ctx, pageURL)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &ArticleContent{
		URL:      pageURL,
		Title:    extractTitle(doc),
		Content:  extractGenericContent(doc),
		ImageURL: extractImage(doc, pageURL),
	}, nil
}

// ImageURL returns the og:image (or equivalent) of pageURL, or "" when the
// page declares none.
func (s *Scraper) ImageURL(ctx context.Context, pageURL string) (string, error) {
	a, err := s.ExtractFullArticle(ctx, pageURL)
	if err != nil {
		return "", err
	}
	return a.ImageURL, nil
}

func (s *Scraper) load(ctx context.Context, pageURL string) (*goquery.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if err := retry.CheckStatus(resp); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(http.MaxBytesReader(nil, resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error parsing HTML: %w", err)
	}
	return doc, nil
}

// extractGenericContent is universal parser for any site
func extractGenericContent(doc *goquery.Document) string {
	var paragraphs []string

	// Try most popular selectors
	selectors := []string{
		"article p",
		".article p",
		".content p",
		".post-content p",
		".entry-content p",
		"main p",
		"#content p",
		"p",
	}

	for _, selector := range selectors {
		paragraphs = paragraphs[:0]
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			text := strings.Join(strings.Fields(sel.Text()), " ")
			if len(text) > 20 {
				paragraphs = append(paragraphs, text)
			}
		})
		if len(paragraphs) >= 3 { // If we find 3 paragraphs, it's enough
			break
		}
	}

	return strings.Join(paragraphs, "\n\n")
}

// extractTitle gets article title
func extractTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	for _, selector := range []string{"h1", "title", ".article-title", ".headline", ".entry-title"} {
		if title := strings.TrimSpace(doc.Find(selector).First().Text()); title != "" {
			return title
		}
	}
	return ""
}

var imageSelectors = []struct {
	selector string
	attr     string
}{
	{`meta[property="og:image"]`, "content"},
	{`meta[property="og:image:url"]`, "content"},
	{`meta[name="twitter:image"]`, "content"},
	{`meta[name="twitter:image:src"]`, "content"},
	{`link[rel="image_src"]`, "href"},
}

// extractImage returns the absolute preview image URL declared by the page.
func extractImage(doc *goquery.Document, pageURL string) string {
	for _, is := range imageSelectors {
		v, ok := doc.Find(is.selector).First().Attr(is.attr)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		return resolve(pageURL, strings.TrimSpace(v))
	}
	return ""
}

func resolve(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	abs := b.ResolveReference(r)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}
