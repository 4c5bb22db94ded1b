// Package summarize turns an article into a short summary and a category.
// Providers are tried in order behind a response cache and a request
// budget; when none answers, a deterministic extractive summary is used.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/deusflow/technews/internal/cache"
	"github.com/deusflow/technews/internal/news"
	"github.com/deusflow/technews/internal/ratelimit"
)

// ProviderFallback marks results produced without any AI provider.
const ProviderFallback = "fallback"

const (
	// MaxInputRunes bounds the body sent to a provider.
	MaxInputRunes = 6000
	maxSummary    = 250
	cacheName     = "summary"
)

// Result is a summary with an optional AI-assigned category.
type Result struct {
	Summary  string        `json:"summary"`
	Category news.Category `json:"category,omitempty"`
	Provider string        `json:"provider"`
	Cached   bool          `json:"-"`
}

// Provider is one AI backend.
type Provider interface {
	Name() string
	Summarize(ctx context.Context, title, body string) (Result, error)
}

// Stats counts where results came from.
type Stats struct {
	CacheHits int64
	AI        int64
	Fallbacks int64
	Failures  int64
}

// Chain tries providers in order. It never fails.
type Chain struct {
	providers []Provider
	cache     cache.Backend
	ttl       time.Duration
	budget    *ratelimit.Budget
	timeout   time.Duration
	log       *slog.Logger

	cacheHits atomic.Int64
	ai        atomic.Int64
	fallbacks atomic.Int64
	failures  atomic.Int64
}

type Option func(*Chain)

// WithCache stores AI results in b for ttl.
func WithCache(b cache.Backend, ttl time.Duration) Option {
	return func(c *Chain) { c.cache, c.ttl = b, ttl }
}

// WithBudget charges every provider call against b.
func WithBudget(b *ratelimit.Budget) Option { return func(c *Chain) { c.budget = b } }

// WithTimeout bounds a single provider call.
func WithTimeout(d time.Duration) Option { return func(c *Chain) { c.timeout = d } }

func NewChain(providers []Provider, log *slog.Logger, opts ...Option) *Chain {
	if log == nil {
		log = slog.Default()
	}
	c := &Chain{
		providers: providers,
		timeout:   30 * time.Second,
		log:       log.With("component", "summarize"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Summarize returns the first usable provider answer, a cached one, or the
// extractive fallback.
func (c *Chain) Summarize(ctx context.Context, title, body string) Result {
	key := cache.Key(cacheName, title, body)
	if c.cache != nil {
		r, ok, err := cache.GetJSON[Result](ctx, c.cache, key)
		if err != nil {
			c.log.Warn("summary cache read failed", "error", err)
		}
		if ok && r.Summary != "" {
			c.cacheHits.Add(1)
			if c.budget != nil {
				c.budget.RecordCacheHit()
			}
			r.Cached = true
			return r
		}
	}

	for _, p := range c.providers {
		if c.budget != nil {
			if err := c.budget.Use(p.Name()); err != nil {
				c.log.Debug("provider skipped", "provider", p.Name(), "error", err)
				continue
			}
		}
		r, err := c.call(ctx, p, title, body)
		if err != nil {
			c.failures.Add(1)
			c.log.Warn("provider failed", "provider", p.Name(), "error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		c.ai.Add(1)
		if c.cache != nil {
			if err := cache.SetJSON(ctx, c.cache, key, r, c.ttl); err != nil {
				c.log.Warn("summary cache write failed", "error", err)
			}
		}
		return r
	}

	c.fallbacks.Add(1)
	return Fallback(title, body)
}

func (c *Chain) call(ctx context.Context, p Provider, title, body string) (Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	r, err := p.Summarize(ctx, title, truncateRunes(body, MaxInputRunes))
	if err != nil {
		return Result{}, err
	}
	r.Summary = news.Truncate(strings.TrimSpace(r.Summary), maxSummary)
	if r.Summary == "" {
		return Result{}, fmt.Errorf("%s: empty summary", p.Name())
	}
	if !r.Category.Valid() {
		r.Category = ""
	}
	r.Provider = p.Name()
	return r, nil
}

func (c *Chain) Stats() Stats {
	return Stats{
		CacheHits: c.cacheHits.Load(),
		AI:        c.ai.Load(),
		Fallbacks: c.fallbacks.Load(),
		Failures:  c.failures.Load(),
	}
}

// Fallback summarizes without AI: the first meaningful sentences of body,
// or the title when the body has none.
func Fallback(title, body string) Result {
	s := news.FallbackSummary(body)
	if s == "" {
		s = news.Truncate(strings.TrimSpace(title), maxSummary)
	}
	return Result{Summary: s, Provider: ProviderFallback}
}

// Category resolves the article category: the AI answer, then the feed's
// configured category, then the keyword classifier, then news.DefaultCategory.
func Category(r Result, feedCategory news.Category, title, summary string) news.Category {
	if r.Category.Valid() {
		return r.Category
	}
	if feedCategory.Valid() {
		return feedCategory
	}
	if c, ok := news.Classify(title, summary); ok {
		return c
	}
	return news.DefaultCategory
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// Prompt is the instruction shared by every provider. Answers follow the
// labelled format read by ParseResponse.
func Prompt(title, body string) string {
	cats := make([]string, len(news.Categories))
	for i, c := range news.Categories {
		cats[i] = string(c)
	}
	return fmt.Sprintf(`You are an editor of a technology news digest.

Read the article below and answer in exactly this format:

SUMMARY: <one or two plain sentences, 100-250 characters, no markdown>
CATEGORY: <one of: %s>

Categories: ai = artificial intelligence and machine learning; startups = funding, acquisitions, founders;
dev = programming, developer tools, infrastructure, security; product = launches, design, consumer products;
research = science, papers, space.

Title: %s

Article:
%s`, strings.Join(cats, ", "), title, body)
}

var labels = []struct {
	name string
	re   *regexp.Regexp
}{
	{"summary", regexp.MustCompile(`(?i)^\**\s*(SUMMARY|SUMMARISE|SUMMARIZE)\s*\**\s*: ?\**\s*`)},
	{"category", regexp.MustCompile(`(?i)^\**\s*(CATEGORY|TOPIC)\s*\**\s*: ?\**\s*`)},
}

// ParseResponse reads a labelled provider answer. Lines after a label
// continue its section; an unknown category is dropped, a missing summary
// is an error.
func ParseResponse(response string) (Result, error) {
	var summary, category strings.Builder
	current := ""
	appendText := func(text string) {
		var b *strings.Builder
		switch current {
		case "summary":
			b = &summary
		case "category":
			b = &category
		default:
			return
		}
		if text == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}

	for _, raw := range strings.Split(response, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		matched := false
		for _, l := range labels {
			if l.re.MatchString(line) {
				current = l.name
				appendText(strings.TrimSpace(l.re.ReplaceAllString(line, "")))
				matched = true
				break
			}
		}
		if !matched {
			appendText(line)
		}
	}

	r := Result{Summary: strings.Trim(strings.TrimSpace(summary.String()), "*\"")}
	if r.Summary == "" {
		return Result{}, fmt.Errorf("no SUMMARY section in response")
	}
	word := strings.ToLower(strings.Trim(strings.TrimSpace(category.String()), "*.\"`"))
	if f := strings.Fields(word); len(f) > 0 {
		word = f[0]
	}
	if c, ok := news.ParseCategory(word); ok {
		r.Category = c
	}
	return r, nil
}
