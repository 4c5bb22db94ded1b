package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/deusflow/technews/internal/cleaner"
	"github.com/deusflow/technews/internal/companies"
	"github.com/deusflow/technews/internal/dedup"
	"github.com/deusflow/technews/internal/enrich"
	"github.com/deusflow/technews/internal/metrics"
	"github.com/deusflow/technews/internal/news"
	"github.com/deusflow/technews/internal/rss"
	"github.com/deusflow/technews/internal/scraper"
	"github.com/deusflow/technews/internal/storage"
	"github.com/deusflow/technews/internal/summarize"
)

// DefaultUpsertBatch is the number of articles written per store call.
const DefaultUpsertBatch = 100

// thinBodyRunes marks feed items whose text is too short to summarize.
const thinBodyRunes = 300

// FeedFetcher downloads all configured feeds.
type FeedFetcher interface {
	FetchAll(ctx context.Context, feeds []rss.Feed) []rss.Result
}

// Summarizer never fails; see summarize.Chain.
type Summarizer interface {
	Summarize(ctx context.Context, title, body string) summarize.Result
}

// PageScraper looks up article pages for images and full text.
type PageScraper interface {
	ExtractFullArticle(ctx context.Context, pageURL string) (*scraper.ArticleContent, error)
	ImageURL(ctx context.Context, pageURL string) (string, error)
}

// Publisher pushes new articles to a channel.
type Publisher interface {
	Publish(ctx context.Context, articles []news.Article, max int) (int, error)
}

// Syndicator regenerates derived feed files.
type Syndicator interface {
	Generate(ctx context.Context, now time.Time) error
}

// Deps are the collaborators of one ingestion run. Store, Fetcher and
// Summarizer are required; everything else is optional.
type Deps struct {
	Feeds      []rss.Feed
	Fetcher    FeedFetcher
	Store      storage.Store
	Summarizer Summarizer
	Scraper    PageScraper
	Queue      *enrich.Queue
	Translator enrich.Translator
	Syndicator Syndicator
	Publisher  Publisher
	Now        func() time.Time
	Log        *slog.Logger
}

// Options tune a Pipeline. Zero values select defaults.
type Options struct {
	UpsertBatch       int
	ScrapeImages      bool
	ScrapeMaxArticles int
	TranslateFrom     string
	TranslateTo       string
	TelegramMaxPosts  int
}

// RunReport summarizes one ingestion run.
type RunReport struct {
	metrics.RunStats
	FeedErrors []*rss.SourceError `json:"-"`
	Started    time.Time          `json:"started"`
	Duration   time.Duration      `json:"duration"`
}

// FeedErrorMessages renders FeedErrors for display.
func (r RunReport) FeedErrorMessages() []string {
	out := make([]string, len(r.FeedErrors))
	for i, e := range r.FeedErrors {
		out[i] = e.Error()
	}
	return out
}

type Pipeline struct {
	deps Deps
	opts Options
	log  *slog.Logger
}

func NewPipeline(deps Deps, opts Options) *Pipeline {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if opts.UpsertBatch <= 0 {
		opts.UpsertBatch = DefaultUpsertBatch
	}
	return &Pipeline{deps: deps, opts: opts, log: deps.Log.With("component", "ingest")}
}

type candidate struct {
	article      news.Article
	feedCategory news.Category
}

// Run performs one ingestion run. Per-feed, per-article, AI and consumer
// failures are recorded in the report; only a failing duplicate lookup
// aborts the run because nothing could be stored safely without it.
func (p *Pipeline) Run(ctx context.Context) (RunReport, error) {
	rep := RunReport{Started: p.deps.Now()}

	results := p.deps.Fetcher.FetchAll(ctx, p.deps.Feeds)
	cands := p.normalize(ctx, results, &rep)

	feedCats := make(map[string]news.Category, len(cands))
	batch := make([]news.Article, 0, len(cands))
	for _, c := range cands {
		feedCats[c.article.SourceURL] = c.feedCategory
		batch = append(batch, c.article)
	}

	d, err := dedup.Dedupe(ctx, batch, p.deps.Store)
	if err != nil {
		rep.Duration = p.deps.Now().Sub(rep.Started)
		metrics.Global.SetError(err.Error())
		return rep, fmt.Errorf("dedupe: %w", err)
	}
	rep.Duplicates = d.Stored + d.RepeatedURL + d.NearDuplicates
	rep.Accepted = len(d.Kept)
	p.log.Info("dedupe finished",
		"candidates", len(batch),
		"kept", len(d.Kept),
		"stored", d.Stored,
		"repeated_url", d.RepeatedURL,
		"near_duplicates", d.NearDuplicates,
	)

	now := p.deps.Now().UTC()
	ready := make([]news.Article, 0, len(d.Kept))
	for _, a := range d.Kept {
		if ctx.Err() != nil {
			break
		}
		a = p.enrichArticle(ctx, a, feedCats[a.SourceURL], &rep)
		a.ID = uuid.NewString()
		a.CreatedAt = now
		ready = append(ready, a)
	}

	stored := p.store(ctx, ready, &rep)
	p.enqueueTranslations(stored, &rep)

	if p.deps.Syndicator != nil {
		if err := p.deps.Syndicator.Generate(ctx, p.deps.Now()); err != nil {
			p.log.Error("syndication failed", "error", err)
		}
	}
	if p.deps.Publisher != nil && p.opts.TelegramMaxPosts > 0 && len(stored) > 0 {
		sent, err := p.deps.Publisher.Publish(ctx, stored, p.opts.TelegramMaxPosts)
		rep.TelegramPosts = sent
		if err != nil {
			p.log.Error("telegram publishing incomplete", "sent", sent, "error", err)
		}
	}

	rep.Duration = p.deps.Now().Sub(rep.Started)
	metrics.Global.RecordRun(rep.RunStats, rep.Duration)
	p.log.Info("ingestion run finished",
		"fetched", rep.Fetched,
		"inserted", rep.Inserted,
		"duplicates", rep.Duplicates,
		"skipped_malformed", rep.SkippedMalformed,
		"skipped_invalid", rep.SkippedInvalid,
		"source_errors", rep.SourceErrors,
		"duration", rep.Duration,
	)
	return rep, nil
}

// normalize turns feed items into cleaned candidate articles in feed order.
func (p *Pipeline) normalize(ctx context.Context, results []rss.Result, rep *RunReport) []candidate {
	var out []candidate
	scrapes := 0
	for _, res := range results {
		if res.Err != nil {
			rep.FeedErrors = append(rep.FeedErrors, res.Err)
			rep.SourceErrors++
			p.log.Warn("feed skipped", "source", res.Feed.Name, "url", res.Feed.URL, "error", res.Err.Err)
			continue
		}
		feedCat, _ := news.ParseCategory(res.Feed.Category)
		for _, it := range res.Items {
			rep.Fetched++
			title := cleaner.CleanTitle(it.Title)
			link := strings.TrimSpace(it.Link)
			if title == "" || link == "" || it.Published == nil || it.Published.IsZero() {
				rep.SkippedMalformed++
				p.log.Debug("malformed item skipped", "source", res.Feed.Name, "url", link, "title", title)
				continue
			}

			raw := it.Content
			if utf8.RuneCountInString(it.Description) > utf8.RuneCountInString(raw) {
				raw = it.Description
			}
			body := cleaner.Clean(raw)
			image := it.ImageURL

			if utf8.RuneCountInString(body) < thinBodyRunes && p.deps.Scraper != nil && scrapes < p.opts.ScrapeMaxArticles {
				scrapes++
				if page, err := p.deps.Scraper.ExtractFullArticle(ctx, link); err != nil {
					p.log.Debug("full text fetch failed", "url", link, "error", err)
				} else {
					if text := cleaner.Clean(page.Content); utf8.RuneCountInString(text) > utf8.RuneCountInString(body) {
						body = text
					}
					if image == "" {
						image = page.ImageURL
					}
				}
			}

			if !cleaner.IsValidContent(title, body) {
				rep.SkippedInvalid++
				p.log.Debug("invalid item skipped", "source", res.Feed.Name, "url", link)
				continue
			}
			out = append(out, candidate{
				article: news.Article{
					Title:       title,
					Body:        body,
					Companies:   companies.ExtractFrom(title, cleaner.Clean(it.Description)),
					Source:      res.Feed.Name,
					SourceURL:   link,
					ImageURL:    image,
					PublishedAt: it.Published.UTC(),
				},
				feedCategory: feedCat,
			})
		}
	}
	return out
}

// enrichArticle adds summary, category, companies and image.
func (p *Pipeline) enrichArticle(ctx context.Context, a news.Article, feedCat news.Category, rep *RunReport) news.Article {
	r := p.deps.Summarizer.Summarize(ctx, a.Title, a.Body)
	switch {
	case r.Cached:
		rep.CacheHits++
	case r.Provider == summarize.ProviderFallback:
		rep.AIFallbacks++
	default:
		rep.AISummaries++
	}
	a.Summary = r.Summary
	a.Category = summarize.Category(r, feedCat, a.Title, a.Summary)
	a.Companies = mergeSlugs(a.Companies, companies.ExtractFrom(a.Title, a.Summary))

	if a.ImageURL == "" && p.opts.ScrapeImages && p.deps.Scraper != nil {
		img, err := p.deps.Scraper.ImageURL(ctx, a.SourceURL)
		switch {
		case err != nil:
			p.log.Debug("og:image lookup failed", "url", a.SourceURL, "error", err)
		case img != "":
			a.ImageURL = img
			rep.ImagesScraped++
		}
	}
	return a
}

// store writes articles in batches. A failed batch is logged and skipped;
// earlier batches stay committed. It returns only the articles this run
// inserted, so rows another writer stored first are never published twice.
func (p *Pipeline) store(ctx context.Context, articles []news.Article, rep *RunReport) []news.Article {
	var stored []news.Article
	for i := 0; i < len(articles); i += p.opts.UpsertBatch {
		end := min(i+p.opts.UpsertBatch, len(articles))
		chunk := articles[i:end]
		inserted, err := p.deps.Store.UpsertBatch(ctx, chunk)
		rep.Inserted += len(inserted)
		if err != nil {
			rep.StoreBatchErrors++
			p.log.Error("store batch failed", "batch", i/p.opts.UpsertBatch, "size", len(chunk), "error", err)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			continue
		}
		if len(inserted) < len(chunk) {
			p.log.Debug("batch rows stored by another writer", "batch", i/p.opts.UpsertBatch, "skipped", len(chunk)-len(inserted))
		}
		ours := make(map[string]struct{}, len(inserted))
		for _, u := range inserted {
			ours[u] = struct{}{}
		}
		for _, a := range chunk {
			if _, ok := ours[a.SourceURL]; ok {
				stored = append(stored, a)
			}
		}
	}
	return stored
}

func (p *Pipeline) enqueueTranslations(articles []news.Article, rep *RunReport) {
	if p.deps.Queue == nil || p.deps.Translator == nil || p.opts.TranslateTo == "" {
		return
	}
	for _, a := range articles {
		ok := p.deps.Queue.Submit(enrich.TranslateTask{
			Store:      p.deps.Store,
			Translator: p.deps.Translator,
			Article:    a,
			From:       p.opts.TranslateFrom,
			To:         p.opts.TranslateTo,
		})
		if ok {
			rep.EnrichQueued++
		} else {
			rep.EnrichDropped++
		}
	}
}

// mergeSlugs returns the sorted union of a and b.
func mergeSlugs(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return out
}
