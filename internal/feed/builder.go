package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/deusflow/technews/internal/news"
	"github.com/deusflow/technews/internal/scoring"
	"github.com/deusflow/technews/internal/storage"
)

const pageSize = 200

// Builder reads candidate articles from a store and assembles My Feed.
type Builder struct {
	store storage.ArticleStore
	opts  Options
	log   *slog.Logger
}

func NewBuilder(store storage.ArticleStore, opts Options, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{store: store, opts: opts, log: log.With("component", "feed")}
}

// MyFeed returns the Weeks buckets for interests as of now. A profile with
// no categories gets empty buckets.
func (b *Builder) MyFeed(ctx context.Context, interests news.UserInterests, now time.Time) ([]WeekBucket, error) {
	interests = interests.Normalize()
	if len(interests.Categories) == 0 {
		return Assemble(nil, interests, now, b.opts), nil
	}

	windows := Windows(now, b.opts.location())
	candidates, err := b.candidates(ctx, storage.Filter{
		Categories:     interests.Categories,
		PublishedAfter: windows[Weeks-1][0],
	})
	if err != nil {
		return nil, err
	}

	scored := ScoreAll(candidates, interests)
	b.log.Debug("feed scored",
		"candidates", len(candidates),
		"matched", len(scored),
		"categories", len(interests.Categories),
		"keywords", len(interests.Keywords),
		"companies", len(interests.Companies),
	)
	return Assemble(scored, interests, now, b.opts), nil
}

// candidates reads every page of f. PublishedAfter bounds the read to the
// feed window.
func (b *Builder) candidates(ctx context.Context, f storage.Filter) ([]news.Article, error) {
	var out []news.Article
	for {
		page, err := b.store.Query(ctx, f, pageSize)
		if err != nil {
			return nil, fmt.Errorf("query candidates: %w", err)
		}
		out = append(out, page.Items...)
		if !page.HasMore {
			return out, nil
		}
		f.Cursor, f.CursorURL = page.NextCursor, page.NextCursorURL
	}
}

// ScoreAll applies the interest pre-filter, scores survivors with a cluster
// size of 1 and orders them by score, then recency.
func ScoreAll(articles []news.Article, interests news.UserInterests) []news.ScoredArticle {
	var scored []news.ScoredArticle
	for _, a := range articles {
		if !scoring.MatchesUserInterests(a, interests) {
			continue
		}
		scored = append(scored, news.ScoredArticle{Article: a, Score: scoring.Score(a, interests, 1)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].PublishedAt.After(scored[j].PublishedAt)
	})
	return scored
}
