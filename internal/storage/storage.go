// Package storage persists articles. Every implementation treats
// source_url as the unique key and never overwrites scoring fields.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/deusflow/technews/internal/news"
)

const (
	DefaultLimit = 20
	MaxLimit     = 1000
)

// ErrNotFound is returned when an enrichment targets an unknown article.
var ErrNotFound = errors.New("storage: article not found")

// Filter narrows Query. Zero values mean "no constraint".
type Filter struct {
	Categories     []news.Category
	PublishedAfter time.Time
	// Cursor and CursorURL are the NextCursor and NextCursorURL of the
	// previous page. Articles after that position in (PublishedAt desc,
	// SourceURL asc) order are returned, so a page boundary inside a group
	// of equal timestamps neither repeats nor skips items. An empty
	// CursorURL returns only strictly older articles.
	Cursor    time.Time
	CursorURL string
}

// afterCursor reports whether an article sorts after the cursor position.
func (f Filter) afterCursor(publishedAt time.Time, sourceURL string) bool {
	if f.Cursor.IsZero() {
		return true
	}
	if publishedAt.Before(f.Cursor) {
		return true
	}
	return f.CursorURL != "" && publishedAt.Equal(f.Cursor) && sourceURL > f.CursorURL
}

// Page is one page of articles ordered by PublishedAt descending. Body is
// never populated.
type Page struct {
	Items         []news.Article `json:"items"`
	HasMore       bool           `json:"hasMore"`
	NextCursor    time.Time      `json:"nextCursor,omitempty"`
	NextCursorURL string         `json:"nextCursorUrl,omitempty"`
}

// ArticleStore is the persistence contract used by ingestion and feeds.
type ArticleStore interface {
	Query(ctx context.Context, f Filter, limit int) (Page, error)
	// UpsertBatch inserts articles whose source URL is not stored yet and
	// silently skips the rest. It returns the source URLs this call
	// actually inserted.
	UpsertBatch(ctx context.Context, articles []news.Article) ([]string, error)
	ExistsByURLs(ctx context.Context, urls []string) (map[string]struct{}, error)
	Close() error
}

// Enrichment carries fields written after ingestion. Empty fields are left
// untouched; Companies is only applied when the stored set is empty.
type Enrichment struct {
	TranslatedTitle   string
	TranslatedSummary string
	TranslationLang   string
	Companies         []string
}

// Enricher is implemented by stores that accept asynchronous enrichment.
type Enricher interface {
	ApplyEnrichment(ctx context.Context, sourceURL string, e Enrichment) error
	MissingCompanies(ctx context.Context, limit int) ([]news.Article, error)
}

// Store is what the application wires: a queryable, enrichable store.
type Store interface {
	ArticleStore
	Enricher
}

// StatsReporter is implemented by stores that can count their articles.
// Keys are "total_articles" and "category_<name>".
type StatsReporter interface {
	Stats(ctx context.Context) (map[string]int, error)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

// storedCategoryNames expands canonical categories to every stored alias.
func storedCategoryNames(cats []news.Category) []string {
	var out []string
	for _, c := range cats {
		out = append(out, c.StoredNames()...)
	}
	return out
}

// canonical maps a stored category name to the canonical one, keeping
// unknown names unchanged.
func canonical(stored string) news.Category {
	if c, ok := news.ParseCategory(stored); ok {
		return c
	}
	return news.Category(stored)
}

// finishPage trims a limit+1 result to limit items and fills the cursor.
func finishPage(items []news.Article, limit int) Page {
	p := Page{Items: items}
	if len(items) > limit {
		p.Items = items[:limit]
		p.HasMore = true
		last := p.Items[limit-1]
		p.NextCursor = last.PublishedAt
		p.NextCursorURL = last.SourceURL
	}
	if p.Items == nil {
		p.Items = []news.Article{}
	}
	return p
}
