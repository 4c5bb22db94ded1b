package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/deusflow/technews/internal/news"
)

var base = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *MemoryStore, n int, cat news.Category) []news.Article {
	t.Helper()
	var batch []news.Article
	for i := 0; i < n; i++ {
		batch = append(batch, news.Article{
			Title:       fmt.Sprintf("story %d", i),
			Body:        "full text",
			Category:    cat,
			SourceURL:   fmt.Sprintf("https://example.com/%s/%d", cat, i),
			PublishedAt: base.Add(-time.Duration(i) * time.Hour),
		})
	}
	inserted, err := s.UpsertBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	if len(inserted) != n {
		t.Fatalf("inserted %d, want %d", len(inserted), n)
	}
	return batch
}

func TestMemoryUpsertSkipsConflicts(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore("")
	seed(t, s, 3, news.CategoryAI)

	again := []news.Article{
		{Title: "changed", SourceURL: "https://example.com/ai/0", Category: news.CategoryDev, PublishedAt: base},
		{Title: "new", SourceURL: "https://example.com/new", Category: news.CategoryDev, PublishedAt: base},
		{Title: "no url"},
	}
	inserted, err := s.UpsertBatch(context.Background(), again)
	if err != nil || !reflect.DeepEqual(inserted, []string{"https://example.com/new"}) {
		t.Fatalf("UpsertBatch = %v, %v; want only the new url", inserted, err)
	}
	page, _ := s.Query(context.Background(), Filter{Categories: []news.Category{news.CategoryAI}}, 10)
	for _, a := range page.Items {
		if a.Title == "changed" {
			t.Fatal("existing row was overwritten")
		}
		if a.ID == "" || a.CreatedAt.IsZero() {
			t.Fatalf("id/createdAt not assigned: %+v", a)
		}
		if a.Body != "" {
			t.Fatal("body must be excluded from list queries")
		}
	}
}

func TestMemoryCursorPagination(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore("")
	seed(t, s, 7, news.CategoryAI)
	seed(t, s, 2, news.CategoryDev)

	var got []string
	var f Filter
	f.Categories = []news.Category{news.CategoryAI}
	pages := 0
	for {
		page, err := s.Query(context.Background(), f, 3)
		if err != nil {
			t.Fatal(err)
		}
		pages++
		for _, a := range page.Items {
			got = append(got, a.Title)
		}
		if !page.HasMore {
			break
		}
		if !f.Cursor.IsZero() && !page.NextCursor.Before(f.Cursor) {
			t.Fatal("cursor must strictly decrease")
		}
		f.Cursor, f.CursorURL = page.NextCursor, page.NextCursorURL
	}
	want := []string{"story 0", "story 1", "story 2", "story 3", "story 4", "story 5", "story 6"}
	if !reflect.DeepEqual(got, want) || pages != 3 {
		t.Fatalf("got %v in %d pages", got, pages)
	}
}

func TestMemoryCursorInsideEqualTimestamps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		total int
		limit int
	}{
		{"boundary splits a tie group", 7, 3},
		{"one more than a page", 201, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewMemoryStore("")
			var batch []news.Article
			for i := 0; i < tt.total; i++ {
				batch = append(batch, news.Article{
					Title:       fmt.Sprintf("tie %03d", i),
					Category:    news.CategoryAI,
					SourceURL:   fmt.Sprintf("https://example.com/tie/%03d", i),
					PublishedAt: base,
				})
			}
			if _, err := s.UpsertBatch(context.Background(), batch); err != nil {
				t.Fatal(err)
			}

			seen := map[string]bool{}
			var f Filter
			for {
				page, err := s.Query(context.Background(), f, tt.limit)
				if err != nil {
					t.Fatal(err)
				}
				for _, a := range page.Items {
					if seen[a.SourceURL] {
						t.Fatalf("%s returned twice", a.SourceURL)
					}
					seen[a.SourceURL] = true
				}
				if !page.HasMore {
					break
				}
				f.Cursor, f.CursorURL = page.NextCursor, page.NextCursorURL
			}
			if len(seen) != tt.total {
				t.Fatalf("paged %d of %d articles", len(seen), tt.total)
			}
		})
	}
}

func TestFilterAfterCursor(t *testing.T) {
	t.Parallel()

	f := Filter{Cursor: base, CursorURL: "https://b"}
	tests := []struct {
		name string
		at   time.Time
		url  string
		want bool
	}{
		{"older", base.Add(-time.Nanosecond), "https://a", true},
		{"newer", base.Add(time.Nanosecond), "https://z", false},
		{"tie before cursor url", base, "https://a", false},
		{"tie at cursor url", base, "https://b", false},
		{"tie after cursor url", base, "https://c", true},
	}
	for _, tt := range tests {
		if got := f.afterCursor(tt.at, tt.url); got != tt.want {
			t.Errorf("%s: afterCursor = %v, want %v", tt.name, got, tt.want)
		}
	}
	if (Filter{Cursor: base}).afterCursor(base, "https://z") {
		t.Error("a cursor without url must exclude its own timestamp")
	}
	if !(Filter{}).afterCursor(base, "") {
		t.Error("zero cursor must accept everything")
	}
}

func TestMemoryPublishedAfterAndLegacyCategories(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore("")
	_, err := s.UpsertBatch(context.Background(), []news.Article{
		{Title: "legacy", Category: "science", SourceURL: "u1", PublishedAt: base},
		{Title: "old", Category: news.CategoryResearch, SourceURL: "u2", PublishedAt: base.AddDate(0, 0, -30)},
		{Title: "other", Category: news.CategoryAI, SourceURL: "u3", PublishedAt: base},
	})
	if err != nil {
		t.Fatal(err)
	}
	page, err := s.Query(context.Background(), Filter{
		Categories:     []news.Category{news.CategoryResearch},
		PublishedAfter: base.AddDate(0, 0, -7),
	}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 || page.Items[0].Title != "legacy" || page.Items[0].Category != news.CategoryResearch {
		t.Fatalf("unexpected page %+v", page.Items)
	}
}

func TestMemoryExistsByURLs(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore("")
	seed(t, s, 2, news.CategoryAI)
	got, err := s.ExistsByURLs(context.Background(), []string{"https://example.com/ai/1", "https://nope"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got["https://example.com/ai/1"]; !ok || len(got) != 1 {
		t.Fatalf("ExistsByURLs = %v", got)
	}
}

func TestMemoryEnrichment(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore("")
	seed(t, s, 1, news.CategoryAI)
	url := "https://example.com/ai/0"
	ctx := context.Background()

	missing, _ := s.MissingCompanies(ctx, 10)
	if len(missing) != 1 {
		t.Fatalf("MissingCompanies = %d", len(missing))
	}

	if err := s.ApplyEnrichment(ctx, url, Enrichment{Companies: []string{"openai"}, TranslatedTitle: "historie 0", TranslationLang: "da"}); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyEnrichment(ctx, url, Enrichment{Companies: []string{"apple"}}); err != nil {
		t.Fatal(err)
	}
	page, _ := s.Query(ctx, Filter{}, 10)
	a := page.Items[0]
	if !reflect.DeepEqual(a.Companies, []string{"openai"}) || a.TranslatedTitle != "historie 0" || a.Title != "story 0" {
		t.Fatalf("enrichment applied wrongly: %+v", a)
	}
	if err := s.ApplyEnrichment(ctx, "https://missing", Enrichment{TranslatedTitle: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if missing, _ := s.MissingCompanies(ctx, 10); len(missing) != 0 {
		t.Fatalf("still missing %d", len(missing))
	}
}

func TestMemorySnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data", "articles.json")
	s := NewMemoryStore(path)
	seed(t, s, 4, news.CategoryDev)

	reloaded := NewMemoryStore(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.Len() != 4 {
		t.Fatalf("reloaded %d articles, want 4", reloaded.Len())
	}
	stats, _ := reloaded.Stats(context.Background())
	if stats["category_dev"] != 4 || stats["total_articles"] != 4 {
		t.Fatalf("stats = %v", stats)
	}

	empty := NewMemoryStore(filepath.Join(t.TempDir(), "missing.json"))
	if err := empty.Load(); err != nil {
		t.Fatalf("missing file should load empty: %v", err)
	}
}
