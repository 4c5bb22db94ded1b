package syndication

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deusflow/technews/internal/news"
	"github.com/deusflow/technews/internal/storage"
)

var now = time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)

var channel = Channel{Title: "Tech News", Link: "https://news.example.com", Description: "Daily tech", Language: "en"}

func articles(n int) []news.Article {
	out := make([]news.Article, n)
	for i := range out {
		out[i] = news.Article{
			Title:       fmt.Sprintf("Story %d", i),
			Summary:     "Summary & details",
			Category:    news.CategoryDev,
			SourceURL:   fmt.Sprintf("https://example.com/%d", i),
			PublishedAt: now.Add(-time.Duration(n-i) * time.Minute),
		}
	}
	return out
}

func TestRSS(t *testing.T) {
	t.Parallel()
	in := articles(60)
	in[59].ImageURL = "https://cdn.example.com/a.png"

	out, err := RSS(channel, in, now)
	if err != nil {
		t.Fatalf("RSS: %v", err)
	}
	var doc rssDoc
	if err := xml.Unmarshal(out, &doc); err != nil {
		t.Fatalf("output is not valid xml: %v", err)
	}
	items := doc.Channel.Items
	if len(items) != RSSItems {
		t.Fatalf("items = %d, want %d", len(items), RSSItems)
	}
	if items[0].Title != "Story 59" || items[49].Title != "Story 10" {
		t.Errorf("order wrong: first %q last %q", items[0].Title, items[49].Title)
	}
	if items[0].Enclosure == nil || items[0].Enclosure.Type != "image/png" {
		t.Errorf("enclosure = %+v", items[0].Enclosure)
	}
	if !items[0].GUID.IsPermaLink || items[0].GUID.Value != "https://example.com/59" {
		t.Errorf("guid = %+v", items[0].GUID)
	}
	if items[0].Description != "Summary & details" {
		t.Errorf("description = %q", items[0].Description)
	}
	if doc.Channel.LastBuildDate != "Wed, 12 Mar 2025 09:00:00 +0000" {
		t.Errorf("lastBuildDate = %q", doc.Channel.LastBuildDate)
	}
}

func TestSitemap(t *testing.T) {
	t.Parallel()
	out, err := Sitemap(channel, articles(1005))
	if err != nil {
		t.Fatalf("Sitemap: %v", err)
	}
	s := string(out)
	if got := strings.Count(s, "<url>"); got != SitemapItems {
		t.Errorf("urls = %d, want %d", got, SitemapItems)
	}
	for _, want := range []string{
		`xmlns:news="` + newsNS + `"`,
		"<news:name>Tech News</news:name>",
		"<news:language>en</news:language>",
		"<loc>https://example.com/1004</loc>",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("sitemap missing %q", want)
		}
	}
	if strings.Contains(s, "<loc>https://example.com/4</loc>") {
		t.Error("oldest articles should be cut")
	}
}

func TestWriterGenerate(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "public")
	store := storage.NewMemoryStore("")
	if _, err := store.UpsertBatch(context.Background(), articles(3)); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	w := NewWriter(dir, channel, store, nil)
	if err := w.Generate(context.Background(), now); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, name := range []string{RSSFile, SitemapFile} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if !strings.Contains(string(data), "Story 2") {
			t.Errorf("%s missing newest story", name)
		}
	}
}
