package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/technews/internal/news"
)

// MemoryStore keeps articles in memory and optionally snapshots them to a
// JSON file after every write.
type MemoryStore struct {
	filePath string
	mu       sync.RWMutex
	byURL    map[string]*news.Article
}

var (
	_ Store         = (*MemoryStore)(nil)
	_ StatsReporter = (*MemoryStore)(nil)
)

// NewMemoryStore creates a store. An empty filePath disables persistence.
func NewMemoryStore(filePath string) *MemoryStore {
	return &MemoryStore{
		filePath: filePath,
		byURL:    make(map[string]*news.Article),
	}
}

// Load reads the JSON snapshot, if any.
func (s *MemoryStore) Load() error {
	if s.filePath == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read store file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var items []news.Article
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("unmarshal store file: %w", err)
	}
	for i := range items {
		a := items[i]
		if a.SourceURL == "" {
			continue
		}
		s.byURL[a.SourceURL] = &a
	}
	return nil
}

// save writes the snapshot through a temp file and rename. Caller holds mu.
func (s *MemoryStore) save() error {
	if s.filePath == "" {
		return nil
	}
	items := make([]news.Article, 0, len(s.byURL))
	for _, a := range s.byURL {
		items = append(items, *a)
	}
	sortNewestFirst(items)

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	if dir := filepath.Dir(s.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create store dir: %w", err)
		}
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write store file: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return fmt.Errorf("rename store file: %w", err)
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, f Filter, limit int) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	limit = clampLimit(limit)

	allowed := map[string]bool{}
	for _, name := range storedCategoryNames(f.Categories) {
		allowed[name] = true
	}

	s.mu.RLock()
	var matched []news.Article
	for _, a := range s.byURL {
		if len(allowed) > 0 && !allowed[string(a.Category)] {
			continue
		}
		if !f.PublishedAfter.IsZero() && a.PublishedAt.Before(f.PublishedAfter) {
			continue
		}
		if !f.afterCursor(a.PublishedAt, a.SourceURL) {
			continue
		}
		item := *a
		item.Body = ""
		item.Category = canonical(string(item.Category))
		item.Companies = append([]string(nil), a.Companies...)
		matched = append(matched, item)
	}
	s.mu.RUnlock()

	sortNewestFirst(matched)
	if len(matched) > limit+1 {
		matched = matched[:limit+1]
	}
	return finishPage(matched, limit), nil
}

func (s *MemoryStore) UpsertBatch(ctx context.Context, articles []news.Article) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var inserted []string
	for _, a := range articles {
		if a.SourceURL == "" {
			continue
		}
		if _, exists := s.byURL[a.SourceURL]; exists {
			continue
		}
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now().UTC()
		}
		a.Companies = append([]string(nil), a.Companies...)
		s.byURL[a.SourceURL] = &a
		inserted = append(inserted, a.SourceURL)
	}
	if len(inserted) == 0 {
		return nil, nil
	}
	if err := s.save(); err != nil {
		return inserted, err
	}
	return inserted, nil
}

func (s *MemoryStore) ExistsByURLs(ctx context.Context, urls []string) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]struct{})
	for _, u := range urls {
		if _, ok := s.byURL[u]; ok {
			out[u] = struct{}{}
		}
	}
	return out, nil
}

func (s *MemoryStore) ApplyEnrichment(ctx context.Context, sourceURL string, e Enrichment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byURL[sourceURL]
	if !ok {
		return ErrNotFound
	}
	if e.TranslatedTitle != "" {
		a.TranslatedTitle = e.TranslatedTitle
	}
	if e.TranslatedSummary != "" {
		a.TranslatedSummary = e.TranslatedSummary
	}
	if e.TranslationLang != "" {
		a.TranslationLang = e.TranslationLang
	}
	if len(a.Companies) == 0 && len(e.Companies) > 0 {
		a.Companies = append([]string(nil), e.Companies...)
	}
	return s.save()
}

func (s *MemoryStore) MissingCompanies(ctx context.Context, limit int) ([]news.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)
	s.mu.RLock()
	var out []news.Article
	for _, a := range s.byURL {
		if len(a.Companies) == 0 {
			item := *a
			item.Body = ""
			out = append(out, item)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored articles.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byURL)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

func sortNewestFirst(items []news.Article) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].PublishedAt.Equal(items[j].PublishedAt) {
			return items[i].PublishedAt.After(items[j].PublishedAt)
		}
		return items[i].SourceURL < items[j].SourceURL
	})
}

// Stats returns the article count per canonical category.
func (s *MemoryStore) Stats(ctx context.Context) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]int{"total_articles": len(s.byURL)}
	for _, a := range s.byURL {
		stats["category_"+string(canonical(string(a.Category)))]++
	}
	return stats, nil
}
