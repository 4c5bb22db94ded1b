// Package dedup drops articles that are already stored or that repeat an
// earlier article of the same batch.
package dedup

import (
	"context"
	"fmt"

	"github.com/deusflow/technews/internal/news"
	"github.com/deusflow/technews/internal/similarity"
)

const (
	// TitleThreshold is the title similarity above which a batch item is a
	// near duplicate of an earlier accepted one.
	TitleThreshold = 0.75

	// LookupChunk bounds the number of URLs sent in one existence query.
	LookupChunk = 50
)

// URLChecker reports which of the given source URLs are already stored.
type URLChecker interface {
	ExistsByURLs(ctx context.Context, urls []string) (map[string]struct{}, error)
}

// Result is the outcome of Dedupe.
type Result struct {
	Kept           []news.Article
	Stored         int // dropped because the URL is already stored
	RepeatedURL    int // dropped because an earlier batch item has the same URL
	NearDuplicates int // dropped by title similarity
}

// Dedupe runs the exact URL filter against store and then the intra-batch
// title filter. Survivors keep their input order.
func Dedupe(ctx context.Context, batch []news.Article, store URLChecker) (Result, error) {
	var res Result
	if len(batch) == 0 {
		return res, nil
	}

	existing, err := ExistingURLs(ctx, store, batch)
	if err != nil {
		return res, err
	}

	seenURL := make(map[string]bool, len(batch))
	candidates := make([]news.Article, 0, len(batch))
	for _, a := range batch {
		if _, ok := existing[a.SourceURL]; ok {
			res.Stored++
			continue
		}
		if seenURL[a.SourceURL] {
			res.RepeatedURL++
			continue
		}
		seenURL[a.SourceURL] = true
		candidates = append(candidates, a)
	}

	kept, dropped := FilterNearDuplicates(candidates, TitleThreshold)
	res.Kept = kept
	res.NearDuplicates = dropped
	return res, nil
}

// ExistingURLs queries store once per LookupChunk URLs, so the whole batch
// is checked against one consistent snapshot per run.
func ExistingURLs(ctx context.Context, store URLChecker, batch []news.Article) (map[string]struct{}, error) {
	urls := make([]string, 0, len(batch))
	for _, a := range batch {
		urls = append(urls, a.SourceURL)
	}

	existing := make(map[string]struct{})
	for start := 0; start < len(urls); start += LookupChunk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+LookupChunk, len(urls))
		found, err := store.ExistsByURLs(ctx, urls[start:end])
		if err != nil {
			return nil, fmt.Errorf("check urls %d-%d: %w", start, end, err)
		}
		for u := range found {
			existing[u] = struct{}{}
		}
	}
	return existing, nil
}

// FilterNearDuplicates keeps an article only if its title is not more than
// threshold similar to any previously kept title. The first occurrence wins.
func FilterNearDuplicates(batch []news.Article, threshold float64) ([]news.Article, int) {
	kept := make([]news.Article, 0, len(batch))
	dropped := 0
	for _, a := range batch {
		if isNearDuplicate(a.Title, kept, threshold) {
			dropped++
			continue
		}
		kept = append(kept, a)
	}
	return kept, dropped
}

func isNearDuplicate(title string, accepted []news.Article, threshold float64) bool {
	for _, k := range accepted {
		if similarity.Similarity(title, k.Title) > threshold {
			return true
		}
	}
	return false
}
