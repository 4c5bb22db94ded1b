package dedup

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/deusflow/technews/internal/news"
)

type fakeStore struct {
	urls  map[string]bool
	calls [][]string
	err   error
}

func (f *fakeStore) ExistsByURLs(_ context.Context, urls []string) (map[string]struct{}, error) {
	f.calls = append(f.calls, append([]string(nil), urls...))
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]struct{}{}
	for _, u := range urls {
		if f.urls[u] {
			out[u] = struct{}{}
		}
	}
	return out, nil
}

func article(url, title string) news.Article {
	return news.Article{SourceURL: url, Title: title}
}

func urlsOf(as []news.Article) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.SourceURL
	}
	return out
}

func TestDedupeTwoStages(t *testing.T) {
	t.Parallel()

	store := &fakeStore{urls: map[string]bool{"https://a.example/stored": true}}
	batch := []news.Article{
		article("https://a.example/1", "Apple unveils Vision Pro 2"),
		article("https://a.example/stored", "Completely different stored story"),
		article("https://b.example/2", "Apple Unveils Vision Pro 2 Leak"),
		article("https://a.example/1", "Same link posted twice by a feed"),
		article("https://c.example/3", "Rust 2.0 released with new borrow checker"),
	}

	res, err := Dedupe(context.Background(), batch, store)
	if err != nil {
		t.Fatalf("Dedupe: %v", err)
	}
	want := []string{"https://a.example/1", "https://c.example/3"}
	if got := urlsOf(res.Kept); !reflect.DeepEqual(got, want) {
		t.Fatalf("kept %v, want %v", got, want)
	}
	if res.Stored != 1 || res.RepeatedURL != 1 || res.NearDuplicates != 1 {
		t.Fatalf("unexpected counters %+v", res)
	}
	if len(store.calls) != 1 {
		t.Fatalf("store queried %d times, want 1", len(store.calls))
	}
}

func TestDedupeIdempotent(t *testing.T) {
	t.Parallel()

	store := &fakeStore{urls: map[string]bool{"u2": true}}
	batch := []news.Article{
		article("u1", "OpenAI launches GPT-5 for everyone"),
		article("u2", "Stored already"),
		article("u3", "OpenAI launches GPT-5 for everyone today"),
		article("u4", "Nvidia earnings beat expectations again"),
	}

	first, err := Dedupe(context.Background(), batch, store)
	if err != nil {
		t.Fatal(err)
	}
	again, err := Dedupe(context.Background(), batch, store)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(urlsOf(first.Kept), urlsOf(again.Kept)) {
		t.Fatalf("second run differs: %v vs %v", urlsOf(first.Kept), urlsOf(again.Kept))
	}
	twice, err := Dedupe(context.Background(), first.Kept, store)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(urlsOf(first.Kept), urlsOf(twice.Kept)) {
		t.Fatalf("dedupe of survivors differs: %v vs %v", urlsOf(first.Kept), urlsOf(twice.Kept))
	}
}

func TestExistingURLsChunks(t *testing.T) {
	t.Parallel()

	store := &fakeStore{urls: map[string]bool{"u0": true, "u120": true}}
	var batch []news.Article
	for i := 0; i < 121; i++ {
		batch = append(batch, article(fmt.Sprintf("u%d", i), ""))
	}
	got, err := ExistingURLs(context.Background(), store, batch)
	if err != nil {
		t.Fatal(err)
	}
	if len(store.calls) != 3 || len(store.calls[0]) != LookupChunk || len(store.calls[2]) != 21 {
		t.Fatalf("unexpected chunking: %d calls", len(store.calls))
	}
	if len(got) != 2 {
		t.Fatalf("found %v", got)
	}
}

func TestDedupeStoreError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	_, err := Dedupe(context.Background(), []news.Article{article("u", "t")}, &fakeStore{err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
}

func TestDedupeCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Dedupe(ctx, []news.Article{article("u", "t")}, &fakeStore{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestFilterNearDuplicatesEmpty(t *testing.T) {
	t.Parallel()

	kept, dropped := FilterNearDuplicates(nil, TitleThreshold)
	if len(kept) != 0 || dropped != 0 {
		t.Fatalf("got %v, %d", kept, dropped)
	}
}
