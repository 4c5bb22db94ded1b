package cluster

import (
	"testing"

	"github.com/deusflow/technews/internal/news"
)

func titles(ts ...string) []news.Article {
	out := make([]news.Article, len(ts))
	for i, t := range ts {
		out[i] = news.Article{Title: t}
	}
	return out
}

func byTitle(articles []news.Article) []Cluster[news.Article] {
	return New(DefaultThreshold, func(a news.Article) string { return a.Title }).Build(articles)
}

func TestBuildGroupsRelatedTitles(t *testing.T) {
	t.Parallel()

	got := byTitle(titles(
		"Apple unveils Vision Pro 2",
		"Rust 2.0 released with new borrow checker",
		"Apple Unveils Vision Pro 2 Leak",
		"Apple unveils Vision Pro 2 headset",
	))
	if len(got) != 2 {
		t.Fatalf("got %d clusters, want 2", len(got))
	}
	if got[0].Representative.Title != "Apple unveils Vision Pro 2" {
		t.Errorf("representative = %q", got[0].Representative.Title)
	}
	if got[0].Size() != 3 {
		t.Errorf("apple cluster size = %d, want 3", got[0].Size())
	}
	if got[1].Size() != 1 || got[1].Representative.Title != "Rust 2.0 released with new borrow checker" {
		t.Errorf("unexpected second cluster %+v", got[1])
	}
	if got[0].ID == "" || got[0].ID == got[1].ID {
		t.Errorf("clusters need distinct ids: %q %q", got[0].ID, got[1].ID)
	}
}

func TestBuildPreservesOrderAndTotals(t *testing.T) {
	t.Parallel()

	in := titles("alpha story one", "beta story two", "gamma story three", "delta story four")
	got := byTitle(in)
	total := 0
	for i, c := range got {
		total += c.Size()
		if c.Representative.Title != in[i].Title {
			t.Errorf("cluster %d representative = %q, want %q", i, c.Representative.Title, in[i].Title)
		}
	}
	if total != len(in) {
		t.Fatalf("total = %d, want %d", total, len(in))
	}
}

func TestThresholdIsStrict(t *testing.T) {
	t.Parallel()

	always := New(1, func(s string) string { return s })
	got := always.Build([]string{"same title", "same title"})
	if len(got) != 2 {
		t.Fatalf("similarity 1.0 must not exceed threshold 1.0, got %d clusters", len(got))
	}

	loose := New(0.01, func(s string) string { return s })
	if got := loose.Build([]string{"same title", "same title"}); len(got) != 1 {
		t.Fatalf("identical titles should cluster, got %d clusters", len(got))
	}
}

func TestNewDefaultsThreshold(t *testing.T) {
	t.Parallel()

	for _, th := range []float64{0, -1, 1.5} {
		if c := New(th, func(s string) string { return s }); c.Threshold != DefaultThreshold {
			t.Errorf("New(%v).Threshold = %v", th, c.Threshold)
		}
	}
	if byTitle(nil) != nil {
		t.Error("empty input should give nil")
	}
}
