package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/deusflow/technews/internal/cache"
	"github.com/deusflow/technews/internal/news"
	"github.com/deusflow/technews/internal/ratelimit"
)

type stubProvider struct {
	name  string
	res   Result
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Summarize(context.Context, string, string) (Result, error) {
	s.calls++
	return s.res, s.err
}

const body = "OpenAI released a new reasoning model for developers this week. " +
	"The model is available through the API with lower prices than before."

func TestParseResponse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		in       string
		summary  string
		category news.Category
		wantErr  bool
	}{
		{
			name:     "plain labels",
			in:       "SUMMARY: A new model ships.\nCATEGORY: ai",
			summary:  "A new model ships.",
			category: news.CategoryAI,
		},
		{
			name:     "markdown and continuation",
			in:       "**SUMMARY:** A startup raised money.\nIt plans to hire.\n\n**Category**: Startups.",
			summary:  "A startup raised money. It plans to hire.",
			category: news.CategoryStartups,
		},
		{
			name:     "legacy category name",
			in:       "Summary: Rocket launch.\nCategory: space",
			summary:  "Rocket launch.",
			category: news.CategoryResearch,
		},
		{
			name:    "unknown category dropped",
			in:      "SUMMARY: Something happened.\nCATEGORY: politics",
			summary: "Something happened.",
		},
		{
			name:    "missing summary",
			in:      "CATEGORY: dev",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseResponse(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Summary != tt.summary {
				t.Errorf("summary = %q, want %q", got.Summary, tt.summary)
			}
			if got.Category != tt.category {
				t.Errorf("category = %q, want %q", got.Category, tt.category)
			}
		})
	}
}

func TestChainFallsThroughProviders(t *testing.T) {
	t.Parallel()
	failing := &stubProvider{name: "gemini", err: errors.New("boom")}
	ok := &stubProvider{name: "openai", res: Result{Summary: " Short summary. ", Category: news.CategoryAI}}
	c := NewChain([]Provider{failing, ok}, nil)

	got := c.Summarize(context.Background(), "title", body)
	if got.Provider != "openai" || got.Summary != "Short summary." || got.Category != news.CategoryAI {
		t.Fatalf("unexpected result %+v", got)
	}
	if s := c.Stats(); s.AI != 1 || s.Failures != 1 || s.Fallbacks != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestChainFallbackWhenAllFail(t *testing.T) {
	t.Parallel()
	p := &stubProvider{name: "gemini", res: Result{Summary: "   "}}
	c := NewChain([]Provider{p}, nil)

	got := c.Summarize(context.Background(), "title", body)
	if got.Provider != ProviderFallback {
		t.Fatalf("provider = %q, want fallback", got.Provider)
	}
	if !strings.HasPrefix(got.Summary, "OpenAI released") {
		t.Errorf("fallback summary = %q", got.Summary)
	}
	if got.Category != "" {
		t.Errorf("fallback must not set a category, got %q", got.Category)
	}
}

func TestChainBudgetSkipsProvider(t *testing.T) {
	t.Parallel()
	gem := &stubProvider{name: "gemini", res: Result{Summary: "from gemini"}}
	oai := &stubProvider{name: "openai", res: Result{Summary: "from openai"}}
	budget := ratelimit.NewBudget(map[string]int{"gemini": 1}, 0, 0)
	c := NewChain([]Provider{gem, oai}, nil, WithBudget(budget))

	if got := c.Summarize(context.Background(), "a", body); got.Provider != "gemini" {
		t.Fatalf("first call provider = %q", got.Provider)
	}
	if got := c.Summarize(context.Background(), "b", body); got.Provider != "openai" {
		t.Fatalf("second call provider = %q", got.Provider)
	}
	if gem.calls != 1 {
		t.Errorf("gemini called %d times, want 1", gem.calls)
	}
}

func TestChainUsesCache(t *testing.T) {
	t.Parallel()
	mem := cache.NewMemory(0)
	defer mem.Close()
	p := &stubProvider{name: "gemini", res: Result{Summary: "cached text", Category: news.CategoryDev}}
	c := NewChain([]Provider{p}, nil, WithCache(mem, time.Hour))

	first := c.Summarize(context.Background(), "t", body)
	second := c.Summarize(context.Background(), "t", body)
	if p.calls != 1 {
		t.Fatalf("provider called %d times, want 1", p.calls)
	}
	if first.Cached || !second.Cached {
		t.Errorf("cached flags = %v, %v", first.Cached, second.Cached)
	}
	if second.Summary != "cached text" || second.Category != news.CategoryDev {
		t.Errorf("cached result = %+v", second)
	}
}

func TestCategoryPrecedence(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		r     Result
		feed  news.Category
		title string
		want  news.Category
	}{
		{"ai wins", Result{Category: news.CategoryResearch}, news.CategoryDev, "x", news.CategoryResearch},
		{"feed second", Result{}, news.CategoryProduct, "OpenAI model", news.CategoryProduct},
		{"classifier third", Result{}, "", "Startup raises Series A funding", news.CategoryStartups},
		{"default last", Result{}, "", "Nothing here", news.DefaultCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Category(tt.r, tt.feed, tt.title, ""); got != tt.want {
				t.Errorf("Category = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpenAIProvider(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: "SUMMARY: Tooling update for developers.\nCATEGORY: dev",
				},
			}},
		})
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("test")
	cfg.BaseURL = srv.URL + "/v1"
	p := NewOpenAIWithConfig(cfg, "")
	got, err := p.Summarize(context.Background(), "t", "b")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got.Summary != "Tooling update for developers." || got.Category != news.CategoryDev {
		t.Errorf("got %+v", got)
	}
}
