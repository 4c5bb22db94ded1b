package translate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/deusflow/technews/internal/cache"
	"github.com/deusflow/technews/internal/retry"
)

func TestSanitizeAIText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      string
		want    string
		notWant string
	}{
		{
			name:    "inline parenthesized disclaimer",
			in:      "Apple shows a new chip (Note: This is a machine translation and may contain errors.) and ships it soon.",
			want:    "Apple shows a new chip and ships it soon.",
			notWant: "note",
		},
		{
			name:    "full line note",
			in:      "Note: This translation may contain errors.\nNvidia reports record revenue.",
			want:    "Nvidia reports record revenue.",
			notWant: "note",
		},
		{
			name:    "bracketed disclaimer",
			in:      "[Note: Machine translation] Stripe raises prices.",
			want:    "Stripe raises prices.",
			notWant: "note",
		},
		{
			name: "clean text untouched",
			in:   "GitHub adds Copilot agents.\nAvailable today.",
			want: "GitHub adds Copilot agents.\nAvailable today.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := SanitizeAIText(tt.in)
			if got != tt.want {
				t.Errorf("SanitizeAIText = %q, want %q", got, tt.want)
			}
			if tt.notWant != "" && strings.Contains(strings.ToLower(got), tt.notWant) {
				t.Errorf("output still contains %q: %q", tt.notWant, got)
			}
		})
	}
}

func TestParseGoogleResponse(t *testing.T) {
	t.Parallel()
	body := `[[["Привіт ","Hello ",null,null,1],["світ","world",null,null,1]],null,"en"]`
	got, err := parseGoogleResponse([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != "Привіт світ" {
		t.Errorf("got %q", got)
	}
	if _, err := parseGoogleResponse([]byte(`[]`)); err == nil {
		t.Error("expected error for empty array")
	}
	if _, err := parseGoogleResponse([]byte(`{"x":1}`)); err == nil {
		t.Error("expected error for object")
	}
}

func TestGoogleTranslate(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("sl") != "en" || q.Get("tl") != "uk" || q.Get("q") != "Hello" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`[[["Привіт","Hello",null,null,1]]]`))
	}))
	defer srv.Close()

	g := NewGoogle(srv.Client())
	g.BaseURL = srv.URL
	got, err := g.Translate(context.Background(), "Hello", "en", "uk")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "Привіт" {
		t.Errorf("got %q", got)
	}
}

func TestGoogleTranslateClientErrorNotRetried(t *testing.T) {
	t.Parallel()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	g := NewGoogle(srv.Client())
	g.BaseURL = srv.URL
	_, err := g.Translate(context.Background(), "Hello", "en", "uk")
	if !errors.Is(err, retry.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

type fakeTranslator struct {
	name  string
	out   string
	err   error
	calls int
}

func (f *fakeTranslator) Name() string { return f.name }

func (f *fakeTranslator) Translate(context.Context, string, string, string) (string, error) {
	f.calls++
	return f.out, f.err
}

func TestServiceFallsBackAndCaches(t *testing.T) {
	t.Parallel()
	mem := cache.NewMemory(0)
	defer mem.Close()
	first := &fakeTranslator{name: "google", out: "Hello"}
	second := &fakeTranslator{name: "openai", out: "Привіт"}
	s := NewService(nil, mem, time.Hour, first, second)

	got, err := s.Translate(context.Background(), "Hello", "en", "uk")
	if err != nil || got != "Привіт" {
		t.Fatalf("Translate = %q, %v", got, err)
	}
	got, err = s.Translate(context.Background(), "Hello", "en", "uk")
	if err != nil || got != "Привіт" {
		t.Fatalf("cached Translate = %q, %v", got, err)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("calls = %d, %d; want 1, 1", first.calls, second.calls)
	}
}

func TestServiceAllFail(t *testing.T) {
	t.Parallel()
	s := NewService(nil, nil, 0, &fakeTranslator{name: "google", err: errors.New("down")})
	if _, err := s.Translate(context.Background(), "Hello", "en", "uk"); err == nil {
		t.Fatal("expected error")
	}
	if got, err := s.Translate(context.Background(), "Hello", "en", "en"); err != nil || got != "Hello" {
		t.Errorf("same language = %q, %v", got, err)
	}
}
