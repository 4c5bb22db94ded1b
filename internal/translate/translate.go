// Package translate translates article titles and summaries for the
// enrichment queue. The free Google endpoint is tried first, OpenAI second.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/deusflow/technews/internal/cache"
	"github.com/deusflow/technews/internal/retry"
)

const (
	maxInputRunes   = 4000
	googleEndpoint  = "https://translate.googleapis.com/translate_a/single"
	defaultTimeout  = 15 * time.Second
	cacheNamespace  = "translation"
	defaultCacheTTL = 7 * 24 * time.Hour
)

// Translator translates text between ISO 639-1 languages.
type Translator interface {
	Name() string
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// Google uses the public translate_a endpoint.
type Google struct {
	BaseURL string
	client  *http.Client
	retry   retry.RetryConfig
}

func NewGoogle(client *http.Client) *Google {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Google{BaseURL: googleEndpoint, client: client, retry: retry.Default}
}

func (g *Google) Name() string { return "google" }

func (g *Google) Translate(ctx context.Context, text, from, to string) (string, error) {
	params := url.Values{}
	params.Set("client", "gtx")
	params.Set("sl", from)
	params.Set("tl", to)
	params.Set("dt", "t")
	params.Set("q", text)
	fullURL := g.BaseURL + "?" + params.Encode()

	var body []byte
	err := retry.WithRetry(ctx, g.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		resp, err := g.client.Do(req)
		if err != nil {
			return fmt.Errorf("HTTP error: %w", err)
		}
		defer resp.Body.Close()
		if err := retry.CheckStatus(resp); err != nil {
			return err
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return "", err
	}
	return parseGoogleResponse(body)
}

// parseGoogleResponse joins the translated segments of the nested array
// answer: [[["segment","source",...],...],...].
func parseGoogleResponse(body []byte) (string, error) {
	var response []any
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	if len(response) == 0 {
		return "", errors.New("empty response from Google Translate")
	}
	segments, ok := response[0].([]any)
	if !ok {
		return "", errors.New("unexpected response format")
	}
	var result strings.Builder
	for _, seg := range segments {
		if arr, ok := seg.([]any); ok && len(arr) > 0 {
			if s, ok := arr[0].(string); ok {
				result.WriteString(s)
			}
		}
	}
	return result.String(), nil
}

// OpenAI translates with a chat completion.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(apiKey, model string) *OpenAI {
	return NewOpenAIWithConfig(openai.DefaultConfig(apiKey), model)
}

func NewOpenAIWithConfig(cfg openai.ClientConfig, model string) *OpenAI {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Translate(ctx context.Context, text, from, to string) (string, error) {
	prompt := fmt.Sprintf(`Translate the following %s technology news text to %s.
Keep the meaning and the journalistic tone. Do not translate product or company names.
Answer with the translation only, without comments or notes.

Text to translate:
%s`, languageName(from), languageName(to), text)

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: 2000,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}
	return SanitizeAIText(resp.Choices[0].Message.Content), nil
}

var languageNames = map[string]string{
	"en": "English", "uk": "Ukrainian", "da": "Danish", "de": "German",
	"sv": "Swedish", "no": "Norwegian", "fr": "French", "es": "Spanish",
}

func languageName(code string) string {
	if n, ok := languageNames[strings.ToLower(code)]; ok {
		return n
	}
	if code == "" || code == "auto" {
		return "source-language"
	}
	return code
}

// Service tries translators in order and caches successful answers.
type Service struct {
	translators []Translator
	cache       cache.Backend
	ttl         time.Duration
	log         *slog.Logger
}

// NewService builds a Service. c may be nil; ttl <= 0 means seven days.
func NewService(log *slog.Logger, c cache.Backend, ttl time.Duration, translators ...Translator) *Service {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Service{translators: translators, cache: c, ttl: ttl, log: log.With("component", "translate")}
}

// Translate returns the first translation that differs from the input. It
// fails only when every translator failed.
func (s *Service) Translate(ctx context.Context, text, from, to string) (string, error) {
	text = cleanTextForTranslation(text)
	if text == "" || from == to {
		return text, nil
	}
	if r := []rune(text); len(r) > maxInputRunes {
		text = string(r[:maxInputRunes]) + "..."
	}

	key := cache.Key(cacheNamespace, from, to, text)
	if s.cache != nil {
		if v, ok, err := s.cache.Get(ctx, key); err != nil {
			s.log.Warn("translation cache read failed", "error", err)
		} else if ok {
			return v, nil
		}
	}

	var errs []error
	for _, t := range s.translators {
		out, err := t.Translate(ctx, text, from, to)
		out = strings.TrimSpace(out)
		if err == nil && (out == "" || out == text) {
			err = errors.New("translation unchanged")
		}
		if err != nil {
			s.log.Warn("translator failed", "translator", t.Name(), "from", from, "to", to, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
			continue
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, out, s.ttl); err != nil {
				s.log.Warn("translation cache write failed", "error", err)
			}
		}
		return out, nil
	}
	if len(errs) == 0 {
		return "", errors.New("no translators configured")
	}
	return "", errors.Join(errs...)
}

// cleanTextForTranslation drops empty and very short lines and joins the
// rest with spaces.
func cleanTextForTranslation(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && len([]rune(line)) > 1 {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, " ")
}

var (
	reParenNote   = regexp.MustCompile(`(?i)\(\s*(note|disclaimer|translator'?s? note)\b[^)]*\)`)
	reBracketNote = regexp.MustCompile(`(?i)\[\s*(note|disclaimer|translator'?s? note)\b[^\]]*\]`)
	reLineNote    = regexp.MustCompile(`(?i)^\s*(note|disclaimer|translator'?s? note)\s*:`)
	reSpaces      = regexp.MustCompile(`[ \t]{2,}`)
)

// SanitizeAIText removes the disclaimers language models like to append to
// translations, inline or on their own line.
func SanitizeAIText(s string) string {
	s = reParenNote.ReplaceAllString(s, "")
	s = reBracketNote.ReplaceAllString(s, "")
	var kept []string
	for _, line := range strings.Split(s, "\n") {
		if reLineNote.MatchString(line) {
			continue
		}
		line = strings.TrimSpace(reSpaces.ReplaceAllString(line, " "))
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
