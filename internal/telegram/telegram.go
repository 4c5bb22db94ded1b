// Package telegram publishes newly ingested articles to a Telegram channel.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/deusflow/technews/internal/news"
	"github.com/deusflow/technews/internal/retry"
)

// ErrNotConfigured is returned by NewPoster without a token or chat id.
var ErrNotConfigured = errors.New("telegram: token or chat id not configured")

const (
	apiBase = "https://api.telegram.org"

	// Telegram limits, in characters.
	maxMessageRunes = 4096
	maxCaptionRunes = 1024
)

type Poster struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	retry   retry.RetryConfig
	log     *slog.Logger
}

type Option func(*Poster)

func WithBaseURL(u string) Option { return func(p *Poster) { p.baseURL = strings.TrimRight(u, "/") } }
func WithClient(c *http.Client) Option { return func(p *Poster) { p.client = c } }
func WithRetry(cfg retry.RetryConfig) Option { return func(p *Poster) { p.retry = cfg } }

func NewPoster(token, chatID string, log *slog.Logger, opts ...Option) (*Poster, error) {
	if token == "" || chatID == "" {
		return nil, ErrNotConfigured
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Poster{
		token:   token,
		chatID:  chatID,
		baseURL: apiBase,
		client:  &http.Client{Timeout: 30 * time.Second},
		retry:   retry.RetryConfig{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true},
		log:     log.With("component", "telegram"),
	}
	for _, o := range opts {
		o(p)
	}
	p.retry.OnRetry = func(attempt int, err error, wait time.Duration) {
		p.log.Warn("telegram send failed, retrying", "attempt", attempt, "wait", wait, "error", err)
	}
	return p, nil
}

// SendMessage sends an HTML message with link previews enabled.
func (p *Poster) SendMessage(ctx context.Context, text string) error {
	return p.call(ctx, "sendMessage", map[string]any{
		"chat_id":                  p.chatID,
		"text":                     truncateRunes(text, maxMessageRunes),
		"parse_mode":               "HTML",
		"disable_web_page_preview": false,
	})
}

// SendPhoto sends a photo by URL with an HTML caption.
func (p *Poster) SendPhoto(ctx context.Context, photoURL, caption string) error {
	return p.call(ctx, "sendPhoto", map[string]any{
		"chat_id":    p.chatID,
		"photo":      photoURL,
		"caption":    truncateRunes(caption, maxCaptionRunes),
		"parse_mode": "HTML",
	})
}

func (p *Poster) call(ctx context.Context, method string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error make JSON: %w", err)
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", p.baseURL, p.token, method)

	return retry.WithRetry(ctx, p.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("telegram %s: %w", method, err)
		}
		defer resp.Body.Close()
		if err := retry.CheckStatus(resp); err != nil {
			desc, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("telegram API %s: %s: %w", method, strings.TrimSpace(string(desc)), err)
		}
		return nil
	})
}

var categoryEmoji = map[news.Category]string{
	news.CategoryAI:       "🤖",
	news.CategoryStartups: "🚀",
	news.CategoryDev:      "💻",
	news.CategoryProduct:  "📱",
	news.CategoryResearch: "🔬",
}

// FormatArticle renders an article as Telegram HTML within limit runes.
func FormatArticle(a news.Article, limit int) string {
	emoji := categoryEmoji[a.Category]
	if emoji == "" {
		emoji = "📰"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b><a href=\"%s\">%s</a></b>\n", emoji, html.EscapeString(a.SourceURL), html.EscapeString(a.Title))
	if a.TranslatedTitle != "" && a.TranslatedTitle != a.Title {
		fmt.Fprintf(&b, "<i>%s</i>\n", html.EscapeString(a.TranslatedTitle))
	}
	tail := footer(a)

	budget := limit - len([]rune(b.String())) - len([]rune(tail)) - 2
	if summary := strings.TrimSpace(a.Summary); summary != "" && budget > 20 {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(news.Truncate(summary, budget)))
		b.WriteString("\n")
	}
	b.WriteString(tail)
	return b.String()
}

func footer(a news.Article) string {
	var tags []string
	tags = append(tags, "#"+string(a.Category))
	for _, c := range a.Companies {
		tags = append(tags, "#"+c)
	}
	src := ""
	if a.Source != "" {
		src = html.EscapeString(a.Source) + " · "
	}
	return "\n" + src + strings.Join(tags, " ")
}

// PublishArticle posts one article, as a photo when it has an image. A
// rejected photo falls back to a text message.
func (p *Poster) PublishArticle(ctx context.Context, a news.Article) error {
	if a.ImageURL != "" {
		err := p.SendPhoto(ctx, a.ImageURL, FormatArticle(a, maxCaptionRunes))
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		p.log.Warn("photo rejected, sending text", "url", a.SourceURL, "error", err)
	}
	return p.SendMessage(ctx, FormatArticle(a, maxMessageRunes))
}

// Publish posts up to max of the newest articles and returns how many
// were sent. Failures are collected; remaining articles are still tried.
func (p *Poster) Publish(ctx context.Context, articles []news.Article, max int) (int, error) {
	sorted := append([]news.Article(nil), articles...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PublishedAt.After(sorted[j].PublishedAt) })
	if len(sorted) > max {
		sorted = sorted[:max]
	}

	sent := 0
	var errs []error
	for _, a := range sorted {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := p.PublishArticle(ctx, a); err != nil {
			p.log.Error("publish failed", "url", a.SourceURL, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", a.SourceURL, err))
			continue
		}
		sent++
	}
	p.log.Info("published to telegram", "sent", sent, "failed", len(errs))
	return sent, errors.Join(errs...)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
