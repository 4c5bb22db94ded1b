// Package gemini is the Google Gemini summarize-and-classify provider.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/deusflow/technews/internal/summarize"
)

const DefaultModel = "gemini-1.5-flash"

// minKeptRunes keeps truncated content from ending too early when looking
// for a sentence boundary.
const minKeptRunes = 1200

type Client struct {
	client *genai.Client
	model  string
}

var _ summarize.Provider = (*Client)(nil)

func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty API key")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{client: client, model: model}, nil
}

func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Client) Name() string { return "gemini" }

// Summarize asks Gemini for a labelled summary and category.
func (c *Client) Summarize(ctx context.Context, title, body string) (summarize.Result, error) {
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(0.2)
	model.SetMaxOutputTokens(300)

	prompt := summarize.Prompt(title, prepareContent(body, summarize.MaxInputRunes))
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return summarize.Result{}, fmt.Errorf("failed to generate content: %w", err)
	}
	text := responseText(resp)
	if text == "" {
		return summarize.Result{}, errors.New("no response from Gemini")
	}
	return summarize.ParseResponse(text)
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return strings.TrimSpace(b.String())
}

// prepareContent collapses whitespace and cuts content to maxChars runes,
// preferring to end on a sentence.
func prepareContent(content string, maxChars int) string {
	content = strings.Join(strings.Fields(strings.ReplaceAll(content, "\r", "")), " ")
	if utf8.RuneCountInString(content) <= maxChars {
		return content
	}
	trimmed := string([]rune(content)[:maxChars])
	if idx := strings.LastIndex(trimmed, ". "); idx > minKeptRunes {
		trimmed = trimmed[:idx+1]
	}
	return trimmed + "\n[TRUNCATED]"
}
