package summarize

import (
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider summarizes through the chat completions API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAI builds a provider. An empty model selects gpt-4o-mini.
func NewOpenAI(apiKey, model string) *OpenAIProvider {
	return NewOpenAIWithConfig(openai.DefaultConfig(apiKey), model)
}

// NewOpenAIWithConfig is NewOpenAI with a custom client config, e.g. a test
// server base URL.
func NewOpenAIWithConfig(cfg openai.ClientConfig, model string) *OpenAIProvider {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg), model: model}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Summarize(ctx context.Context, title, body string) (Result, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: Prompt(title, body)},
		},
		MaxTokens:   300,
		Temperature: 0.2,
	})
	if err != nil {
		return Result{}, err
	}
	if len(resp.Choices) == 0 {
		return Result{}, errors.New("no response from OpenAI")
	}
	return ParseResponse(strings.TrimSpace(resp.Choices[0].Message.Content))
}
