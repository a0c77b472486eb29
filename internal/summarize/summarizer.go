// Package summarize turns normalized message windows into narrative summaries
// through an OpenAI-compatible chat completion endpoint.
package summarize

import (
	"context"
	"errors"
	"fmt"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/kalambet/recap/internal/storage"
)

// ErrNotConfigured is returned when no API key was supplied.
var ErrNotConfigured = errors.New("summarize: api key not configured")

const (
	defaultModel = "gpt-4o-mini"

	summaryMaxTokens = 2000
	customMaxTokens  = 1500

	summaryTemperature = 0.3
	customTemperature  = 0.5
)

// Client generates summaries over chat completions.
type Client struct {
	api        openaigo.Client
	model      string
	configured bool
}

// New builds a summarization client. baseURL and model fall back to the
// OpenAI defaults when empty. A client with an empty apiKey is still usable
// for Configured checks but fails every generation call.
func New(apiKey, baseURL, model string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{
		api:        openaigo.NewClient(opts...),
		model:      model,
		configured: apiKey != "",
	}
}

// Configured reports whether an API key was supplied.
func (c *Client) Configured() bool {
	return c.configured
}

// Model returns the chat model in use.
func (c *Client) Model() string {
	return c.model
}

// Summarize produces an EOD or EOW summary of the given messages.
// summaryType is "EOD" or "EOW"; style selects the tone of the prompt.
func (c *Client) Summarize(ctx context.Context, messages []storage.Message, summaryType, style string) (string, error) {
	return c.complete(ctx, systemPrompt, BuildPrompt(messages, summaryType, style), summaryTemperature, summaryMaxTokens)
}

// Custom answers a free-form request over the given messages.
func (c *Client) Custom(ctx context.Context, messages []storage.Message, prompt string) (string, error) {
	return c.complete(ctx, customSystemPrompt, BuildCustomPrompt(messages, prompt), customTemperature, customMaxTokens)
}

func (c *Client) complete(ctx context.Context, system, user string, temperature float64, maxTokens int64) (string, error) {
	if !c.configured {
		return "", ErrNotConfigured
	}

	resp, err := c.api.Chat.Completions.New(ctx, openaigo.ChatCompletionNewParams{
		Model: openaigo.ChatModel(c.model),
		Messages: []openaigo.ChatCompletionMessageParamUnion{
			openaigo.SystemMessage(system),
			openaigo.UserMessage(user),
		},
		Temperature: openaigo.Float(temperature),
		MaxTokens:   openaigo.Int(maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
