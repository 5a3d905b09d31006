// Package openai provides an OpenAI-backed summarizer.
package openai

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const summarizePrompt = `Compress the following conversation excerpt into a single short factual note about the user. Keep concrete facts (names, dates, preferences, decisions) and drop greetings and filler. Answer with the note only.`

// Client is an OpenAI summarizer client.
// It implements the summarizer.Provider interface using chat completions.
type Client struct {
	client *openai.Client
	model  string
}

// Config is the configuration for the OpenAI summarizer.
// APIKey: OpenAI API key (required)
// Model: Model name to use, defaults to "gpt-4o-mini"
// BaseURL: API base URL, defaults to the OpenAI official address
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewClient creates a new OpenAI summarizer client.
//
// Parameters:
//   - cfg: OpenAI configuration containing APIKey, Model, and BaseURL
//
// Returns:
//   - *Client: OpenAI client instance
//   - error: Error if the configuration is invalid
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai summarizer: api key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Summarize compresses text into a compact factual note.
//
// Parameters:
//   - ctx: Context for controlling the request lifecycle
//   - text: Raw conversational text to compress
//
// Returns:
//   - string: The compact note
//   - error: Error if the completion fails or returns no choices
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarizePrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("openai summarizer: no choices returned")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Close closes the client connection.
// The OpenAI SDK client does not require explicit closing; this method is
// retained for interface compatibility.
func (c *Client) Close() error {
	return nil
}
