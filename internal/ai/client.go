package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrUnavailable is returned when the OpenAI integration is not configured.
	ErrUnavailable = errors.New("openai integration is not configured")
)

// Client wraps the OpenAI chat API for card generation.
type Client struct {
	api   *openai.Client
	model string
}

func NewClient(apiKey, model, endpoint string) *Client {
	if apiKey == "" {
		return &Client{}
	}
	cfg := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		cfg.BaseURL = endpoint
	}
	return &Client{
		api:   openai.NewClientWithConfig(cfg),
		model: model,
	}
}

func (c *Client) disabled() bool {
	return c == nil || c.api == nil || c.model == ""
}

// Model returns the configured chat model name.
func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

func (c *Client) complete(ctx context.Context, messages []openai.ChatCompletionMessage, temperature float32) (string, error) {
	if c.disabled() {
		return "", ErrUnavailable
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   4096,
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("request chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
