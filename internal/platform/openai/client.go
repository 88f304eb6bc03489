// Package openai implements the generation.CompletionClient interface
// against any OpenAI-compatible API, including local inference servers
// such as Ollama.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/examgen/examgen-api/internal/config"
	"github.com/examgen/examgen-api/internal/generation"
)

// Client wraps an OpenAI-compatible chat completion API.
type Client struct {
	api    *openai.Client
	logger *slog.Logger
	model  string
}

// NewClient creates an OpenAI-backed completion client. A custom base
// URL switches it to any compatible endpoint.
func NewClient(logger *slog.Logger, cfg config.LLMConfig) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("%w: openai API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	apiConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		apiConfig.BaseURL = cfg.OpenAIBaseURL
	}

	return &Client{
		api:    openai.NewClientWithConfig(apiConfig),
		logger: logger.With("component", "openai_client"),
		model:  cfg.ModelName,
	}, nil
}

// Complete implements generation.CompletionClient.
func (c *Client) Complete(ctx context.Context, prompt string, params generation.Params) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("%w: empty prompt", generation.ErrGenerationFailed)
	}

	c.logger.InfoContext(ctx, "calling chat completion API", "model", c.model)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   int(params.MaxOutputTokens),
		Temperature: params.Temperature,
		TopP:        params.TopP,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", generation.ErrGenerationFailed, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", generation.ErrEmptyCompletion)
	}

	text := resp.Choices[0].Message.Content
	if text == "" {
		return "", fmt.Errorf("%w: empty message content", generation.ErrEmptyCompletion)
	}

	c.logger.DebugContext(ctx, "chat completion response", "length", len(text))
	return text, nil
}

var _ generation.CompletionClient = (*Client)(nil)
