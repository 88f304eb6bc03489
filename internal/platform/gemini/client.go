// Package gemini implements the generation.CompletionClient interface
// using Google's Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"google.golang.org/genai"

	"github.com/examgen/examgen-api/internal/config"
	"github.com/examgen/examgen-api/internal/generation"
)

// Client calls the Gemini API with bounded generation parameters and
// retries transient failures with exponential backoff.
type Client struct {
	logger *slog.Logger
	config config.LLMConfig
	client *genai.Client
	model  string
}

// NewClient creates a Gemini-backed completion client.
func NewClient(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return &Client{
		logger: logger.With("component", "gemini_client"),
		config: cfg,
		client: client,
		model:  cfg.ModelName,
	}, nil
}

// Complete implements generation.CompletionClient. Transient API
// errors are retried up to the configured attempt count with
// exponential backoff and jitter; empty or safety-blocked responses
// are permanent and returned immediately.
func (c *Client) Complete(ctx context.Context, prompt string, params generation.Params) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("%w: empty prompt", generation.ErrGenerationFailed)
	}

	maxRetries := c.config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 3
	}
	baseDelaySeconds := c.config.RetryDelaySeconds
	if baseDelaySeconds < 1 {
		baseDelaySeconds = 2
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	genConfig := &genai.GenerateContentConfig{
		MaxOutputTokens: params.MaxOutputTokens,
		Temperature:     genai.Ptr(params.Temperature),
		TopP:            genai.Ptr(params.TopP),
	}

	for attempt := 0; ; attempt++ {
		c.logger.InfoContext(ctx, "calling Gemini API",
			"model", c.model,
			"attempt", attempt+1,
			"max_attempts", maxRetries+1)

		resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), genConfig)

		text, err := c.extractText(resp, err)
		if err == nil {
			return text, nil
		}

		// Permanent outcomes are not retried.
		if errors.Is(err, generation.ErrContentBlocked) || errors.Is(err, generation.ErrEmptyCompletion) {
			c.logger.WarnContext(ctx, "permanent Gemini failure, not retrying", "error", err)
			return "", err
		}

		c.logger.ErrorContext(ctx, "Gemini API call failed",
			"attempt", attempt+1,
			"error", err)

		if attempt >= maxRetries {
			return "", fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
				generation.ErrTransientFailure, maxRetries, err)
		}

		// delay = baseDelay * 2^attempt * jitter in [0.5, 1.0)
		backoff := float64(baseDelaySeconds) * math.Pow(2, float64(attempt))
		jitter := 0.5 + rng.Float64()*0.5
		delay := time.Duration(backoff * jitter * float64(time.Second))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", generation.ErrTransientFailure, ctx.Err())
		}
	}
}

// extractText pulls the generated text out of a response, classifying
// failure modes along the way.
func (c *Client) extractText(resp *genai.GenerateContentResponse, callErr error) (string, error) {
	if callErr != nil {
		return "", fmt.Errorf("%w: %v", generation.ErrGenerationFailed, callErr)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", generation.ErrEmptyCompletion)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w", generation.ErrContentBlocked)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: no text parts", generation.ErrEmptyCompletion)
	}
	return text, nil
}

var _ generation.CompletionClient = (*Client)(nil)
