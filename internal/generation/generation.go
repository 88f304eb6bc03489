// Package generation defines the boundary between the application core
// and external completion providers. The worker and the regeneration
// engine depend only on the CompletionClient interface; concrete
// providers live under internal/platform.
package generation

import "context"

// Params bounds a single completion call. Values are operational
// constants taken from configuration, never supplied per request.
type Params struct {
	MaxOutputTokens int32
	Temperature     float32
	TopP            float32
}

// CompletionClient invokes a generative text service with a prompt and
// bounded generation parameters, returning the raw text output.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string, params Params) (string, error)
}
