package generation

import "errors"

// Common errors returned by completion providers
var (
	// ErrGenerationFailed is returned when a completion call fails for
	// any general reason.
	ErrGenerationFailed = errors.New("failed to generate exam content")

	// ErrEmptyCompletion is returned when the provider responds with no
	// usable text.
	ErrEmptyCompletion = errors.New("empty response from language model")

	// ErrContentBlocked is returned when the provider blocks the output
	// on safety grounds.
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors that might
	// resolve on retry.
	ErrTransientFailure = errors.New("transient error during generation")

	// ErrInvalidConfig is returned when the provider configuration is
	// invalid.
	ErrInvalidConfig = errors.New("invalid completion client configuration")
)
