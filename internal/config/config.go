// Package config loads and validates application configuration.
package config

// Config holds all application configuration, grouped by concern.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	LLM        LLMConfig        `mapstructure:"llm" validate:"required"`
	Generation GenerationConfig `mapstructure:"generation" validate:"required"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Worker     WorkerConfig     `mapstructure:"worker"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// LLMConfig contains completion provider settings. Exactly one
// provider is active, selected by Provider.
type LLMConfig struct {
	Provider          string `mapstructure:"provider" validate:"required,oneof=gemini openai"`
	ModelName         string `mapstructure:"model_name" validate:"required"`
	GeminiAPIKey      string `mapstructure:"gemini_api_key"`
	OpenAIAPIKey      string `mapstructure:"openai_api_key"`
	OpenAIBaseURL     string `mapstructure:"openai_base_url"`
	MaxRetries        int    `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=0,lte=60"`
}

// GenerationConfig bounds the completion calls. Creation calls get the
// full budget; the scoped section tier is smaller because a single
// section needs far less output.
type GenerationConfig struct {
	MaxOutputTokens        int32   `mapstructure:"max_output_tokens" validate:"required,gt=0"`
	Temperature            float32 `mapstructure:"temperature" validate:"gte=0,lte=2"`
	TopP                   float32 `mapstructure:"top_p" validate:"gte=0,lte=1"`
	SectionMaxOutputTokens int32   `mapstructure:"section_max_output_tokens" validate:"required,gt=0"`
	SectionTemperature     float32 `mapstructure:"section_temperature" validate:"gte=0,lte=2"`
}

// RetrievalConfig bounds the reference corpus lookups made for
// non-static subjects.
type RetrievalConfig struct {
	MaxResults int `mapstructure:"max_results" validate:"gte=1,lte=50"`
}

// WorkerConfig sizes the background job runner.
type WorkerConfig struct {
	Count                int `mapstructure:"count" validate:"gte=1,lte=64"`
	QueueSize            int `mapstructure:"queue_size" validate:"gte=1"`
	StuckJobAgeMinutes   int `mapstructure:"stuck_job_age_minutes" validate:"gte=1"`
	StuckJobCheckMinutes int `mapstructure:"stuck_job_check_minutes" validate:"gte=1"`
}
