package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from an optional config.yaml and from
// environment variables with the EXAMGEN_ prefix (environment wins),
// applies defaults, and validates the result.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/examgen")

	v.SetEnvPrefix("EXAMGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; env vars and defaults carry it.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := validateProvider(cfg.LLM); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)

	// Bounds carried over from the production inference configuration.
	v.SetDefault("generation.max_output_tokens", 4096)
	v.SetDefault("generation.temperature", 0.5)
	v.SetDefault("generation.top_p", 0.9)
	v.SetDefault("generation.section_max_output_tokens", 1024)
	v.SetDefault("generation.section_temperature", 0.5)

	v.SetDefault("retrieval.max_results", 10)

	v.SetDefault("worker.count", 2)
	v.SetDefault("worker.queue_size", 100)
	v.SetDefault("worker.stuck_job_age_minutes", 30)
	v.SetDefault("worker.stuck_job_check_minutes", 5)
}

// validateProvider checks that the selected provider has the
// credentials it needs.
func validateProvider(cfg LLMConfig) error {
	switch cfg.Provider {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return fmt.Errorf("invalid configuration: llm.gemini_api_key is required for the gemini provider")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return fmt.Errorf("invalid configuration: llm.openai_api_key is required for the openai provider")
		}
	}
	return nil
}
