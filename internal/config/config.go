// Package config loads process configuration from the environment, per
// the variable list in spec.md §6 plus the additions SPEC_FULL.md §4.0
// requires for the HTTP server, case builder defaults, and LLM fallback
// provider.
package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full set of environment-driven process configuration.
type Config struct {
	StorePath string `env:"STORE_PATH" env-default:"~/.local/share/flowmine/state.db"`

	HTTPAddr           string `env:"HTTP_ADDR" env-default:":8085"`
	HTTPRequestTimeout int    `env:"HTTP_REQUEST_TIMEOUT_SECONDS" env-default:"10"`

	LogLevel string `env:"LOG_LEVEL" env-default:"info"`

	LLMProviderURL         string `env:"LLM_PROVIDER_URL"`
	LLMAPIKey              string `env:"LLM_API_KEY"`
	LLMModel               string `env:"LLM_MODEL" env-default:"claude-haiku-4-5"`
	LLMWorkers             int    `env:"LLM_WORKERS" env-default:"2"`
	LLMQueueCapacity       int    `env:"LLM_QUEUE_CAPACITY" env-default:"256"`
	LLMCacheSize           int    `env:"LLM_CACHE_SIZE" env-default:"4096"`
	LLMTimeoutSeconds      int    `env:"LLM_TIMEOUT_SECONDS" env-default:"30"`
	LLMFallbackProviderURL string `env:"LLM_FALLBACK_PROVIDER_URL"`
	LLMFallbackAPIKey      string `env:"LLM_FALLBACK_API_KEY"`

	MaxGapSeconds int `env:"MAX_GAP_SECONDS" env-default:"120"`
	AFKGapSeconds int `env:"AFK_GAP_SECONDS" env-default:"60"`
}

// Load reads Config from the process environment, applying defaults for
// anything unset. A malformed value (e.g. a non-numeric LLM_WORKERS) is a
// fatal init error, matching exit code 1 of spec.md §6.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}
