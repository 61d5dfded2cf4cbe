// Package model abstracts the chat-completion backend behind a small
// provider interface so the interpreter can run against OpenAI-compatible
// endpoints in production and a scripted provider in tests.
package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Provider produces a single completion for a system/user prompt pair.
// Implementations must honor ctx cancellation and classify transport-level
// failures as transient so callers can retry once.
type Provider interface {
	// Name identifies the backend in logs and metrics labels.
	Name() string
	// Complete returns the raw assistant text for one call.
	Complete(ctx context.Context, system, user string) (string, error)
}

// TransientError wraps failures worth one retry: timeouts, 429s, 5xx.
// Anything else (auth, bad request) fails the turn immediately.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth a single retry.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Config selects and configures the provider from the environment.
type Config struct {
	Provider    string  `env:"MODEL_PROVIDER" env-default:"openai"`
	APIKey      string  `env:"MODEL_API_KEY"`
	BaseURL     string  `env:"MODEL_BASE_URL" env-default:"https://api.openai.com/v1"`
	Model       string  `env:"MODEL_NAME" env-default:"gpt-4o-mini"`
	TimeoutSec  int     `env:"MODEL_TIMEOUT_SEC" env-default:"15"`
	Temperature float64 `env:"MODEL_TEMPERATURE" env-default:"0.1"`
}

// NewFromEnv builds the configured provider. Unknown provider names fail
// loudly instead of silently degrading.
func NewFromEnv() (Provider, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read model config from env: %w", err)
	}
	switch cfg.Provider {
	case "openai":
		return newOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}
}
