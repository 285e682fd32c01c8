// Package llm is the chat-completion client shared by the MemCell and
// memory extractors (components H/I): a minimal Complete(system, user)
// contract with an OpenAI-backed primary implementation and an
// Anthropic-backed one, composed behind internal/resilient for failover.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"memoryd/internal/config"
)

// Client is the minimal chat-completion contract the extractors need: one
// system prompt, one user prompt, one text response.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Name() string
}

// NewProvider builds the Client named by provider ("openai" or
// "anthropic"). An empty provider defaults to "openai".
func NewProvider(provider, baseURL, apiKey, model string, temperature float64, maxRetries, timeoutSeconds int) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "openai":
		return newOpenAIClient(baseURL, apiKey, model, temperature, maxRetries, timeoutSeconds), nil
	case "anthropic":
		return newAnthropicClient(baseURL, apiKey, model, maxRetries, timeoutSeconds), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", provider)
	}
}

// NewPrimary builds the primary Client from cfg.
func NewPrimary(cfg config.LLMConfig) (Client, error) {
	return NewProvider(cfg.Provider, cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Temperature, cfg.MaxRetries, cfg.Timeout)
}

// NewFallback builds the fallback Client from cfg, or returns nil, nil when
// no fallback URL/key is configured, per spec §4.2's "fallback is disabled
// if its URL/key is blank."
func NewFallback(cfg config.LLMConfig) (Client, error) {
	if cfg.FallbackBaseURL == "" && cfg.FallbackAPIKey == "" {
		return nil, nil
	}
	return NewProvider(cfg.FallbackProvider, cfg.FallbackBaseURL, cfg.FallbackAPIKey, cfg.FallbackModel, cfg.Temperature, cfg.MaxRetries, cfg.Timeout)
}

func timeoutDuration(seconds int) time.Duration {
	if seconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(seconds) * time.Second
}
