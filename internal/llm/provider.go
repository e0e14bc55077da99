package llm

import (
	"context"

	"prospector/internal/model"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete runs a single text completion
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest contains the input for a completion
type CompletionRequest struct {
	// System sets the assistant persona (optional)
	System string

	// Prompt is the user prompt
	Prompt string

	// Model overrides the configured model (optional)
	Model string

	// MaxTokens limits the response length
	MaxTokens int

	// Temperature defaults to 0.2 when zero; extraction and scoring want
	// focused output
	Temperature float32
}

// CompletionResponse contains the raw model output
type CompletionResponse struct {
	Text       string
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI-compatible endpoints
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama, local OpenAI-compatible servers)
	BaseURL string

	// Timeout for API requests, seconds
	Timeout int

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "",
		Timeout:   120,
		MaxTokens: 1500,
	}
}

// ConfigFromModel builds an llm.Config from the runtime configuration
func ConfigFromModel(mc model.LLMConfig, hc model.HTTPConfig) Config {
	return Config{
		Provider:   mc.Provider,
		Model:      mc.Model,
		APIKey:     mc.APIKey,
		BaseURL:    mc.BaseURL,
		Timeout:    mc.Timeout,
		MaxTokens:  mc.MaxTokens,
		HTTPProxy:  hc.HTTPProxy,
		HTTPSProxy: hc.HTTPSProxy,
		NoProxy:    hc.NoProxy,
	}
}
