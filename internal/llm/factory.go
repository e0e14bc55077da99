package llm

import (
	"fmt"
	"strings"
)

// NewProvider creates a new LLM provider based on configuration. The
// returned provider serializes calls: the shared local model cannot
// serve concurrent requests without contention.
func NewProvider(config Config) (Provider, error) {
	var (
		p   Provider
		err error
	)

	switch strings.ToLower(config.Provider) {
	case "openai":
		p, err = NewOpenAIProvider(config)

	case "ollama":
		p, err = NewOllamaProvider(config)

	case "":
		// No provider configured
		return nil, fmt.Errorf("no LLM provider configured (supported: openai, ollama)")

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, ollama)", config.Provider)
	}

	if err != nil {
		return nil, err
	}
	return Serialize(p), nil
}
