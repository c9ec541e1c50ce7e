// Package llm provides LLM provider integrations for report generation.
package llm

import (
	"context"
	"fmt"
)

// Provider is the interface for all LLM providers.
type Provider interface {
	GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error)
}

// NewProvider returns the provider for the given name. Empty name defaults
// to "gemini".
func NewProvider(name string) (Provider, error) {
	switch name {
	case "", "gemini":
		return &GeminiProvider{}, nil
	case "gemini-legacy":
		return &LegacyGeminiProvider{}, nil
	case "deepseek":
		return &DeepSeekProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", name)
	}
}
