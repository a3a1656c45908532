package main

import (
	"context"
	"fmt"

	"game-companion/llm"
	"game-companion/utils"
)

// newProvider builds the text-generation provider for one config entry.
// Unknown kinds are treated as OpenAI-compatible, which covers Ollama.
func newProvider(ctx context.Context, name string, pc utils.ProviderConfig) (llm.Provider, error) {
	displayName := pc.DisplayName
	if displayName == "" {
		displayName = name
	}
	cfg := llm.Config{
		ProviderName: displayName,
		APIKey:       pc.APIKey,
		BaseURL:      pc.BaseURL,
		Model:        pc.DefaultModel,
		Models:       pc.Models,
		Timeout:      pc.Timeout,
		MaxTokens:    pc.MaxTokens,
		Temperature:  pc.Temperature,
	}

	var (
		provider llm.Provider
		err      error
	)
	switch pc.Kind {
	case "gemini":
		provider, err = llm.NewGeminiProvider(ctx, cfg)
	case "claude", "anthropic":
		provider, err = llm.NewClaudeProvider(cfg)
	default:
		provider, err = llm.NewOpenAIProvider(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s provider: %w", name, err)
	}
	return provider, nil
}
