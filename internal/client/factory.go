package client

import (
	"context"
	"fmt"

	"archon/internal/config"
)

// NewReasoner creates the reasoning client for the configured provider.
func NewReasoner(ctx context.Context, cfg *config.Config) (Reasoner, error) {
	switch cfg.API.GetProvider() {
	case "gemini":
		return NewGeminiClient(ctx, cfg)
	case "ollama":
		return NewOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.API.GetProvider())
	}
}

// AsCacher returns r's context cache endpoint, if the provider has one.
func AsCacher(r Reasoner) (Cacher, bool) {
	c, ok := r.(Cacher)
	return c, ok
}
