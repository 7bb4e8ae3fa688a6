// Package llm produces completions for prompts that miss the cache.
package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/semcache/internal/config"
)

// Completer returns a model response for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// NewCompleter creates the completer selected by cfg.Provider.
func NewCompleter(cfg *config.LLMConfig, logger *zap.Logger) (Completer, error) {
	switch cfg.Provider {
	case ProviderOpenAI, ProviderOpenRouter:
		return NewChatCompleter(cfg, logger)
	case "mock":
		return NewMockCompleter(cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s (supported: openai, openrouter, mock)", cfg.Provider)
	}
}
