package ai

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"notes-ai-jobs/internal/config"
	"notes-ai-jobs/internal/domain/ports/adapter"
)

// NewFromConfig picks the provider named in cfg and wraps it with the
// concurrency bound and per-call deadline.
func NewFromConfig(ctx context.Context, cfg *config.AIConfig, logger *zerolog.Logger) (adapter.StructuredGenerator, error) {
	var (
		inner adapter.StructuredGenerator
		err   error
	)
	switch cfg.Provider {
	case "openai":
		inner, err = NewOpenAIAdapter(cfg.OpenAIKey, cfg.DefaultModel, cfg.OpenAIBaseURL)
	case "gemini":
		inner, err = NewGeminiAdapter(ctx, cfg.GeminiKey, cfg.DefaultModel)
	case "noop":
		inner = NewNoopAIAdapter(logger)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%s adapter: %w", cfg.Provider, err)
	}
	logger.Info().Str("provider", cfg.Provider).Str("model", cfg.DefaultModel).Int("concurrent_limit", cfg.ConcurrentLimit).Msg("AI adapter ready")
	return NewLimitedAI(inner, cfg.ConcurrentLimit, cfg.CallTimeout), nil
}
