package ai

import (
	"context"
	"fmt"
	"time"

	"launchkit-core/internal/config"
	"launchkit-core/internal/domain/ports/adapter"
)

// NewFromConfig builds the provider stack for cfg.Provider. The mock provider
// needs no adapter and yields nil.
func NewFromConfig(ctx context.Context, cfg config.AIConfig) (adapter.AIServiceAdapter, error) {
	var (
		inner adapter.AIServiceAdapter
		err   error
	)
	switch cfg.Provider {
	case "mock":
		return nil, nil
	case "noop":
		inner = NewNoopAIAdapter(time.Duration(cfg.MockDelayScale * float64(100*time.Millisecond)))
	case "openai":
		inner, err = NewOpenAIAdapter(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.DefaultModel, cfg.MaxInputTokens)
	case "gemini":
		inner, err = NewGeminiAdapter(ctx, cfg.GeminiKey, "", cfg.GeminiModel, 0)
	case "multi":
		providers := map[string]adapter.AIServiceAdapter{}
		if cfg.OpenAIKey != "" {
			if providers["openai"], err = NewOpenAIAdapter(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.DefaultModel, cfg.MaxInputTokens); err != nil {
				return nil, err
			}
		}
		if cfg.GeminiKey != "" {
			if providers["gemini"], err = NewGeminiAdapter(ctx, cfg.GeminiKey, "", cfg.GeminiModel, 0); err != nil {
				return nil, err
			}
		}
		def := "openai"
		if _, ok := providers[def]; !ok {
			def = "gemini"
		}
		inner = NewMultiAIAdapter(def, providers, nil)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewLimitedAI(inner, cfg.Provider, cfg.ConcurrentLimit, cfg.CallTimeout), nil
}
