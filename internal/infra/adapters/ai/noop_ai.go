package ai

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"launchkit-core/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter answers locally without a provider. Prompts that ask for JSON
// get an empty object so structured handlers still decode.
type NoopAIAdapter struct {
	delay time.Duration
}

func NewNoopAIAdapter(delay time.Duration) *NoopAIAdapter {
	return &NoopAIAdapter{delay: delay}
}

func (a *NoopAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{"noop"}, nil
}

func (a *NoopAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	n := 0
	for _, m := range messages {
		n += (len([]rune(m.Content)) + 3) / 4
	}
	return n, nil
}

func (a *NoopAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return "", adapter.Usage{}, ctx.Err()
		}
	}
	in, _ := a.CountTokens(ctx, model, messages)

	reply := "ok"
	if len(messages) > 0 {
		last := messages[len(messages)-1].Content
		reply = last
		for _, m := range messages {
			if m.Role == "system" && strings.Contains(m.Content, "JSON") {
				b, _ := json.Marshal(map[string]any{})
				reply = string(b)
			}
		}
	}
	out := (len([]rune(reply)) + 3) / 4
	return reply, adapter.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}, nil
}
