package ai_test

import (
	"context"
	"testing"

	"launchkit-core/internal/config"
	"launchkit-core/internal/domain/ports/adapter"
	ai "launchkit-core/internal/infra/adapters/ai"
)

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()

	a, err := ai.NewFromConfig(ctx, config.AIConfig{Provider: "mock"})
	if err != nil || a != nil {
		t.Fatalf("mock: want nil adapter, got %v, %v", a, err)
	}

	a, err = ai.NewFromConfig(ctx, config.AIConfig{Provider: "noop", ConcurrentLimit: 2})
	if err != nil || a == nil {
		t.Fatalf("noop: %v", err)
	}
	reply, usage, err := a.ChatWithUsage(ctx, "", []adapter.Message{{Role: "user", Content: "hello there"}})
	if err != nil || reply != "hello there" || usage.TotalTokens == 0 {
		t.Fatalf("noop chat: %q %+v %v", reply, usage, err)
	}

	if _, err := ai.NewFromConfig(ctx, config.AIConfig{Provider: "claude"}); err == nil {
		t.Fatalf("unknown provider accepted")
	}
}
