package ai

import (
	"context"
	"time"

	"launchkit-core/internal/domain/ports/adapter"
	"launchkit-core/internal/infra/metrics"
)

var _ adapter.AIServiceAdapter = (*limitedAI)(nil)

// limitedAI caps in-flight provider calls across both lanes and bounds each
// call with a timeout. Waiting for a slot honours ctx.
type limitedAI struct {
	inner    adapter.AIServiceAdapter
	provider string
	sem      chan struct{}
	timeout  time.Duration
}

func NewLimitedAI(inner adapter.AIServiceAdapter, provider string, maxConcurrent int, timeout time.Duration) adapter.AIServiceAdapter {
	if maxConcurrent <= 0 && timeout <= 0 {
		return inner
	}
	l := &limitedAI{inner: inner, provider: provider, timeout: timeout}
	if maxConcurrent > 0 {
		l.sem = make(chan struct{}, maxConcurrent)
	}
	return l
}

func (l *limitedAI) acquire(ctx context.Context) (context.Context, func(), error) {
	if l.sem != nil {
		select {
		case l.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	cancel := func() {}
	if l.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
	}
	return ctx, func() {
		cancel()
		if l.sem != nil {
			<-l.sem
		}
	}, nil
}

func (l *limitedAI) ListModels(ctx context.Context) ([]string, error) {
	return l.inner.ListModels(ctx)
}

func (l *limitedAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	ctx, release, err := l.acquire(ctx)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	defer release()

	start := time.Now()
	reply, usage, err := l.inner.ChatWithUsage(ctx, model, messages)
	metrics.ObserveChatUsage(l.provider, modelOrDefault(model, "default"),
		usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens, time.Since(start).Milliseconds(), err == nil)
	return reply, usage, err
}

func (l *limitedAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	ctx, release, err := l.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()
	return l.inner.CountTokens(ctx, model, messages)
}
