package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/pkoukk/tiktoken-go"

	"launchkit-core/internal/domain/ports/adapter"
	"launchkit-core/internal/infra/metrics"
)

var _ adapter.AIServiceAdapter = (*OpenAIAdapter)(nil)

// per-message overhead used by the chat format (role + separators)
const tokensPerMessage = 4

// OpenAIAdapter implements adapter.AIServiceAdapter with the Chat Completions API.
// Prompts are counted locally with tiktoken and rejected above maxInput.
type OpenAIAdapter struct {
	client   openai.Client
	model    string
	maxInput int

	encMu sync.Mutex
	encs  map[string]*tiktoken.Tiktoken
}

func NewOpenAIAdapter(apiKey, baseURL, model string, maxInput int) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIAdapter{
		client:   openai.NewClient(opts...),
		model:    model,
		maxInput: maxInput,
		encs:     make(map[string]*tiktoken.Tiktoken),
	}, nil
}

func (o *OpenAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{o.model}, nil
}

func (o *OpenAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	enc, err := o.encoding(modelOrDefault(model, o.model))
	if err != nil {
		return 0, err
	}
	n := 3 // reply priming
	for _, m := range messages {
		n += tokensPerMessage + len(enc.Encode(m.Content, nil, nil))
	}
	return n, nil
}

func (o *OpenAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	model = modelOrDefault(model, o.model)
	if o.maxInput > 0 {
		n, err := o.CountTokens(ctx, model, messages)
		if err == nil && n > o.maxInput {
			metrics.InputRejected("openai", model)
			return "", adapter.Usage{}, fmt.Errorf("%w: %d > %d", adapter.ErrInputTooLarge, n, o.maxInput)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toOpenAIMessages(messages),
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", adapter.Usage{}, fmt.Errorf("openai chat: %w", err)
	}
	usage := adapter.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, usage, nil
		}
	}
	return "", usage, errors.New("openai: no choice content")
}

func (o *OpenAIAdapter) encoding(model string) (*tiktoken.Tiktoken, error) {
	o.encMu.Lock()
	defer o.encMu.Unlock()
	if enc, ok := o.encs[model]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// unknown to tiktoken: fall back to the encoding of current chat models
		enc, err = tiktoken.GetEncoding("o200k_base")
		if err != nil {
			return nil, fmt.Errorf("tiktoken: %w", err)
		}
	}
	o.encs[model] = enc
	return enc, nil
}

func toOpenAIMessages(msgs []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
