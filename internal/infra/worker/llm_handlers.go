package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/domain/ports/adapter"
)

// LLMRegistry backs every job type with a chat model. Token accounting still
// uses the character estimate so billing does not depend on the provider.
func LLMRegistry(ai adapter.AIServiceAdapter, chatModel string) *Registry {
	h := &llmHandlers{ai: ai, model: chatModel}
	return NewRegistry().
		Register(model.JobTypeSummarize, JobHandlerFunc(h.summarize)).
		Register(model.JobTypeClassify, JobHandlerFunc(h.classify)).
		Register(model.JobTypeSentiment, JobHandlerFunc(h.sentiment)).
		Register(model.JobTypeTranslate, JobHandlerFunc(h.translate)).
		Register(model.JobTypeExtract, JobHandlerFunc(h.extract))
}

type llmHandlers struct {
	ai    adapter.AIServiceAdapter
	model string
}

func (h *llmHandlers) ask(ctx context.Context, system, user string) (string, error) {
	reply, _, err := h.ai.ChatWithUsage(ctx, h.model, []adapter.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	})
	if errors.Is(err, adapter.ErrInputTooLarge) {
		return "", Permanent(err)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// askJSON asks for a JSON object and decodes it into v, tolerating code fences.
func (h *llmHandlers) askJSON(ctx context.Context, system, user string, v any) error {
	reply, err := h.ask(ctx, system+" Respond with a single JSON object and nothing else.", user)
	if err != nil {
		return err
	}
	reply = strings.TrimPrefix(strings.TrimPrefix(reply, "```json"), "```")
	reply = strings.TrimSuffix(strings.TrimSpace(reply), "```")
	if err := json.Unmarshal([]byte(reply), v); err != nil {
		return fmt.Errorf("decode model reply: %w", err)
	}
	return nil
}

func (h *llmHandlers) summarize(ctx context.Context, in JobInput) (*HandlerResult, error) {
	summary, err := h.ask(ctx, "Summarize the user's text in at most three sentences.", in.Text)
	if err != nil {
		return nil, err
	}
	return &HandlerResult{
		Output: map[string]any{
			"summary":        summary,
			"originalLength": len([]rune(in.Text)),
			"summaryLength":  len([]rune(summary)),
		},
		CountedText: in.Text + summary,
	}, nil
}

func (h *llmHandlers) classify(ctx context.Context, in JobInput) (*HandlerResult, error) {
	var out struct {
		Classification string  `json:"classification"`
		Confidence     float64 `json:"confidence"`
	}
	system := fmt.Sprintf(`Classify the text into one of %s. Use keys "classification" and "confidence" (0..1).`,
		strings.Join(classifyCategories, ", "))
	if err := h.askJSON(ctx, system, in.Text, &out); err != nil {
		return nil, err
	}
	return &HandlerResult{
		Output: map[string]any{
			"classification": out.Classification,
			"confidence":     out.Confidence,
			"categories":     classifyCategories,
		},
		CountedText: in.Text + out.Classification,
	}, nil
}

func (h *llmHandlers) sentiment(ctx context.Context, in JobInput) (*HandlerResult, error) {
	var out struct {
		Sentiment string  `json:"sentiment"`
		Score     float64 `json:"score"`
		Magnitude float64 `json:"magnitude"`
	}
	system := `Rate the sentiment of the text. Use keys "sentiment" (positive|negative|neutral), "score" (0..1) and "magnitude" (0..1).`
	if err := h.askJSON(ctx, system, in.Text, &out); err != nil {
		return nil, err
	}
	return &HandlerResult{
		Output:      map[string]any{"sentiment": out.Sentiment, "score": out.Score, "magnitude": out.Magnitude},
		CountedText: in.Text,
	}, nil
}

func (h *llmHandlers) translate(ctx context.Context, in JobInput) (*HandlerResult, error) {
	from, to := in.From, in.To
	if from == "" {
		from = "en"
	}
	if to == "" {
		to = "es"
	}
	translation, err := h.ask(ctx, fmt.Sprintf("Translate the user's text from %s to %s. Reply with the translation only.", from, to), in.Text)
	if err != nil {
		return nil, err
	}
	return &HandlerResult{
		Output:      map[string]any{"translation": translation, "sourceLanguage": from, "targetLanguage": to},
		CountedText: in.Text + translation,
	}, nil
}

func (h *llmHandlers) extract(ctx context.Context, in JobInput) (*HandlerResult, error) {
	var out struct {
		Entities []Entity `json:"entities"`
	}
	system := `Extract named entities. Use key "entities", a list of objects with "type" (PERSON|LOCATION|ORGANIZATION|DATE|OTHER), "text" and "confidence" (0..1).`
	if err := h.askJSON(ctx, system, in.Text, &out); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(out.Entities)
	if err != nil {
		return nil, err
	}
	return &HandlerResult{
		Output:      map[string]any{"entities": out.Entities, "count": len(out.Entities)},
		CountedText: in.Text + string(raw),
	}, nil
}
