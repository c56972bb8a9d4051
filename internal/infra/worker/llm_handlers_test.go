package worker

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/domain/ports/adapter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedAI replies with a canned answer chosen by the system prompt.
type scriptedAI struct {
	replies map[string]string
	err     error
	calls   int
}

func (s *scriptedAI) ListModels(context.Context) ([]string, error) { return []string{"scripted"}, nil }
func (s *scriptedAI) CountTokens(context.Context, string, []adapter.Message) (int, error) {
	return 0, nil
}
func (s *scriptedAI) ChatWithUsage(_ context.Context, _ string, msgs []adapter.Message) (string, adapter.Usage, error) {
	s.calls++
	if s.err != nil {
		return "", adapter.Usage{}, s.err
	}
	for key, reply := range s.replies {
		if strings.Contains(msgs[0].Content, key) {
			return reply, adapter.Usage{}, nil
		}
	}
	return "", adapter.Usage{}, fmt.Errorf("no scripted reply for %q", msgs[0].Content)
}

func TestLLMRegistry_Handlers(t *testing.T) {
	ai := &scriptedAI{replies: map[string]string{
		"Summarize": "  A fox jumped.  ",
		"Classify":  "```json\n{\"classification\":\"technology\",\"confidence\":0.91}\n```",
		"sentiment": `{"sentiment":"positive","score":0.8,"magnitude":0.4}`,
		"Translate": "Hola",
		"entities":  `{"entities":[{"type":"PERSON","text":"Ada","confidence":0.9}]}`,
	}}
	reg := LLMRegistry(ai, "gpt-4o-mini")
	ctx := context.Background()

	h, _ := reg.Get(model.JobTypeSummarize)
	res, err := h.Handle(ctx, JobInput{Text: "The quick brown fox jumps."})
	require.NoError(t, err)
	out := res.Output.(map[string]any)
	assert.Equal(t, "A fox jumped.", out["summary"])
	assert.Equal(t, "The quick brown fox jumps.A fox jumped.", res.CountedText)

	h, _ = reg.Get(model.JobTypeClassify)
	res, err = h.Handle(ctx, JobInput{Text: "new chips"})
	require.NoError(t, err)
	out = res.Output.(map[string]any)
	assert.Equal(t, "technology", out["classification"])
	assert.InDelta(t, 0.91, out["confidence"], 1e-9)

	h, _ = reg.Get(model.JobTypeSentiment)
	res, err = h.Handle(ctx, JobInput{Text: "great"})
	require.NoError(t, err)
	assert.Equal(t, "positive", res.Output.(map[string]any)["sentiment"])
	assert.Equal(t, "great", res.CountedText)

	h, _ = reg.Get(model.JobTypeTranslate)
	res, err = h.Handle(ctx, JobInput{Text: "Hello"})
	require.NoError(t, err)
	out = res.Output.(map[string]any)
	assert.Equal(t, "Hola", out["translation"])
	assert.Equal(t, "en", out["sourceLanguage"])
	assert.Equal(t, "es", out["targetLanguage"])

	h, _ = reg.Get(model.JobTypeExtract)
	res, err = h.Handle(ctx, JobInput{Text: "Ada wrote code"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Output.(map[string]any)["count"])
}

func TestLLMRegistry_Errors(t *testing.T) {
	ctx := context.Background()

	tooLarge := &scriptedAI{err: fmt.Errorf("%w: 20000 > 16000", adapter.ErrInputTooLarge)}
	h, _ := LLMRegistry(tooLarge, "m").Get(model.JobTypeSummarize)
	_, err := h.Handle(ctx, JobInput{Text: "x"})
	require.Error(t, err)
	assert.True(t, IsPermanent(err), "oversized input is not worth retrying")

	flaky := &scriptedAI{err: fmt.Errorf("503 from provider")}
	h, _ = LLMRegistry(flaky, "m").Get(model.JobTypeSummarize)
	_, err = h.Handle(ctx, JobInput{Text: "x"})
	require.Error(t, err)
	assert.False(t, IsPermanent(err))

	garbled := &scriptedAI{replies: map[string]string{"Classify": "not json"}}
	h, _ = LLMRegistry(garbled, "m").Get(model.JobTypeClassify)
	_, err = h.Handle(ctx, JobInput{Text: "x"})
	assert.Error(t, err)
}
