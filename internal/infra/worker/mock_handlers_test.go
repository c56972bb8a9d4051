package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"launchkit-core/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "short", Summarize("short"))
	long := strings.Repeat("é", 150)
	got := Summarize(long)
	assert.Equal(t, strings.Repeat("é", 100)+"...", got)
}

func TestMockRegistry_CoversEveryJobType(t *testing.T) {
	t.Parallel()
	reg := MockRegistry(0, 7)
	for _, jt := range model.JobTypes {
		h, ok := reg.Get(jt)
		require.True(t, ok, "missing handler for %s", jt)
		res, err := h.Handle(context.Background(), JobInput{Text: "The quick brown fox"})
		require.NoError(t, err, jt)
		assert.NotNil(t, res.Output, jt)
		assert.True(t, strings.HasPrefix(res.CountedText, "The quick brown fox"), jt)
	}
}

func TestMockTranslate_Defaults(t *testing.T) {
	t.Parallel()
	h, _ := MockRegistry(0, 1).Get(model.JobTypeTranslate)
	res, err := h.Handle(context.Background(), JobInput{Text: "hi"})
	require.NoError(t, err)
	out := res.Output.(map[string]any)
	assert.Equal(t, "[Translated: hi]", out["translation"])
	assert.Equal(t, "en", out["sourceLanguage"])
	assert.Equal(t, "es", out["targetLanguage"])
}

func TestMockClassify_PicksKnownCategory(t *testing.T) {
	t.Parallel()
	h, _ := MockRegistry(0, 3).Get(model.JobTypeClassify)
	res, err := h.Handle(context.Background(), JobInput{Text: "x"})
	require.NoError(t, err)
	out := res.Output.(map[string]any)
	assert.Contains(t, classifyCategories, out["classification"])
	conf := out["confidence"].(float64)
	assert.GreaterOrEqual(t, conf, 0.85)
	assert.LessOrEqual(t, conf, 1.0)
}

func TestMockHandler_HonoursCancellation(t *testing.T) {
	t.Parallel()
	h, _ := MockRegistry(10, 1).Get(model.JobTypeSummarize)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := h.Handle(ctx, JobInput{Text: "x"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
