package worker

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"launchkit-core/internal/domain/model"
)

var classifyCategories = []string{"Technology", "Business", "Science", "Sports", "Entertainment"}
var sentiments = []string{"positive", "negative", "neutral"}

// mockDelays stand in for inference latency.
var mockDelays = map[model.JobType]time.Duration{
	model.JobTypeSummarize: 1000 * time.Millisecond,
	model.JobTypeClassify:  800 * time.Millisecond,
	model.JobTypeSentiment: 600 * time.Millisecond,
	model.JobTypeTranslate: 1200 * time.Millisecond,
	model.JobTypeExtract:   900 * time.Millisecond,
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

// MockRegistry returns canned handlers. delayScale multiplies the simulated
// latency; 0 disables it. seed fixes the random choices.
func MockRegistry(delayScale float64, seed int64) *Registry {
	rnd := &lockedRand{r: rand.New(rand.NewSource(seed))}
	delay := func(t model.JobType) time.Duration {
		return time.Duration(float64(mockDelays[t]) * delayScale)
	}
	return NewRegistry().
		Register(model.JobTypeSummarize, mockSummarize(delay(model.JobTypeSummarize))).
		Register(model.JobTypeClassify, mockClassify(delay(model.JobTypeClassify), rnd)).
		Register(model.JobTypeSentiment, mockSentiment(delay(model.JobTypeSentiment), rnd)).
		Register(model.JobTypeTranslate, mockTranslate(delay(model.JobTypeTranslate))).
		Register(model.JobTypeExtract, mockExtract(delay(model.JobTypeExtract)))
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func Summarize(text string) string {
	r := []rune(text)
	if len(r) > 100 {
		return string(r[:100]) + "..."
	}
	return text
}

func mockSummarize(d time.Duration) JobHandler {
	return JobHandlerFunc(func(ctx context.Context, in JobInput) (*HandlerResult, error) {
		if err := wait(ctx, d); err != nil {
			return nil, err
		}
		summary := Summarize(in.Text)
		return &HandlerResult{
			Output: map[string]any{
				"summary":        summary,
				"originalLength": len([]rune(in.Text)),
				"summaryLength":  len([]rune(summary)),
			},
			CountedText: in.Text + summary,
		}, nil
	})
}

func mockClassify(d time.Duration, rnd *lockedRand) JobHandler {
	return JobHandlerFunc(func(ctx context.Context, in JobInput) (*HandlerResult, error) {
		if err := wait(ctx, d); err != nil {
			return nil, err
		}
		class := classifyCategories[rnd.Intn(len(classifyCategories))]
		return &HandlerResult{
			Output: map[string]any{
				"classification": class,
				"confidence":     0.85 + rnd.Float64()*0.15,
				"categories":     classifyCategories,
			},
			CountedText: in.Text + class,
		}, nil
	})
}

func mockSentiment(d time.Duration, rnd *lockedRand) JobHandler {
	return JobHandlerFunc(func(ctx context.Context, in JobInput) (*HandlerResult, error) {
		if err := wait(ctx, d); err != nil {
			return nil, err
		}
		return &HandlerResult{
			Output: map[string]any{
				"sentiment": sentiments[rnd.Intn(len(sentiments))],
				"score":     rnd.Float64(),
				"magnitude": rnd.Float64(),
			},
			CountedText: in.Text,
		}, nil
	})
}

func mockTranslate(d time.Duration) JobHandler {
	return JobHandlerFunc(func(ctx context.Context, in JobInput) (*HandlerResult, error) {
		if err := wait(ctx, d); err != nil {
			return nil, err
		}
		from, to := in.From, in.To
		if from == "" {
			from = "en"
		}
		if to == "" {
			to = "es"
		}
		translation := "[Translated: " + in.Text + "]"
		return &HandlerResult{
			Output: map[string]any{
				"translation":    translation,
				"sourceLanguage": from,
				"targetLanguage": to,
			},
			CountedText: in.Text + translation,
		}, nil
	})
}

type Entity struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func mockExtract(d time.Duration) JobHandler {
	return JobHandlerFunc(func(ctx context.Context, in JobInput) (*HandlerResult, error) {
		if err := wait(ctx, d); err != nil {
			return nil, err
		}
		entities := []Entity{
			{Type: "PERSON", Text: "Sample Person", Confidence: 0.9},
			{Type: "LOCATION", Text: "Sample Location", Confidence: 0.85},
		}
		raw, err := json.Marshal(entities)
		if err != nil {
			return nil, err
		}
		return &HandlerResult{
			Output:      map[string]any{"entities": entities, "count": len(entities)},
			CountedText: in.Text + string(raw),
		}, nil
	})
}
