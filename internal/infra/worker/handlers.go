package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"launchkit-core/internal/domain"
	"launchkit-core/internal/domain/model"
)

// HandlerResult is the output of one job type handler. CountedText is the
// text the token estimate is computed over.
type HandlerResult struct {
	Output      any
	CountedText string
}

// JobHandler runs inference for one job type. Implementations must be safe for
// concurrent use and must not share state between invocations.
type JobHandler interface {
	Handle(ctx context.Context, in JobInput) (*HandlerResult, error)
}

type JobHandlerFunc func(ctx context.Context, in JobInput) (*HandlerResult, error)

func (f JobHandlerFunc) Handle(ctx context.Context, in JobInput) (*HandlerResult, error) {
	return f(ctx, in)
}

// JobInput is the common shape of job inputs.
type JobInput struct {
	Text string `json:"text"`
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

func DecodeJobInput(raw json.RawMessage) (JobInput, error) {
	var in JobInput
	if len(raw) == 0 {
		return in, nil
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, fmt.Errorf("%w: job input: %v", domain.ErrInvalidArgument, err)
	}
	return in, nil
}

// Registry maps job types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[model.JobType]JobHandler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[model.JobType]JobHandler)}
}

func (r *Registry) Register(t model.JobType, h JobHandler) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
	return r
}

func (r *Registry) Get(t model.JobType) (JobHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}
