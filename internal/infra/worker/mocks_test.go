package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"launchkit-core/internal/domain"
	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
)

// memJobRepo is a small in-memory JobRepository with the same compare-and-set rules as Postgres.
type memJobRepo struct {
	mu      sync.Mutex
	jobs    map[string]*model.Job
	failErr error
}

func newMemJobRepo(jobs ...*model.Job) *memJobRepo {
	m := &memJobRepo{jobs: make(map[string]*model.Job)}
	for _, j := range jobs {
		cp := *j
		m.jobs[j.ID] = &cp
	}
	return m
}

func (m *memJobRepo) get(id string) *model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil
	}
	cp := *j
	return &cp
}

func (m *memJobRepo) Save(_ context.Context, _ repository.Tx, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Job, error) {
	if j := m.get(id); j != nil {
		return j, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memJobRepo) ListByOrg(_ context.Context, _ repository.Tx, orgID string, limit, offset int) ([]*model.Job, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Job
	for _, j := range m.jobs {
		if j.OrgID == orgID {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	return out[offset:min(total, offset+limit)], total, nil
}

func (m *memJobRepo) ListQueued(_ context.Context, _ repository.Tx, olderThan time.Time, limit int) ([]*model.Job, error) {
	return nil, nil
}

func (m *memJobRepo) ListProcessing(_ context.Context, _ repository.Tx, startedBefore time.Time, limit int) ([]*model.Job, error) {
	return nil, nil
}

func (m *memJobRepo) MarkProcessing(_ context.Context, _ repository.Tx, id string, startedAt time.Time) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !j.Status.CanTransitionTo(model.JobStatusProcessing) {
		return nil, domain.ErrInvalidTransition
	}
	j.Status = model.JobStatusProcessing
	if j.StartedAt == nil {
		at := startedAt
		j.StartedAt = &at
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) MarkSucceeded(_ context.Context, _ repository.Tx, id string, res model.JobResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != model.JobStatusProcessing {
		return domain.ErrInvalidTransition
	}
	j.Status = model.JobStatusSucceeded
	j.Output = res.Output
	j.TokenUsed = res.TokenUsed
	j.CostCents = res.CostCents
	at := res.CompletedAt
	j.CompletedAt = &at
	return nil
}

func (m *memJobRepo) MarkFailed(_ context.Context, _ repository.Tx, id string, errText string, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	j, ok := m.jobs[id]
	if !ok || !j.Status.CanTransitionTo(model.JobStatusFailed) {
		return domain.ErrInvalidTransition
	}
	j.Status = model.JobStatusFailed
	j.Error = &errText
	at := completedAt
	j.CompletedAt = &at
	return nil
}

// fakeLedger records usage increments and resolves every org to plan.
type fakeLedger struct {
	mu      sync.Mutex
	plan    *model.Plan
	planErr error
	deltas  []model.UsageDelta
}

func (f *fakeLedger) RecordUsage(_ context.Context, _ string, d model.UsageDelta) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deltas = append(f.deltas, d)
}

func (f *fakeLedger) RecordUsageTx(ctx context.Context, _ repository.Tx, orgID string, d model.UsageDelta) {
	f.RecordUsage(ctx, orgID, d)
}

func (f *fakeLedger) CheckLimit(context.Context, string) (*model.LimitCheck, error) {
	return &model.LimitCheck{Allowed: true}, nil
}

func (f *fakeLedger) PlanForOrg(context.Context, string) (*model.Plan, error) {
	if f.planErr != nil {
		return nil, f.planErr
	}
	return f.plan, nil
}

func (f *fakeLedger) recorded() []model.UsageDelta {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.UsageDelta(nil), f.deltas...)
}

type dispatched struct {
	orgID string
	event string
	data  any
}

type fakeDispatcher struct {
	mu     sync.Mutex
	events []dispatched
	err    error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, orgID, event string, data any) (*model.DispatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, dispatched{orgID: orgID, event: event, data: data})
	if f.err != nil {
		return nil, f.err
	}
	return &model.DispatchResult{Sent: 1, Event: event}, nil
}

func (f *fakeDispatcher) all() []dispatched {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dispatched(nil), f.events...)
}

// passTM runs fn without a real transaction.
type passTM struct{}

func (passTM) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

type memEndpointRepo struct {
	mu        sync.Mutex
	endpoints map[string]*model.WebhookEndpoint
}

func newMemEndpointRepo(eps ...*model.WebhookEndpoint) *memEndpointRepo {
	m := &memEndpointRepo{endpoints: make(map[string]*model.WebhookEndpoint)}
	for _, e := range eps {
		cp := *e
		m.endpoints[e.ID] = &cp
	}
	return m
}

func (m *memEndpointRepo) Save(_ context.Context, _ repository.Tx, ep *model.WebhookEndpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ep
	m.endpoints[ep.ID] = &cp
	return nil
}

func (m *memEndpointRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.WebhookEndpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.endpoints[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memEndpointRepo) ListByOrg(_ context.Context, _ repository.Tx, orgID string) ([]*model.WebhookEndpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.WebhookEndpoint
	for _, e := range m.endpoints {
		if e.OrgID == orgID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memEndpointRepo) ListEnabledByOrg(ctx context.Context, tx repository.Tx, orgID string) ([]*model.WebhookEndpoint, error) {
	all, _ := m.ListByOrg(ctx, tx, orgID)
	var out []*model.WebhookEndpoint
	for _, e := range all {
		if e.Enabled {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEndpointRepo) Update(ctx context.Context, tx repository.Tx, ep *model.WebhookEndpoint) error {
	return m.Save(ctx, tx, ep)
}

func (m *memEndpointRepo) TouchDelivered(_ context.Context, _ repository.Tx, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.endpoints[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.LastDeliveryAt = &at
	return nil
}

func (m *memEndpointRepo) Delete(_ context.Context, _ repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.endpoints[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.endpoints, id)
	return nil
}

type memDeliveryRepo struct {
	mu   sync.Mutex
	rows []*model.WebhookDelivery
	err  error
}

func (m *memDeliveryRepo) Save(_ context.Context, _ repository.Tx, d *model.WebhookDelivery) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *memDeliveryRepo) ListByEndpoint(_ context.Context, _ repository.Tx, endpointID string, limit, offset int) ([]*model.WebhookDelivery, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.WebhookDelivery
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].EndpointID == endpointID {
			out = append(out, m.rows[i])
		}
	}
	return out, len(out), nil
}

func (m *memDeliveryRepo) all() []*model.WebhookDelivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.WebhookDelivery(nil), m.rows...)
}

var errBoom = errors.New("boom")
