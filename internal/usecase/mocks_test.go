package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"launchkit-core/internal/domain"
	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/domain/ports/adapter"
	"launchkit-core/internal/domain/ports/repository"
	"launchkit-core/internal/infra/queue"

	"github.com/rs/zerolog"
)

var testLogger = zerolog.Nop()

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func newTestQueue() *queue.MemoryQueue {
	q := queue.NewMemoryQueue(nil)
	q.RegisterLane(adapter.LaneAIJobs, queue.LaneSettings{MaxAttempts: 3, Backoff: adapter.Backoff{Base: 2 * time.Second, Max: time.Hour}, Lease: time.Minute})
	q.RegisterLane(adapter.LaneWebhooks, queue.LaneSettings{MaxAttempts: 5, Backoff: adapter.Backoff{Base: time.Second, Max: 5 * time.Minute}, Lease: time.Minute})
	return q
}

// memOrgRepo is a small in-memory implementation used by unit tests.
type memOrgRepo struct {
	mu   sync.RWMutex
	orgs map[string]*model.Org
}

func newMemOrgRepo(orgs ...*model.Org) *memOrgRepo {
	m := &memOrgRepo{orgs: make(map[string]*model.Org)}
	for _, o := range orgs {
		cp := *o
		m.orgs[o.ID] = &cp
	}
	return m
}

func (m *memOrgRepo) Save(_ context.Context, _ repository.Tx, org *model.Org) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *org
	m.orgs[org.ID] = &cp
	return nil
}

func (m *memOrgRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Org, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orgs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrgRepo) List(_ context.Context, _ repository.Tx) ([]*model.Org, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Org
	for _, o := range m.orgs {
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

type memPlanRepo struct {
	mu    sync.RWMutex
	plans map[model.PlanTier]*model.Plan
}

func newMemPlanRepo(plans ...*model.Plan) *memPlanRepo {
	m := &memPlanRepo{plans: make(map[model.PlanTier]*model.Plan)}
	for _, p := range plans {
		cp := *p
		m.plans[p.Code] = &cp
	}
	return m
}

func (m *memPlanRepo) Save(_ context.Context, _ repository.Tx, plan *model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *plan
	m.plans[plan.Code] = &cp
	return nil
}

func (m *memPlanRepo) FindByCode(_ context.Context, _ repository.Tx, code model.PlanTier) (*model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPlanRepo) ListAll(_ context.Context, _ repository.Tx) ([]*model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Plan
	for _, p := range m.plans {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

type memUsageRepo struct {
	mu      sync.Mutex
	buckets map[string]*model.UsageRecord
	incErr  error
}

func newMemUsageRepo() *memUsageRepo {
	return &memUsageRepo{buckets: make(map[string]*model.UsageRecord)}
}

func (m *memUsageRepo) Increment(_ context.Context, _ repository.Tx, orgID string, at time.Time, d model.UsageDelta) error {
	if m.incErr != nil {
		return m.incErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	start, end := model.HourWindow(at)
	key := orgID + "|" + start.Format(time.RFC3339)
	b, ok := m.buckets[key]
	if !ok {
		b = &model.UsageRecord{OrgID: orgID, WindowStart: start, WindowEnd: end}
		m.buckets[key] = b
	}
	b.Jobs += d.Jobs
	b.Tokens += d.Tokens
	b.CostCents += d.CostCents
	return nil
}

func (m *memUsageRepo) ListRange(_ context.Context, _ repository.Tx, orgID string, from, to time.Time) ([]*model.UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.UsageRecord
	for _, b := range m.buckets {
		if b.OrgID == orgID && !b.WindowStart.Before(from) && b.WindowStart.Before(to) {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WindowStart.Before(out[j].WindowStart) })
	return out, nil
}

func (m *memUsageRepo) Sum(ctx context.Context, tx repository.Tx, orgID string, from, to time.Time) (model.UsageTotals, error) {
	rows, _ := m.ListRange(ctx, tx, orgID, from, to)
	var t model.UsageTotals
	for _, r := range rows {
		t.Add(r)
	}
	return t, nil
}

type memJobRepo struct {
	mu      sync.Mutex
	jobs    map[string]*model.Job
	failErr error
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[string]*model.Job)}
}

func (m *memJobRepo) Save(_ context.Context, _ repository.Tx, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
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
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Job
	for _, j := range m.jobs {
		if j.Status == model.JobStatusQueued && j.CreatedAt.Before(olderThan) {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memJobRepo) ListProcessing(_ context.Context, _ repository.Tx, startedBefore time.Time, limit int) ([]*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Job
	for _, j := range m.jobs {
		if j.Status == model.JobStatusProcessing && j.StartedAt != nil && j.StartedAt.Before(startedBefore) {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.Before(*out[k].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memJobRepo) MarkProcessing(context.Context, repository.Tx, string, time.Time) (*model.Job, error) {
	return nil, domain.ErrInvalidTransition
}

func (m *memJobRepo) MarkSucceeded(context.Context, repository.Tx, string, model.JobResult) error {
	return domain.ErrInvalidTransition
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

func (m *memJobRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

type memEndpointRepo struct {
	mu        sync.Mutex
	endpoints map[string]*model.WebhookEndpoint
}

func newMemEndpointRepo() *memEndpointRepo {
	return &memEndpointRepo{endpoints: make(map[string]*model.WebhookEndpoint)}
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
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
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
	if _, err := m.FindByID(ctx, tx, ep.ID); err != nil {
		return err
	}
	return m.Save(ctx, tx, ep)
}

func (m *memEndpointRepo) TouchDelivered(context.Context, repository.Tx, string, time.Time) error {
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
}

func (m *memDeliveryRepo) Save(_ context.Context, _ repository.Tx, d *model.WebhookDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *memDeliveryRepo) ListByEndpoint(_ context.Context, _ repository.Tx, endpointID string, limit, offset int) ([]*model.WebhookDelivery, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*model.WebhookDelivery
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].EndpointID == endpointID {
			all = append(all, m.rows[i])
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	return all[offset:min(total, offset+limit)], total, nil
}

type memAPIKeyRepo struct {
	mu      sync.Mutex
	keys    map[string]*model.APIKey
	touched chan string
}

func newMemAPIKeyRepo() *memAPIKeyRepo {
	return &memAPIKeyRepo{keys: make(map[string]*model.APIKey), touched: make(chan string, 8)}
}

func (m *memAPIKeyRepo) Save(_ context.Context, _ repository.Tx, k *model.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *k
	m.keys[k.ID] = &cp
	return nil
}

func (m *memAPIKeyRepo) FindActiveByPrefix(_ context.Context, _ repository.Tx, prefix string) ([]*model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.APIKey
	for _, k := range m.keys {
		if k.Prefix == prefix && k.Active() {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memAPIKeyRepo) ListByOrg(_ context.Context, _ repository.Tx, orgID string) ([]*model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.APIKey
	for _, k := range m.keys {
		if k.OrgID == orgID {
			cp := *k
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.Compare(out[i].ID, out[j].ID) < 0 })
	return out, nil
}

func (m *memAPIKeyRepo) Revoke(_ context.Context, _ repository.Tx, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok {
		return domain.ErrNotFound
	}
	k.RevokedAt = &at
	return nil
}

func (m *memAPIKeyRepo) TouchLastUsed(_ context.Context, _ repository.Tx, id string, at time.Time) error {
	m.mu.Lock()
	if k, ok := m.keys[id]; ok {
		k.LastUsedAt = &at
	}
	m.mu.Unlock()
	select {
	case m.touched <- id:
	default:
	}
	return nil
}
