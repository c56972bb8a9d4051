//go:build !integration

package apiv1_test

import (
	"context"
	"encoding/json"
	"time"

	"launchkit-core/internal/domain"
	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/domain/ports/adapter"
	"launchkit-core/internal/usecase"
)

type mockJobs struct {
	CreateJobFunc    func(ctx context.Context, orgID string, jobType model.JobType, input json.RawMessage) (*model.JobCreated, error)
	GetJobFunc       func(ctx context.Context, jobID, orgID string) (*model.JobView, error)
	ListJobsFunc     func(ctx context.Context, orgID string, limit, offset int) (*model.JobPage, error)
	RequeueJobFunc   func(ctx context.Context, jobID string) (bool, error)
	RequeueStuckFunc func(ctx context.Context, age time.Duration, limit int) (int, error)
	FailOrphanedFunc func(ctx context.Context, age time.Duration, limit int) (int, error)
}

func (m *mockJobs) CreateJob(ctx context.Context, orgID string, jobType model.JobType, input json.RawMessage) (*model.JobCreated, error) {
	return m.CreateJobFunc(ctx, orgID, jobType, input)
}
func (m *mockJobs) GetJob(ctx context.Context, jobID, orgID string) (*model.JobView, error) {
	return m.GetJobFunc(ctx, jobID, orgID)
}
func (m *mockJobs) ListJobs(ctx context.Context, orgID string, limit, offset int) (*model.JobPage, error) {
	return m.ListJobsFunc(ctx, orgID, limit, offset)
}
func (m *mockJobs) RequeueJob(ctx context.Context, jobID string) (bool, error) {
	return m.RequeueJobFunc(ctx, jobID)
}
func (m *mockJobs) RequeueStuck(ctx context.Context, age time.Duration, limit int) (int, error) {
	return m.RequeueStuckFunc(ctx, age, limit)
}
func (m *mockJobs) FailOrphaned(ctx context.Context, age time.Duration, limit int) (int, error) {
	return m.FailOrphanedFunc(ctx, age, limit)
}

type mockUsage struct {
	usecase.UsageUseCase
	MonthlyUsageFunc func(ctx context.Context, orgID, month string) (*model.MonthlyUsage, error)
}

func (m *mockUsage) MonthlyUsage(ctx context.Context, orgID, month string) (*model.MonthlyUsage, error) {
	return m.MonthlyUsageFunc(ctx, orgID, month)
}

type mockWebhooks struct {
	usecase.WebhookUseCase
	CreateFunc func(ctx context.Context, orgID, url string) (*model.CreatedWebhookEndpoint, error)
	DeleteFunc func(ctx context.Context, orgID, id string) error
}

func (m *mockWebhooks) Create(ctx context.Context, orgID, url string) (*model.CreatedWebhookEndpoint, error) {
	return m.CreateFunc(ctx, orgID, url)
}
func (m *mockWebhooks) Delete(ctx context.Context, orgID, id string) error {
	return m.DeleteFunc(ctx, orgID, id)
}

// mockKeys authenticates exactly one key string.
type mockKeys struct {
	key    string
	record *model.APIKey

	RevokeFunc func(ctx context.Context, orgID, id string) error
}

func (m *mockKeys) Issue(ctx context.Context, orgID, name string) (*model.IssuedAPIKey, error) {
	return &model.IssuedAPIKey{APIKey: &model.APIKey{ID: "k2", OrgID: orgID, Name: name}, Key: "lk_test_pk_x_y"}, nil
}
func (m *mockKeys) List(ctx context.Context, orgID string) ([]*model.APIKey, error) {
	return []*model.APIKey{m.record}, nil
}
func (m *mockKeys) Revoke(ctx context.Context, orgID, id string) error {
	if m.RevokeFunc == nil {
		return nil
	}
	return m.RevokeFunc(ctx, orgID, id)
}
func (m *mockKeys) Authenticate(ctx context.Context, key string) (*model.APIKey, error) {
	if key != m.key {
		return nil, domain.ErrInvalidAPIKey
	}
	return m.record, nil
}

type mockQueues struct {
	GetMetricsFunc func(ctx context.Context, lane string) (adapter.LaneMetrics, error)
	CleanQueueFunc func(ctx context.Context, lane string, grace time.Duration) (usecase.CleanResult, error)
	paused         []string
}

func (m *mockQueues) GetMetrics(ctx context.Context, lane string) (adapter.LaneMetrics, error) {
	return m.GetMetricsFunc(ctx, lane)
}
func (m *mockQueues) GetAllMetrics(ctx context.Context) ([]adapter.LaneMetrics, error) {
	return []adapter.LaneMetrics{{Queue: adapter.LaneAIJobs}, {Queue: adapter.LaneWebhooks}}, nil
}
func (m *mockQueues) PauseQueue(ctx context.Context, lane string) error {
	if _, err := adapter.ParseLane(lane); err != nil {
		return err
	}
	m.paused = append(m.paused, lane)
	return nil
}
func (m *mockQueues) ResumeQueue(ctx context.Context, lane string) error { return nil }
func (m *mockQueues) CleanQueue(ctx context.Context, lane string, grace time.Duration) (usecase.CleanResult, error) {
	return m.CleanQueueFunc(ctx, lane, grace)
}

type mockPlans struct {
	orgs map[string]*model.Org
}

func (m *mockPlans) List(ctx context.Context) ([]*model.Plan, error) { return model.DefaultPlans(), nil }
func (m *mockPlans) Save(ctx context.Context, plan *model.Plan) error { return nil }
func (m *mockPlans) CreateOrg(ctx context.Context, id, name string, tier model.PlanTier) (*model.Org, error) {
	org, err := model.NewOrg(id, name, tier)
	if err != nil {
		return nil, err
	}
	m.orgs[org.ID] = org
	return org, nil
}
func (m *mockPlans) GetOrg(ctx context.Context, id string) (*model.Org, error) {
	if o, ok := m.orgs[id]; ok {
		return o, nil
	}
	return nil, domain.ErrOrgNotFound
}
func (m *mockPlans) ListOrgs(ctx context.Context) ([]*model.Org, error) { return nil, nil }
func (m *mockPlans) ChangeOrgPlan(ctx context.Context, id string, tier model.PlanTier) (*model.Org, error) {
	o, err := m.GetOrg(ctx, id)
	if err != nil {
		return nil, err
	}
	o.PlanTier = tier
	return o, nil
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (s *stubLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allow, s.err
}
