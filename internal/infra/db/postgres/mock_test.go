//go:build !integration

package postgres

import (
	"context"
	"time"

	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/domain/ports/repository"
	red "launchkit-core/internal/infra/redis"

	"github.com/go-redis/redis/v8"
)

// mockInnerPlanRepo mocks the database repository that the plan decorator wraps.
type mockInnerPlanRepo struct {
	SaveFunc       func(ctx context.Context, tx repository.Tx, plan *model.Plan) error
	FindByCodeFunc func(ctx context.Context, tx repository.Tx, code model.PlanTier) (*model.Plan, error)
	ListAllFunc    func(ctx context.Context, tx repository.Tx) ([]*model.Plan, error)
}

func (m *mockInnerPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	return m.SaveFunc(ctx, tx, plan)
}
func (m *mockInnerPlanRepo) FindByCode(ctx context.Context, tx repository.Tx, code model.PlanTier) (*model.Plan, error) {
	return m.FindByCodeFunc(ctx, tx, code)
}
func (m *mockInnerPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	return m.ListAllFunc(ctx, tx)
}

// mockRedisClient mocks our Redis client wrapper. Unset funcs behave like an
// empty cache.
type mockRedisClient struct {
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc func(ctx context.Context, keys ...string) error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc == nil {
		return "", redis.Nil
	}
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(context.Context) error                          { return nil }
func (m *mockRedisClient) Incr(context.Context, string) (int64, error)         { return 0, nil }
func (m *mockRedisClient) Expire(context.Context, string, time.Duration) error { return nil }
func (m *mockRedisClient) Close() error                                        { return nil }
