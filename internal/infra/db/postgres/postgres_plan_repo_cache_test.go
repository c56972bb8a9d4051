//go:build !integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

func TestPlanRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	plan := &model.Plan{Code: model.PlanPro, Name: "Pro", MonthlyJobLimit: 100_000, MonthlyTokenLimit: 5_000_000, RatePer1kTokensCents: 2}
	planJSON, _ := json.Marshal(plan)

	t.Run("FindByCode returns from cache on hit", func(t *testing.T) {
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				if key != "plan:PRO" {
					t.Fatalf("unexpected key %q", key)
				}
				return string(planJSON), nil
			},
		}
		innerCalled := false
		inner := &mockInnerPlanRepo{
			FindByCodeFunc: func(ctx context.Context, tx repository.Tx, code model.PlanTier) (*model.Plan, error) {
				innerCalled = true
				return nil, nil
			},
		}

		got, err := NewPlanRepoCacheDecorator(inner, mockRedis, time.Hour, &logger).FindByCode(ctx, nil, model.PlanPro)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if innerCalled {
			t.Error("inner repository should not be called on a cache hit")
		}
		if got == nil || got.Code != model.PlanPro || got.RatePer1kTokensCents != 2 {
			t.Errorf("did not return the cached plan: %+v", got)
		}
	})

	t.Run("FindByCode loads and stores on miss", func(t *testing.T) {
		var setKey string
		var setTTL time.Duration
		mockRedis := &mockRedisClient{
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				setKey, setTTL = key, expiration
				return nil
			},
		}
		inner := &mockInnerPlanRepo{
			FindByCodeFunc: func(ctx context.Context, tx repository.Tx, code model.PlanTier) (*model.Plan, error) {
				return plan, nil
			},
		}

		got, err := NewPlanRepoCacheDecorator(inner, mockRedis, 10*time.Minute, &logger).FindByCode(ctx, nil, model.PlanPro)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got.Name != "Pro" {
			t.Fatalf("got %+v", got)
		}
		if setKey != "plan:PRO" || setTTL != 10*time.Minute {
			t.Fatalf("cache write key=%q ttl=%v", setKey, setTTL)
		}
	})

	t.Run("FindByCode falls through on redis error", func(t *testing.T) {
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				return "", errors.New("connection refused")
			},
		}
		inner := &mockInnerPlanRepo{
			FindByCodeFunc: func(ctx context.Context, tx repository.Tx, code model.PlanTier) (*model.Plan, error) {
				return plan, nil
			},
		}
		got, err := NewPlanRepoCacheDecorator(inner, mockRedis, time.Hour, &logger).FindByCode(ctx, nil, model.PlanPro)
		if err != nil || got == nil {
			t.Fatalf("expected plan from inner repo, got %v, %v", got, err)
		}
	})

	t.Run("Save invalidates the plan and the list", func(t *testing.T) {
		var deletedKeys []string
		mockRedis := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error {
				deletedKeys = append(deletedKeys, keys...)
				return nil
			},
		}
		inner := &mockInnerPlanRepo{
			SaveFunc: func(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
				return nil
			},
		}

		if err := NewPlanRepoCacheDecorator(inner, mockRedis, time.Hour, &logger).Save(ctx, nil, plan); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(deletedKeys) != 2 || deletedKeys[0] != "plan:PRO" || deletedKeys[1] != "plans:all" {
			t.Fatalf("unexpected invalidation: %v", deletedKeys)
		}
	})

	t.Run("ListAll caches a non-empty list", func(t *testing.T) {
		sets := 0
		mockRedis := &mockRedisClient{
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				sets++
				return nil
			},
		}
		inner := &mockInnerPlanRepo{
			ListAllFunc: func(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
				return model.DefaultPlans(), nil
			},
		}
		plans, err := NewPlanRepoCacheDecorator(inner, mockRedis, time.Hour, &logger).ListAll(ctx, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(plans) != 3 || sets != 1 {
			t.Fatalf("plans=%d sets=%d", len(plans), sets)
		}
	})
}
