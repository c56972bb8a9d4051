package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/domain/ports/repository"
	"launchkit-core/internal/infra/metrics"
	red "launchkit-core/internal/infra/redis"

	"github.com/rs/zerolog"
)

var _ repository.PlanRepository = (*planRepoCacheDecorator)(nil)

const plansAllKey = "plans:all"

// planRepoCacheDecorator serves plan reads from Redis. Plans are read on every
// admission, written only by admins.
type planRepoCacheDecorator struct {
	inner repository.PlanRepository
	cache red.RedisClient
	ttl   time.Duration
	log   zerolog.Logger
}

func NewPlanRepoCacheDecorator(inner repository.PlanRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.PlanRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &planRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   ttl,
		log:   logger.With().Str("component", "planCache").Logger(),
	}
}

func planKey(code model.PlanTier) string { return fmt.Sprintf("plan:%s", code) }

func (d *planRepoCacheDecorator) FindByCode(ctx context.Context, tx repository.Tx, code model.PlanTier) (*model.Plan, error) {
	key := planKey(code)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var plan model.Plan
		if json.Unmarshal([]byte(val), &plan) == nil {
			metrics.IncCacheRequest("plan", "hit")
			return &plan, nil
		}
	} else if !red.IsNil(err) {
		d.log.Warn().Err(err).Str("key", key).Msg("plan cache read failed")
	}

	metrics.IncCacheRequest("plan", "miss")
	plan, err := d.inner.FindByCode(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(plan); err == nil {
		if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
			d.log.Warn().Err(err).Str("key", key).Msg("plan cache write failed")
		}
	}
	return plan, nil
}

// Save invalidates the plan and the list before writing through.
func (d *planRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	if err := d.cache.Del(ctx, planKey(plan.Code)); err != nil {
		d.log.Warn().Err(err).Str("plan", string(plan.Code)).Msg("plan cache invalidate failed")
	}
	if err := d.cache.Del(ctx, plansAllKey); err != nil {
		d.log.Warn().Err(err).Msg("plan list cache invalidate failed")
	}
	return d.inner.Save(ctx, tx, plan)
}

func (d *planRepoCacheDecorator) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	val, err := d.cache.Get(ctx, plansAllKey)
	if err == nil {
		var plans []*model.Plan
		if json.Unmarshal([]byte(val), &plans) == nil {
			metrics.IncCacheRequest("plan_list", "hit")
			return plans, nil
		}
	}

	metrics.IncCacheRequest("plan_list", "miss")
	plans, err := d.inner.ListAll(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(plans) > 0 {
		if b, err := json.Marshal(plans); err == nil {
			_ = d.cache.Set(ctx, plansAllKey, b, d.ttl)
		}
	}
	return plans, nil
}
