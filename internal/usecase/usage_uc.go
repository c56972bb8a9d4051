package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"launchkit-core/internal/domain"
	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/domain/ports/repository"
	"launchkit-core/internal/domain/ports/usecase"
	"launchkit-core/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ UsageUseCase = (*usageUC)(nil)

type UsageUseCase interface {
	usecase.UsageLedger
	MonthlyUsage(ctx context.Context, orgID, month string) (*model.MonthlyUsage, error)
}

type usageUC struct {
	orgs  repository.OrgRepository
	plans repository.PlanRepository
	usage repository.UsageRepository

	now func() time.Time
	log *zerolog.Logger
}

func NewUsageUseCase(orgs repository.OrgRepository, plans repository.PlanRepository, usage repository.UsageRepository, logger *zerolog.Logger) *usageUC {
	l := logger.With().Str("component", "UsageUseCase").Logger()
	return &usageUC{orgs: orgs, plans: plans, usage: usage, now: time.Now, log: &l}
}

// RecordUsage adds delta to the current hour bucket. Failures are logged and
// counted, never returned.
func (u *usageUC) RecordUsage(ctx context.Context, orgID string, delta model.UsageDelta) {
	u.RecordUsageTx(ctx, repository.NoTX, orgID, delta)
}

func (u *usageUC) RecordUsageTx(ctx context.Context, tx repository.Tx, orgID string, delta model.UsageDelta) {
	if delta.IsZero() {
		return
	}
	if err := u.usage.Increment(ctx, tx, orgID, u.now(), delta); err != nil {
		metrics.IncUsageRecordError()
		u.log.Error().Err(err).
			Str("org_id", orgID).
			Int64("jobs", delta.Jobs).
			Int64("tokens", delta.Tokens).
			Int64("cost_cents", delta.CostCents).
			Msg("failed to record usage")
	}
}

func (u *usageUC) PlanForOrg(ctx context.Context, orgID string) (*model.Plan, error) {
	org, err := u.orgs.FindByID(ctx, repository.NoTX, orgID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrgNotFound, orgID)
	}
	if err != nil {
		return nil, err
	}
	plan, err := u.plans.FindByCode(ctx, repository.NoTX, org.PlanTier)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrPlanNotFound, org.PlanTier)
	}
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// CheckLimit compares this calendar month's buckets against the org's plan.
func (u *usageUC) CheckLimit(ctx context.Context, orgID string) (*model.LimitCheck, error) {
	plan, err := u.PlanForOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	check := &model.LimitCheck{
		Allowed: true,
		Plan:    plan.Code,
		Limit:   model.UsageLimit{Jobs: plan.MonthlyJobLimit, Tokens: plan.MonthlyTokenLimit},
	}
	if plan.IsUnlimited() {
		return check, nil
	}

	from, to := model.MonthRange(u.now())
	totals, err := u.usage.Sum(ctx, repository.NoTX, orgID, from, to)
	if err != nil {
		return nil, fmt.Errorf("sum usage: %w", err)
	}
	check.Current = totals

	switch {
	case plan.MonthlyJobLimit != model.Unlimited && totals.Jobs >= plan.MonthlyJobLimit:
		check.Allowed = false
		check.Reason = fmt.Sprintf("monthly job limit reached (%d/%d) on the %s plan", totals.Jobs, plan.MonthlyJobLimit, plan.Code)
	case plan.MonthlyTokenLimit != model.Unlimited && totals.Tokens >= plan.MonthlyTokenLimit:
		check.Allowed = false
		check.Reason = fmt.Sprintf("monthly token limit reached (%d/%d) on the %s plan", totals.Tokens, plan.MonthlyTokenLimit, plan.Code)
	}
	return check, nil
}

// MonthlyUsage returns totals and the hourly breakdown for "YYYY-MM" (empty = current month).
func (u *usageUC) MonthlyUsage(ctx context.Context, orgID, month string) (*model.MonthlyUsage, error) {
	from, to, label, err := model.ParseMonth(month, u.now())
	if err != nil {
		return nil, err
	}
	rows, err := u.usage.ListRange(ctx, repository.NoTX, orgID, from, to)
	if err != nil {
		return nil, err
	}
	out := &model.MonthlyUsage{Month: label, Breakdown: rows}
	if out.Breakdown == nil {
		out.Breakdown = []*model.UsageRecord{}
	}
	for _, r := range rows {
		out.UsageTotals.Add(r)
	}
	return out, nil
}
