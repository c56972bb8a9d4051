package usecase

import (
	"context"
	"errors"
	"fmt"

	"launchkit-core/internal/domain"
	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// PlanUseCase manages the plan table and the orgs that reference it.
type PlanUseCase struct {
	plans repository.PlanRepository
	orgs  repository.OrgRepository
	log   *zerolog.Logger
}

// NewPlanUseCase constructs a PlanUseCase.
func NewPlanUseCase(plans repository.PlanRepository, orgs repository.OrgRepository, logger *zerolog.Logger) *PlanUseCase {
	l := logger.With().Str("component", "PlanUseCase").Logger()
	return &PlanUseCase{plans: plans, orgs: orgs, log: &l}
}

// EnsureDefaults inserts any default plan missing from the table. Existing
// rows are left untouched so operators can tune ceilings.
func (uc *PlanUseCase) EnsureDefaults(ctx context.Context) (int, error) {
	created := 0
	for _, p := range model.DefaultPlans() {
		_, err := uc.plans.FindByCode(ctx, repository.NoTX, p.Code)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return created, err
		}
		if err := uc.plans.Save(ctx, repository.NoTX, p); err != nil {
			return created, fmt.Errorf("seed plan %s: %w", p.Code, err)
		}
		created++
	}
	if created > 0 {
		uc.log.Info().Int("created", created).Msg("default plans seeded")
	}
	return created, nil
}

// Save creates or replaces a plan.
func (uc *PlanUseCase) Save(ctx context.Context, plan *model.Plan) error {
	if _, err := model.NewPlan(plan.Code, plan.Name, plan.MonthlyJobLimit, plan.MonthlyTokenLimit, plan.RatePer1kTokensCents); err != nil {
		return err
	}
	return uc.plans.Save(ctx, repository.NoTX, plan)
}

// List returns all plans.
func (uc *PlanUseCase) List(ctx context.Context) ([]*model.Plan, error) {
	return uc.plans.ListAll(ctx, repository.NoTX)
}

// CreateOrg registers an org on tier. The tier must exist in the plan table.
func (uc *PlanUseCase) CreateOrg(ctx context.Context, id, name string, tier model.PlanTier) (*model.Org, error) {
	org, err := model.NewOrg(id, name, tier)
	if err != nil {
		return nil, err
	}
	if err := uc.requirePlan(ctx, org.PlanTier); err != nil {
		return nil, err
	}
	if _, err := uc.orgs.FindByID(ctx, repository.NoTX, org.ID); err == nil {
		return nil, fmt.Errorf("%w: org %s", domain.ErrAlreadyExists, org.ID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if err := uc.orgs.Save(ctx, repository.NoTX, org); err != nil {
		return nil, err
	}
	return org, nil
}

func (uc *PlanUseCase) GetOrg(ctx context.Context, id string) (*model.Org, error) {
	org, err := uc.orgs.FindByID(ctx, repository.NoTX, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrgNotFound, id)
	}
	return org, err
}

func (uc *PlanUseCase) ListOrgs(ctx context.Context) ([]*model.Org, error) {
	return uc.orgs.List(ctx, repository.NoTX)
}

// ChangeOrgPlan moves an org to another tier; the next admission check uses it.
func (uc *PlanUseCase) ChangeOrgPlan(ctx context.Context, id string, tier model.PlanTier) (*model.Org, error) {
	org, err := uc.GetOrg(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := uc.requirePlan(ctx, tier); err != nil {
		return nil, err
	}
	org.PlanTier = tier
	if err := uc.orgs.Save(ctx, repository.NoTX, org); err != nil {
		return nil, err
	}
	uc.log.Info().Str("org_id", id).Str("plan", string(tier)).Msg("org plan changed")
	return org, nil
}

func (uc *PlanUseCase) requirePlan(ctx context.Context, tier model.PlanTier) error {
	_, err := uc.plans.FindByCode(ctx, repository.NoTX, tier)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrPlanNotFound, tier)
	}
	return err
}
