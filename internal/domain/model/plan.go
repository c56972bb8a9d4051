package model

import (
	"math"
	"time"

	"launchkit-core/internal/domain"
)

type PlanTier string

const (
	PlanFree       PlanTier = "FREE"
	PlanPro        PlanTier = "PRO"
	PlanEnterprise PlanTier = "ENTERPRISE"
)

// Unlimited marks a ceiling that never blocks admission.
const Unlimited int64 = -1

// Plan is the authoritative per-tier ceiling and rate table entry.
type Plan struct {
	Code                 PlanTier  `json:"code"`
	Name                 string    `json:"name"`
	MonthlyJobLimit      int64     `json:"monthlyJobLimit"`
	MonthlyTokenLimit    int64     `json:"monthlyTokenLimit"`
	RatePer1kTokensCents float64   `json:"ratePer1kTokensCents"`
	CreatedAt            time.Time `json:"createdAt"`
}

func (p *Plan) IsZero() bool { return p == nil || p.Code == "" }

// IsUnlimited reports whether neither ceiling can ever block.
func (p *Plan) IsUnlimited() bool {
	return p.MonthlyJobLimit == Unlimited && p.MonthlyTokenLimit == Unlimited
}

// CostCents prices tokens at the plan's rate.
func (p *Plan) CostCents(tokens int64) int64 {
	return CostCents(tokens, p.RatePer1kTokensCents)
}

// NewPlan validates and constructs a plan.
func NewPlan(code PlanTier, name string, jobLimit, tokenLimit int64, ratePer1k float64) (*Plan, error) {
	if code == "" || name == "" || jobLimit < Unlimited || tokenLimit < Unlimited || ratePer1k < 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Plan{
		Code:                 code,
		Name:                 name,
		MonthlyJobLimit:      jobLimit,
		MonthlyTokenLimit:    tokenLimit,
		RatePer1kTokensCents: ratePer1k,
		CreatedAt:            time.Now().UTC(),
	}, nil
}

// DefaultPlans is the seed for the plans table.
func DefaultPlans() []*Plan {
	now := time.Now().UTC()
	return []*Plan{
		{Code: PlanFree, Name: "Free", MonthlyJobLimit: 1000, MonthlyTokenLimit: 50_000, RatePer1kTokensCents: 0, CreatedAt: now},
		{Code: PlanPro, Name: "Pro", MonthlyJobLimit: 100_000, MonthlyTokenLimit: 5_000_000, RatePer1kTokensCents: 2, CreatedAt: now},
		{Code: PlanEnterprise, Name: "Enterprise", MonthlyJobLimit: Unlimited, MonthlyTokenLimit: Unlimited, RatePer1kTokensCents: 1, CreatedAt: now},
	}
}

// CostCents returns ceil(tokens/1000 * ratePer1k). Partial cents always round up.
func CostCents(tokens int64, ratePer1k float64) int64 {
	if tokens <= 0 || ratePer1k <= 0 {
		return 0
	}
	// Work in millicents so common rates stay exact before rounding.
	milli := math.Round(ratePer1k * 1000)
	if milli == ratePer1k*1000 {
		num := tokens * int64(milli)
		return (num + 999_999) / 1_000_000
	}
	return int64(math.Ceil(float64(tokens) / 1000 * ratePer1k))
}
