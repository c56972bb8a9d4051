package model

import (
	"fmt"
	"time"

	"launchkit-core/internal/domain"
)

// UsageWindow is the width of one usage bucket.
const UsageWindow = time.Hour

// UsageDelta is an increment applied to the current bucket.
type UsageDelta struct {
	Jobs      int64
	Tokens    int64
	CostCents int64
}

func (d UsageDelta) IsZero() bool { return d.Jobs == 0 && d.Tokens == 0 && d.CostCents == 0 }

// UsageRecord is one hourly bucket. (OrgID, WindowStart) is unique.
type UsageRecord struct {
	OrgID       string    `json:"orgId"`
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`
	Jobs        int64     `json:"jobs"`
	Tokens      int64     `json:"tokens"`
	CostCents   int64     `json:"costCents"`
}

// UsageTotals is the sum of a set of buckets.
type UsageTotals struct {
	Jobs      int64 `json:"jobs"`
	Tokens    int64 `json:"tokens"`
	CostCents int64 `json:"costCents"`
}

func (t *UsageTotals) Add(r *UsageRecord) {
	t.Jobs += r.Jobs
	t.Tokens += r.Tokens
	t.CostCents += r.CostCents
}

// UsageLimit holds the plan ceilings; Unlimited (-1) never blocks.
type UsageLimit struct {
	Jobs   int64 `json:"jobs"`
	Tokens int64 `json:"tokens"`
}

// LimitCheck is the admission verdict for an org.
type LimitCheck struct {
	Allowed bool        `json:"allowed"`
	Reason  string      `json:"reason,omitempty"`
	Plan    PlanTier    `json:"plan"`
	Current UsageTotals `json:"current"`
	Limit   UsageLimit  `json:"limit"`
}

// MonthlyUsage is a month's totals plus its hourly breakdown, oldest first.
type MonthlyUsage struct {
	Month string `json:"month"`
	UsageTotals
	Breakdown []*UsageRecord `json:"breakdown"`
}

// HourWindow returns the UTC hour bucket containing t.
func HourWindow(t time.Time) (start, end time.Time) {
	start = t.UTC().Truncate(UsageWindow)
	return start, start.Add(UsageWindow)
}

// MonthRange returns [first of month, first of next month) in UTC.
func MonthRange(t time.Time) (start, end time.Time) {
	t = t.UTC()
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// ParseMonth parses "YYYY-MM"; an empty string means the current month.
func ParseMonth(month string, now time.Time) (time.Time, time.Time, string, error) {
	if month == "" {
		start, end := MonthRange(now)
		return start, end, start.Format("2006-01"), nil
	}
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, "", fmt.Errorf("%w: month %q must be YYYY-MM", domain.ErrInvalidArgument, month)
	}
	start, end := MonthRange(t)
	return start, end, month, nil
}
