package repository

import (
	"context"
	"time"

	"launchkit-core/internal/domain/model"
)

// UsageRepository stores hourly usage buckets.
type UsageRepository interface {
	// Increment atomically creates the bucket containing at if absent and adds delta.
	Increment(ctx context.Context, tx Tx, orgID string, at time.Time, delta model.UsageDelta) error
	// ListRange returns buckets with from <= windowStart < to, ascending.
	ListRange(ctx context.Context, tx Tx, orgID string, from, to time.Time) ([]*model.UsageRecord, error)
	// Sum totals buckets with from <= windowStart < to.
	Sum(ctx context.Context, tx Tx, orgID string, from, to time.Time) (model.UsageTotals, error)
}
