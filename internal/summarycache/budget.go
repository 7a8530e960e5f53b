package summarycache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BudgetCounter tracks per-tenant summarization spend at hourly and
// daily granularity, refusing summarization once the configured budget
// is exhausted, per spec §4.4.
type BudgetCounter struct {
	redis      *redis.Client
	hourlyCap  int
	dailyCap   int
}

// NewBudgetCounter constructs a BudgetCounter with the given caps.
func NewBudgetCounter(rdb *redis.Client, hourlyCap, dailyCap int) *BudgetCounter {
	return &BudgetCounter{redis: rdb, hourlyCap: hourlyCap, dailyCap: dailyCap}
}

func budgetKey(tenantID, period string) string {
	return fmt.Sprintf("budget:summarization:%s:%s", tenantID, period)
}

// Allow increments the tenant's hourly and daily counters and reports
// whether the summarization may proceed. Both caps must have headroom.
func (b *BudgetCounter) Allow(ctx context.Context, tenantID string) (bool, error) {
	now := time.Now().UTC()
	hourPeriod := now.Format("2006010215")
	dayPeriod := now.Format("20060102")

	hourKey := budgetKey(tenantID, hourPeriod)
	dayKey := budgetKey(tenantID, dayPeriod)

	hourCount, err := b.redis.Incr(ctx, hourKey).Result()
	if err != nil {
		return false, fmt.Errorf("incrementing hourly budget: %w", err)
	}
	if hourCount == 1 {
		_ = b.redis.Expire(ctx, hourKey, time.Hour).Err()
	}

	dayCount, err := b.redis.Incr(ctx, dayKey).Result()
	if err != nil {
		return false, fmt.Errorf("incrementing daily budget: %w", err)
	}
	if dayCount == 1 {
		_ = b.redis.Expire(ctx, dayKey, 24*time.Hour).Err()
	}

	if int(hourCount) > b.hourlyCap || int(dayCount) > b.dailyCap {
		return false, nil
	}
	return true, nil
}
