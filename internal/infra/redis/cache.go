package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/daehokim/teambudget/pkg/logger"
)

const (
	// DefaultTTL bounds staleness if an invalidation is ever missed.
	DefaultTTL = 10 * time.Minute

	// KeyPrefix is the prefix for monthly budget cache keys
	KeyPrefix = "budget:"
)

// BudgetCache caches computed monthly budgets in Redis. Entries are keyed by
// month and invalidated whenever an event lands in that month or any earlier
// one, since carry-over flows forward.
type BudgetCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewBudgetCache creates a new monthly budget cache
func NewBudgetCache(client *redis.Client, log *logger.Logger) *BudgetCache {
	return &BudgetCache{
		client: client,
		ttl:    DefaultTTL,
		logger: log.WithField("component", "budget_cache"),
	}
}

// NewBudgetCacheWithTTL creates a new monthly budget cache with custom TTL
func NewBudgetCacheWithTTL(client *redis.Client, ttl time.Duration, log *logger.Logger) *BudgetCache {
	return &BudgetCache{
		client: client,
		ttl:    ttl,
		logger: log.WithField("component", "budget_cache"),
	}
}

func budgetKey(year, month int) string {
	return fmt.Sprintf("%s%04d-%02d", KeyPrefix, year, month)
}

// GetBudget retrieves a cached monthly budget document.
func (c *BudgetCache) GetBudget(ctx context.Context, year, month int) ([]byte, bool, error) {
	key := budgetKey(year, month)

	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.logger.Debug("cache miss", "key", key)
		return nil, false, nil
	}
	if err != nil {
		c.logger.Error("cache error", "operation", "get", "key", key, "error", err)
		return nil, false, fmt.Errorf("failed to get cached budget: %w", err)
	}

	c.logger.Debug("cache hit", "key", key)
	return val, true, nil
}

// SetBudget stores a computed monthly budget document.
func (c *BudgetCache) SetBudget(ctx context.Context, year, month int, data []byte) error {
	key := budgetKey(year, month)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Error("cache error", "operation", "set", "key", key, "error", err)
		return fmt.Errorf("failed to set cached budget: %w", err)
	}
	return nil
}

// InvalidateFrom removes every cached month at or after (year, month).
// Carry-over makes all later months stale when an earlier month changes.
func (c *BudgetCache) InvalidateFrom(ctx context.Context, year, month int) error {
	floor := fmt.Sprintf("%04d-%02d", year, month)
	iter := c.client.Scan(ctx, 0, KeyPrefix+"*", 0).Iterator()

	pipe := c.client.Pipeline()
	count := 0
	for iter.Next(ctx) {
		key := iter.Val()
		if key[len(KeyPrefix):] < floor {
			continue
		}
		pipe.Del(ctx, key)
		count++
		if count >= 100 {
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("failed to invalidate budgets: %w", err)
			}
			pipe = c.client.Pipeline()
			count = 0
		}
	}

	if count > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to invalidate budgets: %w", err)
		}
	}
	return iter.Err()
}
