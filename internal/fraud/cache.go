package fraud

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/wekezahq/nexus/pkg/logger"
	"github.com/wekezahq/nexus/pkg/redis"
	"go.uber.org/zap"
)

// CachedHistoryStore wraps a HistoryStore with a short-TTL Redis cache for
// the hot velocity reads. Cache failures fall through to the underlying
// store: a cold or unavailable cache degrades latency, never correctness.
type CachedHistoryStore struct {
	HistoryStore
	cache *redis.Client
	ttl   time.Duration
}

var _ HistoryStore = (*CachedHistoryStore)(nil)

// NewCachedHistoryStore wraps the store with a Redis velocity cache.
func NewCachedHistoryStore(store HistoryStore, cache *redis.Client, ttl time.Duration) *CachedHistoryStore {
	return &CachedHistoryStore{HistoryStore: store, cache: cache, ttl: ttl}
}

// CountRecentTransactions serves the count from cache when fresh.
func (c *CachedHistoryStore) CountRecentTransactions(ctx context.Context, userID uuid.UUID, window time.Duration) (int, error) {
	key := velocityKey("count", userID, window)

	if raw, err := c.cache.GetString(ctx, key); err == nil {
		if count, err := strconv.Atoi(raw); err == nil {
			return count, nil
		}
	}

	count, err := c.HistoryStore.CountRecentTransactions(ctx, userID, window)
	if err != nil {
		return 0, err
	}

	if err := c.cache.SetWithExpiration(ctx, key, strconv.Itoa(count), c.ttl); err != nil {
		logger.WithContext(ctx).Warn("Failed to cache velocity count", zap.Error(err))
	}
	return count, nil
}

// SumRecentAmount serves the amount sum from cache when fresh.
func (c *CachedHistoryStore) SumRecentAmount(ctx context.Context, userID uuid.UUID, window time.Duration) (float64, error) {
	key := velocityKey("sum", userID, window)

	if raw, err := c.cache.GetString(ctx, key); err == nil {
		if sum, err := strconv.ParseFloat(raw, 64); err == nil {
			return sum, nil
		}
	}

	sum, err := c.HistoryStore.SumRecentAmount(ctx, userID, window)
	if err != nil {
		return 0, err
	}

	if err := c.cache.SetWithExpiration(ctx, key, strconv.FormatFloat(sum, 'f', -1, 64), c.ttl); err != nil {
		logger.WithContext(ctx).Warn("Failed to cache velocity sum", zap.Error(err))
	}
	return sum, nil
}

// RecordTransaction appends to the underlying store and invalidates the
// user's cached velocity entries so the next read reflects the append.
func (c *CachedHistoryStore) RecordTransaction(ctx context.Context, record *TransactionRecord) error {
	if err := c.HistoryStore.RecordTransaction(ctx, record); err != nil {
		return err
	}

	keys := []string{
		velocityKey("count", record.UserID, velocityWindow),
		velocityKey("sum", record.UserID, velocityWindow),
		velocityKey("count", record.UserID, dailyWindow),
		velocityKey("sum", record.UserID, dailyWindow),
	}
	if err := c.cache.Delete(ctx, keys...); err != nil {
		logger.WithContext(ctx).Warn("Failed to invalidate velocity cache", zap.Error(err))
	}
	return nil
}

func velocityKey(kind string, userID uuid.UUID, window time.Duration) string {
	return fmt.Sprintf("nexus:velocity:%s:%s:%d", kind, userID, int(window.Seconds()))
}
