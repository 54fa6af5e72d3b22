package fraud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pkgredis "github.com/wekezahq/nexus/pkg/redis"
)

func newCachedStore(t *testing.T) (*CachedHistoryStore, *MemoryStore, redismock.ClientMock) {
	t.Helper()

	db, mock := redismock.NewClientMock()
	store := NewMemoryStore(10_000)
	cached := NewCachedHistoryStore(store, &pkgredis.Client{Client: db}, 30*time.Second)
	return cached, store, mock
}

func TestCachedHistoryStore_CountServedFromCache(t *testing.T) {
	cached, _, mock := newCachedStore(t)
	ctx := context.Background()
	userID := uuid.New()

	key := velocityKey("count", userID, velocityWindow)
	mock.ExpectGet(key).SetVal("7")

	count, err := cached.CountRecentTransactions(ctx, userID, velocityWindow)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedHistoryStore_CountMissFallsThroughAndCaches(t *testing.T) {
	cached, store, mock := newCachedStore(t)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 2; i++ {
		require.NoError(t, store.RecordTransaction(ctx, &TransactionRecord{
			ID:        uuid.New(),
			UserID:    userID,
			Amount:    500,
			CreatedAt: time.Now(),
		}))
	}

	key := velocityKey("count", userID, velocityWindow)
	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, "2", 30*time.Second).SetVal("OK")

	count, err := cached.CountRecentTransactions(ctx, userID, velocityWindow)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedHistoryStore_CacheFailureDegradesGracefully(t *testing.T) {
	cached, store, mock := newCachedStore(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, store.RecordTransaction(ctx, &TransactionRecord{
		ID:        uuid.New(),
		UserID:    userID,
		Amount:    500,
		CreatedAt: time.Now(),
	}))

	key := velocityKey("count", userID, velocityWindow)
	mock.ExpectGet(key).SetErr(errors.New("connection refused"))
	mock.ExpectSet(key, "1", 30*time.Second).SetErr(errors.New("connection refused"))

	// An unavailable cache must never fail the read.
	count, err := cached.CountRecentTransactions(ctx, userID, velocityWindow)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCachedHistoryStore_SumServedFromCache(t *testing.T) {
	cached, _, mock := newCachedStore(t)
	ctx := context.Background()
	userID := uuid.New()

	key := velocityKey("sum", userID, velocityWindow)
	mock.ExpectGet(key).SetVal("1500")

	sum, err := cached.SumRecentAmount(ctx, userID, velocityWindow)
	require.NoError(t, err)
	assert.Equal(t, 1_500.0, sum)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedHistoryStore_RecordInvalidatesVelocityKeys(t *testing.T) {
	cached, store, mock := newCachedStore(t)
	ctx := context.Background()
	userID := uuid.New()

	mock.ExpectDel(
		velocityKey("count", userID, velocityWindow),
		velocityKey("sum", userID, velocityWindow),
		velocityKey("count", userID, dailyWindow),
		velocityKey("sum", userID, dailyWindow),
	).SetVal(4)

	err := cached.RecordTransaction(ctx, &TransactionRecord{
		ID:        uuid.New(),
		UserID:    userID,
		Amount:    500,
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	// The append reached the underlying store.
	count, err := store.CountRecentTransactions(ctx, userID, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
