package clients

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
)

func TestRedisIdempotencyStore_Reserve(t *testing.T) {
	ttl := time.Hour
	pendingTTL := 30 * time.Second
	key := idempotencyPrefix + "1:abc"

	t.Run("claims a fresh key", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		logger, _ := test.NewNullLogger()
		store := NewRedisIdempotencyStore(db, ttl, pendingTTL, logger)
		mock.ExpectSetNX(key, pendingMarker, pendingTTL).SetVal(true)

		id, claimed, err := store.Reserve(context.Background(), "1:abc")

		require.NoError(t, err)
		assert.True(t, claimed)
		assert.Zero(t, id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns the recorded order", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		logger, _ := test.NewNullLogger()
		store := NewRedisIdempotencyStore(db, ttl, pendingTTL, logger)
		mock.ExpectSetNX(key, pendingMarker, pendingTTL).SetVal(false)
		mock.ExpectGet(key).SetVal("42")

		id, claimed, err := store.Reserve(context.Background(), "1:abc")

		require.NoError(t, err)
		assert.False(t, claimed)
		assert.Equal(t, int64(42), id)
	})

	t.Run("pending key is a conflict", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		logger, _ := test.NewNullLogger()
		store := NewRedisIdempotencyStore(db, ttl, pendingTTL, logger)
		mock.ExpectSetNX(key, pendingMarker, pendingTTL).SetVal(false)
		mock.ExpectGet(key).SetVal(pendingMarker)

		_, _, err := store.Reserve(context.Background(), "1:abc")

		require.Error(t, err)
		assert.True(t, domain.IsConflict(err))
		assert.ErrorIs(t, err, ErrIdempotencyInFlight)
	})

	t.Run("redis failure is unexpected", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		logger, _ := test.NewNullLogger()
		store := NewRedisIdempotencyStore(db, ttl, pendingTTL, logger)
		mock.ExpectSetNX(key, pendingMarker, pendingTTL).SetErr(errors.New("connection refused"))

		_, _, err := store.Reserve(context.Background(), "1:abc")

		require.Error(t, err)
		assert.Equal(t, domain.KindUnexpected, domain.KindOf(err))
	})
}

func TestRedisIdempotencyStore_CompleteAndRelease(t *testing.T) {
	db, mock := redismock.NewClientMock()
	logger, _ := test.NewNullLogger()
	store := NewRedisIdempotencyStore(db, time.Minute, 10*time.Second, logger)

	mock.ExpectSet(idempotencyPrefix+"k", "7", time.Minute).SetVal("OK")
	mock.ExpectDel(idempotencyPrefix + "k").SetVal(1)

	require.NoError(t, store.Complete(context.Background(), "k", 7))
	require.NoError(t, store.Release(context.Background(), "k"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryIdempotencyStore(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute, 10*time.Second)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_, claimed, err := store.Reserve(ctx, "k")
	require.NoError(t, err)
	require.True(t, claimed)

	_, _, err = store.Reserve(ctx, "k")
	assert.True(t, domain.IsConflict(err))

	require.NoError(t, store.Complete(ctx, "k", 9))
	id, claimed, err := store.Reserve(ctx, "k")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, int64(9), id)

	now = now.Add(2 * time.Minute)
	_, claimed, err = store.Reserve(ctx, "k")
	require.NoError(t, err)
	assert.True(t, claimed)

	require.NoError(t, store.Release(ctx, "k"))
	_, claimed, _ = store.Reserve(ctx, "k")
	assert.True(t, claimed)
}

func TestMemoryIdempotencyStore_UncompletedKeyExpiresAfterPendingTTL(t *testing.T) {
	store := NewMemoryIdempotencyStore(24*time.Hour, 10*time.Second)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_, claimed, err := store.Reserve(ctx, "stuck")
	require.NoError(t, err)
	require.True(t, claimed)

	now = now.Add(5 * time.Second)
	_, _, err = store.Reserve(ctx, "stuck")
	assert.ErrorIs(t, err, ErrIdempotencyInFlight)

	now = now.Add(6 * time.Second)
	_, claimed, err = store.Reserve(ctx, "stuck")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestMemoryIdempotencyStore_SweepsExpiredEntries(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute, 10*time.Second)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		_, _, err := store.Reserve(ctx, key)
		require.NoError(t, err)
	}
	require.NoError(t, store.Complete(ctx, "c", 3))
	require.Len(t, store.entries, 3)

	now = now.Add(11 * time.Second)
	_, _, err := store.Reserve(ctx, "d")
	require.NoError(t, err)

	assert.Len(t, store.entries, 2)
	assert.Contains(t, store.entries, "c")
	assert.Contains(t, store.entries, "d")
}
