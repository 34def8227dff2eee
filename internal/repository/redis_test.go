package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return s, client
}

func sampleSlots() []models.Slot {
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	return []models.Slot{
		{Start: start, End: start.Add(30 * time.Minute), StaffID: "staff-1", StaffName: "Alex Doe"},
		{Start: start.Add(15 * time.Minute), End: start.Add(45 * time.Minute), StaffID: "staff-1", StaffName: "Alex Doe"},
	}
}

func TestRedisSlotCache(t *testing.T) {
	s, client := newRedis(t)
	cache := NewRedisSlotCache(client, time.Minute)
	ctx := context.Background()

	t.Run("Miss", func(t *testing.T) {
		got, ok, err := cache.Get(ctx, "slots:missing")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, got)
	})

	t.Run("SetAndGet", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "slots:a", sampleSlots()))

		got, ok, err := cache.Get(ctx, "slots:a")
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, got, 2)
		assert.True(t, sampleSlots()[1].Start.Equal(got[1].Start))
		assert.Equal(t, "Alex Doe", got[0].StaffName)
	})

	t.Run("EmptyListIsAHit", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "slots:empty", []models.Slot{}))
		got, ok, err := cache.Get(ctx, "slots:empty")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, got)
	})

	t.Run("Expiry", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "slots:ttl", sampleSlots()))
		s.FastForward(61 * time.Second)
		_, ok, err := cache.Get(ctx, "slots:ttl")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ServerDown", func(t *testing.T) {
		s.SetError("LOADING")
		defer s.SetError("")
		_, _, err := cache.Get(ctx, "slots:a")
		assert.Error(t, err)
	})
}

func TestRedisLocker(t *testing.T) {
	s, client := newRedis(t)
	locker := NewRedisLocker(client)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "staff-1:2025-06-02", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, s.Exists("lock:staff-1:2025-06-02"))

	_, err = locker.Acquire(ctx, "staff-1:2025-06-02", 10*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	other, err := locker.Acquire(ctx, "staff-2:2025-06-02", 10*time.Second)
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	assert.False(t, s.Exists("lock:staff-1:2025-06-02"))

	t.Run("ExpiredLeaseNotStolenBack", func(t *testing.T) {
		first, err := locker.Acquire(ctx, "k", time.Second)
		require.NoError(t, err)
		s.FastForward(2 * time.Second)

		second, err := locker.Acquire(ctx, "k", 10*time.Second)
		require.NoError(t, err)

		require.NoError(t, first(ctx))
		assert.True(t, s.Exists("lock:k"), "stale release must not drop the new owner's lock")
		require.NoError(t, second(ctx))
		assert.False(t, s.Exists("lock:k"))
	})
}

func TestNilClient(t *testing.T) {
	ctx := context.Background()
	_, _, err := NewRedisSlotCache(nil, time.Minute).Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, NewRedisSlotCache(nil, time.Minute).Set(ctx, "k", nil))
	_, err = NewRedisLocker(nil).Acquire(ctx, "k", time.Second)
	assert.Error(t, err)
	assert.NoError(t, Close(nil))
}
