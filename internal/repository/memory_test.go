package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotbook/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemorySlotCache(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cache := NewMemorySlotCache(60*time.Second, clock.Now)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", sampleSlots()))

	got, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got, 2)

	got[0].StaffID = "mutated"
	again, _, _ := cache.Get(ctx, "k")
	assert.Equal(t, "staff-1", again[0].StaffID, "callers get a copy")

	clock.Advance(59 * time.Second)
	_, ok, _ = cache.Get(ctx, "k")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok, _ = cache.Get(ctx, "k")
	assert.False(t, ok, "entry expires exactly at ttl")

	require.NoError(t, cache.Set(ctx, "a", nil))
	require.NoError(t, cache.Set(ctx, "b", nil))
	clock.Advance(time.Minute)
	assert.Equal(t, 2, cache.Purge())
}

func TestMemoryLocker(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	locker := NewMemoryLocker(clock.Now)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "k", 10*time.Second)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "k", 10*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	require.NoError(t, release(ctx))
	second, err := locker.Acquire(ctx, "k", 10*time.Second)
	require.NoError(t, err)

	clock.Advance(11 * time.Second)
	third, err := locker.Acquire(ctx, "k", 10*time.Second)
	require.NoError(t, err, "expired lease can be taken over")

	require.NoError(t, second(ctx))
	_, err = locker.Acquire(ctx, "k", 10*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld, "stale release keeps the new owner's lease")
	require.NoError(t, third(ctx))
}
