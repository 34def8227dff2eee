package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

const recoveryInterval = time.Minute

// breaker remembers that the primary failed and when to probe it again.
type breaker struct {
	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func (b *breaker) trip() {
	b.mu.Lock()
	b.lastCheck = time.Now()
	b.mu.Unlock()
	b.isDown.Store(true)
}

// usePrimary reports whether the next call should go to the primary.
func (b *breaker) usePrimary() bool {
	if !b.isDown.Load() {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if time.Since(b.lastCheck) > recoveryInterval {
		b.lastCheck = time.Now()
		return true
	}
	return false
}

func (b *breaker) recover() {
	b.isDown.Store(false)
}

// FailoverSlotCache reads and writes the primary cache until it fails, then
// serves from the fallback and retries the primary once a minute.
type FailoverSlotCache struct {
	primary  domain.SlotCache
	fallback domain.SlotCache
	logger   *zerolog.Logger
	breaker  breaker
}

func NewFailoverSlotCache(primary, fallback domain.SlotCache, logger *zerolog.Logger) *FailoverSlotCache {
	return &FailoverSlotCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverSlotCache) Get(ctx context.Context, key string) ([]models.Slot, bool, error) {
	if r.breaker.usePrimary() {
		list, ok, err := r.primary.Get(ctx, key)
		if err == nil {
			r.breaker.recover()
			return list, ok, nil
		}
		r.logger.Error().Err(err).Msg("Primary slot cache failed, falling back to memory")
		r.breaker.trip()
	}
	return r.fallback.Get(ctx, key)
}

func (r *FailoverSlotCache) Set(ctx context.Context, key string, list []models.Slot) error {
	if r.breaker.usePrimary() {
		err := r.primary.Set(ctx, key, list)
		if err == nil {
			r.breaker.recover()
			return nil
		}
		r.logger.Error().Err(err).Msg("Primary slot cache failed, falling back to memory")
		r.breaker.trip()
	}
	return r.fallback.Set(ctx, key, list)
}

// FailoverLocker takes locks in Redis and falls back to the in-process locker
// while Redis is unreachable. A held lock is not a failure.
type FailoverLocker struct {
	primary  domain.Locker
	fallback domain.Locker
	logger   *zerolog.Logger
	breaker  breaker
}

func NewFailoverLocker(primary, fallback domain.Locker, logger *zerolog.Logger) *FailoverLocker {
	return &FailoverLocker{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if r.breaker.usePrimary() {
		release, err := r.primary.Acquire(ctx, key, ttl)
		if err == nil || errors.Is(err, domain.ErrLockHeld) {
			r.breaker.recover()
			return release, err
		}
		r.logger.Error().Err(err).Msg("Primary locker failed, falling back to memory")
		r.breaker.trip()
	}
	return r.fallback.Acquire(ctx, key, ttl)
}
