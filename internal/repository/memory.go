package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

type slotEntry struct {
	slots     []models.Slot
	expiresAt time.Time
}

// MemorySlotCache is a process-local slot cache with per-entry expiry.
type MemorySlotCache struct {
	entries sync.Map
	ttl     time.Duration
	now     func() time.Time
}

func NewMemorySlotCache(ttl time.Duration, now func() time.Time) *MemorySlotCache {
	if now == nil {
		now = time.Now
	}
	return &MemorySlotCache{
		ttl: ttl,
		now: now,
	}
}

func (r *MemorySlotCache) Get(_ context.Context, key string) ([]models.Slot, bool, error) {
	val, ok := r.entries.Load(key)
	if !ok {
		return nil, false, nil
	}
	entry := val.(*slotEntry)
	if !r.now().Before(entry.expiresAt) {
		r.entries.CompareAndDelete(key, val)
		return nil, false, nil
	}
	return append([]models.Slot(nil), entry.slots...), true, nil
}

func (r *MemorySlotCache) Set(_ context.Context, key string, list []models.Slot) error {
	r.entries.Store(key, &slotEntry{
		slots:     append([]models.Slot(nil), list...),
		expiresAt: r.now().Add(r.ttl),
	})
	return nil
}

// Purge drops expired entries and reports how many went.
func (r *MemorySlotCache) Purge() int {
	now := r.now()
	removed := 0
	r.entries.Range(func(key, val any) bool {
		if !now.Before(val.(*slotEntry).expiresAt) && r.entries.CompareAndDelete(key, val) {
			removed++
		}
		return true
	})
	return removed
}

type lease struct {
	token     string
	expiresAt time.Time
}

// MemoryLocker is the in-process Locker. Leases expire after their ttl like the Redis ones.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

func NewMemoryLocker(now func() time.Time) *MemoryLocker {
	if now == nil {
		now = time.Now
	}
	return &MemoryLocker{
		leases: make(map[string]lease),
		now:    now,
	}
}

func (r *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if held, ok := r.leases[key]; ok && now.Before(held.expiresAt) {
		return nil, domain.ErrLockHeld
	}
	token := uuid.NewString()
	r.leases[key] = lease{token: token, expiresAt: now.Add(ttl)}

	return func(context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if held, ok := r.leases[key]; ok && held.token == token {
			delete(r.leases, key)
		}
		return nil
	}, nil
}
