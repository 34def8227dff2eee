package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

func TestConcurrentBooking(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
	}{
		{name: "single seat", capacity: 1},
		{name: "three seats", capacity: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t)
			seedCatalog(t, db, tt.capacity)
			ctx := context.Background()
			start := monday.Add(9 * time.Hour)

			const numGoroutines = 10
			var wg sync.WaitGroup
			wg.Add(numGoroutines)
			results := make(chan error, numGoroutines)

			for i := 0; i < numGoroutines; i++ {
				go func(id int) {
					defer wg.Done()
					b := newBooking("svc-1", "cust-"+string(rune('a'+id)), start, 40)
					results <- db.CommitBooking(ctx, &domain.BookingCommit{Booking: b, Capacity: tt.capacity, Now: monday})
				}(i)
			}

			wg.Wait()
			close(results)

			successCount := 0
			for err := range results {
				if err == nil {
					successCount++
					continue
				}
				assert.True(t,
					errors.Is(err, domain.ErrAvailabilityConflict) || errors.Is(err, domain.ErrCapacityExceeded),
					"unexpected error: %v", err)
			}
			assert.Equal(t, tt.capacity, successCount)

			list, err := db.ListBookings(ctx, domain.BookingFilter{StaffID: "staff-1", Statuses: []string{models.StatusPending}})
			require.NoError(t, err)
			assert.Len(t, list, tt.capacity)
		})
	}
}

func TestConcurrentBooking_CustomerLimit(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db, 1)
	ctx := context.Background()

	const days = 4
	for round := 0; round < 10; round++ {
		customerID := "cust-" + string(rune('a'+round))
		var wg sync.WaitGroup
		results := make(chan error, days)

		for d := 0; d < days; d++ {
			wg.Add(1)
			go func(d int) {
				defer wg.Done()
				start := monday.AddDate(0, 0, d).Add(time.Duration(8+round) * time.Hour)
				results <- db.CommitBooking(ctx, &domain.BookingCommit{
					Booking:  newBooking("svc-1", customerID, start, 40),
					Capacity: 1,
					Limits:   &domain.BookingLimits{MaxPerCustomer: intRef(1), CustomerID: customerID},
					Now:      monday,
				})
			}(d)
		}
		wg.Wait()
		close(results)

		successCount := 0
		for err := range results {
			if err == nil {
				successCount++
				continue
			}
			assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
		}
		assert.Equal(t, 1, successCount, "round %d", round)
	}
}
