package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

func newBooking(serviceID, customerID string, start time.Time, minutes int) *models.Booking {
	return &models.Booking{
		ServiceID:     serviceID,
		StaffID:       "staff-1",
		CustomerID:    customerID,
		Start:         start,
		End:           start.Add(time.Duration(minutes) * time.Minute),
		Status:        models.StatusPending,
		PaymentStatus: models.PaymentPending,
		Source:        models.SourceWeb,
	}
}

func TestCommitBooking(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db, 1)
	ctx := context.Background()
	now := monday.Add(5 * time.Hour)
	start := monday.Add(9 * time.Hour)

	b := newBooking("svc-1", "cust-1", start, 40)
	err := db.CommitBooking(ctx, &domain.BookingCommit{
		Booking:  b,
		Capacity: 1,
		ActorID:  "cust-1",
		Now:      now,
		Log:      &models.BookingLog{Action: models.LogActionCreated, PerformedBy: "cust-1", Details: []byte(`{"source":"web"}`)},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, int64(1), b.Version)

	stored, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, start.Equal(stored.Start))
	assert.Equal(t, models.StatusPending, stored.Status)

	logs, err := db.ListBookingLogs(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.LogActionCreated, logs[0].Action)
	assert.JSONEq(t, `{"source":"web"}`, string(logs[0].Details))

	t.Run("OverlapRejected", func(t *testing.T) {
		err := db.CommitBooking(ctx, &domain.BookingCommit{
			Booking:  newBooking("svc-1", "cust-2", start.Add(20*time.Minute), 40),
			Capacity: 1,
			Now:      now,
		})
		assert.ErrorIs(t, err, domain.ErrAvailabilityConflict)
	})

	t.Run("OtherServiceRejected", func(t *testing.T) {
		err := db.CommitBooking(ctx, &domain.BookingCommit{
			Booking:  newBooking("svc-2", "cust-2", start, 60),
			Capacity: 1,
			Now:      now,
		})
		assert.ErrorIs(t, err, domain.ErrAvailabilityConflict)
	})

	t.Run("AdjacentAccepted", func(t *testing.T) {
		err := db.CommitBooking(ctx, &domain.BookingCommit{
			Booking:  newBooking("svc-1", "cust-2", start.Add(40*time.Minute), 40),
			Capacity: 1,
			Now:      now,
		})
		assert.NoError(t, err)
	})

	t.Run("Counts", func(t *testing.T) {
		n, err := db.CountStaffBookings(ctx, "staff-1", monday, monday.AddDate(0, 0, 1), "")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = db.CountStaffBookings(ctx, "staff-1", monday, monday.AddDate(0, 0, 1), b.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = db.CountCustomerBookings(ctx, "staff-1", "cust-1", now, "")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = db.CountCustomerBookings(ctx, "staff-1", "cust-1", start.Add(time.Hour), "")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("ListBookings", func(t *testing.T) {
		list, err := db.ListBookings(ctx, domain.BookingFilter{StaffID: "staff-1"})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, b.ID, list[0].ID)

		list, err = db.ListBookings(ctx, domain.BookingFilter{CustomerID: "cust-2", Statuses: []string{models.StatusPending}})
		require.NoError(t, err)
		assert.Len(t, list, 1)

		list, err = db.ListBookings(ctx, domain.BookingFilter{From: start.Add(2 * time.Hour)})
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestCommitBooking_Capacity(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db, 2)
	ctx := context.Background()
	now := monday
	start := monday.Add(9 * time.Hour)

	for _, customer := range []string{"cust-1", "cust-2"} {
		require.NoError(t, db.CommitBooking(ctx, &domain.BookingCommit{
			Booking: newBooking("svc-1", customer, start, 40), Capacity: 2, Now: now,
		}))
	}
	err := db.CommitBooking(ctx, &domain.BookingCommit{
		Booking: newBooking("svc-1", "cust-3", start, 40), Capacity: 2, Now: now,
	})
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
	assert.Equal(t, "time slot is full", domain.Reason(err))
}

func TestCommitBooking_Holds(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db, 1)
	ctx := context.Background()
	now := monday
	start := monday.Add(9 * time.Hour)

	own := &models.Hold{StaffID: "staff-1", ServiceID: "svc-1", Start: start, End: start.Add(40 * time.Minute),
		ExpiresAt: now.Add(10 * time.Minute), CreatedBy: "cust-1"}
	require.NoError(t, db.CreateHold(ctx, own))

	err := db.CommitBooking(ctx, &domain.BookingCommit{
		Booking: newBooking("svc-1", "cust-2", start, 40), Capacity: 1, ActorID: "cust-2", Now: now,
	})
	assert.ErrorIs(t, err, domain.ErrAvailabilityConflict, "someone else's hold blocks the window")

	err = db.CommitBooking(ctx, &domain.BookingCommit{
		Booking: newBooking("svc-1", "cust-1", start, 40), Capacity: 1, ActorID: "cust-1", Now: now,
	})
	require.NoError(t, err, "own hold never blocks")

	_, err = db.GetHold(ctx, own.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "committed booking consumes the hold")
}

func TestUpdateBooking(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db, 1)
	ctx := context.Background()
	now := monday
	start := monday.Add(9 * time.Hour)

	first := newBooking("svc-1", "cust-1", start, 40)
	second := newBooking("svc-1", "cust-2", start.Add(time.Hour), 40)
	for _, b := range []*models.Booking{first, second} {
		require.NoError(t, db.CommitBooking(ctx, &domain.BookingCommit{Booking: b, Capacity: 1, Now: now}))
	}

	t.Run("MoveIntoConflict", func(t *testing.T) {
		newStart := start.Add(40 * time.Minute)
		newEnd := newStart.Add(40 * time.Minute)
		_, err := db.UpdateBooking(ctx, &domain.BookingUpdate{
			BookingID: first.ID,
			Patch:     models.BookingPatch{Start: &newStart, End: &newEnd},
			Capacity:  1,
			Now:       now,
		})
		assert.ErrorIs(t, err, domain.ErrAvailabilityConflict)
	})

	t.Run("MoveOverlappingItself", func(t *testing.T) {
		newStart := start.Add(-10 * time.Minute)
		newEnd := newStart.Add(40 * time.Minute)
		updated, err := db.UpdateBooking(ctx, &domain.BookingUpdate{
			BookingID: first.ID,
			Patch:     models.BookingPatch{Start: &newStart, End: &newEnd},
			Capacity:  1,
			ActorID:   "cust-1",
			Now:       now,
			Change:    &models.BookingChange{ChangeType: models.ChangeReschedule, OldStart: &start, NewStart: &newStart, ChangedBy: "cust-1"},
			Log:       &models.BookingLog{Action: models.LogActionRescheduled, PerformedBy: "cust-1"},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated.Version)
		assert.True(t, newStart.Equal(updated.Start))

		changes, err := db.ListBookingChanges(ctx, first.ID)
		require.NoError(t, err)
		require.Len(t, changes, 1)
		assert.Equal(t, models.ChangeReschedule, changes[0].ChangeType)
		require.NotNil(t, changes[0].OldStart)
		assert.True(t, start.Equal(*changes[0].OldStart))
	})

	t.Run("StatusOnly", func(t *testing.T) {
		status := models.StatusCancelled
		updated, err := db.UpdateBooking(ctx, &domain.BookingUpdate{
			BookingID: second.ID,
			Patch:     models.BookingPatch{Status: &status},
			Now:       now,
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, updated.Status)
		assert.Equal(t, int64(2), updated.Version)

		occupants, err := db.ListOccupants(ctx, domain.OccupancyQuery{StaffID: "staff-1", From: monday, To: monday.AddDate(0, 0, 1), Now: now})
		require.NoError(t, err)
		assert.Len(t, occupants, 1, "cancelled booking frees its window")
	})

	t.Run("NotFound", func(t *testing.T) {
		status := models.StatusConfirmed
		_, err := db.UpdateBooking(ctx, &domain.BookingUpdate{BookingID: "missing", Patch: models.BookingPatch{Status: &status}})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestCommitBooking_Limits(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db, 3)
	ctx := context.Background()
	now := monday
	dayLimits := func(customerID string) *domain.BookingLimits {
		return &domain.BookingLimits{
			MaxPerDay:      intRef(2),
			DayStart:       monday,
			DayEnd:         monday.AddDate(0, 0, 1),
			MaxPerCustomer: intRef(1),
			CustomerID:     customerID,
		}
	}

	require.NoError(t, db.CommitBooking(ctx, &domain.BookingCommit{
		Booking: newBooking("svc-1", "cust-1", monday.Add(9*time.Hour), 40), Capacity: 3, Limits: dayLimits("cust-1"), Now: now,
	}))

	t.Run("CustomerCap", func(t *testing.T) {
		err := db.CommitBooking(ctx, &domain.BookingCommit{
			Booking: newBooking("svc-1", "cust-1", monday.Add(11*time.Hour), 40), Capacity: 3, Limits: dayLimits("cust-1"), Now: now,
		})
		assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
		assert.Equal(t, "Customer booking limit reached for this staff member", domain.Reason(err))
	})

	t.Run("DailyCap", func(t *testing.T) {
		require.NoError(t, db.CommitBooking(ctx, &domain.BookingCommit{
			Booking: newBooking("svc-1", "cust-2", monday.Add(10*time.Hour), 40), Capacity: 3, Limits: dayLimits("cust-2"), Now: now,
		}))
		err := db.CommitBooking(ctx, &domain.BookingCommit{
			Booking: newBooking("svc-1", "cust-3", monday.Add(14*time.Hour), 40), Capacity: 3, Limits: dayLimits("cust-3"), Now: now,
		})
		assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
		assert.Equal(t, "Staff daily booking limit reached", domain.Reason(err))
	})

	t.Run("NilLimitsUncapped", func(t *testing.T) {
		require.NoError(t, db.CommitBooking(ctx, &domain.BookingCommit{
			Booking: newBooking("svc-1", "cust-1", monday.Add(15*time.Hour), 40), Capacity: 3, Now: now,
		}))
	})
}

func TestUpdateBooking_Limits(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db, 1)
	ctx := context.Background()
	now := monday
	tuesday := monday.AddDate(0, 0, 1)

	onMonday := newBooking("svc-1", "cust-1", monday.Add(9*time.Hour), 40)
	onTuesday := newBooking("svc-1", "cust-2", tuesday.Add(9*time.Hour), 40)
	for _, b := range []*models.Booking{onMonday, onTuesday} {
		require.NoError(t, db.CommitBooking(ctx, &domain.BookingCommit{Booking: b, Capacity: 1, Now: now}))
	}

	newStart := tuesday.Add(11 * time.Hour)
	newEnd := newStart.Add(40 * time.Minute)
	move := &domain.BookingUpdate{
		BookingID: onMonday.ID,
		Patch:     models.BookingPatch{Start: &newStart, End: &newEnd},
		Capacity:  1,
		Limits:    &domain.BookingLimits{MaxPerDay: intRef(1), DayStart: tuesday, DayEnd: tuesday.AddDate(0, 0, 1)},
		Now:       now,
	}
	_, err := db.UpdateBooking(ctx, move)
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
	assert.Equal(t, "Staff daily booking limit reached", domain.Reason(err))

	move.Limits.MaxPerDay = intRef(2)
	updated, err := db.UpdateBooking(ctx, move)
	require.NoError(t, err)
	assert.True(t, newStart.Equal(updated.Start))
}
