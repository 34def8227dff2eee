package slots

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotbook/internal/database"
	"slotbook/internal/domain"
	"slotbook/internal/models"
)

var monday = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func setupStore(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "slots.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// seed creates svc-1 (30 min + 10 buffer) with two staff members working a
// given weekday 09:00-11:00 in tz. staff-2 is admin-only.
func seed(t *testing.T, db *database.DB, weekday time.Weekday, tz string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.UpsertService(ctx, &models.Service{
		ID: "svc-1", Name: "Haircut", DurationMinutes: 30, BufferMinutes: 10, MaxCapacity: 1, IsActive: true,
	}))
	for _, a := range []models.StaffService{
		{StaffID: "staff-1", ServiceID: "svc-1", IsBookable: true},
		{StaffID: "staff-2", ServiceID: "svc-1", IsBookable: true, AdminOnly: true},
	} {
		a := a
		require.NoError(t, db.UpsertStaff(ctx, &models.Staff{ID: a.StaffID, FullName: "Staff " + a.StaffID}))
		require.NoError(t, db.UpsertStaffService(ctx, &a))
		require.NoError(t, db.CreateWeeklySchedule(ctx,
			&models.WeeklySchedule{StaffID: a.StaffID, Timezone: tz, IsDefault: true},
			[]models.TimeBlock{{Weekday: weekday, Start: models.MustClock("09:00"), End: models.MustClock("11:00")}},
			nil,
		))
	}
}

func clocks(list []models.Slot) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.Start.UTC().Format("15:04"))
	}
	return out
}

func TestGenerate_BufferAndAdminOnly(t *testing.T) {
	db := setupStore(t)
	seed(t, db, time.Monday, "UTC")
	g := NewGenerator(db, func() time.Time { return monday.AddDate(0, 0, -1) }, nil)
	ctx := context.Background()

	q := Query{
		ServiceID: "svc-1", Date: monday, Timezone: "UTC", Granularity: 10, MaxBookingDays: 30,
		Actor: models.Actor{ID: "c1", Role: models.RoleCustomer},
	}
	list, err := g.Generate(ctx, q)
	require.NoError(t, err)
	Sort(list)

	// 40 minutes of occupied time must end by 11:00.
	assert.Equal(t, []string{"09:00", "09:10", "09:20", "09:30", "09:40", "09:50", "10:00", "10:10", "10:20"}, clocks(list))
	for _, s := range list {
		assert.Equal(t, "staff-1", s.StaffID)
		assert.Equal(t, 30*time.Minute, s.End.Sub(s.Start), "the buffer is not part of the shown slot")
	}

	q.Actor = models.Actor{ID: "a1", Role: models.RoleAdmin}
	list, err = g.Generate(ctx, q)
	require.NoError(t, err)
	Sort(list)
	require.Len(t, list, 18)
	assert.Equal(t, "staff-1", list[0].StaffID)
	assert.Equal(t, "staff-2", list[1].StaffID)
}

func TestGenerate_NoticeAndHorizon(t *testing.T) {
	db := setupStore(t)
	seed(t, db, time.Monday, "UTC")
	now := monday.Add(10 * time.Hour)
	g := NewGenerator(db, func() time.Time { return now }, nil)
	ctx := context.Background()

	q := Query{ServiceID: "svc-1", StaffID: "staff-1", Timezone: "UTC", Granularity: 10, MaxBookingDays: 7}

	q.Date = monday
	list, err := g.Generate(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "10:10", "10:20"}, clocks(list))

	q.MinNotice = 15
	list, err = g.Generate(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"10:20"}, clocks(list))

	q.MinNotice = 0
	q.Date = monday.AddDate(0, 0, 7)
	list, err = g.Generate(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:10", "09:20", "09:30", "09:40", "09:50", "10:00"}, clocks(list), "nothing after now plus seven days")

	q.Date = monday.AddDate(0, 0, 14)
	list, err = g.Generate(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGenerate_DaylightSavingStart(t *testing.T) {
	db := setupStore(t)
	// 2025-03-09 is the Sunday New York springs forward.
	sunday := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	seed(t, db, time.Sunday, "America/New_York")
	g := NewGenerator(db, func() time.Time { return sunday.AddDate(0, 0, -7) }, nil)

	list, err := g.Generate(context.Background(), Query{
		ServiceID: "svc-1", StaffID: "staff-1", Date: sunday, Timezone: "Europe/London", Granularity: 30, MaxBookingDays: 30,
	})
	require.NoError(t, err)
	Sort(list)

	// 09:00 EDT is 13:00 UTC.
	assert.Equal(t, []string{"13:00", "13:30", "14:00"}, clocks(list))
	assert.Equal(t, "Europe/London", list[0].Start.Location().String())
}

func TestGenerate_ServiceStates(t *testing.T) {
	db := setupStore(t)
	seed(t, db, time.Monday, "UTC")
	g := NewGenerator(db, func() time.Time { return monday.AddDate(0, 0, -1) }, nil)
	ctx := context.Background()
	q := Query{ServiceID: "svc-1", Date: monday, Timezone: "UTC", Granularity: 30, MaxBookingDays: 30}

	require.NoError(t, db.UpsertService(ctx, &models.Service{ID: "svc-1", Name: "Haircut", DurationMinutes: 30, IsActive: false}))
	list, err := g.Generate(ctx, q)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	q.ServiceID = "svc-missing"
	_, err = g.Generate(ctx, q)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	q.ServiceID = "svc-1"
	q.Timezone = "Not/AZone"
	_, err = g.Generate(ctx, q)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
