package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"slotbook/internal/database"
	"slotbook/internal/domain"
	"slotbook/internal/events"
	"slotbook/internal/models"
	"slotbook/internal/repository"
	"slotbook/internal/slots"
)

var (
	// monday is 2025-06-02; fixedNow is the Sunday morning before it.
	monday   = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	saturday = monday.AddDate(0, 0, 5)
	fixedNow = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
)

func on(day time.Time, h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func intRef(v int) *int { return &v }

var (
	customerA = models.Actor{ID: "cust-a", Role: models.RoleCustomer}
	customerB = models.Actor{ID: "cust-b", Role: models.RoleCustomer}
	admin     = models.Actor{ID: "admin-1", Role: models.RoleAdmin}
)

type fixture struct {
	db           *database.DB
	generator    *slots.Generator
	bookings     *BookingService
	holds        *HoldService
	availability *AvailabilityService
	bus          *events.EventBus

	mu        sync.Mutex
	published []string
}

type fixtureConfig struct {
	granularity int
	cache       bool
}

func newFixture(t *testing.T, cfg fixtureConfig) *fixture {
	t.Helper()
	if cfg.granularity == 0 {
		cfg.granularity = 30
	}

	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "slotbook.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	now := func() time.Time { return fixedNow }
	opts := Options{
		Policy:       Policy{Granularity: cfg.granularity, MinNotice: 120, MaxBookingDays: 90},
		StoreTimeout: 5 * time.Second,
		Now:          now,
	}

	f := &fixture{db: db, bus: events.NewEventBus()}
	f.bus.Subscribe(events.AnyEvent, func(e *events.Event) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.published = append(f.published, e.Type)
		return nil
	})

	var cache domain.SlotCache
	if cfg.cache {
		cache = repository.NewMemorySlotCache(time.Minute, now)
	}

	f.generator = slots.NewGenerator(db, now, &logger)
	f.bookings = NewBookingService(db, f.generator, repository.NewMemoryLocker(nil), f.bus, opts, &logger)
	f.holds = NewHoldService(db, f.bus, opts, &logger)
	f.availability = NewAvailabilityService(db, f.generator, cache, opts, 0, &logger)

	f.seedCatalog(t)
	return f
}

func (f *fixture) publishedEvents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.published...)
}

// seedCatalog creates three services and staff-1, who works weekdays
// 09:00-17:00 UTC with a 12:00-13:00 break.
//
//	svc-cut   30 min, no buffer, capacity 1
//	svc-class 30 min, no buffer, capacity 2
//	svc-color 60 min, no buffer, capacity 1
func (f *fixture) seedCatalog(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, svc := range []models.Service{
		{ID: "svc-cut", Name: "Haircut", DurationMinutes: 30, MaxCapacity: 1, IsActive: true},
		{ID: "svc-class", Name: "Group class", DurationMinutes: 30, MaxCapacity: 2, IsActive: true},
		{ID: "svc-color", Name: "Coloring", DurationMinutes: 60, MaxCapacity: 1, IsActive: true},
	} {
		svc := svc
		require.NoError(t, f.db.UpsertService(ctx, &svc))
	}
	f.addStaff(t, "staff-1", models.StaffService{IsBookable: true}, &models.WeeklySchedule{})
}

// addStaff creates a staff member assigned to every seeded service with the
// given assignment flags. A non-nil schedule gets the standard week.
func (f *fixture) addStaff(t *testing.T, id string, a models.StaffService, sched *models.WeeklySchedule) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.db.UpsertStaff(ctx, &models.Staff{ID: id, FullName: "Staff " + id}))

	for _, svcID := range []string{"svc-cut", "svc-class", "svc-color"} {
		assignment := a
		assignment.StaffID = id
		assignment.ServiceID = svcID
		require.NoError(t, f.db.UpsertStaffService(ctx, &assignment))
	}

	if sched == nil {
		return
	}
	sched.StaffID = id
	if sched.Timezone == "" {
		sched.Timezone = "UTC"
	}
	sched.IsDefault = true

	var work, breaks []models.TimeBlock
	for wd := time.Monday; wd <= time.Friday; wd++ {
		work = append(work, models.TimeBlock{Weekday: wd, Start: models.MustClock("09:00"), End: models.MustClock("17:00")})
		breaks = append(breaks, models.TimeBlock{Weekday: wd, Start: models.MustClock("12:00"), End: models.MustClock("13:00")})
	}
	require.NoError(t, f.db.CreateWeeklySchedule(ctx, sched, work, breaks))
}

func (f *fixture) book(t *testing.T, actor models.Actor, serviceID, staffID string, start time.Time) *models.Booking {
	t.Helper()
	b, err := f.bookings.Create(context.Background(), actor, CreateRequest{
		ServiceID:  serviceID,
		StaffID:    staffID,
		CustomerID: actor.ID,
		Start:      start,
		Source:     models.SourceWeb,
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) listSlots(t *testing.T, actor models.Actor, serviceID string, date time.Time) []models.Slot {
	t.Helper()
	list, err := f.availability.ListSlots(context.Background(), actor, SlotRequest{
		ServiceID: serviceID,
		Date:      date,
		Timezone:  "UTC",
		StaffID:   "staff-1",
	})
	require.NoError(t, err)
	return list
}

func starts(list []models.Slot) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.Start.UTC().Format("15:04"))
	}
	return out
}
