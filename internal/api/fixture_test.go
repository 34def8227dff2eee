package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"slotbook/internal/config"
	"slotbook/internal/database"
	"slotbook/internal/events"
	"slotbook/internal/models"
	"slotbook/internal/repository"
	"slotbook/internal/service"
	"slotbook/internal/slots"
)

var (
	// monday is 2025-06-02; fixedNow is the Sunday morning before it.
	monday   = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	fixedNow = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
)

// newTestEngine wires the engine over a fresh database holding svc-cut
// (30 min, capacity 1) and staff-1, who works weekdays 09:00-17:00 UTC with
// a 12:00-13:00 break.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "slotbook.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	require.NoError(t, db.UpsertService(ctx, &models.Service{
		ID: "svc-cut", Name: "Haircut", DurationMinutes: 30, MaxCapacity: 1, IsActive: true,
	}))
	require.NoError(t, db.UpsertStaff(ctx, &models.Staff{ID: "staff-1", FullName: "Staff One"}))
	require.NoError(t, db.UpsertStaffService(ctx, &models.StaffService{StaffID: "staff-1", ServiceID: "svc-cut", IsBookable: true}))

	var work, breaks []models.TimeBlock
	for wd := time.Monday; wd <= time.Friday; wd++ {
		work = append(work, models.TimeBlock{Weekday: wd, Start: models.MustClock("09:00"), End: models.MustClock("17:00")})
		breaks = append(breaks, models.TimeBlock{Weekday: wd, Start: models.MustClock("12:00"), End: models.MustClock("13:00")})
	}
	require.NoError(t, db.CreateWeeklySchedule(ctx, &models.WeeklySchedule{
		StaffID: "staff-1", Timezone: "UTC", IsDefault: true,
	}, work, breaks))

	now := func() time.Time { return fixedNow }
	opts := service.Options{
		Policy:       service.Policy{Granularity: 30, MinNotice: 120, MaxBookingDays: 90},
		StoreTimeout: 5 * time.Second,
		Now:          now,
	}
	bus := events.NewEventBus()
	generator := slots.NewGenerator(db, now, &logger)

	return &Engine{
		Bookings:     service.NewBookingService(db, generator, repository.NewMemoryLocker(nil), bus, opts, &logger),
		Holds:        service.NewHoldService(db, bus, opts, &logger),
		Availability: service.NewAvailabilityService(db, generator, nil, opts, 0, &logger),
	}
}

func openAPIConfig() *config.APIConfig {
	return &config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Enabled: true},
		GRPC:    config.APIGRPCConfig{Enabled: true},
	}
}

// call sends one request through the fully wrapped handler as the given actor.
// A zero actor sends no identity headers.
func call(t *testing.T, h http.Handler, actor models.Actor, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if actor.ID != "" {
		req.Header.Set(actorIDHeader, actor.ID)
		req.Header.Set(actorRoleHeader, string(actor.Role))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
