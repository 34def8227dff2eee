package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotbook/internal/config"
	"slotbook/internal/models"
)

var (
	customerA = models.Actor{ID: "cust-a", Role: models.RoleCustomer}
	customerB = models.Actor{ID: "cust-b", Role: models.RoleCustomer}
	adminUser = models.Actor{ID: "admin-1", Role: models.RoleAdmin}
)

const slotsURL = "/api/v1/slots?service_id=svc-cut&staff_id=staff-1&timezone=UTC&date=2025-06-02"

func decodeJSON(t *testing.T, body []byte, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(body, out))
}

func bookingBody(start string) string {
	return fmt.Sprintf(`{"service_id":"svc-cut","staff_id":"staff-1","start_time_utc":%q,"booking_source":"web"}`, start)
}

func TestHTTPServer_Slots(t *testing.T) {
	h := NewHTTPServer(openAPIConfig(), newTestEngine(t), nil).Handler()

	rec := call(t, h, customerA, http.MethodGet, slotsURL, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("x-request-id"))

	var resp struct {
		Slots []models.Slot `json:"slots"`
		Count int           `json:"count"`
	}
	decodeJSON(t, rec.Body.Bytes(), &resp)
	assert.Equal(t, 14, resp.Count)
	require.Len(t, resp.Slots, 14)
	assert.Equal(t, "2025-06-02T09:00:00Z", resp.Slots[0].Start.UTC().Format("2006-01-02T15:04:05Z07:00"))

	t.Run("Paged", func(t *testing.T) {
		rec := call(t, h, customerA, http.MethodGet, slotsURL+"&limit=2&offset=1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		decodeJSON(t, rec.Body.Bytes(), &resp)
		assert.Equal(t, 2, resp.Count)
		assert.Equal(t, 9, resp.Slots[0].Start.UTC().Hour())
		assert.Equal(t, 30, resp.Slots[0].Start.UTC().Minute())
	})

	t.Run("MissingActor", func(t *testing.T) {
		rec := call(t, h, models.Actor{}, http.MethodGet, slotsURL, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("MissingDate", func(t *testing.T) {
		rec := call(t, h, customerA, http.MethodGet, "/api/v1/slots?service_id=svc-cut", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var body map[string]string
		decodeJSON(t, rec.Body.Bytes(), &body)
		assert.Equal(t, "configuration", body["kind"])
		assert.Equal(t, "date is required", body["error"])
	})

	t.Run("BadInteger", func(t *testing.T) {
		rec := call(t, h, customerA, http.MethodGet, slotsURL+"&limit=many", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("UnknownService", func(t *testing.T) {
		rec := call(t, h, customerA, http.MethodGet, "/api/v1/slots?service_id=nope&date=2025-06-02", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("NextAvailable", func(t *testing.T) {
		rec := call(t, h, customerA, http.MethodGet, "/api/v1/slots/next-available?service_id=svc-cut&staff_id=staff-1&timezone=UTC", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]*string
		decodeJSON(t, rec.Body.Bytes(), &body)
		require.NotNil(t, body["date"])
		assert.Equal(t, "2025-06-02", *body["date"])
	})
}

func TestHTTPServer_BookingLifecycle(t *testing.T) {
	h := NewHTTPServer(openAPIConfig(), newTestEngine(t), nil).Handler()

	rec := call(t, h, customerA, http.MethodPost, "/api/v1/bookings", bookingBody("2025-06-02T09:00:00Z"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var booking models.Booking
	decodeJSON(t, rec.Body.Bytes(), &booking)
	assert.Equal(t, "cust-a", booking.CustomerID)
	assert.Equal(t, models.StatusPending, booking.Status)

	t.Run("Conflict", func(t *testing.T) {
		rec := call(t, h, customerB, http.MethodPost, "/api/v1/bookings", bookingBody("2025-06-02T09:00:00Z"))
		assert.Equal(t, http.StatusConflict, rec.Code)

		var body map[string]string
		decodeJSON(t, rec.Body.Bytes(), &body)
		assert.Equal(t, "availability_conflict", body["kind"])
		assert.Equal(t, "time slot is not available", body["error"])
	})

	t.Run("PolicyViolation", func(t *testing.T) {
		rec := call(t, h, customerB, http.MethodPost, "/api/v1/bookings", bookingBody("2025-10-06T10:00:00Z"))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("InvalidBody", func(t *testing.T) {
		rec := call(t, h, customerB, http.MethodPost, "/api/v1/bookings", `{"unknown":1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("SlotGone", func(t *testing.T) {
		rec := call(t, h, customerB, http.MethodGet, slotsURL, "")
		var resp struct {
			Count int `json:"count"`
		}
		decodeJSON(t, rec.Body.Bytes(), &resp)
		assert.Equal(t, 13, resp.Count)
	})

	t.Run("Get", func(t *testing.T) {
		rec := call(t, h, customerA, http.MethodGet, "/api/v1/bookings/"+booking.ID, "")
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = call(t, h, customerB, http.MethodGet, "/api/v1/bookings/"+booking.ID, "")
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = call(t, h, adminUser, http.MethodGet, "/api/v1/bookings/missing", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("List", func(t *testing.T) {
		rec := call(t, h, customerA, http.MethodGet, "/api/v1/bookings?status=pending", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Bookings []models.Booking `json:"bookings"`
			Count    int              `json:"count"`
		}
		decodeJSON(t, rec.Body.Bytes(), &resp)
		assert.Equal(t, 1, resp.Count)

		rec = call(t, h, customerA, http.MethodGet, "/api/v1/bookings?from=yesterday", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Reschedule", func(t *testing.T) {
		rec := call(t, h, customerA, http.MethodPatch, "/api/v1/bookings/"+booking.ID, `{"start_time_utc":"2025-06-02T10:00:00Z"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var moved models.Booking
		decodeJSON(t, rec.Body.Bytes(), &moved)
		assert.Equal(t, 10, moved.Start.UTC().Hour())
		assert.Equal(t, int64(2), moved.Version)
	})

	t.Run("Logs", func(t *testing.T) {
		rec := call(t, h, customerA, http.MethodGet, "/api/v1/bookings/"+booking.ID+"/logs", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Logs    []models.BookingLog    `json:"logs"`
			Changes []models.BookingChange `json:"changes"`
		}
		decodeJSON(t, rec.Body.Bytes(), &resp)
		assert.Len(t, resp.Logs, 2)
		assert.Len(t, resp.Changes, 1)
	})

	t.Run("Cancel", func(t *testing.T) {
		rec := call(t, h, customerA, http.MethodPost, "/api/v1/bookings/"+booking.ID+"/cancel", `{"reason":"sick"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var cancelled models.Booking
		decodeJSON(t, rec.Body.Bytes(), &cancelled)
		assert.Equal(t, models.StatusCancelled, cancelled.Status)

		rec = call(t, h, customerA, http.MethodPost, "/api/v1/bookings/"+booking.ID+"/cancel", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Rebook", func(t *testing.T) {
		rec := call(t, h, customerA, http.MethodPost, "/api/v1/bookings/"+booking.ID+"/rebook", "")
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var rebooked models.Booking
		decodeJSON(t, rec.Body.Bytes(), &rebooked)
		assert.NotEqual(t, booking.ID, rebooked.ID)
	})
}

func TestHTTPServer_Holds(t *testing.T) {
	h := NewHTTPServer(openAPIConfig(), newTestEngine(t), nil).Handler()

	body := `{"staff_id":"staff-1","service_id":"svc-cut","start_utc":"2025-06-02T09:00:00Z","end_utc":"2025-06-02T09:30:00Z","expires_at_utc":"2025-06-01T08:15:00Z"}`
	rec := call(t, h, customerA, http.MethodPost, "/api/v1/holds", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var hold models.Hold
	decodeJSON(t, rec.Body.Bytes(), &hold)
	assert.Equal(t, "cust-a", hold.CreatedBy)

	rec = call(t, h, customerB, http.MethodPost, "/api/v1/bookings", bookingBody("2025-06-02T09:00:00Z"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, h, customerB, http.MethodGet, "/api/v1/holds?staff_id=staff-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Holds []models.Hold `json:"holds"`
	}
	decodeJSON(t, rec.Body.Bytes(), &listed)
	assert.Empty(t, listed.Holds)

	rec = call(t, h, customerB, http.MethodDelete, "/api/v1/holds/"+hold.ID, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, h, customerA, http.MethodDelete, "/api/v1/holds/"+hold.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = call(t, h, customerA, http.MethodDelete, "/api/v1/holds/"+hold.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, h, customerB, http.MethodPost, "/api/v1/bookings", bookingBody("2025-06-02T09:00:00Z"))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestHTTPServer_Calendar(t *testing.T) {
	h := NewHTTPServer(openAPIConfig(), newTestEngine(t), nil).Handler()

	rec := call(t, h, adminUser, http.MethodGet, "/api/v1/calendar?staff_id=staff-1&start_date=2025-06-02&end_date=2025-06-03", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Days []json.RawMessage `json:"days"`
	}
	decodeJSON(t, rec.Body.Bytes(), &resp)
	assert.Len(t, resp.Days, 2)

	rec = call(t, h, customerA, http.MethodGet, "/api/v1/calendar?staff_id=staff-1&start_date=2025-06-02&end_date=2025-06-03", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, h, adminUser, http.MethodGet, "/api/v1/calendar?staff_id=staff-1&start_date=June", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPAuth(t *testing.T) {
	cfg := openAPIConfig()
	cfg.Auth = config.APIAuthConfig{
		Enabled: true,
		APIKeys: []config.APIClientKey{
			{Key: "reader", Extra: "r-extra", Permissions: []string{permReadAvailability}},
			{Key: "writer", Extra: "w-extra", Permissions: []string{permWriteBookings, permWriteHolds}},
		},
	}
	h := NewHTTPServer(cfg, newTestEngine(t), nil).Handler()

	send := func(method, target, key, extra string) int {
		req, err := http.NewRequest(method, target, nil)
		require.NoError(t, err)
		req.Header.Set("x-api-key", key)
		req.Header.Set("x-api-extra", extra)
		req.Header.Set(actorIDHeader, "admin-1")
		req.Header.Set(actorRoleHeader, "admin")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send(http.MethodGet, slotsURL, "reader", "r-extra"))
	assert.Equal(t, http.StatusUnauthorized, send(http.MethodGet, slotsURL, "", ""))
	assert.Equal(t, http.StatusUnauthorized, send(http.MethodGet, slotsURL, "reader", "wrong"))
	assert.Equal(t, http.StatusUnauthorized, send(http.MethodGet, slotsURL, "unknown", "r-extra"))
	assert.Equal(t, http.StatusForbidden, send(http.MethodGet, "/api/v1/bookings", "reader", "r-extra"))
	assert.Equal(t, http.StatusForbidden, send(http.MethodGet, slotsURL, "writer", "w-extra"))
	assert.Equal(t, http.StatusOK, send(http.MethodGet, "/api/v1/holds?staff_id=staff-1", "writer", "w-extra"))
}

func TestHTTPAuth_RateLimit(t *testing.T) {
	cfg := openAPIConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 1, Burst: 1}
	h := NewHTTPServer(cfg, newTestEngine(t), nil).Handler()

	assert.Equal(t, http.StatusOK, call(t, h, customerA, http.MethodGet, slotsURL, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, call(t, h, customerA, http.MethodGet, slotsURL, "").Code)
}

func TestRequiredPermissionHTTP(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/slots", permReadAvailability},
		{"/api/v1/slots/next-available", permReadAvailability},
		{"/api/v1/calendar", permReadAvailability},
		{"/api/v1/bookings/abc/cancel", permWriteBookings},
		{"/api/v1/holds/abc", permWriteHolds},
		{"/healthz", ""},
	}
	for _, tt := range tests {
		req, err := http.NewRequest(http.MethodGet, tt.path, nil)
		require.NoError(t, err)
		assert.Equal(t, tt.want, requiredPermissionHTTP(req), tt.path)
	}
}
