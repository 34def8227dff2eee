package api

import (
	"net/http"
	"strings"

	"slotbook/internal/domain"
	"slotbook/internal/models"
	"slotbook/internal/service"
)

func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	q, err := slotQueryFromURL(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	req, err := q.request(true)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	list, err := s.engine.Availability.ListSlots(r.Context(), actor, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": list, "count": len(list)})
}

func (s *HTTPServer) handleNextAvailable(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	q, err := slotQueryFromURL(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	req, err := q.request(false)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	next, err := s.engine.Availability.NextAvailableDate(r.Context(), actor, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var date *string
	if next != nil {
		formatted := next.Format(models.DateLayout)
		date = &formatted
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date})
}

func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	v := r.URL.Query()
	from, err := dateParam(v, "start_date")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := dateParam(v, "end_date")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	days, err := s.engine.Availability.Calendar(r.Context(), actor, service.CalendarRequest{
		StaffID:    strings.TrimSpace(v.Get("staff_id")),
		LocationID: strings.TrimSpace(v.Get("location_id")),
		From:       from,
		To:         to,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days})
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var req service.CreateRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "configuration", "invalid JSON body")
		return
	}

	booking, err := s.engine.Bookings.Create(r.Context(), actor, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	v := r.URL.Query()
	filter := domain.BookingFilter{
		StaffID:    strings.TrimSpace(v.Get("staff_id")),
		CustomerID: strings.TrimSpace(v.Get("customer_id")),
		Statuses:   splitCSV(v.Get("status")),
	}
	var err error
	if filter.From, err = timeParam(v, "from"); err == nil {
		filter.To, err = timeParam(v, "to")
	}
	if err == nil {
		filter.Limit, err = intParam(v, "limit")
	}
	if err == nil {
		filter.Offset, err = intParam(v, "offset")
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	bookings, err := s.engine.Bookings.List(r.Context(), actor, filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings, "count": len(bookings)})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	booking, err := s.engine.Bookings.Get(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleUpdateBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var req service.UpdateRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "configuration", "invalid JSON body")
		return
	}

	booking, err := s.engine.Bookings.Update(r.Context(), actor, r.PathValue("id"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &body, true); err != nil {
		writeError(w, http.StatusBadRequest, "configuration", "invalid JSON body")
		return
	}

	booking, err := s.engine.Bookings.Cancel(r.Context(), actor, r.PathValue("id"), body.Reason)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleRebook(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	booking, err := s.engine.Bookings.Rebook(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleBookingLogs(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	logs, err := s.engine.Bookings.Logs(r.Context(), actor, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	changes, err := s.engine.Bookings.Changes(r.Context(), actor, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs, "changes": changes})
}

func (s *HTTPServer) handleCreateHold(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var req service.HoldRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "configuration", "invalid JSON body")
		return
	}

	hold, err := s.engine.Holds.Create(r.Context(), actor, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, hold)
}

func (s *HTTPServer) handleListHolds(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	holds, err := s.engine.Holds.List(r.Context(), actor, strings.TrimSpace(r.URL.Query().Get("staff_id")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"holds": holds})
}

func (s *HTTPServer) handleDeleteHold(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	if err := s.engine.Holds.Delete(r.Context(), actor, r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
