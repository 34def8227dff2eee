package slots

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

// Query selects the slots of one service on one calendar date.
type Query struct {
	ServiceID  string
	Date       time.Time
	Timezone   string
	StaffID    string
	LocationID string
	// Granularity is the step between candidate starts in minutes.
	Granularity int
	// WindowStart and WindowEnd narrow the day to a local display window. Both or neither.
	WindowStart    *models.Clock
	WindowEnd      *models.Clock
	MinNotice      int
	MaxBookingDays int
	Actor          models.Actor
	// ExcludeBookingID lets a booking being moved see its own window as free.
	ExcludeBookingID string
	Limit            int
	Offset           int
}

// Validate rejects malformed queries before any store access.
func (q Query) Validate() error {
	if q.ServiceID == "" {
		return domain.Reject(domain.ErrConfiguration, "service_id is required")
	}
	if q.Date.IsZero() {
		return domain.Reject(domain.ErrConfiguration, "date is required")
	}
	if !models.ValidGranularity(q.Granularity) {
		return domain.Rejectf(domain.ErrConfiguration, "invalid granularity %d; allowed: 5, 10, 15, 30", q.Granularity)
	}
	if (q.WindowStart == nil) != (q.WindowEnd == nil) {
		return domain.Reject(domain.ErrConfiguration, "window_start and window_end must be given together")
	}
	if q.Limit < 0 || q.Offset < 0 {
		return domain.Reject(domain.ErrConfiguration, "limit and offset must not be negative")
	}
	return nil
}

// CacheKey is the full signature of the query. The actor is part of it because
// the actor's own holds do not hide slots.
func (q Query) CacheKey() string {
	return strings.Join([]string{
		"slots",
		q.ServiceID,
		q.Date.Format(models.DateLayout),
		q.Timezone,
		orAny(q.StaffID),
		orAny(q.LocationID),
		fmt.Sprint(q.Granularity),
		clockOrNone(q.WindowStart),
		clockOrNone(q.WindowEnd),
		fmt.Sprint(q.MinNotice),
		fmt.Sprint(q.MaxBookingDays),
		string(q.Actor.Role),
		orAny(q.Actor.ID),
		orAny(q.ExcludeBookingID),
		fmt.Sprint(q.Limit),
		fmt.Sprint(q.Offset),
	}, ":")
}

func orAny(s string) string {
	if s == "" {
		return "any"
	}
	return s
}

func clockOrNone(c *models.Clock) string {
	if c == nil {
		return "none"
	}
	return c.String()
}

// Sort orders slots by start, then staff.
func Sort(list []models.Slot) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].Start.Equal(list[j].Start) {
			return list[i].Start.Before(list[j].Start)
		}
		return list[i].StaffID < list[j].StaffID
	})
}

// Page applies offset, then limit. A zero limit means no limit.
func Page(list []models.Slot, offset, limit int) []models.Slot {
	if offset >= len(list) {
		return []models.Slot{}
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}
