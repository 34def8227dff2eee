package models

import (
	"fmt"
	"time"
)

// WeeklySchedule is a staff member's recurring week, optionally bound to a location and date range.
type WeeklySchedule struct {
	ID                     string     `json:"id"`
	StaffID                string     `json:"staff_id"`
	LocationID             string     `json:"location_id,omitempty"`
	Timezone               string     `json:"timezone"`
	EffectiveFrom          *time.Time `json:"effective_from,omitempty"`
	EffectiveTo            *time.Time `json:"effective_to,omitempty"`
	IsDefault              bool       `json:"is_default"`
	MaxSlotsPerDay         *int       `json:"max_slots_per_day,omitempty"`
	MaxBookingsPerDay      *int       `json:"max_bookings_per_day,omitempty"`
	MaxBookingsPerCustomer *int       `json:"max_bookings_per_customer,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
}

// Covers reports whether the calendar date lies inside the effective window.
func (s *WeeklySchedule) Covers(date time.Time) bool {
	d := DateOf(date)
	if s.EffectiveFrom != nil && DateOf(*s.EffectiveFrom).After(d) {
		return false
	}
	if s.EffectiveTo != nil && DateOf(*s.EffectiveTo).Before(d) {
		return false
	}
	return true
}

// Location loads the schedule's IANA zone.
func (s *WeeklySchedule) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule %s has invalid timezone %q: %w", s.ID, s.Timezone, err)
	}
	return loc, nil
}

// TimeBlock is a recurring local interval on one weekday. Used for both work and break blocks.
type TimeBlock struct {
	ID         string       `json:"id"`
	ScheduleID string       `json:"schedule_id"`
	Weekday    time.Weekday `json:"weekday"`
	Start      Clock        `json:"start"`
	End        Clock        `json:"end"`
}
