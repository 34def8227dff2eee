package models

import "time"

// Service is a bookable offering with its default duration, buffer and capacity.
type Service struct {
	ID              string     `json:"id" yaml:"id"`
	Name            string     `json:"name" yaml:"name"`
	DurationMinutes int        `json:"duration_minutes" yaml:"duration_minutes"`
	BufferMinutes   int        `json:"buffer_minutes" yaml:"buffer_minutes"`
	MaxCapacity     int        `json:"max_capacity" yaml:"max_capacity"`
	IsActive        bool       `json:"is_active" yaml:"is_active"`
	IsArchived      bool       `json:"is_archived" yaml:"is_archived"`
	PausedFrom      *time.Time `json:"paused_from,omitempty" yaml:"paused_from"`
	PausedUntil     *time.Time `json:"paused_until,omitempty" yaml:"paused_until"`
}

// Paused reports whether now falls inside the service's pause window.
func (s *Service) Paused(now time.Time) bool {
	if s.PausedFrom == nil || s.PausedFrom.After(now) {
		return false
	}
	return s.PausedUntil == nil || !s.PausedUntil.Before(now)
}

// Staff is a person who can be booked.
type Staff struct {
	ID         string `json:"id" yaml:"id"`
	FullName   string `json:"full_name" yaml:"full_name"`
	LocationID string `json:"location_id,omitempty" yaml:"location_id"`
}

// StaffService is the assignment of a staff member to a service with optional overrides.
type StaffService struct {
	StaffID                  string `json:"staff_id"`
	StaffName                string `json:"staff_name"`
	StaffLocationID          string `json:"staff_location_id,omitempty"`
	ServiceID                string `json:"service_id"`
	DurationOverride         *int   `json:"duration_override,omitempty"`
	BufferOverride           *int   `json:"buffer_override,omitempty"`
	CapacityOverride         *int   `json:"capacity_override,omitempty"`
	IsBookable               bool   `json:"is_bookable"`
	IsTemporarilyUnavailable bool   `json:"is_temporarily_unavailable"`
	AdminOnly                bool   `json:"admin_only"`
}

// Terms are the effective slot parameters for one staff member and service.
type Terms struct {
	Duration int
	Buffer   int
	Capacity int
}

// Total is the occupied length of a slot in minutes.
func (t Terms) Total() int {
	return t.Duration + t.Buffer
}

// Terms resolves overrides against the service defaults. Capacity is at least 1.
func (a *StaffService) Terms(svc *Service) Terms {
	t := Terms{
		Duration: svc.DurationMinutes,
		Buffer:   svc.BufferMinutes,
		Capacity: svc.MaxCapacity,
	}
	if a.DurationOverride != nil && *a.DurationOverride > 0 {
		t.Duration = *a.DurationOverride
	}
	if a.BufferOverride != nil {
		t.Buffer = *a.BufferOverride
	}
	if a.CapacityOverride != nil {
		t.Capacity = *a.CapacityOverride
	}
	if t.Capacity < 1 {
		t.Capacity = 1
	}
	if t.Buffer < 0 {
		t.Buffer = 0
	}
	return t
}

// Available reports whether the assignment can take bookings at all.
func (a *StaffService) Available() bool {
	return a.IsBookable && !a.IsTemporarilyUnavailable
}
