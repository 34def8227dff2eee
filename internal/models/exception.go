package models

import (
	"fmt"
	"time"
)

// ExceptionKind is the closed set of staff schedule exceptions.
type ExceptionKind string

const (
	ExceptionOverrideDay       ExceptionKind = "override_day"
	ExceptionTimeOff           ExceptionKind = "time_off"
	ExceptionBlockedTime       ExceptionKind = "blocked_time"
	ExceptionExtraAvailability ExceptionKind = "extra_availability"
)

// ParseExceptionKind maps a stored tag onto the closed set.
func ParseExceptionKind(s string) (ExceptionKind, error) {
	switch k := ExceptionKind(s); k {
	case ExceptionOverrideDay, ExceptionTimeOff, ExceptionBlockedTime, ExceptionExtraAvailability:
		return k, nil
	}
	return "", fmt.Errorf("unknown exception type %q", s)
}

// Blocking reports whether the kind removes time from a day.
func (k ExceptionKind) Blocking() bool {
	return k == ExceptionTimeOff || k == ExceptionBlockedTime
}

// Recurrence repeats an exception on later days.
type Recurrence string

const (
	RecurrenceNone   Recurrence = ""
	RecurrenceDaily  Recurrence = "daily"
	RecurrenceWeekly Recurrence = "weekly"
)

// ParseRecurrence maps a stored tag onto the closed set.
func ParseRecurrence(s string) (Recurrence, error) {
	switch r := Recurrence(s); r {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly:
		return r, nil
	}
	return "", fmt.Errorf("unknown recurrence %q", s)
}

// StaffException overrides a staff member's week for a UTC range.
type StaffException struct {
	ID         string        `json:"id"`
	StaffID    string        `json:"staff_id"`
	LocationID string        `json:"location_id,omitempty"`
	Kind       ExceptionKind `json:"type"`
	Start      time.Time     `json:"start_utc"`
	End        time.Time     `json:"end_utc"`
	AllDay     bool          `json:"is_all_day"`
	Recurrence Recurrence    `json:"recurrence,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	CreatedBy  string        `json:"created_by,omitempty"`
}
