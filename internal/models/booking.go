package models

import (
	"encoding/json"
	"time"
)

type Booking struct {
	ID               string    `json:"id"`
	ServiceID        string    `json:"service_id"`
	StaffID          string    `json:"staff_id"`
	CustomerID       string    `json:"customer_id"`
	Start            time.Time `json:"start_time_utc"`
	End              time.Time `json:"end_time_utc"`
	Status           string    `json:"status"` // pending, confirmed, cancelled, completed, no-show
	PaymentStatus    string    `json:"payment_status"`
	Source           string    `json:"booking_source"`
	CustomerTimezone string    `json:"customer_timezone"`
	Version          int64     `json:"version"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// BookingPatch lists the fields an update may change. Nil fields stay as stored.
type BookingPatch struct {
	Start         *time.Time
	End           *time.Time
	Status        *string
	PaymentStatus *string
}

// Empty reports whether the patch changes nothing.
func (p BookingPatch) Empty() bool {
	return p.Start == nil && p.End == nil && p.Status == nil && p.PaymentStatus == nil
}

type Hold struct {
	ID         string    `json:"id"`
	StaffID    string    `json:"staff_id"`
	ServiceID  string    `json:"service_id"`
	LocationID string    `json:"location_id,omitempty"`
	Start      time.Time `json:"start_utc"`
	End        time.Time `json:"end_utc"`
	ExpiresAt  time.Time `json:"expires_at_utc"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// Active is the only liveness rule for holds.
func (h *Hold) Active(now time.Time) bool {
	return h.ExpiresAt.After(now)
}

// OccupantKind tells bookings and holds apart in capacity checks.
type OccupantKind string

const (
	OccupantBooking OccupantKind = "booking"
	OccupantHold    OccupantKind = "hold"
)

// Occupant is a booking or live hold sitting on a staff member's time.
type Occupant struct {
	Kind      OccupantKind
	ID        string
	ServiceID string
	Start     time.Time
	End       time.Time
	CreatedBy string
}

// BookingLog is an append-only audit row per booking action.
type BookingLog struct {
	ID          string          `json:"id"`
	BookingID   string          `json:"booking_id"`
	Action      string          `json:"action"`
	PerformedBy string          `json:"performed_by"`
	Details     json.RawMessage `json:"details,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

const (
	LogActionCreated       = "created"
	LogActionRescheduled   = "rescheduled"
	LogActionCancelled     = "cancelled"
	LogActionStatusUpdated = "status_updated"
	LogActionPaymentUpdate = "payment_updated"
	LogActionUpdated       = "updated"
)

// BookingChange records reschedules and cancellations.
type BookingChange struct {
	ID         string     `json:"id"`
	BookingID  string     `json:"booking_id"`
	OldStart   *time.Time `json:"old_start_time,omitempty"`
	NewStart   *time.Time `json:"new_start_time,omitempty"`
	ChangeType string     `json:"change_type"`
	ChangedBy  string     `json:"changed_by"`
	Reason     string     `json:"reason,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

const (
	ChangeReschedule   = "reschedule"
	ChangeCancel       = "cancel"
	ChangeStatusUpdate = "status_update"
)
