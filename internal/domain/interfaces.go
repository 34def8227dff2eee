package domain

import (
	"context"
	"errors"
	"time"

	"slotbook/internal/models"
)

// ScheduleRepository serves the staff calendar: weekly schedules, blocks and exceptions.
type ScheduleRepository interface {
	ListWeeklySchedules(ctx context.Context, staffID string, date time.Time) ([]models.WeeklySchedule, error)
	ListTimeBlocks(ctx context.Context, scheduleID string, weekday time.Weekday) (work, breaks []models.TimeBlock, err error)
	ListStaffExceptions(ctx context.Context, staffID string, from, to time.Time) ([]models.StaffException, error)
}

// OperatingRepository serves service business hours.
type OperatingRepository interface {
	LatestOperatingSchedule(ctx context.Context, serviceID string, date time.Time) (*models.OperatingSchedule, error)
	ListOperatingRules(ctx context.Context, scheduleID string) ([]models.OperatingRule, error)
	ListOperatingExceptions(ctx context.Context, serviceID string, date time.Time) ([]models.OperatingException, error)
}

// CatalogRepository serves services, staff and their assignments.
type CatalogRepository interface {
	GetService(ctx context.Context, id string) (*models.Service, error)
	GetStaff(ctx context.Context, id string) (*models.Staff, error)
	ListStaff(ctx context.Context, locationID string) ([]models.Staff, error)
	GetStaffService(ctx context.Context, staffID, serviceID string) (*models.StaffService, error)
	ListStaffServices(ctx context.Context, serviceID, staffID, locationID string) ([]models.StaffService, error)
}

// OccupancyRepository answers "who sits on this staff member's time".
type OccupancyRepository interface {
	ListOccupants(ctx context.Context, q OccupancyQuery) ([]models.Occupant, error)
	CountStaffBookings(ctx context.Context, staffID string, from, to time.Time, excludeBookingID string) (int, error)
	CountCustomerBookings(ctx context.Context, staffID, customerID string, now time.Time, excludeBookingID string) (int, error)
}

// OccupancyQuery selects live bookings and holds overlapping [From, To).
type OccupancyQuery struct {
	StaffID          string
	From             time.Time
	To               time.Time
	Now              time.Time
	ExcludeBookingID string
}

// BookingRepository persists bookings and their audit trail.
type BookingRepository interface {
	OccupancyRepository
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]models.Booking, error)
	CommitBooking(ctx context.Context, c *BookingCommit) error
	UpdateBooking(ctx context.Context, u *BookingUpdate) (*models.Booking, error)
	ListBookingLogs(ctx context.Context, bookingID string) ([]models.BookingLog, error)
	ListBookingChanges(ctx context.Context, bookingID string) ([]models.BookingChange, error)
}

// BookingFilter narrows a booking listing. Zero fields match everything.
type BookingFilter struct {
	StaffID    string
	CustomerID string
	From       time.Time
	To         time.Time
	Statuses   []string
	Limit      int
	Offset     int
}

// BookingLimits are the schedule caps a commit must respect. Nil caps are
// unlimited.
type BookingLimits struct {
	MaxPerDay *int
	// DayStart and DayEnd bound the schedule's local day in UTC.
	DayStart       time.Time
	DayEnd         time.Time
	MaxPerCustomer *int
	CustomerID     string
}

// DailyReached rejects once n bookings already sit in the day.
func (l *BookingLimits) DailyReached(n int) error {
	if l == nil || l.MaxPerDay == nil {
		return nil
	}
	if *l.MaxPerDay <= 0 || n >= *l.MaxPerDay {
		return Reject(ErrCapacityExceeded, "Staff daily booking limit reached")
	}
	return nil
}

// CustomerReached rejects once the customer holds n upcoming bookings.
func (l *BookingLimits) CustomerReached(n int) error {
	if l == nil || l.MaxPerCustomer == nil || l.CustomerID == "" {
		return nil
	}
	if *l.MaxPerCustomer <= 0 || n >= *l.MaxPerCustomer {
		return Reject(ErrCapacityExceeded, "Customer booking limit reached for this staff member")
	}
	return nil
}

// BookingCommit is the insert half of a booking attempt. The store recounts
// Limits and capacity, inserts the booking, drops the actor's overlapping
// holds and appends Log in one transaction.
type BookingCommit struct {
	Booking  *models.Booking
	Capacity int
	Limits   *BookingLimits
	ActorID  string
	Now      time.Time
	Log      *models.BookingLog
}

// BookingUpdate applies a partial change to one booking. When Patch moves the
// window, capacity and Limits are re-checked inside the same transaction.
type BookingUpdate struct {
	BookingID string
	Patch     models.BookingPatch
	Capacity  int
	Limits    *BookingLimits
	ActorID   string
	Now       time.Time
	Change    *models.BookingChange
	Log       *models.BookingLog
}

// HoldRepository persists soft reservations.
type HoldRepository interface {
	CreateHold(ctx context.Context, hold *models.Hold) error
	GetHold(ctx context.Context, id string) (*models.Hold, error)
	DeleteHold(ctx context.Context, id string) error
	ListActiveHolds(ctx context.Context, staffID string, now time.Time) ([]models.Hold, error)
	DeleteExpiredHolds(ctx context.Context, before time.Time) (int64, error)
}

// Store is everything the engine reads and writes.
type Store interface {
	ScheduleRepository
	OperatingRepository
	CatalogRepository
	BookingRepository
	HoldRepository
}

// SlotCache memoizes slot listings by query signature.
type SlotCache interface {
	Get(ctx context.Context, key string) ([]models.Slot, bool, error)
	Set(ctx context.Context, key string, slots []models.Slot) error
}

// ErrLockHeld is returned by Locker.Acquire when another owner holds the key.
var ErrLockHeld = errors.New("lock held by another owner")

// Locker grants exclusive access to a resource key until release is called or ttl passes.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
