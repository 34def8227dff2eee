package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
	StatusNoShow    = "no-show"
)

const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentRefunded = "refunded"
	PaymentFailed   = "failed"
)

const (
	SourceWeb    = "web"
	SourceSocial = "social"
	SourceAdmin  = "admin"
	SourceAPI    = "api"
)

const (
	// DefaultSlotGranularityMinutes is the slot step used when a query does not name one.
	DefaultSlotGranularityMinutes = 15

	// DefaultMinNoticeMinutes is how far ahead of now the first bookable slot starts.
	DefaultMinNoticeMinutes = 120

	// DefaultMaxBookingDays bounds how far into the future slots are offered.
	DefaultMaxBookingDays = 90

	// DefaultSlotCacheTTL is the lifetime of a cached slot listing, in seconds.
	DefaultSlotCacheTTL = 60

	// DefaultSlotPageLimit caps a slot listing when the caller sends no limit.
	DefaultSlotPageLimit = 200
)

// AllowedGranularities lists the only accepted slot steps in minutes.
var AllowedGranularities = []int{5, 10, 15, 30}

// ValidGranularity reports whether minutes is one of AllowedGranularities.
func ValidGranularity(minutes int) bool {
	for _, g := range AllowedGranularities {
		if g == minutes {
			return true
		}
	}
	return false
}

// ValidStatus reports whether s is a known booking status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// ValidPaymentStatus reports whether s is a known payment status.
func ValidPaymentStatus(s string) bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentRefunded, PaymentFailed:
		return true
	}
	return false
}

// ValidSource reports whether s is a known booking source.
func ValidSource(s string) bool {
	switch s {
	case SourceWeb, SourceSocial, SourceAdmin, SourceAPI:
		return true
	}
	return false
}

// OccupyingStatus reports whether a booking in status s still holds its time window.
func OccupyingStatus(s string) bool {
	return s != StatusCancelled && s != StatusNoShow
}

// TerminalStatus reports whether a booking in status s can no longer be rescheduled.
func TerminalStatus(s string) bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusNoShow
}
