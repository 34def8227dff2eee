package domain

import (
	"errors"
	"fmt"
)

// Rejection kinds. Every business rejection wraps exactly one of these.
var (
	ErrConfiguration        = errors.New("configuration error")
	ErrNotFound             = errors.New("not found")
	ErrAvailabilityConflict = errors.New("availability conflict")
	ErrCapacityExceeded     = errors.New("capacity exceeded")
	ErrPolicyViolation      = errors.New("policy violation")
	ErrForbidden            = errors.New("forbidden")
)

// ErrStoreUnavailable marks transient store failures. Callers may retry these.
var ErrStoreUnavailable = errors.New("store temporarily unavailable")

// RejectionError carries a user-facing reason for a terminal rejection.
type RejectionError struct {
	Kind   error
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return e.Kind
}

// Reject builds a RejectionError of the given kind.
func Reject(kind error, reason string) error {
	return &RejectionError{Kind: kind, Reason: reason}
}

// Rejectf is Reject with formatting.
func Rejectf(kind error, format string, args ...any) error {
	return &RejectionError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Reason returns the user-facing message of err.
func Reason(err error) string {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return err.Error()
}

// Retryable reports whether err is a transient store failure.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// KindOf returns the rejection kind wrapped by err, or nil.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrConfiguration,
		ErrNotFound,
		ErrAvailabilityConflict,
		ErrCapacityExceeded,
		ErrPolicyViolation,
		ErrForbidden,
		ErrStoreUnavailable,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
