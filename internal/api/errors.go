package api

import (
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"slotbook/internal/domain"
)

// httpStatus maps an engine error onto the HTTP status a client sees.
func httpStatus(err error) int {
	switch domain.KindOf(err) {
	case domain.ErrConfiguration:
		return http.StatusBadRequest
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrAvailabilityConflict, domain.ErrCapacityExceeded:
		return http.StatusConflict
	case domain.ErrPolicyViolation:
		return http.StatusUnprocessableEntity
	case domain.ErrForbidden:
		return http.StatusForbidden
	case domain.ErrStoreUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func grpcCode(err error) codes.Code {
	switch domain.KindOf(err) {
	case domain.ErrConfiguration:
		return codes.InvalidArgument
	case domain.ErrNotFound:
		return codes.NotFound
	case domain.ErrAvailabilityConflict:
		return codes.AlreadyExists
	case domain.ErrCapacityExceeded:
		return codes.ResourceExhausted
	case domain.ErrPolicyViolation:
		return codes.FailedPrecondition
	case domain.ErrForbidden:
		return codes.PermissionDenied
	case domain.ErrStoreUnavailable:
		return codes.Unavailable
	}
	return codes.Internal
}

// kindName is the machine-readable error kind in HTTP error bodies.
func kindName(err error) string {
	switch domain.KindOf(err) {
	case domain.ErrConfiguration:
		return "configuration"
	case domain.ErrNotFound:
		return "not_found"
	case domain.ErrAvailabilityConflict:
		return "availability_conflict"
	case domain.ErrCapacityExceeded:
		return "capacity_exceeded"
	case domain.ErrPolicyViolation:
		return "policy_violation"
	case domain.ErrForbidden:
		return "forbidden"
	case domain.ErrStoreUnavailable:
		return "store_unavailable"
	}
	return "internal"
}

// publicMessage hides internal failures behind a generic text.
func publicMessage(err error) string {
	switch domain.KindOf(err) {
	case nil:
		return "internal error"
	case domain.ErrStoreUnavailable:
		return "store temporarily unavailable, retry later"
	}
	return domain.Reason(err)
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(grpcCode(err), publicMessage(err))
}
