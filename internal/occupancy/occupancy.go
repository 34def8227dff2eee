// Package occupancy decides whether a window still has room for one more booking.
package occupancy

import (
	"slotbook/internal/domain"
	"slotbook/internal/interval"
	"slotbook/internal/models"
)

// Request describes the window a caller wants to occupy.
type Request struct {
	ServiceID string
	Window    interval.Interval
	Capacity  int
	// ActorID's own holds never count against it.
	ActorID string
}

// Check applies the capacity rule to the occupants of a staff member's time.
// A different-service occupant always conflicts. Same-service occupants count
// toward Capacity: with capacity 1 any occupant rejects, above 1 the window is
// full once the count reaches capacity.
func Check(occupants []models.Occupant, req Request) error {
	same := 0
	for i := range occupants {
		o := &occupants[i]
		if !req.Window.Overlaps(interval.New(o.Start, o.End)) {
			continue
		}
		if o.Kind == models.OccupantHold && req.ActorID != "" && o.CreatedBy == req.ActorID {
			continue
		}
		if o.ServiceID != req.ServiceID {
			return domain.Reject(domain.ErrAvailabilityConflict, "time slot is not available")
		}
		same++
	}

	capacity := req.Capacity
	if capacity <= 1 {
		if same > 0 {
			return domain.Reject(domain.ErrAvailabilityConflict, "time slot is not available")
		}
		return nil
	}
	if same >= capacity {
		return domain.Reject(domain.ErrCapacityExceeded, "time slot is full")
	}
	return nil
}
