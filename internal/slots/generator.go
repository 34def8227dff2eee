// Package slots walks resolved free intervals and emits bookable starts.
package slots

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"slotbook/internal/calendar"
	"slotbook/internal/domain"
	"slotbook/internal/interval"
	"slotbook/internal/logging"
	"slotbook/internal/models"
	"slotbook/internal/occupancy"
	"slotbook/internal/operating"
)

type Generator struct {
	store     domain.Store
	resolver  *calendar.Resolver
	operating *operating.Filter
	now       func() time.Time
	logger    *zerolog.Logger
}

func NewGenerator(store domain.Store, now func() time.Time, logger *zerolog.Logger) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{
		store:     store,
		resolver:  calendar.NewResolver(store),
		operating: operating.NewFilter(store),
		now:       now,
		logger:    logging.Component(logger, "slot_generator"),
	}
}

// Generate returns the unsorted slots of every eligible staff member.
func (g *Generator) Generate(ctx context.Context, q Query) ([]models.Slot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	customerLoc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return nil, domain.Rejectf(domain.ErrConfiguration, "invalid timezone %q", q.Timezone)
	}

	svc, err := g.store.GetService(ctx, q.ServiceID)
	if err != nil {
		return nil, err
	}
	now := g.now()
	if !svc.IsActive || svc.IsArchived || svc.Paused(now) {
		return []models.Slot{}, nil
	}

	date := models.DateOf(q.Date)
	window, err := g.operating.ForDate(ctx, svc.ID, date)
	if err != nil {
		return nil, err
	}

	assignments, err := g.store.ListStaffServices(ctx, svc.ID, q.StaffID, q.LocationID)
	if err != nil {
		return nil, err
	}

	out := []models.Slot{}
	for i := range assignments {
		a := &assignments[i]
		if !a.Available() {
			continue
		}
		if a.AdminOnly && q.Actor.IsCustomer() {
			continue
		}

		found, err := g.forStaff(ctx, q, svc, a, window, date, now, customerLoc)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}

	g.logger.Debug().
		Str("service_id", svc.ID).
		Str("date", date.Format(models.DateLayout)).
		Int("staff", len(assignments)).
		Int("slots", len(out)).
		Msg("Slots generated")
	return out, nil
}

func (g *Generator) forStaff(
	ctx context.Context,
	q Query,
	svc *models.Service,
	a *models.StaffService,
	window *operating.Window,
	date, now time.Time,
	customerLoc *time.Location,
) ([]models.Slot, error) {
	day, err := g.resolver.ResolveDay(ctx, a.StaffID, date, q.LocationID)
	if err != nil || day == nil {
		return nil, err
	}

	minNoticeCutoff := now.Add(time.Duration(q.MinNotice) * time.Minute)
	maxCutoff := now.In(day.Location).AddDate(0, 0, q.MaxBookingDays)
	if models.DateOf(day.Bounds.Start).After(models.DateOf(maxCutoff)) {
		return nil, nil
	}

	free := day.Free
	if q.WindowStart != nil && q.WindowEnd != nil {
		display, ok := interval.Clip(interval.New(q.WindowStart.On(date, day.Location), q.WindowEnd.On(date, day.Location)), day.Bounds)
		if !ok {
			return nil, nil
		}
		free = interval.Intersect(free, display)
	}
	if len(free) == 0 {
		return nil, nil
	}

	terms := a.Terms(svc)
	duration := time.Duration(terms.Duration) * time.Minute
	occupied := time.Duration(terms.Total()) * time.Minute
	step := time.Duration(q.Granularity) * time.Minute

	occupants, err := g.store.ListOccupants(ctx, domain.OccupancyQuery{
		StaffID:          a.StaffID,
		From:             day.Bounds.Start.UTC(),
		To:               day.Bounds.End.Add(occupied).UTC(),
		Now:              now,
		ExcludeBookingID: q.ExcludeBookingID,
	})
	if err != nil {
		return nil, err
	}

	blocked := day.Blocked()

	var out []models.Slot
	for _, iv := range free {
		for cursor := RoundUp(iv.Start.In(day.Location), q.Granularity); !cursor.Add(occupied).After(iv.End); cursor = cursor.Add(step) {
			if cursor.Before(minNoticeCutoff) {
				continue
			}
			if cursor.After(maxCutoff) {
				return out, nil
			}

			end := cursor.Add(duration)
			span := interval.New(cursor, cursor.Add(occupied))
			// Extra availability never reopens time_off or blocked_time for booking.
			if interval.AnyOverlap(blocked, span) {
				continue
			}
			if !window.Allows(span.Start, span.End) {
				continue
			}
			probe := occupancy.Request{
				ServiceID: svc.ID,
				Window:    span,
				Capacity:  terms.Capacity,
				ActorID:   q.Actor.ID,
			}
			if occupancy.Check(occupants, probe) != nil {
				continue
			}

			out = append(out, models.Slot{
				Start:     cursor.In(customerLoc),
				End:       end.In(customerLoc),
				StaffID:   a.StaffID,
				StaffName: a.StaffName,
			})
		}
	}
	return out, nil
}

// RoundUp moves t forward to the next multiple of granularity minutes counted
// from local midnight in t's location. Aligned times are returned unchanged.
func RoundUp(t time.Time, granularity int) time.Time {
	minutes := t.Hour()*60 + t.Minute()
	if minutes%granularity == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t
	}
	next := (minutes/granularity + 1) * granularity
	return time.Date(t.Year(), t.Month(), t.Day(), 0, next, 0, 0, t.Location())
}
