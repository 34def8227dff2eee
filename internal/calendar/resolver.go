// Package calendar turns a staff member's weekly schedule and exceptions into
// the free local intervals of one date.
package calendar

import (
	"context"
	"fmt"
	"sort"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/interval"
	"slotbook/internal/models"
)

// Day is the resolved calendar of one staff member on one date.
type Day struct {
	Schedule *models.WeeklySchedule
	Location *time.Location
	// Date is the calendar date at UTC midnight.
	Date time.Time
	// Bounds runs from local midnight to the next local midnight.
	Bounds      interval.Interval
	Work        []interval.Interval
	Breaks      []interval.Interval
	Occurrences []Occurrence
	Free        []interval.Interval
}

// Weekday of the day in the schedule's zone, 0 = Sunday.
func (d *Day) Weekday() time.Weekday {
	return d.Bounds.Start.Weekday()
}

// Blocked returns the time_off and blocked_time spans of the day.
func (d *Day) Blocked() []interval.Interval {
	var out []interval.Interval
	for _, o := range d.Occurrences {
		if !o.Kind.Blocking() {
			continue
		}
		if o.AllDay && o.Kind == models.ExceptionTimeOff {
			out = append(out, d.Bounds)
			continue
		}
		out = append(out, o.Span)
	}
	return interval.Merge(out)
}

// Resolver loads schedules and exceptions and resolves them into a Day.
type Resolver struct {
	repo domain.ScheduleRepository
}

func NewResolver(repo domain.ScheduleRepository) *Resolver {
	return &Resolver{repo: repo}
}

// ResolveDay returns nil without error when the staff member has no schedule for the date.
func (r *Resolver) ResolveDay(ctx context.Context, staffID string, date time.Time, locationID string) (*Day, error) {
	date = models.DateOf(date)

	candidates, err := r.repo.ListWeeklySchedules(ctx, staffID, date)
	if err != nil {
		return nil, err
	}
	schedule := SelectSchedule(candidates, date, locationID)
	if schedule == nil {
		return nil, nil
	}

	loc, err := schedule.Location()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	bounds := DayBounds(date, loc)
	work, breaks, err := r.repo.ListTimeBlocks(ctx, schedule.ID, bounds.Start.Weekday())
	if err != nil {
		return nil, err
	}

	day := &Day{
		Schedule: schedule,
		Location: loc,
		Date:     date,
		Bounds:   bounds,
		Work:     blockIntervals(work, date, loc, bounds, false),
		Breaks:   blockIntervals(breaks, date, loc, bounds, true),
	}
	base := interval.Subtract(day.Work, day.Breaks)

	exceptions, err := r.repo.ListStaffExceptions(ctx, staffID, bounds.Start.UTC(), bounds.End.UTC())
	if err != nil {
		return nil, err
	}
	day.Occurrences = Project(filterLocation(exceptions, locationID), bounds, loc)
	day.Free = ApplyExceptions(base, bounds, day.Occurrences)

	return day, nil
}

// SelectSchedule picks the active schedule for a date: location-specific over
// generic, then the default one, then the latest effective_from.
func SelectSchedule(candidates []models.WeeklySchedule, date time.Time, locationID string) *models.WeeklySchedule {
	var eligible []models.WeeklySchedule
	for _, s := range candidates {
		if !s.Covers(date) {
			continue
		}
		if locationID != "" && s.LocationID != "" && s.LocationID != locationID {
			continue
		}
		eligible = append(eligible, s)
	}
	if len(eligible) == 0 {
		return nil
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if (a.LocationID != "") != (b.LocationID != "") {
			return a.LocationID != ""
		}
		if a.IsDefault != b.IsDefault {
			return a.IsDefault
		}
		switch {
		case a.EffectiveFrom != nil && b.EffectiveFrom == nil:
			return true
		case a.EffectiveFrom == nil && b.EffectiveFrom != nil:
			return false
		case a.EffectiveFrom != nil && !a.EffectiveFrom.Equal(*b.EffectiveFrom):
			return a.EffectiveFrom.After(*b.EffectiveFrom)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	selected := eligible[0]
	return &selected
}

// DayBounds spans local midnight to the next local midnight, so DST days are 23 or 25 hours long.
func DayBounds(date time.Time, loc *time.Location) interval.Interval {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	end := time.Date(date.Year(), date.Month(), date.Day()+1, 0, 0, 0, 0, loc)
	return interval.New(start, end)
}

func blockIntervals(blocks []models.TimeBlock, date time.Time, loc *time.Location, bounds interval.Interval, clip bool) []interval.Interval {
	out := make([]interval.Interval, 0, len(blocks))
	for _, b := range blocks {
		iv := interval.New(b.Start.On(date, loc), b.End.On(date, loc))
		if iv.Empty() {
			continue
		}
		if clip {
			clipped, ok := interval.Clip(iv, bounds)
			if !ok {
				continue
			}
			iv = clipped
		}
		out = append(out, iv)
	}
	return interval.Merge(out)
}

func filterLocation(exceptions []models.StaffException, locationID string) []models.StaffException {
	if locationID == "" {
		return exceptions
	}
	out := exceptions[:0:0]
	for _, ex := range exceptions {
		if ex.LocationID == "" || ex.LocationID == locationID {
			out = append(out, ex)
		}
	}
	return out
}
