package calendar

import (
	"time"

	"slotbook/internal/interval"
	"slotbook/internal/models"
)

// Occurrence is one exception instance clipped to a day.
type Occurrence struct {
	Kind   models.ExceptionKind
	Span   interval.Interval
	AllDay bool
}

// Project expands exceptions, including recurring ones, into occurrences inside bounds.
func Project(exceptions []models.StaffException, bounds interval.Interval, loc *time.Location) []Occurrence {
	var out []Occurrence
	for _, ex := range exceptions {
		for _, span := range instances(ex, bounds, loc) {
			clipped, ok := interval.Clip(span, bounds)
			if !ok {
				continue
			}
			out = append(out, Occurrence{Kind: ex.Kind, Span: clipped, AllDay: ex.AllDay})
		}
	}
	return out
}

func instances(ex models.StaffException, bounds interval.Interval, loc *time.Location) []interval.Interval {
	original := interval.New(ex.Start, ex.End)

	var offsets []int
	switch ex.Recurrence {
	case models.RecurrenceDaily:
		d := daysBetween(ex.Start.In(loc), bounds.Start)
		offsets = []int{d - 1, d}
	case models.RecurrenceWeekly:
		d := daysBetween(ex.Start.In(loc), bounds.Start)
		offsets = []int{d - d%7}
	default:
		return []interval.Interval{original}
	}

	var out []interval.Interval
	for _, off := range offsets {
		if off < 0 {
			continue
		}
		out = append(out, shiftDays(original, off, loc))
	}
	return out
}

func daysBetween(from, to time.Time) int {
	return int(models.DateOf(to).Sub(models.DateOf(from)).Hours() / 24)
}

// shiftDays moves a span by whole local days, keeping its wall-clock start and length.
func shiftDays(span interval.Interval, days int, loc *time.Location) interval.Interval {
	local := span.Start.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day()+days,
		local.Hour(), local.Minute(), local.Second(), local.Nanosecond(), loc)
	return interval.New(start, start.Add(span.Duration()))
}

// ApplyExceptions overlays occurrences on the base free set in fixed order:
// override_day replaces, time_off and blocked_time subtract, extra_availability adds.
func ApplyExceptions(free []interval.Interval, bounds interval.Interval, occurrences []Occurrence) []interval.Interval {
	var override, timeOff, blocked, extra []interval.Interval

	for _, o := range occurrences {
		switch o.Kind {
		case models.ExceptionOverrideDay:
			override = append(override, o.Span)
		case models.ExceptionTimeOff:
			if o.AllDay {
				timeOff = append(timeOff, bounds)
			} else {
				timeOff = append(timeOff, o.Span)
			}
		case models.ExceptionBlockedTime:
			blocked = append(blocked, o.Span)
		case models.ExceptionExtraAvailability:
			extra = append(extra, o.Span)
		}
	}

	if len(override) > 0 {
		free = interval.Merge(override)
	}
	free = interval.Subtract(free, timeOff)
	free = interval.Subtract(free, blocked)
	return interval.Union(free, extra)
}
