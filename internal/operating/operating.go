// Package operating decides whether a window falls inside a service's business hours.
package operating

import (
	"context"
	"fmt"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/interval"
	"slotbook/internal/models"
)

// Window is the operating state of one service on one calendar date.
// A nil schedule leaves the service unrestricted.
type Window struct {
	schedule   *models.OperatingSchedule
	rules      []models.OperatingRule
	exceptions []models.OperatingException
	loc        *time.Location
	date       time.Time
}

// Unrestricted is the window of a service without business hours.
func Unrestricted() *Window {
	return &Window{}
}

// NewWindow binds loaded rows to a date. The schedule's timezone must be valid.
func NewWindow(schedule *models.OperatingSchedule, rules []models.OperatingRule, exceptions []models.OperatingException, date time.Time) (*Window, error) {
	w := &Window{date: models.DateOf(date)}
	if schedule == nil {
		return w, nil
	}

	tz := schedule.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: operating schedule %s has invalid timezone %q", domain.ErrConfiguration, schedule.ID, schedule.Timezone)
	}

	w.schedule = schedule
	w.rules = rules
	w.exceptions = exceptions
	w.loc = loc
	return w, nil
}

// Evaluate is the one-shot form of NewWindow(...).Allows. Windows it cannot
// evaluate are not allowed.
func Evaluate(schedule *models.OperatingSchedule, rules []models.OperatingRule, exceptions []models.OperatingException, date, start, end time.Time) bool {
	w, err := NewWindow(schedule, rules, exceptions, date)
	if err != nil {
		return false
	}
	return w.Allows(start, end)
}

// Allows reports whether [start, end) lies inside the operating hours of the date.
func (w *Window) Allows(start, end time.Time) bool {
	if w == nil || w.schedule == nil {
		return true
	}
	candidate := interval.New(start, end)

	if len(w.exceptions) > 0 {
		var overrides []models.OperatingException
		closed, openAllDay := false, false
		for _, ex := range w.exceptions {
			switch {
			case ex.IsOpen && ex.Start != nil && ex.End != nil:
				overrides = append(overrides, ex)
			case !ex.IsOpen:
				closed = true
			default:
				openAllDay = true
			}
		}

		if len(overrides) > 0 {
			for _, ex := range overrides {
				if w.bound(*ex.Start, *ex.End).Contains(candidate) {
					return true
				}
			}
			return false
		}
		if closed {
			return false
		}
		if openAllDay {
			return w.bound(models.Clock{}, models.Clock{Hour: 24}).Contains(candidate)
		}
	}

	if w.schedule.Cadence == models.CadenceDaily {
		return w.withinHours(nil, nil, candidate)
	}

	for _, rule := range w.rules {
		if !w.matches(rule) {
			continue
		}
		return w.withinHours(rule.Start, rule.End, candidate)
	}
	return false
}

// withinHours bounds the candidate by the rule's times, falling back to the
// schedule's open/close. Without either the whole date is allowed.
func (w *Window) withinHours(start, end *models.Clock, candidate interval.Interval) bool {
	if start != nil && end != nil {
		return w.bound(*start, *end).Contains(candidate)
	}
	if w.schedule.OpenTime != nil && w.schedule.CloseTime != nil {
		return w.bound(*w.schedule.OpenTime, *w.schedule.CloseTime).Contains(candidate)
	}
	return true
}

func (w *Window) bound(start, end models.Clock) interval.Interval {
	return interval.New(start.On(w.date, w.loc), end.On(w.date, w.loc))
}

func (w *Window) matches(rule models.OperatingRule) bool {
	switch w.schedule.Cadence {
	case models.CadenceWeekly:
		return rule.Kind == models.RuleWeekly && rule.Weekday != nil && *rule.Weekday == w.date.Weekday()
	case models.CadenceMonthly:
		switch rule.Kind {
		case models.RuleMonthlyDay:
			return rule.MonthDay != nil && *rule.MonthDay == w.date.Day()
		case models.RuleMonthlyNthWeekday:
			return rule.Weekday != nil && rule.Nth != nil && IsNthWeekday(w.date, *rule.Weekday, *rule.Nth)
		}
	}
	return false
}

// IsNthWeekday reports whether date is the nth weekday of its month. nth = -1 means the last one.
func IsNthWeekday(date time.Time, weekday time.Weekday, nth int) bool {
	if date.Weekday() != weekday {
		return false
	}
	if nth == -1 {
		lastDay := time.Date(date.Year(), date.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
		return date.Day()+7 > lastDay
	}
	return (date.Day()-1)/7+1 == nth
}

// Filter loads operating windows from the store.
type Filter struct {
	repo domain.OperatingRepository
}

func NewFilter(repo domain.OperatingRepository) *Filter {
	return &Filter{repo: repo}
}

// ForDate loads the latest active schedule covering date, its rules and the
// date's exceptions.
func (f *Filter) ForDate(ctx context.Context, serviceID string, date time.Time) (*Window, error) {
	date = models.DateOf(date)

	schedule, err := f.repo.LatestOperatingSchedule(ctx, serviceID, date)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return Unrestricted(), nil
	}

	exceptions, err := f.repo.ListOperatingExceptions(ctx, serviceID, date)
	if err != nil {
		return nil, err
	}

	var rules []models.OperatingRule
	if schedule.Cadence != models.CadenceDaily {
		rules, err = f.repo.ListOperatingRules(ctx, schedule.ID)
		if err != nil {
			return nil, err
		}
	}

	return NewWindow(schedule, rules, exceptions, date)
}
