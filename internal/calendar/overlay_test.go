package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"slotbook/internal/interval"
	"slotbook/internal/models"
)

func TestProjectRecurrence(t *testing.T) {
	bounds := DayBounds(monday, berlin)
	firstWeek := monday.AddDate(0, 0, -14)

	t.Run("daily", func(t *testing.T) {
		ex := models.StaffException{
			Kind:       models.ExceptionBlockedTime,
			Start:      local(firstWeek.AddDate(0, 0, 3), "12:30"),
			End:        local(firstWeek.AddDate(0, 0, 3), "13:30"),
			Recurrence: models.RecurrenceDaily,
		}
		got := Project([]models.StaffException{ex}, bounds, berlin)
		assert.Equal(t, []Occurrence{{Kind: models.ExceptionBlockedTime, Span: span(monday, "12:30", "13:30")}}, got)
	})

	t.Run("daily overnight spills into the day", func(t *testing.T) {
		ex := models.StaffException{
			Kind:       models.ExceptionBlockedTime,
			Start:      local(firstWeek, "22:00"),
			End:        local(firstWeek, "22:00").Add(4 * time.Hour),
			Recurrence: models.RecurrenceDaily,
		}
		got := Project([]models.StaffException{ex}, bounds, berlin)
		assert.Equal(t, []Occurrence{
			{Kind: models.ExceptionBlockedTime, Span: span(monday, "00:00", "02:00")},
			{Kind: models.ExceptionBlockedTime, Span: span(monday, "22:00", "24:00")},
		}, got)
	})

	t.Run("weekly on the same weekday", func(t *testing.T) {
		ex := models.StaffException{
			Kind:       models.ExceptionExtraAvailability,
			Start:      local(firstWeek, "18:00"),
			End:        local(firstWeek, "19:00"),
			Recurrence: models.RecurrenceWeekly,
		}
		got := Project([]models.StaffException{ex}, bounds, berlin)
		assert.Equal(t, []Occurrence{{Kind: models.ExceptionExtraAvailability, Span: span(monday, "18:00", "19:00")}}, got)

		tuesday := DayBounds(monday.AddDate(0, 0, 1), berlin)
		assert.Empty(t, Project([]models.StaffException{ex}, tuesday, berlin))
	})

	t.Run("recurrence starts later", func(t *testing.T) {
		ex := models.StaffException{
			Kind:       models.ExceptionBlockedTime,
			Start:      local(monday.AddDate(0, 0, 1), "10:00"),
			End:        local(monday.AddDate(0, 0, 1), "11:00"),
			Recurrence: models.RecurrenceDaily,
		}
		assert.Empty(t, Project([]models.StaffException{ex}, bounds, berlin))
	})

	t.Run("multi day time off is clipped", func(t *testing.T) {
		ex := models.StaffException{
			Kind:  models.ExceptionTimeOff,
			Start: local(monday.AddDate(0, 0, -1), "15:00"),
			End:   local(monday, "10:00"),
		}
		got := Project([]models.StaffException{ex}, bounds, berlin)
		assert.Equal(t, []Occurrence{{Kind: models.ExceptionTimeOff, Span: span(monday, "00:00", "10:00")}}, got)
	})
}

func TestApplyExceptionsOrder(t *testing.T) {
	bounds := DayBounds(monday, berlin)
	base := []interval.Interval{span(monday, "09:00", "17:00")}

	occ := []Occurrence{
		{Kind: models.ExceptionExtraAvailability, Span: span(monday, "11:00", "12:00")},
		{Kind: models.ExceptionBlockedTime, Span: span(monday, "10:00", "12:00")},
		{Kind: models.ExceptionOverrideDay, Span: span(monday, "08:00", "13:00")},
	}

	// extra availability is applied last and wins over blocked time
	got := ApplyExceptions(base, bounds, occ)
	assert.Equal(t, []interval.Interval{span(monday, "08:00", "10:00"), span(monday, "11:00", "13:00")}, got)
}
