package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"slotbook/internal/models"
)

// ListWeeklySchedules returns the staff member's schedules whose effective window covers date.
func (db *DB) ListWeeklySchedules(ctx context.Context, staffID string, date time.Time) ([]models.WeeklySchedule, error) {
	day := formatDate(date)
	rows, err := db.QueryContext(ctx, `
		SELECT id, staff_id, location_id, timezone, effective_from, effective_to, is_default,
		       max_slots_per_day, max_bookings_per_day, max_bookings_per_customer, created_at
		FROM staff_weekly_schedules
		WHERE staff_id = ?
		  AND (effective_from IS NULL OR effective_from <= ?)
		  AND (effective_to IS NULL OR effective_to >= ?)
		ORDER BY created_at`, staffID, day, day)
	if err != nil {
		return nil, wrap("list weekly schedules", err)
	}
	defer rows.Close()

	var out []models.WeeklySchedule
	for rows.Next() {
		var (
			s                             models.WeeklySchedule
			loc, from, to                 sql.NullString
			maxSlots, maxDay, maxCustomer sql.NullInt64
			createdAt                     string
		)
		if err := rows.Scan(&s.ID, &s.StaffID, &loc, &s.Timezone, &from, &to, &s.IsDefault,
			&maxSlots, &maxDay, &maxCustomer, &createdAt); err != nil {
			return nil, wrap("scan weekly schedule", err)
		}
		s.LocationID = loc.String
		s.MaxSlotsPerDay = intPtr(maxSlots)
		s.MaxBookingsPerDay = intPtr(maxDay)
		s.MaxBookingsPerCustomer = intPtr(maxCustomer)
		if s.EffectiveFrom, err = datePtr(from); err != nil {
			return nil, err
		}
		if s.EffectiveTo, err = datePtr(to); err != nil {
			return nil, err
		}
		if s.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, wrap("iterate weekly schedules", rows.Err())
}

// ListTimeBlocks returns the work and break blocks of one weekday.
func (db *DB) ListTimeBlocks(ctx context.Context, scheduleID string, weekday time.Weekday) ([]models.TimeBlock, []models.TimeBlock, error) {
	work, err := db.listBlocks(ctx, "staff_work_blocks", scheduleID, weekday)
	if err != nil {
		return nil, nil, err
	}
	breaks, err := db.listBlocks(ctx, "staff_break_blocks", scheduleID, weekday)
	if err != nil {
		return nil, nil, err
	}
	return work, breaks, nil
}

func (db *DB) listBlocks(ctx context.Context, table, scheduleID string, weekday time.Weekday) ([]models.TimeBlock, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, schedule_id, weekday, start_time_local, end_time_local
		FROM `+table+`
		WHERE schedule_id = ? AND weekday = ?
		ORDER BY start_time_local`, scheduleID, int(weekday))
	if err != nil {
		return nil, wrap("list "+table, err)
	}
	defer rows.Close()

	var out []models.TimeBlock
	for rows.Next() {
		var (
			b          models.TimeBlock
			wd         int
			start, end string
		)
		if err := rows.Scan(&b.ID, &b.ScheduleID, &wd, &start, &end); err != nil {
			return nil, wrap("scan "+table, err)
		}
		b.Weekday = time.Weekday(wd)
		if b.Start, err = models.ParseClock(start); err != nil {
			return nil, fmt.Errorf("block %s: %w", b.ID, err)
		}
		if b.End, err = models.ParseClock(end); err != nil {
			return nil, fmt.Errorf("block %s: %w", b.ID, err)
		}
		out = append(out, b)
	}
	return out, wrap("iterate "+table, rows.Err())
}

// ListStaffExceptions returns one-off exceptions overlapping [from, to) and
// recurring exceptions that started before to.
func (db *DB) ListStaffExceptions(ctx context.Context, staffID string, from, to time.Time) ([]models.StaffException, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, staff_id, location_id, type, start_utc, end_utc, is_all_day, recurrence, reason, created_by
		FROM staff_exceptions
		WHERE staff_id = ?
		  AND start_utc < ?
		  AND (recurrence <> '' OR end_utc > ?)
		ORDER BY start_utc`, staffID, formatTime(to), formatTime(from))
	if err != nil {
		return nil, wrap("list staff exceptions", err)
	}
	defer rows.Close()

	var out []models.StaffException
	for rows.Next() {
		var (
			ex                          models.StaffException
			loc, reason, createdBy      sql.NullString
			kind, start, end, recurring string
		)
		if err := rows.Scan(&ex.ID, &ex.StaffID, &loc, &kind, &start, &end, &ex.AllDay, &recurring, &reason, &createdBy); err != nil {
			return nil, wrap("scan staff exception", err)
		}
		ex.LocationID = loc.String
		ex.Reason = reason.String
		ex.CreatedBy = createdBy.String
		if ex.Kind, err = models.ParseExceptionKind(kind); err != nil {
			return nil, err
		}
		if ex.Recurrence, err = models.ParseRecurrence(recurring); err != nil {
			return nil, err
		}
		if ex.Start, err = parseTime(start); err != nil {
			return nil, err
		}
		if ex.End, err = parseTime(end); err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, wrap("iterate staff exceptions", rows.Err())
}

// CreateWeeklySchedule stores a schedule with its work and break blocks in one transaction.
func (db *DB) CreateWeeklySchedule(ctx context.Context, s *models.WeeklySchedule, work, breaks []models.TimeBlock) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO staff_weekly_schedules (id, staff_id, location_id, timezone, effective_from, effective_to,
		                                    is_default, max_slots_per_day, max_bookings_per_day,
		                                    max_bookings_per_customer, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.StaffID, nullString(s.LocationID), s.Timezone, nullDate(s.EffectiveFrom), nullDate(s.EffectiveTo),
		s.IsDefault, nullInt(s.MaxSlotsPerDay), nullInt(s.MaxBookingsPerDay),
		nullInt(s.MaxBookingsPerCustomer), formatTime(s.CreatedAt),
	)
	if err != nil {
		return wrap("insert weekly schedule", err)
	}

	for table, blocks := range map[string][]models.TimeBlock{"staff_work_blocks": work, "staff_break_blocks": breaks} {
		for i := range blocks {
			b := &blocks[i]
			if b.ID == "" {
				b.ID = uuid.NewString()
			}
			b.ScheduleID = s.ID
			_, err = tx.ExecContext(ctx, `INSERT INTO `+table+` (id, schedule_id, weekday, start_time_local, end_time_local)
				VALUES (?, ?, ?, ?, ?)`, b.ID, s.ID, int(b.Weekday), b.Start.String(), b.End.String())
			if err != nil {
				return wrap("insert "+table, err)
			}
		}
	}

	return wrap("commit weekly schedule", tx.Commit())
}

// CreateStaffException stores one exception.
func (db *DB) CreateStaffException(ctx context.Context, ex *models.StaffException) error {
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO staff_exceptions (id, staff_id, location_id, type, start_utc, end_utc,
		                              is_all_day, recurrence, reason, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.StaffID, nullString(ex.LocationID), string(ex.Kind), formatTime(ex.Start), formatTime(ex.End),
		ex.AllDay, string(ex.Recurrence), nullString(ex.Reason), nullString(ex.CreatedBy), formatTime(time.Now()),
	)
	return wrap("create staff exception", err)
}
