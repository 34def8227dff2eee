package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"slotbook/internal/models"
)

// LatestOperatingSchedule returns the newest active schedule covering date, or nil.
func (db *DB) LatestOperatingSchedule(ctx context.Context, serviceID string, date time.Time) (*models.OperatingSchedule, error) {
	day := formatDate(date)
	var (
		s                       models.OperatingSchedule
		cadence, createdAt      string
		openTime, closeTime     sql.NullString
		effectiveFrom, effectTo sql.NullString
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, service_id, timezone, rule_type, open_time, close_time,
		       effective_from, effective_to, is_active, created_at
		FROM service_operating_schedules
		WHERE service_id = ? AND is_active = 1
		  AND (effective_from IS NULL OR effective_from <= ?)
		  AND (effective_to IS NULL OR effective_to >= ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`, serviceID, day, day).Scan(
		&s.ID, &s.ServiceID, &s.Timezone, &cadence, &openTime, &closeTime,
		&effectiveFrom, &effectTo, &s.IsActive, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get operating schedule", err)
	}

	if s.Cadence, err = models.ParseCadence(cadence); err != nil {
		return nil, err
	}
	if s.OpenTime, err = models.ParseClockPtr(openTime.String); err != nil {
		return nil, err
	}
	if s.CloseTime, err = models.ParseClockPtr(closeTime.String); err != nil {
		return nil, err
	}
	if s.EffectiveFrom, err = datePtr(effectiveFrom); err != nil {
		return nil, err
	}
	if s.EffectiveTo, err = datePtr(effectTo); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListOperatingRules returns the schedule's rules in evaluation order.
func (db *DB) ListOperatingRules(ctx context.Context, scheduleID string) ([]models.OperatingRule, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, schedule_id, rule_type, weekday, month_day, nth, start_time, end_time
		FROM service_operating_rules
		WHERE schedule_id = ?
		ORDER BY position, rowid`, scheduleID)
	if err != nil {
		return nil, wrap("list operating rules", err)
	}
	defer rows.Close()

	var out []models.OperatingRule
	for rows.Next() {
		var (
			r                  models.OperatingRule
			kind               string
			weekday, mday, nth sql.NullInt64
			startTime, endTime sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.ScheduleID, &kind, &weekday, &mday, &nth, &startTime, &endTime); err != nil {
			return nil, wrap("scan operating rule", err)
		}
		if r.Kind, err = models.ParseRuleKind(kind); err != nil {
			return nil, err
		}
		if weekday.Valid {
			wd := time.Weekday(weekday.Int64)
			r.Weekday = &wd
		}
		r.MonthDay = intPtr(mday)
		r.Nth = intPtr(nth)
		if r.Start, err = models.ParseClockPtr(startTime.String); err != nil {
			return nil, err
		}
		if r.End, err = models.ParseClockPtr(endTime.String); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, wrap("iterate operating rules", rows.Err())
}

// ListOperatingExceptions returns the exceptions recorded for one date.
func (db *DB) ListOperatingExceptions(ctx context.Context, serviceID string, date time.Time) ([]models.OperatingException, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, service_id, date, is_open, start_time, end_time, reason
		FROM service_operating_exceptions
		WHERE service_id = ? AND date = ?
		ORDER BY rowid`, serviceID, formatDate(date))
	if err != nil {
		return nil, wrap("list operating exceptions", err)
	}
	defer rows.Close()

	var out []models.OperatingException
	for rows.Next() {
		var (
			ex                         models.OperatingException
			day                        string
			startTime, endTime, reason sql.NullString
		)
		if err := rows.Scan(&ex.ID, &ex.ServiceID, &day, &ex.IsOpen, &startTime, &endTime, &reason); err != nil {
			return nil, wrap("scan operating exception", err)
		}
		if ex.Date, err = time.Parse("2006-01-02", day); err != nil {
			return nil, err
		}
		if ex.Start, err = models.ParseClockPtr(startTime.String); err != nil {
			return nil, err
		}
		if ex.End, err = models.ParseClockPtr(endTime.String); err != nil {
			return nil, err
		}
		ex.Reason = reason.String
		out = append(out, ex)
	}
	return out, wrap("iterate operating exceptions", rows.Err())
}

// CreateOperatingSchedule stores a schedule and its ordered rules in one transaction.
func (db *DB) CreateOperatingSchedule(ctx context.Context, s *models.OperatingSchedule, rules []models.OperatingRule) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.Timezone == "" {
		s.Timezone = "UTC"
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO service_operating_schedules (id, service_id, timezone, rule_type, open_time, close_time,
		                                         effective_from, effective_to, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ServiceID, s.Timezone, string(s.Cadence), clockString(s.OpenTime), clockString(s.CloseTime),
		nullDate(s.EffectiveFrom), nullDate(s.EffectiveTo), s.IsActive, formatTime(s.CreatedAt),
	)
	if err != nil {
		return wrap("insert operating schedule", err)
	}

	for i := range rules {
		r := &rules[i]
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		r.ScheduleID = s.ID
		var weekday sql.NullInt64
		if r.Weekday != nil {
			weekday = sql.NullInt64{Int64: int64(*r.Weekday), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO service_operating_rules (id, schedule_id, rule_type, weekday, month_day, nth,
			                                     start_time, end_time, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, s.ID, string(r.Kind), weekday, nullInt(r.MonthDay), nullInt(r.Nth),
			clockString(r.Start), clockString(r.End), i,
		)
		if err != nil {
			return wrap("insert operating rule", err)
		}
	}

	return wrap("commit operating schedule", tx.Commit())
}

// CreateOperatingException stores a per-date override.
func (db *DB) CreateOperatingException(ctx context.Context, ex *models.OperatingException) error {
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO service_operating_exceptions (id, service_id, date, is_open, start_time, end_time, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.ServiceID, formatDate(ex.Date), ex.IsOpen, clockString(ex.Start), clockString(ex.End), nullString(ex.Reason),
	)
	return wrap("create operating exception", err)
}

func clockString(c *models.Clock) sql.NullString {
	if c == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: c.String(), Valid: true}
}
