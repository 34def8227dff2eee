package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"slotbook/internal/models"
)

func insertLog(ctx context.Context, q querier, l *models.BookingLog, now time.Time) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.CreatedAt = now
	var details sql.NullString
	if len(l.Details) > 0 {
		details = sql.NullString{String: string(l.Details), Valid: true}
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO booking_logs (id, booking_id, action, performed_by, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.BookingID, l.Action, nullString(l.PerformedBy), details, formatTime(now),
	)
	return wrap("insert booking log", err)
}

func insertChange(ctx context.Context, q querier, c *models.BookingChange, now time.Time) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = now
	_, err := q.ExecContext(ctx, `
		INSERT INTO booking_changes (id, booking_id, old_start_time, new_start_time, change_type,
		                             changed_by, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.BookingID, nullTime(c.OldStart), nullTime(c.NewStart), c.ChangeType,
		nullString(c.ChangedBy), nullString(c.Reason), formatTime(now),
	)
	return wrap("insert booking change", err)
}

// ListBookingLogs returns the booking's audit rows, newest first.
func (db *DB) ListBookingLogs(ctx context.Context, bookingID string) ([]models.BookingLog, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, booking_id, action, performed_by, details, created_at
		FROM booking_logs
		WHERE booking_id = ?
		ORDER BY created_at DESC, rowid DESC`, bookingID)
	if err != nil {
		return nil, wrap("list booking logs", err)
	}
	defer rows.Close()

	var out []models.BookingLog
	for rows.Next() {
		var (
			l                    models.BookingLog
			performedBy, details sql.NullString
			createdAt            string
		)
		if err := rows.Scan(&l.ID, &l.BookingID, &l.Action, &performedBy, &details, &createdAt); err != nil {
			return nil, wrap("scan booking log", err)
		}
		l.PerformedBy = performedBy.String
		if details.Valid && details.String != "" {
			l.Details = []byte(details.String)
		}
		if l.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, wrap("iterate booking logs", rows.Err())
}

// ListBookingChanges returns reschedules and cancellations of a booking, newest first.
func (db *DB) ListBookingChanges(ctx context.Context, bookingID string) ([]models.BookingChange, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, booking_id, old_start_time, new_start_time, change_type, changed_by, reason, created_at
		FROM booking_changes
		WHERE booking_id = ?
		ORDER BY created_at DESC, rowid DESC`, bookingID)
	if err != nil {
		return nil, wrap("list booking changes", err)
	}
	defer rows.Close()

	var out []models.BookingChange
	for rows.Next() {
		var (
			c                  models.BookingChange
			oldStart, newStart sql.NullString
			changedBy, reason  sql.NullString
			createdAt          string
		)
		if err := rows.Scan(&c.ID, &c.BookingID, &oldStart, &newStart, &c.ChangeType, &changedBy, &reason, &createdAt); err != nil {
			return nil, wrap("scan booking change", err)
		}
		c.ChangedBy = changedBy.String
		c.Reason = reason.String
		if c.OldStart, err = timePtr(oldStart); err != nil {
			return nil, err
		}
		if c.NewStart, err = timePtr(newStart); err != nil {
			return nil, err
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, wrap("iterate booking changes", rows.Err())
}
