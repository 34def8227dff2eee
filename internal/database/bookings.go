package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"slotbook/internal/domain"
	"slotbook/internal/interval"
	"slotbook/internal/models"
	"slotbook/internal/occupancy"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const bookingColumns = `id, service_id, staff_id, customer_id, start_time_utc, end_time_utc, status,
	payment_status, booking_source, customer_timezone, version, created_at, updated_at`

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                                models.Booking
		tz                               sql.NullString
		start, end, createdAt, updatedAt string
	)
	if err := row.Scan(&b.ID, &b.ServiceID, &b.StaffID, &b.CustomerID, &start, &end, &b.Status,
		&b.PaymentStatus, &b.Source, &tz, &b.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	b.CustomerTimezone = tz.String
	var err error
	if b.Start, err = parseTime(start); err != nil {
		return nil, err
	}
	if b.End, err = parseTime(end); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBooking returns one booking or a not-found rejection.
func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return getBooking(ctx, db, id)
}

func getBooking(ctx context.Context, q querier, id string) (*models.Booking, error) {
	b, err := scanBooking(q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Reject(domain.ErrNotFound, "booking not found")
	}
	if err != nil {
		return nil, wrap("get booking", err)
	}
	return b, nil
}

// ListBookings returns bookings matching f ordered by start time.
func (db *DB) ListBookings(ctx context.Context, f domain.BookingFilter) ([]models.Booking, error) {
	var (
		where []string
		args  []any
	)
	if f.StaffID != "" {
		where = append(where, "staff_id = ?")
		args = append(args, f.StaffID)
	}
	if f.CustomerID != "" {
		where = append(where, "customer_id = ?")
		args = append(args, f.CustomerID)
	}
	if !f.From.IsZero() {
		where = append(where, "end_time_utc > ?")
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "start_time_utc < ?")
		args = append(args, formatTime(f.To))
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN (?"+strings.Repeat(", ?", len(f.Statuses)-1)+")")
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_time_utc, id"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list bookings", err)
	}
	defer rows.Close()

	var out []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, wrap("scan booking", err)
		}
		out = append(out, *b)
	}
	return out, wrap("iterate bookings", rows.Err())
}

// ListOccupants returns occupying bookings and live holds overlapping [From, To).
func (db *DB) ListOccupants(ctx context.Context, q domain.OccupancyQuery) ([]models.Occupant, error) {
	return listOccupants(ctx, db, q)
}

func listOccupants(ctx context.Context, qr querier, q domain.OccupancyQuery) ([]models.Occupant, error) {
	from, to := formatTime(q.From), formatTime(q.To)
	rows, err := qr.QueryContext(ctx, `
		SELECT 'booking', id, service_id, start_time_utc, end_time_utc, ''
		FROM bookings
		WHERE staff_id = ? AND status NOT IN (?, ?)
		  AND start_time_utc < ? AND end_time_utc > ? AND id <> ?
		UNION ALL
		SELECT 'hold', id, service_id, start_utc, end_utc, COALESCE(created_by, '')
		FROM booking_holds
		WHERE staff_id = ? AND expires_at_utc > ?
		  AND start_utc < ? AND end_utc > ?
		ORDER BY 4`,
		q.StaffID, models.StatusCancelled, models.StatusNoShow, to, from, q.ExcludeBookingID,
		q.StaffID, formatTime(q.Now), to, from,
	)
	if err != nil {
		return nil, wrap("list occupants", err)
	}
	defer rows.Close()

	var out []models.Occupant
	for rows.Next() {
		var (
			o          models.Occupant
			kind       string
			start, end string
		)
		if err := rows.Scan(&kind, &o.ID, &o.ServiceID, &start, &end, &o.CreatedBy); err != nil {
			return nil, wrap("scan occupant", err)
		}
		o.Kind = models.OccupantKind(kind)
		if o.Start, err = parseTime(start); err != nil {
			return nil, err
		}
		if o.End, err = parseTime(end); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, wrap("iterate occupants", rows.Err())
}

// CountStaffBookings counts occupying bookings overlapping [from, to).
func (db *DB) CountStaffBookings(ctx context.Context, staffID string, from, to time.Time, excludeBookingID string) (int, error) {
	return countStaffBookings(ctx, db, staffID, from, to, excludeBookingID)
}

func countStaffBookings(ctx context.Context, q querier, staffID string, from, to time.Time, excludeBookingID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE staff_id = ? AND status NOT IN (?, ?)
		  AND start_time_utc < ? AND end_time_utc > ? AND id <> ?`,
		staffID, models.StatusCancelled, models.StatusNoShow, formatTime(to), formatTime(from), excludeBookingID,
	).Scan(&n)
	if err != nil {
		return 0, wrap("count staff bookings", err)
	}
	return n, nil
}

// CountCustomerBookings counts the customer's upcoming live bookings with one staff member.
func (db *DB) CountCustomerBookings(ctx context.Context, staffID, customerID string, now time.Time, excludeBookingID string) (int, error) {
	return countCustomerBookings(ctx, db, staffID, customerID, now, excludeBookingID)
}

func countCustomerBookings(ctx context.Context, q querier, staffID, customerID string, now time.Time, excludeBookingID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE staff_id = ? AND customer_id = ? AND status NOT IN (?, ?, ?)
		  AND end_time_utc > ? AND id <> ?`,
		staffID, customerID, models.StatusCancelled, models.StatusNoShow, models.StatusCompleted,
		formatTime(now), excludeBookingID,
	).Scan(&n)
	if err != nil {
		return 0, wrap("count customer bookings", err)
	}
	return n, nil
}

// checkLimits recounts the schedule caps through q, so the counts and the
// write that follows share one transaction.
func checkLimits(ctx context.Context, q querier, l *domain.BookingLimits, staffID, excludeBookingID string, now time.Time) error {
	if l == nil {
		return nil
	}
	if l.MaxPerDay != nil {
		n, err := countStaffBookings(ctx, q, staffID, l.DayStart, l.DayEnd, excludeBookingID)
		if err != nil {
			return err
		}
		if err := l.DailyReached(n); err != nil {
			return err
		}
	}
	if l.MaxPerCustomer != nil && l.CustomerID != "" {
		n, err := countCustomerBookings(ctx, q, staffID, l.CustomerID, now, excludeBookingID)
		if err != nil {
			return err
		}
		if err := l.CustomerReached(n); err != nil {
			return err
		}
	}
	return nil
}

// CommitBooking re-checks the schedule caps and capacity, inserts the
// booking, drops the actor's overlapping holds and appends the audit row in
// one transaction.
func (db *DB) CommitBooking(ctx context.Context, c *domain.BookingCommit) error {
	b := c.Booking
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := c.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := checkLimits(ctx, tx, c.Limits, b.StaffID, "", now); err != nil {
		return err
	}

	occupants, err := listOccupants(ctx, tx, domain.OccupancyQuery{StaffID: b.StaffID, From: b.Start, To: b.End, Now: now})
	if err != nil {
		return err
	}
	if err := occupancy.Check(occupants, occupancy.Request{
		ServiceID: b.ServiceID,
		Window:    interval.New(b.Start, b.End),
		Capacity:  c.Capacity,
		ActorID:   c.ActorID,
	}); err != nil {
		return err
	}

	b.Version = 1
	b.CreatedAt = now
	b.UpdatedAt = now
	_, err = tx.ExecContext(ctx, `INSERT INTO bookings (`+bookingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.ServiceID, b.StaffID, b.CustomerID, formatTime(b.Start), formatTime(b.End), b.Status,
		b.PaymentStatus, b.Source, nullString(b.CustomerTimezone), b.Version, formatTime(now), formatTime(now),
	)
	if err != nil {
		return wrap("insert booking", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM booking_holds
		WHERE staff_id = ? AND start_utc < ? AND end_utc > ?
		  AND (created_by IS NULL OR created_by = ?)`,
		b.StaffID, formatTime(b.End), formatTime(b.Start), c.ActorID,
	)
	if err != nil {
		return wrap("release holds", err)
	}

	if c.Log != nil {
		c.Log.BookingID = b.ID
		if err := insertLog(ctx, tx, c.Log, now); err != nil {
			return err
		}
	}

	return wrap("commit booking", tx.Commit())
}

// UpdateBooking applies a partial change under a version bump. Moving the
// window, or reviving a cancelled booking, re-checks capacity excluding the
// booking itself; a move also recounts the schedule caps.
func (db *DB) UpdateBooking(ctx context.Context, u *domain.BookingUpdate) (*models.Booking, error) {
	now := u.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap("begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	current, err := getBooking(ctx, tx, u.BookingID)
	if err != nil {
		return nil, err
	}

	next := *current
	if u.Patch.Start != nil {
		next.Start = u.Patch.Start.UTC()
	}
	if u.Patch.End != nil {
		next.End = u.Patch.End.UTC()
	}
	if u.Patch.Status != nil {
		next.Status = *u.Patch.Status
	}
	if u.Patch.PaymentStatus != nil {
		next.PaymentStatus = *u.Patch.PaymentStatus
	}

	moved := !next.Start.Equal(current.Start) || !next.End.Equal(current.End)
	revived := !models.OccupyingStatus(current.Status) && models.OccupyingStatus(next.Status)
	if moved && models.OccupyingStatus(next.Status) {
		if err := checkLimits(ctx, tx, u.Limits, next.StaffID, next.ID, now); err != nil {
			return nil, err
		}
	}
	if (moved || revived) && models.OccupyingStatus(next.Status) {
		occupants, err := listOccupants(ctx, tx, domain.OccupancyQuery{
			StaffID:          next.StaffID,
			From:             next.Start,
			To:               next.End,
			Now:              now,
			ExcludeBookingID: next.ID,
		})
		if err != nil {
			return nil, err
		}
		if err := occupancy.Check(occupants, occupancy.Request{
			ServiceID: next.ServiceID,
			Window:    interval.New(next.Start, next.End),
			Capacity:  u.Capacity,
			ActorID:   u.ActorID,
		}); err != nil {
			return nil, err
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET start_time_utc = ?, end_time_utc = ?, status = ?, payment_status = ?,
		    version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		formatTime(next.Start), formatTime(next.End), next.Status, next.PaymentStatus,
		formatTime(now), next.ID, current.Version,
	)
	if err != nil {
		return nil, wrap("update booking", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, wrap("update booking", err)
	} else if n == 0 {
		return nil, fmt.Errorf("failed to update booking %s: %w: version changed", next.ID, domain.ErrStoreUnavailable)
	}
	next.Version = current.Version + 1
	next.UpdatedAt = now

	if u.Change != nil {
		u.Change.BookingID = next.ID
		if err := insertChange(ctx, tx, u.Change, now); err != nil {
			return nil, err
		}
	}
	if u.Log != nil {
		u.Log.BookingID = next.ID
		if err := insertLog(ctx, tx, u.Log, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, wrap("commit booking update", err)
	}
	return &next, nil
}
