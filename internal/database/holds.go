package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

const holdColumns = `id, staff_id, service_id, location_id, start_utc, end_utc, expires_at_utc, created_by, created_at`

func scanHold(row rowScanner) (*models.Hold, error) {
	var (
		h                              models.Hold
		loc, createdBy                 sql.NullString
		start, end, expires, createdAt string
	)
	if err := row.Scan(&h.ID, &h.StaffID, &h.ServiceID, &loc, &start, &end, &expires, &createdBy, &createdAt); err != nil {
		return nil, err
	}
	h.LocationID = loc.String
	h.CreatedBy = createdBy.String
	var err error
	if h.Start, err = parseTime(start); err != nil {
		return nil, err
	}
	if h.End, err = parseTime(end); err != nil {
		return nil, err
	}
	if h.ExpiresAt, err = parseTime(expires); err != nil {
		return nil, err
	}
	if h.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &h, nil
}

// CreateHold stores a soft reservation.
func (db *DB) CreateHold(ctx context.Context, h *models.Hold) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, `INSERT INTO booking_holds (`+holdColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.StaffID, h.ServiceID, nullString(h.LocationID), formatTime(h.Start), formatTime(h.End),
		formatTime(h.ExpiresAt), nullString(h.CreatedBy), formatTime(h.CreatedAt),
	)
	return wrap("create hold", err)
}

// GetHold returns a hold whether or not it has expired.
func (db *DB) GetHold(ctx context.Context, id string) (*models.Hold, error) {
	h, err := scanHold(db.QueryRowContext(ctx, `SELECT `+holdColumns+` FROM booking_holds WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Reject(domain.ErrNotFound, "hold not found")
	}
	if err != nil {
		return nil, wrap("get hold", err)
	}
	return h, nil
}

// DeleteHold releases a hold.
func (db *DB) DeleteHold(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM booking_holds WHERE id = ?`, id)
	if err != nil {
		return wrap("delete hold", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("delete hold", err)
	}
	if n == 0 {
		return domain.Reject(domain.ErrNotFound, "hold not found")
	}
	return nil
}

// ListActiveHolds returns the staff member's unexpired holds ordered by start.
func (db *DB) ListActiveHolds(ctx context.Context, staffID string, now time.Time) ([]models.Hold, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+holdColumns+` FROM booking_holds
		WHERE staff_id = ? AND expires_at_utc > ?
		ORDER BY start_utc`, staffID, formatTime(now))
	if err != nil {
		return nil, wrap("list holds", err)
	}
	defer rows.Close()

	var out []models.Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, wrap("scan hold", err)
		}
		out = append(out, *h)
	}
	return out, wrap("iterate holds", rows.Err())
}

// DeleteExpiredHolds removes holds that expired at or before the cutoff.
func (db *DB) DeleteExpiredHolds(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM booking_holds WHERE expires_at_utc <= ?`, formatTime(before))
	if err != nil {
		return 0, wrap("delete expired holds", err)
	}
	n, err := res.RowsAffected()
	return n, wrap("delete expired holds", err)
}
