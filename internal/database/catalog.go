package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

func (db *DB) GetService(ctx context.Context, id string) (*models.Service, error) {
	var (
		svc                     models.Service
		pausedFrom, pausedUntil sql.NullString
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, name, duration_minutes, buffer_minutes, max_capacity,
		       is_active, is_archived, paused_from, paused_until
		FROM services WHERE id = ?`, id).Scan(
		&svc.ID, &svc.Name, &svc.DurationMinutes, &svc.BufferMinutes, &svc.MaxCapacity,
		&svc.IsActive, &svc.IsArchived, &pausedFrom, &pausedUntil,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Reject(domain.ErrNotFound, "service not found")
	}
	if err != nil {
		return nil, wrap("get service", err)
	}

	if svc.PausedFrom, err = timePtr(pausedFrom); err != nil {
		return nil, err
	}
	if svc.PausedUntil, err = timePtr(pausedUntil); err != nil {
		return nil, err
	}
	return &svc, nil
}

func (db *DB) GetStaff(ctx context.Context, id string) (*models.Staff, error) {
	var (
		st  models.Staff
		loc sql.NullString
	)
	err := db.QueryRowContext(ctx, `SELECT id, full_name, location_id FROM staff WHERE id = ?`, id).
		Scan(&st.ID, &st.FullName, &loc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Reject(domain.ErrNotFound, "staff member not found")
	}
	if err != nil {
		return nil, wrap("get staff", err)
	}
	st.LocationID = loc.String
	return &st, nil
}

// ListStaff returns staff at locationID plus staff without a home location. Empty locationID lists everyone.
func (db *DB) ListStaff(ctx context.Context, locationID string) ([]models.Staff, error) {
	query := `SELECT id, full_name, location_id FROM staff`
	var args []any
	if locationID != "" {
		query += ` WHERE location_id IS NULL OR location_id = ?`
		args = append(args, locationID)
	}
	query += ` ORDER BY full_name, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list staff", err)
	}
	defer rows.Close()

	var out []models.Staff
	for rows.Next() {
		var (
			st  models.Staff
			loc sql.NullString
		)
		if err := rows.Scan(&st.ID, &st.FullName, &loc); err != nil {
			return nil, wrap("scan staff", err)
		}
		st.LocationID = loc.String
		out = append(out, st)
	}
	return out, wrap("iterate staff", rows.Err())
}

const staffServiceColumns = `
	ss.staff_id, st.full_name, st.location_id, ss.service_id,
	ss.duration_override, ss.buffer_override, ss.capacity_override,
	ss.is_bookable, ss.is_temporarily_unavailable, ss.admin_only`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStaffService(row rowScanner) (*models.StaffService, error) {
	var (
		a                          models.StaffService
		loc                        sql.NullString
		duration, buffer, capacity sql.NullInt64
	)
	if err := row.Scan(
		&a.StaffID, &a.StaffName, &loc, &a.ServiceID,
		&duration, &buffer, &capacity,
		&a.IsBookable, &a.IsTemporarilyUnavailable, &a.AdminOnly,
	); err != nil {
		return nil, err
	}
	a.StaffLocationID = loc.String
	a.DurationOverride = intPtr(duration)
	a.BufferOverride = intPtr(buffer)
	a.CapacityOverride = intPtr(capacity)
	return &a, nil
}

// GetStaffService returns nil without error when the staff member is not assigned to the service.
func (db *DB) GetStaffService(ctx context.Context, staffID, serviceID string) (*models.StaffService, error) {
	row := db.QueryRowContext(ctx, `SELECT `+staffServiceColumns+`
		FROM staff_services ss
		JOIN staff st ON st.id = ss.staff_id
		WHERE ss.staff_id = ? AND ss.service_id = ?`, staffID, serviceID)

	a, err := scanStaffService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get staff service", err)
	}
	return a, nil
}

// ListStaffServices returns the assignments of a service, optionally narrowed to one
// staff member and to staff at a location (staff without a home location always match).
func (db *DB) ListStaffServices(ctx context.Context, serviceID, staffID, locationID string) ([]models.StaffService, error) {
	query := `SELECT ` + staffServiceColumns + `
		FROM staff_services ss
		JOIN staff st ON st.id = ss.staff_id
		WHERE ss.service_id = ?`
	args := []any{serviceID}
	if staffID != "" {
		query += ` AND ss.staff_id = ?`
		args = append(args, staffID)
	}
	if locationID != "" {
		query += ` AND (st.location_id IS NULL OR st.location_id = ?)`
		args = append(args, locationID)
	}
	query += ` ORDER BY st.full_name, ss.staff_id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list staff services", err)
	}
	defer rows.Close()

	var out []models.StaffService
	for rows.Next() {
		a, err := scanStaffService(rows)
		if err != nil {
			return nil, wrap("scan staff service", err)
		}
		out = append(out, *a)
	}
	return out, wrap("iterate staff services", rows.Err())
}

// UpsertService inserts or replaces a service row.
func (db *DB) UpsertService(ctx context.Context, svc *models.Service) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO services (id, name, duration_minutes, buffer_minutes, max_capacity,
		                      is_active, is_archived, paused_from, paused_until, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			duration_minutes = excluded.duration_minutes,
			buffer_minutes = excluded.buffer_minutes,
			max_capacity = excluded.max_capacity,
			is_active = excluded.is_active,
			is_archived = excluded.is_archived,
			paused_from = excluded.paused_from,
			paused_until = excluded.paused_until`,
		svc.ID, svc.Name, svc.DurationMinutes, svc.BufferMinutes, svc.MaxCapacity,
		svc.IsActive, svc.IsArchived, nullTime(svc.PausedFrom), nullTime(svc.PausedUntil),
		formatTime(time.Now()),
	)
	return wrap("upsert service", err)
}

// UpsertStaff inserts or replaces a staff row.
func (db *DB) UpsertStaff(ctx context.Context, st *models.Staff) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO staff (id, full_name, location_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			full_name = excluded.full_name,
			location_id = excluded.location_id`,
		st.ID, st.FullName, nullString(st.LocationID), formatTime(time.Now()),
	)
	return wrap("upsert staff", err)
}

// UpsertStaffService inserts or replaces an assignment.
func (db *DB) UpsertStaffService(ctx context.Context, a *models.StaffService) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO staff_services (staff_id, service_id, duration_override, buffer_override,
		                            capacity_override, is_bookable, is_temporarily_unavailable, admin_only)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(staff_id, service_id) DO UPDATE SET
			duration_override = excluded.duration_override,
			buffer_override = excluded.buffer_override,
			capacity_override = excluded.capacity_override,
			is_bookable = excluded.is_bookable,
			is_temporarily_unavailable = excluded.is_temporarily_unavailable,
			admin_only = excluded.admin_only`,
		a.StaffID, a.ServiceID, nullInt(a.DurationOverride), nullInt(a.BufferOverride),
		nullInt(a.CapacityOverride), a.IsBookable, a.IsTemporarilyUnavailable, a.AdminOnly,
	)
	return wrap("upsert staff service", err)
}
