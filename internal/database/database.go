package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB is the SQLite store behind every repository port.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

// timeLayout is fixed-width UTC so stored instants compare lexicographically.
const timeLayout = "2006-01-02T15:04:05Z"

// NewDB opens the database and creates tables if they don't exist.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL, busy timeout and BEGIN IMMEDIATE for every transaction.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{
		DB:     db,
		logger: logger,
	}

	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS services (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
			buffer_minutes INTEGER NOT NULL DEFAULT 0,
			max_capacity INTEGER NOT NULL DEFAULT 1,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			is_archived BOOLEAN NOT NULL DEFAULT 0,
			paused_from TEXT,
			paused_until TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS staff (
			id TEXT PRIMARY KEY,
			full_name TEXT NOT NULL,
			location_id TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS staff_services (
			staff_id TEXT NOT NULL REFERENCES staff(id) ON DELETE CASCADE,
			service_id TEXT NOT NULL REFERENCES services(id) ON DELETE CASCADE,
			duration_override INTEGER,
			buffer_override INTEGER,
			capacity_override INTEGER,
			is_bookable BOOLEAN NOT NULL DEFAULT 1,
			is_temporarily_unavailable BOOLEAN NOT NULL DEFAULT 0,
			admin_only BOOLEAN NOT NULL DEFAULT 0,
			PRIMARY KEY (staff_id, service_id)
		)`,
		`CREATE TABLE IF NOT EXISTS staff_weekly_schedules (
			id TEXT PRIMARY KEY,
			staff_id TEXT NOT NULL REFERENCES staff(id) ON DELETE CASCADE,
			location_id TEXT,
			timezone TEXT NOT NULL,
			effective_from TEXT,
			effective_to TEXT,
			is_default BOOLEAN NOT NULL DEFAULT 0,
			max_slots_per_day INTEGER,
			max_bookings_per_day INTEGER,
			max_bookings_per_customer INTEGER,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS staff_work_blocks (
			id TEXT PRIMARY KEY,
			schedule_id TEXT NOT NULL REFERENCES staff_weekly_schedules(id) ON DELETE CASCADE,
			weekday INTEGER NOT NULL CHECK (weekday BETWEEN 0 AND 6),
			start_time_local TEXT NOT NULL,
			end_time_local TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS staff_break_blocks (
			id TEXT PRIMARY KEY,
			schedule_id TEXT NOT NULL REFERENCES staff_weekly_schedules(id) ON DELETE CASCADE,
			weekday INTEGER NOT NULL CHECK (weekday BETWEEN 0 AND 6),
			start_time_local TEXT NOT NULL,
			end_time_local TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS staff_exceptions (
			id TEXT PRIMARY KEY,
			staff_id TEXT NOT NULL REFERENCES staff(id) ON DELETE CASCADE,
			location_id TEXT,
			type TEXT NOT NULL CHECK (type IN ('override_day', 'time_off', 'blocked_time', 'extra_availability')),
			start_utc TEXT NOT NULL,
			end_utc TEXT NOT NULL,
			is_all_day BOOLEAN NOT NULL DEFAULT 0,
			recurrence TEXT NOT NULL DEFAULT '',
			reason TEXT,
			created_by TEXT,
			created_at TEXT NOT NULL,
			CHECK (end_utc >= start_utc)
		)`,
		`CREATE TABLE IF NOT EXISTS service_operating_schedules (
			id TEXT PRIMARY KEY,
			service_id TEXT NOT NULL REFERENCES services(id) ON DELETE CASCADE,
			timezone TEXT NOT NULL DEFAULT 'UTC',
			rule_type TEXT NOT NULL CHECK (rule_type IN ('daily', 'weekly', 'monthly')),
			open_time TEXT,
			close_time TEXT,
			effective_from TEXT,
			effective_to TEXT,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS service_operating_rules (
			id TEXT PRIMARY KEY,
			schedule_id TEXT NOT NULL REFERENCES service_operating_schedules(id) ON DELETE CASCADE,
			rule_type TEXT NOT NULL CHECK (rule_type IN ('weekly', 'monthly_day', 'monthly_nth_weekday')),
			weekday INTEGER,
			month_day INTEGER,
			nth INTEGER,
			start_time TEXT,
			end_time TEXT,
			position INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS service_operating_exceptions (
			id TEXT PRIMARY KEY,
			service_id TEXT NOT NULL REFERENCES services(id) ON DELETE CASCADE,
			date TEXT NOT NULL,
			is_open BOOLEAN NOT NULL DEFAULT 0,
			start_time TEXT,
			end_time TEXT,
			reason TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS booking_holds (
			id TEXT PRIMARY KEY,
			staff_id TEXT NOT NULL,
			service_id TEXT NOT NULL,
			location_id TEXT,
			start_utc TEXT NOT NULL,
			end_utc TEXT NOT NULL,
			expires_at_utc TEXT NOT NULL,
			created_by TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			service_id TEXT NOT NULL REFERENCES services(id),
			staff_id TEXT NOT NULL REFERENCES staff(id),
			customer_id TEXT NOT NULL,
			start_time_utc TEXT NOT NULL,
			end_time_utc TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			payment_status TEXT NOT NULL DEFAULT 'pending',
			booking_source TEXT NOT NULL DEFAULT 'web',
			customer_timezone TEXT,
			version INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			CHECK (end_time_utc >= start_time_utc)
		)`,
		`CREATE TABLE IF NOT EXISTS booking_logs (
			id TEXT PRIMARY KEY,
			booking_id TEXT NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
			action TEXT NOT NULL,
			performed_by TEXT,
			details TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS booking_changes (
			id TEXT PRIMARY KEY,
			booking_id TEXT NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
			old_start_time TEXT,
			new_start_time TEXT,
			change_type TEXT NOT NULL,
			changed_by TEXT,
			reason TEXT,
			created_at TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_staff_services_service ON staff_services(service_id)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_staff ON staff_weekly_schedules(staff_id)`,
		`CREATE INDEX IF NOT EXISTS idx_work_blocks_schedule ON staff_work_blocks(schedule_id, weekday)`,
		`CREATE INDEX IF NOT EXISTS idx_break_blocks_schedule ON staff_break_blocks(schedule_id, weekday)`,
		`CREATE INDEX IF NOT EXISTS idx_exceptions_staff_time ON staff_exceptions(staff_id, start_utc, end_utc)`,
		`CREATE INDEX IF NOT EXISTS idx_operating_service ON service_operating_schedules(service_id)`,
		`CREATE INDEX IF NOT EXISTS idx_operating_exceptions ON service_operating_exceptions(service_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_holds_staff_time ON booking_holds(staff_id, start_utc, end_utc)`,
		`CREATE INDEX IF NOT EXISTS idx_holds_expires ON booking_holds(expires_at_utc)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_staff_time ON bookings(staff_id, start_time_utc, end_time_utc)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_customer ON bookings(customer_id, staff_id)`,
		`CREATE INDEX IF NOT EXISTS idx_booking_logs_booking ON booking_logs(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_booking_changes_booking ON booking_changes(booking_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored time %q: %w", s, err)
	}
	return t, nil
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatDate(*t), Valid: true}
}

func timePtr(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func datePtr(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored date %q: %w", v.String, err)
	}
	return &t, nil
}
