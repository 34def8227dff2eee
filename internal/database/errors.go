package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"slotbook/internal/domain"
)

// wrap classifies a driver error. Lock contention and deadlines become
// domain.ErrStoreUnavailable so callers can retry them.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to %s: %w: %v", op, domain.ErrStoreUnavailable, err)
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("failed to %s: %w: %v", op, domain.ErrStoreUnavailable, err)
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
