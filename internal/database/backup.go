package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"slotbook/internal/config"
)

const backupPrefix = "slotbook_"

// BackupService snapshots the live store with VACUUM INTO on a fixed interval
// and prunes snapshots older than the retention window.
type BackupService struct {
	db     *DB
	config config.BackupConfig
	logger *zerolog.Logger
	now    func() time.Time
}

func NewBackupService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	return &BackupService{
		db:     db,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Start blocks until ctx is done.
func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return
	}

	interval := 24 * time.Hour
	if s.config.Schedule != "" {
		if d, err := time.ParseDuration(s.config.Schedule); err == nil && d > 0 {
			interval = d
		} else {
			s.logger.Warn().Err(err).Str("schedule", s.config.Schedule).Msg("Failed to parse backup schedule, using default 24h")
		}
	}
	s.logger.Info().Dur("interval", interval).Msg("Backup service started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *BackupService) run(ctx context.Context) {
	if _, err := s.PerformBackup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Backup failed")
		return
	}
	removed := s.CleanupOldBackups()
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Old backups removed")
	}
}

// PerformBackup writes a consistent snapshot and returns its path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := backupPrefix + s.now().UTC().Format("20060102_150405.000000000") + ".db"
	path := filepath.Join(s.config.StoragePath, name)

	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return "", wrap("vacuum into "+name, err)
	}

	s.logger.Info().Str("path", path).Msg("Backup completed")
	return path, nil
}

// CleanupOldBackups deletes snapshots past RetentionDays and reports how many went.
func (s *BackupService) CleanupOldBackups() int {
	if s.config.RetentionDays <= 0 {
		return 0
	}

	entries, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read backup directory for cleanup")
		return 0
	}

	cutoff := s.now().AddDate(0, 0, -s.config.RetentionDays)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), backupPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.config.StoragePath, entry.Name())); err != nil {
			s.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to delete old backup")
			continue
		}
		removed++
	}
	return removed
}
