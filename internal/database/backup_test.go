package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotbook/internal/config"
)

func TestBackupService(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db, 1)

	storagePath := filepath.Join(t.TempDir(), "backups")
	cfg := config.BackupConfig{
		Enabled:       true,
		StoragePath:   storagePath,
		RetentionDays: 1,
	}
	logger := zerolog.Nop()
	s := NewBackupService(db, cfg, &logger)
	ctx := context.Background()

	t.Run("PerformBackup", func(t *testing.T) {
		path, err := s.PerformBackup(ctx)
		require.NoError(t, err)
		assert.FileExists(t, path)

		snapshot, err := NewDB(path, &logger)
		require.NoError(t, err)
		defer snapshot.Close()
		svc, err := snapshot.GetService(ctx, "svc-1")
		require.NoError(t, err)
		assert.Equal(t, "Haircut", svc.Name)
	})

	t.Run("CleanupOldBackups", func(t *testing.T) {
		oldFile := filepath.Join(storagePath, backupPrefix+"old.db")
		require.NoError(t, os.WriteFile(oldFile, []byte("old"), 0o644))
		foreign := filepath.Join(storagePath, "notes.txt")
		require.NoError(t, os.WriteFile(foreign, []byte("keep"), 0o644))

		oldTime := time.Now().AddDate(0, 0, -2)
		require.NoError(t, os.Chtimes(oldFile, oldTime, oldTime))
		require.NoError(t, os.Chtimes(foreign, oldTime, oldTime))

		assert.Equal(t, 1, s.CleanupOldBackups())
		assert.NoFileExists(t, oldFile)
		assert.FileExists(t, foreign)
	})
}

func TestBackupService_Disabled(_ *testing.T) {
	logger := zerolog.Nop()
	s := NewBackupService(nil, config.BackupConfig{Enabled: false}, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Start(ctx)
}
