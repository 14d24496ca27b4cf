package ports

import (
	"context"

	"webkernel-modules/internal/types"
)

type BackupPort interface {
	CreateBackup(ctx context.Context, targetDir string, label string) (string, error)
	// ListBackups returns backups newest first. An empty label lists all.
	ListBackups(ctx context.Context, label string) ([]types.BackupInfo, error)
	RestoreBackup(ctx context.Context, backupDir string, targetDir string) error
	CleanOldBackups(ctx context.Context, label string, keep int) ([]string, error)
}
